package status

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/slot-booking/internal/slot"
)

var allStatuses = []slot.Status{
	slot.StatusAvailable,
	slot.StatusBooked,
	slot.StatusConfirmed,
	slot.StatusCancelled,
	slot.StatusCompleted,
}

func TestValidate_TableClosure(t *testing.T) {
	legal := map[[2]slot.Status]bool{
		{slot.StatusAvailable, slot.StatusBooked}:    true,
		{slot.StatusBooked, slot.StatusConfirmed}:    true,
		{slot.StatusBooked, slot.StatusCancelled}:    true,
		{slot.StatusConfirmed, slot.StatusCancelled}: true,
		{slot.StatusConfirmed, slot.StatusCompleted}: true,
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			noop, err := Validate(from, to)
			switch {
			case from == to:
				if !noop || err != nil {
					t.Errorf("%s -> %s: expected no-op, got noop=%v err=%v", from, to, noop, err)
				}
			case legal[[2]slot.Status{from, to}]:
				if noop || err != nil {
					t.Errorf("%s -> %s: expected allowed, got noop=%v err=%v", from, to, noop, err)
				}
			default:
				if !errors.Is(err, slot.ErrInvalidTransition) {
					t.Errorf("%s -> %s: expected ErrInvalidTransition, got %v", from, to, err)
				}
			}
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range allStatuses {
		want := s == slot.StatusCancelled || s == slot.StatusCompleted
		if Terminal(s) != want {
			t.Errorf("Terminal(%s): expected %v", s, want)
		}
	}
}

type bookedFixture struct {
	store    *slot.MemStore
	slot     slot.Slot
	claimant uuid.UUID
}

func newBooked(t *testing.T, method slot.PaymentMethod) *bookedFixture {
	t.Helper()
	ctx := context.Background()
	store := slot.NewMemStore()
	s := &slot.Slot{
		ProviderID:      uuid.New(),
		StartTime:       time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
		Status:          slot.StatusAvailable,
	}
	if err := store.CreateSlot(ctx, s); err != nil {
		t.Fatalf("create slot: %v", err)
	}

	claimant := uuid.New()
	next := *s
	next.Status = slot.StatusBooked
	next.ClaimantID = &claimant
	payment := slot.PaymentRecord{SlotID: s.ID, Method: method, Status: slot.PaymentPending, TransactionID: "TXN-TEST0001"}
	if method.Instant() {
		paidAt := time.Now()
		payment.Status = slot.PaymentCompleted
		payment.PaidAt = &paidAt
	}
	entry := slot.StatusHistoryEntry{SlotID: s.ID, FromStatus: slot.StatusAvailable, ToStatus: slot.StatusBooked, ChangedBy: PatientActor(claimant)}
	if ok, _, err := store.CommitBooking(ctx, next, s.Version, entry, payment); err != nil || !ok {
		t.Fatalf("book slot: ok=%v err=%v", ok, err)
	}

	booked, _ := store.GetSlot(ctx, s.ID)
	return &bookedFixture{store: store, slot: *booked, claimant: claimant}
}

func TestTransition_ConfirmAppendsHistory(t *testing.T) {
	f := newBooked(t, slot.MethodCash)
	a := NewAuthority(f.store, zerolog.Nop())
	providerID := f.slot.ProviderID

	got, err := a.Transition(context.Background(), Request{SlotID: f.slot.ID, To: slot.StatusConfirmed, Actor: ProviderActor(providerID), Note: "see you then"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != slot.StatusConfirmed || got.Version != f.slot.Version+1 {
		t.Errorf("unexpected slot after confirm: %+v", got)
	}
	if got.ClaimantID == nil || *got.ClaimantID != f.claimant {
		t.Errorf("expected claimant kept on confirm")
	}

	history, _ := f.store.ListHistory(context.Background(), f.slot.ID)
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	last := history[1]
	if last.FromStatus != slot.StatusBooked || last.ToStatus != slot.StatusConfirmed || last.ChangedBy != ProviderActor(providerID) {
		t.Errorf("unexpected history entry: %+v", last)
	}
	if last.Note == nil || *last.Note != "see you then" {
		t.Errorf("expected note recorded")
	}
}

func TestTransition_NoopWritesNothing(t *testing.T) {
	f := newBooked(t, slot.MethodCash)
	a := NewAuthority(f.store, zerolog.Nop())

	got, err := a.Transition(context.Background(), Request{SlotID: f.slot.ID, To: slot.StatusBooked})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Version != f.slot.Version {
		t.Errorf("expected version unchanged, got %d", got.Version)
	}
	history, _ := f.store.ListHistory(context.Background(), f.slot.ID)
	if len(history) != 1 {
		t.Errorf("expected no new history, got %d entries", len(history))
	}
}

func TestTransition_IllegalLeavesSlotUnchanged(t *testing.T) {
	f := newBooked(t, slot.MethodCash)
	a := NewAuthority(f.store, zerolog.Nop())

	_, err := a.Transition(context.Background(), Request{SlotID: f.slot.ID, To: slot.StatusCompleted})
	if !errors.Is(err, slot.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	got, _ := f.store.GetSlot(context.Background(), f.slot.ID)
	if got.Status != slot.StatusBooked || got.Version != f.slot.Version {
		t.Errorf("expected slot unchanged, got %+v", got)
	}
}

func TestTransition_BookingRequiresEngine(t *testing.T) {
	store := slot.NewMemStore()
	s := &slot.Slot{ProviderID: uuid.New(), StartTime: time.Now(), DurationMinutes: 30, Status: slot.StatusAvailable}
	if err := store.CreateSlot(context.Background(), s); err != nil {
		t.Fatalf("create slot: %v", err)
	}
	a := NewAuthority(store, zerolog.Nop())

	_, err := a.Transition(context.Background(), Request{SlotID: s.ID, To: slot.StatusBooked})
	if !errors.Is(err, ErrBookingRequired) {
		t.Fatalf("expected ErrBookingRequired, got %v", err)
	}
}

func TestTransition_CancelClearsClaimantAndPayment(t *testing.T) {
	tests := []struct {
		name   string
		method slot.PaymentMethod
	}{
		{"pending cash payment", slot.MethodCash},
		{"completed card payment", slot.MethodCard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBooked(t, tt.method)
			a := NewAuthority(f.store, zerolog.Nop())

			got, err := a.Transition(context.Background(), Request{SlotID: f.slot.ID, To: slot.StatusCancelled, Actor: PatientActor(f.claimant)})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.ClaimantID != nil {
				t.Errorf("expected claimant cleared on cancel")
			}

			p, err := f.store.GetPayment(context.Background(), f.slot.ID)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Status != slot.PaymentCancelled {
				t.Errorf("expected payment cancelled, got %s", p.Status)
			}

			if _, err := a.Transition(context.Background(), Request{SlotID: f.slot.ID, To: slot.StatusConfirmed}); !errors.Is(err, slot.ErrInvalidTransition) {
				t.Errorf("expected cancelled to be terminal, got %v", err)
			}
		})
	}
}

func TestTransition_CompleteSettlesCash(t *testing.T) {
	f := newBooked(t, slot.MethodCash)
	a := NewAuthority(f.store, zerolog.Nop())
	ctx := context.Background()

	for _, to := range []slot.Status{slot.StatusConfirmed, slot.StatusCompleted} {
		if _, err := a.Transition(ctx, Request{SlotID: f.slot.ID, To: to, Actor: SystemActor}); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}

	p, _ := f.store.GetPayment(ctx, f.slot.ID)
	if p.Status != slot.PaymentCompleted || p.PaidAt == nil {
		t.Errorf("expected cash payment settled on completion, got %+v", p)
	}
	history, _ := f.store.ListHistory(ctx, f.slot.ID)
	if len(history) != 3 {
		t.Errorf("expected 3 history entries, got %d", len(history))
	}
}

// contendedStore makes every conditional write lose.
type contendedStore struct {
	*slot.MemStore
}

func (contendedStore) UpdateIf(context.Context, slot.Slot, int64) (bool, int64, error) {
	return false, 0, nil
}

func TestTransition_RetryExhaustion(t *testing.T) {
	f := newBooked(t, slot.MethodCash)
	a := NewAuthority(contendedStore{f.store}, zerolog.Nop())
	var sleeps int
	a.sleep = func(context.Context, time.Duration) error {
		sleeps++
		return nil
	}

	_, err := a.Transition(context.Background(), Request{SlotID: f.slot.ID, To: slot.StatusConfirmed})
	if !errors.Is(err, slot.ErrConcurrentConflict) {
		t.Fatalf("expected ErrConcurrentConflict, got %v", err)
	}
	if sleeps != slot.MaxAttempts-1 {
		t.Errorf("expected %d backoffs, got %d", slot.MaxAttempts-1, sleeps)
	}
}
