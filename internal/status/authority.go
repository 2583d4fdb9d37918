package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/slot-booking/internal/slot"
)

// ErrBookingRequired is returned for AVAILABLE -> BOOKED requests made outside
// the booking engine: a booked slot must carry a claimant and a payment row.
var ErrBookingRequired = fmt.Errorf("booking must go through the booking engine: %w", slot.ErrSlotUnavailable)

var allowed = map[slot.Status][]slot.Status{
	slot.StatusAvailable: {slot.StatusBooked},
	slot.StatusBooked:    {slot.StatusConfirmed, slot.StatusCancelled},
	slot.StatusConfirmed: {slot.StatusCancelled, slot.StatusCompleted},
	slot.StatusCancelled: nil,
	slot.StatusCompleted: nil,
}

// Validate checks a requested transition against the table.
// noop is true for from == to, which is accepted and must not be recorded.
func Validate(from, to slot.Status) (noop bool, err error) {
	if !to.Valid() || !from.Valid() {
		return false, fmt.Errorf("%w: unknown status %q -> %q", slot.ErrInvalidTransition, from, to)
	}
	if from == to {
		return true, nil
	}
	for _, next := range allowed[from] {
		if next == to {
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: %s -> %s", slot.ErrInvalidTransition, from, to)
}

// Terminal reports whether no transition leaves s.
func Terminal(s slot.Status) bool {
	return len(allowed[s]) == 0
}

// Actor tags written to history.
func PatientActor(id uuid.UUID) string { return "PATIENT:" + id.String() }
func ProviderActor(id uuid.UUID) string { return "PROVIDER:" + id.String() }

const SystemActor = "SYSTEM"

type Request struct {
	SlotID uuid.UUID
	To     slot.Status
	Actor  string
	Note   string
}

// Authority validates and applies status changes after booking.
type Authority struct {
	store slot.Store
	log   zerolog.Logger
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewAuthority(store slot.Store, log zerolog.Logger) *Authority {
	return &Authority{
		store: store,
		log:   log.With().Str("component", "status").Logger(),
		now:   time.Now,
		sleep: slot.Wait,
	}
}

// Transition moves the slot to req.To. A lost version race re-reads and
// re-validates the slot, with the same bounded policy as booking.
func (a *Authority) Transition(ctx context.Context, req Request) (*slot.Slot, error) {
	if req.To == slot.StatusBooked {
		cur, err := a.store.GetSlot(ctx, req.SlotID)
		if err != nil {
			return nil, err
		}
		if cur.Status == slot.StatusBooked {
			return cur, nil
		}
		if _, err := Validate(cur.Status, req.To); err != nil {
			return nil, err
		}
		return nil, ErrBookingRequired
	}

	for attempt := 1; attempt <= slot.MaxAttempts; attempt++ {
		cur, err := a.store.GetSlot(ctx, req.SlotID)
		if err != nil {
			return nil, err
		}

		noop, err := Validate(cur.Status, req.To)
		if err != nil {
			return nil, err
		}
		if noop {
			return cur, nil
		}

		from := cur.Status
		next := *cur
		next.Status = req.To
		if !req.To.Claimed() {
			next.ClaimantID = nil
		}

		ok, version, err := a.store.UpdateIf(ctx, next, cur.Version)
		if err != nil {
			return nil, fmt.Errorf("persist status: %w", err)
		}
		if ok {
			next.Version = version
			a.record(ctx, next.ID, from, req)
			a.followPayment(ctx, next.ID, req.To)
			return &next, nil
		}

		a.log.Debug().Str("slot_id", req.SlotID.String()).Int("attempt", attempt).Msg("status write lost version race")
		if attempt < slot.MaxAttempts {
			if err := a.sleep(ctx, slot.Backoff(attempt)); err != nil {
				return nil, err
			}
		}
	}

	return nil, slot.ErrConcurrentConflict
}

// record appends history. Failure is logged, not rolled back.
func (a *Authority) record(ctx context.Context, slotID uuid.UUID, from slot.Status, req Request) {
	entry := slot.StatusHistoryEntry{
		SlotID:     slotID,
		FromStatus: from,
		ToStatus:   req.To,
		ChangedAt:  a.now(),
		ChangedBy:  req.Actor,
	}
	if req.Note != "" {
		note := req.Note
		entry.Note = &note
	}
	if entry.ChangedBy == "" {
		entry.ChangedBy = SystemActor
	}

	if err := a.store.AppendHistory(ctx, entry); err != nil {
		a.log.Error().Err(err).
			Str("slot_id", slotID.String()).
			Str("from", string(from)).
			Str("to", string(req.To)).
			Msg("failed to append status history")
	}
}

// followPayment keeps the payment ledger in step with the slot: a cancelled
// slot cancels its payment, a completed slot settles a pending one.
func (a *Authority) followPayment(ctx context.Context, slotID uuid.UUID, to slot.Status) {
	var err error
	switch to {
	case slot.StatusCancelled:
		for _, from := range []slot.PaymentStatus{slot.PaymentPending, slot.PaymentCompleted} {
			_, err = a.store.UpdatePaymentStatus(ctx, slotID, from, slot.PaymentCancelled, nil)
			if err == nil || !errors.Is(err, slot.ErrPaymentNotFound) {
				break
			}
		}
	case slot.StatusCompleted:
		paidAt := a.now()
		_, err = a.store.UpdatePaymentStatus(ctx, slotID, slot.PaymentPending, slot.PaymentCompleted, &paidAt)
	default:
		return
	}

	if err != nil && !errors.Is(err, slot.ErrPaymentNotFound) {
		a.log.Error().Err(err).Str("slot_id", slotID.String()).Str("to", string(to)).Msg("failed to update payment after status change")
	}
}
