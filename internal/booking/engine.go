package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/slot-booking/internal/slot"
	"github.com/hackgods/slot-booking/internal/status"
)

const bookingNote = "Booked appointment with payment"

var ErrInvalidRequest = errors.New("invalid booking request")

type Request struct {
	SlotID      uuid.UUID
	ClaimantID  uuid.UUID
	Method      slot.PaymentMethod
	AmountCents int64
	CardDetails string
	Notes       string
}

type Result struct {
	Slot    slot.Slot
	Payment slot.PaymentRecord
}

// Engine claims a slot and records its payment as one atomic step.
type Engine struct {
	store   slot.Store
	dir     slot.Directory
	log     zerolog.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	backoff func(attempt int) time.Duration
	newTxID func() (string, error)
}

func NewEngine(store slot.Store, dir slot.Directory, log zerolog.Logger) *Engine {
	return &Engine{
		store:   store,
		dir:     dir,
		log:     log.With().Str("component", "booking").Logger(),
		now:     time.Now,
		sleep:   slot.Wait,
		backoff: slot.Backoff,
		newTxID: NewTransactionID,
	}
}

// Book moves an AVAILABLE slot to BOOKED for req.ClaimantID and writes the
// payment row with it. A lost version race re-runs every precondition, up to
// slot.MaxAttempts times, before giving up with ErrConcurrentConflict.
func (e *Engine) Book(ctx context.Context, req Request) (*Result, error) {
	if !req.Method.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalidRequest, req.Method)
	}
	if req.AmountCents < 0 {
		return nil, fmt.Errorf("%w: negative amount", ErrInvalidRequest)
	}

	txID, err := e.newTxID()
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= slot.MaxAttempts; attempt++ {
		cur, err := e.check(ctx, req)
		if err != nil {
			return nil, err
		}

		now := e.now()
		next := *cur
		claimant := req.ClaimantID
		next.Status = slot.StatusBooked
		next.ClaimantID = &claimant
		next.ClearReservation()

		note := bookingNote
		entry := slot.StatusHistoryEntry{
			SlotID:     cur.ID,
			FromStatus: cur.Status,
			ToStatus:   slot.StatusBooked,
			ChangedAt:  now,
			ChangedBy:  status.PatientActor(req.ClaimantID),
			Note:       &note,
		}
		payment := newPayment(cur.ID, req, txID, now)

		ok, version, err := e.store.CommitBooking(ctx, next, cur.Version, entry, payment)
		if err != nil {
			return nil, err
		}
		if ok {
			next.Version = version
			e.log.Info().
				Str("slot_id", cur.ID.String()).
				Str("claimant_id", req.ClaimantID.String()).
				Str("method", string(payment.Method)).
				Str("payment_status", string(payment.Status)).
				Str("transaction_id", payment.TransactionID).
				Int("attempt", attempt).
				Msg("slot booked")
			return &Result{Slot: next, Payment: payment}, nil
		}

		e.log.Debug().Str("slot_id", req.SlotID.String()).Int("attempt", attempt).Msg("booking lost version race")
		if attempt < slot.MaxAttempts {
			if err := e.sleep(ctx, e.backoff(attempt)); err != nil {
				return nil, err
			}
		}
	}

	e.log.Warn().Str("slot_id", req.SlotID.String()).Msg("booking gave up after repeated conflicts")
	return nil, slot.ErrConcurrentConflict
}

// check evaluates the booking preconditions against a fresh read of the slot.
func (e *Engine) check(ctx context.Context, req Request) (*slot.Slot, error) {
	cur, err := e.store.GetSlot(ctx, req.SlotID)
	if err != nil {
		return nil, err
	}
	if err := cur.Open(); err != nil {
		return nil, err
	}

	now := e.now()
	if cur.Reserved() {
		// A lapsed lock only blocks the claimant who held it; anyone else may book.
		switch {
		case cur.HeldBy(req.ClaimantID) && !cur.LockLive(now):
			return nil, slot.ErrReservationExpired
		case !cur.HeldBy(req.ClaimantID) && cur.LockLive(now):
			return nil, slot.ErrReservedByOther
		}
	}

	if _, err := e.dir.GetProvider(ctx, cur.ProviderID); err != nil {
		return nil, err
	}

	onLeave, err := e.dir.IsOnLeave(ctx, cur.ProviderID, slot.DateOf(cur.StartTime))
	if err != nil {
		return nil, fmt.Errorf("check leave: %w", err)
	}
	if onLeave {
		return nil, slot.ErrProviderUnavailable
	}

	if _, err := e.dir.GetClaimant(ctx, req.ClaimantID); err != nil {
		return nil, err
	}

	if _, err := e.store.GetPayment(ctx, cur.ID); err == nil {
		return nil, slot.ErrAlreadyPaid
	} else if !errors.Is(err, slot.ErrPaymentNotFound) {
		return nil, fmt.Errorf("check payment: %w", err)
	}

	return cur, nil
}
