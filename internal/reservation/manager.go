package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/slot-booking/internal/slot"
)

// TTL is how long a reservation lock holds a slot for one claimant.
const TTL = 5 * time.Minute

type Reservation struct {
	SlotID     uuid.UUID
	ClaimantID uuid.UUID
	ExpiresAt  time.Time
	Version    int64
}

// Manager places and removes the short-lived claimant lock kept on the slot row.
type Manager struct {
	store slot.Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewManager(store slot.Store, log zerolog.Logger) *Manager {
	return &Manager{
		store: store,
		log:   log.With().Str("component", "reservation").Logger(),
		now:   time.Now,
	}
}

// Reserve takes or renews the lock for claimantID. A live lock held by anyone
// else, or a slot that is claimed or closed, is ErrSlotUnavailable.
func (m *Manager) Reserve(ctx context.Context, slotID, claimantID uuid.UUID) (*Reservation, error) {
	for attempt := 1; attempt <= slot.MaxAttempts; attempt++ {
		cur, err := m.store.GetSlot(ctx, slotID)
		if err != nil {
			return nil, err
		}

		now := m.now()
		if err := cur.Open(); err != nil {
			return nil, err
		}
		if cur.LockLive(now) && !cur.HeldBy(claimantID) {
			return nil, slot.ErrReservedByOther
		}

		expiresAt := now.Add(TTL)
		next := *cur
		next.SetReservation(claimantID, expiresAt)

		ok, version, err := m.store.UpdateIf(ctx, next, cur.Version)
		if err != nil {
			return nil, fmt.Errorf("persist reservation: %w", err)
		}
		if ok {
			return &Reservation{
				SlotID:     slotID,
				ClaimantID: claimantID,
				ExpiresAt:  expiresAt,
				Version:    version,
			}, nil
		}

		m.log.Debug().Str("slot_id", slotID.String()).Int("attempt", attempt).Msg("reservation write lost version race")
	}

	return nil, slot.ErrConcurrentConflict
}

// Release drops claimantID's lock if it still holds one. It never fails;
// store errors are logged.
func (m *Manager) Release(ctx context.Context, slotID, claimantID uuid.UUID) {
	cur, err := m.store.GetSlot(ctx, slotID)
	if err != nil {
		if !errors.Is(err, slot.ErrNotFound) {
			m.log.Warn().Err(err).Str("slot_id", slotID.String()).Msg("release: failed to load slot")
		}
		return
	}
	if cur.Status != slot.StatusAvailable || !cur.HeldBy(claimantID) {
		return
	}

	next := *cur
	next.ClearReservation()

	ok, _, err := m.store.UpdateIf(ctx, next, cur.Version)
	if err != nil {
		m.log.Warn().Err(err).Str("slot_id", slotID.String()).Msg("release: failed to clear lock")
		return
	}
	if !ok {
		m.log.Debug().Str("slot_id", slotID.String()).Msg("release: slot changed underneath, nothing to clear")
	}
}

// IsAvailable reports whether claimantID could book the slot right now.
// A missing slot is simply not available.
func (m *Manager) IsAvailable(ctx context.Context, slotID, claimantID uuid.UUID) (bool, error) {
	cur, err := m.store.GetSlot(ctx, slotID)
	if err != nil {
		if errors.Is(err, slot.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return Bookable(*cur, claimantID, m.now()), nil
}

// Bookable is the lock rule shared by availability checks: an AVAILABLE slot
// with no lock, an expired lock or claimantID's own live lock.
func Bookable(s slot.Slot, claimantID uuid.UUID, now time.Time) bool {
	if s.Status != slot.StatusAvailable || s.ClaimantID != nil {
		return false
	}
	return !s.LockLive(now) || s.HeldBy(claimantID)
}
