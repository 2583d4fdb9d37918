package slot

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Conflict retry policy shared by every writer that retries a lost
// version-conditioned write.
const MaxAttempts = 3

// Backoff is the pause before retry number attempt (1-based).
func Backoff(attempt int) time.Duration {
	return time.Duration(attempt) * 100 * time.Millisecond
}

// Wait pauses for d or until ctx is done.
func Wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Store is the durable slot collection. All concurrency guarantees are
// anchored on UpdateIf and CommitBooking: a write only lands if the version
// in storage still equals expectedVersion, and a landed write advances it by one.
type Store interface {
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	CreateSlot(ctx context.Context, s *Slot) error
	// DeleteAvailableSlot removes an AVAILABLE, unclaimed slot. Anything else is ErrSlotClaimed.
	DeleteAvailableSlot(ctx context.Context, id uuid.UUID) error
	ListSlotsByProvider(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Slot, error)

	// UpdateIf persists next if the stored version equals expectedVersion.
	// ok is false when another writer got there first (or the row is gone).
	UpdateIf(ctx context.Context, next Slot, expectedVersion int64) (ok bool, newVersion int64, err error)

	// CommitBooking is UpdateIf plus the history entry and payment row, as one atomic unit.
	// A payment row already present for the slot yields ErrAlreadyPaid and nothing is written.
	CommitBooking(ctx context.Context, next Slot, expectedVersion int64, entry StatusHistoryEntry, payment PaymentRecord) (ok bool, newVersion int64, err error)

	FindExpiredReservations(ctx context.Context, now time.Time) ([]Slot, error)

	AppendHistory(ctx context.Context, entry StatusHistoryEntry) error
	ListHistory(ctx context.Context, slotID uuid.UUID) ([]StatusHistoryEntry, error)

	GetPayment(ctx context.Context, slotID uuid.UUID) (*PaymentRecord, error)
	// UpdatePaymentStatus moves the slot's payment from -> to. ErrPaymentNotFound if no row matches.
	UpdatePaymentStatus(ctx context.Context, slotID uuid.UUID, from, to PaymentStatus, paidAt *time.Time) (*PaymentRecord, error)
}

// Directory is the narrow view of the external collaborators the core depends on.
type Directory interface {
	GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetClaimant(ctx context.Context, id uuid.UUID) (*Claimant, error)
	// IsOnLeave only considers APPROVED leave.
	IsOnLeave(ctx context.Context, providerID uuid.UUID, date time.Time) (bool, error)
	// ListRules returns the provider's rules for weekday ordered by priority, then start.
	ListRules(ctx context.Context, providerID uuid.UUID, weekday time.Weekday) ([]AvailabilityRule, error)
}
