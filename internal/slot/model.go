package slot

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusBooked    Status = "BOOKED"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

// Claimed reports whether a slot in this status must carry a claimant.
func (s Status) Claimed() bool {
	switch s {
	case StatusBooked, StatusConfirmed, StatusCompleted:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusBooked, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

type PaymentMethod string

const (
	MethodCash   PaymentMethod = "CASH"
	MethodCard   PaymentMethod = "CARD"
	MethodWallet PaymentMethod = "WALLET"
)

// Instant methods settle at booking time; everything else is collected out of band.
func (m PaymentMethod) Instant() bool {
	return m == MethodCard || m == MethodWallet
}

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodWallet:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

type LeaveStatus string

const (
	LeavePending   LeaveStatus = "PENDING"
	LeaveApproved  LeaveStatus = "APPROVED"
	LeaveRejected  LeaveStatus = "REJECTED"
	LeaveCancelled LeaveStatus = "CANCELLED"
)

// Slot is one bookable interval on a provider's calendar. The reservation
// lock and the version counter live on the same row as the business data.
type Slot struct {
	ID                   uuid.UUID
	ProviderID           uuid.UUID
	ClaimantID           *uuid.UUID
	StartTime            time.Time
	DurationMinutes      int
	Status               Status
	Version              int64
	ReservedBy           *uuid.UUID
	ReservationExpiresAt *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (s Slot) EndTime() time.Time {
	return s.StartTime.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// Reserved reports whether the slot carries a lock, live or expired.
func (s Slot) Reserved() bool {
	return s.ReservedBy != nil
}

// LockLive reports whether the lock is still within its TTL at now.
func (s Slot) LockLive(now time.Time) bool {
	return s.ReservedBy != nil && s.ReservationExpiresAt != nil && s.ReservationExpiresAt.After(now)
}

// HeldBy reports whether claimantID owns the lock, regardless of expiry.
func (s Slot) HeldBy(claimantID uuid.UUID) bool {
	return s.ReservedBy != nil && *s.ReservedBy == claimantID
}

// Open returns nil for an AVAILABLE, unclaimed slot. A claimant on the row is
// ErrSlotClaimed; any other status is ErrSlotClosed.
func (s Slot) Open() error {
	if s.ClaimantID != nil {
		return ErrSlotClaimed
	}
	if s.Status != StatusAvailable {
		return ErrSlotClosed
	}
	return nil
}

func (s *Slot) ClearReservation() {
	s.ReservedBy = nil
	s.ReservationExpiresAt = nil
}

func (s *Slot) SetReservation(claimantID uuid.UUID, expiresAt time.Time) {
	by := claimantID
	at := expiresAt
	s.ReservedBy = &by
	s.ReservationExpiresAt = &at
}

// CheckInvariants validates the row-level invariants every persisted slot must satisfy.
func (s Slot) CheckInvariants() error {
	if !s.Status.Valid() {
		return fmt.Errorf("slot %s: unknown status %q", s.ID, s.Status)
	}
	if (s.ReservedBy == nil) != (s.ReservationExpiresAt == nil) {
		return fmt.Errorf("slot %s: reservation fields must be set together", s.ID)
	}
	if s.ReservedBy != nil && s.Status != StatusAvailable {
		return fmt.Errorf("slot %s: %s slot carries a reservation", s.ID, s.Status)
	}
	if (s.ClaimantID != nil) != s.Status.Claimed() {
		return fmt.Errorf("slot %s: claimant presence does not match status %s", s.ID, s.Status)
	}
	if s.DurationMinutes <= 0 {
		return fmt.Errorf("slot %s: duration must be positive", s.ID)
	}
	return nil
}

type StatusHistoryEntry struct {
	ID         int64
	SlotID     uuid.UUID
	FromStatus Status
	ToStatus   Status
	ChangedAt  time.Time
	ChangedBy  string
	Note       *string
}

type PaymentRecord struct {
	ID            uuid.UUID
	SlotID        uuid.UUID
	Method        PaymentMethod
	Status        PaymentStatus
	AmountCents   int64
	TransactionID string
	CardDetails   *string
	Notes         *string
	CreatedAt     time.Time
	PaidAt        *time.Time
}

// TimeOfDay is minutes since local midnight.
type TimeOfDay int

func Clock(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// On places the time of day on the calendar date of d, in d's location.
func (t TimeOfDay) On(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, int(t)/60, int(t)%60, 0, 0, d.Location())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

type AvailabilityRule struct {
	ID            uuid.UUID
	ProviderID    uuid.UUID
	Weekday       time.Weekday
	Start         TimeOfDay
	End           TimeOfDay
	Priority      int
	EffectiveFrom *time.Time
	EffectiveTo   *time.Time
}

// EffectiveOn reports whether the rule's optional date range covers date (inclusive).
func (r AvailabilityRule) EffectiveOn(date time.Time) bool {
	day := civilDay(date)
	if r.EffectiveFrom != nil && day < civilDay(*r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && day > civilDay(*r.EffectiveTo) {
		return false
	}
	return true
}

type LeaveRecord struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	StartDate  time.Time
	EndDate    time.Time
	Status     LeaveStatus
	Reason     *string
}

// Covers reports whether an approved leave includes date.
func (l LeaveRecord) Covers(date time.Time) bool {
	if l.Status != LeaveApproved {
		return false
	}
	day := civilDay(date)
	return day >= civilDay(l.StartDate) && day <= civilDay(l.EndDate)
}

type Provider struct {
	ID                  uuid.UUID
	Name                string
	SlotDurationMinutes int
}

type Claimant struct {
	ID    uuid.UUID
	Name  string
	Email *string
}

// DateOf truncates t to midnight in its own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// civilDay compares calendar dates independent of location.
func civilDay(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

// Overlaps uses strict semantics: intervals that only touch do not overlap.
func Overlaps(startA, endA, startB, endB time.Time) bool {
	return startA.Before(endB) && endA.After(startB)
}
