package slot

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-process Store and Directory. The mutex stands in for
// row-level atomicity of a real database: each call is one atomic statement,
// and version checks behave exactly like PgStore's conditional update.
type MemStore struct {
	mu        sync.RWMutex
	slots     map[uuid.UUID]Slot
	history   map[uuid.UUID][]StatusHistoryEntry
	payments  map[uuid.UUID]PaymentRecord
	providers map[uuid.UUID]Provider
	claimants map[uuid.UUID]Claimant
	rules     map[uuid.UUID][]AvailabilityRule
	leaves    map[uuid.UUID][]LeaveRecord
	nextHist  int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		slots:     make(map[uuid.UUID]Slot),
		history:   make(map[uuid.UUID][]StatusHistoryEntry),
		payments:  make(map[uuid.UUID]PaymentRecord),
		providers: make(map[uuid.UUID]Provider),
		claimants: make(map[uuid.UUID]Claimant),
		rules:     make(map[uuid.UUID][]AvailabilityRule),
		leaves:    make(map[uuid.UUID][]LeaveRecord),
	}
}

// Directory seeding

func (m *MemStore) AddProvider(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.ID] = p
}

func (m *MemStore) AddClaimant(c Claimant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claimants[c.ID] = c
}

func (m *MemStore) AddRule(r AvailabilityRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	m.rules[r.ProviderID] = append(m.rules[r.ProviderID], r)
}

func (m *MemStore) AddLeave(l LeaveRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	m.leaves[l.ProviderID] = append(m.leaves[l.ProviderID], l)
}

// Directory

func (m *MemStore) GetProvider(_ context.Context, id uuid.UUID) (*Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return &p, nil
}

func (m *MemStore) GetClaimant(_ context.Context, id uuid.UUID) (*Claimant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.claimants[id]
	if !ok {
		return nil, ErrClaimantNotFound
	}
	return &c, nil
}

func (m *MemStore) IsOnLeave(_ context.Context, providerID uuid.UUID, date time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.leaves[providerID] {
		if l.Covers(date) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemStore) ListRules(_ context.Context, providerID uuid.UUID, weekday time.Weekday) ([]AvailabilityRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []AvailabilityRule
	for _, r := range m.rules[providerID] {
		if r.Weekday == weekday {
			result = append(result, r)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority < result[j].Priority
		}
		return result[i].Start < result[j].Start
	})
	return result, nil
}

// Store

func (m *MemStore) GetSlot(_ context.Context, id uuid.UUID) (*Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	c := cloneSlot(s)
	return &c, nil
}

func (m *MemStore) CreateSlot(_ context.Context, s *Slot) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Version == 0 {
		s.Version = 1
	}
	if err := s.CheckInvariants(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	m.slots[s.ID] = cloneSlot(*s)
	return nil
}

func (m *MemStore) DeleteAvailableSlot(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return ErrSlotNotFound
	}
	if _, paid := m.payments[id]; paid || s.Status != StatusAvailable || s.ClaimantID != nil {
		return ErrSlotClaimed
	}
	delete(m.slots, id)
	return nil
}

func (m *MemStore) ListSlotsByProvider(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []Slot
	for _, s := range m.slots {
		if s.ProviderID != providerID {
			continue
		}
		if s.StartTime.Before(from) || !s.StartTime.Before(to) {
			continue
		}
		result = append(result, cloneSlot(s))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartTime.Before(result[j].StartTime) })
	return result, nil
}

func (m *MemStore) UpdateIf(_ context.Context, next Slot, expectedVersion int64) (bool, int64, error) {
	if err := next.CheckInvariants(); err != nil {
		return false, 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.applyLocked(next, expectedVersion)
	return ok, v, nil
}

func (m *MemStore) CommitBooking(_ context.Context, next Slot, expectedVersion int64, entry StatusHistoryEntry, payment PaymentRecord) (bool, int64, error) {
	if err := next.CheckInvariants(); err != nil {
		return false, 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.slots[next.ID]
	if !ok || cur.Version != expectedVersion {
		return false, 0, nil
	}
	if _, paid := m.payments[next.ID]; paid {
		return false, 0, ErrAlreadyPaid
	}

	v, _ := m.applyLocked(next, expectedVersion)
	m.appendHistoryLocked(entry)
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	m.payments[payment.SlotID] = payment
	return true, v, nil
}

// applyLocked is the conditional update. Caller holds m.mu.
func (m *MemStore) applyLocked(next Slot, expectedVersion int64) (int64, bool) {
	cur, ok := m.slots[next.ID]
	if !ok || cur.Version != expectedVersion {
		return 0, false
	}
	cur.ClaimantID = next.ClaimantID
	cur.Status = next.Status
	cur.ReservedBy = next.ReservedBy
	cur.ReservationExpiresAt = next.ReservationExpiresAt
	cur.Version++
	cur.UpdatedAt = time.Now()
	m.slots[cur.ID] = cloneSlot(cur)
	return cur.Version, true
}

func (m *MemStore) FindExpiredReservations(_ context.Context, now time.Time) ([]Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []Slot
	for _, s := range m.slots {
		if s.ReservationExpiresAt != nil && s.ReservationExpiresAt.Before(now) {
			result = append(result, cloneSlot(s))
		}
	}
	return result, nil
}

func (m *MemStore) AppendHistory(_ context.Context, entry StatusHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendHistoryLocked(entry)
	return nil
}

func (m *MemStore) appendHistoryLocked(entry StatusHistoryEntry) {
	m.nextHist++
	entry.ID = m.nextHist
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now()
	}
	m.history[entry.SlotID] = append(m.history[entry.SlotID], entry)
}

func (m *MemStore) ListHistory(_ context.Context, slotID uuid.UUID) ([]StatusHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.history[slotID]
	out := make([]StatusHistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (m *MemStore) GetPayment(_ context.Context, slotID uuid.UUID) (*PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[slotID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return &p, nil
}

func (m *MemStore) UpdatePaymentStatus(_ context.Context, slotID uuid.UUID, from, to PaymentStatus, paidAt *time.Time) (*PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[slotID]
	if !ok || p.Status != from {
		return nil, ErrPaymentNotFound
	}
	p.Status = to
	if paidAt != nil {
		at := *paidAt
		p.PaidAt = &at
	}
	m.payments[slotID] = p
	return &p, nil
}

// PaymentCount is the number of payment rows held; used by contention checks.
func (m *MemStore) PaymentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.payments)
}

func cloneSlot(s Slot) Slot {
	c := s
	if s.ClaimantID != nil {
		v := *s.ClaimantID
		c.ClaimantID = &v
	}
	if s.ReservedBy != nil {
		v := *s.ReservedBy
		c.ReservedBy = &v
	}
	if s.ReservationExpiresAt != nil {
		v := *s.ReservationExpiresAt
		c.ReservationExpiresAt = &v
	}
	return c
}
