package reservation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/hackgods/slot-booking/internal/redis"
	"github.com/hackgods/slot-booking/internal/slot"
)

// racingStore lets another writer touch the slot right before the sweeper's
// conditional write, so that write loses.
type racingStore struct {
	*slot.MemStore
	raceOn uuid.UUID
}

func (r *racingStore) UpdateIf(ctx context.Context, next slot.Slot, expectedVersion int64) (bool, int64, error) {
	if next.ID == r.raceOn {
		r.raceOn = uuid.Nil
		cur, err := r.MemStore.GetSlot(ctx, next.ID)
		if err != nil {
			return false, 0, err
		}
		renewed := *cur
		renewed.SetReservation(*cur.ReservedBy, time.Now().Add(TTL))
		if _, _, err := r.MemStore.UpdateIf(ctx, renewed, cur.Version); err != nil {
			return false, 0, err
		}
	}
	return r.MemStore.UpdateIf(ctx, next, expectedVersion)
}

type stubLocker struct {
	err   error
	calls int
	name  string
	ttl   time.Duration
}

func (l *stubLocker) WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error {
	l.calls++
	l.name = name
	l.ttl = ttl
	if l.err != nil {
		return l.err
	}
	return fn(ctx)
}

func reserveAt(t *testing.T, store *slot.MemStore, s *slot.Slot, claimant uuid.UUID, expiresAt time.Time) {
	t.Helper()
	cur, err := store.GetSlot(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	next := *cur
	next.SetReservation(claimant, expiresAt)
	if ok, _, err := store.UpdateIf(context.Background(), next, cur.Version); err != nil || !ok {
		t.Fatalf("reserve: ok=%v err=%v", ok, err)
	}
}

func TestSweepOnce_ClearsOnlyExpired(t *testing.T) {
	store := slot.NewMemStore()
	expired := newAvailableSlot(t, store)
	live := newAvailableSlot(t, store)
	now := time.Now()

	reserveAt(t, store, expired, uuid.New(), now.Add(-time.Minute))
	reserveAt(t, store, live, uuid.New(), now.Add(time.Minute))

	sw := NewSweeper(store, nil, 0, zerolog.Nop())
	sw.now = func() time.Time { return now }

	stats, err := sw.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Released != 1 || stats.Scanned != 1 {
		t.Errorf("expected 1 scanned and released, got %+v", stats)
	}

	got, _ := store.GetSlot(context.Background(), expired.ID)
	if got.Reserved() || got.ReservationExpiresAt != nil {
		t.Errorf("expected expired lock cleared")
	}
	got, _ = store.GetSlot(context.Background(), live.ID)
	if !got.Reserved() {
		t.Errorf("expected live lock kept")
	}
}

func TestSweepOnce_SkipsLostRace(t *testing.T) {
	mem := slot.NewMemStore()
	raced := newAvailableSlot(t, mem)
	other := newAvailableSlot(t, mem)
	now := time.Now()
	holder := uuid.New()

	reserveAt(t, mem, raced, holder, now.Add(-time.Minute))
	reserveAt(t, mem, other, uuid.New(), now.Add(-time.Minute))

	store := &racingStore{MemStore: mem, raceOn: raced.ID}
	sw := NewSweeper(store, nil, time.Minute, zerolog.Nop())
	sw.now = func() time.Time { return now }

	stats, err := sw.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Skipped != 1 || stats.Released != 1 {
		t.Errorf("expected 1 skipped and 1 released, got %+v", stats)
	}

	got, _ := mem.GetSlot(context.Background(), raced.ID)
	if !got.HeldBy(holder) {
		t.Errorf("expected renewed lock to survive the sweep")
	}
}

func TestSweepOnce_GuardHeldElsewhere(t *testing.T) {
	store := slot.NewMemStore()
	s := newAvailableSlot(t, store)
	reserveAt(t, store, s, uuid.New(), time.Now().Add(-time.Minute))

	locker := &stubLocker{err: redisclient.ErrLockNotAcquired}
	sw := NewSweeper(store, locker, time.Minute, zerolog.Nop())

	stats, err := sw.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("expected skipped pass, got %v", err)
	}
	if stats != (SweepStats{}) {
		t.Errorf("expected empty stats, got %+v", stats)
	}
	got, _ := store.GetSlot(context.Background(), s.ID)
	if !got.Reserved() {
		t.Errorf("expected lock untouched while another process sweeps")
	}

	locker.err = nil
	if _, err := sw.SweepOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ = store.GetSlot(context.Background(), s.ID)
	if got.Reserved() {
		t.Errorf("expected lock cleared once the guard is free")
	}
	if locker.calls != 2 {
		t.Errorf("expected 2 guarded passes, got %d", locker.calls)
	}
	if locker.name != "reservation-sweeper" || locker.ttl != passTimeout {
		t.Errorf("expected guard %q held for %s, got %q for %s", "reservation-sweeper", passTimeout, locker.name, locker.ttl)
	}
}

func TestSweepOnce_ScanFailure(t *testing.T) {
	sw := NewSweeper(failingStore{slot.NewMemStore()}, nil, time.Minute, zerolog.Nop())
	if _, err := sw.SweepOnce(context.Background()); !errors.Is(err, errScan) {
		t.Fatalf("expected scan error, got %v", err)
	}
}

var errScan = errors.New("scan failed")

type failingStore struct {
	*slot.MemStore
}

func (failingStore) FindExpiredReservations(context.Context, time.Time) ([]slot.Slot, error) {
	return nil, errScan
}
