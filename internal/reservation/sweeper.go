package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	redisclient "github.com/hackgods/slot-booking/internal/redis"
	"github.com/hackgods/slot-booking/internal/slot"
)

const (
	DefaultSweepInterval = 60 * time.Second

	passTimeout = 20 * time.Second

	// One pass holds the guard for at most passTimeout; a crashed holder frees it then.
	guardName = "reservation-sweeper"
	guardTTL  = passTimeout
)

type SweepStats struct {
	Scanned  int
	Released int
	Skipped  int
	Failed   int
}

// Sweeper clears reservation locks whose expiry has passed.
type Sweeper struct {
	store    slot.Store
	guard    redisclient.Locker
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// NewSweeper builds a sweeper. guard may be nil; when set, one pass runs at a
// time across every process sharing it.
func NewSweeper(store slot.Store, guard redisclient.Locker, interval time.Duration, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:    store,
		guard:    guard,
		interval: interval,
		log:      log.With().Str("component", "sweeper").Logger(),
		now:      time.Now,
	}
}

// Run sweeps once at startup and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("sweeper started")
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, passTimeout)
	defer cancel()

	start := time.Now()
	stats, err := s.SweepOnce(runCtx)
	if err != nil {
		s.log.Error().Err(err).Msg("sweep pass failed")
		return
	}
	s.log.Info().
		Int("scanned", stats.Scanned).
		Int("released", stats.Released).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Dur("took", time.Since(start)).
		Msg("sweep pass complete")
}

// SweepOnce runs one pass. Rows that lost a version race or failed to write
// are counted and skipped; only a failed scan is returned as an error.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepStats, error) {
	if s.guard == nil {
		return s.sweep(ctx)
	}

	var stats SweepStats
	err := s.guard.WithLock(ctx, guardName, guardTTL, func(lctx context.Context) error {
		var err error
		stats, err = s.sweep(lctx)
		return err
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		s.log.Debug().Msg("another process is sweeping, skipping pass")
		return SweepStats{}, nil
	}
	return stats, err
}

func (s *Sweeper) sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	expired, err := s.store.FindExpiredReservations(ctx, s.now())
	if err != nil {
		return stats, fmt.Errorf("find expired reservations: %w", err)
	}
	stats.Scanned = len(expired)

	for _, cur := range expired {
		next := cur
		next.ClearReservation()

		ok, _, err := s.store.UpdateIf(ctx, next, cur.Version)
		if err != nil {
			stats.Failed++
			s.log.Warn().Err(err).Str("slot_id", cur.ID.String()).Msg("failed to clear expired reservation")
			continue
		}
		if !ok {
			stats.Skipped++
			continue
		}
		stats.Released++
	}

	return stats, nil
}
