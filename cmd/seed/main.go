package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/slot-booking/internal/config"
	"github.com/hackgods/slot-booking/internal/db"
	"github.com/hackgods/slot-booking/internal/demo"
	"github.com/hackgods/slot-booking/internal/logging"
	"github.com/hackgods/slot-booking/internal/slot"
	"github.com/hackgods/slot-booking/internal/slotgen"
)

const batchSize = 500

func main() {
	cfg, err := config.Load()
	logger := logging.New(cfg.Env, "seed")
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}
	if cfg.Storage != config.StoragePostgres {
		logger.Fatal().Msg("seed writes to postgres; set STORAGE=postgres")
	}

	providers := envInt("SEED_PROVIDERS", 50)
	claimants := envInt("SEED_CLAIMANTS", 5000)
	days := envInt("SEED_DAYS", 14)

	ctx := context.Background()

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(connCtx, cfg.PostgresDSN, cfg.DBMaxConns, cfg.DBMinConns)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("apply schema")
	}
	logger.Info().Msg("schema applied")

	today := slot.DateOf(time.Now().UTC())
	data := demo.Generate(demo.Options{Providers: providers, Claimants: claimants, From: today})

	if err := seedDirectory(ctx, pool, data, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed directory")
	}
	if err := seedClaimants(ctx, pool, data.Claimants, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed claimants")
	}

	gen := slotgen.NewGenerator(slot.NewPgStore(pool), slot.NewPgDirectory(pool), cfg.DefaultSlotMinutes, zerolog.Nop())
	total := 0
	for _, p := range data.Providers {
		for d := 0; d < days; d++ {
			created, err := gen.Provision(ctx, p.ID, today.AddDate(0, 0, d))
			if err != nil {
				logger.Fatal().Err(err).Str("provider_id", p.ID.String()).Msg("provision slots")
			}
			total += len(created)
		}
	}

	logger.Info().
		Int("providers", len(data.Providers)).
		Int("claimants", len(data.Claimants)).
		Int("rules", len(data.Rules)).
		Int("leaves", len(data.Leaves)).
		Int("slots", total).
		Msg("seed complete")
}

func seedDirectory(ctx context.Context, pool *pgxpool.Pool, data demo.Dataset, logger zerolog.Logger) error {
	logger.Info().Int("count", len(data.Providers)).Msg("seeding providers")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, p := range data.Providers {
		var minutes *int
		if p.SlotDurationMinutes > 0 {
			m := p.SlotDurationMinutes
			minutes = &m
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, name, slot_duration_minutes, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, p.ID, p.Name, minutes)
		if err != nil {
			return err
		}
	}

	for _, r := range data.Rules {
		_, err := tx.Exec(ctx, `
			INSERT INTO availability_rules (id, provider_id, day_of_week, start_minute, end_minute, priority, effective_from, effective_to)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, r.ID, r.ProviderID, int16(r.Weekday), int(r.Start), int(r.End), r.Priority, r.EffectiveFrom, r.EffectiveTo)
		if err != nil {
			return err
		}
	}

	for _, l := range data.Leaves {
		_, err := tx.Exec(ctx, `
			INSERT INTO provider_leaves (id, provider_id, start_date, end_date, status, reason)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, l.ID, l.ProviderID, l.StartDate.Format(time.DateOnly), l.EndDate.Format(time.DateOnly), string(l.Status), l.Reason)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedClaimants(ctx context.Context, pool *pgxpool.Pool, claimants []slot.Claimant, logger zerolog.Logger) error {
	logger.Info().Int("count", len(claimants)).Msg("seeding claimants")

	for offset := 0; offset < len(claimants); offset += batchSize {
		end := min(offset+batchSize, len(claimants))

		batch := &pgx.Batch{}
		for _, c := range claimants[offset:end] {
			batch.Queue(`
				INSERT INTO claimants (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, c.ID, c.Name, c.Email)
		}

		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}

		logger.Info().Int("done", end).Int("total", len(claimants)).Msg("claimants seeded")
	}

	return nil
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
