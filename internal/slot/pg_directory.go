package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgDirectory reads the collaborator tables (providers, claimants, rules, leave).
// Those tables are owned by other services; the core only reads them.
type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	var p Provider
	var duration *int

	err := d.pool.QueryRow(ctx, `
		SELECT id, name, slot_duration_minutes
		FROM providers
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &duration)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	if duration != nil {
		p.SlotDurationMinutes = *duration
	}
	return &p, nil
}

func (d *PgDirectory) GetClaimant(ctx context.Context, id uuid.UUID) (*Claimant, error) {
	var c Claimant

	err := d.pool.QueryRow(ctx, `
		SELECT id, name, email
		FROM claimants
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClaimantNotFound
		}
		return nil, err
	}

	return &c, nil
}

func (d *PgDirectory) IsOnLeave(ctx context.Context, providerID uuid.UUID, date time.Time) (bool, error) {
	var onLeave bool

	// The date is sent as text so the session time zone cannot shift it.
	err := d.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM provider_leaves
			WHERE provider_id = $1
			  AND status = 'APPROVED'
			  AND $2::date BETWEEN start_date AND end_date
		)
	`, providerID, date.Format(time.DateOnly)).Scan(&onLeave)
	if err != nil {
		return false, fmt.Errorf("check provider leave: %w", err)
	}
	return onLeave, nil
}

func (d *PgDirectory) ListRules(ctx context.Context, providerID uuid.UUID, weekday time.Weekday) ([]AvailabilityRule, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, provider_id, day_of_week, start_minute, end_minute, priority, effective_from, effective_to
		FROM availability_rules
		WHERE provider_id = $1
		  AND day_of_week = $2
		ORDER BY priority, start_minute
	`, providerID, int16(weekday))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilityRule
	for rows.Next() {
		var (
			r          AvailabilityRule
			day        int16
			start, end int
		)
		if err := rows.Scan(&r.ID, &r.ProviderID, &day, &start, &end, &r.Priority, &r.EffectiveFrom, &r.EffectiveTo); err != nil {
			return nil, err
		}
		r.Weekday = time.Weekday(day)
		r.Start = TimeOfDay(start)
		r.End = TimeOfDay(end)
		result = append(result, r)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
