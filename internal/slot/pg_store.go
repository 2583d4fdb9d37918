package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const slotColumns = `id, provider_id, claimant_id, start_time, duration_minutes, status, version,
	reserved_by, reservation_expires_at, created_at, updated_at`

const paymentColumns = `id, slot_id, method, status, amount_cents, transaction_id, card_details, notes, created_at, paid_at`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Helpers

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot

	err := row.Scan(
		&s.ID,
		&s.ProviderID,
		&s.ClaimantID,
		&s.StartTime,
		&s.DurationMinutes,
		&s.Status,
		&s.Version,
		&s.ReservedBy,
		&s.ReservationExpiresAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanPayment(row pgx.Row) (*PaymentRecord, error) {
	var p PaymentRecord

	err := row.Scan(
		&p.ID,
		&p.SlotID,
		&p.Method,
		&p.Status,
		&p.AmountCents,
		&p.TransactionID,
		&p.CardDetails,
		&p.Notes,
		&p.CreatedAt,
		&p.PaidAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	return &p, nil
}

func collectSlots(rows pgx.Rows) ([]Slot, error) {
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// isUniqueViolation reports a unique violation on the named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}

// Interface methods

func (r *PgStore) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgStore) CreateSlot(ctx context.Context, s *Slot) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Version == 0 {
		s.Version = 1
	}
	if err := s.CheckInvariants(); err != nil {
		return err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO slots (id, provider_id, claimant_id, start_time, duration_minutes, status, version,
		                   reserved_by, reservation_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+slotColumns,
		s.ID, s.ProviderID, s.ClaimantID, s.StartTime, s.DurationMinutes, s.Status, s.Version,
		s.ReservedBy, s.ReservationExpiresAt)

	created, err := scanSlot(row)
	if err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	*s = *created
	return nil
}

func (r *PgStore) DeleteAvailableSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM slots
		WHERE id = $1
		  AND status = 'AVAILABLE'
		  AND claimant_id IS NULL
		  AND NOT EXISTS (SELECT 1 FROM payments p WHERE p.slot_id = slots.id)
	`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Distinguish a missing row from one that is no longer deletable.
	if _, err := r.GetSlot(ctx, id); err != nil {
		return err
	}
	return ErrSlotClaimed
}

func (r *PgStore) ListSlotsByProvider(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE provider_id = $1
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY start_time
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (r *PgStore) UpdateIf(ctx context.Context, next Slot, expectedVersion int64) (bool, int64, error) {
	if err := next.CheckInvariants(); err != nil {
		return false, 0, err
	}
	return updateIf(ctx, r.pool, next, expectedVersion)
}

func updateIf(ctx context.Context, q querier, next Slot, expectedVersion int64) (bool, int64, error) {
	var newVersion int64
	err := q.QueryRow(ctx, `
		UPDATE slots
		SET claimant_id = $3,
		    status = $4,
		    reserved_by = $5,
		    reservation_expires_at = $6,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND version = $2
		RETURNING version
	`, next.ID, expectedVersion, next.ClaimantID, next.Status, next.ReservedBy, next.ReservationExpiresAt).Scan(&newVersion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("conditional slot update: %w", err)
	}
	return true, newVersion, nil
}

func (r *PgStore) CommitBooking(ctx context.Context, next Slot, expectedVersion int64, entry StatusHistoryEntry, payment PaymentRecord) (bool, int64, error) {
	if err := next.CheckInvariants(); err != nil {
		return false, 0, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	ok, newVersion, err := updateIf(ctx, tx, next, expectedVersion)
	if err != nil || !ok {
		return false, 0, err
	}

	if err := insertHistory(ctx, tx, entry); err != nil {
		return false, 0, err
	}

	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO payments (id, slot_id, method, status, amount_cents, transaction_id, card_details, notes, created_at, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, payment.ID, payment.SlotID, payment.Method, payment.Status, payment.AmountCents,
		payment.TransactionID, payment.CardDetails, payment.Notes, payment.CreatedAt, payment.PaidAt)
	if err != nil {
		if isUniqueViolation(err, "payments_slot_id_key") {
			return false, 0, ErrAlreadyPaid
		}
		return false, 0, fmt.Errorf("insert payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, 0, fmt.Errorf("commit booking tx: %w", err)
	}
	return true, newVersion, nil
}

func (r *PgStore) FindExpiredReservations(ctx context.Context, now time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE reservation_expires_at IS NOT NULL
		  AND reservation_expires_at < $1
	`, now)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (r *PgStore) AppendHistory(ctx context.Context, entry StatusHistoryEntry) error {
	return insertHistory(ctx, r.pool, entry)
}

func insertHistory(ctx context.Context, q querier, entry StatusHistoryEntry) error {
	_, err := q.Exec(ctx, `
		INSERT INTO slot_status_history (slot_id, from_status, to_status, changed_at, changed_by, note)
		VALUES ($1, $2, $3, COALESCE($4, now()), $5, $6)
	`, entry.SlotID, entry.FromStatus, entry.ToStatus, nullableTime(entry.ChangedAt), entry.ChangedBy, entry.Note)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

func (r *PgStore) ListHistory(ctx context.Context, slotID uuid.UUID) ([]StatusHistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, slot_id, from_status, to_status, changed_at, changed_by, note
		FROM slot_status_history
		WHERE slot_id = $1
		ORDER BY id
	`, slotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []StatusHistoryEntry
	for rows.Next() {
		var e StatusHistoryEntry
		if err := rows.Scan(&e.ID, &e.SlotID, &e.FromStatus, &e.ToStatus, &e.ChangedAt, &e.ChangedBy, &e.Note); err != nil {
			return nil, err
		}
		result = append(result, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgStore) GetPayment(ctx context.Context, slotID uuid.UUID) (*PaymentRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE slot_id = $1
	`, slotID)
	return scanPayment(row)
}

func (r *PgStore) UpdatePaymentStatus(ctx context.Context, slotID uuid.UUID, from, to PaymentStatus, paidAt *time.Time) (*PaymentRecord, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE payments
		SET status = $3,
		    paid_at = COALESCE($4, paid_at)
		WHERE slot_id = $1
		  AND status = $2
		RETURNING `+paymentColumns,
		slotID, from, to, paidAt)
	return scanPayment(row)
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
