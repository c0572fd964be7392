package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"voicetime/internal/models"
)

var (
	// ErrNotFound is returned when incrementing a record that was never created.
	ErrNotFound = errors.New("duration record not found")
	// ErrNegativeDelta is returned for increments below zero.
	ErrNegativeDelta = errors.New("increment must not be negative")
	// ErrUnknownField is returned for a field outside models.FieldCall and models.FieldMuted.
	ErrUnknownField = errors.New("unknown duration field")
)

// pqUniqueViolation is the SQLSTATE for unique_violation.
const pqUniqueViolation = "23505"

// Repository handles ledger operations against PostgreSQL
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func column(field models.Field) (string, error) {
	switch field {
	case models.FieldCall:
		return "call_seconds", nil
	case models.FieldMuted:
		return "muted_seconds", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, field)
}

// EnsureExists creates an empty record for userID unless one exists.
// Concurrent callers all succeed.
func (r *Repository) EnsureExists(ctx context.Context, userID string) error {
	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO voice_durations (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
		userID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return nil
		}
		return fmt.Errorf("failed to ensure duration record: %w", err)
	}
	return nil
}

// Increment atomically adds delta seconds to field of userID's record
func (r *Repository) Increment(ctx context.Context, userID string, field models.Field, delta int64) error {
	if delta < 0 {
		return ErrNegativeDelta
	}
	col, err := column(field)
	if err != nil {
		return err
	}

	res, err := r.db.conn.ExecContext(ctx,
		`UPDATE voice_durations SET `+col+` = `+col+` + $1 WHERE user_id = $2`,
		delta, userID)
	if err != nil {
		return fmt.Errorf("failed to increment %s: %w", col, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to increment %s: %w", col, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	return nil
}

// Get returns the record for userID, or nil if none exists.
// It returns an error only for database failures, not for missing rows.
func (r *Repository) Get(ctx context.Context, userID string) (*models.DurationRecord, error) {
	rec := models.DurationRecord{UserID: userID}
	err := r.db.conn.QueryRowContext(ctx,
		"SELECT call_seconds, muted_seconds FROM voice_durations WHERE user_id = $1",
		userID).Scan(&rec.CallSeconds, &rec.MutedSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get duration record: %w", err)
	}
	return &rec, nil
}

// ListAll returns every record ordered by user id
func (r *Repository) ListAll(ctx context.Context) ([]models.DurationRecord, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		"SELECT user_id, call_seconds, muted_seconds FROM voice_durations ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list duration records: %w", err)
	}
	defer rows.Close()

	var records []models.DurationRecord
	for rows.Next() {
		var rec models.DurationRecord
		if err := rows.Scan(&rec.UserID, &rec.CallSeconds, &rec.MutedSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan duration record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list duration records: %w", err)
	}
	return records, nil
}
