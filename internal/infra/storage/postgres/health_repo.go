package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/feedguard/feedguard/internal/core/domain"
)

// HealthRepo implements storage.HealthRepository using PostgreSQL. One
// row per endpoint, overwritten on every checkpoint.
type HealthRepo struct {
	db *DB
}

// NewHealthRepo creates a new PostgreSQL health repository.
func NewHealthRepo(db *DB) *HealthRepo {
	return &HealthRepo{db: db}
}

// Upsert overwrites the health row for an endpoint.
func (r *HealthRepo) Upsert(ctx context.Context, rec domain.HealthRecord) error {
	query := `
		INSERT INTO endpoint_health (endpoint_key, status, outcome_window, consecutive_failures, last_success_at, last_failure_at, uptime_percentage, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (endpoint_key) DO UPDATE SET
			status = EXCLUDED.status,
			outcome_window = EXCLUDED.outcome_window,
			consecutive_failures = EXCLUDED.consecutive_failures,
			last_success_at = EXCLUDED.last_success_at,
			last_failure_at = EXCLUDED.last_failure_at,
			uptime_percentage = EXCLUDED.uptime_percentage,
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(
		ctx,
		query,
		rec.EndpointKey,
		string(rec.Status),
		pq.Array(rec.Window),
		rec.ConsecutiveFailures,
		nullableTime(rec.LastSuccessAt),
		nullableTime(rec.LastFailureAt),
		rec.UptimePercentage,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert health record: %w", err)
	}
	return nil
}

// GetAll returns every persisted health record.
func (r *HealthRepo) GetAll(ctx context.Context) ([]domain.HealthRecord, error) {
	query := `
		SELECT endpoint_key, status, outcome_window, consecutive_failures, last_success_at, last_failure_at, uptime_percentage
		FROM endpoint_health
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load health records: %w", err)
	}
	defer rows.Close()

	var records []domain.HealthRecord
	for rows.Next() {
		var rec domain.HealthRecord
		var status string
		var window pq.BoolArray
		var lastSuccess, lastFailure *time.Time

		if err := rows.Scan(
			&rec.EndpointKey,
			&status,
			&window,
			&rec.ConsecutiveFailures,
			&lastSuccess,
			&lastFailure,
			&rec.UptimePercentage,
		); err != nil {
			return nil, fmt.Errorf("failed to scan health record: %w", err)
		}

		rec.Status = domain.HealthStatus(status)
		rec.Window = window
		if lastSuccess != nil {
			rec.LastSuccessAt = *lastSuccess
		}
		if lastFailure != nil {
			rec.LastFailureAt = *lastFailure
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
