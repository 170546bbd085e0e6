package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/feedguard/feedguard/internal/core/domain"
)

// AlertRepo implements storage.AlertRepository using PostgreSQL.
type AlertRepo struct {
	db *DB
}

// NewAlertRepo creates a new PostgreSQL alert repository.
func NewAlertRepo(db *DB) *AlertRepo {
	return &AlertRepo{db: db}
}

// Add inserts a newly opened alert.
func (r *AlertRepo) Add(ctx context.Context, a *domain.Alert) error {
	query := `
		INSERT INTO alerts (id, level, endpoint_key, message, created_at, resolved_at, escalation_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(
		ctx,
		query,
		a.ID,
		string(a.Level),
		a.EndpointKey,
		a.Message,
		a.CreatedAt,
		a.ResolvedAt,
		a.EscalationCount,
	)
	if err != nil {
		return fmt.Errorf("failed to add alert: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of an alert.
func (r *AlertRepo) Update(ctx context.Context, a *domain.Alert) error {
	query := `
		UPDATE alerts
		SET level = $2, resolved_at = $3, escalation_count = $4
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, a.ID, string(a.Level), a.ResolvedAt, a.EscalationCount)
	return err
}

type alertRow struct {
	ID              string     `db:"id"`
	Level           string     `db:"level"`
	EndpointKey     string     `db:"endpoint_key"`
	Message         string     `db:"message"`
	CreatedAt       time.Time  `db:"created_at"`
	ResolvedAt      *time.Time `db:"resolved_at"`
	EscalationCount int        `db:"escalation_count"`
}

// GetOpen returns all open alerts.
func (r *AlertRepo) GetOpen(ctx context.Context) ([]*domain.Alert, error) {
	query := `
		SELECT id, level, endpoint_key, message, created_at, resolved_at, escalation_count
		FROM alerts
		WHERE resolved_at IS NULL
	`

	var rows []alertRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to load open alerts: %w", err)
	}

	alerts := make([]*domain.Alert, 0, len(rows))
	for _, row := range rows {
		alerts = append(alerts, &domain.Alert{
			ID:              row.ID,
			Level:           domain.AlertLevel(row.Level),
			EndpointKey:     row.EndpointKey,
			Message:         row.Message,
			CreatedAt:       row.CreatedAt,
			ResolvedAt:      row.ResolvedAt,
			EscalationCount: row.EscalationCount,
		})
	}
	return alerts, nil
}
