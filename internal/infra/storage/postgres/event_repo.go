package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/feedguard/feedguard/internal/core/domain"
)

// ErrorEventRepo implements storage.ErrorEventRepository using PostgreSQL.
type ErrorEventRepo struct {
	db *DB
}

// NewErrorEventRepo creates a new PostgreSQL error event repository.
func NewErrorEventRepo(db *DB) *ErrorEventRepo {
	return &ErrorEventRepo{db: db}
}

// Add appends a new error event.
func (r *ErrorEventRepo) Add(ctx context.Context, ev *domain.ErrorEvent) error {
	query := `
		INSERT INTO error_events (id, endpoint_key, source, kind, detail, status_code, latency_ms, retry_count, resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(
		ctx,
		query,
		ev.ID,
		ev.EndpointKey,
		ev.Source,
		string(ev.Kind),
		ev.Detail,
		ev.StatusCode,
		ev.Latency.Milliseconds(),
		ev.RetryCount,
		ev.Resolved,
		ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add error event: %w", err)
	}
	return nil
}

// MarkResolved records the winning strategy for an event.
func (r *ErrorEventRepo) MarkResolved(ctx context.Context, id, strategyID string, retryCount int) error {
	query := `
		UPDATE error_events
		SET resolved = TRUE, strategy_used = $2, retry_count = $3
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, strategyID, retryCount)
	return err
}

// SetRetryCount updates the attempt counter for an unresolved event.
func (r *ErrorEventRepo) SetRetryCount(ctx context.Context, id string, retryCount int) error {
	query := `
		UPDATE error_events
		SET retry_count = $2
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, retryCount)
	return err
}

type eventRow struct {
	ID           string    `db:"id"`
	EndpointKey  string    `db:"endpoint_key"`
	Source       string    `db:"source"`
	Kind         string    `db:"kind"`
	Detail       string    `db:"detail"`
	StatusCode   int       `db:"status_code"`
	LatencyMS    int64     `db:"latency_ms"`
	RetryCount   int       `db:"retry_count"`
	Resolved     bool      `db:"resolved"`
	StrategyUsed *string   `db:"strategy_used"`
	CreatedAt    time.Time `db:"created_at"`
}

// ListByEndpoint returns events for one endpoint in a time range, newest first.
func (r *ErrorEventRepo) ListByEndpoint(ctx context.Context, endpointKey string, from, to time.Time) ([]*domain.ErrorEvent, error) {
	query := `
		SELECT id, endpoint_key, source, kind, detail, status_code, latency_ms, retry_count, resolved, strategy_used, created_at
		FROM error_events
		WHERE endpoint_key = $1 AND created_at BETWEEN $2 AND $3
		ORDER BY created_at DESC
	`

	var rows []eventRow
	if err := r.db.SelectContext(ctx, &rows, query, endpointKey, from, to); err != nil {
		return nil, fmt.Errorf("failed to list error events: %w", err)
	}

	events := make([]*domain.ErrorEvent, 0, len(rows))
	for _, row := range rows {
		ev := &domain.ErrorEvent{
			ID:          row.ID,
			EndpointKey: row.EndpointKey,
			Source:      row.Source,
			Kind:        domain.ErrorKind(row.Kind),
			Detail:      row.Detail,
			StatusCode:  row.StatusCode,
			Latency:     time.Duration(row.LatencyMS) * time.Millisecond,
			RetryCount:  row.RetryCount,
			Resolved:    row.Resolved,
			CreatedAt:   row.CreatedAt,
		}
		if row.StrategyUsed != nil {
			ev.StrategyUsed = *row.StrategyUsed
		}
		events = append(events, ev)
	}
	return events, nil
}

// CountUnresolved returns the number of unresolved events for one endpoint.
func (r *ErrorEventRepo) CountUnresolved(ctx context.Context, endpointKey string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM error_events
		WHERE endpoint_key = $1 AND resolved = FALSE
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query, endpointKey); err != nil {
		return 0, fmt.Errorf("failed to count unresolved events: %w", err)
	}
	return count, nil
}
