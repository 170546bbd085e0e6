package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/feedguard/feedguard/internal/core/domain"
)

// KnowledgeRepo implements storage.KnowledgeRepository using PostgreSQL.
// One row per (scope, source, pattern signature).
type KnowledgeRepo struct {
	db *DB
}

// NewKnowledgeRepo creates a new PostgreSQL knowledge repository.
func NewKnowledgeRepo(db *DB) *KnowledgeRepo {
	return &KnowledgeRepo{db: db}
}

// Upsert overwrites one knowledge entry.
func (r *KnowledgeRepo) Upsert(ctx context.Context, e domain.KnowledgeEntry) error {
	query := `
		INSERT INTO knowledge_entries (scope, source, strategy_id, kind, status_bucket, confidence, sample_count, success_count, failure_count, avg_fix_latency_ms, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (scope, source, strategy_id, kind, status_bucket) DO UPDATE SET
			confidence = EXCLUDED.confidence,
			sample_count = EXCLUDED.sample_count,
			success_count = EXCLUDED.success_count,
			failure_count = EXCLUDED.failure_count,
			avg_fix_latency_ms = EXCLUDED.avg_fix_latency_ms,
			last_updated = EXCLUDED.last_updated
	`
	_, err := r.db.ExecContext(
		ctx,
		query,
		string(e.Scope),
		e.Source,
		e.Signature.StrategyID,
		string(e.Signature.Kind),
		string(e.Signature.StatusBucket),
		e.Confidence,
		e.SampleCount,
		e.SuccessCount,
		e.FailureCount,
		e.AvgFixLatency.Milliseconds(),
		e.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert knowledge entry: %w", err)
	}
	return nil
}

type knowledgeRow struct {
	Scope           string    `db:"scope"`
	Source          string    `db:"source"`
	StrategyID      string    `db:"strategy_id"`
	Kind            string    `db:"kind"`
	StatusBucket    string    `db:"status_bucket"`
	Confidence      float64   `db:"confidence"`
	SampleCount     int64     `db:"sample_count"`
	SuccessCount    int64     `db:"success_count"`
	FailureCount    int64     `db:"failure_count"`
	AvgFixLatencyMS int64     `db:"avg_fix_latency_ms"`
	LastUpdated     time.Time `db:"last_updated"`
}

// GetAll returns every persisted knowledge entry.
func (r *KnowledgeRepo) GetAll(ctx context.Context) ([]domain.KnowledgeEntry, error) {
	query := `
		SELECT scope, source, strategy_id, kind, status_bucket, confidence, sample_count, success_count, failure_count, avg_fix_latency_ms, last_updated
		FROM knowledge_entries
	`

	var rows []knowledgeRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to load knowledge entries: %w", err)
	}

	entries := make([]domain.KnowledgeEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, domain.KnowledgeEntry{
			Scope:  domain.KnowledgeScope(row.Scope),
			Source: row.Source,
			Signature: domain.PatternSignature{
				StrategyID:   row.StrategyID,
				Kind:         domain.ErrorKind(row.Kind),
				StatusBucket: domain.HealthStatus(row.StatusBucket),
			},
			Confidence:    row.Confidence,
			SampleCount:   row.SampleCount,
			SuccessCount:  row.SuccessCount,
			FailureCount:  row.FailureCount,
			AvgFixLatency: time.Duration(row.AvgFixLatencyMS) * time.Millisecond,
			LastUpdated:   row.LastUpdated,
		})
	}
	return entries, nil
}
