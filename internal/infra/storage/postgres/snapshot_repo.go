package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/feedguard/feedguard/internal/cache"
)

// SnapshotRepo implements storage.SnapshotRepository using PostgreSQL.
// It is the cold cache tier: durable payloads with no freshness bound.
type SnapshotRepo struct {
	db *DB
}

// NewSnapshotRepo creates a new PostgreSQL snapshot repository.
func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// GetSnapshot returns the cold payload for a key, or cache.ErrCacheMiss.
func (r *SnapshotRepo) GetSnapshot(ctx context.Context, key string) ([]byte, time.Time, error) {
	query := `
		SELECT payload, stored_at
		FROM payload_snapshots
		WHERE endpoint_key = $1
	`

	var payload []byte
	var storedAt time.Time
	err := r.db.QueryRowContext(ctx, query, key).Scan(&payload, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, cache.ErrCacheMiss
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return payload, storedAt, nil
}

// PutSnapshot overwrites the cold payload for a key.
func (r *SnapshotRepo) PutSnapshot(ctx context.Context, key string, payload []byte, storedAt time.Time) error {
	query := `
		INSERT INTO payload_snapshots (endpoint_key, payload, stored_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (endpoint_key) DO UPDATE SET
			payload = EXCLUDED.payload,
			stored_at = EXCLUDED.stored_at
	`
	_, err := r.db.ExecContext(ctx, query, key, payload, storedAt)
	if err != nil {
		return fmt.Errorf("failed to put snapshot: %w", err)
	}
	return nil
}
