package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"kitchen-sync/internal/common/db"
)

// ErrNotFound reports that no snapshot exists yet under the key. A fresh
// venue starts empty; the first flush creates the row.
var ErrNotFound = errors.New("snapshot not found")

// Snapshots is the durable medium behind the bridge: one keyed record,
// rewritten wholesale on every local mutation. The payload stays opaque
// bytes here; parsing (and tolerance of malformed payloads) belongs to the
// bridge.
type Snapshots interface {
	Save(ctx context.Context, key, originID string, revision uint64, payload []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
}

type snapshotsPG struct {
	conn *db.Conn
}

func NewSnapshotsPG(conn *db.Conn) Snapshots { return &snapshotsPG{conn: conn} }

// EnsureSchema creates the snapshot table. Idempotent, run at startup.
func EnsureSchema(ctx context.Context, conn *db.Conn) error {
	_, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS pos_snapshots (
			key        TEXT PRIMARY KEY,
			origin_id  TEXT        NOT NULL,
			revision   BIGINT      NOT NULL,
			payload    JSONB       NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure pos_snapshots schema: %w", err)
	}
	return nil
}

func (r *snapshotsPG) Save(ctx context.Context, key, originID string, revision uint64, payload []byte) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO pos_snapshots (key, origin_id, revision, payload, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (key) DO UPDATE
		SET origin_id = EXCLUDED.origin_id,
		    revision = EXCLUDED.revision,
		    payload = EXCLUDED.payload,
		    updated_at = NOW()
	`, key, originID, int64(revision), payload)
	if err != nil {
		return fmt.Errorf("save snapshot %q: %w", key, err)
	}
	return nil
}

func (r *snapshotsPG) Load(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := r.conn.QueryRow(ctx, `SELECT payload FROM pos_snapshots WHERE key = $1`, key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %q: %w", key, err)
	}
	return payload, nil
}
