package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"bizsync/internal/domain"
)

// CheckpointStore persists one "last synced at" watermark per owner and
// category.
type CheckpointStore struct {
	db *sqlx.DB
}

func NewCheckpointStore(db *sqlx.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// Get returns 0 for a category that was never synced.
func (s *CheckpointStore) Get(ctx context.Context, ownerID string, category domain.Category) (int64, error) {
	query := s.db.Rebind(`
		SELECT last_synced_at
		FROM sync_checkpoints
		WHERE owner_id = ? AND category = ?`)

	var ts int64
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &ts, query, ownerID, string(category))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return ts, nil
}

// Set stores ts unless the current watermark is already at or above it.
// It reports whether the watermark moved.
func (s *CheckpointStore) Set(ctx context.Context, ownerID string, category domain.Category, ts int64) (bool, error) {
	query := s.db.Rebind(`
		INSERT INTO sync_checkpoints (owner_id, category, last_synced_at)
		VALUES (?, ?, ?)
		ON CONFLICT (owner_id, category) DO UPDATE SET
			last_synced_at = excluded.last_synced_at
		WHERE sync_checkpoints.last_synced_at < excluded.last_synced_at`)

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, ownerID, string(category), ts)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Clear resets the given categories, or every category when none is given.
func (s *CheckpointStore) Clear(ctx context.Context, ownerID string, categories ...domain.Category) error {
	exec := GetExecutor(ctx, s.db)

	if len(categories) == 0 {
		_, err := exec.ExecContext(ctx, s.db.Rebind(`DELETE FROM sync_checkpoints WHERE owner_id = ?`), ownerID)
		return err
	}

	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}

	query, args, err := sqlx.In(`DELETE FROM sync_checkpoints WHERE owner_id = ? AND category IN (?)`, ownerID, names)
	if err != nil {
		return err
	}
	_, err = exec.ExecContext(ctx, s.db.Rebind(query), args...)
	return err
}

func (s *CheckpointStore) List(ctx context.Context, ownerID string) (map[domain.Category]int64, error) {
	var rows []struct {
		Category     string `db:"category"`
		LastSyncedAt int64  `db:"last_synced_at"`
	}

	query := s.db.Rebind(`SELECT category, last_synced_at FROM sync_checkpoints WHERE owner_id = ?`)
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query, ownerID); err != nil {
		return nil, err
	}

	result := make(map[domain.Category]int64, len(rows))
	for _, r := range rows {
		result[domain.Category(r.Category)] = r.LastSyncedAt
	}
	return result, nil
}
