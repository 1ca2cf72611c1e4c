// Package tracker is the single source of truth for unsynced local changes.
// Every local mutation goes through it so that the edit is marked dirty
// and carries a strictly increasing version.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bizsync/internal/domain"
)

type Store interface {
	Query(ctx context.Context, category domain.Category, q domain.Query) ([]domain.Entity, error)
	Get(ctx context.Context, category domain.Category, id string) (domain.Entity, error)
	Upsert(ctx context.Context, category domain.Category, e domain.Entity) error
	Delete(ctx context.Context, category domain.Category, id string, updatedAt int64) error
	ClearDirty(ctx context.Context, category domain.Category, marks []domain.DirtyMark) (int64, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Tracker struct {
	store     Store
	txManager TransactionManager
	now       func() time.Time
	logger    *slog.Logger
}

func New(store Store, txManager TransactionManager, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:     store,
		txManager: txManager,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock replaces the wall clock used to version edits.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// nextVersion returns max(now, previous+1).
func (t *Tracker) nextVersion(previous int64) int64 {
	ts := t.now().UnixMilli()
	if ts <= previous {
		ts = previous + 1
	}
	return ts
}

// MarkDirty flags an existing record as locally modified.
func (t *Tracker) MarkDirty(ctx context.Context, category domain.Category, id string) error {
	return t.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		e, err := t.store.Get(ctx, category, id)
		if err != nil {
			return fmt.Errorf("get %s %s: %w", category, id, err)
		}
		meta := e.GetMeta()
		meta.Dirty = true
		meta.UpdatedAt = t.nextVersion(meta.UpdatedAt)
		return t.store.Upsert(ctx, category, e)
	})
}

// Create stores a new local record, assigning an ID when it has none.
func (t *Tracker) Create(ctx context.Context, category domain.Category, e domain.Entity) error {
	meta := e.GetMeta()
	if meta.OwnerID == "" {
		return errors.New("create: owner id is required")
	}
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}

	return t.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		var previous int64
		existing, err := t.store.Get(ctx, category, meta.ID)
		switch {
		case err == nil:
			previous = existing.GetMeta().UpdatedAt
		case !errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("get %s %s: %w", category, meta.ID, err)
		}

		meta.Dirty = true
		meta.Deleted = false
		meta.UpdatedAt = t.nextVersion(max(previous, meta.UpdatedAt))
		if err := t.store.Upsert(ctx, category, e); err != nil {
			return fmt.Errorf("create %s %s: %w", category, meta.ID, err)
		}

		t.logger.Debug("record created", "category", category, "id", meta.ID)
		return nil
	})
}

// Update replaces an existing record with a locally edited version.
func (t *Tracker) Update(ctx context.Context, category domain.Category, e domain.Entity) error {
	meta := e.GetMeta()

	return t.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		existing, err := t.store.Get(ctx, category, meta.ID)
		if err != nil {
			return fmt.Errorf("get %s %s: %w", category, meta.ID, err)
		}
		prev := existing.GetMeta()

		meta.OwnerID = prev.OwnerID
		meta.Dirty = true
		meta.UpdatedAt = t.nextVersion(max(prev.UpdatedAt, meta.UpdatedAt))
		if err := t.store.Upsert(ctx, category, e); err != nil {
			return fmt.Errorf("update %s %s: %w", category, meta.ID, err)
		}
		return nil
	})
}

// Delete tombstones a record and its children. The tombstone is dirty and
// propagates on the next push.
func (t *Tracker) Delete(ctx context.Context, category domain.Category, id string) error {
	return t.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		existing, err := t.store.Get(ctx, category, id)
		if err != nil {
			return fmt.Errorf("get %s %s: %w", category, id, err)
		}
		version := t.nextVersion(existing.GetMeta().UpdatedAt)
		if err := t.store.Delete(ctx, category, id, version); err != nil {
			return fmt.Errorf("delete %s %s: %w", category, id, err)
		}

		t.logger.Debug("record deleted", "category", category, "id", id)
		return nil
	})
}

// ListDirty snapshots the dirty records of one owner, tombstones included.
func (t *Tracker) ListDirty(ctx context.Context, category domain.Category, ownerID string) ([]domain.Entity, error) {
	return t.store.Query(ctx, category, domain.Query{
		OwnerID:        ownerID,
		DirtyOnly:      true,
		IncludeDeleted: true,
	})
}

// ClearDirty clears the dirty flag of records still at their snapshotted
// version and returns how many were cleared.
func (t *Tracker) ClearDirty(ctx context.Context, category domain.Category, marks []domain.DirtyMark) (int64, error) {
	n, err := t.store.ClearDirty(ctx, category, marks)
	if err != nil {
		return 0, err
	}
	if skipped := int64(len(marks)) - n; skipped > 0 {
		t.logger.Debug("records edited during push stay dirty", "category", category, "count", skipped)
	}
	return n, nil
}
