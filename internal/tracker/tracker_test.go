package tracker

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizsync/internal/domain"
	"bizsync/internal/storage/sqlstore"
)

type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time { return c.t }

func newTestTracker(t *testing.T, clock *fixedClock) (*Tracker, *sqlstore.Store) {
	t.Helper()
	db, err := sqlstore.Open(context.Background(), sqlstore.Config{Driver: sqlstore.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := sqlstore.NewStore(db)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	tr := New(store, sqlstore.NewTransactionManager(db), logger).WithClock(clock.now)
	return tr, store
}

func TestTracker_CreateAssignsIDAndMarksDirty(t *testing.T) {
	ctx := context.Background()
	clock := &fixedClock{t: time.UnixMilli(1000)}
	tr, store := newTestTracker(t, clock)

	o := &domain.Offering{Meta: domain.Meta{OwnerID: "U1"}, Name: "Rice"}
	require.NoError(t, tr.Create(ctx, domain.CategoryOfferings, o))

	_, err := uuid.Parse(o.ID)
	require.NoError(t, err)

	got, err := store.Get(ctx, domain.CategoryOfferings, o.ID)
	require.NoError(t, err)
	assert.True(t, got.GetMeta().Dirty)
	assert.Equal(t, int64(1000), got.GetMeta().UpdatedAt)
}

func TestTracker_CreateRequiresOwner(t *testing.T) {
	tr, _ := newTestTracker(t, &fixedClock{t: time.UnixMilli(1)})
	err := tr.Create(context.Background(), domain.CategoryBills, &domain.Bill{})
	assert.Error(t, err)
}

func TestTracker_VersionsStrictlyIncrease(t *testing.T) {
	ctx := context.Background()
	clock := &fixedClock{t: time.UnixMilli(1000)}
	tr, store := newTestTracker(t, clock)

	b := &domain.Bill{Meta: domain.Meta{ID: "b1", OwnerID: "U1"}, CustomerName: "Ada"}
	require.NoError(t, tr.Create(ctx, domain.CategoryBills, b))

	// the clock does not move between edits
	require.NoError(t, tr.MarkDirty(ctx, domain.CategoryBills, "b1"))
	got, err := store.Get(ctx, domain.CategoryBills, "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(1001), got.GetMeta().UpdatedAt)

	// the clock went backwards
	clock.t = time.UnixMilli(500)
	edited := &domain.Bill{Meta: domain.Meta{ID: "b1"}, CustomerName: "Ada Lovelace"}
	require.NoError(t, tr.Update(ctx, domain.CategoryBills, edited))

	got, err = store.Get(ctx, domain.CategoryBills, "b1")
	require.NoError(t, err)
	bill := got.(*domain.Bill)
	assert.Equal(t, int64(1002), bill.UpdatedAt)
	assert.Equal(t, "U1", bill.OwnerID)
	assert.Equal(t, "Ada Lovelace", bill.CustomerName)
	assert.True(t, bill.Dirty)

	clock.t = time.UnixMilli(5000)
	require.NoError(t, tr.MarkDirty(ctx, domain.CategoryBills, "b1"))
	got, err = store.Get(ctx, domain.CategoryBills, "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), got.GetMeta().UpdatedAt)
}

func TestTracker_UpdateMissing(t *testing.T) {
	tr, _ := newTestTracker(t, &fixedClock{t: time.UnixMilli(1)})
	err := tr.Update(context.Background(), domain.CategoryBills, &domain.Bill{Meta: domain.Meta{ID: "nope"}})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = tr.MarkDirty(context.Background(), domain.CategoryBills, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTracker_DeleteTombstonesAndStaysDirty(t *testing.T) {
	ctx := context.Background()
	clock := &fixedClock{t: time.UnixMilli(100)}
	tr, store := newTestTracker(t, clock)

	o := &domain.Offering{
		Meta:     domain.Meta{ID: "o1", OwnerID: "U1", UpdatedAt: 100},
		Variants: []domain.Variant{{ID: "v1", Name: "Small"}},
	}
	require.NoError(t, store.Upsert(ctx, domain.CategoryOfferings, o))

	require.NoError(t, tr.Delete(ctx, domain.CategoryOfferings, "o1"))

	dirty, err := tr.ListDirty(ctx, domain.CategoryOfferings, "U1")
	require.NoError(t, err)
	require.Len(t, dirty, 1)

	deleted := dirty[0].(*domain.Offering)
	assert.True(t, deleted.Deleted)
	assert.Equal(t, int64(101), deleted.UpdatedAt)
	require.Len(t, deleted.Variants, 1)
	assert.True(t, deleted.Variants[0].Deleted)

	visible, err := store.Query(ctx, domain.CategoryOfferings, domain.Query{OwnerID: "U1"})
	require.NoError(t, err)
	assert.Empty(t, visible)
}

func TestTracker_ClearDirtyKeepsConcurrentEdits(t *testing.T) {
	ctx := context.Background()
	clock := &fixedClock{t: time.UnixMilli(100)}
	tr, _ := newTestTracker(t, clock)

	for _, id := range []string{"c1", "c2"} {
		require.NoError(t, tr.Create(ctx, domain.CategoryCategories,
			&domain.CatalogCategory{Meta: domain.Meta{ID: id, OwnerID: "U1"}, Name: id}))
	}

	snapshot, err := tr.ListDirty(ctx, domain.CategoryCategories, "U1")
	require.NoError(t, err)
	require.Len(t, snapshot, 2)

	clock.t = time.UnixMilli(200)
	require.NoError(t, tr.MarkDirty(ctx, domain.CategoryCategories, "c2"))

	n, err := tr.ClearDirty(ctx, domain.CategoryCategories, domain.MarksOf(snapshot))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	still, err := tr.ListDirty(ctx, domain.CategoryCategories, "U1")
	require.NoError(t, err)
	require.Len(t, still, 1)
	assert.Equal(t, "c2", still[0].GetMeta().ID)
	assert.Equal(t, int64(200), still[0].GetMeta().UpdatedAt)
}

func TestTracker_ListDirtyScopedByOwner(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker(t, &fixedClock{t: time.UnixMilli(10)})

	require.NoError(t, tr.Create(ctx, domain.CategoryDeliveries, &domain.Delivery{Meta: domain.Meta{OwnerID: "U1"}}))
	require.NoError(t, tr.Create(ctx, domain.CategoryDeliveries, &domain.Delivery{Meta: domain.Meta{OwnerID: "U2"}}))

	dirty, err := tr.ListDirty(ctx, domain.CategoryDeliveries, "U1")
	require.NoError(t, err)
	require.Len(t, dirty, 1)
	assert.Equal(t, "U1", dirty[0].GetMeta().OwnerID)
}
