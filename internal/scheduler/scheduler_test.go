package scheduler

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizsync/internal/domain"
)

type countingSyncer struct {
	calls atomic.Int32
	err   error
}

func (c *countingSyncer) PerformSync(ctx context.Context, scope domain.Category) (*domain.SyncReport, error) {
	c.calls.Add(1)
	if scope != domain.CategoryAll {
		return nil, domain.ErrNotFound
	}
	if _, ok := ctx.Deadline(); !ok {
		return nil, domain.ErrNotFound
	}
	if c.err != nil {
		return nil, c.err
	}
	return &domain.SyncReport{}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestScheduler_RunsOnStartAndStops(t *testing.T) {
	syncer := &countingSyncer{}
	sched := NewScheduler(syncer, Config{Schedule: "@every 1h", Timeout: time.Second, RunOnStart: true}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Start(ctx) }()

	require.Eventually(t, func() bool { return syncer.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_TicksOnSchedule(t *testing.T) {
	syncer := &countingSyncer{err: domain.ErrSyncInProgress}
	sched := NewScheduler(syncer, Config{Schedule: "@every 1s", Timeout: time.Second}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sched.Start(ctx) }()

	require.Eventually(t, func() bool { return syncer.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	sched := NewScheduler(&countingSyncer{}, Config{Schedule: "not a schedule"}, testLogger())
	assert.Error(t, sched.Start(context.Background()))
}
