package service

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizsync/internal/domain"
	"bizsync/internal/storage/sqlstore"
)

func newSessionService(t *testing.T) (*SessionService, *sqlstore.CheckpointStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := sqlstore.Open(context.Background(), sqlstore.Config{Driver: sqlstore.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	checkpoints := sqlstore.NewCheckpointStore(db)
	svc := NewSessionService(sqlstore.NewSecretStore(db), checkpoints, sqlstore.NewTransactionManager(db), logger)
	return svc, checkpoints
}

func TestSessionService_LoginAndSession(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSessionService(t)

	_, err := svc.Session(ctx)
	assert.ErrorIs(t, err, domain.ErrAuthRequired)

	require.NoError(t, svc.Login(ctx, " U1 ", "tok"))

	session, err := svc.Session(ctx)
	require.NoError(t, err)
	assert.Equal(t, &domain.Session{OwnerID: "U1", Token: "tok"}, session)
}

func TestSessionService_LoginValidates(t *testing.T) {
	svc, _ := newSessionService(t)

	assert.ErrorIs(t, svc.Login(context.Background(), "", "tok"), domain.ErrAuthRequired)
	assert.ErrorIs(t, svc.Login(context.Background(), "U1", " "), domain.ErrAuthRequired)
}

func TestSessionService_AccountSwitchResetsCheckpoints(t *testing.T) {
	ctx := context.Background()
	svc, checkpoints := newSessionService(t)

	require.NoError(t, svc.Login(ctx, "U1", "tok"))
	_, err := checkpoints.Set(ctx, "U2", domain.CategoryBills, 50)
	require.NoError(t, err)
	_, err = checkpoints.Set(ctx, "U1", domain.CategoryBills, 70)
	require.NoError(t, err)

	// token refresh for the same owner keeps progress
	require.NoError(t, svc.Login(ctx, "U1", "tok2"))
	ts, err := checkpoints.Get(ctx, "U1", domain.CategoryBills)
	require.NoError(t, err)
	assert.Equal(t, int64(70), ts)

	require.NoError(t, svc.Login(ctx, "U2", "tok3"))
	ts, err = checkpoints.Get(ctx, "U2", domain.CategoryBills)
	require.NoError(t, err)
	assert.Zero(t, ts)
}

func TestSessionService_Logout(t *testing.T) {
	ctx := context.Background()
	svc, checkpoints := newSessionService(t)

	require.NoError(t, svc.Login(ctx, "U1", "tok"))
	_, err := checkpoints.Set(ctx, "U1", domain.CategoryOfferings, 99)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx))

	_, err = svc.Session(ctx)
	assert.ErrorIs(t, err, domain.ErrAuthRequired)

	list, err := checkpoints.List(ctx, "U1")
	require.NoError(t, err)
	assert.Empty(t, list)

	// logging out twice is harmless
	assert.NoError(t, svc.Logout(ctx))
}
