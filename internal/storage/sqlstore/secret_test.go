package sqlstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizsync/internal/domain"
)

func TestSecretStore(t *testing.T) {
	ctx := context.Background()
	store := NewSecretStore(newTestDB(t))

	_, err := store.Get(ctx, "token")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Set(ctx, "token", "abc"))
	require.NoError(t, store.Set(ctx, "token", "def"))
	require.NoError(t, store.Set(ctx, "owner_id", "U1"))

	v, err := store.Get(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, "def", v)

	require.NoError(t, store.Delete(ctx, "token"))
	_, err = store.Get(ctx, "token")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Clear(ctx))
	_, err = store.Get(ctx, "owner_id")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
