package token

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outpost/internal/auth/models"
)

func record(userID string) *models.TokenRecord {
	return &models.TokenRecord{
		UserID:       userID,
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func TestGetAbsentReturnsNil(t *testing.T) {
	store := New()

	got, err := store.Get(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPutThenGet(t *testing.T) {
	store := New()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, record("user-1")))

	got, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "access", got.AccessToken)
}

func TestGetReturnsCopy(t *testing.T) {
	store := New()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, record("user-1")))

	got, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	got.AccessToken = "tampered"

	again, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "access", again.AccessToken)
}

func TestPutReplacesWholesale(t *testing.T) {
	store := New()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, record("user-1")))

	updated := record("user-1")
	updated.AccessToken = "access-2"
	require.NoError(t, store.Put(ctx, updated))

	got, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "access-2", got.AccessToken)
}

func TestDelete(t *testing.T) {
	store := New()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, record("user-1")))
	require.NoError(t, store.Delete(ctx, "user-1"))

	got, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.NoError(t, store.Delete(ctx, "ghost"))
}
