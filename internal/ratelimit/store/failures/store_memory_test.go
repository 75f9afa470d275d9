package failures

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outpost/pkg/requestcontext"
)

func TestRecordCountsPerPair(t *testing.T) {
	store := New()
	ctx := context.Background()

	inWindow, inLastMinute, err := store.Record(ctx, "user-1", "/like/1")
	require.NoError(t, err)
	assert.Equal(t, 1, inWindow)
	assert.Equal(t, 1, inLastMinute)

	inWindow, _, err = store.Record(ctx, "user-1", "/like/1")
	require.NoError(t, err)
	assert.Equal(t, 2, inWindow)
}

func TestPairsAreIndependent(t *testing.T) {
	store := New()
	ctx := context.Background()

	_, _, err := store.Record(ctx, "user-1", "/like/1")
	require.NoError(t, err)
	_, _, err = store.Record(ctx, "user-1", "/like/1")
	require.NoError(t, err)

	// A different endpoint for the same user starts its own count.
	inWindow, _, err := store.Record(ctx, "user-1", "/boost")
	require.NoError(t, err)
	assert.Equal(t, 1, inWindow)

	// A different identifier on the same endpoint starts its own count.
	inWindow, _, err = store.Record(ctx, "user-2", "/like/1")
	require.NoError(t, err)
	assert.Equal(t, 1, inWindow)
}

func TestOldOccurrencesExpire(t *testing.T) {
	store := New(WithRetention(time.Hour))
	base := time.Now()

	ctx := requestcontext.WithTime(context.Background(), base)
	for i := 0; i < 5; i++ {
		_, _, err := store.Record(ctx, "user-1", "/like/1")
		require.NoError(t, err)
	}

	// Past the retention window the count implicitly resets.
	later := requestcontext.WithTime(context.Background(), base.Add(2*time.Hour))
	inWindow, inLastMinute, err := store.Record(later, "user-1", "/like/1")
	require.NoError(t, err)
	assert.Equal(t, 1, inWindow)
	assert.Equal(t, 1, inLastMinute)
}

func TestLastMinuteCountIsSubsetOfWindow(t *testing.T) {
	store := New(WithRetention(time.Hour))
	base := time.Now()

	early := requestcontext.WithTime(context.Background(), base)
	for i := 0; i < 3; i++ {
		_, _, err := store.Record(early, "user-1", "/like/1")
		require.NoError(t, err)
	}

	// Thirty minutes later the early failures still count toward the window
	// but not toward the last minute.
	late := requestcontext.WithTime(context.Background(), base.Add(30*time.Minute))
	inWindow, inLastMinute, err := store.Record(late, "user-1", "/like/1")
	require.NoError(t, err)
	assert.Equal(t, 4, inWindow)
	assert.Equal(t, 1, inLastMinute)
}

func TestGetReturnsCopyOrNil(t *testing.T) {
	store := New()
	ctx := context.Background()

	record, err := store.Get(ctx, "ghost", "/like/1")
	require.NoError(t, err)
	assert.Nil(t, record)

	_, _, err = store.Record(ctx, "user-1", "/like/1")
	require.NoError(t, err)

	record, err = store.Get(ctx, "user-1", "/like/1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, 1, record.FailureCount)

	record.FailureCount = 99
	again, err := store.Get(ctx, "user-1", "/like/1")
	require.NoError(t, err)
	assert.Equal(t, 1, again.FailureCount)
}
