package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCategoryForPath(t *testing.T) {
	tests := []struct {
		path     string
		category QuotaCategory
		matched  bool
	}{
		{"/like/123", CategoryLikes, true},
		{"/like/123/super", CategorySuperLikes, true},
		{"/boost", CategoryBoosts, true},
		{"like/123", CategoryLikes, true},

		// Exact segment matching: no substring or prefix confusion.
		{"/like/abc", "", false},
		{"/like/", "", false},
		{"/like", "", false},
		{"/like/123/super/extra", "", false},
		{"/like/123/other", "", false},
		{"/dislike/123", "", false},
		{"/boost/123", "", false},
		{"/superlike/123", "", false},
		{"/v2/recs/core", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			cat, ok := CategoryForPath(tt.path)
			assert.Equal(t, tt.matched, ok)
			assert.Equal(t, tt.category, cat)
		})
	}
}

func TestQuotaEnforced(t *testing.T) {
	now := time.Now()

	t.Run("exhausted with future reset blocks", func(t *testing.T) {
		q := CategoryQuota{Remaining: 0, ResetAt: now.Add(time.Hour)}
		assert.True(t, q.Enforced(now))
	})

	t.Run("exhausted with expired reset admits", func(t *testing.T) {
		q := CategoryQuota{Remaining: 0, ResetAt: now.Add(-time.Minute)}
		assert.False(t, q.Enforced(now))
	})

	t.Run("remaining uses admit regardless of reset", func(t *testing.T) {
		q := CategoryQuota{Remaining: 2, ResetAt: now.Add(time.Hour)}
		assert.False(t, q.Enforced(now))
	})
}

func TestQuotaRecordCategory(t *testing.T) {
	record := QuotaRecord{
		Likes:      CategoryQuota{Remaining: 1},
		SuperLikes: CategoryQuota{Remaining: 2},
		Boosts:     CategoryQuota{Remaining: 3},
	}

	assert.Equal(t, 1, record.Category(CategoryLikes).Remaining)
	assert.Equal(t, 2, record.Category(CategorySuperLikes).Remaining)
	assert.Equal(t, 3, record.Category(CategoryBoosts).Remaining)
	assert.Zero(t, record.Category("unknown").Remaining)
}
