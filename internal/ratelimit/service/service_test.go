package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"outpost/internal/ratelimit/config"
	"outpost/internal/ratelimit/models"
	"outpost/internal/ratelimit/store/failures"
	"outpost/internal/ratelimit/store/quota"
	"outpost/internal/ratelimit/store/window"
	dErrors "outpost/pkg/domain-errors"
	"outpost/pkg/requestcontext"
)

type EngineSuite struct {
	suite.Suite

	cfg    *config.Config
	quotas *quota.InMemoryQuotaStore
	engine *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.cfg = config.DefaultConfig()
	s.quotas = quota.New(s.cfg)

	engine, err := New(
		window.New(
			window.WithLimit(s.cfg.Global.LimitPerWindow),
			window.WithWindow(s.cfg.Global.Window),
		),
		s.quotas,
		failures.New(),
		WithConfig(s.cfg),
		WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))),
	)
	s.Require().NoError(err)
	s.engine = engine
}

func (s *EngineSuite) TestAdmissionWithHealthyQuotas() {
	err := s.engine.CheckAdmission(context.Background(), "/like/123", "user-1")
	s.NoError(err)
}

func (s *EngineSuite) TestGlobalLimitRejection() {
	ctx := context.Background()

	for i := 0; i < s.cfg.Global.LimitPerWindow; i++ {
		s.Require().NoError(s.engine.CheckAdmission(ctx, "/v2/recs/core", "user-1"))
	}

	err := s.engine.CheckAdmission(ctx, "/v2/recs/core", "user-1")
	s.Require().True(dErrors.HasCode(err, dErrors.CodeRateLimited))

	e := dErrors.AsError(err)
	s.Equal("global", e.Scope)
	s.False(e.ResetAt.IsZero())

	snap, snapErr := s.engine.Window(ctx)
	s.Require().NoError(snapErr)
	s.Equal(snap.WindowStart.Add(s.cfg.Global.Window), e.ResetAt)
}

func (s *EngineSuite) TestExhaustedQuotaBlocks() {
	now := time.Now()
	ctx := requestcontext.WithTime(context.Background(), now)
	resetAt := now.Add(time.Hour)

	s.Require().NoError(s.quotas.SetCategory(ctx, "user-1", models.CategoryLikes, 0, resetAt))

	err := s.engine.CheckAdmission(ctx, "/like/123", "user-1")
	s.Require().True(dErrors.HasCode(err, dErrors.CodeRateLimited))

	e := dErrors.AsError(err)
	s.Equal("likes", e.Scope)
	s.Equal(resetAt, e.ResetAt)
}

func (s *EngineSuite) TestExpiredQuotaResetAdmits() {
	now := time.Now()
	ctx := requestcontext.WithTime(context.Background(), now)

	// Remaining is zero but the reset time has passed, so the quota no longer
	// blocks.
	s.Require().NoError(s.quotas.SetCategory(ctx, "user-1", models.CategoryLikes, 0, now.Add(-time.Minute)))

	s.NoError(s.engine.CheckAdmission(ctx, "/like/123", "user-1"))
}

func (s *EngineSuite) TestQuotaRejectionSparesGlobalCapacity() {
	now := time.Now()
	ctx := requestcontext.WithTime(context.Background(), now)
	s.Require().NoError(s.quotas.SetCategory(ctx, "user-1", models.CategoryLikes, 0, now.Add(time.Hour)))

	before, err := s.engine.Window(ctx)
	s.Require().NoError(err)

	admErr := s.engine.CheckAdmission(ctx, "/like/123", "user-1")
	s.Require().True(dErrors.HasCode(admErr, dErrors.CodeRateLimited))

	after, err := s.engine.Window(ctx)
	s.Require().NoError(err)
	s.Equal(before.CurrentCount, after.CurrentCount,
		"a quota rejection must not consume global window capacity")
}

func (s *EngineSuite) TestCategoryMatchingIsExact() {
	now := time.Now()
	ctx := requestcontext.WithTime(context.Background(), now)

	// Exhaust likes only; super-likes stay open even though the path shares
	// the /like prefix.
	s.Require().NoError(s.quotas.SetCategory(ctx, "user-1", models.CategoryLikes, 0, now.Add(time.Hour)))

	s.Run("like blocked", func() {
		err := s.engine.CheckAdmission(ctx, "/like/123", "user-1")
		s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	})

	s.Run("super like admitted", func() {
		s.NoError(s.engine.CheckAdmission(ctx, "/like/123/super", "user-1"))
	})

	s.Run("non action paths never quota checked", func() {
		s.NoError(s.engine.CheckAdmission(ctx, "/like/123/profile", "user-1"))
	})
}

func (s *EngineSuite) TestAbsorbLikesSignal() {
	now := time.Now()
	ctx := requestcontext.WithTime(context.Background(), now)
	until := now.Add(2 * time.Hour).Truncate(time.Millisecond)

	body := map[string]any{
		"match":              false,
		"likes_remaining":    float64(3),
		"rate_limited_until": float64(until.UnixMilli()),
	}
	s.Require().NoError(s.engine.AbsorbUpstreamSignal(ctx, "/like/123", body, "user-1"))

	record, err := s.quotas.Get(ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(3, record.Likes.Remaining)
	s.Equal(until.UnixMilli(), record.Likes.ResetAt.UnixMilli())
}

func (s *EngineSuite) TestAbsorbSuperLikesSignal() {
	now := time.Now()
	ctx := requestcontext.WithTime(context.Background(), now)
	resetsAt := now.Add(4 * time.Hour).UTC().Truncate(time.Second)

	body := map[string]any{
		"super_likes": map[string]any{
			"remaining": float64(1),
			"resets_at": resetsAt.Format(time.RFC3339),
		},
	}
	s.Require().NoError(s.engine.AbsorbUpstreamSignal(ctx, "/like/123/super", body, "user-1"))

	record, err := s.quotas.Get(ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(1, record.SuperLikes.Remaining)
	s.Equal(resetsAt.Unix(), record.SuperLikes.ResetAt.Unix())
}

func (s *EngineSuite) TestAbsorbBoostSignal() {
	now := time.Now()
	ctx := requestcontext.WithTime(context.Background(), now)
	resetsAt := now.Add(time.Hour).UTC().Truncate(time.Second)

	body := map[string]any{
		"remaining": float64(0),
		"resets_at": resetsAt.Format(time.RFC3339),
	}
	s.Require().NoError(s.engine.AbsorbUpstreamSignal(ctx, "/boost", body, "user-1"))

	record, err := s.quotas.Get(ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(0, record.Boosts.Remaining)
}

func (s *EngineSuite) TestUnrecognizedSignalIgnored() {
	ctx := context.Background()

	body := map[string]any{"match": true}
	s.Require().NoError(s.engine.AbsorbUpstreamSignal(ctx, "/like/123", body, "user-1"))

	record, err := s.quotas.Get(ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(s.cfg.QuotaDefaults.Likes, record.Likes.Remaining,
		"a body without quota fields must not disturb the local estimate")
}

func (s *EngineSuite) TestMissingResetFallsBackToHorizon() {
	now := time.Now()
	ctx := requestcontext.WithTime(context.Background(), now)

	body := map[string]any{"likes_remaining": float64(10)}
	s.Require().NoError(s.engine.AbsorbUpstreamSignal(ctx, "/like/123", body, "user-1"))

	record, err := s.quotas.Get(ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(now.Add(s.cfg.QuotaDefaults.ResetHorizon), record.Likes.ResetAt)
}

func (s *EngineSuite) TestDecrementOnSuccess() {
	ctx := context.Background()

	record, err := s.quotas.Get(ctx, "user-1")
	s.Require().NoError(err)
	seeded := record.Likes.Remaining

	s.Require().NoError(s.engine.DecrementOnSuccess(ctx, "/like/123", "user-1"))

	record, err = s.quotas.Get(ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(seeded-1, record.Likes.Remaining)

	s.Run("non action endpoint is a noop", func() {
		s.Require().NoError(s.engine.DecrementOnSuccess(ctx, "/v2/recs/core", "user-1"))
		after, err := s.quotas.Get(ctx, "user-1")
		s.Require().NoError(err)
		s.Equal(seeded-1, after.Likes.Remaining)
	})
}

func (s *EngineSuite) TestTrackFailureThresholds() {
	ctx := context.Background()

	s.Run("below thresholds", func() {
		block, err := s.engine.TrackFailure(ctx, "user-1", "/like/1")
		s.Require().NoError(err)
		s.False(block)
	})

	s.Run("per minute threshold crossed", func() {
		var block bool
		var err error
		for i := 0; i < s.cfg.Failure.PerMinuteThreshold+1; i++ {
			block, err = s.engine.TrackFailure(ctx, "user-2", "/like/1")
			s.Require().NoError(err)
		}
		s.True(block)
	})

	s.Run("pairs counted independently", func() {
		for i := 0; i < s.cfg.Failure.PerMinuteThreshold; i++ {
			_, err := s.engine.TrackFailure(ctx, "user-3", "/like/1")
			s.Require().NoError(err)
		}
		block, err := s.engine.TrackFailure(ctx, "user-3", "/boost")
		s.Require().NoError(err)
		s.False(block, "failures on another endpoint start a fresh count")
	})
}
