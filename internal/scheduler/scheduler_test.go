package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"leadpipeline/internal/config"
	"leadpipeline/internal/models"
	"leadpipeline/internal/notify"
	"leadpipeline/internal/repositories"
)

func newTestScheduler(t *testing.T) (*Scheduler, *repositories.Repositories) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, repositories.Migrate(db))
	repos := repositories.New(db)
	cfg := &config.Config{}
	sched := New(repos, notify.NewClient(cfg), nil, cfg)
	return sched, repos
}

func TestRunDecayExpiresAndRecomputesScores(t *testing.T) {
	sched, repos := newTestScheduler(t)
	ctx := context.Background()

	lead := &models.Lead{Email: "a@b.com", Status: models.LeadStatusNew, LifecycleStage: models.LifecycleLead, RoutingStatus: models.RoutingStatusUnrouted}
	require.NoError(t, repos.Leads.Create(ctx, lead))

	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repos.Scoring.CreateHistoryEntry(ctx, &models.ScoreHistoryEntry{
		LeadID: lead.ID, Category: models.CategoryBehavior, PointsChange: 10, NewTotal: 10, ExpiresAt: &past,
	}))
	future := time.Now().UTC().Add(time.Hour)
	require.NoError(t, repos.Scoring.CreateHistoryEntry(ctx, &models.ScoreHistoryEntry{
		LeadID: lead.ID, Category: models.CategoryBehavior, PointsChange: 20, NewTotal: 30, ExpiresAt: &future,
	}))

	result, err := sched.RunDecay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ExpiredCount)
	assert.Equal(t, 1, result.LeadsUpdated)

	reloaded, err := repos.Leads.FindByID(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, reloaded.BehaviorScore, "only the non-expired entry should still count")
}

func TestRunDecayNoopWhenNothingExpired(t *testing.T) {
	sched, _ := newTestScheduler(t)
	result, err := sched.RunDecay(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.ExpiredCount)
	assert.Zero(t, result.LeadsUpdated)
}

func TestRunDigestAggregatesLast24h(t *testing.T) {
	sched, repos := newTestScheduler(t)
	ctx := context.Background()

	lead := &models.Lead{Email: "a@b.com", Status: models.LeadStatusNew, LifecycleStage: models.LifecycleLead, RoutingStatus: models.RoutingStatusUnrouted}
	require.NoError(t, repos.Leads.Create(ctx, lead))

	result, err := sched.RunDigest(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.NewLeads)
}

func TestDailySpecConvertsLocalTime(t *testing.T) {
	spec, err := dailySpec("03:30")
	require.NoError(t, err)
	assert.Equal(t, "30 3 * * *", spec)

	_, err = dailySpec("not-a-time")
	assert.Error(t, err)
}

func TestFormatDigestIncludesTopSources(t *testing.T) {
	msg := formatDigest(&DigestResult{
		NewLeads: 5, HotLeads: 2, DealsCreated: 1, DealsWon: 0, OpenPipelineValue: 1200.5,
		TopSources: []repositories.SourceCount{{Source: "webinar", Count: 3}},
	})
	assert.Contains(t, msg, "5 new leads")
	assert.Contains(t, msg, "webinar (3)")
}
