package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"leadpipeline/internal/models"
	"leadpipeline/internal/repositories"
)

func newTestEngine(t *testing.T) (*Engine, *repositories.Repositories) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, repositories.Migrate(db))
	repos := repositories.New(db)
	return NewEngine(repos, time.Minute), repos
}

func mustCreateLead(t *testing.T, repos *repositories.Repositories, email string) *models.Lead {
	t.Helper()
	lead := &models.Lead{
		Email:          email,
		Status:         models.LeadStatusNew,
		LifecycleStage: models.LifecycleLead,
		RoutingStatus:  models.RoutingStatusUnrouted,
	}
	require.NoError(t, repos.Leads.Create(context.Background(), lead))
	return lead
}

func TestProcessEventAppliesMatchingEventRule(t *testing.T) {
	engine, repos := newTestEngine(t)
	ctx := context.Background()

	lead := mustCreateLead(t, repos, "a@b.com")
	require.NoError(t, repos.Scoring.CreateRule(ctx, &models.ScoringRule{
		Slug:     "pricing-page-view",
		Category: models.CategoryBehavior,
		RuleType: "event",
		EventType: "page_view",
		MetadataPredicate: models.JSONMap{"page": "pricing"},
		Points:   10,
		IsActive: true,
	}))

	event := &models.Event{
		LeadID:     lead.ID,
		EventType:  "page_view",
		Source:     "website",
		OccurredAt: time.Now().UTC(),
		Metadata:   models.JSONMap{"page": "pricing"},
	}

	result, err := engine.ProcessEvent(ctx, event, lead)
	require.NoError(t, err)
	assert.Contains(t, result.RulesMatched, "pricing-page-view")
	assert.Equal(t, 10, result.PointsAdded[models.CategoryBehavior])
	assert.Equal(t, 10, result.NewScores[models.CategoryBehavior])
}

func TestProcessEventSkipsNonMatchingMetadata(t *testing.T) {
	engine, repos := newTestEngine(t)
	ctx := context.Background()

	lead := mustCreateLead(t, repos, "a@b.com")
	require.NoError(t, repos.Scoring.CreateRule(ctx, &models.ScoringRule{
		Slug:      "pricing-page-view",
		Category:  models.CategoryBehavior,
		RuleType:  "event",
		EventType: "page_view",
		MetadataPredicate: models.JSONMap{"page": "pricing"},
		Points:    10,
		IsActive:  true,
	}))

	event := &models.Event{
		LeadID:     lead.ID,
		EventType:  "page_view",
		Source:     "website",
		OccurredAt: time.Now().UTC(),
		Metadata:   models.JSONMap{"page": "about"},
	}

	result, err := engine.ProcessEvent(ctx, event, lead)
	require.NoError(t, err)
	assert.Empty(t, result.RulesMatched)
	assert.Equal(t, 0, result.NewScores[models.CategoryBehavior])
}

func TestProcessEventRespectsMaxPerDayCap(t *testing.T) {
	engine, repos := newTestEngine(t)
	ctx := context.Background()

	lead := mustCreateLead(t, repos, "a@b.com")
	maxPerDay := 1
	require.NoError(t, repos.Scoring.CreateRule(ctx, &models.ScoringRule{
		Slug:      "email-open",
		Category:  models.CategoryEngagement,
		RuleType:  "event",
		EventType: "email_open",
		Points:    5,
		MaxPerDay: &maxPerDay,
		IsActive:  true,
	}))

	event := &models.Event{LeadID: lead.ID, EventType: "email_open", Source: "lemlist", OccurredAt: time.Now().UTC()}

	first, err := engine.ProcessEvent(ctx, event, lead)
	require.NoError(t, err)
	assert.Contains(t, first.RulesMatched, "email-open")

	second, err := engine.ProcessEvent(ctx, event, lead)
	require.NoError(t, err)
	assert.Empty(t, second.RulesMatched, "second firing same day must be silently capped")
}

func TestDetectTierCrossing(t *testing.T) {
	tier, lifecycle := detectTierCrossing(30, 45, models.LifecycleLead)
	assert.Equal(t, models.TierWarm, tier)
	assert.Equal(t, models.LifecycleMQL, lifecycle)

	tier, lifecycle = detectTierCrossing(70, 90, models.LifecycleMQL)
	assert.Equal(t, models.TierHot, tier)
	assert.Equal(t, models.LifecycleSQL, lifecycle)

	tier, lifecycle = detectTierCrossing(10, 20, models.LifecycleLead)
	assert.Empty(t, tier)
	assert.Empty(t, lifecycle)
}

func TestDetectTierCrossingNeverDemotesLifecycle(t *testing.T) {
	_, lifecycle := detectTierCrossing(90, 95, models.LifecycleOpportunity)
	assert.Empty(t, lifecycle, "a lead already past MQL/SQL must not be reset by a later threshold crossing")
}
