package intent

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

func newTestDetector(t *testing.T) (*Detector, *repositories.Repositories) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, repositories.Migrate(db))
	repos := repositories.New(db)
	return NewDetector(repos, time.Minute), repos
}

func TestComputeSingleIntentIsFullyConfidentAndRoutable(t *testing.T) {
	primary, confidence, routable, conflict := Compute(map[string]int{"pricing": 100})
	assert.Equal(t, "pricing", primary)
	assert.Equal(t, 100, confidence)
	assert.True(t, routable)
	assert.False(t, conflict)
}

func TestComputeTiedIntentsAreAConflict(t *testing.T) {
	primary, confidence, routable, conflict := Compute(map[string]int{"pricing": 50, "competitor": 50})
	assert.Equal(t, "competitor", primary, "lexicographic tiebreak favors the alphabetically first intent")
	assert.Equal(t, 50, confidence)
	assert.True(t, conflict)
	assert.False(t, routable)
}

func TestComputeLowVolumeSignalIsPenalized(t *testing.T) {
	_, confidenceHigh, _, _ := Compute(map[string]int{"pricing": 100})
	_, confidenceLow, routable, conflict := Compute(map[string]int{"pricing": 20})
	assert.Less(t, confidenceLow, confidenceHigh)
	assert.Equal(t, 80, confidenceLow)
	assert.True(t, routable)
	assert.False(t, conflict)
}

func TestComputeEmptySummary(t *testing.T) {
	primary, confidence, routable, conflict := Compute(map[string]int{})
	assert.Empty(t, primary)
	assert.Zero(t, confidence)
	assert.False(t, routable)
	assert.False(t, conflict)
}

func TestProcessEventAccumulatesSignalsAndSetsPrimaryIntent(t *testing.T) {
	detector, repos := newTestDetector(t)
	ctx := context.Background()

	lead := &models.Lead{Email: "a@b.com", Status: models.LeadStatusNew, LifecycleStage: models.LifecycleLead, RoutingStatus: models.RoutingStatusUnrouted}
	require.NoError(t, repos.Leads.Create(ctx, lead))

	require.NoError(t, repos.Intent.CreateRule(ctx, &models.IntentRule{
		TargetIntent:      "pricing_research",
		TriggerType:       "event",
		EventType:         "page_view",
		MetadataPredicate: models.JSONMap{"page": "pricing"},
		ConfidencePoints:  80,
		IsActive:          true,
	}))

	event := &models.Event{
		LeadID:     lead.ID,
		EventType:  "page_view",
		Source:     "website",
		OccurredAt: time.Now().UTC(),
		Metadata:   models.JSONMap{"page": "pricing"},
	}

	result, err := detector.ProcessEvent(ctx, event, lead)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SignalsAdded)
	assert.Equal(t, "pricing_research", result.PrimaryIntent)
	assert.True(t, result.Routable)
	require.NotNil(t, lead.PrimaryIntent)
	assert.Equal(t, "pricing_research", *lead.PrimaryIntent)
}

func TestProcessEventIgnoresRuleWithDifferentEventType(t *testing.T) {
	detector, repos := newTestDetector(t)
	ctx := context.Background()

	lead := &models.Lead{Email: "a@b.com", Status: models.LeadStatusNew, LifecycleStage: models.LifecycleLead, RoutingStatus: models.RoutingStatusUnrouted}
	require.NoError(t, repos.Leads.Create(ctx, lead))

	require.NoError(t, repos.Intent.CreateRule(ctx, &models.IntentRule{
		TargetIntent: "demo_request",
		TriggerType:  "event",
		EventType:    "demo_requested",
		ConfidencePoints: 90,
		IsActive:     true,
	}))

	event := &models.Event{LeadID: lead.ID, EventType: "page_view", Source: "website", OccurredAt: time.Now().UTC()}

	result, err := detector.ProcessEvent(ctx, event, lead)
	require.NoError(t, err)
	assert.Zero(t, result.SignalsAdded)
	assert.Empty(t, result.PrimaryIntent)
}
