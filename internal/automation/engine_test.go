package automation

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
	"leadpipeline/internal/moco"
	"leadpipeline/internal/notify"
	"leadpipeline/internal/queue"
	"leadpipeline/internal/repositories"
)

func newTestEngine(t *testing.T) (*Engine, *repositories.Repositories) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, repositories.Migrate(db))
	repos := repositories.New(db)
	cfg := &config.Config{}
	engine := NewEngine(repos, notify.NewClient(cfg), moco.NewClient(cfg), queue.NewManager(nil), time.Minute)
	return engine, repos
}

func mustCreateLead(t *testing.T, repos *repositories.Repositories) *models.Lead {
	t.Helper()
	lead := &models.Lead{Email: "a@b.com", Status: models.LeadStatusNew, LifecycleStage: models.LifecycleLead, RoutingStatus: models.RoutingStatusUnrouted}
	require.NoError(t, repos.Leads.Create(context.Background(), lead))
	return lead
}

func TestProcessEventFiresMoveToStageAction(t *testing.T) {
	engine, repos := newTestEngine(t)
	ctx := context.Background()

	lead := mustCreateLead(t, repos)
	pipeline := &models.Pipeline{
		Slug: "default",
		Name: "Default",
		Stages: []models.PipelineStage{
			{Name: "Awareness", Position: 0, StageType: "awareness"},
			{Name: "Interest", Position: 1, StageType: "interest"},
		},
	}
	require.NoError(t, repos.Pipelines.Create(ctx, pipeline))
	awareness := pipeline.Stages[0]
	interest := pipeline.Stages[1]

	require.NoError(t, repos.Deals.Upsert(ctx, &models.Deal{LeadID: lead.ID, PipelineID: pipeline.ID, StageID: awareness.ID, Name: "deal", StageEnteredAt: time.Now().UTC()}))

	require.NoError(t, repos.Automation.CreateRule(ctx, &models.AutomationRule{
		Name:          "move-on-demo-request",
		TriggerType:   TriggerEvent,
		TriggerConfig: models.JSONMap{"event_type": "demo_requested"},
		ActionType:    ActionMoveToStage,
		ActionConfig:  models.JSONMap{"stage_type": "interest"},
		PipelineID:    &pipeline.ID,
		IsActive:      true,
	}))

	ec := EventContext{
		Event: &models.Event{LeadID: lead.ID, EventType: "demo_requested", OccurredAt: time.Now().UTC()},
		Lead:  lead,
	}
	result, err := engine.ProcessEvent(ctx, ec)
	require.NoError(t, err)
	assert.Contains(t, result.RulesFired, "move-on-demo-request")

	deal, err := repos.Deals.FindByLeadAndPipeline(ctx, lead.ID, pipeline.ID)
	require.NoError(t, err)
	assert.Equal(t, interest.ID, deal.StageID)
}

func TestProcessEventScoreThresholdFiresOnceOnCrossing(t *testing.T) {
	engine, repos := newTestEngine(t)
	ctx := context.Background()
	lead := mustCreateLead(t, repos)

	require.NoError(t, repos.Automation.CreateRule(ctx, &models.AutomationRule{
		Name:          "hot-lead-alert",
		TriggerType:   TriggerScoreThreshold,
		TriggerConfig: models.JSONMap{"threshold": 80},
		ActionType:    ActionUpdateField,
		ActionConfig:  models.JSONMap{"field": "status", "value": "qualified"},
		IsActive:      true,
	}))

	ec := EventContext{Event: &models.Event{LeadID: lead.ID, EventType: "page_view"}, Lead: lead, PreTotal: 70, PostTotal: 90}
	result, err := engine.ProcessEvent(ctx, ec)
	require.NoError(t, err)
	assert.Contains(t, result.RulesFired, "hot-lead-alert")

	second, err := engine.ProcessEvent(ctx, ec)
	require.NoError(t, err)
	assert.Empty(t, second.RulesFired, "a rule must not re-fire for the same (rule, lead, threshold) crossing")
}

func TestProcessEventScoreThresholdDoesNotFireWithoutCrossing(t *testing.T) {
	engine, repos := newTestEngine(t)
	ctx := context.Background()
	lead := mustCreateLead(t, repos)

	require.NoError(t, repos.Automation.CreateRule(ctx, &models.AutomationRule{
		Name:          "hot-lead-alert",
		TriggerType:   TriggerScoreThreshold,
		TriggerConfig: models.JSONMap{"threshold": 80},
		ActionType:    ActionUpdateField,
		ActionConfig:  models.JSONMap{"field": "status", "value": "qualified"},
		IsActive:      true,
	}))

	ec := EventContext{Event: &models.Event{LeadID: lead.ID}, Lead: lead, PreTotal: 85, PostTotal: 95}
	result, err := engine.ProcessEvent(ctx, ec)
	require.NoError(t, err)
	assert.Empty(t, result.RulesFired, "already above threshold before this event, not a crossing")
}

func TestProcessEventUpdateFieldRejectsNonAllowlistedField(t *testing.T) {
	engine, repos := newTestEngine(t)
	ctx := context.Background()
	lead := mustCreateLead(t, repos)

	require.NoError(t, repos.Automation.CreateRule(ctx, &models.AutomationRule{
		Name:          "bad-field",
		TriggerType:   TriggerEvent,
		TriggerConfig: models.JSONMap{"event_type": "page_view"},
		ActionType:    ActionUpdateField,
		ActionConfig:  models.JSONMap{"field": "email", "value": "attacker@evil.com"},
		IsActive:      true,
	}))

	ec := EventContext{Event: &models.Event{LeadID: lead.ID, EventType: "page_view"}, Lead: lead}
	_, err := engine.ProcessEvent(ctx, ec)
	require.NoError(t, err)

	reloaded, err := repos.Leads.FindByID(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", reloaded.Email, "email is not in the update_field allow-list")
}

func TestInterpolateSubstitutesLeadPlaceholders(t *testing.T) {
	lead := &models.Lead{FirstName: "Jane", LastName: "Doe", Email: "jane@acme.com", JobTitle: "VP Sales"}
	out := interpolate("Hi {lead.first_name}, following up with {lead.email}", lead, nil)
	assert.Equal(t, "Hi Jane, following up with jane@acme.com", out)
}

func TestToInt(t *testing.T) {
	v, ok := toInt(5)
	assert.True(t, ok)
	assert.Equal(t, 5, v)

	v, ok = toInt(5.0)
	assert.True(t, ok)
	assert.Equal(t, 5, v)

	_, ok = toInt("5")
	assert.False(t, ok)
}
