package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"leadpipeline/internal/automation"
	"leadpipeline/internal/config"
	"leadpipeline/internal/identity"
	"leadpipeline/internal/intent"
	"leadpipeline/internal/models"
	"leadpipeline/internal/moco"
	"leadpipeline/internal/notify"
	"leadpipeline/internal/queue"
	"leadpipeline/internal/repositories"
	"leadpipeline/internal/scoring"
)

func newTestWorker(t *testing.T) (*Worker, *repositories.Repositories) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, repositories.Migrate(db))
	repos := repositories.New(db)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{}
	resolver := identity.NewResolver(repos.Leads)
	scoringEngine := scoring.NewEngine(repos, time.Minute)
	intentDetector := intent.NewDetector(repos, time.Minute)
	automationEngine := automation.NewEngine(repos, notify.NewClient(cfg), moco.NewClient(cfg), queue.NewManager(rdb), time.Minute)
	queueManager := queue.NewManager(rdb)

	worker := NewWorker(repos, resolver, scoringEngine, intentDetector, automationEngine, queueManager)
	return worker, repos
}

func TestProcessCreatesLeadAndEvent(t *testing.T) {
	worker, repos := newTestWorker(t)
	ctx := context.Background()

	in := IngestInput{
		EventType:      "page_view",
		Source:         "website",
		OccurredAt:     time.Now().UTC(),
		LeadIdentifier: identity.Identifier{Email: "jane@acme.com"},
		Metadata:       map[string]interface{}{"page": "pricing"},
	}

	outcome, err := worker.Process(ctx, in)
	require.NoError(t, err)
	assert.True(t, outcome.LeadCreated)
	assert.False(t, outcome.Deduplicated)
	assert.NotZero(t, outcome.EventID)

	lead, err := repos.Leads.FindByID(ctx, outcome.LeadID)
	require.NoError(t, err)
	assert.Equal(t, "jane@acme.com", lead.Email)
	assert.Equal(t, "website", lead.FirstTouchSource)
}

func TestProcessDeduplicatesOnCorrelationID(t *testing.T) {
	worker, _ := newTestWorker(t)
	ctx := context.Background()

	in := IngestInput{
		EventType:      "page_view",
		Source:         "website",
		OccurredAt:     time.Now().UTC(),
		LeadIdentifier: identity.Identifier{Email: "jane@acme.com"},
		CorrelationID:  "corr-1",
	}

	first, err := worker.Process(ctx, in)
	require.NoError(t, err)
	assert.False(t, first.Deduplicated)

	second, err := worker.Process(ctx, in)
	require.NoError(t, err)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.EventID, second.EventID)
}

func TestProcessRejectsEmptyIdentifier(t *testing.T) {
	worker, _ := newTestWorker(t)
	ctx := context.Background()

	_, err := worker.Process(ctx, IngestInput{EventType: "page_view", Source: "website", OccurredAt: time.Now().UTC()})
	assert.Error(t, err)
}

func TestProcessMarksTheEventProcessedWithItsDominantScoreCategory(t *testing.T) {
	worker, repos := newTestWorker(t)
	ctx := context.Background()

	require.NoError(t, repos.Scoring.CreateRule(ctx, &models.ScoringRule{
		Slug: "pricing-page", Category: models.CategoryBehavior, RuleType: "event",
		EventType: "page_view", Points: 15, IsActive: true,
	}))

	in := IngestInput{
		EventType:      "page_view",
		Source:         "website",
		OccurredAt:     time.Now().UTC(),
		LeadIdentifier: identity.Identifier{Email: "jane@acme.com"},
	}
	outcome, err := worker.Process(ctx, in)
	require.NoError(t, err)

	events, err := repos.Events.ForLead(ctx, outcome.LeadID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotNil(t, events[0].ProcessedAt)
	assert.Equal(t, models.CategoryBehavior, events[0].ScoreCategory)
	assert.Equal(t, 15, events[0].ScorePoints)
}

func TestProcessMaintainsFirstAndLastTouch(t *testing.T) {
	worker, repos := newTestWorker(t)
	ctx := context.Background()

	first := IngestInput{
		EventType:      "page_view",
		Source:         "webinar",
		OccurredAt:     time.Now().UTC(),
		LeadIdentifier: identity.Identifier{Email: "jane@acme.com"},
	}
	outcome, err := worker.Process(ctx, first)
	require.NoError(t, err)

	second := IngestInput{
		EventType:      "email_open",
		Source:         "newsletter",
		OccurredAt:     time.Now().UTC(),
		LeadIdentifier: identity.Identifier{Email: "jane@acme.com"},
	}
	_, err = worker.Process(ctx, second)
	require.NoError(t, err)

	lead, err := repos.Leads.FindByID(ctx, outcome.LeadID)
	require.NoError(t, err)
	assert.Equal(t, "webinar", lead.FirstTouchSource)
	assert.Equal(t, "newsletter", lead.LastTouchSource)
}
