// Package events implements the Event Worker (spec.md §4.3): the single
// per-event pipeline — identity resolution, idempotency check, insert,
// attribution, scoring, intent detection, automation, and the routing
// hand-off — run by the events queue's handler.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"leadpipeline/internal/apperr"
	"leadpipeline/internal/automation"
	"leadpipeline/internal/identity"
	"leadpipeline/internal/intent"
	"leadpipeline/internal/models"
	"leadpipeline/internal/queue"
	"leadpipeline/internal/repositories"
	"leadpipeline/internal/scoring"
)

// IngestInput is the wire shape of one ingested event (spec.md §6).
type IngestInput struct {
	EventType     string                 `json:"event_type"`
	Source        string                 `json:"source"`
	OccurredAt    time.Time              `json:"occurred_at"`
	LeadIdentifier identity.Identifier   `json:"lead_identifier"`
	Metadata      map[string]interface{} `json:"metadata"`
	CorrelationID string                 `json:"correlation_id"`
	CampaignID    string                 `json:"campaign_id"`
	UTMSource     string                 `json:"utm_source"`
	UTMMedium     string                 `json:"utm_medium"`
	UTMCampaign   string                 `json:"utm_campaign"`
}

// Outcome is the Event Worker's public operation result (spec.md §4.3).
type Outcome struct {
	EventID        uint
	LeadID         uint
	LeadCreated    bool
	Deduplicated   bool
	ScoringResult  *scoring.Result
	IntentResult   *intent.Result
	AutomationFired []string
}

type Worker struct {
	repos      *repositories.Repositories
	resolver   *identity.Resolver
	scoring    *scoring.Engine
	intent     *intent.Detector
	automation *automation.Engine
	queue      *queue.Manager
}

func NewWorker(repos *repositories.Repositories, resolver *identity.Resolver, scoringEngine *scoring.Engine, intentDetector *intent.Detector, automationEngine *automation.Engine, queueManager *queue.Manager) *Worker {
	return &Worker{
		repos:      repos,
		resolver:   resolver,
		scoring:    scoringEngine,
		intent:     intentDetector,
		automation: automationEngine,
		queue:      queueManager,
	}
}

// Process implements the Event Worker's per-event pipeline (spec.md §4.3):
// 1. Resolve identity (create-or-find the lead).
// 2. Idempotency check on correlation_id.
// 3. Insert the event.
// 4. Update attribution (first/last touch).
// 5. Run the Scoring Engine.
// 6. Run the Intent Detector.
// 7. Run the Automation Engine.
// 8. Persist the lead's updated denormalized fields.
// 9. Enqueue a routing job for the lead.
func (w *Worker) Process(ctx context.Context, in IngestInput) (*Outcome, error) {
	if in.LeadIdentifier.Empty() {
		return nil, apperr.NewValidation(identity.ErrNoIdentifier().Error())
	}

	lead, created, err := w.resolver.Resolve(ctx, in.LeadIdentifier, in.Source, in.CampaignID, in.OccurredAt)
	if err != nil {
		return nil, err
	}

	if in.CorrelationID != "" {
		existing, err := w.repos.Events.FindByCorrelationID(ctx, lead.ID, in.CorrelationID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if existing != nil {
			return &Outcome{EventID: existing.ID, LeadID: lead.ID, LeadCreated: created, Deduplicated: true}, nil
		}
	}

	event := &models.Event{
		LeadID:     lead.ID,
		EventType:  in.EventType,
		Source:     in.Source,
		OccurredAt: in.OccurredAt,
		Metadata:   models.JSONMap(in.Metadata),
		CampaignID: in.CampaignID,
		UTMSource:  in.UTMSource,
		UTMMedium:  in.UTMMedium,
		UTMCampaign: in.UTMCampaign,
	}
	if in.CorrelationID != "" {
		event.CorrelationID = &in.CorrelationID
	}
	if err := w.repos.Events.Create(ctx, event); err != nil {
		return nil, err
	}

	w.applyAttribution(lead, in)

	preTotal := lead.TotalScore()

	scoringResult, err := w.scoring.ProcessEvent(ctx, event, lead)
	if err != nil {
		return nil, err
	}

	prevIntent := lead.PrimaryIntent
	intentResult, err := w.intent.ProcessEvent(ctx, event, lead)
	if err != nil {
		return nil, err
	}
	intentJustDetected := lead.PrimaryIntent != nil && (prevIntent == nil || *prevIntent != *lead.PrimaryIntent)

	postTotal := lead.TotalScore()

	automationResult, err := w.automation.ProcessEvent(ctx, automation.EventContext{
		Event:              event,
		Lead:               lead,
		PreTotal:           preTotal,
		PostTotal:          postTotal,
		IntentJustDetected: intentJustDetected,
	})
	if err != nil {
		return nil, err
	}

	if err := w.repos.Leads.Save(ctx, lead); err != nil {
		return nil, err
	}

	category, points := dominantCategory(scoringResult.PointsAdded)
	if err := w.repos.Events.MarkProcessed(ctx, event.ID, category, points); err != nil {
		return nil, err
	}

	if err := w.queue.Enqueue(ctx, "routing", "evaluate", map[string]interface{}{
		"lead_id": lead.ID,
	}, fmt.Sprintf("route:%d", lead.ID)); err != nil {
		return nil, err
	}

	return &Outcome{
		EventID:         event.ID,
		LeadID:          lead.ID,
		LeadCreated:     created,
		ScoringResult:   scoringResult,
		IntentResult:    intentResult,
		AutomationFired: automationResult.RulesFired,
	}, nil
}

// applyAttribution maintains first/last touch (spec.md §4.3 step 4):
// first touch is set once and never overwritten; last touch always
// reflects the most recently processed event.
func (w *Worker) applyAttribution(lead *models.Lead, in IngestInput) {
	if lead.FirstTouchAt == nil {
		occurredAt := in.OccurredAt
		lead.FirstTouchSource = in.Source
		lead.FirstTouchCampaign = in.CampaignID
		lead.FirstTouchAt = &occurredAt
	}
	occurredAt := in.OccurredAt
	lead.LastTouchSource = in.Source
	lead.LastTouchCampaign = in.CampaignID
	lead.LastTouchAt = &occurredAt
	lead.LastActivityAt = &occurredAt
}

// dominantCategory picks the category that contributed the most points in
// a single event, for the event's score_category/score_points annotation
// (spec.md §3). Ties favor whichever category iterates first; an event
// that added no points annotates with an empty category and zero points.
func dominantCategory(pointsAdded map[string]int) (string, int) {
	category, points := "", 0
	for cat, added := range pointsAdded {
		if added > points {
			category, points = cat, added
		}
	}
	return category, points
}

// Handler adapts Process to the queue.Handler shape consumed by the
// events worker pool (spec.md §5).
func (w *Worker) Handler() queue.Handler {
	return func(ctx context.Context, job *queue.Job) error {
		in, err := decodeIngestInput(job.Payload)
		if err != nil {
			return apperr.NewValidation(err.Error())
		}
		_, err = w.Process(ctx, in)
		return err
	}
}
