// Package routing implements the Pipeline Router (spec.md §4.6):
// evaluateAndRoute's decision sequence, deal upsert, owner assignment
// strategies, and the hot-lead/conflict notifications that follow a
// routing decision.
package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"leadpipeline/internal/apperr"
	"leadpipeline/internal/intent"
	"leadpipeline/internal/models"
	"leadpipeline/internal/notify"
	"leadpipeline/internal/queue"
	"leadpipeline/internal/repositories"
)

const (
	minRoutableScore = 40
	stuckInPoolDays  = 14
)

// intentToPipeline resolves a primary intent to its target pipeline slug
// (spec.md §4.6).
var intentToPipeline = map[string]string{
	"research":    "research-lab",
	"b2b":         "b2b-lab-enablement",
	"co_creation": "panel-co-creation",
}

// ownerAssignment resolves an intent to its assignment strategy and the
// team role it draws from (spec.md §4.6). capacity_based is resolved
// identically to round_robin per the Open Question decision recorded in
// DESIGN.md: the current scope has no signal to differentiate them.
var ownerAssignment = map[string]struct {
	Strategy string
	Role     string
}{
	"research":    {"round_robin", "bdr"},
	"b2b":         {"round_robin", "ae"},
	"co_creation": {"manual", "partnership_manager"},
}

const discoveryPipelineSlug = "discovery"

// Action is the public result of evaluateAndRoute (spec.md §4.6).
type Action struct {
	Action     string `json:"action"` // skip | wait | route | manual_review
	Reason     string `json:"reason"`
	PipelineID *uint  `json:"pipeline_id,omitempty"`
	DealID     *uint  `json:"deal_id,omitempty"`
	AssignedTo *uint  `json:"assigned_to,omitempty"`
}

func wait(reason string) *Action   { return &Action{Action: "wait", Reason: reason} }
func skip(reason string) *Action   { return &Action{Action: "skip", Reason: reason} }
func review(reason string) *Action { return &Action{Action: "manual_review", Reason: reason} }

type Router struct {
	repos  *repositories.Repositories
	notify *notify.Client
}

func NewRouter(repos *repositories.Repositories, notifier *notify.Client) *Router {
	return &Router{repos: repos, notify: notifier}
}

// EvaluateAndRoute implements the decision sequence from spec.md §4.6,
// stopping at the first matching clause.
func (r *Router) EvaluateAndRoute(ctx context.Context, leadID uint) (*Action, error) {
	lead, err := r.repos.Leads.FindByID(ctx, leadID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NewNotFound("lead")
	}
	if err != nil {
		return nil, err
	}
	if !lead.IsRoutable() {
		return skip("deletion_requested"), nil
	}

	if lead.PipelineID != nil {
		return skip("already_routed"), nil
	}
	if lead.TotalScore() < minRoutableScore {
		return wait("score_below_threshold"), nil
	}

	summary := map[string]int(lead.IntentSummary)
	primary, confidence, routable, conflict := intent.Compute(summary)
	_ = confidence

	if routable && primary != "" {
		return r.route(ctx, lead, primary)
	}

	if conflict {
		if err := r.notify.SendConflict(ctx, notify.ConflictMessage{
			LeadID:  lead.ID,
			Name:    lead.FullName(),
			Email:   lead.Email,
			Summary: summary,
		}); err != nil {
			return nil, err
		}
		return review("intent_conflict"), nil
	}

	if time.Since(lead.CreatedAt) > stuckInPoolDays*24*time.Hour {
		action, err := r.routeToDiscovery(ctx, lead)
		if err != nil {
			return nil, err
		}
		if err := r.notify.SendSimpleMessage(ctx, "#marketing-ops",
			fmt.Sprintf("Lead %s has sat unrouted for over %d days — routed to discovery pool.", lead.FullName(), stuckInPoolDays)); err != nil {
			return nil, err
		}
		action.Action = "manual_review"
		action.Reason = "stuck_in_pool"
		return action, nil
	}

	return wait("insufficient_confidence"), nil
}

// route implements the routing side effects for step 4 (spec.md §4.6).
func (r *Router) route(ctx context.Context, lead *models.Lead, primaryIntent string) (*Action, error) {
	slug, ok := intentToPipeline[primaryIntent]
	if !ok {
		return review("unmapped_intent"), nil
	}
	return r.routeToPipelineSlug(ctx, lead, slug, primaryIntent)
}

func (r *Router) routeToDiscovery(ctx context.Context, lead *models.Lead) (*Action, error) {
	return r.routeToPipelineSlug(ctx, lead, discoveryPipelineSlug, "")
}

// routeToPipelineSlug performs the deal upsert, lead field updates, and
// owner assignment shared by normal routing and the stuck-in-pool path.
// Idempotent: re-running with an already-routed lead never reaches here
// (step 1 short-circuits), and the deal upsert itself is keyed on
// (lead_id, pipeline_id) so re-entry cannot duplicate it.
func (r *Router) routeToPipelineSlug(ctx context.Context, lead *models.Lead, pipelineSlug, primaryIntent string) (*Action, error) {
	pipeline, err := r.repos.Pipelines.FindBySlug(ctx, pipelineSlug)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NewNotFound("pipeline " + pipelineSlug)
	}
	if err != nil {
		return nil, err
	}
	firstStage, err := r.repos.Pipelines.FirstStage(ctx, pipeline.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NewInvariantViolation("pipeline " + pipelineSlug + " has no stage at position 1")
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	existingDeal, err := r.repos.Deals.FindByLeadAndPipeline(ctx, lead.ID, pipeline.ID)
	isNewDeal := false
	if errors.Is(err, gorm.ErrRecordNotFound) {
		isNewDeal = true
		existingDeal = nil
		err = nil
	}
	if err != nil {
		return nil, err
	}

	deal := &models.Deal{
		LeadID:         lead.ID,
		PipelineID:     pipeline.ID,
		StageID:        firstStage.ID,
		Name:           fmt.Sprintf("%s — %s", lead.FullName(), pipeline.Name),
		Currency:       "EUR",
		StageEnteredAt: now,
		Status:         "open",
	}
	if !isNewDeal {
		deal.ID = existingDeal.ID
		deal.StageID = existingDeal.StageID
		deal.StageEnteredAt = existingDeal.StageEnteredAt
		deal.AssigneeID = existingDeal.AssigneeID
		deal.AssignedRegion = existingDeal.AssignedRegion
		deal.Status = existingDeal.Status
	}
	if err := r.repos.Deals.Upsert(ctx, deal); err != nil {
		return nil, err
	}

	if err := r.repos.Leads.SetPipeline(ctx, lead.ID, pipeline.ID); err != nil {
		return nil, err
	}

	action := &Action{Action: "route", Reason: "routed", PipelineID: &pipeline.ID, DealID: &deal.ID}

	if isNewDeal && primaryIntent != "" {
		assigned, err := r.assignOwner(ctx, deal, primaryIntent)
		if err != nil {
			return nil, err
		}
		action.AssignedTo = assigned
	}

	if err := r.notify.SendHotLead(ctx, notify.HotLeadMessage{
		LeadID:     lead.ID,
		Name:       lead.FullName(),
		Email:      lead.Email,
		TotalScore: lead.TotalScore(),
		Intent:     primaryIntent,
		Confidence: lead.IntentConfidence,
		JobTitle:   lead.JobTitle,
	}); err != nil {
		return nil, err
	}

	return action, nil
}

// ForceRoute routes a lead directly into a pipeline, bypassing the
// score/intent gates in EvaluateAndRoute — backs the Automation Engine's
// route_to_pipeline action (spec.md §4.7) and forced_route jobs.
func (r *Router) ForceRoute(ctx context.Context, leadID uint, pipelineSlug string) (*Action, error) {
	lead, err := r.repos.Leads.FindByID(ctx, leadID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NewNotFound("lead")
	}
	if err != nil {
		return nil, err
	}
	if !lead.IsRoutable() {
		return skip("deletion_requested"), nil
	}
	primary := ""
	if lead.PrimaryIntent != nil {
		primary = *lead.PrimaryIntent
	}
	return r.routeToPipelineSlug(ctx, lead, pipelineSlug, primary)
}

// Handler adapts the router onto the routing queue: a plain job routes by
// evaluation, a job carrying pipeline_slug forces that pipeline.
func (r *Router) Handler() queue.Handler {
	return func(ctx context.Context, job *queue.Job) error {
		leadID, ok := toUint(job.Payload["lead_id"])
		if !ok {
			return apperr.NewValidation("routing job missing lead_id")
		}
		if slug, _ := job.Payload["pipeline_slug"].(string); slug != "" {
			_, err := r.ForceRoute(ctx, leadID, slug)
			return err
		}
		_, err := r.EvaluateAndRoute(ctx, leadID)
		return err
	}
}

func toUint(v interface{}) (uint, bool) {
	switch n := v.(type) {
	case float64:
		return uint(n), true
	case int:
		return uint(n), true
	case uint:
		return n, true
	default:
		return 0, false
	}
}

// assignOwner applies owner_assignment[intent] (spec.md §4.6). Increment
// of current_leads happens only when a new deal triggers assignment, so
// re-running routing for an already-assigned deal never double-counts.
func (r *Router) assignOwner(ctx context.Context, deal *models.Deal, primaryIntent string) (*uint, error) {
	strategy, ok := ownerAssignment[primaryIntent]
	if !ok {
		return nil, nil
	}

	switch strategy.Strategy {
	case "round_robin", "capacity_based":
		candidates, err := r.repos.TeamMembers.AvailableByRole(ctx, strategy.Role)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			if err := r.notify.SendSimpleMessage(ctx, "#marketing-ops",
				fmt.Sprintf("No available %s to assign deal %d — needs manual assignment.", strategy.Role, deal.ID)); err != nil {
				return nil, err
			}
			return nil, nil
		}
		// AvailableByRole orders by lowest current_leads, then
		// least-recently-assigned; TryAssign's conditional update covers the
		// race if the candidate filled up between the read and this call.
		member := candidates[0]
		assigned, err := r.repos.TeamMembers.TryAssign(ctx, member.ID)
		if err != nil {
			return nil, err
		}
		if !assigned {
			return nil, nil
		}
		if err := r.repos.Deals.AssignOwner(ctx, deal.ID, member.ID, member.Region); err != nil {
			return nil, err
		}
		return &member.ID, nil

	case "manual":
		if err := r.notify.SendSimpleMessage(ctx, "#marketing-ops",
			fmt.Sprintf("Deal %d needs manual assignment (%s).", deal.ID, strategy.Role)); err != nil {
			return nil, err
		}
		return nil, nil

	case "notify_only":
		if err := r.notify.SendSimpleMessage(ctx, "#marketing-ops",
			fmt.Sprintf("Deal %d routed, notify only.", deal.ID)); err != nil {
			return nil, err
		}
		return nil, nil

	default:
		return nil, nil
	}
}
