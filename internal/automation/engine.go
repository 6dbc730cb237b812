// Package automation implements the Automation Engine (spec.md §4.7):
// event/score-threshold/intent-detected trigger matching over a
// TTL-cached rule set, and serial per-rule action execution. Grounded on
// the same rule-matching shape as internal/scoring and internal/intent,
// reusing internal/ruleeval for the event predicate grammar.
package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leadpipeline/internal/models"
	"leadpipeline/internal/moco"
	"leadpipeline/internal/notify"
	"leadpipeline/internal/queue"
	"leadpipeline/internal/repositories"
	"leadpipeline/internal/rulecache"
	"leadpipeline/internal/ruleeval"
)

// Trigger types (spec.md §4.7).
const (
	TriggerEvent          = "event"
	TriggerScoreThreshold = "score_threshold"
	TriggerIntentDetected = "intent_detected"
	TriggerTimeInStage    = "time_in_stage"
)

// Action types (spec.md §4.7).
const (
	ActionMoveToStage      = "move_to_stage"
	ActionAssignOwner      = "assign_owner"
	ActionSendNotification = "send_notification"
	ActionCreateTask       = "create_task"
	ActionSyncMoco         = "sync_moco"
	ActionUpdateField      = "update_field"
	ActionRouteToPipeline  = "route_to_pipeline"
)

// allow-listed fields for update_field (spec.md §4.7).
var updatableFields = map[string]bool{
	"status":         true,
	"lifecycle_stage": true,
	"primary_intent": true,
}

// EventContext carries the pre/post score snapshots the worker captured
// around scoring, so score-threshold triggers can detect an upward
// crossing within this processing cycle (spec.md §4.7 step 2).
type EventContext struct {
	Event     *models.Event
	Lead      *models.Lead
	PreTotal  int
	PostTotal int
	// IntentJustDetected is true when the Intent Detector set a new
	// primary_intent during this same processing cycle (spec.md §4.7
	// step 3's "has not already fired for this lead" guard still applies
	// per-rule via the intent signal ledger).
	IntentJustDetected bool
}

// Result is the Automation Engine's public operation result.
type Result struct {
	RulesFired []string
}

type Engine struct {
	repos  *repositories.Repositories
	rules  *rulecache.Cache[models.AutomationRule]
	notify *notify.Client
	moco   *moco.Client
	queue  *queue.Manager
}

func NewEngine(repos *repositories.Repositories, notifier *notify.Client, mocoClient *moco.Client, queueManager *queue.Manager, ruleCacheTTL time.Duration) *Engine {
	return &Engine{
		repos:  repos,
		rules:  rulecache.New(ruleCacheTTL, repos.Automation.ActiveRules),
		notify: notifier,
		moco:   mocoClient,
		queue:  queueManager,
	}
}

// InvalidateRules forces the next ProcessEvent to reload the rule set
// (spec.md §5 manual invalidate signal).
func (e *Engine) InvalidateRules() { e.rules.Invalidate() }

// ProcessEvent runs the event-path triggers (event, score_threshold,
// intent_detected) for one processed event. time_in_stage triggers are
// evaluated separately by the scheduler (spec.md §4.7 step 4).
func (e *Engine) ProcessEvent(ctx context.Context, ec EventContext) (*Result, error) {
	rules, err := e.rules.Get(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{RulesFired: []string{}}
	for i := range rules {
		rule := &rules[i]
		fire, err := e.matches(ctx, rule, ec)
		if err != nil {
			return nil, err
		}
		if !fire {
			continue
		}
		if err := e.execute(ctx, rule, ec); err != nil {
			return nil, err
		}
		if err := e.repos.Automation.MarkExecuted(ctx, rule.ID, time.Now().UTC()); err != nil {
			return nil, err
		}
		result.RulesFired = append(result.RulesFired, rule.Name)
	}
	return result, nil
}

// RunTimeInStageSweep implements spec.md §4.7 step 4: for every active
// time_in_stage rule, finds deals stuck past its configured day count in
// its configured stage and fires the rule's action once per deal. Called
// by the scheduler on a daily cadence rather than from the event path.
func (e *Engine) RunTimeInStageSweep(ctx context.Context) (*Result, error) {
	rules, err := e.rules.Get(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{RulesFired: []string{}}
	for i := range rules {
		rule := &rules[i]
		if rule.TriggerType != TriggerTimeInStage || rule.StageID == nil {
			continue
		}
		days, ok := toInt(rule.TriggerConfig["days"])
		if !ok {
			continue
		}
		threshold := time.Now().UTC().AddDate(0, 0, -days)
		deals, err := e.repos.Deals.StuckInSpecificStage(ctx, *rule.StageID, threshold)
		if err != nil {
			return nil, err
		}
		for _, deal := range deals {
			lead, err := e.repos.Leads.FindByID(ctx, deal.LeadID)
			if err != nil {
				return nil, err
			}
			ec := EventContext{Lead: lead}
			if err := e.execute(ctx, rule, ec); err != nil {
				return nil, err
			}
			if err := e.repos.Automation.MarkExecuted(ctx, rule.ID, time.Now().UTC()); err != nil {
				return nil, err
			}
			result.RulesFired = append(result.RulesFired, rule.Name)
		}
	}
	return result, nil
}

func (e *Engine) matches(ctx context.Context, rule *models.AutomationRule, ec EventContext) (bool, error) {
	switch rule.TriggerType {
	case TriggerEvent:
		return e.matchesEvent(rule, ec), nil
	case TriggerScoreThreshold:
		return e.matchesScoreThreshold(ctx, rule, ec)
	case TriggerIntentDetected:
		return e.matchesIntentDetected(ctx, rule, ec)
	default:
		// time_in_stage and unrecognized trigger types are not evaluated
		// on the event path.
		return false, nil
	}
}

func (e *Engine) matchesEvent(rule *models.AutomationRule, ec EventContext) bool {
	eventType, _ := rule.TriggerConfig["event_type"].(string)
	if eventType == "" || eventType != ec.Event.EventType {
		return false
	}
	predicate, _ := rule.TriggerConfig["metadata_predicate"].(map[string]interface{})
	return ruleeval.MatchEventMetadata(predicate, ec.Event.Metadata)
}

// matchesScoreThreshold implements spec.md §4.7 step 2: fires when the
// lead's total just crossed the configured threshold upward within this
// cycle, guarded by a unique (rule, lead, threshold) log row so a rule can
// never re-fire for the same crossing.
func (e *Engine) matchesScoreThreshold(ctx context.Context, rule *models.AutomationRule, ec EventContext) (bool, error) {
	thresholdRaw, ok := rule.TriggerConfig["threshold"]
	if !ok {
		return false, nil
	}
	threshold, ok := toInt(thresholdRaw)
	if !ok {
		return false, nil
	}
	if !(ec.PreTotal < threshold && ec.PostTotal >= threshold) {
		return false, nil
	}
	fired, err := e.repos.Automation.TryLogThresholdFiring(ctx, rule.ID, ec.Lead.ID, threshold)
	if err != nil {
		return false, err
	}
	return fired, nil
}

// matchesIntentDetected implements spec.md §4.7 step 3.
func (e *Engine) matchesIntentDetected(ctx context.Context, rule *models.AutomationRule, ec EventContext) (bool, error) {
	if !ec.IntentJustDetected || ec.Lead.PrimaryIntent == nil {
		return false, nil
	}
	target, _ := rule.TriggerConfig["target_intent"].(string)
	if target == "" || target != *ec.Lead.PrimaryIntent {
		return false, nil
	}
	confidenceGte, ok := toInt(rule.TriggerConfig["confidence_gte"])
	if !ok {
		confidenceGte = 0
	}
	if ec.Lead.IntentConfidence < confidenceGte {
		return false, nil
	}
	fired, err := e.repos.Intent.HasRuleFired(ctx, ec.Lead.ID, rule.ID)
	if err != nil {
		return false, err
	}
	return !fired, nil
}

// execute dispatches one action; actions run serially, one rule at a time
// (spec.md §4.7 "Action execution is serial per rule").
func (e *Engine) execute(ctx context.Context, rule *models.AutomationRule, ec EventContext) error {
	switch rule.ActionType {
	case ActionMoveToStage:
		return e.actionMoveToStage(ctx, rule, ec)
	case ActionAssignOwner:
		return e.actionAssignOwner(ctx, rule, ec)
	case ActionSendNotification:
		return e.actionSendNotification(ctx, rule, ec)
	case ActionCreateTask:
		return e.actionCreateTask(ctx, rule, ec)
	case ActionSyncMoco:
		return e.actionSyncMoco(ctx, rule, ec)
	case ActionUpdateField:
		return e.actionUpdateField(ctx, rule, ec)
	case ActionRouteToPipeline:
		return e.actionRouteToPipeline(ctx, rule, ec)
	default:
		return nil
	}
}

func (e *Engine) actionMoveToStage(ctx context.Context, rule *models.AutomationRule, ec EventContext) error {
	if rule.PipelineID == nil {
		return nil
	}
	stageName, _ := rule.ActionConfig["stage_type"].(string)
	if stageName == "" {
		return nil
	}
	stage, err := e.repos.Pipelines.StageByType(ctx, *rule.PipelineID, stageName)
	if err != nil {
		return err
	}
	deal, err := e.repos.Deals.FindByLeadAndPipeline(ctx, ec.Lead.ID, *rule.PipelineID)
	if err != nil {
		return err
	}
	return e.repos.Deals.MoveToStage(ctx, deal.ID, stage.ID)
}

func (e *Engine) actionAssignOwner(ctx context.Context, rule *models.AutomationRule, ec EventContext) error {
	role, _ := rule.ActionConfig["role"].(string)
	if role == "" || rule.PipelineID == nil {
		return nil
	}
	deal, err := e.repos.Deals.FindByLeadAndPipeline(ctx, ec.Lead.ID, *rule.PipelineID)
	if err != nil {
		return err
	}
	candidates, err := e.repos.TeamMembers.AvailableByRole(ctx, role)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}
	member := candidates[0]
	assigned, err := e.repos.TeamMembers.TryAssign(ctx, member.ID)
	if err != nil {
		return err
	}
	if !assigned {
		return nil
	}
	return e.repos.Deals.AssignOwner(ctx, deal.ID, member.ID, member.Region)
}

func (e *Engine) actionSendNotification(ctx context.Context, rule *models.AutomationRule, ec EventContext) error {
	channel, _ := rule.ActionConfig["channel"].(string)
	template, _ := rule.ActionConfig["template"].(string)
	if channel == "" || template == "" {
		return nil
	}
	return e.notify.SendSimpleMessage(ctx, channel, interpolate(template, ec.Lead, nil))
}

func (e *Engine) actionCreateTask(ctx context.Context, rule *models.AutomationRule, ec EventContext) error {
	titleTemplate, _ := rule.ActionConfig["title"].(string)
	dueDays, _ := toInt(rule.ActionConfig["due_days"])
	due := time.Now().UTC().AddDate(0, 0, dueDays)
	ruleID := rule.ID
	task := &models.Task{
		LeadID:                 &ec.Lead.ID,
		Title:                  interpolate(titleTemplate, ec.Lead, nil),
		TaskType:               "automation",
		DueDate:                &due,
		Status:                 "open",
		SourceAutomationRuleID: &ruleID,
	}
	return e.repos.Automation.CreateTask(ctx, task)
}

// actionSyncMoco enqueues a sync job rather than calling Moco inline — the
// sync queue is rate-limited to respect the finance API's quota (spec.md
// §5), so the action only hands off the intent.
func (e *Engine) actionSyncMoco(ctx context.Context, rule *models.AutomationRule, ec EventContext) error {
	mocoAction, _ := rule.ActionConfig["moco_action"].(string)
	if mocoAction == "" {
		return nil
	}
	payload := map[string]interface{}{
		"moco_action": mocoAction,
		"lead_id":     ec.Lead.ID,
	}
	if ec.Lead.OrganizationID != nil {
		payload["organization_id"] = *ec.Lead.OrganizationID
	}
	return e.queue.Enqueue(ctx, "sync", "moco_sync", payload, fmt.Sprintf("moco:%s:%d", mocoAction, ec.Lead.ID))
}

func (e *Engine) actionUpdateField(ctx context.Context, rule *models.AutomationRule, ec EventContext) error {
	field, _ := rule.ActionConfig["field"].(string)
	value, ok := rule.ActionConfig["value"]
	if field == "" || !ok || !updatableFields[field] {
		return nil
	}
	return e.repos.Leads.UpdateField(ctx, ec.Lead.ID, field, value)
}

func (e *Engine) actionRouteToPipeline(ctx context.Context, rule *models.AutomationRule, ec EventContext) error {
	slug, _ := rule.ActionConfig["pipeline_slug"].(string)
	if slug == "" {
		return nil
	}
	return e.queue.Enqueue(ctx, "routing", "forced_route", map[string]interface{}{
		"lead_id":       ec.Lead.ID,
		"pipeline_slug": slug,
	}, fmt.Sprintf("route:%d", ec.Lead.ID))
}

// interpolate substitutes {lead.*}/{deal.*} placeholders (spec.md §4.7).
// deal is accepted for the {deal.*} family but most automation call sites
// run before a deal necessarily exists, so it is commonly nil.
func interpolate(template string, lead *models.Lead, deal *models.Deal) string {
	out := template
	replacements := map[string]string{
		"{lead.first_name}": lead.FirstName,
		"{lead.last_name}":  lead.LastName,
		"{lead.email}":      lead.Email,
		"{lead.job_title}":  lead.JobTitle,
	}
	if deal != nil {
		replacements["{deal.name}"] = deal.Name
		replacements["{deal.status}"] = deal.Status
	}
	for k, v := range replacements {
		out = strings.ReplaceAll(out, k, v)
	}
	return out
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
