// Package intent implements the Intent Detector (spec.md §4.5): rule
// evaluation via the shared predicate grammar, signal accumulation, and
// the primary/secondary confidence computation. Grounded on the same
// rule-matching shape as internal/scoring, sharing internal/ruleeval.
package intent

import (
	"context"
	"math"
	"sort"
	"time"

	"leadpipeline/internal/models"
	"leadpipeline/internal/repositories"
	"leadpipeline/internal/rulecache"
	"leadpipeline/internal/ruleeval"
)

const confidenceMargin = 15
const routableThreshold = 60
const lowVolumePenaltyFloor = 30

// Result is the Intent Detector's public operation result (spec.md §4.5).
type Result struct {
	SignalsAdded    int
	IntentSummary   map[string]int
	PrimaryIntent   string
	Confidence      int
	Routable        bool
	Conflict        bool
}

type Detector struct {
	repos *repositories.Repositories
	rules *rulecache.Cache[models.IntentRule]
}

func NewDetector(repos *repositories.Repositories, ruleCacheTTL time.Duration) *Detector {
	return &Detector{
		repos: repos,
		rules: rulecache.New(ruleCacheTTL, repos.Intent.ActiveRules),
	}
}

// InvalidateRules forces the next ProcessEvent to reload the rule set
// (spec.md §5 manual invalidate signal).
func (d *Detector) InvalidateRules() { d.rules.Invalidate() }

// ProcessEvent implements processEvent(event, lead) from spec.md §4.5.
func (d *Detector) ProcessEvent(ctx context.Context, event *models.Event, lead *models.Lead) (*Result, error) {
	rules, err := d.rules.Get(ctx)
	if err != nil {
		return nil, err
	}

	signalsAdded := 0
	for _, rule := range rules {
		if !d.matches(lead, event, &rule) {
			continue
		}
		signal := &models.IntentSignal{
			LeadID:           lead.ID,
			Intent:           rule.TargetIntent,
			RuleID:           rule.ID,
			ConfidencePoints: rule.ConfidencePoints,
			TriggerType:      rule.TriggerType,
			EventID:          &event.ID,
			DetectedAt:       event.OccurredAt,
		}
		if err := d.repos.Intent.CreateSignal(ctx, signal); err != nil {
			return nil, err
		}
		signalsAdded++
	}

	signals, err := d.repos.Intent.SignalsForLead(ctx, lead.ID)
	if err != nil {
		return nil, err
	}

	summary := make(map[string]int)
	for _, s := range signals {
		summary[s.Intent] += s.ConfidencePoints
	}

	primary, confidence, routable, conflict := Compute(summary)

	lead.IntentSummary = models.IntentPoints(summary)
	if primary != "" {
		lead.PrimaryIntent = &primary
	}
	lead.IntentConfidence = confidence

	return &Result{
		SignalsAdded:  signalsAdded,
		IntentSummary: summary,
		PrimaryIntent: primary,
		Confidence:    confidence,
		Routable:      routable,
		Conflict:      conflict,
	}, nil
}

func (d *Detector) matches(lead *models.Lead, event *models.Event, rule *models.IntentRule) bool {
	switch rule.TriggerType {
	case "event":
		if rule.EventType != event.EventType {
			return false
		}
		return ruleeval.MatchEventMetadata(rule.MetadataPredicate, event.Metadata)
	case "lead_field":
		value, ok := ruleeval.ResolveFieldPath(lead, lead.Organization, rule.FieldPath)
		if !ok {
			return false
		}
		return ruleeval.FieldOperator(rule.Operator, value, rule.GetValue())
	case "org_field":
		if lead.Organization == nil {
			return false
		}
		value, ok := ruleeval.ResolveFieldPath(lead, lead.Organization, "organization."+rule.FieldPath)
		if !ok {
			return false
		}
		return ruleeval.FieldOperator(rule.Operator, value, rule.GetValue())
	default:
		return false
	}
}

// Compute implements spec.md §4.5's confidence computation over an
// intent->points summary: primary/secondary by descending score with a
// lexicographic tiebreak, margin bonus, low-volume penalty, and
// the routable/conflict gates the router consumes.
func Compute(summary map[string]int) (primary string, confidence int, routable, conflict bool) {
	if len(summary) == 0 {
		return "", 0, false, false
	}

	type entry struct {
		intent string
		points int
	}
	entries := make([]entry, 0, len(summary))
	total := 0
	for intent, points := range summary {
		entries = append(entries, entry{intent, points})
		total += points
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].points != entries[j].points {
			return entries[i].points > entries[j].points
		}
		return entries[i].intent < entries[j].intent
	})

	primaryEntry := entries[0]
	var secondaryPoints int
	if len(entries) > 1 {
		secondaryPoints = entries[1].points
	}

	if total == 0 {
		return "", 0, false, false
	}

	conf := int(math.Round(float64(primaryEntry.points) * 100 / float64(total)))

	margin := primaryEntry.points - secondaryPoints
	if margin >= confidenceMargin {
		conf += 10
		if conf > 100 {
			conf = 100
		}
	}
	if total < lowVolumePenaltyFloor {
		conf -= 20
		if conf < 0 {
			conf = 0
		}
	}

	conflict = secondaryPoints > 0 && margin < confidenceMargin
	routable = conf >= routableThreshold && !conflict

	return primaryEntry.intent, conf, routable, conflict
}
