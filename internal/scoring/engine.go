// Package scoring implements the Scoring Engine (spec.md §4.4): rule
// matching against event metadata or lead/org fields, rate-capped ledger
// writes, category recomputation, and tier-crossing detection, built on
// the shared ruleeval predicate algebra.
package scoring

import (
	"context"
	"time"

	"leadpipeline/internal/models"
	"leadpipeline/internal/repositories"
	"leadpipeline/internal/rulecache"
	"leadpipeline/internal/ruleeval"
)

// Result is the Scoring Engine's public operation result (spec.md §4.4).
type Result struct {
	RulesMatched []string
	PointsAdded  map[string]int // category -> net points added this event
	NewScores    map[string]int // category -> new denormalized total
	TierCrossed  string         // "" | "warm" | "hot" | "very_hot"
	NewLifecycle string         // "" if unchanged
}

// Tier thresholds and lifecycle promotions, spec.md §4.4.
const (
	tierWarmThreshold    = 40
	tierHotThreshold     = 80
	tierVeryHotThreshold = 120
)

type Engine struct {
	repos *repositories.Repositories
	rules *rulecache.Cache[models.ScoringRule]
}

func NewEngine(repos *repositories.Repositories, ruleCacheTTL time.Duration) *Engine {
	return &Engine{
		repos: repos,
		rules: rulecache.New(ruleCacheTTL, repos.Scoring.ActiveRules),
	}
}

// InvalidateRules forces the next ProcessEvent to reload the rule set —
// the manual invalidate signal from the admin surface (spec.md §5).
func (e *Engine) InvalidateRules() { e.rules.Invalidate() }

// ProcessEvent implements processEvent(event, lead) from spec.md §4.4.
func (e *Engine) ProcessEvent(ctx context.Context, event *models.Event, lead *models.Lead) (*Result, error) {
	preTotal := lead.TotalScore()

	rules, err := e.rules.Get(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{
		RulesMatched: []string{},
		PointsAdded:  map[string]int{},
	}

	for _, rule := range rules {
		switch rule.RuleType {
		case "event":
			if !e.matchesEventRule(lead, event, &rule) {
				continue
			}
		case "field":
			value, ok := ruleeval.ResolveFieldPath(lead, lead.Organization, rule.FieldPath)
			if !ok || !ruleeval.FieldOperator(rule.Operator, value, rule.GetValue()) {
				continue
			}
		default:
			continue
		}
		applied, err := e.applyRule(ctx, lead, event, &rule)
		if err != nil {
			return nil, err
		}
		if applied {
			result.RulesMatched = append(result.RulesMatched, rule.Slug)
			result.PointsAdded[rule.Category] += rule.Points
		}
	}

	demographic, engagement, behavior, err := e.repos.Leads.RecomputeCategoryScores(ctx, lead.ID)
	if err != nil {
		return nil, err
	}
	lead.DemographicScore = demographic
	lead.EngagementScore = engagement
	lead.BehaviorScore = behavior

	result.NewScores = map[string]int{
		models.CategoryDemographic: demographic,
		models.CategoryEngagement:  engagement,
		models.CategoryBehavior:    behavior,
	}

	postTotal := lead.TotalScore()
	result.TierCrossed, result.NewLifecycle = detectTierCrossing(preTotal, postTotal, lead.LifecycleStage)
	if result.NewLifecycle != "" {
		lead.LifecycleStage = result.NewLifecycle
	}

	return result, nil
}

func (e *Engine) matchesEventRule(lead *models.Lead, event *models.Event, rule *models.ScoringRule) bool {
	if rule.EventType != event.EventType {
		return false
	}
	return ruleeval.MatchEventMetadata(rule.MetadataPredicate, event.Metadata)
}

// applyRule records a score-history row after the per-rule rate caps pass;
// returns false (no error) when a cap rejects the firing, so the caller
// treats it as a silent skip per spec.md §7 "rate_limited_rule ... logged
// and silently skipped".
func (e *Engine) applyRule(ctx context.Context, lead *models.Lead, event *models.Event, rule *models.ScoringRule) (bool, error) {
	if rule.MaxPerDay != nil {
		count, err := e.repos.Scoring.CountRuleFiringsToday(ctx, lead.ID, rule.ID)
		if err != nil {
			return false, err
		}
		if int(count) >= *rule.MaxPerDay {
			return false, nil
		}
	}
	if rule.MaxPerLead != nil {
		count, err := e.repos.Scoring.CountRuleFiringsLifetime(ctx, lead.ID, rule.ID)
		if err != nil {
			return false, err
		}
		if int(count) >= *rule.MaxPerLead {
			return false, nil
		}
	}

	var expiresAt *time.Time
	if rule.DecayDays != nil {
		t := event.OccurredAt.AddDate(0, 0, *rule.DecayDays)
		expiresAt = &t
	}

	liveSum, err := e.liveCategorySum(ctx, lead.ID, rule.Category)
	if err != nil {
		return false, err
	}

	ruleID := rule.ID
	entry := &models.ScoreHistoryEntry{
		LeadID:       lead.ID,
		EventID:      &event.ID,
		RuleID:       &ruleID,
		Category:     rule.Category,
		PointsChange: rule.Points,
		NewTotal:     liveSum + rule.Points,
		ExpiresAt:    expiresAt,
	}
	if err := e.repos.Scoring.CreateHistoryEntry(ctx, entry); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) liveCategorySum(ctx context.Context, leadID uint, category string) (int, error) {
	demographic, engagement, behavior, err := e.repos.Leads.RecomputeCategoryScores(ctx, leadID)
	if err != nil {
		return 0, err
	}
	switch category {
	case models.CategoryDemographic:
		return demographic, nil
	case models.CategoryEngagement:
		return engagement, nil
	case models.CategoryBehavior:
		return behavior, nil
	default:
		return 0, nil
	}
}

// detectTierCrossing reports the highest new tier boundary crossed upward
// and the resulting lifecycle_stage promotion, spec.md §4.4. Lifecycle
// promotions are sticky — decay never reverses them, enforced simply by
// only ever calling this with an upward pre->post transition from the
// scoring path (the decay scheduler never calls it).
func detectTierCrossing(preTotal, postTotal int, currentLifecycle string) (tier, lifecycle string) {
	if postTotal >= tierVeryHotThreshold && preTotal < tierVeryHotThreshold {
		tier = models.TierVeryHot
	} else if postTotal >= tierHotThreshold && preTotal < tierHotThreshold {
		tier = models.TierHot
	} else if postTotal >= tierWarmThreshold && preTotal < tierWarmThreshold {
		tier = models.TierWarm
	}

	if postTotal >= tierHotThreshold && currentLifecycle != models.LifecycleSQL &&
		!isAtLeast(currentLifecycle, models.LifecycleSQL) {
		lifecycle = models.LifecycleSQL
	} else if postTotal >= tierWarmThreshold && !isAtLeast(currentLifecycle, models.LifecycleMQL) {
		lifecycle = models.LifecycleMQL
	}
	return tier, lifecycle
}

// lifecycleRank orders lifecycle stages so promotions are monotonic —
// scoring never demotes a lead already past the target stage (e.g. an
// opportunity-stage lead crossing 40 again stays an opportunity).
var lifecycleRank = map[string]int{
	models.LifecycleLead:        0,
	models.LifecycleMQL:         1,
	models.LifecycleSQL:         2,
	models.LifecycleOpportunity: 3,
	models.LifecycleCustomer:    4,
}

func isAtLeast(current, target string) bool {
	return lifecycleRank[current] >= lifecycleRank[target]
}
