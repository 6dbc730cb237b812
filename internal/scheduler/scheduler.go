// Package scheduler runs the Decay Scheduler (spec.md §4.8) and Daily
// Digest (spec.md §4.9) on robfig/cron — both jobs run directly in the
// cron callbacks, not through the "scheduled" queue.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"leadpipeline/internal/automation"
	"leadpipeline/internal/config"
	"leadpipeline/internal/notify"
	"leadpipeline/internal/repositories"
)

const hotThreshold = 80

// DecayResult is the Decay Scheduler's public operation result (spec.md §4.8).
type DecayResult struct {
	ExpiredCount    int
	LeadsUpdated    int
	ExecutionTimeMS int64
}

// DigestResult is the Daily Digest's public operation result (spec.md §4.9).
type DigestResult struct {
	NewLeads        int64
	HotLeads        int64
	DealsCreated    int64
	DealsWon        int64
	OpenPipelineValue float64
	TopSources      []repositories.SourceCount
}

type Scheduler struct {
	repos      *repositories.Repositories
	notify     *notify.Client
	automation *automation.Engine
	cfg        *config.Config
	cron       *cron.Cron
}

func New(repos *repositories.Repositories, notifier *notify.Client, automationEngine *automation.Engine, cfg *config.Config) *Scheduler {
	return &Scheduler{
		repos:      repos,
		notify:     notifier,
		automation: automationEngine,
		cfg:        cfg,
		cron:       cron.New(cron.WithLocation(time.Local)),
	}
}

// Start registers the decay and digest jobs at their configured local
// times and starts the cron loop.
func (s *Scheduler) Start() error {
	if !s.cfg.FeatureScoreDecay {
		log.Printf("scheduler: score decay disabled, skipping decay job registration")
	} else {
		spec, err := dailySpec(s.cfg.DecayScheduleLocalTime)
		if err != nil {
			return fmt.Errorf("decay schedule: %w", err)
		}
		if _, err := s.cron.AddFunc(spec, s.runDecay); err != nil {
			return fmt.Errorf("register decay job: %w", err)
		}
	}

	digestSpec, err := dailySpec(s.cfg.DigestScheduleLocalTime)
	if err != nil {
		return fmt.Errorf("digest schedule: %w", err)
	}
	if _, err := s.cron.AddFunc(digestSpec, s.runDigest); err != nil {
		return fmt.Errorf("register digest job: %w", err)
	}

	// time_in_stage automation rules are swept on the same daily cadence as
	// the digest, since decay can be disabled independently and this sweep
	// must run regardless (spec.md §4.7 step 4).
	if _, err := s.cron.AddFunc(digestSpec, s.runTimeInStageSweep); err != nil {
		return fmt.Errorf("register time_in_stage sweep job: %w", err)
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runDecay() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	result, err := s.RunDecay(ctx)
	if err != nil {
		log.Printf("scheduler: decay run failed: %v", err)
		return
	}
	log.Printf("scheduler: decay run expired=%d leads_updated=%d took=%dms", result.ExpiredCount, result.LeadsUpdated, result.ExecutionTimeMS)
}

func (s *Scheduler) runDigest() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if _, err := s.RunDigest(ctx); err != nil {
		log.Printf("scheduler: digest run failed: %v", err)
	}
}

func (s *Scheduler) runTimeInStageSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	result, err := s.automation.RunTimeInStageSweep(ctx)
	if err != nil {
		log.Printf("scheduler: time_in_stage sweep failed: %v", err)
		return
	}
	log.Printf("scheduler: time_in_stage sweep fired=%d", len(result.RulesFired))
}

// RunDecay implements spec.md §4.8: scans score_history for expired rows,
// marks them, and recomputes the affected leads' denormalized category
// totals. Lifecycle stages are never downgraded — RecomputeCategoryScores
// only rewrites the score fields, the Scoring Engine's stickiness logic for
// lifecycle_stage is never invoked from here.
func (s *Scheduler) RunDecay(ctx context.Context) (*DecayResult, error) {
	start := time.Now()
	now := start.UTC()

	entries, err := s.repos.Scoring.ExpirableEntries(ctx, now)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return &DecayResult{ExecutionTimeMS: time.Since(start).Milliseconds()}, nil
	}

	affectedLeads := map[uint]bool{}
	ids := make([]uint, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
		affectedLeads[e.LeadID] = true
	}

	if err := s.repos.Scoring.MarkExpired(ctx, ids, now); err != nil {
		return nil, err
	}

	for leadID := range affectedLeads {
		demographic, engagement, behavior, err := s.repos.Leads.RecomputeCategoryScores(ctx, leadID)
		if err != nil {
			return nil, err
		}
		if err := s.repos.Leads.UpdateField(ctx, leadID, "demographic_score", demographic); err != nil {
			return nil, err
		}
		if err := s.repos.Leads.UpdateField(ctx, leadID, "engagement_score", engagement); err != nil {
			return nil, err
		}
		if err := s.repos.Leads.UpdateField(ctx, leadID, "behavior_score", behavior); err != nil {
			return nil, err
		}
	}

	return &DecayResult{
		ExpiredCount:    len(entries),
		LeadsUpdated:    len(affectedLeads),
		ExecutionTimeMS: time.Since(start).Milliseconds(),
	}, nil
}

// RunDigest implements spec.md §4.9: aggregates the last 24h and emits a
// single chat-channel message.
func (s *Scheduler) RunDigest(ctx context.Context) (*DigestResult, error) {
	since := time.Now().UTC().Add(-24 * time.Hour)

	newLeads, err := s.repos.Leads.CountCreatedSince(ctx, since)
	if err != nil {
		return nil, err
	}
	hotLeads, err := s.repos.Leads.CountHotSince(ctx, since, hotThreshold)
	if err != nil {
		return nil, err
	}
	dealsCreated, err := s.repos.Deals.CountCreatedSince(ctx, since)
	if err != nil {
		return nil, err
	}
	dealsWon, err := s.repos.Deals.CountWonSince(ctx, since)
	if err != nil {
		return nil, err
	}
	openValue, err := s.repos.Deals.SumOpenValue(ctx)
	if err != nil {
		return nil, err
	}
	topSources, err := s.repos.Leads.TopSourcesSince(ctx, since, 5)
	if err != nil {
		return nil, err
	}

	result := &DigestResult{
		NewLeads:          newLeads,
		HotLeads:          hotLeads,
		DealsCreated:       dealsCreated,
		DealsWon:          dealsWon,
		OpenPipelineValue: openValue,
		TopSources:        topSources,
	}

	if err := s.notify.SendSimpleMessage(ctx, "#marketing-digest", formatDigest(result)); err != nil {
		return nil, err
	}
	return result, nil
}

func formatDigest(r *DigestResult) string {
	msg := fmt.Sprintf("📊 Daily digest — %d new leads, %d hot leads, %d deals created, %d deals won, %.2f open pipeline value.",
		r.NewLeads, r.HotLeads, r.DealsCreated, r.DealsWon, r.OpenPipelineValue)
	if len(r.TopSources) > 0 {
		msg += " Top sources:"
		for _, s := range r.TopSources {
			msg += fmt.Sprintf(" %s (%d)", s.Source, s.Count)
		}
	}
	return msg
}

// dailySpec converts an "HH:MM" local-time string into a standard 5-field
// cron spec firing once a day.
func dailySpec(hhmm string) (string, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return "", fmt.Errorf("invalid schedule time %q: %w", hhmm, err)
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
}
