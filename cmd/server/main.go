package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"leadpipeline/internal/adminauth"
	"leadpipeline/internal/automation"
	"leadpipeline/internal/config"
	"leadpipeline/internal/events"
	"leadpipeline/internal/httpapi"
	"leadpipeline/internal/identity"
	"leadpipeline/internal/intent"
	"leadpipeline/internal/middleware"
	"leadpipeline/internal/moco"
	"leadpipeline/internal/notify"
	"leadpipeline/internal/queue"
	"leadpipeline/internal/repositories"
	"leadpipeline/internal/routing"
	"leadpipeline/internal/scheduler"
	"leadpipeline/internal/scoring"
)

func main() {
	log.Println("🚀 starting lead pipeline backend...")

	cfg := config.LoadConfig()
	log.Println("⚙️ configuration loaded")

	gormDB, err := openDB(cfg)
	if err != nil {
		log.Fatalf("❌ database connection failed: %v", err)
	}
	log.Println("📊 database connected")

	if err := repositories.Migrate(gormDB); err != nil {
		log.Fatalf("❌ schema migration failed: %v", err)
	}

	rdb := redis.NewClient(mustParseRedisURL(cfg.RedisURL))
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("❌ redis connection failed: %v", err)
	}
	log.Println("🔴 redis connected")

	repos := repositories.New(gormDB)
	log.Println("📚 repositories initialized")

	resolver := identity.NewResolver(repos.Leads)
	notifier := notify.NewClient(cfg)
	mocoClient := moco.NewClient(cfg)
	queueManager := queue.NewManager(rdb)

	scoringEngine := scoring.NewEngine(repos, cfg.RuleCacheTTL)
	intentDetector := intent.NewDetector(repos, cfg.RuleCacheTTL)
	automationEngine := automation.NewEngine(repos, notifier, mocoClient, queueManager, cfg.RuleCacheTTL)
	router := routing.NewRouter(repos, notifier)
	log.Println("🎯 scoring, intent, automation, and routing engines initialized")

	eventWorker := events.NewWorker(repos, resolver, scoringEngine, intentDetector, automationEngine, queueManager)

	queueManager.Register(config.QueueEvents, cfg.Queues[config.QueueEvents], eventWorker.Handler())
	queueManager.Register(config.QueueRouting, cfg.Queues[config.QueueRouting], router.Handler())
	queueManager.Register(config.QueueSync, cfg.Queues[config.QueueSync], moco.Handler(mocoClient, repos))
	queueManager.Register(config.QueueScheduled, cfg.Queues[config.QueueScheduled], noopHandler)
	queueManager.Register(config.QueueNotifications, cfg.Queues[config.QueueNotifications], noopHandler)
	log.Println("🛠️ worker pools registered: events, routing, sync, scheduled, notifications")

	ctx, cancel := context.WithCancel(context.Background())
	queueManager.Start(ctx)
	log.Println("✅ queue manager started")

	sched := scheduler.New(repos, notifier, automationEngine, cfg)
	if err := sched.Start(); err != nil {
		log.Fatalf("❌ scheduler failed to start: %v", err)
	}
	log.Println("🗓️ scheduler started: decay, digest, time_in_stage sweep")

	limiter := middleware.NewEndpointRateLimiter(cfg.RateLimitMax, cfg.RateLimitMax*60, time.Minute)

	gin.SetMode(releaseModeFor(cfg))
	r := gin.Default()
	r.Use(middleware.InjectDB(gormDB), middleware.InjectRedis(rdb), middleware.InjectRepos(repos), middleware.InjectQueue(queueManager))

	handlers := &httpapi.Handlers{
		Ingest:          httpapi.NewIngestHandlers(queueManager),
		Leads:           httpapi.NewLeadHandlers(repos, router),
		ScoringRules:    httpapi.NewScoringRuleHandlers(repos, scoringEngine),
		IntentRules:     httpapi.NewIntentRuleHandlers(repos, intentDetector),
		AutomationRules: httpapi.NewAutomationRuleHandlers(repos, automationEngine),
		Health:          httpapi.NewHealthHandlers(gormDB, rdb, queueManager, cfg),
		AdminAuth:       adminauth.NewHandlers(repos, cfg.JWTSecret),
	}
	httpapi.RegisterRoutes(r, handlers, cfg, limiter)
	log.Println("🛣️ routes registered")

	server := &http.Server{
		Addr:    cfg.Host + ":" + cfg.Port,
		Handler: r,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("🌐 listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ server error: %v", err)
		}
	}()

	<-done
	log.Println("🛑 shutdown signal received, draining in-flight work...")

	cancel()
	queueManager.Shutdown(cfg.ShutdownGrace)
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ http server shutdown error: %v", err)
	}

	log.Println("✅ shutdown complete")
}

// openDB dials postgres in production and sqlite for local/test runs,
// selecting the dialector from the configured environment instead of
// hardcoding postgres.
func openDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.NodeEnv == "test" || cfg.DatabaseURL == "" {
		return gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	}
	return gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
}

func mustParseRedisURL(raw string) *redis.Options {
	opts, err := redis.ParseURL(raw)
	if err != nil {
		log.Fatalf("❌ invalid REDIS_URL: %v", err)
	}
	return opts
}

func releaseModeFor(cfg *config.Config) string {
	if cfg.IsProduction() {
		return gin.ReleaseMode
	}
	return gin.DebugMode
}

// noopHandler backs the "scheduled" and "notifications" queues. Scheduled
// tasks run directly off cron in internal/scheduler rather than through a
// queue, and every Slack/email send in this codebase happens synchronously
// from the caller (router, automation engine) rather than being enqueued —
// both queues are reserved for a future async path, not dead weight today.
func noopHandler(ctx context.Context, job *queue.Job) error {
	log.Printf("%s queue: no handler registered for job type %s", job.Queue, job.Type)
	return nil
}
