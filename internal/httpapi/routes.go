package httpapi

import (
	"github.com/gin-gonic/gin"

	"leadpipeline/internal/adminauth"
	"leadpipeline/internal/config"
	"leadpipeline/internal/middleware"
)

// Handlers bundles every constructed handler group for route registration,
// one field per concern, passed once to the registration functions.
type Handlers struct {
	Ingest          *IngestHandlers
	Leads           *LeadHandlers
	ScoringRules    *ScoringRuleHandlers
	IntentRules     *IntentRuleHandlers
	AutomationRules *AutomationRuleHandlers
	Health          *HealthHandlers
	AdminAuth       *adminauth.Handlers
}

// RegisterRoutes wires every endpoint from spec.md §6 plus the
// supplemental operability surface onto r. Rule-admin endpoints require an
// operator bearer token (internal/adminauth); ingestion uses the separate
// per-source HMAC/API-key gate; lead reads and health checks are open to
// any internal caller.
func RegisterRoutes(r *gin.Engine, h *Handlers, cfg *config.Config, limiter *middleware.EndpointRateLimiter) {
	r.GET("/healthz", h.Health.Healthz)
	r.GET("/readyz", h.Health.Readyz)

	r.POST("/admin/login", h.AdminAuth.Login)

	events := r.Group("/events")
	events.Use(middleware.EventAuth(cfg), limiter.RateLimit())
	{
		events.POST("", h.Ingest.Ingest)
		events.POST("/bulk", h.Ingest.Bulk)
	}

	leads := r.Group("/leads")
	{
		leads.GET("", h.Leads.List)
		leads.GET("/unrouted", h.Leads.Unrouted)
		leads.GET("/:id", h.Leads.Get)
		leads.POST("/:id/route", h.Leads.Route)
		leads.DELETE("/:id", h.Leads.DeleteForGDPR)
	}

	scoringRules := r.Group("/scoring/rules")
	scoringRules.Use(adminauth.Middleware(cfg.JWTSecret))
	{
		scoringRules.GET("", h.ScoringRules.List)
		scoringRules.POST("", h.ScoringRules.Create)
		scoringRules.PUT("/:id", h.ScoringRules.Update)
		scoringRules.DELETE("/:id", h.ScoringRules.Delete)
	}

	admin := r.Group("")
	admin.Use(adminauth.Middleware(cfg.JWTSecret))
	{
		admin.POST("/intent/rules", h.IntentRules.Create)
		admin.POST("/automation/rules", h.AutomationRules.Create)
	}
}
