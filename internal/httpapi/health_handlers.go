package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"leadpipeline/internal/config"
	"leadpipeline/internal/queue"
)

// HealthHandlers backs /healthz and /readyz — liveness is unconditional,
// readiness checks the database and Redis and reports each queue's
// failed-job depth
// (spec.md SUPPLEMENTAL FEATURES, grounded on the pack's common
// ping-dependencies health-check pattern).
type HealthHandlers struct {
	db    *gorm.DB
	rdb   *redis.Client
	queue *queue.Manager
	cfg   *config.Config
}

func NewHealthHandlers(db *gorm.DB, rdb *redis.Client, queueManager *queue.Manager, cfg *config.Config) *HealthHandlers {
	return &HealthHandlers{db: db, rdb: rdb, queue: queueManager, cfg: cfg}
}

func (h *HealthHandlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandlers) Readyz(c *gin.Context) {
	ctx := c.Request.Context()
	checks := gin.H{}
	ready := true

	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		checks["database"] = "unreachable"
		ready = false
	} else {
		checks["database"] = "ok"
	}

	if err := h.rdb.Ping(ctx).Err(); err != nil {
		checks["redis"] = "unreachable"
		ready = false
	} else {
		checks["redis"] = "ok"
	}

	backlog := gin.H{}
	for name := range h.cfg.Queues {
		failed, err := h.queue.FailedCount(ctx, name)
		if err == nil {
			backlog[name] = failed
		}
	}
	checks["queue_failed_counts"] = backlog

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"ready": ready, "checks": checks})
}
