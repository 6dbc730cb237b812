// Package httpapi is the gin HTTP boundary (spec.md §4.1/§6): ingestion,
// lead reads, manual routing triggers, and rule CRUD — one small struct
// per concern, holding its dependencies, with a constructor and c.JSON
// responses.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"leadpipeline/internal/apperr"
	"leadpipeline/internal/identity"
	"leadpipeline/internal/queue"
)

// IngestHandlers accepts POSTed events and hands them to the events queue
// without touching the primary store synchronously (spec.md §4.1).
type IngestHandlers struct {
	queue *queue.Manager
}

func NewIngestHandlers(queueManager *queue.Manager) *IngestHandlers {
	return &IngestHandlers{queue: queueManager}
}

// ingestRequest mirrors events.IngestInput's wire shape. Kept as a
// separate type so the HTTP boundary's JSON binding stays decoupled from
// the worker's internal representation.
type ingestRequest struct {
	EventType      string                 `json:"event_type" binding:"required"`
	Source         string                 `json:"source" binding:"required"`
	OccurredAt     time.Time              `json:"occurred_at" binding:"required"`
	LeadIdentifier identity.Identifier    `json:"lead_identifier" binding:"required"`
	Metadata       map[string]interface{} `json:"metadata"`
	CorrelationID  string                 `json:"correlation_id"`
	CampaignID     string                 `json:"campaign_id"`
	UTMSource      string                 `json:"utm_source"`
	UTMMedium      string                 `json:"utm_medium"`
	UTMCampaign    string                 `json:"utm_campaign"`
}

func (r ingestRequest) toPayload() map[string]interface{} {
	return map[string]interface{}{
		"event_type":      r.EventType,
		"source":          r.Source,
		"occurred_at":     r.OccurredAt,
		"lead_identifier": r.LeadIdentifier,
		"metadata":        r.Metadata,
		"correlation_id":  r.CorrelationID,
		"campaign_id":     r.CampaignID,
		"utm_source":      r.UTMSource,
		"utm_medium":      r.UTMMedium,
		"utm_campaign":    r.UTMCampaign,
	}
}

// Ingest enqueues a single event (spec.md §4.1). Accepted synchronously;
// all durability and processing is deferred to the Event Worker.
func (h *IngestHandlers) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.NewValidation(err.Error()))
		return
	}
	if req.LeadIdentifier.Empty() {
		respondError(c, apperr.NewValidation(identity.ErrNoIdentifier().Error()))
		return
	}

	eventID := queue.NewEventID()
	payload := req.toPayload()
	payload["event_id"] = eventID
	if err := h.queue.Enqueue(c.Request.Context(), "events", "ingest", payload, ""); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"event_id":  eventID,
		"status":    "queued",
		"queued_at": time.Now().UTC(),
	})
}

// bulkIngestRequest carries an array of events under one signature, for
// conference/CSV imports (spec.md §4.1 "second variant").
type bulkIngestRequest struct {
	Events []ingestRequest `json:"events" binding:"required,min=1"`
}

// Bulk enqueues each event in the batch as an independent job sharing a
// batch id, under the same HMAC signature as a single-event request.
func (h *IngestHandlers) Bulk(c *gin.Context) {
	var req bulkIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.NewValidation(err.Error()))
		return
	}

	batchID := queue.NewEventID()
	accepted := make([]string, 0, len(req.Events))
	for _, item := range req.Events {
		if item.LeadIdentifier.Empty() {
			continue
		}
		eventID := queue.NewEventID()
		payload := item.toPayload()
		payload["event_id"] = eventID
		payload["batch_id"] = batchID
		if err := h.queue.Enqueue(c.Request.Context(), "events", "ingest", payload, ""); err != nil {
			respondError(c, err)
			return
		}
		accepted = append(accepted, eventID)
	}

	c.JSON(http.StatusAccepted, gin.H{
		"batch_id":  batchID,
		"accepted":  len(accepted),
		"event_ids": accepted,
		"queued_at": time.Now().UTC(),
	})
}

// respondError maps an apperr.Error to its HTTP status and renders it as
// {error:{code,message,details}}, the same shape the EventAuth middleware
// uses; any other error is treated as an internal failure.
func respondError(c *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "internal_error", "message": err.Error()}})
		return
	}
	c.JSON(statusForKind(appErr.Kind), gin.H{"error": gin.H{
		"code":    appErr.Code,
		"message": appErr.Message,
		"details": appErr.Details,
	}})
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.Unauthorized:
		return http.StatusUnauthorized
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.RateLimitedRule:
		return http.StatusTooManyRequests
	case apperr.TransientIO, apperr.DownstreamRejected:
		return http.StatusBadGateway
	case apperr.InvariantViolation:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
