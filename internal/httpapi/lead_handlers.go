package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"leadpipeline/internal/apperr"
	"leadpipeline/internal/repositories"
	"leadpipeline/internal/routing"
)

// LeadHandlers serves read access to leads and the manual routing trigger
// (spec.md §6's leads/routing surface).
type LeadHandlers struct {
	repos  *repositories.Repositories
	router *routing.Router
}

func NewLeadHandlers(repos *repositories.Repositories, router *routing.Router) *LeadHandlers {
	return &LeadHandlers{repos: repos, router: router}
}

// List returns a page of leads ordered by most recently created.
func (h *LeadHandlers) List(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)
	leads, err := h.repos.Leads.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leads": leads, "limit": limit, "offset": offset})
}

// Get returns one lead by id.
func (h *LeadHandlers) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, apperr.NewValidation("invalid lead id"))
		return
	}
	lead, err := h.repos.Leads.FindByID(c.Request.Context(), uint(id))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, apperr.NewNotFound("lead"))
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lead)
}

// Unrouted lists leads still sitting in the Global Pool.
func (h *LeadHandlers) Unrouted(c *gin.Context) {
	limit := queryInt(c, "limit", 100)
	leads, err := h.repos.Leads.Unrouted(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leads": leads})
}

// Route runs the Pipeline Router synchronously for one lead — an
// operator-facing override of the usual routing-queue path, useful for
// re-evaluating a lead stuck in manual_review (spec.md §4.6).
func (h *LeadHandlers) Route(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, apperr.NewValidation("invalid lead id"))
		return
	}
	action, err := h.router.EvaluateAndRoute(c.Request.Context(), uint(id))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, action)
}

// DeleteForGDPR marks a lead as deletion-requested: it is retained (for
// audit/ledger integrity) but never again used as a routing source
// (spec.md §3 "deletion-requested timestamp... never used as a routing
// source").
func (h *LeadHandlers) DeleteForGDPR(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, apperr.NewValidation("invalid lead id"))
		return
	}
	now := time.Now().UTC()
	if err := h.repos.Leads.UpdateField(c.Request.Context(), uint(id), "deletion_requested_at", now); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lead_id": id, "deletion_requested_at": now})
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
