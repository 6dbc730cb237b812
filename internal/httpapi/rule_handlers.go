package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"leadpipeline/internal/apperr"
	"leadpipeline/internal/automation"
	"leadpipeline/internal/intent"
	"leadpipeline/internal/models"
	"leadpipeline/internal/repositories"
	"leadpipeline/internal/scoring"
)

// ruleInvalidator is the common shape of the three rule-cached engines —
// the rule-admin surface invalidates whichever one owns the rule just
// written (spec.md §9's TTL+manual-invalidate cache design note).
type ruleInvalidator interface {
	InvalidateRules()
}

// ScoringRuleHandlers implements scoring.rules CRUD (spec.md §6).
type ScoringRuleHandlers struct {
	repos  *repositories.Repositories
	engine *scoring.Engine
}

func NewScoringRuleHandlers(repos *repositories.Repositories, engine *scoring.Engine) *ScoringRuleHandlers {
	return &ScoringRuleHandlers{repos: repos, engine: engine}
}

func (h *ScoringRuleHandlers) List(c *gin.Context) {
	rules, err := h.repos.Scoring.ListRules(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

func (h *ScoringRuleHandlers) Create(c *gin.Context) {
	var rule models.ScoringRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		respondError(c, apperr.NewValidation(err.Error()))
		return
	}
	if err := h.repos.Scoring.CreateRule(c.Request.Context(), &rule); err != nil {
		respondError(c, err)
		return
	}
	h.engine.InvalidateRules()
	c.JSON(http.StatusCreated, rule)
}

func (h *ScoringRuleHandlers) Update(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var rule models.ScoringRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		respondError(c, apperr.NewValidation(err.Error()))
		return
	}
	rule.ID = id
	if err := h.repos.Scoring.UpdateRule(c.Request.Context(), &rule); err != nil {
		respondError(c, err)
		return
	}
	h.engine.InvalidateRules()
	c.JSON(http.StatusOK, rule)
}

func (h *ScoringRuleHandlers) Delete(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.repos.Scoring.DeleteRule(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	h.engine.InvalidateRules()
	c.Status(http.StatusNoContent)
}

// IntentRuleHandlers covers intent.rules creation for the Intent
// Detector's admin surface (Create only; no list, update or delete).
type IntentRuleHandlers struct {
	repos    *repositories.Repositories
	detector *intent.Detector
}

func NewIntentRuleHandlers(repos *repositories.Repositories, detector *intent.Detector) *IntentRuleHandlers {
	return &IntentRuleHandlers{repos: repos, detector: detector}
}

func (h *IntentRuleHandlers) Create(c *gin.Context) {
	var rule models.IntentRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		respondError(c, apperr.NewValidation(err.Error()))
		return
	}
	if err := h.repos.Intent.CreateRule(c.Request.Context(), &rule); err != nil {
		respondError(c, err)
		return
	}
	h.detector.InvalidateRules()
	c.JSON(http.StatusCreated, rule)
}

// AutomationRuleHandlers covers automation.rules creation (Create only; no
// list, update or delete).
type AutomationRuleHandlers struct {
	repos  *repositories.Repositories
	engine *automation.Engine
}

func NewAutomationRuleHandlers(repos *repositories.Repositories, engine *automation.Engine) *AutomationRuleHandlers {
	return &AutomationRuleHandlers{repos: repos, engine: engine}
}

func (h *AutomationRuleHandlers) Create(c *gin.Context) {
	var rule models.AutomationRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		respondError(c, apperr.NewValidation(err.Error()))
		return
	}
	if err := h.repos.Automation.CreateRule(c.Request.Context(), &rule); err != nil {
		respondError(c, err)
		return
	}
	h.engine.InvalidateRules()
	c.JSON(http.StatusCreated, rule)
}

// ensure the three engines all satisfy ruleInvalidator, caught at compile
// time rather than left implicit.
var (
	_ ruleInvalidator = (*scoring.Engine)(nil)
	_ ruleInvalidator = (*intent.Detector)(nil)
	_ ruleInvalidator = (*automation.Engine)(nil)
)

func parseID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, apperr.NewValidation("invalid id")
	}
	return uint(id), nil
}
