package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"leadpipeline/internal/automation"
	"leadpipeline/internal/config"
	"leadpipeline/internal/intent"
	"leadpipeline/internal/models"
	"leadpipeline/internal/moco"
	"leadpipeline/internal/notify"
	"leadpipeline/internal/queue"
	"leadpipeline/internal/repositories"
	"leadpipeline/internal/scoring"
)

func newTestRuleDeps(t *testing.T) *repositories.Repositories {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, repositories.Migrate(db))
	return repositories.New(db)
}

func TestScoringRuleHandlersCRUD(t *testing.T) {
	repos := newTestRuleDeps(t)
	engine := scoring.NewEngine(repos, time.Minute)
	h := NewScoringRuleHandlers(repos, engine)

	router := gin.New()
	router.GET("/rules", h.List)
	router.POST("/rules", h.Create)
	router.PUT("/rules/:id", h.Update)
	router.DELETE("/rules/:id", h.Delete)

	body, err := json.Marshal(models.ScoringRule{
		Slug: "pricing-view", Category: models.CategoryBehavior, RuleType: "event",
		EventType: "page_view", MetadataPredicate: models.JSONMap{"page": "pricing"}, Points: 10,
	})
	require.NoError(t, err)

	createRec := httptest.NewRecorder()
	router.ServeHTTP(createRec, httptest.NewRequest(http.MethodPost, "/rules", bytes.NewReader(body)))
	assert.Equal(t, http.StatusCreated, createRec.Code)

	var created models.ScoringRule
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)

	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, httptest.NewRequest(http.MethodGet, "/rules", nil))
	assert.Equal(t, http.StatusOK, listRec.Code)

	created.Points = 20
	updateBody, err := json.Marshal(created)
	require.NoError(t, err)
	updateRec := httptest.NewRecorder()
	router.ServeHTTP(updateRec, httptest.NewRequest(http.MethodPut, "/rules/"+strconv.Itoa(int(created.ID)), bytes.NewReader(updateBody)))
	assert.Equal(t, http.StatusOK, updateRec.Code)

	deleteRec := httptest.NewRecorder()
	router.ServeHTTP(deleteRec, httptest.NewRequest(http.MethodDelete, "/rules/"+strconv.Itoa(int(created.ID)), nil))
	assert.Equal(t, http.StatusNoContent, deleteRec.Code)

	rules, err := repos.Scoring.ListRules(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestScoringRuleCreateRejectsInvalidJSON(t *testing.T) {
	repos := newTestRuleDeps(t)
	engine := scoring.NewEngine(repos, time.Minute)
	h := NewScoringRuleHandlers(repos, engine)

	router := gin.New()
	router.POST("/rules", h.Create)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rules", bytes.NewReader([]byte("not json"))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIntentRuleHandlersCreateInvalidatesCache(t *testing.T) {
	repos := newTestRuleDeps(t)
	detector := intent.NewDetector(repos, time.Minute)
	h := NewIntentRuleHandlers(repos, detector)

	router := gin.New()
	router.POST("/intent-rules", h.Create)

	body, err := json.Marshal(models.IntentRule{
		TargetIntent: "pricing_research", TriggerType: "event", EventType: "page_view",
		MetadataPredicate: models.JSONMap{"page": "pricing"}, ConfidencePoints: 80,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/intent-rules", bytes.NewReader(body)))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestAutomationRuleHandlersCreate(t *testing.T) {
	repos := newTestRuleDeps(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	cfg := &config.Config{}
	engine := automation.NewEngine(repos, notify.NewClient(cfg), moco.NewClient(cfg), queue.NewManager(rdb), time.Minute)
	h := NewAutomationRuleHandlers(repos, engine)

	router := gin.New()
	router.POST("/automation-rules", h.Create)

	body, err := json.Marshal(models.AutomationRule{
		Name: "move-on-demo", TriggerType: "event",
		TriggerConfig: models.JSONMap{"event_type": "demo_requested"},
		ActionType:    "move_to_stage", ActionConfig: models.JSONMap{"stage_type": "interest"},
		IsActive: true,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/automation-rules", bytes.NewReader(body)))
	assert.Equal(t, http.StatusCreated, rec.Code)
}
