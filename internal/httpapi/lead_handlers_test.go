package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"leadpipeline/internal/config"
	"leadpipeline/internal/models"
	"leadpipeline/internal/notify"
	"leadpipeline/internal/repositories"
	"leadpipeline/internal/routing"
)

func newTestLeadHandlers(t *testing.T) (*LeadHandlers, *repositories.Repositories) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, repositories.Migrate(db))
	repos := repositories.New(db)
	router := routing.NewRouter(repos, notify.NewClient(&config.Config{}))
	return NewLeadHandlers(repos, router), repos
}

func TestGetReturnsLeadByID(t *testing.T) {
	h, repos := newTestLeadHandlers(t)
	lead := &models.Lead{Email: "a@b.com"}
	require.NoError(t, repos.Leads.Create(context.Background(), lead))

	engine := gin.New()
	engine.GET("/leads/:id", h.Get)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/leads/"+strconv.Itoa(int(lead.ID)), nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var got models.Lead
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "a@b.com", got.Email)
}

func TestGetReturnsNotFoundForMissingLead(t *testing.T) {
	h, _ := newTestLeadHandlers(t)
	engine := gin.New()
	engine.GET("/leads/:id", h.Get)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/leads/999", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRejectsNonNumericID(t *testing.T) {
	h, _ := newTestLeadHandlers(t)
	engine := gin.New()
	engine.GET("/leads/:id", h.Get)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/leads/not-a-number", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnroutedListsOnlyUnroutedLeads(t *testing.T) {
	h, repos := newTestLeadHandlers(t)
	ctx := context.Background()
	require.NoError(t, repos.Leads.Create(ctx, &models.Lead{Email: "a@b.com", RoutingStatus: models.RoutingStatusUnrouted}))
	pipelineID := uint(1)
	require.NoError(t, repos.Leads.Create(ctx, &models.Lead{Email: "c@d.com", RoutingStatus: models.RoutingStatusRouted, PipelineID: &pipelineID}))

	engine := gin.New()
	engine.GET("/leads/unrouted", h.Unrouted)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/leads/unrouted", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Leads []models.Lead `json:"leads"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Leads, 1)
	assert.Equal(t, "a@b.com", resp.Leads[0].Email)
}

func TestDeleteForGDPRStampsDeletionRequestedAt(t *testing.T) {
	h, repos := newTestLeadHandlers(t)
	ctx := context.Background()
	lead := &models.Lead{Email: "a@b.com"}
	require.NoError(t, repos.Leads.Create(ctx, lead))

	engine := gin.New()
	engine.DELETE("/leads/:id", h.DeleteForGDPR)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/leads/"+strconv.Itoa(int(lead.ID)), nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	reloaded, err := repos.Leads.FindByID(ctx, lead.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsRoutable())
}

func TestRouteRunsTheRouterSynchronously(t *testing.T) {
	h, repos := newTestLeadHandlers(t)
	ctx := context.Background()
	lead := &models.Lead{Email: "a@b.com", DemographicScore: 10}
	require.NoError(t, repos.Leads.Create(ctx, lead))

	engine := gin.New()
	engine.POST("/leads/:id/route", h.Route)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/leads/"+strconv.Itoa(int(lead.ID))+"/route", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var action map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &action))
	assert.Equal(t, "wait", action["action"])
}
