package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpipeline/internal/queue"
)

func newTestIngestHandlers(t *testing.T) *IngestHandlers {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewIngestHandlers(queue.NewManager(rdb))
}

func TestIngestAcceptsAWellFormedEvent(t *testing.T) {
	h := newTestIngestHandlers(t)
	engine := gin.New()
	engine.POST("/events", h.Ingest)

	body, err := json.Marshal(map[string]interface{}{
		"event_type":      "page_view",
		"source":          "website",
		"occurred_at":     time.Now().UTC().Format(time.RFC3339),
		"lead_identifier": map[string]string{"email": "jane@acme.com"},
		"metadata":        map[string]interface{}{"page": "pricing"},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(body)))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["event_id"])
	assert.Equal(t, "queued", resp["status"])
}

func TestIngestRejectsEmptyIdentifier(t *testing.T) {
	h := newTestIngestHandlers(t)
	engine := gin.New()
	engine.POST("/events", h.Ingest)

	body, err := json.Marshal(map[string]interface{}{
		"event_type":      "page_view",
		"source":          "website",
		"occurred_at":     time.Now().UTC().Format(time.RFC3339),
		"lead_identifier": map[string]string{},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestRejectsMissingRequiredFields(t *testing.T) {
	h := newTestIngestHandlers(t)
	engine := gin.New()
	engine.POST("/events", h.Ingest)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader([]byte(`{}`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBulkAcceptsOnlyEventsWithAnIdentifier(t *testing.T) {
	h := newTestIngestHandlers(t)
	engine := gin.New()
	engine.POST("/events/bulk", h.Bulk)

	body, err := json.Marshal(map[string]interface{}{
		"events": []map[string]interface{}{
			{
				"event_type":      "page_view",
				"source":          "website",
				"occurred_at":     time.Now().UTC().Format(time.RFC3339),
				"lead_identifier": map[string]string{"email": "a@b.com"},
			},
			{
				"event_type":      "page_view",
				"source":          "website",
				"occurred_at":     time.Now().UTC().Format(time.RFC3339),
				"lead_identifier": map[string]string{},
			},
		},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events/bulk", bytes.NewReader(body)))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 1, resp["accepted"])
}
