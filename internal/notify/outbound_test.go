package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpipeline/internal/config"
)

func TestSendHotLeadIsNoopWhenSlackDisabled(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	cfg := &config.Config{}
	cfg.Slack.Enabled = false
	cfg.Slack.WebhookURL = server.URL
	cfg.FeatureSlackAlerts = true

	client := NewClient(cfg)
	err := client.SendHotLead(context.Background(), HotLeadMessage{LeadID: 1, Name: "Jane", Email: "jane@acme.com", TotalScore: 90})
	require.NoError(t, err)
	assert.False(t, called, "a disabled Slack integration must never reach the webhook")
}

func TestSendHotLeadIsNoopWhenFeatureFlagOff(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	cfg := &config.Config{}
	cfg.Slack.Enabled = true
	cfg.Slack.WebhookURL = server.URL
	cfg.FeatureSlackAlerts = false

	client := NewClient(cfg)
	err := client.SendHotLead(context.Background(), HotLeadMessage{LeadID: 1, Name: "Jane", Email: "jane@acme.com"})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestSendConflictPostsExpectedPayload(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer server.Close()

	cfg := &config.Config{}
	cfg.Slack.Enabled = true
	cfg.Slack.WebhookURL = server.URL
	cfg.FeatureSlackAlerts = true

	client := NewClient(cfg)
	err := client.SendConflict(context.Background(), ConflictMessage{
		LeadID: 7, Name: "Jane", Email: "jane@acme.com",
		Summary: map[string]int{"research": 50, "b2b": 50, "co_creation": 0},
	})
	require.NoError(t, err)
	assert.Equal(t, "#routing-review", received["channel"])
}

func TestSendSimpleMessageSurfacesDownstreamRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	cfg := &config.Config{}
	cfg.Slack.Enabled = true
	cfg.Slack.WebhookURL = server.URL
	cfg.FeatureSlackAlerts = true
	cfg.OutboundMaxRetries = 0

	client := NewClient(cfg)
	err := client.SendSimpleMessage(context.Background(), "#general", "hello")
	require.Error(t, err)
}

func TestCalculateBackoffDelayStaysWithinJitterBounds(t *testing.T) {
	base, max := 1*time.Second, 30*time.Second
	delay := calculateBackoffDelay(1, base, max)
	assert.GreaterOrEqual(t, delay, base)
	assert.Less(t, delay, base+250*time.Millisecond)

	capped := calculateBackoffDelay(10, base, max)
	assert.GreaterOrEqual(t, capped, max)
	assert.Less(t, capped, max+250*time.Millisecond)
}
