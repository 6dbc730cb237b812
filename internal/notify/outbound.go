// Package notify sends outbound Slack/chat and SMTP notifications, with a
// retry/backoff shape (ExecuteWithRetry, calculateBackoffDelay) applied to
// a chat webhook and a mail sender.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/smtp"
	"time"

	"leadpipeline/internal/apperr"
	"leadpipeline/internal/config"
)

// Client sends chat and email notifications with the outbound retry policy
// from spec.md §5 (10s timeout, 3 attempts, exponential backoff + jitter).
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.OutboundTimeout},
		maxRetries: cfg.OutboundMaxRetries,
		baseDelay:  1 * time.Second,
		maxDelay:   30 * time.Second,
	}
}

// HotLeadMessage is the canonical hot-lead chat shape (spec.md §6).
type HotLeadMessage struct {
	LeadID     uint
	Name       string
	Email      string
	TotalScore int
	Intent     string
	Confidence int
	JobTitle   string
}

// ConflictMessage is the canonical routing-conflict chat shape (spec.md §6).
type ConflictMessage struct {
	LeadID  uint
	Name    string
	Email   string
	Summary map[string]int // research, b2b, co_creation points
}

func (c *Client) SendHotLead(ctx context.Context, msg HotLeadMessage) error {
	if !c.cfg.Slack.Enabled || !c.cfg.FeatureSlackAlerts {
		return nil
	}
	payload := map[string]interface{}{
		"channel": "#hot-leads",
		"text":    fmt.Sprintf("🔥 Hot lead: %s (%s) — score %d, intent %s (%d%%)", msg.Name, msg.Email, msg.TotalScore, msg.Intent, msg.Confidence),
		"blocks": []map[string]interface{}{
			{
				"type": "section",
				"text": map[string]string{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*%s* — %s\nScore: %d | Intent: %s (%d%%)\n%s", msg.Name, msg.Email, msg.TotalScore, msg.Intent, msg.Confidence, msg.JobTitle),
				},
			},
			{
				"type": "actions",
				"elements": []map[string]string{
					{"type": "button", "text": "View lead", "action_id": fmt.Sprintf("lead_detail:%d", msg.LeadID)},
					{"type": "button", "text": "Call now", "action_id": fmt.Sprintf("call_now:%d", msg.LeadID)},
				},
			},
		},
	}
	return c.postSlack(ctx, "hot_lead", payload)
}

func (c *Client) SendConflict(ctx context.Context, msg ConflictMessage) error {
	if !c.cfg.Slack.Enabled || !c.cfg.FeatureSlackAlerts {
		return nil
	}
	buttons := make([]map[string]string, 0, 3)
	for _, intent := range []string{"research", "b2b", "co_creation"} {
		buttons = append(buttons, map[string]string{
			"type":      "button",
			"text":      intent,
			"action_id": fmt.Sprintf("route:%d:%s", msg.LeadID, intent),
		})
	}
	payload := map[string]interface{}{
		"channel": "#routing-review",
		"text":    fmt.Sprintf("⚠️ Intent conflict for %s (%s)", msg.Name, msg.Email),
		"blocks": []map[string]interface{}{
			{
				"type": "section",
				"text": map[string]string{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*%s* — %s\nresearch: %d | b2b: %d | co_creation: %d",
						msg.Name, msg.Email, msg.Summary["research"], msg.Summary["b2b"], msg.Summary["co_creation"]),
				},
			},
			{"type": "actions", "elements": buttons},
		},
	}
	return c.postSlack(ctx, "routing_conflict", payload)
}

func (c *Client) SendSimpleMessage(ctx context.Context, channel, text string) error {
	if !c.cfg.Slack.Enabled || !c.cfg.FeatureSlackAlerts {
		return nil
	}
	return c.postSlack(ctx, "simple_message", map[string]interface{}{"channel": channel, "text": text})
}

func (c *Client) postSlack(ctx context.Context, operation string, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, err = c.executeWithRetry(ctx, operation, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Slack.WebhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return c.httpClient.Do(req)
	})
	return err
}

func (c *Client) SendEmail(to, subject, body string) error {
	s := c.cfg.SMTP
	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}

	msg := []byte(fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		s.FromName, s.FromAddress, to, subject, body))

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(calculateBackoffDelay(attempt, c.baseDelay, c.maxDelay))
		}
		if err := smtp.SendMail(addr, auth, s.FromAddress, []string{to}, msg); err != nil {
			lastErr = err
			log.Printf("notify: email to %s failed (attempt %d/%d): %v", to, attempt+1, c.maxRetries+1, err)
			continue
		}
		return nil
	}
	return apperr.NewTransientIO(lastErr)
}

// executeWithRetry mirrors AppFolioErrorHandler.ExecuteWithRetry: retry
// network errors and 5xx/429 responses with exponential backoff, treat
// 4xx (≠429) as a permanent downstream rejection.
func (c *Client) executeWithRetry(ctx context.Context, operation string, fn func() (*http.Response, error)) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := calculateBackoffDelay(attempt, c.baseDelay, c.maxDelay)
			log.Printf("notify: retrying %s in %v", operation, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := fn()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			resp.Body.Close()
			return resp, nil
		}

		resp.Body.Close()
		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			lastErr = apperr.Newf(apperr.TransientIO, "transient_io", "%s: http %d", operation, resp.StatusCode)
			continue
		}
		return resp, apperr.Newf(apperr.DownstreamRejected, "downstream_rejected", "%s: http %d", operation, resp.StatusCode)
	}
	return nil, lastErr
}

func calculateBackoffDelay(attempt int, base, max time.Duration) time.Duration {
	delay := base * time.Duration(1<<uint(attempt-1))
	if delay > max {
		delay = max
	}
	jitter := time.Duration(time.Now().UnixNano() % int64(250*time.Millisecond))
	return delay + jitter
}
