// Package moco is the outbound client for the finance system (spec.md §6
// "Moco: outbound-only; the core never depends on inbound replies for
// correctness"): a makeRequest/errorHandler shape wrapping Moco's
// customer/offer/invoice endpoints.
package moco

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"leadpipeline/internal/apperr"
	"leadpipeline/internal/config"
)

type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	enabled    bool
	maxRetries int
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.OutboundTimeout},
		apiKey:     cfg.Moco.APIKey,
		baseURL:    fmt.Sprintf("https://%s.mocoapp.com/api/v1", cfg.Moco.Subdomain),
		enabled:    cfg.Moco.Enabled,
		maxRetries: cfg.OutboundMaxRetries,
	}
}

type Customer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Offer struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Value float64 `json:"value"`
}

type Invoice struct {
	ID string `json:"id"`
}

func (c *Client) CreateCustomer(ctx context.Context, name, email string) (*Customer, error) {
	if !c.enabled {
		return nil, apperr.NewDownstreamRejected("moco integration disabled")
	}
	var out Customer
	err := c.makeRequest(ctx, "create_customer", http.MethodPost, "/companies", map[string]interface{}{
		"name":  name,
		"email": email,
	}, &out)
	return &out, err
}

type LineItem struct {
	Title string  `json:"title"`
	Value float64 `json:"value"`
}

func (c *Client) CreateOffer(ctx context.Context, customerID, title string, value float64, lineItems []LineItem) (*Offer, error) {
	if !c.enabled {
		return nil, apperr.NewDownstreamRejected("moco integration disabled")
	}
	var out Offer
	err := c.makeRequest(ctx, "create_offer", http.MethodPost, "/offers", map[string]interface{}{
		"customer_id": customerID,
		"title":       title,
		"value":       value,
		"items":       lineItems,
	}, &out)
	return &out, err
}

func (c *Client) CreateInvoiceFromOffer(ctx context.Context, offerID string) (*Invoice, error) {
	if !c.enabled {
		return nil, apperr.NewDownstreamRejected("moco integration disabled")
	}
	var out Invoice
	err := c.makeRequest(ctx, "create_invoice_from_offer", http.MethodPost, fmt.Sprintf("/offers/%s/invoice", offerID), nil, &out)
	return &out, err
}

func (c *Client) makeRequest(ctx context.Context, operation, method, path string, body interface{}, out interface{}) error {
	resp, err := c.executeWithRetry(ctx, operation, func() (*http.Response, error) {
		var reqBody io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}
			reqBody = bytes.NewReader(data)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Token token="+c.apiKey)
		return c.httpClient.Do(req)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

// executeWithRetry is the same retry/backoff/classification shape as
// internal/notify's client, applied to the Moco finance API.
func (c *Client) executeWithRetry(ctx context.Context, operation string, fn func() (*http.Response, error)) (*http.Response, error) {
	var lastErr error
	baseDelay := 1 * time.Second
	maxDelay := 30 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			if delay > maxDelay {
				delay = maxDelay
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := fn()
		if err != nil {
			lastErr = apperr.NewTransientIO(err)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			lastErr = apperr.Newf(apperr.TransientIO, "transient_io", "moco %s: http %d", operation, resp.StatusCode)
			continue
		}
		return nil, apperr.WithDetails(
			apperr.Newf(apperr.DownstreamRejected, "downstream_rejected", "moco %s: http %d", operation, resp.StatusCode),
			map[string]interface{}{"body": string(body)},
		)
	}
	return nil, lastErr
}
