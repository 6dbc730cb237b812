package moco

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpipeline/internal/apperr"
)

func TestCreateCustomerFailsWhenDisabled(t *testing.T) {
	client := &Client{enabled: false}
	_, err := client.CreateCustomer(context.Background(), "Acme", "jane@acme.com")
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.DownstreamRejected, appErr.Kind)
}

func TestCreateCustomerSucceedsAgainstMockServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/companies", r.URL.Path)
		json.NewEncoder(w).Encode(Customer{ID: "cust-1", Name: "Acme"})
	}))
	defer server.Close()

	client := &Client{enabled: true, httpClient: server.Client(), baseURL: server.URL, maxRetries: 1}
	customer, err := client.CreateCustomer(context.Background(), "Acme", "jane@acme.com")
	require.NoError(t, err)
	assert.Equal(t, "cust-1", customer.ID)
}

func TestCreateOfferRetriesOnServerErrorThenSucceeds(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(Offer{ID: "offer-1", Value: 500})
	}))
	defer server.Close()

	client := &Client{enabled: true, httpClient: server.Client(), baseURL: server.URL, maxRetries: 3}
	offer, err := client.CreateOffer(context.Background(), "cust-1", "Plan", 500, []LineItem{{Title: "Plan", Value: 500}})
	require.NoError(t, err)
	assert.Equal(t, "offer-1", offer.ID)
	assert.Equal(t, 2, attempts)
}

func TestCreateInvoiceFromOfferSurfacesDownstreamRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := &Client{enabled: true, httpClient: server.Client(), baseURL: server.URL, maxRetries: 1}
	_, err := client.CreateInvoiceFromOffer(context.Background(), "offer-1")
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.DownstreamRejected, appErr.Kind)
}
