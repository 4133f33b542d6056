// Package httpapi implements the collaborator interfaces over HTTP, built on
// the retrying client and circuit breaker from pkg/httpclient.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/harborline/checkout/internal/provider"
	"github.com/harborline/checkout/pkg/httpclient"
)

// Doer is the interface for executing HTTP requests. Both *httpclient.Client
// and *httpclient.CircuitBreakerClient satisfy it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// InventoryClient implements provider.InventoryService against the inventory
// authority's HTTP API. Availability checks ride the retrying query client;
// the stock commit goes through a separate non-retrying client and is
// re-driven only by the orchestrator under its idempotency key.
type InventoryClient struct {
	baseURL string
	query   Doer
	commit  Doer
}

// NewInventoryClient creates an inventory client for the given base URL.
func NewInventoryClient(baseURL string, query, commit Doer) *InventoryClient {
	return &InventoryClient{baseURL: baseURL, query: query, commit: commit}
}

// CheckAvailability asks the inventory service for the available quantity of
// every requested item. Read-only; the query client may retry freely.
func (c *InventoryClient) CheckAvailability(ctx context.Context, items []provider.StockItem) (map[string]int64, error) {
	type availabilityRequest struct {
		Items []provider.StockItem `json:"items"`
	}
	type availabilityResponse struct {
		Data struct {
			Availability map[string]int64 `json:"availability"`
		} `json:"data"`
	}

	body, err := json.Marshal(availabilityRequest{Items: items})
	if err != nil {
		return nil, fmt.Errorf("marshal availability request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/inventory/availability", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create availability request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.query.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call inventory service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ParseResponseError(resp, "inventory")
	}

	var availResp availabilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&availResp); err != nil {
		return nil, fmt.Errorf("decode availability response: %w", err)
	}

	return availResp.Data.Availability, nil
}

// DecrementStock commits the stock decrement. The Idempotency-Key header
// makes a replay for the same attempt a no-op on the inventory side.
func (c *InventoryClient) DecrementStock(ctx context.Context, items []provider.StockItem, idempotencyKey string) error {
	type decrementRequest struct {
		Items []provider.StockItem `json:"items"`
	}

	body, err := json.Marshal(decrementRequest{Items: items})
	if err != nil {
		return fmt.Errorf("marshal decrement request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/inventory/decrement", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create decrement request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.commit.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("call inventory service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return httpclient.ParseResponseError(resp, "inventory")
	}

	return nil
}
