package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/harborline/checkout/internal/provider"
	"github.com/harborline/checkout/pkg/httpclient"
)

// PaymentClient implements provider.PaymentGateway against the payment
// gateway's HTTP API. Charges and refunds are never retried by the transport
// layer; replays happen only via the orchestrator reusing the idempotency key.
type PaymentClient struct {
	baseURL string
	client  Doer
}

// NewPaymentClient creates a payment gateway client for the given base URL.
func NewPaymentClient(baseURL string, client Doer) *PaymentClient {
	return &PaymentClient{baseURL: baseURL, client: client}
}

type chargePayload struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
}

type chargeEnvelope struct {
	Data chargePayload `json:"data"`
}

// Charge captures the payment for the given amount. A 422 from the gateway
// surfaces as ErrPaymentDeclined via the downstream error mapping.
func (c *PaymentClient) Charge(ctx context.Context, input provider.ChargeInput) (*provider.ChargeResult, error) {
	type chargeRequest struct {
		AmountMinor int64  `json:"amount_minor"`
		Currency    string `json:"currency"`
	}

	body, err := json.Marshal(chargeRequest{
		AmountMinor: input.AmountMinor,
		Currency:    input.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal charge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/charges", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create charge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", input.IdempotencyKey)

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, httpclient.ParseResponseError(resp, "payment-gateway")
	}

	var envelope chargeEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode charge response: %w", err)
	}

	return &provider.ChargeResult{
		TransactionID: envelope.Data.TransactionID,
		Status:        envelope.Data.Status,
		FailureReason: envelope.Data.FailureReason,
	}, nil
}

// Refund compensates a captured charge.
func (c *PaymentClient) Refund(ctx context.Context, input provider.RefundInput) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/charges/"+url.PathEscape(input.TransactionID)+"/refund", http.NoBody)
	if err != nil {
		return fmt.Errorf("create refund request: %w", err)
	}
	req.Header.Set("Idempotency-Key", input.IdempotencyKey)

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return httpclient.ParseResponseError(resp, "payment-gateway")
	}

	return nil
}

// ChargeStatus resolves the outcome of a charge by idempotency key. A 404
// means the gateway never registered the charge (the original call never
// arrived), reported as ChargeNotFound rather than an error.
func (c *PaymentClient) ChargeStatus(ctx context.Context, idempotencyKey string) (*provider.ChargeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/charges/"+url.PathEscape(idempotencyKey), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create charge status request: %w", err)
	}

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &provider.ChargeResult{Status: provider.ChargeNotFound}, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ParseResponseError(resp, "payment-gateway")
	}

	var envelope chargeEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode charge status response: %w", err)
	}

	return &provider.ChargeResult{
		TransactionID: envelope.Data.TransactionID,
		Status:        envelope.Data.Status,
		FailureReason: envelope.Data.FailureReason,
	}, nil
}
