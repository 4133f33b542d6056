package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/harborline/checkout/internal/domain"
	"github.com/harborline/checkout/pkg/errors"
	"github.com/harborline/checkout/pkg/httpclient"
)

// RegistryClient implements provider.DiscountRegistry against the discount
// registry's HTTP API.
type RegistryClient struct {
	baseURL string
	client  Doer
}

// NewRegistryClient creates a discount registry client for the given base URL.
func NewRegistryClient(baseURL string, client Doer) *RegistryClient {
	return &RegistryClient{baseURL: baseURL, client: client}
}

// Resolve validates a discount code. Unknown codes (404 from the registry)
// and out-of-range percentages surface as ErrInvalidDiscount.
func (c *RegistryClient) Resolve(ctx context.Context, code string) (*domain.Discount, error) {
	type discountResponse struct {
		Data struct {
			Code       string          `json:"code"`
			Percentage decimal.Decimal `json:"percentage"`
		} `json:"data"`
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/discounts/"+url.PathEscape(code), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create discount request: %w", err)
	}

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call discount registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.InvalidDiscountCode(code)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ParseResponseError(resp, "discount-registry")
	}

	var discResp discountResponse
	if err := json.NewDecoder(resp.Body).Decode(&discResp); err != nil {
		return nil, fmt.Errorf("decode discount response: %w", err)
	}

	discount := domain.Discount{
		Code:       discResp.Data.Code,
		Percentage: discResp.Data.Percentage,
	}
	if !discount.ValidPercentage() {
		return nil, errors.InvalidDiscountCode(code)
	}

	return &discount, nil
}
