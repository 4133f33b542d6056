package httpclient

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/harborline/checkout/pkg/errors"
)

func makeResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestParseResponseError_StructuredNotFound(t *testing.T) {
	resp := makeResponse(http.StatusNotFound,
		`{"error":{"code":"NOT_FOUND","message":"sku-42"}}`)

	err := ParseResponseError(resp, "inventory")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestParseResponseError_PaymentDeclined(t *testing.T) {
	resp := makeResponse(http.StatusUnprocessableEntity,
		`{"error":{"code":"PAYMENT_DECLINED","message":"card declined"}}`)

	err := ParseResponseError(resp, "payment-gateway")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrPaymentDeclined))
	assert.Contains(t, err.Error(), "payment-gateway")
}

func TestParseResponseError_GatewayTimeout(t *testing.T) {
	resp := makeResponse(http.StatusGatewayTimeout,
		`{"error":{"code":"PAYMENT_TIMEOUT","message":"charge outcome unknown"}}`)

	err := ParseResponseError(resp, "payment-gateway")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrPaymentTimeout))
}

func TestParseResponseError_Conflict(t *testing.T) {
	resp := makeResponse(http.StatusConflict,
		`{"error":{"code":"INSUFFICIENT_STOCK","message":"sku-7 short"}}`)

	err := ParseResponseError(resp, "inventory")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestParseResponseError_ServiceUnavailable(t *testing.T) {
	resp := makeResponse(http.StatusServiceUnavailable,
		`{"error":{"code":"SERVICE_UNAVAILABLE","message":"maintenance"}}`)

	err := ParseResponseError(resp, "discount-registry")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrServiceUnavail))
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatus(err))
}

func TestParseResponseError_UnstructuredBody(t *testing.T) {
	resp := makeResponse(http.StatusInternalServerError, "boom")

	err := ParseResponseError(resp, "inventory")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inventory returned status 500")
	assert.Contains(t, err.Error(), "boom")
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(http.StatusBadRequest))
	assert.True(t, IsClientError(http.StatusConflict))
	assert.False(t, IsClientError(http.StatusOK))
	assert.False(t, IsClientError(http.StatusInternalServerError))
}
