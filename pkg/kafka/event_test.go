package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkoutCompletedData struct {
	SessionID string `json:"session_id"`
	OrderID   string `json:"order_id"`
	Total     string `json:"total"`
}

func TestNewEvent(t *testing.T) {
	data := checkoutCompletedData{
		SessionID: "sess-1",
		OrderID:   "ord-9",
		Total:     "21.15",
	}

	event, err := NewEvent("checkout.completed", "sess-1", "checkout", "checkout-service", data)
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "checkout.completed", event.EventType)
	assert.Equal(t, "sess-1", event.AggregateID)
	assert.Equal(t, "checkout", event.AggregateType)
	assert.Equal(t, 1, event.Version)
	assert.Equal(t, "checkout-service", event.Source)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 5*time.Second)
}

func TestEvent_RoundTrip(t *testing.T) {
	original, err := NewEvent("checkout.failed", "sess-2", "checkout", "checkout-service",
		checkoutCompletedData{SessionID: "sess-2"})
	require.NoError(t, err)
	original.WithCorrelationID("corr-1").WithMetadata("failure", "payment_declined")

	raw, err := original.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalEvent(raw)
	require.NoError(t, err)

	assert.Equal(t, original.EventID, decoded.EventID)
	assert.Equal(t, "corr-1", decoded.CorrelationID)
	assert.Equal(t, "payment_declined", decoded.Metadata["failure"])

	var data checkoutCompletedData
	require.NoError(t, decoded.UnmarshalData(&data))
	assert.Equal(t, "sess-2", data.SessionID)
}

func TestNewEvent_UnmarshalableData(t *testing.T) {
	_, err := NewEvent("checkout.completed", "sess-1", "checkout", "checkout-service",
		make(chan int))
	require.Error(t, err)
}
