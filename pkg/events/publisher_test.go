package events

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gladys-ai/gladys/pkg/models"
)

func sampleResponse() models.Response {
	return models.Response{
		EventID:     "evt-123",
		ResponseID:  "resp-456",
		Text:        "Watering skipped: soil moisture is already at target.",
		RoutingPath: models.RoutingLLMImmediate,
		Source:      "sensor.garden",
		Timestamp:   time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestTruncateIfNeeded(t *testing.T) {
	t.Run("passes through normal payload", func(t *testing.T) {
		payload, _ := json.Marshal(NewResponsePayload(sampleResponse()))

		result, err := truncateIfNeeded(string(payload))
		require.NoError(t, err)
		assert.Contains(t, result, TypeResponse)
		assert.Contains(t, result, "evt-123")
		assert.NotContains(t, result, "truncated")
	})

	t.Run("truncates oversized payload", func(t *testing.T) {
		resp := sampleResponse()
		resp.Text = strings.Repeat("a", 8000)
		payload, _ := json.Marshal(NewResponsePayload(resp))

		result, err := truncateIfNeeded(string(payload))
		require.NoError(t, err)
		assert.Contains(t, result, "truncated")
		assert.Less(t, len(result), 8000)
	})

	t.Run("truncated payload preserves routing fields", func(t *testing.T) {
		resp := sampleResponse()
		resp.Text = strings.Repeat("x", 8000)
		payload, _ := json.Marshal(NewResponsePayload(resp))

		result, err := truncateIfNeeded(string(payload))
		require.NoError(t, err)

		assert.Contains(t, result, TypeResponse)
		assert.Contains(t, result, "evt-123")
		assert.Contains(t, result, "resp-456")
		assert.Contains(t, result, `"routing_path":"llm_immediate"`)
		assert.Contains(t, result, `"source":"sensor.garden"`)
		assert.Contains(t, result, `"truncated":true`)
		assert.NotContains(t, result, "xxxx")
	})

	t.Run("boundary: payload just under limit is not truncated", func(t *testing.T) {
		// Measure the fixed-field overhead first, then pad Text so the JSON
		// lands just under 7900 bytes. The 20-byte margin keeps the test from
		// flipping if fields with non-zero defaults are added to the payload.
		resp := sampleResponse()
		resp.Text = ""
		base, _ := json.Marshal(NewResponsePayload(resp))
		resp.Text = strings.Repeat("b", 7900-len(base)-20)
		payload, _ := json.Marshal(NewResponsePayload(resp))
		require.LessOrEqual(t, len(payload), 7900, "test payload should be under limit")

		result, err := truncateIfNeeded(string(payload))
		require.NoError(t, err)
		assert.NotContains(t, result, "truncated")
	})

	t.Run("empty JSON object", func(t *testing.T) {
		result, err := truncateIfNeeded("{}")
		require.NoError(t, err)
		assert.Equal(t, "{}", result)
	})
}

func TestInjectDBEventIDAndTruncate(t *testing.T) {
	t.Run("injects db_event_id into normal payload", func(t *testing.T) {
		payload, _ := json.Marshal(NewResponsePayload(sampleResponse()))

		result, err := injectDBEventIDAndTruncate(payload, 42)
		require.NoError(t, err)
		assert.Contains(t, result, `"db_event_id":42`)
		assert.Contains(t, result, "evt-123")
	})

	t.Run("truncated payload preserves db_event_id", func(t *testing.T) {
		resp := sampleResponse()
		resp.Text = strings.Repeat("x", 8000)
		payload, _ := json.Marshal(NewResponsePayload(resp))

		result, err := injectDBEventIDAndTruncate(payload, 42)
		require.NoError(t, err)
		assert.Contains(t, result, `"truncated":true`)
		assert.Contains(t, result, `"db_event_id":42`)
		assert.Contains(t, result, "resp-456")
	})

	t.Run("malformed payload errors", func(t *testing.T) {
		_, err := injectDBEventIDAndTruncate([]byte("not json"), 7)
		assert.Error(t, err)
	})
}

func TestNewPublisher(t *testing.T) {
	publisher := NewPublisher(nil)
	assert.NotNil(t, publisher)
	assert.Nil(t, publisher.pool)
}
