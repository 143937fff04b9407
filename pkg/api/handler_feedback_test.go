package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gladys-ai/gladys/pkg/models"
)

func TestProvideFeedbackHandler(t *testing.T) {
	t.Run("forwards to the decision layer", func(t *testing.T) {
		ts := newTestServer(t, withoutWorkers())

		rec := ts.do(t, http.MethodPost, "/api/v1/feedback", models.FeedbackEvent{
			TargetType:   models.TargetHeuristic,
			TargetID:     uuid.NewString(),
			FeedbackType: models.FeedbackExplicitPositive,
			Value:        1,
			Source:       "user",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var ack models.FeedbackAck
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
		assert.True(t, ack.Accepted)
		assert.Equal(t, 1, ts.executive.feedbackCount())
	})

	t.Run("malformed body", func(t *testing.T) {
		ts := newTestServer(t, withoutWorkers())

		rec := ts.doRaw(t, http.MethodPost, "/api/v1/feedback", `{"value":"not a number"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 0, ts.executive.feedbackCount())
	})
}
