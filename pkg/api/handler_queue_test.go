package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gladys-ai/gladys/pkg/config"
	"github.com/gladys-ai/gladys/pkg/models"
	"github.com/gladys-ai/gladys/pkg/orchestrator"
)

// quickAck shortens the publish ack wait so unstarted-orchestrator tests
// don't sit out the full timeout per event.
func quickAck() func(*serverOptions) {
	return withConfig(func(c *config.Config) {
		c.Orchestrator.PublishAckTimeout = 20 * time.Millisecond
	})
}

func TestQueueEventsHandler(t *testing.T) {
	t.Run("snapshots in drain order", func(t *testing.T) {
		ts := newTestServer(t, withoutWorkers(), quickAck())

		ts.do(t, http.MethodPost, "/api/v1/events", models.Event{
			Source: "sensor.motion", RawText: "low", Salience: &models.SalienceVector{Novelty: 0.2},
		})
		ts.do(t, http.MethodPost, "/api/v1/events", models.Event{
			Source: "sensor.motion", RawText: "high", Salience: &models.SalienceVector{Novelty: 0.6},
		})

		rec := ts.do(t, http.MethodGet, "/api/v1/queue/events", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Events []models.QueuedEvent `json:"events"`
			Count  int                  `json:"count"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, 2, resp.Count)
		assert.Equal(t, "high", resp.Events[0].Event.RawText)
		assert.Equal(t, "low", resp.Events[1].Event.RawText)
		assert.InDelta(t, 0.6, resp.Events[0].Priority, 1e-9)
	})

	t.Run("limit caps the list", func(t *testing.T) {
		ts := newTestServer(t, withoutWorkers(), quickAck())

		for i := 0; i < 3; i++ {
			ts.do(t, http.MethodPost, "/api/v1/events", models.Event{Source: "sensor.motion"})
		}

		rec := ts.do(t, http.MethodGet, "/api/v1/queue/events?limit=2", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Events []models.QueuedEvent `json:"events"`
			Count  int                  `json:"count"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Count)
	})

	t.Run("invalid limit", func(t *testing.T) {
		ts := newTestServer(t, withoutWorkers())

		for _, limit := range []string{"abc", "-1", "1.5"} {
			rec := ts.do(t, http.MethodGet, "/api/v1/queue/events?limit="+limit, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
			assert.Equal(t, "limit", decodeError(t, rec).Field)
		}
	})
}

func TestQueueStatsHandler(t *testing.T) {
	ts := newTestServer(t, withoutWorkers(), quickAck())

	ts.do(t, http.MethodPost, "/api/v1/events", models.Event{Source: "sensor.motion"})
	ts.do(t, http.MethodPost, "/api/v1/events", models.Event{Source: "sensor.motion"})

	rec := ts.do(t, http.MethodGet, "/api/v1/queue/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats orchestrator.QueueStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.QueueSize)
	assert.Equal(t, uint64(2), stats.TotalQueued)
	assert.Equal(t, uint64(0), stats.TotalProcessed)
}
