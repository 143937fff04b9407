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

// registerComponent registers one component through the API and returns its
// assigned ID.
func registerComponent(t *testing.T, ts *testServer, componentType, name string) string {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/api/v1/components", models.ComponentRegistration{
		ComponentType:  componentType,
		Name:           name,
		Address:        "localhost:9001",
		TransportModes: []models.TransportMode{models.TransportStreaming},
		State:          models.StateActive,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var ack models.RegisterAck
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	require.True(t, ack.Accepted, "registration rejected: %s", ack.ErrorMessage)
	return ack.ComponentID
}

func TestRegisterComponentHandler(t *testing.T) {
	t.Run("assigns id and heartbeat interval", func(t *testing.T) {
		ts := newTestServer(t, withoutWorkers())

		rec := ts.do(t, http.MethodPost, "/api/v1/components", models.ComponentRegistration{
			ComponentType:  models.ComponentTypeSensor,
			Name:           "motion",
			TransportModes: []models.TransportMode{models.TransportStreaming},
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var ack models.RegisterAck
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
		assert.True(t, ack.Accepted)
		assert.Equal(t, int64(5000), ack.HeartbeatIntervalMS)
		_, err := uuid.Parse(ack.ComponentID)
		assert.NoError(t, err)
	})

	t.Run("rejection rides the ack", func(t *testing.T) {
		ts := newTestServer(t, withoutWorkers())

		rec := ts.do(t, http.MethodPost, "/api/v1/components", models.ComponentRegistration{
			Name: "anonymous",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var ack models.RegisterAck
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
		assert.False(t, ack.Accepted)
		assert.Contains(t, ack.ErrorMessage, "component_type is required")
	})

	t.Run("malformed body", func(t *testing.T) {
		ts := newTestServer(t, withoutWorkers())

		rec := ts.doRaw(t, http.MethodPost, "/api/v1/components", "[")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListComponentsHandler(t *testing.T) {
	t.Run("lists and filters by type", func(t *testing.T) {
		ts := newTestServer(t, withoutWorkers())
		registerComponent(t, ts, models.ComponentTypeSensor, "motion")
		registerComponent(t, ts, models.ComponentTypeSkill, "speaker")

		rec := ts.do(t, http.MethodGet, "/api/v1/components", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Components []models.ComponentRegistration `json:"components"`
			Count      int                            `json:"count"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Count)

		rec = ts.do(t, http.MethodGet, "/api/v1/components?type=sensor", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, "motion", resp.Components[0].Name)
	})

	t.Run("resolve requires type", func(t *testing.T) {
		ts := newTestServer(t, withoutWorkers())

		rec := ts.do(t, http.MethodGet, "/api/v1/components?resolve=true", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "type", decodeError(t, rec).Field)
	})

	t.Run("resolve picks a registration", func(t *testing.T) {
		ts := newTestServer(t, withoutWorkers())
		id := registerComponent(t, ts, models.ComponentTypeSkill, "speaker")

		rec := ts.do(t, http.MethodGet, "/api/v1/components?resolve=true&type=skill", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var reg models.ComponentRegistration
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
		assert.Equal(t, id, reg.ComponentID)
	})

	t.Run("resolve unknown type is 404", func(t *testing.T) {
		ts := newTestServer(t, withoutWorkers())

		rec := ts.do(t, http.MethodGet, "/api/v1/components?resolve=true&type=skill", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestUnregisterComponentHandler(t *testing.T) {
	ts := newTestServer(t, withoutWorkers())
	id := registerComponent(t, ts, models.ComponentTypeSensor, "motion")

	rec := ts.do(t, http.MethodDelete, "/api/v1/components/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Idempotent: deleting again is still a 204.
	rec = ts.do(t, http.MethodDelete, "/api/v1/components/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	list := ts.do(t, http.MethodGet, "/api/v1/components", nil)
	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
}

func TestHeartbeatHandler(t *testing.T) {
	t.Run("unknown component answers known=false", func(t *testing.T) {
		ts := newTestServer(t, withoutWorkers())

		rec := ts.do(t, http.MethodPost, "/api/v1/components/"+uuid.NewString()+"/heartbeat", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var ack models.HeartbeatAck
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
		assert.False(t, ack.Known)
	})

	t.Run("empty body is a valid heartbeat", func(t *testing.T) {
		ts := newTestServer(t, withoutWorkers())
		id := registerComponent(t, ts, models.ComponentTypeSensor, "motion")

		rec := ts.do(t, http.MethodPost, "/api/v1/components/"+id+"/heartbeat", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var ack models.HeartbeatAck
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
		assert.True(t, ack.Known)
		assert.Empty(t, ack.Commands)
	})

	t.Run("carries state and metrics", func(t *testing.T) {
		ts := newTestServer(t, withoutWorkers())
		id := registerComponent(t, ts, models.ComponentTypeSensor, "motion")

		rec := ts.do(t, http.MethodPost, "/api/v1/components/"+id+"/heartbeat", HeartbeatRequest{
			State:   string(models.StateActive),
			Metrics: map[string]float64{"events_per_sec": 12.5},
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var ack models.HeartbeatAck
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
		assert.True(t, ack.Known)
	})
}

func TestSendCommandHandler(t *testing.T) {
	t.Run("requires a name", func(t *testing.T) {
		ts := newTestServer(t, withoutWorkers())
		id := registerComponent(t, ts, models.ComponentTypeSensor, "motion")

		rec := ts.do(t, http.MethodPost, "/api/v1/components/"+id+"/commands", CommandRequest{})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "name", decodeError(t, rec).Field)
	})

	t.Run("unknown component is 404", func(t *testing.T) {
		ts := newTestServer(t, withoutWorkers())

		rec := ts.do(t, http.MethodPost, "/api/v1/components/"+uuid.NewString()+"/commands",
			CommandRequest{Name: "pause"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("queued command arrives with the next heartbeat", func(t *testing.T) {
		ts := newTestServer(t, withoutWorkers())
		id := registerComponent(t, ts, models.ComponentTypeSensor, "motion")

		rec := ts.do(t, http.MethodPost, "/api/v1/components/"+id+"/commands",
			CommandRequest{Name: "pause", Args: map[string]string{"duration": "30s"}})
		require.Equal(t, http.StatusOK, rec.Code)

		var cmdResp CommandResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cmdResp))
		assert.True(t, cmdResp.Queued)
		assert.Equal(t, id, cmdResp.ComponentID)
		require.NotEmpty(t, cmdResp.CommandID)

		hb := ts.do(t, http.MethodPost, "/api/v1/components/"+id+"/heartbeat", nil)
		require.Equal(t, http.StatusOK, hb.Code)

		var ack models.HeartbeatAck
		require.NoError(t, json.Unmarshal(hb.Body.Bytes(), &ack))
		require.Len(t, ack.Commands, 1)
		assert.Equal(t, cmdResp.CommandID, ack.Commands[0].ID)
		assert.Equal(t, "pause", ack.Commands[0].Name)
		assert.Equal(t, "30s", ack.Commands[0].Args["duration"])
	})
}
