package events

import (
	"time"

	"github.com/gladys-ai/gladys/pkg/models"
)

// ResponsePayload is the wire form of a response on the responses channel.
// The response fields marshal flat next to the type discriminator, so
// subscribers decode one object.
type ResponsePayload struct {
	Type string `json:"type"` // always TypeResponse
	models.Response
}

// NewResponsePayload wraps a response for publishing.
func NewResponsePayload(resp models.Response) ResponsePayload {
	return ResponsePayload{Type: TypeResponse, Response: resp}
}

// HeuristicChangePayload is the wire form of a cache invalidation signal on
// the heuristics channel.
type HeuristicChangePayload struct {
	Type        string `json:"type"`         // always TypeHeuristicChange
	HeuristicID string `json:"heuristic_id"` // heuristic UUID
	ChangeType  string `json:"change_type"`  // "created", "updated", "deleted"
	Timestamp   string `json:"timestamp"`    // RFC3339Nano
}

// NewHeuristicChangePayload wraps a heuristic change for publishing.
func NewHeuristicChangePayload(heuristicID, changeType string) HeuristicChangePayload {
	return HeuristicChangePayload{
		Type:        TypeHeuristicChange,
		HeuristicID: heuristicID,
		ChangeType:  changeType,
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
	}
}
