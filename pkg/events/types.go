// Package events provides real-time delivery plumbing: responses fan out to
// WebSocket subscribers and heuristic cache invalidations reach every
// salience gateway, both riding PostgreSQL NOTIFY/LISTEN so delivery works
// across processes sharing one database.
//
// Two channels exist:
//
//   - "responses": persisted + NOTIFY. Every response the orchestrator
//     produces is written to the events table inside the same transaction
//     that fires the NOTIFY, so a reconnecting subscriber can catch up on
//     rows it missed (see CatchupStore).
//
//   - "gladys_heuristics": NOTIFY only. Heuristic create/update/delete
//     signals for cache invalidation. Transient by design — a gateway that
//     was down starts with a cold cache and needs no replay.
package events

import "github.com/gladys-ai/gladys/pkg/models"

// NOTIFY channel names.
const (
	// ResponsesChannel carries response payloads to subscribers.
	ResponsesChannel = "responses"
	// HeuristicsChannel carries heuristic change signals for cache
	// invalidation.
	HeuristicsChannel = "gladys_heuristics"
)

// Payload type discriminators (the "type" field of every payload).
const (
	TypeResponse        = "response"
	TypeHeuristicChange = "heuristic.change"
)

// SubscriptionFilter narrows which responses a subscriber receives. The
// zero value delivers nothing extra: use DefaultSubscriptionFilter for the
// subscribe default (immediate responses included, all sources).
type SubscriptionFilter struct {
	// IncludeImmediate delivers responses from the immediate paths
	// ("llm_immediate" and "heuristic_fast"). Moment and fallback
	// responses are always delivered.
	IncludeImmediate bool
	// Sources limits delivery to responses for these event sources.
	// Empty means all sources.
	Sources []string
}

// DefaultSubscriptionFilter returns the subscribe default: immediate
// responses included, no source restriction.
func DefaultSubscriptionFilter() SubscriptionFilter {
	return SubscriptionFilter{IncludeImmediate: true}
}

// allows reports whether a response with the given routing path and source
// passes the filter.
func (f SubscriptionFilter) allows(routingPath, source string) bool {
	if !f.IncludeImmediate &&
		(routingPath == string(models.RoutingLLMImmediate) || routingPath == string(models.RoutingHeuristicFast)) {
		return false
	}
	if len(f.Sources) == 0 {
		return true
	}
	for _, s := range f.Sources {
		if s == source {
			return true
		}
	}
	return false
}

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action      string `json:"action"`                  // "subscribe", "unsubscribe", "catchup", "ping"
	Channel     string `json:"channel,omitempty"`       // channel name (e.g. "responses")
	LastEventID *int64 `json:"last_event_id,omitempty"` // replay events after this id (catchup)
}
