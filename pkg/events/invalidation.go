package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/gladys-ai/gladys/pkg/memory"
)

// NewInvalidationSink adapts NOTIFY payloads on the heuristics channel into
// cache invalidation calls. Register it on the ConnectionManager for the
// heuristics channel so the local salience gateway evicts within one NOTIFY
// round-trip of any heuristic mutation, wherever it happened.
func NewInvalidationSink(notifier memory.HeuristicNotifier) func([]byte) {
	return func(payload []byte) {
		var change HeuristicChangePayload
		if err := json.Unmarshal(payload, &change); err != nil {
			slog.Warn("Malformed heuristic change payload", "error", err)
			return
		}
		id, err := uuid.Parse(change.HeuristicID)
		if err != nil {
			slog.Warn("Heuristic change with invalid id",
				"heuristic_id", change.HeuristicID, "change_type", change.ChangeType)
			return
		}
		if err := notifier.NotifyHeuristicChange(context.Background(), id, change.ChangeType); err != nil {
			slog.Warn("Cache invalidation failed", "heuristic_id", id, "error", err)
		}
	}
}
