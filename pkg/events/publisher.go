package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gladys-ai/gladys/pkg/memory"
	"github.com/gladys-ai/gladys/pkg/models"
)

// Publisher publishes payloads for WebSocket delivery and cache
// invalidation. Responses are stored in the events table then broadcast via
// NOTIFY; heuristic changes are broadcast via NOTIFY only.
type Publisher struct {
	pool *pgxpool.Pool
}

// The publisher is the memory store's change-notification hook for the
// cross-process leg of invalidation.
var _ memory.HeuristicNotifier = (*Publisher)(nil)

// NewPublisher creates a Publisher on the shared database pool.
func NewPublisher(pool *pgxpool.Pool) *Publisher {
	return &Publisher{pool: pool}
}

// PublishResponse persists a response to the events table and broadcasts it
// on the responses channel in one transaction, so subscribers can catch up
// on anything missed during a disconnect.
func (p *Publisher) PublishResponse(ctx context.Context, resp models.Response) error {
	payloadJSON, err := json.Marshal(NewResponsePayload(resp))
	if err != nil {
		return fmt.Errorf("failed to marshal response payload: %w", err)
	}
	return p.persistAndNotify(ctx, ResponsesChannel, payloadJSON)
}

// NotifyHeuristicChange broadcasts a heuristic change on the heuristics
// channel (no persistence). Implements memory.HeuristicNotifier: the memory
// store calls this after each heuristic mutation commits.
func (p *Publisher) NotifyHeuristicChange(ctx context.Context, heuristicID uuid.UUID, changeType string) error {
	payloadJSON, err := json.Marshal(NewHeuristicChangePayload(heuristicID.String(), changeType))
	if err != nil {
		return fmt.Errorf("failed to marshal heuristic change payload: %w", err)
	}
	return p.notifyOnly(ctx, HeuristicsChannel, payloadJSON)
}

// PruneEventsBefore deletes stream events older than the cutoff. Reconnect
// catchup only reaches back as far as retention keeps rows.
func (p *Publisher) PruneEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// persistAndNotify persists a pre-marshaled payload to the events table and
// broadcasts via NOTIFY in a single transaction (pg_notify is transactional,
// held until COMMIT).
func (p *Publisher) persistAndNotify(ctx context.Context, channel string, payloadJSON []byte) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin event transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var eventID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO events (channel, payload) VALUES ($1, $2) RETURNING id`,
		channel, payloadJSON,
	).Scan(&eventID)
	if err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}

	// Build the NOTIFY payload with db_event_id for catchup tracking.
	notifyPayload, err := injectDBEventIDAndTruncate(payloadJSON, eventID)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}

	// Commit: the INSERT is persisted and the NOTIFY fires atomically.
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit event transaction: %w", err)
	}
	return nil
}

// notifyOnly broadcasts a pre-marshaled payload via NOTIFY without
// persisting it.
func (p *Publisher) notifyOnly(ctx context.Context, channel string, payloadJSON []byte) error {
	notifyPayload, err := truncateIfNeeded(string(payloadJSON))
	if err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// injectDBEventIDAndTruncate adds db_event_id to the JSON payload for NOTIFY
// delivery and applies truncation if the result exceeds PostgreSQL's limit.
func injectDBEventIDAndTruncate(payloadJSON []byte, dbEventID int64) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(payloadJSON, &m); err != nil {
		return "", fmt.Errorf("failed to unmarshal payload for db_event_id injection: %w", err)
	}
	m["db_event_id"] = dbEventID

	enrichedBytes, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal enriched NOTIFY payload: %w", err)
	}
	return truncateIfNeeded(string(enrichedBytes))
}

// truncateIfNeeded returns the payload string as-is if it fits within
// PostgreSQL's 8000-byte NOTIFY limit, otherwise returns a minimal
// truncation envelope with only routing fields.
func truncateIfNeeded(payloadStr string) (string, error) {
	if len(payloadStr) <= 7900 {
		return payloadStr, nil
	}
	return buildTruncatedPayload([]byte(payloadStr))
}

// buildTruncatedPayload creates a minimal truncation envelope from the full
// JSON payload bytes, keeping only the routing fields a subscriber needs to
// fetch the complete row via catchup.
func buildTruncatedPayload(payloadBytes []byte) (string, error) {
	var routing struct {
		Type        string `json:"type"`
		EventID     string `json:"event_id"`
		ResponseID  string `json:"response_id"`
		RoutingPath string `json:"routing_path"`
		Source      string `json:"source"`
		DBEventID   *int64 `json:"db_event_id,omitempty"`
	}
	if err := json.Unmarshal(payloadBytes, &routing); err != nil {
		return "", fmt.Errorf("failed to extract routing fields for truncation: %w", err)
	}

	// routing_path and source ride along so subscription filters still apply
	// to the envelope.
	truncated := map[string]any{
		"type":         routing.Type,
		"event_id":     routing.EventID,
		"response_id":  routing.ResponseID,
		"routing_path": routing.RoutingPath,
		"source":       routing.Source,
		"truncated":    true,
	}
	if routing.DBEventID != nil {
		truncated["db_event_id"] = *routing.DBEventID
	}

	truncBytes, err := json.Marshal(truncated)
	if err != nil {
		return "", fmt.Errorf("failed to marshal truncated payload: %w", err)
	}
	return string(truncBytes), nil
}
