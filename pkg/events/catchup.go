package events

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CatchupEvent is one persisted event row replayed to a reconnecting client.
type CatchupEvent struct {
	ID      int64
	Payload map[string]any
}

// CatchupQuerier queries persisted events for catchup.
type CatchupQuerier interface {
	GetCatchupEvents(ctx context.Context, channel string, sinceID int64, limit int) ([]CatchupEvent, error)
}

// CatchupStore reads the events table for reconnect catchup.
type CatchupStore struct {
	pool *pgxpool.Pool
}

// NewCatchupStore creates a CatchupStore on the shared database pool.
func NewCatchupStore(pool *pgxpool.Pool) *CatchupStore {
	return &CatchupStore{pool: pool}
}

// GetCatchupEvents returns events on a channel with id > sinceID, oldest
// first, up to limit.
func (s *CatchupStore) GetCatchupEvents(ctx context.Context, channel string, sinceID int64, limit int) ([]CatchupEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, payload FROM events WHERE channel = $1 AND id > $2 ORDER BY id ASC LIMIT $3`,
		channel, sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query catchup events: %w", err)
	}
	defer rows.Close()

	var events []CatchupEvent
	for rows.Next() {
		var evt CatchupEvent
		if err := rows.Scan(&evt.ID, &evt.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan catchup event: %w", err)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}
