package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gladys-ai/gladys/pkg/models"
)

// fireColumns is the scan list shared by fire queries.
const fireColumns = `id, heuristic_id, event_id, episodic_event_id, fired_at,
	outcome, COALESCE(feedback_source, ''), feedback_at`

// FireFilter narrows fire listings.
type FireFilter struct {
	HeuristicID uuid.UUID
	Outcome     models.FireOutcome
	Limit       int
	Offset      int
}

// RecordHeuristicFire inserts a fire record with outcome unknown and bumps
// the heuristic's fire count and last-fired time in the same transaction.
// The episodic event reference may be nil when the episode is not persisted
// yet at fire time.
func (s *Store) RecordHeuristicFire(ctx context.Context, fire models.HeuristicFire) (uuid.UUID, error) {
	if fire.HeuristicID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("storage: %w: fire requires a heuristic id", ErrInvalidInput)
	}
	if fire.ID == uuid.Nil {
		fire.ID = uuid.New()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("storage: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO heuristic_fires (id, heuristic_id, event_id, episodic_event_id)
		 VALUES ($1, $2, $3, $4)`,
		fire.ID, fire.HeuristicID, fire.EventID, fire.EpisodeID); err != nil {
		return uuid.Nil, fmt.Errorf("storage: record fire: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE heuristics SET fire_count = fire_count + 1, last_fired = NOW()
		 WHERE id = $1`,
		fire.HeuristicID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("storage: touch heuristic fire count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return uuid.Nil, fmt.Errorf("storage: heuristic %s: %w", fire.HeuristicID, ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("storage: commit fire: %w", err)
	}
	return fire.ID, nil
}

// ResolveHeuristicFire transitions a fire from unknown to a terminal
// outcome. First resolution wins: an already-resolved or missing fire
// returns false without error, so concurrent resolvers race safely.
func (s *Store) ResolveHeuristicFire(ctx context.Context, fireID uuid.UUID, outcome models.FireOutcome, feedbackSource string) (bool, error) {
	if !outcome.IsTerminal() {
		return false, fmt.Errorf("storage: %w: fire outcome must be success or fail, got %q", ErrInvalidInput, outcome)
	}
	if feedbackSource == "" {
		feedbackSource = models.FeedbackSourceImplicit
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE heuristic_fires
		 SET outcome = $2, feedback_source = $3, feedback_at = NOW()
		 WHERE id = $1 AND outcome = 'unknown'`,
		fireID, outcome, feedbackSource)
	if err != nil {
		return false, fmt.Errorf("storage: resolve fire: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetFire retrieves one fire record by ID.
func (s *Store) GetFire(ctx context.Context, id uuid.UUID) (models.HeuristicFire, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+fireColumns+` FROM heuristic_fires WHERE id = $1`, id)
	fire, err := scanFire(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.HeuristicFire{}, fmt.Errorf("storage: fire %s: %w", id, ErrNotFound)
		}
		return models.HeuristicFire{}, fmt.Errorf("storage: get fire: %w", err)
	}
	return fire, nil
}

// PendingFires returns unresolved fires newer than maxAge, most recent
// first. A nil heuristic filter returns pending fires across all
// heuristics.
func (s *Store) PendingFires(ctx context.Context, heuristicID uuid.UUID, maxAge time.Duration) ([]models.HeuristicFire, error) {
	if maxAge <= 0 {
		maxAge = 300 * time.Second
	}

	sql := `SELECT ` + fireColumns + ` FROM heuristic_fires
		WHERE outcome = 'unknown'
		  AND fired_at > NOW() - $1::interval`
	args := []any{maxAge}

	if heuristicID != uuid.Nil {
		args = append(args, heuristicID)
		sql += fmt.Sprintf(" AND heuristic_id = $%d", len(args))
	}
	sql += " ORDER BY fired_at DESC"

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: pending fires: %w", err)
	}
	defer rows.Close()

	return scanFires(rows)
}

// ListFires returns fires joined with their heuristic's name, condition,
// and current confidence, newest first, plus the total row count for the
// filter (for pagination).
func (s *Store) ListFires(ctx context.Context, f FireFilter) ([]models.FireListItem, int, error) {
	where := " WHERE TRUE"
	var args []any

	if f.HeuristicID != uuid.Nil {
		args = append(args, f.HeuristicID)
		where += fmt.Sprintf(" AND hf.heuristic_id = $%d", len(args))
	}
	if f.Outcome != "" {
		if !f.Outcome.IsValid() {
			return nil, 0, fmt.Errorf("storage: %w: unknown fire outcome %q", ErrInvalidInput, f.Outcome)
		}
		args = append(args, f.Outcome)
		where += fmt.Sprintf(" AND hf.outcome = $%d", len(args))
	}

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM heuristic_fires hf`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count fires: %w", err)
	}

	args = append(args, s.limitOrDefault(f.Limit))
	limitClause := fmt.Sprintf(" LIMIT $%d", len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		limitClause += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx,
		`SELECT hf.id, hf.heuristic_id, hf.event_id, hf.episodic_event_id, hf.fired_at,
			hf.outcome, COALESCE(hf.feedback_source, ''), hf.feedback_at,
			h.name, COALESCE(h.condition->>'text', ''), h.alpha / (h.alpha + h.beta)
		 FROM heuristic_fires hf
		 JOIN heuristics h ON h.id = hf.heuristic_id`+where+`
		 ORDER BY hf.fired_at DESC`+limitClause,
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list fires: %w", err)
	}
	defer rows.Close()

	var items []models.FireListItem
	for rows.Next() {
		var item models.FireListItem
		if err := rows.Scan(
			&item.ID, &item.HeuristicID, &item.EventID, &item.EpisodeID, &item.FiredAt,
			&item.Outcome, &item.FeedbackSource, &item.FeedbackAt,
			&item.HeuristicName, &item.ConditionText, &item.HeuristicConfidence,
		); err != nil {
			return nil, 0, fmt.Errorf("storage: scan fire listing: %w", err)
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

func scanFire(row pgx.Row) (models.HeuristicFire, error) {
	var fire models.HeuristicFire
	err := row.Scan(
		&fire.ID, &fire.HeuristicID, &fire.EventID, &fire.EpisodeID,
		&fire.FiredAt, &fire.Outcome, &fire.FeedbackSource, &fire.FeedbackAt,
	)
	return fire, err
}

func scanFires(rows pgx.Rows) ([]models.HeuristicFire, error) {
	var fires []models.HeuristicFire
	for rows.Next() {
		fire, err := scanFire(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan fire: %w", err)
		}
		fires = append(fires, fire)
	}
	return fires, rows.Err()
}
