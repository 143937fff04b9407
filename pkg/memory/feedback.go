package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gladys-ai/gladys/pkg/models"
)

// RecordFeedback persists one feedback event for later (or already
// completed) application to heuristic confidence. Value is clamped to
// [-1,1] and weight to [0,1]; a zero weight defaults to 1 so an unweighted
// signal counts fully.
func (s *Store) RecordFeedback(ctx context.Context, fb models.FeedbackEvent) (uuid.UUID, error) {
	if !fb.TargetType.IsValid() {
		return uuid.Nil, fmt.Errorf("storage: %w: unknown feedback target type %q", ErrInvalidInput, fb.TargetType)
	}
	if !fb.FeedbackType.IsValid() {
		return uuid.Nil, fmt.Errorf("storage: %w: unknown feedback type %q", ErrInvalidInput, fb.FeedbackType)
	}
	if fb.TargetID == "" {
		return uuid.Nil, fmt.Errorf("storage: %w: feedback requires a target id", ErrInvalidInput)
	}
	if fb.ID == uuid.Nil {
		fb.ID = uuid.New()
	}
	fb.Value = clampRange(fb.Value, -1, 1)
	if fb.Weight == 0 {
		fb.Weight = 1
	}
	fb.Weight = clampRange(fb.Weight, 0, 1)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO feedback_events (
			id, target_type, target_id, feedback_type, feedback_value,
			weight, source, comment, processed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		fb.ID, fb.TargetType, fb.TargetID, fb.FeedbackType, fb.Value,
		fb.Weight, nullIfEmpty(fb.Source), nullIfEmpty(fb.Comment), fb.Processed)
	if err != nil {
		return uuid.Nil, fmt.Errorf("storage: record feedback: %w", err)
	}
	return fb.ID, nil
}

// MarkFeedbackProcessed flags a feedback event as applied.
func (s *Store) MarkFeedbackProcessed(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE feedback_events SET processed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: mark feedback processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: feedback %s: %w", id, ErrNotFound)
	}
	return nil
}

// UnprocessedFeedback returns feedback events not yet applied, oldest
// first, so replays preserve arrival order.
func (s *Store) UnprocessedFeedback(ctx context.Context, limit int) ([]models.FeedbackEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, target_type, target_id, feedback_type, feedback_value,
			weight, COALESCE(source, ''), COALESCE(comment, ''), processed, created_at
		 FROM feedback_events
		 WHERE processed = FALSE
		 ORDER BY created_at
		 LIMIT $1`,
		s.limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("storage: unprocessed feedback: %w", err)
	}
	defer rows.Close()

	return scanFeedbackEvents(rows)
}

// FeedbackForTarget returns all feedback recorded against one target,
// newest first.
func (s *Store) FeedbackForTarget(ctx context.Context, targetType models.FeedbackTargetType, targetID string) ([]models.FeedbackEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, target_type, target_id, feedback_type, feedback_value,
			weight, COALESCE(source, ''), COALESCE(comment, ''), processed, created_at
		 FROM feedback_events
		 WHERE target_type = $1 AND target_id = $2
		 ORDER BY created_at DESC`,
		targetType, targetID)
	if err != nil {
		return nil, fmt.Errorf("storage: feedback for target: %w", err)
	}
	defer rows.Close()

	return scanFeedbackEvents(rows)
}

func scanFeedbackEvents(rows pgx.Rows) ([]models.FeedbackEvent, error) {
	var events []models.FeedbackEvent
	for rows.Next() {
		var fb models.FeedbackEvent
		if err := rows.Scan(
			&fb.ID, &fb.TargetType, &fb.TargetID, &fb.FeedbackType, &fb.Value,
			&fb.Weight, &fb.Source, &fb.Comment, &fb.Processed, &fb.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan feedback: %w", err)
		}
		events = append(events, fb)
	}
	return events, rows.Err()
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
