package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/gladys-ai/gladys/pkg/models"
)

// HeuristicNotifier receives change notifications after heuristic mutations
// commit, so caches can invalidate. Implemented by the events publisher.
type HeuristicNotifier interface {
	NotifyHeuristicChange(ctx context.Context, heuristicID uuid.UUID, changeType string) error
}

// SetNotifier wires the change-notification hook. Mutations succeed even if
// a notification fails; failures are logged and the cache catches up on TTL.
func (s *Store) SetNotifier(n HeuristicNotifier) {
	s.notifier = n
}

// multiNotifier fans a change notification out to several notifiers.
type multiNotifier []HeuristicNotifier

func (m multiNotifier) NotifyHeuristicChange(ctx context.Context, heuristicID uuid.UUID, changeType string) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyHeuristicChange(ctx, heuristicID, changeType); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CombineNotifiers merges notifiers into one. Every notifier is attempted
// regardless of earlier failures; errors are joined. Used to invalidate the
// in-process gateway cache and publish the cross-process NOTIFY from a
// single store hook.
func CombineNotifiers(ns ...HeuristicNotifier) HeuristicNotifier {
	return multiNotifier(ns)
}

func (s *Store) notifyChange(ctx context.Context, id uuid.UUID, changeType string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyHeuristicChange(ctx, id, changeType); err != nil {
		slog.Warn("Heuristic change notification failed",
			"heuristic_id", id, "change_type", changeType, "error", err)
	}
}

// heuristicColumns is the scan list shared by heuristic queries.
const heuristicColumns = `id, name, COALESCE(condition->>'text', ''), COALESCE(condition->>'domain', ''),
	condition_embedding, action, alpha, beta, similarity_threshold, source, frozen,
	origin, COALESCE(origin_id, ''), fire_count, success_count,
	last_fired, last_accessed, created_at, updated_at`

// MatchQuery filters a heuristic vector search.
type MatchQuery struct {
	// Text is embedded when Embedding is nil, and drives the full-text
	// fallback when vector search returns nothing.
	Text      string
	Embedding *pgvector.Vector

	// Source is the event source; scoped heuristics only match it exactly,
	// unscoped heuristics match any.
	Source string

	// MinSimilarity is the global cosine floor; the effective floor per row
	// is max(MinSimilarity, row.similarity_threshold).
	MinSimilarity float64
	MinConfidence float64
	Limit         int
}

// HeuristicFilter narrows heuristic listings.
type HeuristicFilter struct {
	MinConfidence float64
	Origin        models.HeuristicOrigin
	IncludeFrozen bool
	Limit         int
}

// StoreHeuristic inserts or updates a heuristic. Updates preserve the
// existing embedding when the new row carries none, and preserve learned
// alpha/beta (evidence is only moved by UpdateHeuristicConfidence).
// ConditionText is embedded when no vector is supplied. Emits a
// created/updated change notification on success.
func (s *Store) StoreHeuristic(ctx context.Context, h models.Heuristic) (uuid.UUID, error) {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.Alpha == 0 {
		h.Alpha = 1
	}
	if h.Beta == 0 {
		h.Beta = 1
	}
	if h.SimilarityThreshold == 0 {
		h.SimilarityThreshold = 0.7
	}
	if h.Origin == "" {
		h.Origin = models.OriginLearned
	}
	if h.Action == nil {
		h.Action = map[string]any{}
	}

	if err := validateHeuristic(h); err != nil {
		return uuid.Nil, err
	}

	if h.ConditionEmbedding == nil && h.ConditionText != "" {
		vec, err := s.embedder.Embed(ctx, h.ConditionText)
		if err != nil {
			return uuid.Nil, fmt.Errorf("storage: embed condition: %w", err)
		}
		h.ConditionEmbedding = vecOrNil(vec)
	}

	condition := map[string]any{"text": h.ConditionText}
	if h.ConditionDomain != "" {
		condition["domain"] = h.ConditionDomain
	}

	// xmax = 0 distinguishes a fresh insert from a conflict-update.
	var inserted bool
	err := s.pool.QueryRow(ctx,
		`INSERT INTO heuristics (
			id, name, condition, condition_embedding, action, alpha, beta,
			similarity_threshold, source, frozen, origin, origin_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			condition = EXCLUDED.condition,
			condition_embedding = COALESCE(EXCLUDED.condition_embedding, heuristics.condition_embedding),
			action = EXCLUDED.action,
			similarity_threshold = EXCLUDED.similarity_threshold,
			source = EXCLUDED.source,
			frozen = EXCLUDED.frozen,
			origin_id = COALESCE(EXCLUDED.origin_id, heuristics.origin_id),
			updated_at = NOW()
		RETURNING (xmax = 0)`,
		h.ID, h.Name, condition, h.ConditionEmbedding, h.Action, h.Alpha, h.Beta,
		h.SimilarityThreshold, h.Source, h.Frozen, h.Origin, nullIfEmpty(h.OriginID),
	).Scan(&inserted)
	if err != nil {
		return uuid.Nil, fmt.Errorf("storage: store heuristic: %w", err)
	}

	changeType := "updated"
	if inserted {
		changeType = "created"
	}
	s.notifyChange(ctx, h.ID, changeType)

	return h.ID, nil
}

func validateHeuristic(h models.Heuristic) error {
	if h.Name == "" {
		return fmt.Errorf("storage: %w: heuristic name required", ErrInvalidInput)
	}
	if h.Alpha <= 0 || h.Beta <= 0 {
		return fmt.Errorf("storage: %w: alpha and beta must be > 0 (got %.3f, %.3f)", ErrInvalidInput, h.Alpha, h.Beta)
	}
	if h.SimilarityThreshold < 0 || h.SimilarityThreshold > 1 {
		return fmt.Errorf("storage: %w: similarity_threshold must be in [0,1]", ErrInvalidInput)
	}
	if !h.Origin.IsValid() {
		return fmt.Errorf("storage: %w: unknown origin %q", ErrInvalidInput, h.Origin)
	}
	return nil
}

// GetHeuristic retrieves one heuristic by ID.
func (s *Store) GetHeuristic(ctx context.Context, id uuid.UUID) (models.Heuristic, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+heuristicColumns+` FROM heuristics WHERE id = $1`, id)
	h, err := scanHeuristic(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Heuristic{}, fmt.Errorf("storage: heuristic %s: %w", id, ErrNotFound)
		}
		return models.Heuristic{}, fmt.Errorf("storage: get heuristic: %w", err)
	}
	return h, nil
}

// ListHeuristics returns heuristics ordered by confidence, best first.
func (s *Store) ListHeuristics(ctx context.Context, f HeuristicFilter) ([]models.Heuristic, error) {
	sql := `SELECT ` + heuristicColumns + ` FROM heuristics
		WHERE alpha / (alpha + beta) >= $1`
	args := []any{f.MinConfidence}

	if !f.IncludeFrozen {
		sql += " AND frozen = FALSE"
	}
	if f.Origin != "" {
		args = append(args, f.Origin)
		sql += fmt.Sprintf(" AND origin = $%d", len(args))
	}
	args = append(args, s.limitOrDefault(f.Limit))
	sql += fmt.Sprintf(" ORDER BY alpha / (alpha + beta) DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list heuristics: %w", err)
	}
	defer rows.Close()

	return scanHeuristics(rows)
}

// DeleteHeuristic removes a heuristic; fire records cascade. Emits a
// "deleted" change notification on success.
func (s *Store) DeleteHeuristic(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM heuristics WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: delete heuristic: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: heuristic %s: %w", id, ErrNotFound)
	}
	s.notifyChange(ctx, id, "deleted")
	return nil
}

// QueryMatchingHeuristics finds non-frozen heuristics whose condition
// embedding is similar to the query. A row matches when its cosine
// similarity clears max(MinSimilarity, its own threshold), its confidence
// clears MinConfidence, and its source scope admits the event source.
// Results are ordered by similarity x confidence. When vector search finds
// nothing and the query has text, a full-text fallback runs over condition
// text. Returned rows get last_accessed touched.
func (s *Store) QueryMatchingHeuristics(ctx context.Context, q MatchQuery) ([]models.HeuristicMatch, error) {
	limit := s.limitOrDefault(q.Limit)

	vec := q.Embedding
	if vec == nil && q.Text != "" {
		embedded, err := s.embedder.Embed(ctx, q.Text)
		if err != nil {
			return nil, fmt.Errorf("storage: embed match query: %w", err)
		}
		vec = vecOrNil(embedded)
	}

	var matches []models.HeuristicMatch
	if vec != nil {
		rows, err := s.pool.Query(ctx,
			`SELECT `+heuristicColumns+`, 1 - (condition_embedding <=> $1) AS similarity
			 FROM heuristics
			 WHERE condition_embedding IS NOT NULL
			   AND frozen = FALSE
			   AND 1 - (condition_embedding <=> $1) >= GREATEST($2::float8, similarity_threshold)
			   AND alpha / (alpha + beta) >= $3
			   AND (source = '' OR source = $4)
			 ORDER BY (1 - (condition_embedding <=> $1)) * (alpha / (alpha + beta)) DESC
			 LIMIT $5`,
			vec, q.MinSimilarity, q.MinConfidence, q.Source, limit)
		if err != nil {
			return nil, fmt.Errorf("storage: match heuristics: %w", err)
		}
		matches, err = scanHeuristicMatches(rows)
		if err != nil {
			return nil, err
		}
	}

	if len(matches) == 0 && q.Text != "" {
		var err error
		matches, err = s.matchHeuristicsByText(ctx, q, limit)
		if err != nil {
			return nil, err
		}
	}

	if len(matches) > 0 {
		ids := make([]uuid.UUID, len(matches))
		for i, m := range matches {
			ids[i] = m.Heuristic.ID
		}
		if _, err := s.pool.Exec(ctx,
			`UPDATE heuristics SET last_accessed = NOW() WHERE id = ANY($1)`, ids); err != nil {
			slog.Warn("Failed to touch heuristic access times", "error", err)
		}
	}

	return matches, nil
}

// ftsStopwords are short common words excluded from the full-text fallback
// query so it matches on content-bearing terms.
var ftsStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "has": true,
	"her": true, "was": true, "one": true, "our": true, "out": true,
	"his": true, "had": true, "this": true, "that": true, "with": true,
	"they": true, "been": true, "have": true, "from": true, "will": true,
	"what": true, "when": true, "where": true,
}

var ftsTokenPattern = regexp.MustCompile(`[a-z0-9]{3,}`)

// matchHeuristicsByText is the fallback for rows without embeddings (or
// queries without vectors): OR-joined full-text search over condition text,
// ranked by ts_rank in place of cosine similarity.
func (s *Store) matchHeuristicsByText(ctx context.Context, q MatchQuery, limit int) ([]models.HeuristicMatch, error) {
	var terms []string
	for _, word := range ftsTokenPattern.FindAllString(strings.ToLower(q.Text), -1) {
		if !ftsStopwords[word] {
			terms = append(terms, word)
		}
	}
	if len(terms) == 0 {
		return nil, nil
	}
	tsQuery := strings.Join(terms, " | ")

	rows, err := s.pool.Query(ctx,
		`SELECT `+heuristicColumns+`, ts_rank(condition_tsv, to_tsquery('english', $1)) AS similarity
		 FROM heuristics
		 WHERE condition_tsv @@ to_tsquery('english', $1)
		   AND frozen = FALSE
		   AND alpha / (alpha + beta) >= $2
		   AND (source = '' OR source = $3)
		 ORDER BY similarity DESC, alpha / (alpha + beta) DESC
		 LIMIT $4`,
		tsQuery, q.MinConfidence, q.Source, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: match heuristics by text: %w", err)
	}
	return scanHeuristicMatches(rows)
}

// UpdateHeuristicConfidence applies one feedback signal to a heuristic's
// evidence counts: positive adds weight to alpha, negative adds weight to
// beta. Weight is clamped to (0,1], defaulting to 1. The heuristic's most
// recent unresolved fire (if any) is resolved in the same transaction.
// Frozen heuristics reject the update with ErrFrozen. Returns the updated
// heuristic and emits an "updated" change notification.
func (s *Store) UpdateHeuristicConfidence(ctx context.Context, id uuid.UUID, positive bool, weight float64, feedbackSource string) (models.Heuristic, error) {
	weight = clampWeight(weight)
	if feedbackSource == "" {
		feedbackSource = models.FeedbackSourceExplicit
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Heuristic{}, fmt.Errorf("storage: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx,
		`UPDATE heuristics SET
			alpha = alpha + CASE WHEN $2 THEN $3::float8 ELSE 0 END,
			beta  = beta  + CASE WHEN $2 THEN 0 ELSE $3::float8 END,
			success_count = success_count + CASE WHEN $2 THEN 1 ELSE 0 END,
			updated_at = NOW()
		 WHERE id = $1 AND frozen = FALSE
		 RETURNING `+heuristicColumns,
		id, positive, weight)

	h, err := scanHeuristic(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Heuristic{}, s.classifyConfidenceMiss(ctx, id)
		}
		return models.Heuristic{}, fmt.Errorf("storage: update confidence: %w", err)
	}

	outcome := models.OutcomeFail
	if positive {
		outcome = models.OutcomeSuccess
	}
	if _, err := tx.Exec(ctx,
		`UPDATE heuristic_fires SET outcome = $2, feedback_source = $3, feedback_at = NOW()
		 WHERE id = (
			SELECT id FROM heuristic_fires
			WHERE heuristic_id = $1 AND outcome = 'unknown'
			ORDER BY fired_at DESC LIMIT 1
		 )`,
		id, outcome, feedbackSource); err != nil {
		return models.Heuristic{}, fmt.Errorf("storage: resolve fire: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Heuristic{}, fmt.Errorf("storage: commit confidence update: %w", err)
	}

	s.notifyChange(ctx, id, "updated")
	return h, nil
}

// classifyConfidenceMiss distinguishes a frozen heuristic from a missing one.
func (s *Store) classifyConfidenceMiss(ctx context.Context, id uuid.UUID) error {
	var frozen bool
	err := s.pool.QueryRow(ctx, `SELECT frozen FROM heuristics WHERE id = $1`, id).Scan(&frozen)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("storage: heuristic %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("storage: check heuristic: %w", err)
	}
	if frozen {
		return fmt.Errorf("storage: heuristic %s: %w", id, ErrFrozen)
	}
	return fmt.Errorf("storage: heuristic %s: update matched no row", id)
}

func clampWeight(w float64) float64 {
	if w <= 0 || w > 1 {
		return 1
	}
	return w
}

func scanHeuristic(row pgx.Row) (models.Heuristic, error) {
	var h models.Heuristic
	err := row.Scan(
		&h.ID, &h.Name, &h.ConditionText, &h.ConditionDomain,
		&h.ConditionEmbedding, &h.Action, &h.Alpha, &h.Beta,
		&h.SimilarityThreshold, &h.Source, &h.Frozen,
		&h.Origin, &h.OriginID, &h.FireCount, &h.SuccessCount,
		&h.LastFired, &h.LastAccessed, &h.CreatedAt, &h.UpdatedAt,
	)
	return h, err
}

func scanHeuristics(rows pgx.Rows) ([]models.Heuristic, error) {
	var heuristics []models.Heuristic
	for rows.Next() {
		h, err := scanHeuristic(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan heuristic: %w", err)
		}
		heuristics = append(heuristics, h)
	}
	return heuristics, rows.Err()
}

func scanHeuristicMatches(rows pgx.Rows) ([]models.HeuristicMatch, error) {
	defer rows.Close()

	var matches []models.HeuristicMatch
	for rows.Next() {
		var m models.HeuristicMatch
		if err := rows.Scan(
			&m.Heuristic.ID, &m.Heuristic.Name, &m.Heuristic.ConditionText, &m.Heuristic.ConditionDomain,
			&m.Heuristic.ConditionEmbedding, &m.Heuristic.Action, &m.Heuristic.Alpha, &m.Heuristic.Beta,
			&m.Heuristic.SimilarityThreshold, &m.Heuristic.Source, &m.Heuristic.Frozen,
			&m.Heuristic.Origin, &m.Heuristic.OriginID, &m.Heuristic.FireCount, &m.Heuristic.SuccessCount,
			&m.Heuristic.LastFired, &m.Heuristic.LastAccessed, &m.Heuristic.CreatedAt, &m.Heuristic.UpdatedAt,
			&m.Similarity,
		); err != nil {
			return nil, fmt.Errorf("storage: scan heuristic match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
