package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/gladys-ai/gladys/pkg/models"
)

// episodeColumns is the scan list shared by episode queries. Nullable text
// columns are coalesced so they land in plain string fields.
const episodeColumns = `id, timestamp, source, raw_text, embedding, salience, structured,
	entity_ids, predicted_success, prediction_confidence,
	COALESCE(response_id, ''), COALESCE(response_text, ''),
	matched_heuristic_id, COALESCE(decision_path, ''), episode_ref,
	access_count, archived`

// StoreEpisode persists one episodic event. Idempotent on ID: storing the
// same episode twice acknowledges identically without duplicating the row.
// RawText is embedded when the caller supplies no vector.
func (s *Store) StoreEpisode(ctx context.Context, ep models.Episode) (uuid.UUID, error) {
	if ep.ID == uuid.Nil {
		ep.ID = uuid.New()
	}
	if ep.Timestamp.IsZero() {
		ep.Timestamp = time.Now().UTC()
	}
	if ep.Salience == nil {
		ep.Salience = map[string]float64{}
	}
	if ep.Structured == nil {
		ep.Structured = map[string]any{}
	}
	if ep.EntityIDs == nil {
		ep.EntityIDs = []uuid.UUID{}
	}

	if ep.Embedding == nil && ep.RawText != "" {
		vec, err := s.embedder.Embed(ctx, ep.RawText)
		if err != nil {
			return uuid.Nil, fmt.Errorf("storage: embed episode: %w", err)
		}
		ep.Embedding = vecOrNil(vec)
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO episodic_events (
			id, timestamp, source, raw_text, embedding, salience, structured,
			entity_ids, predicted_success, prediction_confidence,
			response_id, response_text, matched_heuristic_id, decision_path, episode_ref
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING`,
		ep.ID, ep.Timestamp, ep.Source, ep.RawText, ep.Embedding, ep.Salience,
		ep.Structured, ep.EntityIDs, ep.PredictedSuccess, ep.PredictionConfidence,
		nullIfEmpty(ep.ResponseID), nullIfEmpty(ep.ResponseText),
		ep.MatchedHeuristicID, nullIfEmpty(ep.DecisionPath), ep.EpisodeRef,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("storage: store episode: %w", err)
	}
	return ep.ID, nil
}

// GetEpisode retrieves one episodic event by ID and bumps its access count.
func (s *Store) GetEpisode(ctx context.Context, id uuid.UUID) (models.Episode, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE episodic_events SET access_count = access_count + 1
		 WHERE id = $1
		 RETURNING `+episodeColumns,
		id)

	ep, err := scanEpisode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Episode{}, fmt.Errorf("storage: episode %s: %w", id, ErrNotFound)
		}
		return models.Episode{}, fmt.Errorf("storage: get episode: %w", err)
	}
	return ep, nil
}

// QueryEpisodes returns episodes matching the filter. When QueryText is set
// the search is semantic: similarity is 1 - cosine distance, ordered nearest
// first, floored at MinSimilarity. Otherwise rows come back in reverse
// chronological order with Similarity 0.
func (s *Store) QueryEpisodes(ctx context.Context, q models.EpisodeQuery) ([]models.EpisodeMatch, error) {
	limit := s.limitOrDefault(q.Limit)

	if q.QueryText != "" {
		vec, err := s.embedder.Embed(ctx, q.QueryText)
		if err != nil {
			return nil, fmt.Errorf("storage: embed query: %w", err)
		}
		return s.queryEpisodesBySimilarity(ctx, vec, q, limit)
	}
	return s.queryEpisodesByTime(ctx, q, limit)
}

func (s *Store) queryEpisodesBySimilarity(ctx context.Context, vec pgvector.Vector, q models.EpisodeQuery, limit int) ([]models.EpisodeMatch, error) {
	sql := `SELECT ` + episodeColumns + `, 1 - (embedding <=> $1) AS similarity
		FROM episodic_events
		WHERE archived = FALSE
		  AND embedding IS NOT NULL
		  AND 1 - (embedding <=> $1) >= $2`
	args := []any{vec, q.MinSimilarity}

	if q.Source != "" {
		args = append(args, q.Source)
		sql += fmt.Sprintf(" AND source = $%d", len(args))
	}
	if !q.Start.IsZero() {
		args = append(args, q.Start)
		sql += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if !q.End.IsZero() {
		args = append(args, q.End)
		sql += fmt.Sprintf(" AND timestamp <= $%d", len(args))
	}
	args = append(args, limit)
	sql += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query episodes by similarity: %w", err)
	}
	defer rows.Close()

	return scanEpisodeMatches(rows, true)
}

func (s *Store) queryEpisodesByTime(ctx context.Context, q models.EpisodeQuery, limit int) ([]models.EpisodeMatch, error) {
	sql := `SELECT ` + episodeColumns + ` FROM episodic_events WHERE archived = FALSE`
	var args []any

	if q.Source != "" {
		args = append(args, q.Source)
		sql += fmt.Sprintf(" AND source = $%d", len(args))
	}
	if !q.Start.IsZero() {
		args = append(args, q.Start)
		sql += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if !q.End.IsZero() {
		args = append(args, q.End)
		sql += fmt.Sprintf(" AND timestamp <= $%d", len(args))
	}
	args = append(args, limit)
	sql += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query episodes by time: %w", err)
	}
	defer rows.Close()

	return scanEpisodeMatches(rows, false)
}

// ArchiveEpisodesBefore flags episodes older than the cutoff as archived,
// removing them from queries without deleting the rows. Returns the number
// of episodes archived.
func (s *Store) ArchiveEpisodesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE episodic_events SET archived = TRUE
		 WHERE archived = FALSE AND timestamp < $1`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("storage: archive episodes: %w", err)
	}
	return tag.RowsAffected(), nil
}

// StoreEpisodeGroup persists a consolidated span of events (one moment
// drain). The summary is embedded when no vector is supplied.
func (s *Store) StoreEpisodeGroup(ctx context.Context, g models.EpisodeGroup) (uuid.UUID, error) {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	if g.StartedAt.IsZero() {
		g.StartedAt = time.Now().UTC()
	}
	if g.EventIDs == nil {
		g.EventIDs = []uuid.UUID{}
	}

	if g.Embedding == nil && g.Summary != "" {
		vec, err := s.embedder.Embed(ctx, g.Summary)
		if err != nil {
			return uuid.Nil, fmt.Errorf("storage: embed episode group: %w", err)
		}
		g.Embedding = vecOrNil(vec)
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO episodes (id, title, summary, started_at, ended_at, event_ids, embedding, salience_peak)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		g.ID, g.Title, g.Summary, g.StartedAt, g.EndedAt, g.EventIDs, g.Embedding, g.SaliencePeak)
	if err != nil {
		return uuid.Nil, fmt.Errorf("storage: store episode group: %w", err)
	}
	return g.ID, nil
}

// RecentEpisodeGroups lists consolidated episodes, newest first.
func (s *Store) RecentEpisodeGroups(ctx context.Context, limit int) ([]models.EpisodeGroup, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, summary, started_at, ended_at, event_ids, embedding, salience_peak, created_at
		 FROM episodes ORDER BY started_at DESC LIMIT $1`,
		s.limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("storage: recent episode groups: %w", err)
	}
	defer rows.Close()

	var groups []models.EpisodeGroup
	for rows.Next() {
		var g models.EpisodeGroup
		if err := rows.Scan(&g.ID, &g.Title, &g.Summary, &g.StartedAt, &g.EndedAt,
			&g.EventIDs, &g.Embedding, &g.SaliencePeak, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan episode group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func scanEpisode(row pgx.Row) (models.Episode, error) {
	var ep models.Episode
	err := row.Scan(
		&ep.ID, &ep.Timestamp, &ep.Source, &ep.RawText, &ep.Embedding,
		&ep.Salience, &ep.Structured, &ep.EntityIDs,
		&ep.PredictedSuccess, &ep.PredictionConfidence,
		&ep.ResponseID, &ep.ResponseText,
		&ep.MatchedHeuristicID, &ep.DecisionPath, &ep.EpisodeRef,
		&ep.AccessCount, &ep.Archived,
	)
	return ep, err
}

func scanEpisodeMatches(rows pgx.Rows, withSimilarity bool) ([]models.EpisodeMatch, error) {
	var matches []models.EpisodeMatch
	for rows.Next() {
		var m models.EpisodeMatch
		dest := []any{
			&m.Episode.ID, &m.Episode.Timestamp, &m.Episode.Source, &m.Episode.RawText,
			&m.Episode.Embedding, &m.Episode.Salience, &m.Episode.Structured, &m.Episode.EntityIDs,
			&m.Episode.PredictedSuccess, &m.Episode.PredictionConfidence,
			&m.Episode.ResponseID, &m.Episode.ResponseText,
			&m.Episode.MatchedHeuristicID, &m.Episode.DecisionPath, &m.Episode.EpisodeRef,
			&m.Episode.AccessCount, &m.Episode.Archived,
		}
		if withSimilarity {
			dest = append(dest, &m.Similarity)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("storage: scan episode: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// vecOrNil drops zero-norm vectors so disabled-embedding rows store NULL and
// stay out of cosine searches instead of producing NaN distances.
func vecOrNil(v pgvector.Vector) *pgvector.Vector {
	for _, x := range v.Slice() {
		if x != 0 {
			return &v
		}
	}
	return nil
}

// nullIfEmpty maps empty strings to NULL for nullable text columns.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
