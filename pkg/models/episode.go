package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Episode is one persisted episodic event: what happened, how salient it
// was, and (when matched or answered) what the system did about it.
type Episode struct {
	ID         uuid.UUID          `json:"id"`
	Timestamp  time.Time          `json:"timestamp"`
	Source     string             `json:"source"`
	RawText    string             `json:"raw_text"`
	Embedding  *pgvector.Vector   `json:"-"`
	Salience   map[string]float64 `json:"salience,omitempty"`
	Structured map[string]any     `json:"structured,omitempty"`
	EntityIDs  []uuid.UUID        `json:"entity_ids,omitempty"`

	PredictedSuccess     *float64   `json:"predicted_success,omitempty"`
	PredictionConfidence *float64   `json:"prediction_confidence,omitempty"`
	ResponseID           string     `json:"response_id,omitempty"`
	ResponseText         string     `json:"response_text,omitempty"`
	MatchedHeuristicID   *uuid.UUID `json:"matched_heuristic_id,omitempty"`
	DecisionPath         string     `json:"decision_path,omitempty"`
	EpisodeRef           *uuid.UUID `json:"episode_ref,omitempty"`

	AccessCount int  `json:"access_count"`
	Archived    bool `json:"archived"`
}

// EpisodeQuery filters episode lookups. QueryText triggers semantic search;
// zero times and empty fields are ignored.
type EpisodeQuery struct {
	Source        string    `json:"source,omitempty"`
	Start         time.Time `json:"start,omitempty"`
	End           time.Time `json:"end,omitempty"`
	QueryText     string    `json:"query_text,omitempty"`
	MinSimilarity float64   `json:"min_similarity,omitempty"`
	Limit         int       `json:"limit,omitempty"`
}

// EpisodeMatch is a semantic search hit with its similarity to the query.
type EpisodeMatch struct {
	Episode    Episode `json:"episode"`
	Similarity float64 `json:"similarity"`
}

// EpisodeGroup is a consolidated span of events: the moment batcher groups a
// drain into one row so later recall can treat it as a unit.
type EpisodeGroup struct {
	ID           uuid.UUID        `json:"id"`
	Title        string           `json:"title"`
	Summary      string           `json:"summary"`
	StartedAt    time.Time        `json:"started_at"`
	EndedAt      *time.Time       `json:"ended_at,omitempty"`
	EventIDs     []uuid.UUID      `json:"event_ids"`
	Embedding    *pgvector.Vector `json:"-"`
	SaliencePeak float64          `json:"salience_peak"`
	CreatedAt    time.Time        `json:"created_at"`
}
