package models

import (
	"time"

	"github.com/google/uuid"
)

// FireOutcome is the resolution state of a heuristic fire. Fires start
// unknown and transition to success or fail exactly once.
type FireOutcome string

const (
	// OutcomeUnknown means no confirmation has arrived yet.
	OutcomeUnknown FireOutcome = "unknown"
	// OutcomeSuccess means the fired action was confirmed to work.
	OutcomeSuccess FireOutcome = "success"
	// OutcomeFail means the fired action was confirmed to fail.
	OutcomeFail FireOutcome = "fail"
)

// IsValid checks if the outcome is a known value.
func (o FireOutcome) IsValid() bool {
	return o == OutcomeUnknown || o == OutcomeSuccess || o == OutcomeFail
}

// IsTerminal reports whether the outcome is final.
func (o FireOutcome) IsTerminal() bool {
	return o == OutcomeSuccess || o == OutcomeFail
}

// Feedback sources recorded when a fire is resolved.
const (
	FeedbackSourceExplicit = "explicit"
	FeedbackSourceImplicit = "implicit"
)

// HeuristicFire records one application of a heuristic to an event.
type HeuristicFire struct {
	ID             uuid.UUID   `json:"id"`
	HeuristicID    uuid.UUID   `json:"heuristic_id"`
	EventID        string      `json:"event_id"`
	EpisodeID      *uuid.UUID  `json:"episodic_event_id,omitempty"`
	FiredAt        time.Time   `json:"fired_at"`
	Outcome        FireOutcome `json:"outcome"`
	FeedbackSource string      `json:"feedback_source,omitempty"`
	FeedbackAt     *time.Time  `json:"feedback_at,omitempty"`
}

// FireListItem is a fire joined with its heuristic for listing endpoints.
type FireListItem struct {
	HeuristicFire
	HeuristicName       string  `json:"heuristic_name"`
	ConditionText       string  `json:"condition_text"`
	HeuristicConfidence float64 `json:"heuristic_confidence"`
}
