package models

import (
	"time"

	"github.com/google/uuid"
)

// FeedbackTargetType says what a feedback event is about.
type FeedbackTargetType string

const (
	// TargetAction targets a specific response (by response/trace ID).
	TargetAction FeedbackTargetType = "action"
	// TargetHeuristic targets a heuristic directly.
	TargetHeuristic FeedbackTargetType = "heuristic"
	// TargetPattern targets LLM reasoning worth extracting into a heuristic.
	TargetPattern FeedbackTargetType = "pattern"
)

// IsValid checks if the target type is a known value.
func (t FeedbackTargetType) IsValid() bool {
	return t == TargetAction || t == TargetHeuristic || t == TargetPattern
}

// FeedbackType classifies how the signal was produced.
type FeedbackType string

const (
	// FeedbackExplicitPositive is direct user approval.
	FeedbackExplicitPositive FeedbackType = "explicit_positive"
	// FeedbackExplicitNegative is direct user disapproval (including undo).
	FeedbackExplicitNegative FeedbackType = "explicit_negative"
	// FeedbackImplicitSuccess is an observed successful outcome.
	FeedbackImplicitSuccess FeedbackType = "implicit_success"
	// FeedbackImplicitFailure is an observed failed outcome.
	FeedbackImplicitFailure FeedbackType = "implicit_failure"
	// FeedbackImplicitIgnored is a response the user repeatedly ignored.
	FeedbackImplicitIgnored FeedbackType = "implicit_ignored"
)

// IsValid checks if the feedback type is a known value.
func (t FeedbackType) IsValid() bool {
	switch t {
	case FeedbackExplicitPositive, FeedbackExplicitNegative,
		FeedbackImplicitSuccess, FeedbackImplicitFailure, FeedbackImplicitIgnored:
		return true
	default:
		return false
	}
}

// IsPositive reports whether the feedback type counts as positive evidence.
func (t FeedbackType) IsPositive() bool {
	return t == FeedbackExplicitPositive || t == FeedbackImplicitSuccess
}

// FeedbackEvent is one learning signal. Value is the signed strength in
// [-1,1]; Weight in [0,1] scales how hard the signal moves alpha/beta.
type FeedbackEvent struct {
	ID           uuid.UUID          `json:"id"`
	TargetType   FeedbackTargetType `json:"target_type"`
	TargetID     string             `json:"target_id"`
	FeedbackType FeedbackType       `json:"feedback_type"`
	Value        float64            `json:"value"`
	Weight       float64            `json:"weight"`
	Source       string             `json:"source,omitempty"`
	Comment      string             `json:"comment,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	Processed    bool               `json:"processed"`
}

// FeedbackAck reports how a feedback event was applied. Soft failures keep
// Accepted=true with ErrorMessage set.
type FeedbackAck struct {
	FeedbackID        string  `json:"feedback_id"`
	Accepted          bool    `json:"accepted"`
	ErrorMessage      string  `json:"error_message,omitempty"`
	HeuristicID       string  `json:"heuristic_id,omitempty"`
	HeuristicCreated  bool    `json:"heuristic_created"`
	UpdatedAlpha      float64 `json:"updated_alpha,omitempty"`
	UpdatedBeta       float64 `json:"updated_beta,omitempty"`
	UpdatedConfidence float64 `json:"updated_confidence,omitempty"`
}
