package models

import "time"

// SourceSystemMetrics is the reserved event source for component metric
// reports. Events from this source update the registry and are never
// persisted or routed.
const SourceSystemMetrics = "system.metrics"

// RequestMeta is the request envelope carried on publishes and propagated
// end-to-end: the trace id survives into episodes, traces, and responses.
type RequestMeta struct {
	RequestID       string `json:"request_id,omitempty"`
	TraceID         string `json:"trace_id,omitempty"`
	SpanID          string `json:"span_id,omitempty"`
	TimestampMS     int64  `json:"timestamp_ms,omitempty"`
	SourceComponent string `json:"source_component,omitempty"`
}

// Event is a unit of sensory input flowing through the orchestrator.
// ID and Timestamp are server-assigned when the publisher leaves them empty.
type Event struct {
	ID         string          `json:"event_id"`
	Source     string          `json:"source"`
	Timestamp  time.Time       `json:"timestamp"`
	RawText    string          `json:"raw_text"`
	Structured map[string]any  `json:"structured,omitempty"`
	Salience   *SalienceVector `json:"salience,omitempty"`
	EntityIDs  []string        `json:"entity_ids,omitempty"`

	// Optional tokenizer provenance, passed through into the structured
	// payload on persistence.
	TokenizerID string  `json:"tokenizer_id,omitempty"`
	TokenIDs    []int64 `json:"token_ids,omitempty"`

	// Fast-path match context, populated by the salience gateway.
	MatchedHeuristicID  string  `json:"matched_heuristic_id,omitempty"`
	SuggestedAction     string  `json:"suggested_action,omitempty"`
	HeuristicConfidence float64 `json:"heuristic_confidence,omitempty"`
	ConditionText       string  `json:"condition_text,omitempty"`

	Meta    *RequestMeta `json:"meta,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

// PublishAck is the per-event answer to a publish. Business rejections ride
// the ack (Accepted=false only for queue_full; feedback-style soft failures
// keep Accepted=true with ErrorMessage set).
type PublishAck struct {
	EventID              string  `json:"event_id"`
	Accepted             bool    `json:"accepted"`
	ErrorMessage         string  `json:"error_message,omitempty"`
	Queued               bool    `json:"queued"`
	RoutedToLLM          bool    `json:"routed_to_llm"`
	ResponseID           string  `json:"response_id,omitempty"`
	ResponseText         string  `json:"response_text,omitempty"`
	PredictedSuccess     float64 `json:"predicted_success,omitempty"`
	PredictionConfidence float64 `json:"prediction_confidence,omitempty"`
	MatchedHeuristicID   string  `json:"matched_heuristic_id,omitempty"`
}

// QueuedEvent is a queue snapshot entry for introspection endpoints.
type QueuedEvent struct {
	Event      Event     `json:"event"`
	Priority   float64   `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	AgeMS      int64     `json:"age_ms"`
}

// RoutingPath identifies which path produced a response.
type RoutingPath string

const (
	// RoutingHeuristicFast is the emergency fast path: answered straight
	// from a high-confidence heuristic without the LLM.
	RoutingHeuristicFast RoutingPath = "heuristic_fast"
	// RoutingLLMImmediate is the slow path for high-salience/threat events.
	RoutingLLMImmediate RoutingPath = "llm_immediate"
	// RoutingLLMMoment is the batched moment drain through the LLM.
	RoutingLLMMoment RoutingPath = "llm_moment"
	// RoutingFallback marks responses produced under degraded conditions.
	RoutingFallback RoutingPath = "fallback"
)

// IsValid checks if the routing path is a known value.
func (p RoutingPath) IsValid() bool {
	switch p {
	case RoutingHeuristicFast, RoutingLLMImmediate, RoutingLLMMoment, RoutingFallback:
		return true
	default:
		return false
	}
}

// Response is a decision-layer (or fast-path) answer to an event, fanned out
// to subscribers.
type Response struct {
	EventID              string      `json:"event_id"`
	ResponseID           string      `json:"response_id"`
	Text                 string      `json:"text"`
	RoutingPath          RoutingPath `json:"routing_path"`
	Source               string      `json:"source"`
	MatchedHeuristicID   string      `json:"matched_heuristic_id,omitempty"`
	PredictedSuccess     float64     `json:"predicted_success,omitempty"`
	PredictionConfidence float64     `json:"prediction_confidence,omitempty"`
	Error                string      `json:"error,omitempty"`
	Timestamp            time.Time   `json:"timestamp"`
}
