// Package decision is the slow path: LLM reasoning over immediate events
// and accumulated moments, reasoning traces for feedback, and heuristic
// extraction — how one-off reasoning turns into fast-path rules.
package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gladys-ai/gladys/pkg/config"
	"github.com/gladys-ai/gladys/pkg/llm"
	"github.com/gladys-ai/gladys/pkg/memory"
	"github.com/gladys-ai/gladys/pkg/models"
	"github.com/gladys-ai/gladys/pkg/services"
)

// MemoryStore is the slice of the memory store the decision layer uses.
type MemoryStore interface {
	StoreHeuristic(ctx context.Context, h models.Heuristic) (uuid.UUID, error)
	UpdateHeuristicConfidence(ctx context.Context, id uuid.UUID, positive bool, weight float64, feedbackSource string) (models.Heuristic, error)
	QueryMatchingHeuristics(ctx context.Context, q memory.MatchQuery) ([]models.HeuristicMatch, error)
	RecordFeedback(ctx context.Context, fb models.FeedbackEvent) (uuid.UUID, error)
	MarkFeedbackProcessed(ctx context.Context, id uuid.UUID) error
}

// Stats is a point-in-time snapshot of decision layer activity.
type Stats struct {
	EventsProcessed   uint64 `json:"events_processed"`
	MomentsProcessed  uint64 `json:"moments_processed"`
	HeuristicsCreated uint64 `json:"heuristics_created"`
	ActiveTraces      int    `json:"active_traces"`
	LLMAvailable      bool   `json:"llm_available"`
}

// Executive runs the decision layer over one LLM client and the memory
// store.
type Executive struct {
	cfg    *config.DecisionConfig
	llm    llm.Client
	store  MemoryStore
	traces *traceStore

	eventsProcessed   atomic.Uint64
	momentsProcessed  atomic.Uint64
	heuristicsCreated atomic.Uint64
}

// NewExecutive creates the decision layer.
func NewExecutive(cfg *config.DecisionConfig, client llm.Client, store MemoryStore) *Executive {
	return &Executive{
		cfg:    cfg,
		llm:    client,
		store:  store,
		traces: newTraceStore(cfg.TraceRetention, cfg.TraceCleanupThreshold),
	}
}

// ProcessEvent reasons about one immediate (high-salience or threat) event.
// A sub-threshold heuristic match riding the event becomes a suggestion in
// the prompt. The model's answer is traced for later feedback; its outcome
// prediction rides the response. An unavailable LLM degrades the response
// to the fallback path instead of failing the event.
func (e *Executive) ProcessEvent(ctx context.Context, event models.Event) (models.Response, error) {
	e.eventsProcessed.Add(1)

	resp := models.Response{
		EventID:            event.ID,
		Source:             event.Source,
		RoutingPath:        models.RoutingLLMImmediate,
		MatchedHeuristicID: event.MatchedHeuristicID,
		Timestamp:          time.Now(),
	}

	eventContext := formatEvent(event)
	text, err := e.llm.Generate(ctx, llm.Request{System: systemPrompt, Prompt: urgentPrompt(event)})
	if err != nil {
		slog.Warn("LLM unavailable, event degrades to storage-only",
			"event_id", event.ID, "error", err)
		resp.RoutingPath = models.RoutingFallback
		resp.Error = services.ErrLLMUnavailable.Error()
		return resp, nil
	}
	resp.Text = strings.TrimSpace(text)
	if resp.Text == "" {
		return resp, nil
	}

	resp.PredictedSuccess, resp.PredictionConfidence = e.predictOutcome(ctx, eventContext, resp.Text)

	resp.ResponseID = e.traces.put(ReasoningTrace{
		EventID:              event.ID,
		Source:               event.Source,
		Context:              eventContext,
		Response:             resp.Text,
		MatchedHeuristicID:   event.MatchedHeuristicID,
		PredictedSuccess:     resp.PredictedSuccess,
		PredictionConfidence: resp.PredictionConfidence,
	})

	slog.Info("Event processed",
		"event_id", event.ID,
		"response_id", resp.ResponseID,
		"predicted_success", resp.PredictedSuccess)
	return resp, nil
}

// ProcessMoment summarizes an accumulated batch in one LLM call. The
// summary is answered against the batch's most salient event; the rest of
// the batch yields no individual response. Summarization is best-effort:
// an unavailable LLM returns no responses and no error.
func (e *Executive) ProcessMoment(ctx context.Context, events []models.Event) ([]models.Response, error) {
	if len(events) == 0 {
		return nil, nil
	}
	e.momentsProcessed.Add(1)

	text, err := e.llm.Generate(ctx, llm.Request{System: systemPrompt, Prompt: momentPrompt(events)})
	if err != nil {
		slog.Warn("Moment summarization skipped", "events", len(events), "error", err)
		return nil, nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	anchor := events[0]
	for _, ev := range events[1:] {
		if eventPriority(ev) > eventPriority(anchor) {
			anchor = ev
		}
	}

	responseID := e.traces.put(ReasoningTrace{
		EventID:            anchor.ID,
		Source:             anchor.Source,
		Context:            momentContext(events),
		Response:           text,
		MatchedHeuristicID: anchor.MatchedHeuristicID,
	})

	slog.Info("Moment processed", "events", len(events), "anchor_event_id", anchor.ID)
	return []models.Response{{
		EventID:     anchor.ID,
		ResponseID:  responseID,
		Text:        text,
		RoutingPath: models.RoutingLLMMoment,
		Source:      anchor.Source,
		Timestamp:   time.Now(),
	}}, nil
}

// ProvideFeedback applies one learning signal. The signal is journaled
// before application so nothing is lost; application failures ride the ack
// (Accepted stays true) rather than failing the request.
func (e *Executive) ProvideFeedback(ctx context.Context, fb models.FeedbackEvent) (models.FeedbackAck, error) {
	if !fb.TargetType.IsValid() {
		return models.FeedbackAck{}, services.NewValidationError("target_type", fmt.Sprintf("unknown target type: %s", fb.TargetType))
	}
	if !fb.FeedbackType.IsValid() {
		return models.FeedbackAck{}, services.NewValidationError("feedback_type", fmt.Sprintf("unknown feedback type: %s", fb.FeedbackType))
	}
	if fb.TargetID == "" {
		return models.FeedbackAck{}, services.NewValidationError("target_id", "target_id is required")
	}

	feedbackID, err := e.store.RecordFeedback(ctx, fb)
	if err != nil {
		return models.FeedbackAck{}, err
	}
	fb.ID = feedbackID

	ack := models.FeedbackAck{FeedbackID: feedbackID.String(), Accepted: true}

	switch fb.TargetType {
	case models.TargetHeuristic:
		e.applyHeuristicFeedback(ctx, &ack, fb, fb.TargetID)

	case models.TargetAction:
		trace, ok := e.traces.get(fb.TargetID)
		if !ok {
			ack.ErrorMessage = "Reasoning trace not found or expired"
			return ack, nil
		}
		if trace.MatchedHeuristicID == "" {
			// No heuristic behind this response; the journal row is the
			// whole effect.
			e.markProcessed(ctx, feedbackID)
			return ack, nil
		}
		e.applyHeuristicFeedback(ctx, &ack, fb, trace.MatchedHeuristicID)

	case models.TargetPattern:
		e.handlePatternFeedback(ctx, &ack, fb)
	}

	return ack, nil
}

// applyHeuristicFeedback moves one heuristic's evidence counts by the
// signal's sign and weight.
func (e *Executive) applyHeuristicFeedback(ctx context.Context, ack *models.FeedbackAck, fb models.FeedbackEvent, target string) {
	id, err := uuid.Parse(target)
	if err != nil {
		ack.ErrorMessage = fmt.Sprintf("invalid heuristic id: %s", target)
		return
	}

	positive := feedbackPositive(fb)
	h, err := e.store.UpdateHeuristicConfidence(ctx, id, positive, fb.Weight, feedbackSource(fb))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrFrozen):
			ack.ErrorMessage = "heuristic is frozen"
		case errors.Is(err, services.ErrNotFound):
			ack.ErrorMessage = "heuristic not found"
		default:
			slog.Error("Confidence update failed", "heuristic_id", id, "error", err)
			ack.ErrorMessage = "confidence update failed"
		}
		return
	}

	ack.HeuristicID = h.ID.String()
	ack.UpdatedAlpha = h.Alpha
	ack.UpdatedBeta = h.Beta
	ack.UpdatedConfidence = h.Confidence()
	e.markProcessed(ctx, fb.ID)

	slog.Info("Heuristic confidence updated",
		"heuristic_id", h.ID,
		"positive", positive,
		"confidence", h.Confidence())
}

// handlePatternFeedback turns explicit positive feedback on a traced
// response into a new heuristic. Anything else falls back to adjusting the
// heuristic behind the trace, when there is one.
func (e *Executive) handlePatternFeedback(ctx context.Context, ack *models.FeedbackAck, fb models.FeedbackEvent) {
	trace, ok := e.traces.get(fb.TargetID)
	if !ok {
		ack.ErrorMessage = "Reasoning trace not found or expired"
		return
	}

	if fb.FeedbackType != models.FeedbackExplicitPositive {
		if trace.MatchedHeuristicID != "" {
			e.applyHeuristicFeedback(ctx, ack, fb, trace.MatchedHeuristicID)
		} else {
			e.markProcessed(ctx, fb.ID)
		}
		return
	}

	e.extractHeuristic(ctx, ack, fb, trace)
}

// extractHeuristic asks the LLM for a generalizable condition→action rule
// and stores it after the quality gates pass: the output must parse, the
// condition must carry enough signal, and a near-duplicate reinforces the
// existing heuristic instead of creating a new one.
func (e *Executive) extractHeuristic(ctx context.Context, ack *models.FeedbackAck, fb models.FeedbackEvent, trace ReasoningTrace) {
	raw, err := e.llm.Generate(ctx, llm.Request{
		Prompt: fmt.Sprintf(extractionPromptFmt, trace.Context, trace.Response),
		Format: llm.FormatJSON,
	})
	if err != nil {
		slog.Warn("Pattern extraction failed", "response_id", trace.ResponseID, "error", err)
		ack.ErrorMessage = services.ErrLLMUnavailable.Error()
		return
	}
	if strings.TrimSpace(raw) == "" {
		slog.Warn("Pattern extraction failed", "response_id", trace.ResponseID)
		ack.ErrorMessage = "Pattern extraction failed"
		return
	}

	condition, action, err := parsePattern(raw)
	if err != nil {
		slog.Warn("Pattern parsing failed", "response_id", trace.ResponseID, "error", err)
		ack.ErrorMessage = fmt.Sprintf("Pattern parsing failed: %v", err)
		return
	}
	if len(condition) < e.cfg.MinConditionLength {
		slog.Info("Extracted condition too short", "condition", condition)
		ack.ErrorMessage = "condition too short"
		return
	}

	// Dedup: a same-scope heuristic this similar already encodes the
	// pattern; reinforce it instead.
	existing, err := e.store.QueryMatchingHeuristics(ctx, memory.MatchQuery{
		Text:          condition,
		Source:        trace.Source,
		MinSimilarity: e.cfg.DedupSimilarity,
		Limit:         1,
	})
	if err != nil {
		slog.Warn("Dedup lookup failed, extraction continues", "error", err)
	}
	if len(existing) > 0 && existing[0].Similarity >= e.cfg.DedupSimilarity {
		dup := existing[0].Heuristic
		slog.Info("Extraction deduplicated against existing heuristic",
			"heuristic_id", dup.ID, "similarity", existing[0].Similarity)
		e.applyHeuristicFeedback(ctx, ack, fb, dup.ID.String())
		return
	}

	name := "Learned: " + condition
	if len(condition) > 50 {
		name = "Learned: " + condition[:50] + "..."
	}
	// The learned rule inherits the event's source: what works in one
	// domain is not assumed to transfer.
	heuristicID, err := e.store.StoreHeuristic(ctx, models.Heuristic{
		Name:                name,
		ConditionText:       condition,
		Action:              action,
		SimilarityThreshold: e.cfg.ExtractionSimilarityThreshold,
		Source:              trace.Source,
		Origin:              models.OriginLearned,
		OriginID:            trace.ResponseID,
	})
	if err != nil {
		slog.Error("Failed to store extracted heuristic", "error", err)
		ack.ErrorMessage = "failed to store heuristic"
		return
	}
	e.heuristicsCreated.Add(1)

	// The initiating positive signal is the first evidence: alpha 1→2.
	e.applyHeuristicFeedback(ctx, ack, fb, heuristicID.String())
	ack.HeuristicCreated = true
	ack.HeuristicID = heuristicID.String()

	e.traces.delete(trace.ResponseID)
	slog.Info("Heuristic extracted",
		"heuristic_id", heuristicID,
		"condition", condition,
		"origin_id", trace.ResponseID)
}

// predictOutcome asks the model how likely its own answer is to succeed.
// A failed call predicts nothing; unparseable output gets the neutral 0.5.
func (e *Executive) predictOutcome(ctx context.Context, eventContext, responseText string) (float64, float64) {
	raw, err := e.llm.Generate(ctx, llm.Request{
		Prompt: fmt.Sprintf(predictionPromptFmt, eventContext, responseText),
		Format: llm.FormatJSON,
	})
	if err != nil || strings.TrimSpace(raw) == "" {
		return 0, 0
	}
	return parsePrediction(raw)
}

func (e *Executive) markProcessed(ctx context.Context, id uuid.UUID) {
	if err := e.store.MarkFeedbackProcessed(ctx, id); err != nil {
		slog.Warn("Failed to mark feedback processed", "feedback_id", id, "error", err)
	}
}

// SweepTraces drops expired reasoning traces and reports how many.
func (e *Executive) SweepTraces() int {
	return e.traces.sweep()
}

// Trace exposes a live reasoning trace for introspection.
func (e *Executive) Trace(responseID string) (ReasoningTrace, bool) {
	return e.traces.get(responseID)
}

// Stats snapshots decision layer counters. The LLM probe uses the caller's
// context.
func (e *Executive) Stats(ctx context.Context) Stats {
	return Stats{
		EventsProcessed:   e.eventsProcessed.Load(),
		MomentsProcessed:  e.momentsProcessed.Load(),
		HeuristicsCreated: e.heuristicsCreated.Load(),
		ActiveTraces:      e.traces.len(),
		LLMAvailable:      e.llm.Available(ctx),
	}
}

// feedbackPositive derives the update sign: the value's sign wins, a zero
// value falls back to the feedback type.
func feedbackPositive(fb models.FeedbackEvent) bool {
	if fb.Value != 0 {
		return fb.Value > 0
	}
	return fb.FeedbackType.IsPositive()
}

// feedbackSource maps the feedback type onto the fire resolution source.
func feedbackSource(fb models.FeedbackEvent) string {
	switch fb.FeedbackType {
	case models.FeedbackExplicitPositive, models.FeedbackExplicitNegative:
		return models.FeedbackSourceExplicit
	default:
		return models.FeedbackSourceImplicit
	}
}

func eventPriority(ev models.Event) float64 {
	if ev.Salience == nil {
		return 0
	}
	return ev.Salience.Aggregate()
}

// stripFences removes Markdown code fences some models wrap JSON in.
func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(line, "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// parsePrediction reads {"success": 0.x, "confidence": 0.y}, defaulting
// each missing or unparseable figure to the neutral 0.5.
func parsePrediction(raw string) (success, confidence float64) {
	var pred struct {
		Success    *float64 `json:"success"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &pred); err != nil {
		return 0.5, 0.5
	}
	success, confidence = 0.5, 0.5
	if pred.Success != nil {
		success = *pred.Success
	}
	if pred.Confidence != nil {
		confidence = *pred.Confidence
	}
	return success, confidence
}

// parsePattern reads {"condition": "...", "action": {...}} from extraction
// output. A missing condition is a parse failure; a missing action is
// tolerated as empty.
func parsePattern(raw string) (string, map[string]any, error) {
	var pattern struct {
		Condition string         `json:"condition"`
		Action    map[string]any `json:"action"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &pattern); err != nil {
		return "", nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if pattern.Condition == "" {
		return "", nil, errors.New("missing 'condition'")
	}
	if pattern.Action == nil {
		pattern.Action = map[string]any{}
	}
	return pattern.Condition, pattern.Action, nil
}
