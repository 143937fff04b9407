// Package orchestrator is the event front door: it admits published events
// into a bounded priority queue, routes each one by salience (heuristic
// fast path, immediate LLM, or batched moment), tracks component liveness,
// and derives implicit learning signals from what happens afterwards.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gladys-ai/gladys/pkg/config"
	"github.com/gladys-ai/gladys/pkg/models"
	"github.com/gladys-ai/gladys/pkg/salience"
	"github.com/gladys-ai/gladys/pkg/services"
)

// SalienceEvaluator scores events and surfaces heuristic matches; satisfied
// by salience.Gateway. Evaluation never fails outright: degraded scoring
// rides the vector's Error field.
type SalienceEvaluator interface {
	EvaluateSalience(ctx context.Context, event models.Event) (models.SalienceVector, *salience.MatchResult)
}

// Executive is the decision-layer surface the orchestrator routes into;
// satisfied by decision.Executive.
type Executive interface {
	ProcessEvent(ctx context.Context, event models.Event) (models.Response, error)
	ProcessMoment(ctx context.Context, events []models.Event) ([]models.Response, error)
	ProvideFeedback(ctx context.Context, fb models.FeedbackEvent) (models.FeedbackAck, error)
}

// EpisodeStore is the slice of the memory store the orchestrator persists
// through; satisfied by memory.Store.
type EpisodeStore interface {
	StoreEpisode(ctx context.Context, ep models.Episode) (uuid.UUID, error)
	StoreEpisodeGroup(ctx context.Context, g models.EpisodeGroup) (uuid.UUID, error)
	RecordHeuristicFire(ctx context.Context, fire models.HeuristicFire) (uuid.UUID, error)
	ResolveHeuristicFire(ctx context.Context, fireID uuid.UUID, outcome models.FireOutcome, feedbackSource string) (bool, error)
}

// ResponsePublisher fans responses out to subscribers; satisfied by
// events.Publisher.
type ResponsePublisher interface {
	PublishResponse(ctx context.Context, resp models.Response) error
}

// Health is a point-in-time orchestrator snapshot.
type Health struct {
	Started         bool           `json:"started"`
	QueueSize       int            `json:"queue_size"`
	MomentBacklog   int            `json:"moment_backlog"`
	Components      int            `json:"components"`
	PendingOutcomes int            `json:"pending_outcomes"`
	Workers         []WorkerHealth `json:"workers"`
}

// Orchestrator owns the event queue, the routing workers, the component
// registry, and the learning coordination loops.
type Orchestrator struct {
	cfg       *config.OrchestratorConfig
	gateway   SalienceEvaluator
	executive Executive
	store     EpisodeStore
	publisher ResponsePublisher

	registry *Registry
	queue    *eventQueue
	learning *Learning
	moment   *momentAccumulator

	workers  []*worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

// NewOrchestrator wires the orchestrator. gateway and publisher may be nil
// for degraded deployments: events then route on the fallback vector and
// responses are not fanned out.
func NewOrchestrator(cfg *config.OrchestratorConfig, gateway SalienceEvaluator, executive Executive, store EpisodeStore, publisher ResponsePublisher) *Orchestrator {
	watcher := NewOutcomeWatcher(cfg.OutcomePatterns, cfg.OutcomeDeadline)
	return &Orchestrator{
		cfg:       cfg,
		gateway:   gateway,
		executive: executive,
		store:     store,
		publisher: publisher,
		registry:  NewRegistry(cfg),
		queue:     newEventQueue(cfg.QueueCapacity),
		learning:  NewLearning(cfg.Learning, watcher, store, executive),
		moment:    &momentAccumulator{},
		stopCh:    make(chan struct{}),
	}
}

// Start spawns the routing workers and background loops. It is safe to
// call multiple times; subsequent calls are no-ops.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.started {
		slog.Warn("Orchestrator already started, ignoring duplicate Start call")
		return nil
	}
	o.started = true

	slog.Info("Starting orchestrator",
		"worker_count", o.cfg.WorkerCount,
		"queue_capacity", o.cfg.QueueCapacity,
		"moment_interval", o.cfg.MomentInterval)

	for i := 0; i < o.cfg.WorkerCount; i++ {
		w := newWorker(fmt.Sprintf("worker-%d", i), o)
		o.workers = append(o.workers, w)
		w.start(ctx)
	}

	o.wg.Add(1)
	go o.runMomentLoop(ctx)
	o.wg.Add(1)
	go o.runHealthScan(ctx)
	o.wg.Add(1)
	go o.runOutcomeScan(ctx)

	slog.Info("Orchestrator started")
	return nil
}

// Stop drains gracefully: workers finish the queue, the moment loop flushes
// its final batch, then everything exits. The wait is bounded by the
// configured shutdown timeout.
func (o *Orchestrator) Stop() {
	slog.Info("Stopping orchestrator",
		"queued_events", o.queue.size(),
		"moment_backlog", o.moment.size())

	done := make(chan struct{})
	go func() {
		for _, w := range o.workers {
			w.stop()
		}
		o.stopOnce.Do(func() { close(o.stopCh) })
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Orchestrator stopped gracefully")
	case <-time.After(o.cfg.GracefulShutdownTimeout):
		o.stopOnce.Do(func() { close(o.stopCh) })
		slog.Warn("Shutdown timeout reached with work still in flight",
			"queued_events", o.queue.size())
	}
}

// PublishEvent admits one event. The call waits up to the ack timeout for
// the routing worker's full answer; a busy system answers queued-only. A
// sensor-supplied threat at the emergency threshold skips the queue and is
// processed inline.
func (o *Orchestrator) PublishEvent(ctx context.Context, ev models.Event) (models.PublishAck, error) {
	if ev.Source == "" {
		return models.PublishAck{}, services.NewValidationError("source", "source is required")
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	if ev.Salience != nil && ev.Salience.Threat >= o.cfg.EmergencyThreatThreshold {
		slog.Warn("Emergency threat event, processing inline",
			"event_id", ev.ID, "source", ev.Source, "threat", ev.Salience.Threat)
		return o.processEvent(ctx, ev), nil
	}

	resultCh := make(chan models.PublishAck, 1)
	if err := o.queue.push(ev, resultCh); err != nil {
		slog.Warn("Event rejected, queue full", "event_id", ev.ID, "source", ev.Source)
		return models.PublishAck{
			EventID:      ev.ID,
			Accepted:     false,
			ErrorMessage: services.ErrQueueFull.Error(),
		}, nil
	}

	select {
	case ack := <-resultCh:
		return ack, nil
	case <-time.After(o.cfg.PublishAckTimeout):
		o.queue.totalTimedOut.Add(1)
		return models.PublishAck{EventID: ev.ID, Accepted: true, Queued: true}, nil
	case <-ctx.Done():
		return models.PublishAck{EventID: ev.ID, Accepted: true, Queued: true}, nil
	}
}

// PublishEvents admits a batch, answering one ack per event in order.
func (o *Orchestrator) PublishEvents(ctx context.Context, events []models.Event) []models.PublishAck {
	acks := make([]models.PublishAck, 0, len(events))
	for _, ev := range events {
		ack, err := o.PublishEvent(ctx, ev)
		if err != nil {
			ack = models.PublishAck{EventID: ev.ID, Accepted: false, ErrorMessage: err.Error()}
		}
		acks = append(acks, ack)
	}
	return acks
}

// ProvideFeedback forwards a learning signal to the decision layer.
// Explicit feedback also clears implicit ignore tracking: the user reacted.
func (o *Orchestrator) ProvideFeedback(ctx context.Context, fb models.FeedbackEvent) (models.FeedbackAck, error) {
	ack, err := o.executive.ProvideFeedback(ctx, fb)
	if err != nil {
		return ack, err
	}

	if fb.FeedbackType == models.FeedbackExplicitPositive || fb.FeedbackType == models.FeedbackExplicitNegative {
		target := ack.HeuristicID
		if target == "" && fb.TargetType == models.TargetHeuristic {
			target = fb.TargetID
		}
		if id, parseErr := uuid.Parse(target); parseErr == nil {
			o.learning.NoteExplicitFeedback(id)
		}
	}
	return ack, nil
}

// ListQueuedEvents snapshots the queue in drain order. limit <= 0 means
// everything.
func (o *Orchestrator) ListQueuedEvents(ctx context.Context, limit int) []models.QueuedEvent {
	return o.queue.snapshot(limit)
}

// QueueStats reports queue counters.
func (o *Orchestrator) QueueStats(ctx context.Context) QueueStats {
	return o.queue.stats()
}

// QueueSize reports the current queue depth.
func (o *Orchestrator) QueueSize() int {
	return o.queue.size()
}

// RegisterComponent upserts a component registration.
func (o *Orchestrator) RegisterComponent(ctx context.Context, reg models.ComponentRegistration) (models.RegisterAck, error) {
	return o.registry.Register(reg), nil
}

// UnregisterComponent removes a component; unknown IDs are a no-op.
func (o *Orchestrator) UnregisterComponent(ctx context.Context, componentID string) {
	o.registry.Unregister(componentID)
}

// Heartbeat records component liveness and delivers pending commands.
// Heartbeats are never rejected for queue pressure.
func (o *Orchestrator) Heartbeat(ctx context.Context, componentID string, state models.ComponentState, metrics map[string]float64) (models.HeartbeatAck, error) {
	return o.registry.Heartbeat(componentID, state, metrics), nil
}

// SendCommand queues a command for a component's next heartbeat ack.
func (o *Orchestrator) SendCommand(ctx context.Context, componentID string, cmd models.Command) error {
	return o.registry.SendCommand(componentID, cmd)
}

// ResolveComponent picks a component of the given type, preferring ACTIVE.
func (o *Orchestrator) ResolveComponent(ctx context.Context, componentType string) (models.ComponentRegistration, error) {
	return o.registry.Resolve(componentType)
}

// ListComponents lists registrations, optionally filtered by type.
func (o *Orchestrator) ListComponents(ctx context.Context, componentType string) []models.ComponentRegistration {
	return o.registry.List(componentType)
}

// Health returns a point-in-time snapshot for the health endpoint.
func (o *Orchestrator) Health() Health {
	workers := make([]WorkerHealth, 0, len(o.workers))
	for _, w := range o.workers {
		workers = append(workers, w.health())
	}
	return Health{
		Started:         o.started,
		QueueSize:       o.queue.size(),
		MomentBacklog:   o.moment.size(),
		Components:      o.registry.Count(),
		PendingOutcomes: o.learning.PendingOutcomes(),
		Workers:         workers,
	}
}

// processItem routes one dequeued event and hands the ack back to whoever
// may still be waiting on the publish path.
func (o *Orchestrator) processItem(ctx context.Context, item *queueItem) {
	ack := o.processEvent(ctx, item.event)
	o.queue.totalProcessed.Add(1)
	if item.resultCh != nil {
		item.resultCh <- ack
	}
}

// processEvent runs the routing pipeline for one accepted event and
// returns the resulting ack.
func (o *Orchestrator) processEvent(ctx context.Context, ev models.Event) models.PublishAck {
	// An incoming event may settle earlier fires before anything else.
	o.learning.CheckEvent(ctx, ev)

	var match *salience.MatchResult
	if ev.Salience == nil {
		vec, m := o.evaluateSalience(ctx, ev)
		ev.Salience = &vec
		match = m
	}
	if match != nil {
		ev.MatchedHeuristicID = match.HeuristicID.String()
		ev.SuggestedAction = match.SuggestedAction
		ev.HeuristicConfidence = match.Confidence
		ev.ConditionText = match.ConditionText
	}

	ack := models.PublishAck{
		EventID:            ev.ID,
		Accepted:           true,
		MatchedHeuristicID: ev.MatchedHeuristicID,
	}

	// Metric reports only feed the registry; they are never persisted.
	if ev.Source == models.SourceSystemMetrics {
		o.registry.UpdateMetrics(ev)
		return ack
	}

	aggregate := ev.Salience.Aggregate()
	var (
		resp *models.Response
		path models.RoutingPath
	)
	switch {
	case ev.Salience.Threat > 0:
		resp = o.dispatchImmediate(ctx, ev)
	case o.fastPathEligible(match, aggregate):
		r := o.fastPathResponse(ev, match)
		resp = &r
	case aggregate >= o.cfg.HighSalienceThreshold:
		resp = o.dispatchImmediate(ctx, ev)
	default:
		o.moment.add(ev)
		ack.Queued = true
		path = models.RoutingLLMMoment
	}
	if resp != nil {
		path = resp.RoutingPath
	}

	episodeID := o.persistEpisode(ctx, ev, resp, path)
	o.recordFire(ctx, ev, match, episodeID, path)

	if resp != nil {
		o.publishResponse(ctx, *resp)
		ack.ResponseID = resp.ResponseID
		ack.ResponseText = resp.Text
		ack.PredictedSuccess = resp.PredictedSuccess
		ack.PredictionConfidence = resp.PredictionConfidence
		ack.RoutedToLLM = resp.RoutingPath == models.RoutingLLMImmediate
	}
	return ack
}

// fastPathEligible gates the learned-response shortcut: high enough
// aggregate salience, a confident match, and something to actually say.
func (o *Orchestrator) fastPathEligible(match *salience.MatchResult, aggregate float64) bool {
	return match != nil &&
		aggregate >= o.cfg.EmergencySalienceThreshold &&
		match.Confidence >= o.cfg.EmergencyConfidenceThreshold &&
		match.SuggestedAction != ""
}

// fastPathResponse answers straight from the matched heuristic's action,
// skipping the LLM. Confidence doubles as the outcome prediction.
func (o *Orchestrator) fastPathResponse(ev models.Event, match *salience.MatchResult) models.Response {
	slog.Info("Heuristic fast path",
		"event_id", ev.ID,
		"heuristic_id", match.HeuristicID,
		"confidence", match.Confidence)
	return models.Response{
		EventID:              ev.ID,
		ResponseID:           uuid.NewString(),
		Text:                 match.SuggestedAction,
		RoutingPath:          models.RoutingHeuristicFast,
		Source:               ev.Source,
		MatchedHeuristicID:   match.HeuristicID.String(),
		PredictedSuccess:     match.Confidence,
		PredictionConfidence: match.Confidence,
		Timestamp:            time.Now(),
	}
}

// dispatchImmediate sends the event through the decision layer's slow
// path. The executive degrades internally; a hard error still yields a
// fallback response so the publisher always gets an answerable ack.
func (o *Orchestrator) dispatchImmediate(ctx context.Context, ev models.Event) *models.Response {
	resp, err := o.executive.ProcessEvent(ctx, ev)
	if err != nil {
		slog.Error("Immediate dispatch failed", "event_id", ev.ID, "error", err)
		resp = models.Response{
			EventID:            ev.ID,
			RoutingPath:        models.RoutingFallback,
			Source:             ev.Source,
			MatchedHeuristicID: ev.MatchedHeuristicID,
			Error:              err.Error(),
			Timestamp:          time.Now(),
		}
	}
	return &resp
}

// evaluateSalience scores the event, degrading to the configured fallback
// vector when no gateway is wired.
func (o *Orchestrator) evaluateSalience(ctx context.Context, ev models.Event) (models.SalienceVector, *salience.MatchResult) {
	if o.gateway == nil {
		return models.SalienceVector{Novelty: o.cfg.FallbackNovelty, Error: "salience_unavailable"}, nil
	}
	return o.gateway.EvaluateSalience(ctx, ev)
}

// persistEpisode writes the episodic row for a routed event. Tokenizer
// provenance and the trace id ride the structured payload; the memory
// store embeds the raw text itself.
func (o *Orchestrator) persistEpisode(ctx context.Context, ev models.Event, resp *models.Response, path models.RoutingPath) uuid.UUID {
	ep := models.Episode{
		Timestamp:    ev.Timestamp,
		Source:       ev.Source,
		RawText:      ev.RawText,
		Salience:     ev.Salience.AsMap(),
		Structured:   ev.Structured,
		DecisionPath: string(path),
	}
	if extra := provenance(ev); len(extra) > 0 {
		merged := make(map[string]any, len(ev.Structured)+len(extra))
		for k, v := range ev.Structured {
			merged[k] = v
		}
		for k, v := range extra {
			merged[k] = v
		}
		ep.Structured = merged
	}
	for _, raw := range ev.EntityIDs {
		if id, err := uuid.Parse(raw); err == nil {
			ep.EntityIDs = append(ep.EntityIDs, id)
		}
	}
	if ev.MatchedHeuristicID != "" {
		if id, err := uuid.Parse(ev.MatchedHeuristicID); err == nil {
			ep.MatchedHeuristicID = &id
		}
	}
	if resp != nil {
		ep.ResponseID = resp.ResponseID
		ep.ResponseText = resp.Text
		if resp.PredictedSuccess != 0 {
			v := resp.PredictedSuccess
			ep.PredictedSuccess = &v
		}
		if resp.PredictionConfidence != 0 {
			v := resp.PredictionConfidence
			ep.PredictionConfidence = &v
		}
	}

	id, err := o.store.StoreEpisode(ctx, ep)
	if err != nil {
		slog.Error("Episode not persisted", "event_id", ev.ID, "source", ev.Source, "error", err)
		return uuid.Nil
	}
	return id
}

// provenance collects pass-through fields the episode keeps in its
// structured payload.
func provenance(ev models.Event) map[string]any {
	extra := map[string]any{}
	if ev.TokenizerID != "" {
		extra["tokenizer_id"] = ev.TokenizerID
		if len(ev.TokenIDs) > 0 {
			extra["token_ids"] = ev.TokenIDs
		}
	}
	if traceID := eventTraceID(ev); traceID != "" {
		extra["trace_id"] = traceID
	}
	return extra
}

func eventTraceID(ev models.Event) string {
	if ev.TraceID != "" {
		return ev.TraceID
	}
	if ev.Meta != nil {
		return ev.Meta.TraceID
	}
	return ""
}

// recordFire writes the flight-recorder row for a matched heuristic and
// hands it to the learning coordinator.
func (o *Orchestrator) recordFire(ctx context.Context, ev models.Event, match *salience.MatchResult, episodeID uuid.UUID, path models.RoutingPath) {
	if match == nil {
		return
	}
	fire := models.HeuristicFire{
		HeuristicID: match.HeuristicID,
		EventID:     ev.ID,
		FiredAt:     time.Now(),
	}
	if episodeID != uuid.Nil {
		fire.EpisodeID = &episodeID
	}
	id, err := o.store.RecordHeuristicFire(ctx, fire)
	if err != nil {
		slog.Warn("Heuristic fire not recorded",
			"heuristic_id", match.HeuristicID, "event_id", ev.ID, "error", err)
		return
	}
	fire.ID = id
	o.learning.ObserveFire(fire, match.ConditionText, path)
}

func (o *Orchestrator) publishResponse(ctx context.Context, resp models.Response) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishResponse(ctx, resp); err != nil {
		slog.Warn("Response fan-out failed",
			"event_id", resp.EventID,
			"response_id", resp.ResponseID,
			"error", err)
	}
}

// runMomentLoop flushes the moment accumulator on the configured interval,
// with a final flush on shutdown so accepted events still reach the
// decision layer.
func (o *Orchestrator) runMomentLoop(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.MomentInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stopCh:
			o.flushMoment(ctx)
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.flushMoment(ctx)
		}
	}
}

func (o *Orchestrator) runHealthScan(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.HealthScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.registry.scanOnce(time.Now())
		}
	}
}

func (o *Orchestrator) runOutcomeScan(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.OutcomeScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.learning.Sweep(ctx, time.Now())
		}
	}
}
