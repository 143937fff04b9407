package orchestrator

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gladys-ai/gladys/pkg/config"
	"github.com/gladys-ai/gladys/pkg/models"
)

// pendingOutcome is one heuristic fire awaiting its real-world consequence.
type pendingOutcome struct {
	fireID      uuid.UUID
	heuristicID uuid.UUID
	eventID     string
	pattern     config.OutcomePattern
	firedAt     time.Time
	deadline    time.Time
}

// ResolvedOutcome reports a watch satisfied by a later event.
type ResolvedOutcome struct {
	FireID         uuid.UUID
	HeuristicID    uuid.UUID
	EventID        string // event that triggered the fire
	OutcomeEventID string // event that settled it
	Success        bool
	Elapsed        time.Duration
}

// OutcomeWatcher tracks heuristic fires whose configured outcome pattern
// should show up as a later event. A watch either resolves (the outcome
// text arrived in time) or silently expires; expiry is not evidence either
// way, so the fire row keeps its unknown outcome.
type OutcomeWatcher struct {
	patterns        []config.OutcomePattern
	defaultDeadline time.Duration

	mu      sync.Mutex
	pending map[uuid.UUID]*pendingOutcome
}

// NewOutcomeWatcher creates a watcher over the configured patterns.
// defaultDeadline applies to patterns without their own timeout.
func NewOutcomeWatcher(patterns []config.OutcomePattern, defaultDeadline time.Duration) *OutcomeWatcher {
	return &OutcomeWatcher{
		patterns:        patterns,
		defaultDeadline: defaultDeadline,
		pending:         make(map[uuid.UUID]*pendingOutcome),
	}
}

// patternFor returns the first pattern whose trigger text appears in the
// fired heuristic's condition text.
func (w *OutcomeWatcher) patternFor(conditionText string) (config.OutcomePattern, bool) {
	if conditionText == "" {
		return config.OutcomePattern{}, false
	}
	lower := strings.ToLower(conditionText)
	for _, p := range w.patterns {
		if strings.Contains(lower, strings.ToLower(p.TriggerPattern)) {
			return p, true
		}
	}
	return config.OutcomePattern{}, false
}

// Watch registers a fire when some pattern covers its heuristic's condition
// text, reporting whether a watch was created.
func (w *OutcomeWatcher) Watch(fire models.HeuristicFire, conditionText string) bool {
	p, ok := w.patternFor(conditionText)
	if !ok {
		return false
	}
	deadline := w.defaultDeadline
	if p.Timeout > 0 {
		deadline = p.Timeout
	}
	now := time.Now()

	w.mu.Lock()
	w.pending[fire.ID] = &pendingOutcome{
		fireID:      fire.ID,
		heuristicID: fire.HeuristicID,
		eventID:     fire.EventID,
		pattern:     p,
		firedAt:     now,
		deadline:    now.Add(deadline),
	}
	w.mu.Unlock()

	slog.Info("Outcome watch registered",
		"fire_id", fire.ID,
		"heuristic_id", fire.HeuristicID,
		"outcome_pattern", p.OutcomePattern,
		"deadline", deadline)
	return true
}

// CheckEvent resolves and removes every pending watch the event satisfies:
// the watch's outcome text appears in the event's raw text, and the watch's
// source scope (when set) matches the event source exactly.
func (w *OutcomeWatcher) CheckEvent(ev models.Event) []ResolvedOutcome {
	if ev.RawText == "" {
		return nil
	}
	text := strings.ToLower(ev.RawText)
	now := time.Now()

	var resolved []ResolvedOutcome
	w.mu.Lock()
	for id, p := range w.pending {
		if p.pattern.Source != "" && p.pattern.Source != ev.Source {
			continue
		}
		if !strings.Contains(text, strings.ToLower(p.pattern.OutcomePattern)) {
			continue
		}
		resolved = append(resolved, ResolvedOutcome{
			FireID:         p.fireID,
			HeuristicID:    p.heuristicID,
			EventID:        p.eventID,
			OutcomeEventID: ev.ID,
			Success:        p.pattern.IsSuccess,
			Elapsed:        now.Sub(p.firedAt),
		})
		delete(w.pending, id)
	}
	w.mu.Unlock()
	return resolved
}

// Expire drops watches past their deadline, returning how many were
// dropped. Expired fires stay unresolved.
func (w *OutcomeWatcher) Expire(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	expired := 0
	for id, p := range w.pending {
		if now.After(p.deadline) {
			delete(w.pending, id)
			expired++
			slog.Debug("Outcome watch expired without resolution",
				"fire_id", p.fireID,
				"heuristic_id", p.heuristicID,
				"outcome_pattern", p.pattern.OutcomePattern)
		}
	}
	return expired
}

// Pending returns the number of unresolved watches.
func (w *OutcomeWatcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}
