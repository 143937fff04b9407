package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gladys-ai/gladys/pkg/config"
	"github.com/gladys-ai/gladys/pkg/models"
)

// FeedbackProvider applies one learning signal; satisfied by
// decision.Executive.
type FeedbackProvider interface {
	ProvideFeedback(ctx context.Context, fb models.FeedbackEvent) (models.FeedbackAck, error)
}

// FireResolver finalizes heuristic fire rows; satisfied by memory.Store.
type FireResolver interface {
	ResolveHeuristicFire(ctx context.Context, fireID uuid.UUID, outcome models.FireOutcome, feedbackSource string) (bool, error)
}

// fireRecord tracks one fast-path fire inside the undo window.
type fireRecord struct {
	fireID      uuid.UUID
	heuristicID uuid.UUID
	eventID     string
	firedAt     time.Time
}

// Learning converts observed behavior into feedback the user never typed:
// resolved outcome watches, undo-like events shortly after a fast-path
// response, and responses the user keeps ignoring. Every signal flows
// through the decision layer's ProvideFeedback so it is journaled and
// applied like explicit feedback.
type Learning struct {
	cfg      *config.LearningConfig
	watcher  *OutcomeWatcher
	fires    FireResolver
	feedback FeedbackProvider

	mu           sync.Mutex
	recentFires  []fireRecord
	ignoreCounts map[uuid.UUID]int
}

// NewLearning creates the learning coordinator.
func NewLearning(cfg *config.LearningConfig, watcher *OutcomeWatcher, fires FireResolver, feedback FeedbackProvider) *Learning {
	return &Learning{
		cfg:          cfg,
		watcher:      watcher,
		fires:        fires,
		feedback:     feedback,
		ignoreCounts: make(map[uuid.UUID]int),
	}
}

// ObserveFire registers a recorded fire with the outcome watcher and, for
// fast-path responses, starts the undo/ignore clock.
func (l *Learning) ObserveFire(fire models.HeuristicFire, conditionText string, path models.RoutingPath) {
	l.watcher.Watch(fire, conditionText)

	if path != models.RoutingHeuristicFast {
		return
	}
	l.mu.Lock()
	l.recentFires = append(l.recentFires, fireRecord{
		fireID:      fire.ID,
		heuristicID: fire.HeuristicID,
		eventID:     fire.EventID,
		firedAt:     fire.FiredAt,
	})
	l.mu.Unlock()
}

// CheckEvent inspects an incoming event for implicit signals: it may settle
// pending outcome watches, and undo-like text shortly after a fast-path
// response counts as the user rejecting that response.
func (l *Learning) CheckEvent(ctx context.Context, ev models.Event) {
	for _, res := range l.watcher.CheckEvent(ev) {
		slog.Info("Outcome observed for heuristic fire",
			"fire_id", res.FireID,
			"heuristic_id", res.HeuristicID,
			"outcome_event_id", res.OutcomeEventID,
			"success", res.Success,
			"elapsed", res.Elapsed)

		outcome := models.OutcomeFail
		fbType := models.FeedbackImplicitFailure
		if res.Success {
			outcome = models.OutcomeSuccess
			fbType = models.FeedbackImplicitSuccess
		}
		l.resolveFire(ctx, res.FireID, outcome, models.FeedbackSourceImplicit)
		l.sendFeedback(ctx, res.HeuristicID, fbType, l.cfg.ImplicitWeight,
			fmt.Sprintf("outcome observed after %s", res.Elapsed.Round(time.Millisecond)))
	}

	l.checkUndo(ctx, ev)
}

// checkUndo treats undo-like text arriving within the undo window of a
// fast-path fire as the user rejecting that response.
func (l *Learning) checkUndo(ctx context.Context, ev models.Event) {
	if ev.RawText == "" || !l.containsUndoKeyword(ev.RawText) {
		return
	}
	cutoff := time.Now().Add(-l.cfg.UndoWindow)

	l.mu.Lock()
	var undone []fireRecord
	kept := l.recentFires[:0]
	for _, rec := range l.recentFires {
		if rec.firedAt.After(cutoff) {
			undone = append(undone, rec)
			continue
		}
		kept = append(kept, rec)
	}
	l.recentFires = kept
	for _, rec := range undone {
		// The user reacted; the response was not ignored.
		delete(l.ignoreCounts, rec.heuristicID)
	}
	l.mu.Unlock()

	for _, rec := range undone {
		slog.Info("Undo detected for fast-path response",
			"heuristic_id", rec.heuristicID,
			"fire_id", rec.fireID,
			"undo_text", truncateText(ev.RawText, 100))
		l.resolveFire(ctx, rec.fireID, models.OutcomeFail, models.FeedbackSourceExplicit)
		l.sendFeedback(ctx, rec.heuristicID, models.FeedbackExplicitNegative, l.cfg.ExplicitWeight,
			fmt.Sprintf("undo within %s of response", l.cfg.UndoWindow))
	}
}

// Sweep expires outcome watches and ages out fast-path fires that drew no
// reaction. Each aged-out fire counts one ignore against its heuristic;
// reaching the threshold emits a single implicit-negative and resets the
// count. Expired outcome watches produce no feedback at all: the fire stays
// unknown.
func (l *Learning) Sweep(ctx context.Context, now time.Time) {
	if expired := l.watcher.Expire(now); expired > 0 {
		slog.Debug("Outcome watches expired", "count", expired)
	}

	cutoff := now.Add(-l.cfg.UndoWindow)

	l.mu.Lock()
	var ignoredHeuristics []uuid.UUID
	kept := l.recentFires[:0]
	for _, rec := range l.recentFires {
		if rec.firedAt.After(cutoff) {
			kept = append(kept, rec)
			continue
		}
		l.ignoreCounts[rec.heuristicID]++
		if l.ignoreCounts[rec.heuristicID] >= l.cfg.IgnoredThreshold {
			ignoredHeuristics = append(ignoredHeuristics, rec.heuristicID)
			l.ignoreCounts[rec.heuristicID] = 0
		}
	}
	l.recentFires = kept
	l.mu.Unlock()

	for _, id := range ignoredHeuristics {
		slog.Info("Heuristic responses repeatedly ignored",
			"heuristic_id", id, "threshold", l.cfg.IgnoredThreshold)
		l.sendFeedback(ctx, id, models.FeedbackImplicitIgnored, l.cfg.ImplicitWeight,
			fmt.Sprintf("%d consecutive responses without reaction", l.cfg.IgnoredThreshold))
	}
}

// NoteExplicitFeedback resets implicit tracking for a heuristic: a user who
// reacted did not ignore it.
func (l *Learning) NoteExplicitFeedback(heuristicID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.ignoreCounts, heuristicID)
	kept := l.recentFires[:0]
	for _, rec := range l.recentFires {
		if rec.heuristicID != heuristicID {
			kept = append(kept, rec)
		}
	}
	l.recentFires = kept
}

// PendingOutcomes returns the number of unresolved outcome watches.
func (l *Learning) PendingOutcomes() int {
	return l.watcher.Pending()
}

func (l *Learning) containsUndoKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range l.cfg.UndoKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func (l *Learning) resolveFire(ctx context.Context, fireID uuid.UUID, outcome models.FireOutcome, feedbackSource string) {
	if _, err := l.fires.ResolveHeuristicFire(ctx, fireID, outcome, feedbackSource); err != nil {
		slog.Warn("Fire resolution failed", "fire_id", fireID, "outcome", outcome, "error", err)
	}
}

func (l *Learning) sendFeedback(ctx context.Context, heuristicID uuid.UUID, fbType models.FeedbackType, weight float64, comment string) {
	fb := models.FeedbackEvent{
		TargetType:   models.TargetHeuristic,
		TargetID:     heuristicID.String(),
		FeedbackType: fbType,
		Weight:       weight,
		Source:       "orchestrator",
		Comment:      comment,
	}
	if _, err := l.feedback.ProvideFeedback(ctx, fb); err != nil {
		slog.Warn("Derived feedback not applied",
			"heuristic_id", heuristicID,
			"feedback_type", fbType,
			"error", err)
	}
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
