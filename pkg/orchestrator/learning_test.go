package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gladys-ai/gladys/pkg/config"
	"github.com/gladys-ai/gladys/pkg/models"
)

type resolvedFire struct {
	fireID  uuid.UUID
	outcome models.FireOutcome
	source  string
}

// mockFireResolver stands in for the memory store's fire table.
type mockFireResolver struct {
	resolved []resolvedFire
	err      error
}

func (m *mockFireResolver) ResolveHeuristicFire(_ context.Context, fireID uuid.UUID, outcome models.FireOutcome, feedbackSource string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	m.resolved = append(m.resolved, resolvedFire{fireID: fireID, outcome: outcome, source: feedbackSource})
	return true, nil
}

// mockFeedbackProvider records derived feedback instead of applying it.
type mockFeedbackProvider struct {
	events []models.FeedbackEvent
	err    error
}

func (m *mockFeedbackProvider) ProvideFeedback(_ context.Context, fb models.FeedbackEvent) (models.FeedbackAck, error) {
	if m.err != nil {
		return models.FeedbackAck{}, m.err
	}
	m.events = append(m.events, fb)
	return models.FeedbackAck{FeedbackID: uuid.NewString(), Accepted: true, HeuristicID: fb.TargetID}, nil
}

func newTestLearning(patterns []config.OutcomePattern) (*Learning, *mockFireResolver, *mockFeedbackProvider) {
	fires := &mockFireResolver{}
	feedback := &mockFeedbackProvider{}
	watcher := NewOutcomeWatcher(patterns, time.Minute)
	return NewLearning(config.DefaultLearningConfig(), watcher, fires, feedback), fires, feedback
}

func fastPathFire(firedAt time.Time) models.HeuristicFire {
	return models.HeuristicFire{
		ID:          uuid.New(),
		HeuristicID: uuid.New(),
		EventID:     "evt-1",
		FiredAt:     firedAt,
	}
}

func TestLearning_OutcomeSuccessResolvesFire(t *testing.T) {
	l, fires, feedback := newTestLearning(ovenPatterns())
	fire := fastPathFire(time.Now())
	l.ObserveFire(fire, "oven left on in the kitchen", models.RoutingHeuristicFast)
	require.Equal(t, 1, l.PendingOutcomes())

	l.CheckEvent(context.Background(), models.Event{
		ID:      "evt-2",
		Source:  "sensor.vision",
		RawText: "oven turned off",
	})

	require.Len(t, fires.resolved, 1)
	assert.Equal(t, fire.ID, fires.resolved[0].fireID)
	assert.Equal(t, models.OutcomeSuccess, fires.resolved[0].outcome)
	assert.Equal(t, models.FeedbackSourceImplicit, fires.resolved[0].source)

	require.Len(t, feedback.events, 1)
	fb := feedback.events[0]
	assert.Equal(t, models.FeedbackImplicitSuccess, fb.FeedbackType)
	assert.Equal(t, models.TargetHeuristic, fb.TargetType)
	assert.Equal(t, fire.HeuristicID.String(), fb.TargetID)
	assert.InDelta(t, 1.0, fb.Weight, 0.001)
	assert.Equal(t, "orchestrator", fb.Source)

	assert.Zero(t, l.PendingOutcomes())
}

func TestLearning_OutcomeFailureResolvesFire(t *testing.T) {
	l, fires, feedback := newTestLearning(ovenPatterns())
	fire := fastPathFire(time.Now())
	l.ObserveFire(fire, "door unlocked overnight", models.RoutingHeuristicFast)

	l.CheckEvent(context.Background(), models.Event{
		ID:      "evt-2",
		Source:  "sensor.door",
		RawText: "door still unlocked",
	})

	require.Len(t, fires.resolved, 1)
	assert.Equal(t, models.OutcomeFail, fires.resolved[0].outcome)
	require.Len(t, feedback.events, 1)
	assert.Equal(t, models.FeedbackImplicitFailure, feedback.events[0].FeedbackType)
}

func TestLearning_UndoRejectsRecentFastPathFire(t *testing.T) {
	l, fires, feedback := newTestLearning(nil)
	fire := fastPathFire(time.Now())
	l.ObserveFire(fire, "lights dimmed for movie night", models.RoutingHeuristicFast)

	l.CheckEvent(context.Background(), models.Event{
		ID:      "evt-2",
		Source:  "user.voice",
		RawText: "Undo that, please",
	})

	require.Len(t, fires.resolved, 1)
	assert.Equal(t, fire.ID, fires.resolved[0].fireID)
	assert.Equal(t, models.OutcomeFail, fires.resolved[0].outcome)
	assert.Equal(t, models.FeedbackSourceExplicit, fires.resolved[0].source)

	require.Len(t, feedback.events, 1)
	fb := feedback.events[0]
	assert.Equal(t, models.FeedbackExplicitNegative, fb.FeedbackType)
	assert.Equal(t, fire.HeuristicID.String(), fb.TargetID)
	assert.InDelta(t, 0.8, fb.Weight, 0.001)

	// The record is consumed; a second undo has nothing to reject.
	l.CheckEvent(context.Background(), models.Event{ID: "evt-3", Source: "user.voice", RawText: "cancel"})
	assert.Len(t, fires.resolved, 1)
	assert.Len(t, feedback.events, 1)
}

func TestLearning_UndoIgnoresFiresOutsideWindow(t *testing.T) {
	l, fires, feedback := newTestLearning(nil)
	fire := fastPathFire(time.Now().Add(-2 * time.Minute))
	l.ObserveFire(fire, "lights dimmed", models.RoutingHeuristicFast)

	l.CheckEvent(context.Background(), models.Event{ID: "evt-2", Source: "user.voice", RawText: "undo"})

	assert.Empty(t, fires.resolved, "a fire older than the undo window is not an undo target")
	assert.Empty(t, feedback.events)
}

func TestLearning_UndoOnlyTracksFastPath(t *testing.T) {
	l, fires, feedback := newTestLearning(nil)
	l.ObserveFire(fastPathFire(time.Now()), "lights dimmed", models.RoutingLLMImmediate)

	l.CheckEvent(context.Background(), models.Event{ID: "evt-2", Source: "user.voice", RawText: "undo"})

	assert.Empty(t, fires.resolved)
	assert.Empty(t, feedback.events)
}

func TestLearning_SweepEmitsIgnoredAfterThreshold(t *testing.T) {
	l, fires, feedback := newTestLearning(nil)
	heuristicID := uuid.New()
	old := time.Now().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		fire := fastPathFire(old)
		fire.HeuristicID = heuristicID
		l.ObserveFire(fire, "lights dimmed", models.RoutingHeuristicFast)
	}

	l.Sweep(context.Background(), time.Now())

	require.Len(t, feedback.events, 1, "threshold reached emits exactly one signal")
	fb := feedback.events[0]
	assert.Equal(t, models.FeedbackImplicitIgnored, fb.FeedbackType)
	assert.Equal(t, heuristicID.String(), fb.TargetID)
	assert.Empty(t, fires.resolved, "ignored responses resolve no fire rows")

	// Counter reset: three more ignores are needed for the next signal.
	fire := fastPathFire(time.Now().Add(-time.Minute))
	fire.HeuristicID = heuristicID
	l.ObserveFire(fire, "lights dimmed", models.RoutingHeuristicFast)
	l.Sweep(context.Background(), time.Now())
	assert.Len(t, feedback.events, 1)
}

func TestLearning_SweepBelowThresholdStaysQuiet(t *testing.T) {
	l, _, feedback := newTestLearning(nil)
	old := time.Now().Add(-time.Minute)
	heuristicID := uuid.New()
	for i := 0; i < 2; i++ {
		fire := fastPathFire(old)
		fire.HeuristicID = heuristicID
		l.ObserveFire(fire, "lights dimmed", models.RoutingHeuristicFast)
	}

	l.Sweep(context.Background(), time.Now())

	assert.Empty(t, feedback.events)
}

func TestLearning_ExpiredWatchProducesNoFeedback(t *testing.T) {
	l, fires, feedback := newTestLearning(ovenPatterns())
	l.ObserveFire(fastPathFire(time.Now()), "oven left on", models.RoutingLLMImmediate)
	require.Equal(t, 1, l.PendingOutcomes())

	l.Sweep(context.Background(), time.Now().Add(2*time.Minute))

	assert.Zero(t, l.PendingOutcomes())
	assert.Empty(t, fires.resolved, "an expired watch leaves the fire unresolved")
	assert.Empty(t, feedback.events)
}

func TestLearning_ExplicitFeedbackClearsTracking(t *testing.T) {
	l, fires, feedback := newTestLearning(nil)
	fire := fastPathFire(time.Now())
	l.ObserveFire(fire, "lights dimmed", models.RoutingHeuristicFast)

	l.NoteExplicitFeedback(fire.HeuristicID)

	l.CheckEvent(context.Background(), models.Event{ID: "evt-2", Source: "user.voice", RawText: "undo"})
	assert.Empty(t, fires.resolved, "explicit feedback already consumed the fire")
	assert.Empty(t, feedback.events)
}
