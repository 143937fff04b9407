package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gladys-ai/gladys/pkg/config"
	"github.com/gladys-ai/gladys/pkg/decision"
	"github.com/gladys-ai/gladys/pkg/memory"
	"github.com/gladys-ai/gladys/pkg/models"
	"github.com/gladys-ai/gladys/pkg/orchestrator"
	"github.com/gladys-ai/gladys/pkg/salience"
	"github.com/gladys-ai/gladys/test/util"
)

// learningEnv wires the real store, gateway, and executive over a real
// PostgreSQL database (testcontainers locally, service container in CI),
// with scripted embedder and LLM so similarity and reasoning outcomes are
// deterministic.
type learningEnv struct {
	store     *memory.Store
	gateway   *salience.Gateway
	executive *decision.Executive
	embedder  *ScriptedEmbedder
	llm       *ScriptedLLMClient
}

func setupLearningEnv(t *testing.T) *learningEnv {
	t.Helper()

	pool, _ := util.SetupTestDatabase(t)
	memCfg := config.DefaultMemoryConfig()

	embedder := NewScriptedEmbedder(memCfg.EmbeddingDimensions)
	llmClient := NewScriptedLLMClient()

	store := memory.NewStore(pool, embedder, memCfg)
	gateway := salience.NewGateway(config.DefaultSalienceConfig(), embedder, store)
	store.SetNotifier(gateway)
	executive := decision.NewExecutive(config.DefaultDecisionConfig(), llmClient, store)

	return &learningEnv{
		store:     store,
		gateway:   gateway,
		executive: executive,
		embedder:  embedder,
		llm:       llmClient,
	}
}

// startOrchestrator brings up a single-worker orchestrator over the env.
// The single worker keeps processing order deterministic; the long moment
// interval keeps accumulated events out of the way unless a scenario
// overrides it.
func (env *learningEnv) startOrchestrator(t *testing.T, mutate func(*config.OrchestratorConfig)) *orchestrator.Orchestrator {
	t.Helper()

	cfg := config.DefaultOrchestratorConfig()
	cfg.WorkerCount = 1
	cfg.PublishAckTimeout = 5 * time.Second
	cfg.MomentInterval = time.Hour
	cfg.GracefulShutdownTimeout = 5 * time.Second
	if mutate != nil {
		mutate(cfg)
	}

	orch := orchestrator.NewOrchestrator(cfg, env.gateway, env.executive, env.store, nil)
	require.NoError(t, orch.Start(context.Background()))
	t.Cleanup(orch.Stop)
	return orch
}

func (env *learningEnv) storeHeuristic(t *testing.T, h models.Heuristic) uuid.UUID {
	t.Helper()
	id, err := env.store.StoreHeuristic(context.Background(), h)
	require.NoError(t, err)
	return id
}

func (env *learningEnv) feedback(t *testing.T, fb models.FeedbackEvent) models.FeedbackAck {
	t.Helper()
	ack, err := env.executive.ProvideFeedback(context.Background(), fb)
	require.NoError(t, err)
	require.True(t, ack.Accepted)
	return ack
}

// --- Scenarios ---

// A novel event goes through the slow path, the user approves the answer,
// and a reusable heuristic comes out the other end with the initiating
// positive already counted (alpha 2, beta 1).
func TestScenario_NovelEventBecomesHeuristic(t *testing.T) {
	env := setupLearningEnv(t)
	ctx := context.Background()

	env.llm.AddResponse("Take cover and eat something to regain health.")
	env.llm.AddPrediction(`{"success": 0.8, "confidence": 0.7}`)

	resp, err := env.executive.ProcessEvent(ctx, models.Event{
		ID:        uuid.NewString(),
		Source:    "minecraft",
		Timestamp: time.Now(),
		RawText:   "player health 10% after skeleton arrow",
		Salience:  &models.SalienceVector{Threat: 0.8},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.ResponseID)
	assert.Equal(t, models.RoutingLLMImmediate, resp.RoutingPath)
	assert.Equal(t, "Take cover and eat something to regain health.", resp.Text)
	assert.InDelta(t, 0.8, resp.PredictedSuccess, 1e-9)
	assert.InDelta(t, 0.7, resp.PredictionConfidence, 1e-9)

	env.llm.AddExtraction(`{"condition": "player at critically low health from a ranged attack",
		"action": {"type": "respond", "message": "Take cover and restore health"}}`)
	ack := env.feedback(t, models.FeedbackEvent{
		TargetType:   models.TargetPattern,
		TargetID:     resp.ResponseID,
		FeedbackType: models.FeedbackExplicitPositive,
	})
	assert.Empty(t, ack.ErrorMessage)
	require.True(t, ack.HeuristicCreated)

	h, err := env.store.GetHeuristic(ctx, uuid.MustParse(ack.HeuristicID))
	require.NoError(t, err)
	assert.Equal(t, "player at critically low health from a ranged attack", h.ConditionText)
	assert.Equal(t, "Take cover and restore health", h.SuggestedAction())
	assert.Equal(t, 2.0, h.Alpha, "initiating positive is the first evidence")
	assert.Equal(t, 1.0, h.Beta)
	assert.Equal(t, "minecraft", h.Source, "learned rule inherits the event's source")
	assert.Equal(t, models.OriginLearned, h.Origin)
	assert.Equal(t, resp.ResponseID, h.OriginID)
	assert.NotNil(t, h.ConditionEmbedding)

	// The trace was consumed by the extraction; approving again is a
	// soft no-op, not a second heuristic.
	again := env.feedback(t, models.FeedbackEvent{
		TargetType:   models.TargetPattern,
		TargetID:     resp.ResponseID,
		FeedbackType: models.FeedbackExplicitPositive,
	})
	assert.Equal(t, "Reasoning trace not found or expired", again.ErrorMessage)
	assert.False(t, again.HeuristicCreated)
}

// Two positives on a fresh heuristic move it from the uniform prior to
// alpha 3, beta 1 (confidence 0.75).
func TestScenario_Reinforcement(t *testing.T) {
	env := setupLearningEnv(t)
	ctx := context.Background()

	id := env.storeHeuristic(t, models.Heuristic{
		Name:          "Creeper warning",
		ConditionText: "creeper hissing nearby",
		Action:        map[string]any{"message": "Run!"},
		Source:        "minecraft",
	})

	positive := models.FeedbackEvent{
		TargetType:   models.TargetHeuristic,
		TargetID:     id.String(),
		FeedbackType: models.FeedbackExplicitPositive,
	}
	env.feedback(t, positive)
	ack := env.feedback(t, positive)
	assert.Equal(t, 3.0, ack.UpdatedAlpha)
	assert.Equal(t, 1.0, ack.UpdatedBeta)
	assert.InDelta(t, 0.75, ack.UpdatedConfidence, 1e-9)

	h, err := env.store.GetHeuristic(ctx, id)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, h.Confidence(), 1e-9)
}

// Negative feedback walks a heuristic's confidence down until the gateway
// stops matching it, and the event falls back to the unmatched path.
func TestScenario_CorrectionDropsBelowMatching(t *testing.T) {
	env := setupLearningEnv(t)
	ctx := context.Background()

	const condition = "player died in lava"
	const eventText = "player stepped into the lava pool"
	env.embedder.SetPair(condition, eventText, 0.8)

	id := env.storeHeuristic(t, models.Heuristic{
		Name:          "Lava caution",
		ConditionText: condition,
		Action:        map[string]any{"message": "Careful around lava"},
		Source:        "minecraft",
		Alpha:         6,
		Beta:          4,
	})

	event := models.Event{ID: uuid.NewString(), Source: "minecraft", RawText: eventText}
	_, match := env.gateway.EvaluateSalience(ctx, event)
	require.NotNil(t, match)
	assert.Equal(t, id, match.HeuristicID)
	assert.GreaterOrEqual(t, match.Similarity, 0.7)
	assert.InDelta(t, 0.6, match.Confidence, 1e-9)

	negative := models.FeedbackEvent{
		TargetType:   models.TargetHeuristic,
		TargetID:     id.String(),
		FeedbackType: models.FeedbackExplicitNegative,
	}

	ack := env.feedback(t, negative)
	assert.Equal(t, 5.0, ack.UpdatedBeta)
	assert.InDelta(t, 6.0/11.0, ack.UpdatedConfidence, 1e-3) // 0.545

	// Still above the matching floor: the heuristic keeps firing, with
	// the updated confidence riding the match.
	_, match = env.gateway.EvaluateSalience(ctx, event)
	require.NotNil(t, match)
	assert.InDelta(t, 6.0/11.0, match.Confidence, 1e-3)

	env.feedback(t, negative) // 6/6: confidence exactly at the 0.5 floor
	_, match = env.gateway.EvaluateSalience(ctx, event)
	require.NotNil(t, match, "confidence at the floor still matches")

	env.feedback(t, negative) // 6/7: below the floor
	vec, match := env.gateway.EvaluateSalience(ctx, event)
	assert.Nil(t, match, "confidence below min_confidence must stop matching")
	assert.GreaterOrEqual(t, vec.Habituation, 0.9, "the repeated event is habituated by now")
}

// A differently-phrased event still matches when the embeddings land close
// enough, and the second lookup is served from the warmed cache.
func TestScenario_FuzzyMatch(t *testing.T) {
	env := setupLearningEnv(t)
	ctx := context.Background()

	const condition = "player died in lava"
	const eventText = "character fell into magma pool and perished"
	env.embedder.SetPair(condition, eventText, 0.85)

	id := env.storeHeuristic(t, models.Heuristic{
		Name:          "Lava death",
		ConditionText: condition,
		Action:        map[string]any{"message": "Keep a fire resistance potion handy"},
		Source:        "minecraft",
	})

	event := models.Event{ID: uuid.NewString(), Source: "minecraft", RawText: eventText}
	_, match := env.gateway.EvaluateSalience(ctx, event)
	require.NotNil(t, match)
	assert.Equal(t, id, match.HeuristicID)
	assert.InDelta(t, 0.85, match.Similarity, 0.01)
	assert.False(t, match.FromCache, "first lookup is a storage match")

	_, match = env.gateway.EvaluateSalience(ctx, event)
	require.NotNil(t, match)
	assert.True(t, match.FromCache, "storage match must warm the cache")
}

// A source-scoped heuristic never fires for another domain, however similar
// the embeddings are.
func TestScenario_DomainIsolation(t *testing.T) {
	env := setupLearningEnv(t)
	ctx := context.Background()

	const condition = "high score achieved"
	const eventText = "credit score report 800"
	env.embedder.SetPair(condition, eventText, 0.92)

	id := env.storeHeuristic(t, models.Heuristic{
		Name:          "High score",
		ConditionText: condition,
		Action:        map[string]any{"message": "Congratulations!"},
		Source:        "gaming",
	})

	_, match := env.gateway.EvaluateSalience(ctx, models.Event{
		ID: uuid.NewString(), Source: "finance", RawText: eventText,
	})
	assert.Nil(t, match, "gaming-scoped heuristic must not fire for finance events")

	// The same text from the heuristic's own domain does match: the miss
	// above was scoping, not similarity.
	_, match = env.gateway.EvaluateSalience(ctx, models.Event{
		ID: uuid.NewString(), Source: "gaming", RawText: eventText,
	})
	require.NotNil(t, match)
	assert.Equal(t, id, match.HeuristicID)
}

// Deleting a heuristic invalidates the cache within one notify round-trip:
// the next evaluation of its condition no longer returns it.
func TestScenario_CacheInvalidationOnDelete(t *testing.T) {
	env := setupLearningEnv(t)
	ctx := context.Background()

	const condition = "front door left open"
	const eventText = "the front door is standing open"
	env.embedder.SetSame(condition, eventText)

	id := env.storeHeuristic(t, models.Heuristic{
		Name:          "Door reminder",
		ConditionText: condition,
		Action:        map[string]any{"message": "Close the door"},
	})

	event := models.Event{ID: uuid.NewString(), Source: "home", RawText: eventText}
	_, match := env.gateway.EvaluateSalience(ctx, event)
	require.NotNil(t, match)

	_, match = env.gateway.EvaluateSalience(ctx, event)
	require.NotNil(t, match)
	require.True(t, match.FromCache, "heuristic should be cached before the delete")

	require.NoError(t, env.store.DeleteHeuristic(ctx, id))

	_, match = env.gateway.EvaluateSalience(ctx, event)
	assert.Nil(t, match, "deleted heuristic must not match after invalidation")
}

// A confident boosted heuristic answers on the fast path without the LLM;
// the fire is recorded, the episode carries the provenance, and later
// negative feedback resolves the fire as a failure.
func TestScenario_FastPathFireAndResolution(t *testing.T) {
	env := setupLearningEnv(t)
	ctx := context.Background()

	const condition = "creeper hissing right behind the player"
	const eventText = "loud creeper hiss directly behind you"
	env.embedder.SetSame(condition, eventText)

	id := env.storeHeuristic(t, models.Heuristic{
		Name:          "Creeper escape",
		ConditionText: condition,
		Source:        "minecraft",
		Alpha:         19,
		Beta:          1, // confidence 0.95, above the fast-path bar
		Action: map[string]any{
			"type":     "respond",
			"message":  "Run! Creeper behind you!",
			"salience": map[string]any{"goal_relevance": 0.95},
		},
	})

	orch := env.startOrchestrator(t, nil)

	eventID := uuid.NewString()
	ack, err := orch.PublishEvent(ctx, models.Event{
		ID:      eventID,
		Source:  "minecraft",
		RawText: eventText,
	})
	require.NoError(t, err)
	require.True(t, ack.Accepted)
	assert.Equal(t, "Run! Creeper behind you!", ack.ResponseText)
	assert.Equal(t, id.String(), ack.MatchedHeuristicID)
	assert.False(t, ack.RoutedToLLM)
	assert.NotEmpty(t, ack.ResponseID)
	assert.InDelta(t, 0.95, ack.PredictedSuccess, 1e-9, "confidence doubles as the prediction")
	assert.Zero(t, env.llm.CallCount(), "fast path must not touch the LLM")

	fires, total, err := env.store.ListFires(ctx, memory.FireFilter{HeuristicID: id})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, eventID, fires[0].EventID)
	assert.Equal(t, models.OutcomeUnknown, fires[0].Outcome)
	require.NotNil(t, fires[0].EpisodeID, "fire must reference the persisted episode")

	episodes, err := env.store.QueryEpisodes(ctx, models.EpisodeQuery{Source: "minecraft"})
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	assert.Equal(t, string(models.RoutingHeuristicFast), episodes[0].Episode.DecisionPath)
	assert.Equal(t, "Run! Creeper behind you!", episodes[0].Episode.ResponseText)
	require.NotNil(t, episodes[0].Episode.MatchedHeuristicID)
	assert.Equal(t, id, *episodes[0].Episode.MatchedHeuristicID)

	h, err := env.store.GetHeuristic(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, h.FireCount)

	// The user disagrees: the confidence update also settles the open fire.
	fbAck, err := orch.ProvideFeedback(ctx, models.FeedbackEvent{
		TargetType:   models.TargetHeuristic,
		TargetID:     id.String(),
		FeedbackType: models.FeedbackExplicitNegative,
	})
	require.NoError(t, err)
	assert.Equal(t, 2.0, fbAck.UpdatedBeta)

	fires, _, err = env.store.ListFires(ctx, memory.FireFilter{HeuristicID: id})
	require.NoError(t, err)
	require.Len(t, fires, 1)
	assert.Equal(t, models.OutcomeFail, fires[0].Outcome)
	assert.Equal(t, models.FeedbackSourceExplicit, fires[0].FeedbackSource)
}

// Mundane events accumulate into a moment and reach the decision layer as
// one summarized batch.
func TestScenario_LowSalienceBatchesIntoMoment(t *testing.T) {
	env := setupLearningEnv(t)
	ctx := context.Background()

	env.llm.AddResponse("Quiet afternoon; nothing needs attention.")

	orch := env.startOrchestrator(t, func(cfg *config.OrchestratorConfig) {
		cfg.MomentInterval = 100 * time.Millisecond
	})

	for _, text := range []string{"sparrow landed on the feeder", "kettle finished boiling"} {
		ack, err := orch.PublishEvent(ctx, models.Event{
			ID:      uuid.NewString(),
			Source:  "home",
			RawText: text,
		})
		require.NoError(t, err)
		require.True(t, ack.Accepted)
		assert.True(t, ack.Queued, "low-salience events wait for the moment drain")
		assert.Empty(t, ack.ResponseText)
	}

	require.Eventually(t, func() bool {
		return env.executive.Stats(ctx).MomentsProcessed >= 1
	}, 3*time.Second, 20*time.Millisecond, "moment was never flushed")

	episodes, err := env.store.QueryEpisodes(ctx, models.EpisodeQuery{Source: "home"})
	require.NoError(t, err)
	assert.Len(t, episodes, 2, "batched events still persist individually")
	for _, ep := range episodes {
		assert.Equal(t, string(models.RoutingLLMMoment), ep.Episode.DecisionPath)
	}
}
