package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gladys-ai/gladys/pkg/models"
)

func TestStoreEpisode_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := uuid.New()
	ep := models.Episode{
		ID:      id,
		Source:  "sensor.hearing",
		RawText: "the kettle is whistling",
		Salience: map[string]float64{
			models.DimNovelty: 0.4,
		},
	}

	first, err := store.StoreEpisode(ctx, ep)
	require.NoError(t, err)
	assert.Equal(t, id, first)

	// Same ID again: identical ack, one row.
	second, err := store.StoreEpisode(ctx, ep)
	require.NoError(t, err)
	assert.Equal(t, id, second)

	matches, err := store.QueryEpisodes(ctx, models.EpisodeQuery{Source: "sensor.hearing"})
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestStoreEpisode_EmbedsRawText(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.StoreEpisode(ctx, models.Episode{
		Source:  "sensor.vision",
		RawText: "a red bird landed on the windowsill",
	})
	require.NoError(t, err)

	ep, err := store.GetEpisode(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, ep.Embedding)
	assert.Len(t, ep.Embedding.Slice(), store.Dimensions())
	assert.Equal(t, 1, ep.AccessCount, "get bumps the access count")
}

func TestQueryEpisodes_Semantic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	birdID, err := store.StoreEpisode(ctx, models.Episode{
		Source:  "sensor.vision",
		RawText: "a red bird landed on the windowsill",
	})
	require.NoError(t, err)
	_, err = store.StoreEpisode(ctx, models.Episode{
		Source:  "sensor.vision",
		RawText: "the dishwasher finished its cycle",
	})
	require.NoError(t, err)

	matches, err := store.QueryEpisodes(ctx, models.EpisodeQuery{
		QueryText:     "a red bird landed on the windowsill",
		MinSimilarity: 0.9,
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, birdID, matches[0].Episode.ID)
	assert.GreaterOrEqual(t, matches[0].Similarity, 0.99)
}

func TestQueryEpisodes_TimeWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-2 * time.Hour)
	recent := time.Now().Add(-5 * time.Minute)

	_, err := store.StoreEpisode(ctx, models.Episode{
		Source: "sensor.hearing", RawText: "old noise", Timestamp: old,
	})
	require.NoError(t, err)
	recentID, err := store.StoreEpisode(ctx, models.Episode{
		Source: "sensor.hearing", RawText: "recent noise", Timestamp: recent,
	})
	require.NoError(t, err)

	matches, err := store.QueryEpisodes(ctx, models.EpisodeQuery{
		Source: "sensor.hearing",
		Start:  time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, recentID, matches[0].Episode.ID)
}

func TestArchiveEpisodesBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.StoreEpisode(ctx, models.Episode{
		Source: "sensor.hearing", RawText: "ancient history",
		Timestamp: time.Now().Add(-48 * time.Hour),
	})
	require.NoError(t, err)
	keepID, err := store.StoreEpisode(ctx, models.Episode{
		Source: "sensor.hearing", RawText: "current affairs",
	})
	require.NoError(t, err)

	archived, err := store.ArchiveEpisodesBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), archived)

	// Archived rows disappear from queries but the row survives.
	matches, err := store.QueryEpisodes(ctx, models.EpisodeQuery{Source: "sensor.hearing"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, keepID, matches[0].Episode.ID)

	// Idempotent: a second sweep archives nothing new.
	archived, err = store.ArchiveEpisodesBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, archived)
}

func TestEpisodeGroups(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.StoreEpisodeGroup(ctx, models.EpisodeGroup{
		Title:        "Morning routine",
		Summary:      "kettle, birdsong, coffee brewing",
		EventIDs:     []uuid.UUID{uuid.New(), uuid.New()},
		SaliencePeak: 0.4,
	})
	require.NoError(t, err)

	groups, err := store.RecentEpisodeGroups(ctx, 10)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, id, groups[0].ID)
	assert.Equal(t, "Morning routine", groups[0].Title)
	assert.Len(t, groups[0].EventIDs, 2)
	assert.NotNil(t, groups[0].Embedding, "summary should have been embedded")
}

func TestGetEpisode_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetEpisode(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}
