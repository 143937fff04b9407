package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gladys-ai/gladys/pkg/config"
	"github.com/gladys-ai/gladys/pkg/embedding"
	"github.com/gladys-ai/gladys/pkg/events"
	"github.com/gladys-ai/gladys/pkg/memory"
	"github.com/gladys-ai/gladys/pkg/models"
	"github.com/gladys-ai/gladys/test/util"
)

func setupRetention(t *testing.T) (*pgxpool.Pool, *memory.Store, *events.Publisher) {
	t.Helper()
	pool, _ := util.SetupTestDatabase(t)
	cfg := config.DefaultMemoryConfig()
	store := memory.NewStore(pool, embedding.NewHashProvider(cfg.EmbeddingDimensions), cfg)
	return pool, store, events.NewPublisher(pool)
}

func seedEpisode(t *testing.T, store *memory.Store, age time.Duration) uuid.UUID {
	t.Helper()
	id, err := store.StoreEpisode(context.Background(), models.Episode{
		Source:    "sensor.kitchen",
		RawText:   "oven temperature rising",
		Timestamp: time.Now().UTC().Add(-age),
	})
	require.NoError(t, err)
	return id
}

func episodeArchived(t *testing.T, pool *pgxpool.Pool, id uuid.UUID) bool {
	t.Helper()
	var archived bool
	err := pool.QueryRow(context.Background(),
		`SELECT archived FROM episodic_events WHERE id = $1`, id).Scan(&archived)
	require.NoError(t, err)
	return archived
}

func TestService_ArchivesOldEpisodes(t *testing.T) {
	pool, store, publisher := setupRetention(t)
	ctx := context.Background()

	oldID := seedEpisode(t, store, 100*24*time.Hour)
	recentID := seedEpisode(t, store, time.Hour)

	cfg := &config.RetentionConfig{
		EpisodeRetention: 90 * 24 * time.Hour,
		EventTTL:         24 * time.Hour,
		SweepInterval:    time.Hour,
	}
	svc := NewService(cfg, store, publisher)
	svc.runAll(ctx)

	assert.True(t, episodeArchived(t, pool, oldID))
	assert.False(t, episodeArchived(t, pool, recentID))
}

func TestService_PrunesExpiredStreamEvents(t *testing.T) {
	pool, store, publisher := setupRetention(t)
	ctx := context.Background()

	resp := models.Response{
		EventID:     uuid.New().String(),
		ResponseID:  uuid.New().String(),
		Text:        "lights dimmed",
		RoutingPath: models.RoutingHeuristicFast,
		Source:      "sensor.livingroom",
		Timestamp:   time.Now().UTC(),
	}
	require.NoError(t, publisher.PublishResponse(ctx, resp))
	resp.ResponseID = uuid.New().String()
	require.NoError(t, publisher.PublishResponse(ctx, resp))

	// Backdate one row past the TTL.
	tag, err := pool.Exec(ctx,
		`UPDATE events SET created_at = NOW() - INTERVAL '2 days'
		 WHERE id = (SELECT MIN(id) FROM events)`)
	require.NoError(t, err)
	require.EqualValues(t, 1, tag.RowsAffected())

	cfg := &config.RetentionConfig{
		EpisodeRetention: 90 * 24 * time.Hour,
		EventTTL:         24 * time.Hour,
		SweepInterval:    time.Hour,
	}
	svc := NewService(cfg, store, publisher)
	svc.runAll(ctx)

	var remaining int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM events`).Scan(&remaining))
	assert.Equal(t, 1, remaining, "expired event should be pruned, recent event preserved")
}

func TestService_ZeroDurationsDisableSweeps(t *testing.T) {
	pool, store, publisher := setupRetention(t)
	ctx := context.Background()

	oldID := seedEpisode(t, store, 400*24*time.Hour)
	require.NoError(t, publisher.PublishResponse(ctx, models.Response{
		EventID:     uuid.New().String(),
		ResponseID:  uuid.New().String(),
		Text:        "noted",
		RoutingPath: models.RoutingLLMMoment,
		Source:      "sensor.hall",
		Timestamp:   time.Now().UTC(),
	}))
	_, err := pool.Exec(ctx, `UPDATE events SET created_at = NOW() - INTERVAL '30 days'`)
	require.NoError(t, err)

	cfg := &config.RetentionConfig{SweepInterval: time.Hour}
	svc := NewService(cfg, store, publisher)
	svc.runAll(ctx)

	assert.False(t, episodeArchived(t, pool, oldID))
	var remaining int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM events`).Scan(&remaining))
	assert.Equal(t, 1, remaining)
}

func TestService_StartStop(t *testing.T) {
	_, store, publisher := setupRetention(t)

	svc := NewService(config.DefaultRetentionConfig(), store, publisher)

	svc.Start(context.Background())
	svc.Start(context.Background()) // second start is a no-op

	done := make(chan struct{})
	go func() {
		svc.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}
