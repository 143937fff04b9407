package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/gladys-ai/gladys/pkg/models"
)

// momentAccumulator collects below-threshold events between periodic
// drains. One drain becomes one decision-layer moment.
type momentAccumulator struct {
	mu     sync.Mutex
	events []models.Event
}

func (m *momentAccumulator) add(ev models.Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
}

func (m *momentAccumulator) drain() []models.Event {
	m.mu.Lock()
	events := m.events
	m.events = nil
	m.mu.Unlock()
	return events
}

func (m *momentAccumulator) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// flushMoment hands the accumulated batch to the decision layer in one
// call, fans out whatever it answered, and consolidates the span into an
// episode group so recall can treat it as a unit.
func (o *Orchestrator) flushMoment(ctx context.Context) {
	events := o.moment.drain()
	if len(events) == 0 {
		return
	}

	responses, err := o.executive.ProcessMoment(ctx, events)
	if err != nil {
		slog.Warn("Moment processing failed", "events", len(events), "error", err)
	}
	for _, resp := range responses {
		o.publishResponse(ctx, resp)
	}
	o.storeMomentGroup(ctx, events, responses)
}

func (o *Orchestrator) storeMomentGroup(ctx context.Context, events []models.Event, responses []models.Response) {
	group := models.EpisodeGroup{
		Title:     fmt.Sprintf("Moment of %d events", len(events)),
		StartedAt: events[0].Timestamp,
	}
	end := events[0].Timestamp
	for _, ev := range events {
		if ev.Timestamp.Before(group.StartedAt) {
			group.StartedAt = ev.Timestamp
		}
		if ev.Timestamp.After(end) {
			end = ev.Timestamp
		}
		if ev.Salience != nil {
			if agg := ev.Salience.Aggregate(); agg > group.SaliencePeak {
				group.SaliencePeak = agg
			}
		}
		if id, parseErr := uuid.Parse(ev.ID); parseErr == nil {
			group.EventIDs = append(group.EventIDs, id)
		}
	}
	group.EndedAt = &end
	if len(responses) > 0 {
		group.Summary = responses[0].Text
	}

	if _, err := o.store.StoreEpisodeGroup(ctx, group); err != nil {
		slog.Warn("Moment group not persisted", "events", len(events), "error", err)
	}
}
