package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// WorkerStatus represents the current state of a routing worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth is a point-in-time snapshot of one routing worker.
type WorkerHealth struct {
	ID              string       `json:"id"`
	Status          WorkerStatus `json:"status"`
	CurrentEventID  string       `json:"current_event_id,omitempty"`
	EventsProcessed int          `json:"events_processed"`
	LastActivity    time.Time    `json:"last_activity"`
}

// worker drains the priority queue and routes events. After stop is
// signalled it keeps draining until the queue is empty, so everything
// already accepted still gets processed on graceful shutdown.
type worker struct {
	id       string
	orch     *Orchestrator
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Health tracking
	mu              sync.RWMutex
	status          WorkerStatus
	currentEventID  string
	eventsProcessed int
	lastActivity    time.Time
}

func newWorker(id string, orch *Orchestrator) *worker {
	return &worker{
		id:           id,
		orch:         orch,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// start begins the drain loop in a goroutine.
func (w *worker) start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// stop signals the worker to stop and waits for it to finish.
// It is safe to call stop multiple times.
func (w *worker) stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// health returns the current worker health snapshot.
func (w *worker) health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:              w.id,
		Status:          w.status,
		CurrentEventID:  w.currentEventID,
		EventsProcessed: w.eventsProcessed,
		LastActivity:    w.lastActivity,
	}
}

// run is the main worker loop: pop until empty, then wait for a push or a
// stop signal. Pop-before-wait means a stop signal only wins once the
// queue has drained.
func (w *worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("Worker started")

	for {
		item, ok := w.orch.queue.pop()
		if !ok {
			select {
			case <-w.stopCh:
				log.Info("Worker shutting down")
				return
			case <-ctx.Done():
				log.Info("Context cancelled, worker shutting down")
				return
			case <-w.orch.queue.notify:
			}
			continue
		}

		w.setStatus(WorkerStatusWorking, item.event.ID)
		w.orch.processItem(ctx, item)
		w.setStatus(WorkerStatusIdle, "")
	}
}

// setStatus updates health tracking; finishing an event bumps the
// processed count.
func (w *worker) setStatus(status WorkerStatus, eventID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status == WorkerStatusWorking && status == WorkerStatusIdle {
		w.eventsProcessed++
	}
	w.status = status
	w.currentEventID = eventID
	w.lastActivity = time.Now()
}
