package orchestrator

import (
	"container/heap"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gladys-ai/gladys/pkg/models"
	"github.com/gladys-ai/gladys/pkg/services"
)

// queueItem is one queued event plus the bookkeeping the ack path needs.
// Priority and threat are captured at push time from whatever salience the
// publisher supplied; unsalienced events carry zero and drain in arrival
// order behind scored ones. resultCh (buffered, may be nil) receives the
// worker's full ack; the publisher may have stopped waiting by then.
type queueItem struct {
	event    models.Event
	priority float64
	threat   float64
	seq      uint64
	enqueued time.Time
	resultCh chan models.PublishAck
}

// eventHeap orders items by priority desc, threat desc, then arrival order.
type eventHeap []*queueItem

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	if h[i].threat != h[j].threat {
		return h[i].threat > h[j].threat
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(*queueItem)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// QueueStats is a point-in-time snapshot of queue activity.
type QueueStats struct {
	QueueSize      int    `json:"queue_size"`
	TotalQueued    uint64 `json:"total_queued"`
	TotalProcessed uint64 `json:"total_processed"`
	TotalTimedOut  uint64 `json:"total_timed_out"`
	TotalRejected  uint64 `json:"total_rejected"`
}

// eventQueue is the bounded priority queue feeding the routing workers.
type eventQueue struct {
	mu       sync.Mutex
	items    eventHeap
	capacity int
	nextSeq  uint64

	// notify wakes a worker after a push. Capacity 1: one pending wakeup
	// is enough because workers drain until the queue is empty.
	notify chan struct{}

	totalQueued    atomic.Uint64
	totalProcessed atomic.Uint64
	totalTimedOut  atomic.Uint64
	totalRejected  atomic.Uint64
}

func newEventQueue(capacity int) *eventQueue {
	return &eventQueue{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// push enqueues an event, returning services.ErrQueueFull at capacity.
func (q *eventQueue) push(ev models.Event, resultCh chan models.PublishAck) error {
	q.mu.Lock()
	if len(q.items) >= q.capacity {
		q.mu.Unlock()
		q.totalRejected.Add(1)
		return services.ErrQueueFull
	}
	item := &queueItem{
		event:    ev,
		seq:      q.nextSeq,
		enqueued: time.Now(),
		resultCh: resultCh,
	}
	q.nextSeq++
	if ev.Salience != nil {
		item.priority = ev.Salience.Aggregate()
		item.threat = ev.Salience.Threat
	}
	heap.Push(&q.items, item)
	q.mu.Unlock()

	q.totalQueued.Add(1)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// pop removes the highest-priority item, reporting false when empty.
func (q *eventQueue) pop() (*queueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	return heap.Pop(&q.items).(*queueItem), true
}

func (q *eventQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// snapshot returns up to limit queued events in the order the heap would
// drain them. limit <= 0 means no limit.
func (q *eventQueue) snapshot(limit int) []models.QueuedEvent {
	q.mu.Lock()
	items := make([]*queueItem, len(q.items))
	copy(items, q.items)
	q.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].priority != items[j].priority {
			return items[i].priority > items[j].priority
		}
		if items[i].threat != items[j].threat {
			return items[i].threat > items[j].threat
		}
		return items[i].seq < items[j].seq
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	now := time.Now()
	out := make([]models.QueuedEvent, 0, len(items))
	for _, it := range items {
		out = append(out, models.QueuedEvent{
			Event:      it.event,
			Priority:   it.priority,
			EnqueuedAt: it.enqueued,
			AgeMS:      now.Sub(it.enqueued).Milliseconds(),
		})
	}
	return out
}

func (q *eventQueue) stats() QueueStats {
	return QueueStats{
		QueueSize:      q.size(),
		TotalQueued:    q.totalQueued.Load(),
		TotalProcessed: q.totalProcessed.Load(),
		TotalTimedOut:  q.totalTimedOut.Load(),
		TotalRejected:  q.totalRejected.Load(),
	}
}
