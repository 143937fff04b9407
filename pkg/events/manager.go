package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// catchupLimit is the maximum number of events returned in a catchup
// response. If more events are missed, a catchup.overflow message tells the
// client to do a full REST reload.
const catchupLimit = 200

// listenTimeout bounds how long a LISTEN command may block when subscribing
// to a new PG channel. Without this, a stalled connection would block the
// subscribing goroutine (and thus the client's read loop) indefinitely.
const listenTimeout = 10 * time.Second

// sendBufferSize is the per-connection outbound queue depth. A subscriber
// that falls further behind than this gets dropped messages rather than
// stalling delivery to everyone else.
const sendBufferSize = 64

// errSlowSubscriber reports a dropped message for a subscriber whose send
// buffer is full.
var errSlowSubscriber = errors.New("send buffer full")

// ConnectionManager manages WebSocket connections, channel subscriptions,
// and in-process sinks. Each process has one ConnectionManager instance.
type ConnectionManager struct {
	// Active connections: connection_id → *Connection
	connections map[string]*Connection
	mu          sync.RWMutex

	// Channel subscriptions: channel → set of connection_ids
	channels  map[string]map[string]bool
	channelMu sync.RWMutex

	// In-process consumers: channel → sinks (e.g. gateway invalidation)
	sinks  map[string][]func([]byte)
	sinkMu sync.RWMutex

	// CatchupQuerier for catchup queries
	catchupQuerier CatchupQuerier

	// NotifyListener for dynamic LISTEN/UNLISTEN (set after construction)
	listener   *NotifyListener
	listenerMu sync.RWMutex

	// Write timeout for WebSocket sends
	writeTimeout time.Duration
}

// Connection represents a single WebSocket client.
//
// subscriptions is accessed WITHOUT a lock. This is safe because all reads
// and writes (subscribe, unsubscribe, unregisterConnection) happen on the
// single goroutine that owns this connection (HandleConnection's read loop
// and its deferred cleanup). filter is set once before the connection is
// registered and never mutated, so concurrent reads from Broadcast are safe.
type Connection struct {
	ID            string
	Conn          *websocket.Conn
	filter        SubscriptionFilter
	subscriptions map[string]bool
	sendCh        chan []byte
	dropped       atomic.Uint64
	ctx           context.Context
	cancel        context.CancelFunc
}

// ConnectionOptions configures a WebSocket connection at upgrade time.
// Filters come from query parameters, not the message protocol.
type ConnectionOptions struct {
	// Channels are auto-subscribed before the read loop starts.
	Channels []string
	// Filter narrows response delivery for this connection.
	Filter SubscriptionFilter
	// LastEventID, when set, replays persisted events after this id on each
	// auto-subscribed channel (reconnect catchup).
	LastEventID *int64
}

// NewConnectionManager creates a new ConnectionManager.
func NewConnectionManager(catchupQuerier CatchupQuerier, writeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		connections:    make(map[string]*Connection),
		channels:       make(map[string]map[string]bool),
		sinks:          make(map[string][]func([]byte)),
		catchupQuerier: catchupQuerier,
		writeTimeout:   writeTimeout,
	}
}

// SetListener sets the NotifyListener for dynamic LISTEN/UNLISTEN. Called
// once during startup after both ConnectionManager and NotifyListener exist.
func (m *ConnectionManager) SetListener(l *NotifyListener) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.listener = l
}

// RegisterSink adds an in-process consumer for a channel. Sinks receive
// every payload broadcast on the channel, before WebSocket fan-out and
// unfiltered, and must be fast: they run on the NOTIFY receive loop. A sink
// does not establish the PG LISTEN by itself — wire that via
// NotifyListener.Subscribe unless WebSocket subscribers already hold it.
func (m *ConnectionManager) RegisterSink(channel string, sink func([]byte)) {
	m.sinkMu.Lock()
	defer m.sinkMu.Unlock()
	m.sinks[channel] = append(m.sinks[channel], sink)
}

// HandleConnection manages the lifecycle of a single WebSocket connection.
// Called by the WebSocket HTTP handler after upgrade. Blocks until the
// connection closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn, opts ConnectionOptions) {
	connID := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)

	c := &Connection{
		ID:            connID,
		Conn:          conn,
		filter:        opts.Filter,
		subscriptions: make(map[string]bool),
		sendCh:        make(chan []byte, sendBufferSize),
		ctx:           ctx,
		cancel:        cancel,
	}

	m.registerConnection(c)
	defer m.unregisterConnection(c)
	go m.writePump(c)

	m.sendJSON(c, map[string]string{
		"type":          "connection.established",
		"connection_id": connID,
	})

	for _, channel := range opts.Channels {
		if err := m.subscribe(c, channel); err != nil {
			m.sendJSON(c, map[string]string{
				"type":    "subscription.error",
				"channel": channel,
				"message": "failed to subscribe to channel",
			})
			continue
		}
		m.sendJSON(c, map[string]string{
			"type":    "subscription.confirmed",
			"channel": channel,
		})
		if opts.LastEventID != nil {
			m.handleCatchup(ctx, c, channel, *opts.LastEventID)
		}
	}

	// Read loop — process client messages until the connection closes.
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket message",
				"connection_id", connID, "error", err)
			continue
		}

		m.handleClientMessage(ctx, c, &msg)
	}
}

// Broadcast delivers a payload to in-process sinks and every subscribed
// connection whose filter admits it. Per-connection delivery is
// non-blocking: a subscriber with a full send buffer gets the message
// dropped instead of stalling the broadcast.
func (m *ConnectionManager) Broadcast(channel string, event []byte) {
	m.dispatchToSinks(channel, event)

	m.channelMu.RLock()
	connIDs, exists := m.channels[channel]
	if !exists {
		m.channelMu.RUnlock()
		return
	}
	ids := make([]string, 0, len(connIDs))
	for id := range connIDs {
		ids = append(ids, id)
	}
	m.channelMu.RUnlock()

	m.mu.RLock()
	conns := make([]*Connection, 0, len(ids))
	for _, id := range ids {
		if conn, ok := m.connections[id]; ok {
			conns = append(conns, conn)
		}
	}
	m.mu.RUnlock()

	route := parseRouting(event)
	for _, conn := range conns {
		if route != nil && !conn.filter.allows(route.RoutingPath, route.Source) {
			continue
		}
		if err := m.enqueue(conn, event); err != nil {
			slog.Warn("Dropped message for slow subscriber",
				"connection_id", conn.ID, "channel", channel,
				"total_dropped", conn.dropped.Load())
		}
	}
}

// responseRouting is the slice of a response payload the per-connection
// filter needs.
type responseRouting struct {
	Type        string `json:"type"`
	RoutingPath string `json:"routing_path"`
	Source      string `json:"source"`
}

// parseRouting extracts filter fields from a payload. Non-response payloads
// (and unparseable ones) return nil and are delivered unfiltered.
func parseRouting(event []byte) *responseRouting {
	var r responseRouting
	if err := json.Unmarshal(event, &r); err != nil || r.Type != TypeResponse {
		return nil
	}
	return &r
}

func (m *ConnectionManager) dispatchToSinks(channel string, event []byte) {
	m.sinkMu.RLock()
	sinks := m.sinks[channel]
	m.sinkMu.RUnlock()
	for _, sink := range sinks {
		sink(event)
	}
}

// ActiveConnections returns the count of active WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// subscriberCount returns the number of subscribers for a channel.
// Unexported — used by tests to poll instead of sleeping.
func (m *ConnectionManager) subscriberCount(channel string) int {
	m.channelMu.RLock()
	defer m.channelMu.RUnlock()
	return len(m.channels[channel])
}

// handleClientMessage dispatches a client message to the appropriate handler.
func (m *ConnectionManager) handleClientMessage(ctx context.Context, c *Connection, msg *ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if msg.Channel == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "channel is required for subscribe"})
			return
		}
		if err := m.subscribe(c, msg.Channel); err != nil {
			m.sendJSON(c, map[string]string{
				"type":    "subscription.error",
				"channel": msg.Channel,
				"message": "failed to subscribe to channel",
			})
			return
		}
		m.sendJSON(c, map[string]string{
			"type":    "subscription.confirmed",
			"channel": msg.Channel,
		})

	case "unsubscribe":
		if msg.Channel == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "channel is required for unsubscribe"})
			return
		}
		m.unsubscribe(c, msg.Channel)

	case "catchup":
		if msg.Channel == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "channel is required for catchup"})
			return
		}
		if msg.LastEventID == nil {
			m.sendJSON(c, map[string]string{"type": "error", "message": "last_event_id is required for catchup"})
			return
		}
		m.handleCatchup(ctx, c, msg.Channel, *msg.LastEventID)

	case "ping":
		m.sendJSON(c, map[string]string{"type": "pong"})
	}
}

// subscribe registers a connection for a channel and starts LISTEN if first
// subscriber. LISTEN is synchronous so it completes before subscribe
// returns — a catchup issued right after runs with LISTEN already active,
// closing the gap where events published between catchup and LISTEN would
// be lost.
//
// Returns an error if LISTEN fails so the caller can inform the client
// instead of sending a false subscription.confirmed.
func (m *ConnectionManager) subscribe(c *Connection, channel string) error {
	m.channelMu.Lock()
	needsListen := false
	if _, exists := m.channels[channel]; !exists {
		m.channels[channel] = make(map[string]bool)
		needsListen = true
	}
	m.channels[channel][c.ID] = true
	m.channelMu.Unlock()

	if needsListen {
		m.listenerMu.RLock()
		l := m.listener
		m.listenerMu.RUnlock()
		if l != nil {
			listenCtx, listenCancel := context.WithTimeout(context.Background(), listenTimeout)
			defer listenCancel()
			if err := l.Subscribe(listenCtx, channel); err != nil {
				slog.Error("Failed to LISTEN on channel", "channel", channel, "error", err)
				m.cleanupFailedChannel(c, channel)
				return fmt.Errorf("LISTEN on channel %s: %w", channel, err)
			}
		}
	}

	c.subscriptions[channel] = true
	return nil
}

// cleanupFailedChannel removes ALL subscribers from a channel after a LISTEN
// failure and notifies every affected connection (except the triggering one,
// which is notified by the caller via the returned error).
//
// Between unlocking channelMu (after creating the channel entry) and
// l.Subscribe completing, other goroutines may have subscribed to the same
// channel. Because they saw the channel already existed they skipped LISTEN
// and returned success. Those connections are now orphaned — they received
// subscription.confirmed but the underlying PG LISTEN was never established.
// This helper cleans them up; clients must treat subscription.error as
// authoritative and re-subscribe with back-off.
//
// Note: affected connections may retain a stale c.subscriptions[channel]
// entry. This is harmless: Broadcast uses m.channels (now deleted), and
// unsubscribe / unregisterConnection handle missing channel entries
// gracefully.
func (m *ConnectionManager) cleanupFailedChannel(triggering *Connection, channel string) {
	m.channelMu.Lock()
	affectedIDs := make([]string, 0, len(m.channels[channel]))
	for connID := range m.channels[channel] {
		if connID != triggering.ID {
			affectedIDs = append(affectedIDs, connID)
		}
	}
	delete(m.channels, channel)
	m.channelMu.Unlock()

	if len(affectedIDs) == 0 {
		return
	}

	m.mu.RLock()
	conns := make([]*Connection, 0, len(affectedIDs))
	for _, id := range affectedIDs {
		if conn, ok := m.connections[id]; ok {
			conns = append(conns, conn)
		}
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		slog.Warn("Removing orphaned subscriber after LISTEN failure",
			"connection_id", conn.ID, "channel", channel)
		m.sendJSON(conn, map[string]string{
			"type":    "subscription.error",
			"channel": channel,
			"message": "channel listen failed; subscription removed",
		})
	}
}

// unsubscribe removes a connection from a channel and stops LISTEN if last
// subscriber.
func (m *ConnectionManager) unsubscribe(c *Connection, channel string) {
	m.channelMu.Lock()
	if subs, exists := m.channels[channel]; exists {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(m.channels, channel)
			// Last subscriber left — stop LISTEN.
			// The goroutine re-checks m.channels before issuing UNLISTEN to
			// prevent a race where a rapid unsubscribe/resubscribe cycle
			// would drop the LISTEN out from under the new subscriber.
			m.listenerMu.RLock()
			l := m.listener
			m.listenerMu.RUnlock()
			if l != nil {
				go func() {
					m.channelMu.RLock()
					_, resubscribed := m.channels[channel]
					m.channelMu.RUnlock()
					if resubscribed {
						return
					}
					if err := l.Unsubscribe(context.Background(), channel); err != nil {
						slog.Error("Failed to UNLISTEN channel", "channel", channel, "error", err)
					}
				}()
			}
		}
	}
	m.channelMu.Unlock()

	delete(c.subscriptions, channel)
}

// handleCatchup sends missed events since lastEventID to the client.
func (m *ConnectionManager) handleCatchup(ctx context.Context, c *Connection, channel string, lastEventID int64) {
	if m.catchupQuerier == nil {
		return
	}

	// Query capped at catchupLimit + 1 to detect overflow.
	events, err := m.catchupQuerier.GetCatchupEvents(ctx, channel, lastEventID, catchupLimit+1)
	if err != nil {
		slog.Error("Catchup query failed", "channel", channel, "error", err)
		return
	}

	hasMore := len(events) > catchupLimit
	if hasMore {
		events = events[:catchupLimit]
	}

	// Send missed events in order, injecting db_event_id for position
	// tracking. The stored payload doesn't contain db_event_id (it's only
	// added to the NOTIFY payload at publish time), so add it here from the
	// DB row id.
	for _, evt := range events {
		evt.Payload["db_event_id"] = evt.ID
		payload, err := json.Marshal(evt.Payload)
		if err != nil {
			continue
		}
		if err := m.enqueue(c, payload); err != nil {
			slog.Warn("Failed to send catchup event",
				"connection_id", c.ID, "error", err)
			return
		}
	}

	// If more events were missed than the catchup limit, tell the client to
	// do a full REST reload instead of paginating catchup requests.
	if hasMore {
		m.sendJSON(c, map[string]any{
			"type":     "catchup.overflow",
			"channel":  channel,
			"has_more": true,
		})
	}
}

// registerConnection adds a connection to the tracking map.
func (m *ConnectionManager) registerConnection(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.ID] = c
}

// unregisterConnection removes a connection and all its subscriptions.
func (m *ConnectionManager) unregisterConnection(c *Connection) {
	for ch := range c.subscriptions {
		m.unsubscribe(c, ch)
	}

	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()

	c.cancel()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
}

// writePump is the sole writer for a connection. It drains the send queue
// until the connection context ends; a write failure tears the connection
// down (the read loop observes the closure and unregisters).
func (m *ConnectionManager) writePump(c *Connection) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.sendCh:
			writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
			err := c.Conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.cancel()
				return
			}
		}
	}
}

// enqueue queues data for the connection's write pump without blocking.
func (m *ConnectionManager) enqueue(c *Connection, data []byte) error {
	select {
	case c.sendCh <- data:
		return nil
	default:
		c.dropped.Add(1)
		return errSlowSubscriber
	}
}

// sendJSON marshals and queues a JSON message for a single connection.
func (m *ConnectionManager) sendJSON(c *Connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal WebSocket message",
			"connection_id", c.ID, "error", err)
		return
	}
	if err := m.enqueue(c, data); err != nil {
		slog.Warn("Failed to send WebSocket message",
			"connection_id", c.ID, "error", err)
	}
}
