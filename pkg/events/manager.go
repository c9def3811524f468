package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// ConnectionManager fans bus events out to WebSocket clients. Each channel
// with at least one WebSocket subscriber holds one bus subscription; the
// forwarding goroutine broadcasts every event to the channel's connections.
type ConnectionManager struct {
	bus *Bus

	// Active connections: connection_id → *Connection
	connections map[string]*Connection
	mu          sync.RWMutex

	// Channel fan-out state: channel → subscribed connections + bus feed
	channels  map[string]*channelFanout
	channelMu sync.Mutex

	// Write timeout for WebSocket sends
	writeTimeout time.Duration
}

type channelFanout struct {
	connIDs map[string]bool
	sub     *Subscription
	done    chan struct{}
}

// Connection represents a single WebSocket client.
//
// subscriptions is accessed WITHOUT a lock. This is safe because all reads
// and writes happen on the single goroutine that owns this connection
// (HandleConnection's read loop and its deferred cleanup).
type Connection struct {
	ID            string
	Conn          *websocket.Conn
	subscriptions map[string]bool
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewConnectionManager creates a manager over the given bus.
func NewConnectionManager(bus *Bus, writeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		bus:          bus,
		connections:  make(map[string]*Connection),
		channels:     make(map[string]*channelFanout),
		writeTimeout: writeTimeout,
	}
}

// HandleConnection manages the lifecycle of a single WebSocket connection.
// Called by the WebSocket HTTP handler after upgrade. Blocks until the
// connection closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	connID := uuid.NewString()
	ctx, cancel := context.WithCancel(parentCtx)

	c := &Connection{
		ID:            connID,
		Conn:          conn,
		subscriptions: make(map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
	}

	m.registerConnection(c)
	defer m.unregisterConnection(c)

	m.sendJSON(c, map[string]string{
		"type":          "connection.established",
		"connection_id": connID,
	})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("invalid WebSocket message", "connection_id", connID, "error", err)
			continue
		}

		m.handleClientMessage(c, &msg)
	}
}

// ActiveConnections returns the count of active WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// subscriberCount returns the number of WebSocket subscribers for a channel.
// Unexported; tests poll it instead of sleeping.
func (m *ConnectionManager) subscriberCount(channel string) int {
	m.channelMu.Lock()
	defer m.channelMu.Unlock()
	if fan, ok := m.channels[channel]; ok {
		return len(fan.connIDs)
	}
	return 0
}

func (m *ConnectionManager) handleClientMessage(c *Connection, msg *ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if msg.Channel == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "channel is required for subscribe"})
			return
		}
		m.subscribe(c, msg.Channel)
		m.sendJSON(c, map[string]string{
			"type":    "subscription.confirmed",
			"channel": msg.Channel,
		})
		// Auto catch-up: deliver retained events so late subscribers see
		// the channel's recent history.
		m.handleCatchup(c, msg.Channel, 0)

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
		if msg.LastSeq != nil {
			m.handleCatchup(c, msg.Channel, *msg.LastSeq)
		}

	case "ping":
		m.sendJSON(c, map[string]string{"type": "pong"})
	}
}

// subscribe registers a connection for a channel and opens the bus feed when
// it is the first subscriber. The bus subscription is live before subscribe
// returns, so the subsequent auto-catchup cannot miss events published in
// between.
func (m *ConnectionManager) subscribe(c *Connection, channel string) {
	m.channelMu.Lock()
	fan, exists := m.channels[channel]
	if !exists {
		fan = &channelFanout{
			connIDs: make(map[string]bool),
			sub:     m.bus.Subscribe(channel),
			done:    make(chan struct{}),
		}
		m.channels[channel] = fan
		go m.forward(channel, fan)
	}
	fan.connIDs[c.ID] = true
	m.channelMu.Unlock()

	c.subscriptions[channel] = true
}

// unsubscribe removes a connection from a channel and closes the bus feed
// when it was the last subscriber.
func (m *ConnectionManager) unsubscribe(c *Connection, channel string) {
	m.channelMu.Lock()
	if fan, exists := m.channels[channel]; exists {
		delete(fan.connIDs, c.ID)
		if len(fan.connIDs) == 0 {
			delete(m.channels, channel)
			fan.sub.Close()
		}
	}
	m.channelMu.Unlock()

	delete(c.subscriptions, channel)
}

// forward pumps bus events for one channel to its WebSocket subscribers.
// Exits when the bus subscription closes (last subscriber left).
func (m *ConnectionManager) forward(channel string, fan *channelFanout) {
	defer close(fan.done)
	for evt := range fan.sub.C {
		data, err := json.Marshal(evt)
		if err != nil {
			slog.Warn("failed to marshal event for broadcast", "channel", channel, "error", err)
			continue
		}
		m.broadcast(fan, data)
	}
}

// broadcast sends an encoded event to every connection subscribed to the
// channel. Connection pointers are snapshotted first so slow writes (up to
// writeTimeout each) never stall register/unregister.
func (m *ConnectionManager) broadcast(fan *channelFanout, data []byte) {
	m.channelMu.Lock()
	ids := make([]string, 0, len(fan.connIDs))
	for id := range fan.connIDs {
		ids = append(ids, id)
	}
	m.channelMu.Unlock()

	m.mu.RLock()
	conns := make([]*Connection, 0, len(ids))
	for _, id := range ids {
		if conn, ok := m.connections[id]; ok {
			conns = append(conns, conn)
		}
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		if err := m.sendRaw(conn, data); err != nil {
			slog.Warn("failed to send to WebSocket client",
				"connection_id", conn.ID, "error", err)
		}
	}
}

// handleCatchup sends the retained events after lastSeq to the client. When
// the history ring no longer reaches back to lastSeq, a catchup.overflow
// message tells the client to do a full REST reload.
func (m *ConnectionManager) handleCatchup(c *Connection, channel string, lastSeq uint64) {
	missed, overflow := m.bus.Since(channel, lastSeq)
	for _, evt := range missed {
		data, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		if err := m.sendRaw(c, data); err != nil {
			slog.Warn("failed to send catchup event", "connection_id", c.ID, "error", err)
			return
		}
	}
	if overflow {
		m.sendJSON(c, map[string]any{
			"type":    "catchup.overflow",
			"channel": channel,
		})
	}
}

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

func (m *ConnectionManager) sendJSON(c *Connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("failed to marshal WebSocket message", "connection_id", c.ID, "error", err)
		return
	}
	if err := m.sendRaw(c, data); err != nil {
		slog.Warn("failed to send WebSocket message", "connection_id", c.ID, "error", err)
	}
}

func (m *ConnectionManager) sendRaw(c *Connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.Conn.Write(writeCtx, websocket.MessageText, data)
}
