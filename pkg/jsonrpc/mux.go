package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SendFunc delivers an encoded frame to the peer.
type SendFunc func(ctx context.Context, data []byte) error

// NotificationHandler receives the raw params of a named notification.
type NotificationHandler func(params json.RawMessage)

// outcome is the single resolution of one pending request.
type outcome struct {
	result json.RawMessage
	err    error
}

// Mux correlates JSON-RPC requests with responses over a single connection.
//
// Invariant: for every request sent, exactly one of {response delivered,
// timeout fired, connection closed, context cancelled} resolves its waiter.
// A response arriving after the waiter was resolved is dropped.
type Mux struct {
	serverName string
	send       SendFunc
	logger     *slog.Logger

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan outcome
	closed  bool

	handlerMu sync.RWMutex
	handlers  map[string]NotificationHandler
}

// NewMux creates a multiplexer that sends frames through send. serverName is
// used only for error and log context.
func NewMux(serverName string, send SendFunc) *Mux {
	return &Mux{
		serverName: serverName,
		send:       send,
		logger:     slog.With("server", serverName),
		pending:    make(map[int64]chan outcome),
		handlers:   make(map[string]NotificationHandler),
	}
}

// OnNotification registers a handler for a named notification method.
// Notifications with no registered handler are ignored silently.
func (m *Mux) OnNotification(method string, handler NotificationHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.handlers[method] = handler
}

// Call sends a request and blocks until whichever happens first: a response,
// the per-call timeout, connection close, or context cancellation.
func (m *Mux) Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	m.nextID++
	id := m.nextID
	ch := make(chan outcome, 1)
	m.pending[id] = ch
	m.mu.Unlock()

	req := Request{JSONRPC: Version, ID: &id, Method: method, Params: params}
	data, err := json.Marshal(req)
	if err != nil {
		m.resolve(id, outcome{})
		return nil, fmt.Errorf("marshal request %q: %w", method, err)
	}

	if err := m.send(ctx, data); err != nil {
		m.resolve(id, outcome{})
		return nil, fmt.Errorf("send request %q: %w", method, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		return out.result, out.err
	case <-timer.C:
		// Remove the waiter so a late response is dropped, not delivered.
		m.drop(id)
		return nil, &TimeoutError{ServerName: m.serverName, Method: method, Timeout: timeout}
	case <-ctx.Done():
		m.drop(id)
		return nil, ctx.Err()
	}
}

// Notify sends a notification (no id, no response expected).
func (m *Mux) Notify(ctx context.Context, method string, params any) error {
	req := Request{JSONRPC: Version, Method: method, Params: params}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal notification %q: %w", method, err)
	}
	return m.send(ctx, data)
}

// HandleMessage classifies and dispatches one incoming frame. Responses
// resolve their waiter; notifications dispatch to named handlers; anything
// else (including malformed JSON and unknown methods) is logged and dropped.
func (m *Mux) HandleMessage(data []byte) {
	var msg incoming
	if err := json.Unmarshal(data, &msg); err != nil {
		m.logger.Warn("Dropping malformed JSON-RPC frame", "error", err)
		return
	}

	switch {
	case msg.ID != nil && msg.Method == "":
		// Response to one of our requests.
		out := outcome{result: msg.Result}
		if msg.Error != nil {
			out.err = msg.Error
		}
		if !m.resolve(*msg.ID, out) {
			m.logger.Debug("Dropping response for unknown or resolved id", "id", *msg.ID)
		}
	case msg.Method != "":
		m.dispatchNotification(msg.Method, msg.Params)
	default:
		m.logger.Warn("Dropping frame with neither id nor method")
	}
}

func (m *Mux) dispatchNotification(method string, params json.RawMessage) {
	m.handlerMu.RLock()
	handler, ok := m.handlers[method]
	m.handlerMu.RUnlock()
	if !ok {
		return
	}
	handler(params)
}

// resolve delivers an outcome to the waiter for id, if still pending.
func (m *Mux) resolve(id int64, out outcome) bool {
	m.mu.Lock()
	ch, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	ch <- out
	return true
}

// drop removes a waiter without delivering an outcome (timeout/cancel path).
func (m *Mux) drop(id int64) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

// Close fails all pending waiters with ErrConnectionClosed and rejects
// further calls. Safe to call multiple times.
func (m *Mux) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	pending := m.pending
	m.pending = make(map[int64]chan outcome)
	m.mu.Unlock()

	for _, ch := range pending {
		ch <- outcome{err: ErrConnectionClosed}
	}
}

// Reset reopens a closed multiplexer after a successful reconnect. Pending
// state is already empty at that point; ids keep increasing monotonically.
func (m *Mux) Reset() {
	m.mu.Lock()
	m.closed = false
	m.mu.Unlock()
}

// PendingCount returns the number of in-flight requests.
func (m *Mux) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
