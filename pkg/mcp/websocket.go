package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/websocket"
)

// wsTransport frames messages as websocket text frames.
type wsTransport struct {
	callbacks

	url string

	mu   sync.Mutex
	conn *websocket.Conn

	closeOnce sync.Once
	done      chan struct{}
}

func newWebSocketTransport(url string) *wsTransport {
	return &wsTransport{
		url:  url,
		done: make(chan struct{}),
	}
}

func (t *wsTransport) Connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.url, err)
	}
	// Frames can be large tool results; do not cap reads at the default 32KiB.
	conn.SetReadLimit(stdioMaxFrameBytes)

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	go t.readLoop(conn)
	return nil
}

func (t *wsTransport) readLoop(conn *websocket.Conn) {
	defer t.closeOnce.Do(func() {
		close(t.done)
		t.emitClose()
	})

	for {
		typ, data, err := conn.Read(context.Background())
		if err != nil {
			if websocket.CloseStatus(err) == -1 {
				t.emitError(fmt.Errorf("read frame: %w", err))
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		t.emitMessage(data)
	}
}

func (t *wsTransport) Send(ctx context.Context, data []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("websocket transport not connected")
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "client closing")
}
