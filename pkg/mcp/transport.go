package mcp

import (
	"context"
	"fmt"

	"github.com/tamma-ai/tamma/pkg/config"
)

// Transport carries framed JSON messages between client and server. The
// three implementations (stdio, SSE, websocket) share this contract; the
// multiplexer above polices outstanding-request counts, so transports do
// not implement backpressure.
//
// Callbacks must be registered before Connect. OnMessage receives one
// complete JSON frame per call; OnClose fires exactly once when the carrier
// ends, whether by error or by explicit Close.
type Transport interface {
	Connect(ctx context.Context) error
	Close() error
	Send(ctx context.Context, data []byte) error
	OnMessage(fn func(data []byte))
	OnError(fn func(err error))
	OnClose(fn func())
}

// callbacks factors the registration and guarded invocation shared by all
// transport implementations.
type callbacks struct {
	onMessage func(data []byte)
	onError   func(err error)
	onClose   func()
}

func (c *callbacks) OnMessage(fn func(data []byte)) { c.onMessage = fn }
func (c *callbacks) OnError(fn func(err error))     { c.onError = fn }
func (c *callbacks) OnClose(fn func())              { c.onClose = fn }

func (c *callbacks) emitMessage(data []byte) {
	if c.onMessage != nil {
		c.onMessage(data)
	}
}

func (c *callbacks) emitError(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}

func (c *callbacks) emitClose() {
	if c.onClose != nil {
		c.onClose()
	}
}

// NewTransport creates a transport from server config.
func NewTransport(cfg config.MCPServerConfig) (Transport, error) {
	switch cfg.Transport {
	case config.TransportTypeStdio:
		if cfg.Command == "" {
			return nil, fmt.Errorf("stdio transport requires command")
		}
		return newStdioTransport(cfg.Command, cfg.Args, cfg.Env), nil
	case config.TransportTypeSSE:
		if cfg.URL == "" {
			return nil, fmt.Errorf("sse transport requires url")
		}
		return newSSETransport(cfg.URL), nil
	case config.TransportTypeWebSocket:
		if cfg.URL == "" {
			return nil, fmt.Errorf("websocket transport requires url")
		}
		return newWebSocketTransport(cfg.URL), nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", cfg.Transport)
	}
}
