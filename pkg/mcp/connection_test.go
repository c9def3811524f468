package mcp

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamma-ai/tamma/pkg/config"
	"github.com/tamma-ai/tamma/pkg/jsonrpc"
)

// fakeTransport scripts server responses per method. It satisfies Transport
// without touching the network.
type fakeTransport struct {
	callbacks

	mu            sync.Mutex
	results       map[string]any
	failures      map[string][]*jsonrpc.RPCError
	notifications []string
	connectErr    error
	closed        bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		results: map[string]any{
			MethodInitialize: InitializeResult{
				ProtocolVersion: ProtocolVersion,
				ServerInfo:      Implementation{Name: "fake", Version: "1"},
			},
			MethodToolsList:     listToolsResult{Tools: []Tool{{Name: "search"}}},
			MethodResourcesList: listResourcesResult{Resources: []Resource{{URI: "file:///doc.md"}}},
			MethodPromptsList:   listPromptsResult{Prompts: []Prompt{{Name: "triage"}}},
		},
		failures: map[string][]*jsonrpc.RPCError{},
	}
}

func (f *fakeTransport) Connect(context.Context) error { return f.connectErr }

func (f *fakeTransport) Send(_ context.Context, data []byte) error {
	var req struct {
		ID     *int64          `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	if req.ID == nil {
		f.mu.Lock()
		f.notifications = append(f.notifications, req.Method)
		f.mu.Unlock()
		return nil
	}

	f.mu.Lock()
	if errs := f.failures[req.Method]; len(errs) > 0 {
		scripted := errs[0]
		f.failures[req.Method] = errs[1:]
		f.mu.Unlock()
		go func() {
			frame, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": *req.ID, "error": scripted})
			f.emitMessage(frame)
		}()
		return nil
	}
	result, ok := f.results[req.Method]
	f.mu.Unlock()

	go func() {
		var frame []byte
		if ok {
			raw, _ := json.Marshal(result)
			frame, _ = json.Marshal(map[string]any{"jsonrpc": "2.0", "id": *req.ID, "result": json.RawMessage(raw)})
		} else {
			frame, _ = json.Marshal(map[string]any{
				"jsonrpc": "2.0", "id": *req.ID,
				"error": map[string]any{"code": -32601, "message": "method not found"},
			})
		}
		f.emitMessage(frame)
	}()
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	alreadyClosed := f.closed
	f.closed = true
	f.mu.Unlock()
	if !alreadyClosed {
		f.emitClose()
	}
	return nil
}

func (f *fakeTransport) setResult(method string, result any) {
	f.mu.Lock()
	f.results[method] = result
	f.mu.Unlock()
}

// failNext scripts a one-shot error reply for the next request of a method.
func (f *fakeTransport) failNext(method string, code int, message string) {
	f.mu.Lock()
	f.failures[method] = append(f.failures[method], &jsonrpc.RPCError{Code: code, Message: message})
	f.mu.Unlock()
}

func (f *fakeTransport) dropMethod(method string) {
	f.mu.Lock()
	delete(f.results, method)
	f.mu.Unlock()
}

func (f *fakeTransport) sentNotifications() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.notifications...)
}

func testServerConfig() config.MCPServerConfig {
	return config.MCPServerConfig{
		Transport:            config.TransportTypeStdio,
		Command:              "fake",
		Timeout:              2 * time.Second,
		MaxReconnectAttempts: 1,
	}
}

func newTestConnection(t *testing.T) (*Connection, *fakeTransport) {
	t.Helper()
	fake := newFakeTransport()
	conn := newConnectionWithTransport("fake", testServerConfig(), func() (Transport, error) {
		return fake, nil
	})
	return conn, fake
}

func TestConnection_ConnectHandshakeAndDiscovery(t *testing.T) {
	conn, fake := newTestConnection(t)

	require.NoError(t, conn.Connect(context.Background()))
	assert.Equal(t, StatusConnected, conn.Status())

	// The initialized notification followed the handshake.
	assert.Contains(t, fake.sentNotifications(), MethodInitialized)

	tools := conn.Tools()
	require.Len(t, tools, 1)
	assert.Equal(t, "search", tools[0].Name)
	require.Len(t, conn.Resources(), 1)
	require.Len(t, conn.Prompts(), 1)
}

func TestConnection_DiscoveryFailuresAreBestEffort(t *testing.T) {
	fake := newFakeTransport()
	fake.dropMethod(MethodResourcesList)
	fake.dropMethod(MethodPromptsList)
	conn := newConnectionWithTransport("fake", testServerConfig(), func() (Transport, error) {
		return fake, nil
	})

	require.NoError(t, conn.Connect(context.Background()))
	assert.Equal(t, StatusConnected, conn.Status())
	assert.Len(t, conn.Tools(), 1)
	assert.Empty(t, conn.Resources())
	assert.Empty(t, conn.Prompts())
}

func TestConnection_CallTool(t *testing.T) {
	conn, fake := newTestConnection(t)
	fake.setResult(MethodToolsCall, CallToolResult{
		Content: []ContentBlock{{Type: "text", Text: "it worked"}},
	})
	require.NoError(t, conn.Connect(context.Background()))

	result, err := conn.CallTool(context.Background(), "search", map[string]any{"q": "auth"})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "it worked", result.Content[0].Text)

	snap := conn.Metrics()
	assert.Greater(t, snap.TotalRequests, int64(0))
	assert.Equal(t, snap.TotalRequests, snap.SuccessCount)
}

func TestConnection_CallToolRetriesServerPushback(t *testing.T) {
	conn, fake := newTestConnection(t)
	fake.setResult(MethodToolsCall, CallToolResult{
		Content: []ContentBlock{{Type: "text", Text: "second try"}},
	})
	fake.failNext(MethodToolsCall, -32000, "rate limit exceeded, try again later")
	require.NoError(t, conn.Connect(context.Background()))

	result, err := conn.CallTool(context.Background(), "search", nil)
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "second try", result.Content[0].Text)
}

func TestConnection_CallToolProtocolErrorNotRetried(t *testing.T) {
	conn, fake := newTestConnection(t)
	fake.setResult(MethodToolsCall, CallToolResult{
		Content: []ContentBlock{{Type: "text", Text: "unreachable"}},
	})
	fake.failNext(MethodToolsCall, jsonrpc.CodeInvalidParams, "invalid params")
	require.NoError(t, conn.Connect(context.Background()))

	// A retry would have consumed the scripted success and returned nil.
	_, err := conn.CallTool(context.Background(), "search", map[string]any{"q": 1})
	require.Error(t, err)
	var rpcErr *jsonrpc.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, jsonrpc.CodeInvalidParams, rpcErr.Code)
}

func TestConnection_ReadResource(t *testing.T) {
	conn, fake := newTestConnection(t)
	fake.setResult(MethodResourcesRead, ReadResourceResult{
		Contents: []ResourceContents{{URI: "file:///doc.md", Text: "# Doc"}},
	})
	require.NoError(t, conn.Connect(context.Background()))

	result, err := conn.ReadResource(context.Background(), "file:///doc.md")
	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, "# Doc", result.Contents[0].Text)
}

func TestConnection_ChangeNotificationRefreshesTools(t *testing.T) {
	conn, fake := newTestConnection(t)
	require.NoError(t, conn.Connect(context.Background()))
	require.Len(t, conn.Tools(), 1)

	fake.setResult(MethodToolsList, listToolsResult{Tools: []Tool{{Name: "search"}, {Name: "fetch"}}})
	notify, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "method": NotifyToolsChanged})
	fake.emitMessage(notify)

	assert.Eventually(t, func() bool {
		return len(conn.Tools()) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestConnection_TransportCloseWithoutReconnectIsError(t *testing.T) {
	conn, fake := newTestConnection(t)
	require.NoError(t, conn.Connect(context.Background()))

	require.NoError(t, fake.Close())
	assert.Eventually(t, func() bool {
		return conn.Status() == StatusError
	}, time.Second, 5*time.Millisecond)

	// Pending requests are gone; new calls fail fast.
	_, err := conn.CallTool(context.Background(), "search", nil)
	assert.Error(t, err)
}

func TestConnection_ExplicitDisconnect(t *testing.T) {
	conn, _ := newTestConnection(t)
	require.NoError(t, conn.Connect(context.Background()))

	require.NoError(t, conn.Disconnect())
	assert.Equal(t, StatusDisconnected, conn.Status())

	// A disposed connection refuses to reconnect.
	assert.Error(t, conn.Connect(context.Background()))
}

func TestConnection_ConnectTwiceRejected(t *testing.T) {
	conn, _ := newTestConnection(t)
	require.NoError(t, conn.Connect(context.Background()))
	assert.Error(t, conn.Connect(context.Background()))
}

type stubMasker struct{ calls int }

func (s *stubMasker) MaskToolResult(content, serverID string) string {
	s.calls++
	return "masked:" + serverID
}

func TestManager_ReadResourceMasksBeforeCaching(t *testing.T) {
	fake := newFakeTransport()
	fake.setResult(MethodResourcesRead, ReadResourceResult{
		Contents: []ResourceContents{{URI: "file:///env", Text: "API_KEY=real-value"}},
	})
	mgr := NewManager(nil)
	mgr.conns = map[string]*Connection{
		"files": newConnectionWithTransport("files", testServerConfig(), func() (Transport, error) {
			return fake, nil
		}),
	}
	masker := &stubMasker{}
	mgr.SetMasker(masker)
	mgr.ConnectAll(context.Background())

	body, cached, err := mgr.ReadResource(context.Background(), "files", "file:///env")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "masked:files", string(body))

	// The cache holds the masked bytes; a repeat read never re-masks.
	body, cached, err = mgr.ReadResource(context.Background(), "files", "file:///env")
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, "masked:files", string(body))
	assert.Equal(t, 1, masker.calls)

	require.NoError(t, mgr.Close())
}

func TestManager_ConnectAllRecordsFailures(t *testing.T) {
	good := newFakeTransport()
	mgr := NewManager(nil)
	mgr.conns = map[string]*Connection{
		"good": newConnectionWithTransport("good", testServerConfig(), func() (Transport, error) {
			return good, nil
		}),
		"bad": newConnectionWithTransport("bad", testServerConfig(), func() (Transport, error) {
			bad := newFakeTransport()
			bad.dropMethod(MethodInitialize)
			return bad, nil
		}),
	}

	mgr.ConnectAll(context.Background())

	assert.Len(t, mgr.Connected(), 1)
	failed := mgr.FailedServers()
	require.Len(t, failed, 1)
	assert.Contains(t, failed, "bad")

	set, err := mgr.Capabilities("good")
	require.NoError(t, err)
	assert.Len(t, set.Tools, 1)

	require.NoError(t, mgr.Close())
}
