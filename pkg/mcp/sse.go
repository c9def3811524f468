package mcp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// sseTransport receives frames as server-sent events on a long-lived GET
// stream and sends frames as JSON POSTs to the same endpoint.
type sseTransport struct {
	callbacks

	url        string
	httpClient *http.Client

	mu     sync.Mutex
	cancel context.CancelFunc

	closeOnce sync.Once
	done      chan struct{}
}

func newSSETransport(url string) *sseTransport {
	return &sseTransport{
		url: url,
		// No overall client timeout: the event stream is long-lived.
		// POSTs get their deadline from the request context.
		httpClient: &http.Client{},
		done:       make(chan struct{}),
	}
}

func (t *sseTransport) Connect(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, t.url, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("event stream returned HTTP %d", resp.StatusCode)
	}

	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	go t.readLoop(resp.Body)

	_ = ctx // the caller's ctx bounds only the dial, which completed above
	return nil
}

// readLoop parses the SSE stream: data: lines accumulate until a blank line
// dispatches the event. Event names and ids are ignored; the payload is the
// JSON frame.
func (t *sseTransport) readLoop(body io.ReadCloser) {
	defer body.Close()
	defer t.closeOnce.Do(func() {
		close(t.done)
		t.emitClose()
	})

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), stdioMaxFrameBytes)

	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				frame := make([]byte, data.Len())
				copy(frame, data.Bytes())
				data.Reset()
				t.emitMessage(frame)
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// event:, id:, retry:, and comments are ignored.
		}
	}
	if err := scanner.Err(); err != nil {
		t.emitError(fmt.Errorf("read event stream: %w", err))
	}
}

// Send POSTs one frame to the endpoint.
func (t *sseTransport) Send(ctx context.Context, data []byte) error {
	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, t.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post frame: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("send returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func (t *sseTransport) Close() error {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}
