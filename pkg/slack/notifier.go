package slack

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Notifier delivers approval requests and terminal outcomes to one channel,
// threading every follow-up for a task under its first message.
// Nil-safe: all methods are no-ops when the notifier is nil.
type Notifier struct {
	client *Client
	logger *slog.Logger

	mu      sync.Mutex
	threads map[string]string // task key → thread ts
}

// NewNotifier creates a notifier. Returns nil if token or channel is empty,
// which disables notifications throughout.
func NewNotifier(token, channel string) *Notifier {
	if token == "" || channel == "" {
		return nil
	}
	return newNotifier(NewClient(token, channel))
}

// NewNotifierWithClient creates a notifier backed by a pre-built client.
// Useful for testing with a mock API server.
func NewNotifierWithClient(client *Client) *Notifier {
	return newNotifier(client)
}

func newNotifier(client *Client) *Notifier {
	return &Notifier{
		client:  client,
		logger:  slog.Default().With("component", "slack-notifier"),
		threads: make(map[string]string),
	}
}

// NotifyApprovalRequested posts an approval request, starting the task's
// thread. Fail-open: errors are logged, never returned.
func (n *Notifier) NotifyApprovalRequested(ctx context.Context, notice ApprovalNotice) {
	if n == nil {
		return
	}

	text := fmt.Sprintf("Approval required: %s %s", notice.Title, Marker(notice.TaskKey))
	ts, err := n.client.PostMessage(ctx, text, BuildApprovalMessage(notice), n.threadFor(ctx, notice.TaskKey), 5*time.Second)
	if err != nil {
		n.logger.Error("failed to send approval notification",
			"task", notice.TaskKey, "error", err)
		return
	}
	n.rememberThread(notice.TaskKey, ts)
}

// NotifyOutcome posts a terminal status notification, threaded under the
// task's first message when one exists. Fail-open: errors are logged, never
// returned.
func (n *Notifier) NotifyOutcome(ctx context.Context, notice OutcomeNotice) {
	if n == nil {
		return
	}

	text := fmt.Sprintf("Task %s: %s %s", notice.Status, notice.Detail, Marker(notice.TaskKey))
	ts, err := n.client.PostMessage(ctx, text, BuildOutcomeMessage(notice), n.threadFor(ctx, notice.TaskKey), 10*time.Second)
	if err != nil {
		n.logger.Error("failed to send outcome notification",
			"task", notice.TaskKey, "status", notice.Status, "error", err)
		return
	}
	n.rememberThread(notice.TaskKey, ts)
}

// threadFor resolves the thread timestamp for a task: the in-memory map
// first, then a channel-history search for the task marker (covers process
// restarts). Empty means "start a new thread".
func (n *Notifier) threadFor(ctx context.Context, taskKey string) string {
	n.mu.Lock()
	ts, ok := n.threads[taskKey]
	n.mu.Unlock()
	if ok {
		return ts
	}

	ts, err := n.client.FindThreadByMarker(ctx, Marker(taskKey))
	if err != nil {
		n.logger.Warn("thread lookup failed", "task", taskKey, "error", err)
		return ""
	}
	if ts != "" {
		n.rememberThread(taskKey, ts)
	}
	return ts
}

// rememberThread records the root timestamp for a task's thread. Only the
// first message of a task establishes the thread; replies keep it.
func (n *Notifier) rememberThread(taskKey, ts string) {
	if ts == "" {
		return
	}
	n.mu.Lock()
	if _, ok := n.threads[taskKey]; !ok {
		n.threads[taskKey] = ts
	}
	n.mu.Unlock()
}
