package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tamma-ai/tamma/pkg/events"
)

// Relay subscribes to the global event channel and forwards the
// notification-worthy events to the notifier: approval requests, merged
// pull requests, engine failures, and terminal supervisor task states.
// Everything else (state churn, agent progress) stays off Slack.
type Relay struct {
	notifier *Notifier
	bus      *events.Bus
	logger   *slog.Logger

	sub    *events.Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRelay creates a relay between the bus and the notifier.
func NewRelay(notifier *Notifier, bus *events.Bus) *Relay {
	return &Relay{
		notifier: notifier,
		bus:      bus,
		logger:   slog.Default().With("component", "slack-relay"),
	}
}

// Start subscribes and launches the forwarding loop.
func (r *Relay) Start(ctx context.Context) {
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.sub = r.bus.Subscribe(events.GlobalTasksChannel)
	r.done = make(chan struct{})

	go r.run(ctx)
	r.logger.Info("slack relay started")
}

// Stop detaches from the bus and waits for the loop to exit.
func (r *Relay) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.sub.Close()
	<-r.done
	r.logger.Info("slack relay stopped")
}

func (r *Relay) run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-r.sub.C:
			if !ok {
				return
			}
			r.handle(ctx, evt)
		}
	}
}

func (r *Relay) handle(ctx context.Context, evt events.Event) {
	switch evt.Type {
	case events.EventTypeApprovalPending:
		var p events.EngineApprovalPayload
		if !r.decode(evt, &p) {
			return
		}
		r.notifier.NotifyApprovalRequested(ctx, ApprovalNotice{
			TaskKey: issueKey(p.Issue),
			Title:   fmt.Sprintf("development plan for issue #%d", p.Issue),
			Summary: p.Summary,
		})

	case events.EventTypeApprovalRequest:
		var p events.ApprovalPayload
		if !r.decode(evt, &p) {
			return
		}
		r.notifier.NotifyApprovalRequested(ctx, ApprovalNotice{
			TaskKey:   p.TaskID,
			Title:     fmt.Sprintf("task %s", p.TaskID),
			RiskLevel: p.RiskLevel,
		})

	case events.EventTypePRMerged:
		var p events.PRPayload
		if !r.decode(evt, &p) {
			return
		}
		r.notifier.NotifyOutcome(ctx, OutcomeNotice{
			TaskKey: issueKey(p.Issue),
			Status:  "completed",
			Detail:  fmt.Sprintf("pull request #%d merged, issue #%d closed", p.Number, p.Issue),
			LinkURL: p.URL,
		})

	case events.EventTypeEngineError:
		var p events.EngineErrorPayload
		if !r.decode(evt, &p) {
			return
		}
		key := "engine"
		if p.Issue > 0 {
			key = issueKey(p.Issue)
		}
		r.notifier.NotifyOutcome(ctx, OutcomeNotice{
			TaskKey:      key,
			Status:       "failed",
			Detail:       fmt.Sprintf("engine failed while %s", p.State),
			ErrorMessage: p.Message,
		})

	case events.EventTypeTaskState:
		var p events.TaskStatePayload
		if !r.decode(evt, &p) {
			return
		}
		// Only terminal supervisor states are worth a message; the payload
		// state strings are the supervisor's State values.
		switch p.ToState {
		case "completed", "failed", "cancelled":
			r.notifier.NotifyOutcome(ctx, OutcomeNotice{
				TaskKey: p.TaskID,
				Status:  p.ToState,
				Detail:  fmt.Sprintf("task %s after %d retries", p.ToState, p.Retry),
			})
		}
	}
}

func (r *Relay) decode(evt events.Event, out any) bool {
	if err := json.Unmarshal(evt.Payload, out); err != nil {
		r.logger.Warn("undecodable event payload", "type", evt.Type, "error", err)
		return false
	}
	return true
}

func issueKey(issue int) string {
	return fmt.Sprintf("issue-%d", issue)
}
