package slack

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamma-ai/tamma/pkg/events"
)

func publishTask(t *testing.T, bus *events.Bus, eventType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	bus.Publish(events.Event{
		Type:    eventType,
		Channel: events.GlobalTasksChannel,
		Payload: raw,
	})
}

// waitForCalls polls the mock until n messages arrived or the deadline hits.
func waitForCalls(t *testing.T, mock *mockSlackAPI, n int) []slackCall {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if calls := mock.getCalls(); len(calls) >= n {
			return calls
		}
		time.Sleep(10 * time.Millisecond)
	}
	calls := mock.getCalls()
	require.Len(t, calls, n, "timed out waiting for slack messages")
	return calls
}

func TestRelay_ForwardsApprovalAndMerge(t *testing.T) {
	mock := newMockSlackAPI()
	defer mock.close()

	bus := events.NewBus()
	relay := NewRelay(NewNotifierWithClient(mock.client("C99TEST")), bus)
	relay.Start(context.Background())
	defer relay.Stop()

	publishTask(t, bus, events.EventTypeApprovalPending, events.EngineApprovalPayload{
		Issue:   42,
		Summary: "Add retry handling.",
	})
	publishTask(t, bus, events.EventTypePRMerged, events.PRPayload{
		Issue:  42,
		Number: 99,
		URL:    "https://github.com/acme/widgets/pull/99",
	})

	calls := waitForCalls(t, mock, 2)

	assert.Contains(t, calls[0].Text, "[tamma:issue-42]")
	assert.Contains(t, calls[0].Blocks, "Approval required")

	assert.Contains(t, calls[1].Blocks, "pull request #99 merged")
	assert.Equal(t, "1234567890.000001", calls[1].ThreadTS,
		"the merge notice threads under the approval request")
}

func TestRelay_ForwardsEngineErrors(t *testing.T) {
	mock := newMockSlackAPI()
	defer mock.close()

	bus := events.NewBus()
	relay := NewRelay(NewNotifierWithClient(mock.client("C99TEST")), bus)
	relay.Start(context.Background())
	defer relay.Stop()

	publishTask(t, bus, events.EventTypeEngineError, events.EngineErrorPayload{
		Issue:   7,
		State:   "implementing",
		Message: "agent exceeded its budget",
	})

	calls := waitForCalls(t, mock, 1)
	assert.Contains(t, calls[0].Text, "[tamma:issue-7]")
	assert.Contains(t, calls[0].Blocks, "engine failed while implementing")
	assert.Contains(t, calls[0].Blocks, "agent exceeded its budget")
}

func TestRelay_IgnoresNonTerminalTaskStates(t *testing.T) {
	mock := newMockSlackAPI()
	defer mock.close()

	bus := events.NewBus()
	relay := NewRelay(NewNotifierWithClient(mock.client("C99TEST")), bus)
	relay.Start(context.Background())

	publishTask(t, bus, events.EventTypeTaskState, events.TaskStatePayload{
		TaskID: "task-1", FromState: "planning", ToState: "implementing",
	})
	publishTask(t, bus, events.EventTypeTaskState, events.TaskStatePayload{
		TaskID: "task-1", FromState: "reviewing", ToState: "completed", Retry: 1,
	})

	calls := waitForCalls(t, mock, 1)
	relay.Stop()

	require.Len(t, mock.getCalls(), 1, "the intermediate transition must stay off slack")
	assert.Contains(t, calls[0].Blocks, "task completed after 1 retries")
}

func TestRelay_StopIsIdempotentWithoutStart(t *testing.T) {
	relay := NewRelay(nil, events.NewBus())
	relay.Stop() // must not panic
}
