package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case evt := <-sub.C:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublisher_EngineStateRoutesToGlobalChannel(t *testing.T) {
	bus := NewBus()
	pub := NewPublisher(bus)
	sub := bus.Subscribe(GlobalTasksChannel)
	defer sub.Close()

	pub.EngineState("idle", "selecting_issue", 0)

	evt := recvEvent(t, sub)
	assert.Equal(t, EventTypeEngineState, evt.Type)
	assert.Equal(t, GlobalTasksChannel, evt.Channel)

	var payload EngineStatePayload
	require.NoError(t, json.Unmarshal(evt.Payload, &payload))
	assert.Equal(t, "idle", payload.FromState)
	assert.Equal(t, "selecting_issue", payload.ToState)
}

func TestPublisher_TaskStateRoutesToBothChannels(t *testing.T) {
	bus := NewBus()
	pub := NewPublisher(bus)
	taskSub := bus.Subscribe(TaskChannel("t-1"))
	defer taskSub.Close()
	globalSub := bus.Subscribe(GlobalTasksChannel)
	defer globalSub.Close()

	returned := pub.TaskState("t-1", "planning", "implementing", 1)

	taskEvt := recvEvent(t, taskSub)
	globalEvt := recvEvent(t, globalSub)
	assert.Equal(t, EventTypeTaskState, taskEvt.Type)
	assert.Equal(t, EventTypeTaskState, globalEvt.Type)
	assert.Equal(t, returned.ID, taskEvt.ID)

	var payload TaskStatePayload
	require.NoError(t, json.Unmarshal(taskEvt.Payload, &payload))
	assert.Equal(t, "t-1", payload.TaskID)
	assert.Equal(t, 1, payload.Retry)
}

func TestPublisher_TaskReceivedRoutesToBothChannels(t *testing.T) {
	bus := NewBus()
	pub := NewPublisher(bus)
	taskSub := bus.Subscribe(TaskChannel("t-9"))
	defer taskSub.Close()
	globalSub := bus.Subscribe(GlobalTasksChannel)
	defer globalSub.Close()

	returned := pub.TaskReceived("t-9", "feature", "add retry budget flag", 42)

	taskEvt := recvEvent(t, taskSub)
	globalEvt := recvEvent(t, globalSub)
	assert.Equal(t, EventTypeTaskReceived, taskEvt.Type)
	assert.Equal(t, EventTypeTaskReceived, globalEvt.Type)
	assert.Equal(t, returned.ID, taskEvt.ID)

	var payload TaskReceivedPayload
	require.NoError(t, json.Unmarshal(taskEvt.Payload, &payload))
	assert.Equal(t, "t-9", payload.TaskID)
	assert.Equal(t, "feature", payload.TaskType)
	assert.Equal(t, 42, payload.Issue)
}

func TestPublisher_ApprovalResolvedCarriesDecision(t *testing.T) {
	bus := NewBus()
	pub := NewPublisher(bus)
	sub := bus.Subscribe(TaskChannel("t-1"))
	defer sub.Close()

	pub.ApprovalResolved("t-1", "high", false, "touches auth paths")

	evt := recvEvent(t, sub)
	var payload ApprovalPayload
	require.NoError(t, json.Unmarshal(evt.Payload, &payload))
	require.NotNil(t, payload.Approved)
	assert.False(t, *payload.Approved)
	assert.Equal(t, "high", payload.RiskLevel)
	assert.Equal(t, "touches auth paths", payload.Reason)
}

func TestPublisher_AgentProgressIsTransient(t *testing.T) {
	bus := NewBus()
	pub := NewPublisher(bus)

	pub.AgentProgress("t-1", "tool_use", "", "Edit")

	missed, _ := bus.Since(TaskChannel("t-1"), 0)
	assert.Empty(t, missed)
}

type redactAll struct{}

func (redactAll) MaskEventText(string) string { return "[redacted]" }

func TestPublisher_MaskerRedactsFreeTextFields(t *testing.T) {
	bus := NewBus()
	pub := NewPublisher(bus)
	pub.SetMasker(redactAll{})

	taskSub := bus.Subscribe(TaskChannel("t-1"))
	defer taskSub.Close()
	globalSub := bus.Subscribe(GlobalTasksChannel)
	defer globalSub.Close()

	pub.AgentProgress("t-1", "text", "password: hunter22", "")
	pub.EngineError(7, "implementing", "auth failed for token ghp_x")

	var progress AgentProgressPayload
	require.NoError(t, json.Unmarshal(recvEvent(t, taskSub).Payload, &progress))
	assert.Equal(t, "[redacted]", progress.Text)

	var engErr EngineErrorPayload
	require.NoError(t, json.Unmarshal(recvEvent(t, globalSub).Payload, &engErr))
	assert.Equal(t, "[redacted]", engErr.Message)
	assert.Equal(t, "implementing", engErr.State, "structured fields bypass the masker")
}
