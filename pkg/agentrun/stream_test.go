package agentrun

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectEvents(lines []string) ([]ProgressEvent, terminalResult) {
	var events []ProgressEvent
	var terminal terminalResult
	for _, line := range lines {
		parseStreamLine(line, &terminal, func(ev ProgressEvent) {
			events = append(events, ev)
		})
	}
	return events, terminal
}

func TestParseStreamLine_AssistantText(t *testing.T) {
	events, _ := collectEvents([]string{
		`{"type":"assistant","message":{"content":[{"type":"text","text":"reading the issue"}]}}`,
	})
	require.Len(t, events, 1)
	assert.Equal(t, ProgressText, events[0].Kind)
	assert.Equal(t, "reading the issue", events[0].Text)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestParseStreamLine_ToolUse(t *testing.T) {
	events, _ := collectEvents([]string{
		`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"edit_file"},{"type":"text","text":"done"}]}}`,
	})
	require.Len(t, events, 2)
	assert.Equal(t, ProgressToolUse, events[0].Kind)
	assert.Equal(t, "edit_file", events[0].ToolName)
	assert.Equal(t, ProgressText, events[1].Kind)
}

func TestParseStreamLine_TerminalResult(t *testing.T) {
	events, terminal := collectEvents([]string{
		`{"type":"result","subtype":"success","result":"implemented","cost_usd":1.25,"session_id":"s-1","duration_ms":4200}`,
	})
	assert.Empty(t, events)
	assert.True(t, terminal.seen)
	assert.True(t, terminal.success)
	assert.Equal(t, "implemented", terminal.output)
	assert.InDelta(t, 1.25, terminal.costUSD, 1e-9)
	assert.Equal(t, "s-1", terminal.sessionID)
	assert.Equal(t, int64(4200), terminal.durationMs)
}

func TestParseStreamLine_FailureResultCarriesErrors(t *testing.T) {
	_, terminal := collectEvents([]string{
		`{"type":"result","subtype":"error","errors":["budget exceeded"]}`,
	})
	assert.True(t, terminal.seen)
	assert.False(t, terminal.success)
	assert.Equal(t, []string{"budget exceeded"}, terminal.errors)
}

func TestParseStreamLine_NonJSONForwardedAsText(t *testing.T) {
	events, terminal := collectEvents([]string{
		"npm WARN deprecated package",
		"",
	})
	require.Len(t, events, 1)
	assert.Equal(t, ProgressText, events[0].Kind)
	assert.Equal(t, "npm WARN deprecated package", events[0].Text)
	assert.False(t, terminal.seen)
}

func TestParseStreamLine_UnknownRecordTypeDropped(t *testing.T) {
	events, terminal := collectEvents([]string{
		`{"type":"system","subtype":"init"}`,
	})
	assert.Empty(t, events)
	assert.False(t, terminal.seen)
}
