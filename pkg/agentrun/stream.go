package agentrun

import (
	"encoding/json"
	"time"
)

// streamRecord is the union of line shapes the CLI emits with
// --output-format stream-json.
type streamRecord struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`
	Message *struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
			Name string `json:"name,omitempty"`
		} `json:"content"`
	} `json:"message,omitempty"`
	Result     string   `json:"result,omitempty"`
	CostUSD    float64  `json:"cost_usd,omitempty"`
	SessionID  string   `json:"session_id,omitempty"`
	DurationMs int64    `json:"duration_ms,omitempty"`
	Errors     []string `json:"errors,omitempty"`
}

// terminalResult captures the final result record of a stream.
type terminalResult struct {
	seen       bool
	success    bool
	output     string
	costUSD    float64
	sessionID  string
	durationMs int64
	errors     []string
}

// parseStreamLine interprets one stdout line. JSON assistant records become
// progress events; a result record updates terminal; anything that is not
// JSON is forwarded verbatim as a text event.
func parseStreamLine(line string, terminal *terminalResult, progress ProgressFunc) {
	if line == "" {
		return
	}

	emit := func(ev ProgressEvent) {
		if progress != nil {
			ev.Timestamp = time.Now()
			progress(ev)
		}
	}

	var record streamRecord
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		emit(ProgressEvent{Kind: ProgressText, Text: line})
		return
	}

	switch record.Type {
	case "assistant":
		if record.Message == nil {
			return
		}
		for _, block := range record.Message.Content {
			switch block.Type {
			case "text":
				emit(ProgressEvent{Kind: ProgressText, Text: block.Text})
			case "tool_use":
				emit(ProgressEvent{Kind: ProgressToolUse, ToolName: block.Name})
			}
		}
	case "result":
		terminal.seen = true
		terminal.success = record.Subtype == "success"
		terminal.output = record.Result
		terminal.costUSD = record.CostUSD
		terminal.sessionID = record.SessionID
		terminal.durationMs = record.DurationMs
		terminal.errors = record.Errors
	default:
		// Unknown JSON record types are dropped; the stream format may
		// grow new diagnostics without breaking the parser.
	}
}
