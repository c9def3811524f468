package config

// ApprovalMode controls whether plans need external approval before the
// engine proceeds to branch creation.
type ApprovalMode string

const (
	// ApprovalModeAuto proceeds without waiting for approval.
	ApprovalModeAuto ApprovalMode = "auto"
	// ApprovalModeManual blocks until an external caller resolves the approval.
	ApprovalModeManual ApprovalMode = "manual"
)

// IsValid checks if the approval mode is valid.
func (m ApprovalMode) IsValid() bool {
	return m == ApprovalModeAuto || m == ApprovalModeManual
}

// PermissionMode controls how the coding subprocess handles tool permissions.
type PermissionMode string

const (
	// PermissionModeAsk makes the subprocess prompt for each privileged tool use.
	PermissionModeAsk PermissionMode = "ask"
	// PermissionModeBypass skips permission prompts entirely.
	PermissionModeBypass PermissionMode = "bypassPermissions"
)

// IsValid checks if the permission mode is valid.
func (m PermissionMode) IsValid() bool {
	return m == PermissionModeAsk || m == PermissionModeBypass
}

// TransportType defines MCP server transport types.
type TransportType string

const (
	// TransportTypeStdio uses subprocess communication via stdin/stdout.
	TransportTypeStdio TransportType = "stdio"
	// TransportTypeSSE uses Server-Sent Events.
	TransportTypeSSE TransportType = "sse"
	// TransportTypeWebSocket uses a websocket text-frame stream.
	TransportTypeWebSocket TransportType = "websocket"
)

// IsValid checks if the transport type is valid.
func (t TransportType) IsValid() bool {
	return t == TransportTypeStdio || t == TransportTypeSSE || t == TransportTypeWebSocket
}

// FusionMethod selects the rank-fusion algorithm used by the RAG ranker.
type FusionMethod string

const (
	// FusionRRF uses reciprocal rank fusion across source result lists.
	FusionRRF FusionMethod = "rrf"
	// FusionMax keeps the maximum per-source score for each chunk.
	FusionMax FusionMethod = "max"
)

// IsValid checks if the fusion method is valid.
func (f FusionMethod) IsValid() bool {
	return f == FusionRRF || f == FusionMax
}
