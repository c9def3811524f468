package mcp

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/tamma-ai/tamma/pkg/jsonrpc"
)

// RecoveryAction tells a caller what to do about a failed server request.
type RecoveryAction int

const (
	// NoRetry means the failure is permanent or a retry would fail the
	// same way; surface it.
	NoRetry RecoveryAction = iota

	// RetrySameConnection means the server pushed back momentarily (rate
	// limit, overload); retry on the existing transport after a backoff.
	RetrySameConnection

	// RetryAfterRedial means the transport itself died; dial a fresh one
	// before retrying.
	RetryAfterRedial
)

func (a RecoveryAction) String() string {
	switch a {
	case RetrySameConnection:
		return "retry-same-connection"
	case RetryAfterRedial:
		return "retry-after-redial"
	default:
		return "no-retry"
	}
}

// Jittered backoff window before a single retry.
const (
	retryBackoffMin = 250 * time.Millisecond
	retryBackoffMax = 750 * time.Millisecond
)

// ClassifyError decides whether a failed request is worth retrying and how.
// Typed errors from the wire layer are matched first; everything else falls
// back to message inspection, since stdio subprocesses surface transport
// faults as plain error strings.
func ClassifyError(err error) RecoveryAction {
	if err == nil {
		return NoRetry
	}

	// The caller gave up or is shutting down.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NoRetry
	}

	// The request outlived its per-call budget: the server is slow, not
	// gone. An immediate retry would just queue behind the same stall.
	if jsonrpc.IsTimeout(err) {
		return NoRetry
	}

	// The mux failed the request because the transport went away mid-call.
	if errors.Is(err, jsonrpc.ErrConnectionClosed) {
		return RetryAfterRedial
	}

	// Server-reported errors. The reserved protocol codes mean the request
	// itself is broken and will fail identically on a retry; other codes
	// are implementation-defined, so the message decides.
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case jsonrpc.CodeParseError, jsonrpc.CodeInvalidRequest,
			jsonrpc.CodeMethodNotFound, jsonrpc.CodeInvalidParams:
			return NoRetry
		}
		if isOverloadMessage(rpcErr.Message) {
			return RetrySameConnection
		}
		return NoRetry
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NoRetry
		}
		return RetryAfterRedial
	}

	if isConnectionError(err) {
		return RetryAfterRedial
	}

	return NoRetry
}

// isConnectionError recognizes transport failures that a fresh dial can fix.
func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"use of closed network connection",
		"no such host",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// isOverloadMessage recognizes server-side pushback that clears on its own.
func isOverloadMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range []string{
		"rate limit",
		"too many requests",
		"overloaded",
		"server busy",
		"try again",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// sleepBeforeRetry waits out a jittered backoff, returning false when ctx
// ends first.
func sleepBeforeRetry(ctx context.Context) bool {
	backoff := retryBackoffMin + time.Duration(rand.Int64N(int64(retryBackoffMax-retryBackoffMin)))
	select {
	case <-time.After(backoff):
		return true
	case <-ctx.Done():
		return false
	}
}
