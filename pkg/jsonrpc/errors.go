package jsonrpc

import (
	"errors"
	"fmt"
	"time"
)

// ErrConnectionClosed resolves every pending waiter when the connection
// closes beneath the multiplexer.
var ErrConnectionClosed = errors.New("connection closed")

// TimeoutError is returned when a request's per-call timer fires before a
// response arrives.
type TimeoutError struct {
	ServerName string
	Method     string
	Timeout    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %q to %q timed out after %v", e.Method, e.ServerName, e.Timeout)
}

// IsTimeout reports whether err is a request timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
