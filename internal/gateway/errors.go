package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ValidationError reports caller-side input problems. It is always raised
// before any network traffic.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Msg
}

// NetworkError reports connectivity failures: DNS resolution, refused
// connections and timeouts. Msg distinguishes an unreachable host from a slow
// one.
type NetworkError struct {
	Op  string
	Msg string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AuthError reports a 401/403-class rejection. Description carries the
// human-readable text from the code table when the gateway supplied a code.
type AuthError struct {
	Code        string
	Description string
	HTTPStatus  int
}

func (e *AuthError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth rejected [%s] %s", e.Code, e.Description)
	}
	return fmt.Sprintf("auth rejected (HTTP %d): %s", e.HTTPStatus, e.Description)
}

// ProtocolError reports a well-formed HTTP success whose payload is missing
// fields the protocol requires.
type ProtocolError struct {
	Op  string
	Msg string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: protocol error: %s", e.Op, e.Msg)
}

// GatewayError is a structured error response from the gateway itself.
// Description is the enriched human-readable text resolved through the code
// table; APIDescription preserves the gateway's own wording for diagnostics.
type GatewayError struct {
	Code           string
	Description    string
	APIDescription string
	HTTPStatus     int
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway error [%s] %s", e.Code, e.Description)
	}
	return fmt.Sprintf("gateway error (HTTP %d): %s", e.HTTPStatus, e.Description)
}

// ErrorCode extracts the gateway error code from an error chain, if any.
func ErrorCode(err error) string {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Code
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// classifyTransportError turns a net/http round-trip failure into a
// NetworkError whose message tells an unreachable host apart from a slow one.
// Caller-driven cancellation is passed through untouched; note that
// errors.Is(err, context.DeadlineExceeded) also matches plain http.Client
// timeouts, so the caller's ctx is consulted instead of the error chain.
func classifyTransportError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &NetworkError{Op: op, Msg: "gateway did not respond in time", Err: err}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &NetworkError{Op: op, Msg: "gateway host could not be resolved", Err: err}
	}
	return &NetworkError{Op: op, Msg: "gateway is unreachable", Err: err}
}
