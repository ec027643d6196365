// Package errors provides domain-specific error types for voxrelay.
//
// Each type corresponds to one failure kind of a session or relay run
// (handshake violation, transport failure, malformed request, upstream
// generator failure) and carries enough structured context for the
// caller to report it.  Every kind is terminal to the unit of work in
// which it occurs; nothing in voxrelay retries.
package errors

import (
	"errors"
	"fmt"
	"net"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrHandshake        = errors.New("handshake violation")
	ErrMalformedRequest = errors.New("malformed request")
	ErrUpstream         = errors.New("upstream generator failure")
	ErrNotConnected     = errors.New("not connected")
	ErrAuthFailed       = errors.New("authentication failed")
	ErrHostKeyMismatch  = errors.New("host key mismatch")
)

// ── Structured error types ───────────────────────────────────────────

// HandshakeError reports that an expected control discriminator did not
// arrive.  The session aborts in Phase without advancing.
type HandshakeError struct {
	Phase   string // phase the session was in when the mismatch arrived
	Key     string // discriminator field that was checked ("type" / "status")
	Want    string // expected discriminator value
	Got     string // value actually received (may be empty)
	Message string // human-readable summary, e.g. "authentication failed"
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("%s: %s: want %s=%q, got %q", e.Phase, e.Message, e.Key, e.Want, e.Got)
}

// Is makes errors.Is(err, ErrHandshake) succeed.
func (e *HandshakeError) Is(target error) bool { return target == ErrHandshake }

// NetworkError represents a failure in a network operation.
type NetworkError struct {
	Op        string // operation: "dial", "upgrade", "read", "write", "listen"
	Addr      string // network address involved
	Err       error  // underlying error
	Retryable bool   // informational; voxrelay never retries
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RequestError reports an inbound relay request that cannot be served.
type RequestError struct {
	Field   string // offending field, empty when the whole payload is bad
	Message string
	Err     error // optional cause (e.g. a JSON syntax error)
}

func (e *RequestError) Error() string {
	msg := "malformed request"
	if e.Field != "" {
		msg += ": " + e.Field
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RequestError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrMalformedRequest) succeed.
func (e *RequestError) Is(target error) bool { return target == ErrMalformedRequest }

// UpstreamError reports that the token generator failed mid-run.
type UpstreamError struct {
	Provider string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUpstream) succeed.
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// SSHError represents an SSH-specific failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// Missing creates a RequestError for an absent required field.
func Missing(field string) *RequestError {
	return &RequestError{Field: field, Message: "required field is missing"}
}

// ── Classification helpers ───────────────────────────────────────────

// IsTransport reports whether err is a transport-level failure.
func IsTransport(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	// net.OpError with Temporary() hint
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	// DNS errors
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use voxrelay/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
