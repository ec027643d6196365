package errors

import (
	"fmt"
	"io"
	"net"
	"testing"
)

func TestHandshakeError(t *testing.T) {
	err := &HandshakeError{
		Phase:   "await-auth",
		Key:     "type",
		Want:    "successful-authentication",
		Got:     "unexpected",
		Message: "authentication failed",
	}
	want := `await-auth: authentication failed: want type="successful-authentication", got "unexpected"`
	if got := err.Error(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if !Is(fmt.Errorf("session: %w", err), ErrHandshake) {
		t.Error("wrapped HandshakeError should match ErrHandshake")
	}
	if Is(err, ErrUpstream) {
		t.Error("HandshakeError should not match ErrUpstream")
	}
}

func TestNetworkError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  NetworkError
		want string
	}{
		{
			name: "retryable",
			err:  NetworkError{Op: "dial", Addr: "example.com:80", Err: io.EOF, Retryable: true},
			want: "dial example.com:80: EOF (retryable)",
		},
		{
			name: "non-retryable",
			err:  NetworkError{Op: "listen", Addr: ":8080", Err: fmt.Errorf("bind failed")},
			want: "listen :8080: bind failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNetworkError_Unwrap(t *testing.T) {
	err := Wrap("read", "x", io.EOF)
	if !Is(err, io.EOF) {
		t.Error("should unwrap to io.EOF")
	}
	if !IsTransport(fmt.Errorf("ctx: %w", err)) {
		t.Error("wrapped NetworkError should be a transport failure")
	}
	if IsTransport(io.EOF) {
		t.Error("bare io.EOF is not a NetworkError")
	}
}

func TestRequestError(t *testing.T) {
	tests := []struct {
		name string
		err  *RequestError
		want string
	}{
		{"missing", Missing("api_key"), "malformed request: api_key: required field is missing"},
		{
			"with cause",
			&RequestError{Message: "invalid JSON", Err: fmt.Errorf("unexpected end")},
			"malformed request: invalid JSON: unexpected end",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if !Is(tt.err, ErrMalformedRequest) {
				t.Error("should match ErrMalformedRequest")
			}
		})
	}
}

func TestUpstreamError(t *testing.T) {
	inner := fmt.Errorf("http 401: invalid key")
	err := &UpstreamError{Provider: "openai", Err: inner}
	if got, want := err.Error(), "openai: http 401: invalid key"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if !Is(err, ErrUpstream) || !Is(err, inner) {
		t.Error("should match ErrUpstream and unwrap to inner")
	}
}

func TestSSHError_Format(t *testing.T) {
	err := WrapSSH("handshake", "bastion.example.com", 22, fmt.Errorf("connection refused"))
	want := "ssh handshake bastion.example.com:22: connection refused"
	if got := err.Error(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestConfigError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  ConfigError
		want string
	}{
		{
			name: "with value and hint",
			err: ConfigError{
				Field:   "port",
				Value:   99999,
				Message: "out of range 1-65535",
				Hint:    "use a port between 1 and 65535",
			},
			want: "config: --port=99999: out of range 1-65535\n  hint: use a port between 1 and 65535",
		},
		{
			name: "missing value no hint",
			err: ConfigError{
				Field:   "token",
				Message: "required in connect mode",
			},
			want: "config: --token: required in connect mode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestClassifyRetryable_NetOpError(t *testing.T) {
	opErr := &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: &net.DNSError{IsTemporary: true},
	}
	if !classifyRetryable(opErr) {
		t.Error("temporary OpError should be flagged retryable")
	}
}

func TestSentinels(t *testing.T) {
	sentinels := []error{
		ErrHandshake, ErrMalformedRequest, ErrUpstream,
		ErrNotConnected, ErrAuthFailed, ErrHostKeyMismatch,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && Is(a, b) {
				t.Errorf("sentinel %d and %d should not match", i, j)
			}
		}
	}
}
