// Package upstream provides the token generators a relay run consumes:
// lazy, pull-based sequences of incremental text fragments.
package upstream

import (
	"context"
	"io"
	"unicode/utf8"
)

// TokenStream yields fragments in emission order.  Next returns io.EOF
// once the generator is exhausted; any other error is a generator
// failure.  Close releases the stream and may be called at any time.
type TokenStream interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

// Request is one generation.  APIKey travels with the request so that
// concurrent requests never share a credential.
type Request struct {
	APIKey string
	System string
	User   string
}

// Generator starts token streams.
type Generator interface {
	Stream(ctx context.Context, req Request) (TokenStream, error)
}

// ── In-memory streams ────────────────────────────────────────────────

// sliceStream replays a fixed list of fragments, then err (io.EOF by
// default).
type sliceStream struct {
	frags []string
	err   error
	pos   int
}

// Fragments returns a stream that yields frags and then io.EOF.
func Fragments(frags ...string) TokenStream {
	return &sliceStream{frags: frags, err: io.EOF}
}

// Failing returns a stream that yields frags and then err.
func Failing(err error, frags ...string) TokenStream {
	return &sliceStream{frags: frags, err: err}
}

func (s *sliceStream) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.pos >= len(s.frags) {
		return "", s.err
	}
	f := s.frags[s.pos]
	s.pos++
	return f, nil
}

func (s *sliceStream) Close() error {
	s.pos = len(s.frags)
	return nil
}

// Echo is an offline generator that replays the user text in fixed-size
// fragments, ignoring the system prompt and credential.  It lets the
// relay run without network access.
type Echo struct {
	Chunk int // runes per fragment; 0 means 4
}

// Stream implements Generator.
func (e Echo) Stream(_ context.Context, req Request) (TokenStream, error) {
	size := e.Chunk
	if size <= 0 {
		size = 4
	}
	var frags []string
	text := req.User
	for len(text) > 0 {
		n, i := 0, 0
		for i < len(text) && n < size {
			_, w := utf8.DecodeRuneInString(text[i:])
			i += w
			n++
		}
		frags = append(frags, text[:i])
		text = text[i:]
	}
	return Fragments(frags...), nil
}
