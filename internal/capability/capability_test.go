package capability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ncerr "voxrelay/internal/errors"
	"voxrelay/internal/metrics"
	"voxrelay/internal/protocol"
	"voxrelay/internal/segment"
	"voxrelay/internal/transport"
	"voxrelay/internal/upstream"
	"voxrelay/util"
)

// scriptConn replays inbound frames, then reports an orderly close.
type scriptConn struct {
	in      []protocol.Frame
	out     []string
	readErr error // returned once the script is exhausted
}

func (c *scriptConn) ReadFrame(context.Context) (protocol.Frame, error) {
	if len(c.in) == 0 {
		if c.readErr != nil {
			return protocol.Frame{}, c.readErr
		}
		return protocol.Frame{}, ncerr.Wrap("read", "script", io.EOF)
	}
	f := c.in[0]
	c.in = c.in[1:]
	return f, nil
}

func (c *scriptConn) WriteText(_ context.Context, text string) error {
	c.out = append(c.out, text)
	return nil
}

func textFrame(s string) protocol.Frame {
	return protocol.Frame{Kind: protocol.Control, Data: []byte(s)}
}

// keyedGenerator answers with fixed fragments and records the keys it
// was given.
type keyedGenerator struct {
	frags []string
	fail  error
	keys  []string
}

func (g *keyedGenerator) Stream(_ context.Context, req upstream.Request) (upstream.TokenStream, error) {
	g.keys = append(g.keys, req.APIKey)
	if g.fail != nil {
		return nil, g.fail
	}
	return upstream.Fragments(g.frags...), nil
}

func newRelay(g upstream.Generator, m *metrics.Collector) *Relay {
	return &Relay{
		Generator: g,
		Segmenter: &segment.Segmenter{Pacer: segment.NoDelay, Metrics: m},
		Logger:    util.NewLogger(0),
		Metrics:   m,
	}
}

func TestRelay_ServesRequests(t *testing.T) {
	g := &keyedGenerator{frags: []string{"Hel", "lo ", "wor", "ld. ", "Bye"}}
	conn := &scriptConn{in: []protocol.Frame{
		textFrame(`{"api_key":"k1","prompt":"p","text":"hi"}`),
		textFrame(`{"api_key":"k2","prompt":"p","text":"again"}`),
	}}

	err := newRelay(g, nil).Handle(context.Background(), conn)
	require.NoError(t, err)

	run := []string{"Hello ", "world. ", "Bye", "[DONE]"}
	assert.Equal(t, append(append([]string{}, run...), run...), conn.out)
	assert.Equal(t, []string{"k1", "k2"}, g.keys, "each request carries its own key")
}

func TestRelay_MalformedRequestKeepsConnection(t *testing.T) {
	m := metrics.New()
	g := &keyedGenerator{frags: []string{"ok"}}
	conn := &scriptConn{in: []protocol.Frame{
		textFrame(`{"prompt":"p","text":"t"}`),
		textFrame(`not json`),
		{Kind: protocol.Payload, Data: []byte{0x01}},
		textFrame(`{"api_key":"k","prompt":"p","text":"t"}`),
	}}

	require.NoError(t, newRelay(g, m).Handle(context.Background(), conn))

	require.Len(t, conn.out, 5)
	assert.Equal(t, "[ERROR] malformed request: api_key: required field is missing", conn.out[0])
	assert.True(t, protocol.IsErrorFrame(conn.out[1]))
	assert.Equal(t, "[ERROR] malformed request: binary frames are not accepted", conn.out[2])
	assert.Equal(t, []string{"ok", "[DONE]"}, conn.out[3:])

	assert.Equal(t, int64(4), m.Requests())
	assert.Equal(t, int64(3), m.RejectedRequests())
	assert.Zero(t, m.ActiveSessions())
}

func TestRelay_GeneratorFailures(t *testing.T) {
	t.Run("stream start", func(t *testing.T) {
		g := &keyedGenerator{fail: &ncerr.UpstreamError{Provider: "openai", Err: errors.New("http 401: bad key")}}
		conn := &scriptConn{in: []protocol.Frame{textFrame(`{"api_key":"x","prompt":"","text":"t"}`)}}

		require.NoError(t, newRelay(g, nil).Handle(context.Background(), conn))
		assert.Equal(t, []string{"[ERROR] openai: http 401: bad key"}, conn.out)
	})

	t.Run("mid stream", func(t *testing.T) {
		gen := generatorFunc(func() upstream.TokenStream {
			return upstream.Failing(errors.New("reset"), "one ", "tw")
		})
		conn := &scriptConn{in: []protocol.Frame{
			textFrame(`{"api_key":"x","prompt":"","text":"t"}`),
			textFrame(`{"api_key":"x","prompt":"","text":"t"}`),
		}}
		m := metrics.New()

		require.NoError(t, newRelay(gen, m).Handle(context.Background(), conn))
		assert.Equal(t, []string{
			"one ", "[ERROR] generator: reset",
			"one ", "[ERROR] generator: reset",
		}, conn.out, "a failed run does not end the connection")
		assert.Equal(t, int64(2), m.Snapshot().UpstreamErrors)
	})
}

func TestRelay_TransportFailure(t *testing.T) {
	broken := ncerr.Wrap("read", "peer", errors.New("connection reset by peer"))
	conn := &scriptConn{readErr: broken}

	err := newRelay(&keyedGenerator{}, nil).Handle(context.Background(), conn)
	assert.ErrorIs(t, err, broken)
}

type generatorFunc func() upstream.TokenStream

func (f generatorFunc) Stream(context.Context, upstream.Request) (upstream.TokenStream, error) {
	return f(), nil
}

// ── over a real websocket ────────────────────────────────────────────

func TestRelay_OverWebsocket(t *testing.T) {
	relay := newRelay(upstream.Echo{Chunk: 3}, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := transport.Upgrade(w, r)
		if err != nil {
			return
		}
		defer conn.Close()
		relay.Handle(r.Context(), conn)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := (&transport.WSDialer{}).Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(ctx, protocol.ChatRequest{APIKey: "k", Prompt: "p", Text: "Xin chào bạn"}))

	var got []string
	for {
		f, err := conn.ReadFrame(ctx)
		require.NoError(t, err)
		require.Equal(t, protocol.Control, f.Kind)
		got = append(got, string(f.Data))
		if string(f.Data) == protocol.SentinelDone {
			break
		}
	}
	assert.Equal(t, []string{"Xin ", "chào ", "bạn", "[DONE]"}, got)
}
