package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxrelay/config"
	"voxrelay/internal/capability"
	"voxrelay/internal/metrics"
	"voxrelay/internal/transport"
	"voxrelay/internal/upstream"
	"voxrelay/util"
)

func connectConfig() *config.Config {
	cfg := config.Default()
	cfg.URL = "https://tts.example.com/v1/realtime"
	cfg.Token = "secret"
	cfg.Texts = []string{"Xin chào", "tạm biệt"}
	return cfg
}

// TestBuild_Connect verifies that Build produces a ConnectMode with one
// synthesis request per text.
func TestBuild_Connect(t *testing.T) {
	mode, err := Build(connectConfig(), util.NewLogger(0), metrics.New())
	require.NoError(t, err)

	cm, ok := mode.(*ConnectMode)
	require.True(t, ok, "expected *ConnectMode, got %T", mode)

	assert.Equal(t, "wss://tts.example.com/v1/realtime", cm.URL)
	assert.Equal(t, "secret", cm.Negotiator.Auth.Token)
	assert.Equal(t, config.DefaultStrategy, cm.Negotiator.Auth.Strategy)
	require.Len(t, cm.Negotiator.Requests, 2)
	assert.Equal(t, "tạm biệt", cm.Negotiator.Requests[1].Query)
	assert.Equal(t, config.DefaultSpeakerID, cm.Negotiator.Requests[0].SpeakerID)
	assert.NotNil(t, cm.Negotiator.OpenSink)
	assert.Equal(t, config.DefaultEndOfStream, cm.Negotiator.EndOfStream)
	assert.IsType(t, &transport.TCPDialer{}, cm.Dialer.Net)
}

// TestBuild_ConnectTunnel verifies that a tunnel spec routes the
// websocket through an SSH dialer.
func TestBuild_ConnectTunnel(t *testing.T) {
	cfg := connectConfig()
	cfg.TunnelSpec = "admin@bastion:2222"
	require.NoError(t, cfg.ApplyTunnelSpec())

	mode, err := Build(cfg, util.NewLogger(0), nil)
	require.NoError(t, err)
	assert.IsType(t, &transport.SSHDialer{}, mode.(*ConnectMode).Dialer.Net)
}

// TestBuild_Listen verifies Build produces a ListenMode for each
// generator.
func TestBuild_Listen(t *testing.T) {
	tests := []struct {
		generator string
		want      upstream.Generator
	}{
		{config.GeneratorEcho, upstream.Echo{}},
		{config.GeneratorOpenAI, &upstream.OpenAI{}},
	}
	for _, tt := range tests {
		t.Run(tt.generator, func(t *testing.T) {
			cfg := config.Default()
			cfg.Listen = true
			cfg.Port = 8000
			cfg.Generator = tt.generator
			cfg.Pacing = 0

			mode, err := Build(cfg, util.NewLogger(0), metrics.New())
			require.NoError(t, err)

			lm, ok := mode.(*ListenMode)
			require.True(t, ok, "expected *ListenMode, got %T", mode)
			assert.Equal(t, ":8000", lm.Address)
			assert.Equal(t, config.DefaultPath, lm.Path)

			relay, ok := lm.Capability.(*capability.Relay)
			require.True(t, ok)
			assert.IsType(t, tt.want, relay.Generator)
		})
	}
}

func TestBuild_OpenAISettings(t *testing.T) {
	cfg := config.Default()
	cfg.Listen = true
	cfg.Port = 8000
	cfg.Model = "gpt-test"
	cfg.OpenAIBaseURL = "http://127.0.0.1:9/v1"
	cfg.Pacing = 20 * time.Millisecond

	mode, err := Build(cfg, util.NewLogger(0), nil)
	require.NoError(t, err)

	gen := mode.(*ListenMode).Capability.(*capability.Relay).Generator.(*upstream.OpenAI)
	assert.Equal(t, "gpt-test", gen.Model)
	assert.Equal(t, "http://127.0.0.1:9/v1", gen.BaseURL)
}

// TestBuild_UnknownGenerator verifies a bad generator name is rejected.
func TestBuild_UnknownGenerator(t *testing.T) {
	cfg := config.Default()
	cfg.Listen = true
	cfg.Port = 8000
	cfg.Generator = "llama"

	_, err := Build(cfg, util.NewLogger(0), nil)
	assert.Error(t, err)
}
