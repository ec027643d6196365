package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

// Connect mode.
const (
	DefaultURL           = "wss://api.blaze.vn/v1/tts/realtime"
	DefaultStrategy      = "token"
	DefaultNormalization = "basic"
	DefaultLanguage      = "vi"
	DefaultAudioFormat   = "mp3"
	DefaultAudioQuality  = 32
	DefaultAudioSpeed    = "1"
	DefaultSpeakerID     = "HN-Nam-2-BL"
	DefaultOutputDir     = "output"
	DefaultEndOfStream   = "finished-byte-stream"

	// DefaultHandshakeTimeout bounds the websocket opening handshake.
	// No read timeout applies once the session is up.
	DefaultHandshakeTimeout = 10 * time.Second
)

// Listen mode.
const (
	DefaultPath          = "/ws/chat"
	DefaultMetricsPath   = "/metrics"
	DefaultModel         = "gpt-4o-mini"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultPacing        = 100 * time.Millisecond

	// DefaultGracePeriod is how long shutdown waits for open relay
	// connections to drain.
	DefaultGracePeriod = 5 * time.Second
)

// Generators.
const (
	GeneratorOpenAI = "openai"
	GeneratorEcho   = "echo"
)

// SSH tunnel.
const (
	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultConnTimeout is the TCP/SSH connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultSSHKeepalive is the keepalive interval on an SSH gateway.
	DefaultSSHKeepalive = 30 * time.Second
)
