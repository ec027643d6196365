// Package config defines the runtime configuration for voxrelay and
// provides the helpers that fill it from defaults, a YAML file, the
// environment and the command line.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	ncerr "voxrelay/internal/errors"
	"voxrelay/util"
)

// Config holds every tuneable for a voxrelay process.
type Config struct {
	// ── TTS client (connect mode) ────────────────────────────────────
	URL              string        `yaml:"url"`
	Token            string        `yaml:"token"`
	Strategy         string        `yaml:"strategy"`
	Texts            []string      `yaml:"texts"` // one synthesis request each
	Normalization    string        `yaml:"normalization"`
	Language         string        `yaml:"language"`
	AudioFormat      string        `yaml:"audio_format"`
	AudioQuality     float64       `yaml:"audio_quality"`
	AudioSpeed       string        `yaml:"audio_speed"`
	SpeakerID        string        `yaml:"speaker_id"`
	OutputDir        string        `yaml:"output_dir"`
	EndOfStream      string        `yaml:"end_of_stream"`
	SniffJSON        bool          `yaml:"sniff_json"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// ── Chat relay (listen mode) ─────────────────────────────────────
	Listen        bool          `yaml:"listen"`
	Port          int           `yaml:"port"`
	Path          string        `yaml:"path"`
	MetricsPath   string        `yaml:"metrics_path"`
	Generator     string        `yaml:"generator"` // "openai" or "echo"
	Model         string        `yaml:"model"`
	OpenAIBaseURL string        `yaml:"openai_base_url"`
	Pacing        time.Duration `yaml:"pacing"`

	// ── SSH tunnel ───────────────────────────────────────────────────
	TunnelSpec     string `yaml:"tunnel"` // raw user@host[:port] from -T
	TunnelEnabled  bool   `yaml:"-"`
	TunnelUser     string `yaml:"-"`
	TunnelHost     string `yaml:"-"`
	TunnelPort     int    `yaml:"-"`
	SSHKeyPath     string `yaml:"ssh_key"`
	SSHPassword    bool   `yaml:"ssh_password"` // true → prompt interactively
	UseSSHAgent    bool   `yaml:"ssh_agent"`
	StrictHostKey  bool   `yaml:"strict_hostkey"`
	KnownHostsPath string `yaml:"known_hosts"`

	// ── Output ───────────────────────────────────────────────────────
	Verbose int  `yaml:"verbose"`
	DryRun  bool `yaml:"-"`
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		URL:              DefaultURL,
		Strategy:         DefaultStrategy,
		Normalization:    DefaultNormalization,
		Language:         DefaultLanguage,
		AudioFormat:      DefaultAudioFormat,
		AudioQuality:     DefaultAudioQuality,
		AudioSpeed:       DefaultAudioSpeed,
		SpeakerID:        DefaultSpeakerID,
		OutputDir:        DefaultOutputDir,
		EndOfStream:      DefaultEndOfStream,
		HandshakeTimeout: DefaultHandshakeTimeout,
		Path:             DefaultPath,
		MetricsPath:      DefaultMetricsPath,
		Generator:        GeneratorOpenAI,
		Model:            DefaultModel,
		OpenAIBaseURL:    DefaultOpenAIBaseURL,
		Pacing:           DefaultPacing,
		Verbose:          1,
	}
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q: expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}

// ApplyTunnelSpec parses TunnelSpec into the Tunnel* fields.
func (c *Config) ApplyTunnelSpec() error {
	if c.TunnelSpec == "" {
		c.TunnelEnabled = false
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
	if err != nil {
		return &ncerr.ConfigError{Field: "tunnel", Value: c.TunnelSpec, Message: err.Error()}
	}
	c.TunnelEnabled = true
	c.TunnelUser = user
	c.TunnelHost = host
	c.TunnelPort = port
	return nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// Every failure is a *ConfigError naming the offending flag.
func (c *Config) Validate() error {
	if c.Listen {
		return c.validateListen()
	}
	return c.validateConnect()
}

func (c *Config) validateConnect() error {
	if len(c.Texts) == 0 {
		return &ncerr.ConfigError{
			Field:   "text",
			Message: "at least one text to synthesise is required",
			Hint:    "pass the text as arguments: voxrelay [options] <text...>",
		}
	}
	for _, t := range c.Texts {
		if strings.TrimSpace(t) == "" {
			return &ncerr.ConfigError{Field: "text", Value: fmt.Sprintf("%q", t), Message: "text must not be blank"}
		}
	}
	if _, err := util.WebSocketURL(c.URL, ""); err != nil {
		return &ncerr.ConfigError{
			Field:   "url",
			Value:   c.URL,
			Message: err.Error(),
			Hint:    "use a ws://, wss://, http:// or https:// URL",
		}
	}
	if c.Token == "" {
		return &ncerr.ConfigError{
			Field:   "token",
			Message: "required in connect mode",
			Hint:    "pass --token or set VOXRELAY_TOKEN",
		}
	}
	if c.AudioQuality <= 0 {
		return &ncerr.ConfigError{Field: "audio-quality", Value: c.AudioQuality, Message: "must be positive"}
	}
	if c.OutputDir == "" {
		return &ncerr.ConfigError{Field: "output-dir", Message: "must not be empty"}
	}
	if c.EndOfStream == "" {
		return &ncerr.ConfigError{Field: "end-of-stream", Message: "must not be empty"}
	}
	if c.TunnelEnabled && c.TunnelHost == "" {
		return &ncerr.ConfigError{Field: "tunnel", Value: c.TunnelSpec, Message: "tunnel host is required"}
	}
	return nil
}

func (c *Config) validateListen() error {
	if c.Port < 1 || c.Port > 65535 {
		var v interface{}
		if c.Port != 0 {
			v = c.Port
		}
		return &ncerr.ConfigError{
			Field:   "port",
			Value:   v,
			Message: "listen mode requires a port between 1 and 65535",
			Hint:    "voxrelay -l -p 8000",
		}
	}
	if !strings.HasPrefix(c.Path, "/") {
		return &ncerr.ConfigError{Field: "path", Value: c.Path, Message: "must start with /"}
	}
	if c.MetricsPath != "" && !strings.HasPrefix(c.MetricsPath, "/") {
		return &ncerr.ConfigError{Field: "metrics-path", Value: c.MetricsPath, Message: "must start with / (or be empty to disable)"}
	}
	if c.MetricsPath == c.Path {
		return &ncerr.ConfigError{Field: "metrics-path", Value: c.MetricsPath, Message: "must differ from --path"}
	}
	switch c.Generator {
	case GeneratorOpenAI, GeneratorEcho:
	default:
		return &ncerr.ConfigError{
			Field:   "generator",
			Value:   c.Generator,
			Message: "unknown generator",
			Hint:    "use openai or echo",
		}
	}
	if c.Pacing < 0 {
		return &ncerr.ConfigError{Field: "pacing", Value: c.Pacing, Message: "must not be negative"}
	}
	if c.TunnelEnabled {
		return &ncerr.ConfigError{
			Field:   "tunnel",
			Value:   c.TunnelSpec,
			Message: "the SSH tunnel only applies to connect mode",
		}
	}
	return nil
}
