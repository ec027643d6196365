package config

// loader.go - configuration loading from a YAML file and from
// environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables
//   3. YAML file (--config)
//   4. Defaults   (defaults.go)

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ── YAML file ────────────────────────────────────────────────────────

// LoadFile overlays the YAML document at path onto cfg.  Keys absent
// from the file leave cfg untouched; unknown keys are an error.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	return decodeYAML(data, cfg)
}

func decodeYAML(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the VOXRELAY_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.
func LoadFromEnv(cfg *Config) {
	// TTS client
	envString("VOXRELAY_URL", &cfg.URL)
	envString("VOXRELAY_TOKEN", &cfg.Token)
	envString("VOXRELAY_STRATEGY", &cfg.Strategy)
	envString("VOXRELAY_NORMALIZATION", &cfg.Normalization)
	envString("VOXRELAY_LANGUAGE", &cfg.Language)
	envString("VOXRELAY_AUDIO_FORMAT", &cfg.AudioFormat)
	if v, ok := envFloat("VOXRELAY_AUDIO_QUALITY"); ok {
		cfg.AudioQuality = v
	}
	envString("VOXRELAY_AUDIO_SPEED", &cfg.AudioSpeed)
	envString("VOXRELAY_SPEAKER_ID", &cfg.SpeakerID)
	envString("VOXRELAY_OUTPUT_DIR", &cfg.OutputDir)
	envString("VOXRELAY_END_OF_STREAM", &cfg.EndOfStream)
	if envBool("VOXRELAY_SNIFF_JSON") {
		cfg.SniffJSON = true
	}

	// Chat relay
	if envBool("VOXRELAY_LISTEN") {
		cfg.Listen = true
	}
	if v := envInt("VOXRELAY_PORT"); v > 0 {
		cfg.Port = v
	}
	envString("VOXRELAY_PATH", &cfg.Path)
	envString("VOXRELAY_METRICS_PATH", &cfg.MetricsPath)
	envString("VOXRELAY_GENERATOR", &cfg.Generator)
	envString("VOXRELAY_MODEL", &cfg.Model)
	envString("VOXRELAY_OPENAI_BASE_URL", &cfg.OpenAIBaseURL)
	if v, ok := envDuration("VOXRELAY_PACING"); ok {
		cfg.Pacing = v
	}

	// SSH tunnel
	envString("VOXRELAY_TUNNEL", &cfg.TunnelSpec)
	envString("VOXRELAY_SSH_KEY", &cfg.SSHKeyPath)
	if envBool("VOXRELAY_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("VOXRELAY_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("VOXRELAY_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	envString("VOXRELAY_KNOWN_HOSTS", &cfg.KnownHostsPath)

	// Output
	if v := envInt("VOXRELAY_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// envDuration accepts Go durations ("150ms") or bare milliseconds.
func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, true
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}
