package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromEnv_Strings(t *testing.T) {
	t.Setenv("VOXRELAY_URL", "ws://localhost:9000/tts")
	t.Setenv("VOXRELAY_TOKEN", "secret")
	t.Setenv("VOXRELAY_SPEAKER_ID", "HCM-Nu-1")
	t.Setenv("VOXRELAY_GENERATOR", "echo")

	cfg := Default()
	LoadFromEnv(cfg)

	if cfg.URL != "ws://localhost:9000/tts" || cfg.Token != "secret" {
		t.Errorf("url/token = %q/%q", cfg.URL, cfg.Token)
	}
	if cfg.SpeakerID != "HCM-Nu-1" || cfg.Generator != "echo" {
		t.Errorf("speaker/generator = %q/%q", cfg.SpeakerID, cfg.Generator)
	}
	if cfg.Language != DefaultLanguage {
		t.Errorf("unset env should keep default, got %q", cfg.Language)
	}
}

func TestLoadFromEnv_Numbers(t *testing.T) {
	t.Setenv("VOXRELAY_PORT", "8080")
	t.Setenv("VOXRELAY_AUDIO_QUALITY", "64")
	t.Setenv("VOXRELAY_VERBOSE", "3")

	cfg := Default()
	LoadFromEnv(cfg)
	if cfg.Port != 8080 || cfg.AudioQuality != 64 || cfg.Verbose != 3 {
		t.Errorf("port=%d quality=%v verbose=%d", cfg.Port, cfg.AudioQuality, cfg.Verbose)
	}
}

func TestLoadFromEnv_InvalidNumbersIgnored(t *testing.T) {
	t.Setenv("VOXRELAY_PORT", "not-a-number")
	t.Setenv("VOXRELAY_AUDIO_QUALITY", "loud")
	t.Setenv("VOXRELAY_PACING", "soon")

	cfg := Default()
	LoadFromEnv(cfg)
	if cfg.Port != 0 || cfg.AudioQuality != DefaultAudioQuality || cfg.Pacing != DefaultPacing {
		t.Errorf("invalid values should be ignored: %+v", cfg)
	}
}

func TestLoadFromEnv_Pacing(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"250", 250 * time.Millisecond},
		{"1.5s", 1500 * time.Millisecond},
		{"0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("VOXRELAY_PACING", tt.value)
			cfg := Default()
			LoadFromEnv(cfg)
			if cfg.Pacing != tt.want {
				t.Errorf("Pacing = %v, want %v", cfg.Pacing, tt.want)
			}
		})
	}
}

func TestLoadFromEnv_Booleans(t *testing.T) {
	for _, v := range []string{"1", "true", "yes", "TRUE", "Yes"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("VOXRELAY_LISTEN", v)
			t.Setenv("VOXRELAY_SNIFF_JSON", v)
			t.Setenv("VOXRELAY_SSH_AGENT", v)
			cfg := Default()
			LoadFromEnv(cfg)
			if !cfg.Listen || !cfg.SniffJSON || !cfg.UseSSHAgent {
				t.Errorf("booleans not applied for %q", v)
			}
		})
	}

	t.Setenv("VOXRELAY_LISTEN", "no")
	cfg := Default()
	LoadFromEnv(cfg)
	if cfg.Listen {
		t.Error(`"no" should not enable listen mode`)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voxrelay.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
url: wss://tts.internal/v1/realtime
token: from-file
texts:
  - first
  - second
audio_quality: 48
pacing: 250ms
handshake_timeout: 3s
tunnel: ops@bastion:2222
`)
	cfg := Default()
	if err := LoadFile(path, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.URL != "wss://tts.internal/v1/realtime" || cfg.Token != "from-file" {
		t.Errorf("url/token = %q/%q", cfg.URL, cfg.Token)
	}
	if strings.Join(cfg.Texts, ",") != "first,second" || cfg.AudioQuality != 48 {
		t.Errorf("texts=%v quality=%v", cfg.Texts, cfg.AudioQuality)
	}
	if cfg.Pacing != 250*time.Millisecond || cfg.HandshakeTimeout != 3*time.Second {
		t.Errorf("pacing=%v handshake=%v", cfg.Pacing, cfg.HandshakeTimeout)
	}
	if cfg.TunnelSpec != "ops@bastion:2222" {
		t.Errorf("tunnel = %q", cfg.TunnelSpec)
	}
	if cfg.SpeakerID != DefaultSpeakerID {
		t.Errorf("absent key should keep default, got %q", cfg.SpeakerID)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), Default()); err == nil {
		t.Error("missing file should fail")
	}
	if err := LoadFile(writeConfig(t, "colour: blue\n"), Default()); err == nil {
		t.Error("unknown key should fail")
	}
	if err := LoadFile(writeConfig(t, "port: [1, 2]\n"), Default()); err == nil {
		t.Error("wrong type should fail")
	}
	if err := LoadFile(writeConfig(t, "\n  \n"), Default()); err != nil {
		t.Errorf("empty file should be accepted, got %v", err)
	}
}

func TestPrecedence_EnvOverFile(t *testing.T) {
	path := writeConfig(t, "token: from-file\nlanguage: en\n")
	t.Setenv("VOXRELAY_TOKEN", "from-env")

	cfg := Default()
	if err := LoadFile(path, cfg); err != nil {
		t.Fatal(err)
	}
	LoadFromEnv(cfg)
	if cfg.Token != "from-env" || cfg.Language != "en" {
		t.Errorf("token=%q language=%q", cfg.Token, cfg.Language)
	}
}
