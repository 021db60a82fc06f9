package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Session.Provider != "gemini" {
		t.Errorf("default provider = %q", cfg.Session.Provider)
	}
	if cfg.Audio.CaptureRate != 16000 || cfg.Audio.PlaybackRate != 24000 {
		t.Errorf("default rates = %d/%d, want 16000/24000",
			cfg.Audio.CaptureRate, cfg.Audio.PlaybackRate)
	}
	if cfg.Audio.FrameSize != 4096 {
		t.Errorf("default frame size = %d, want 4096", cfg.Audio.FrameSize)
	}
	if !strings.Contains(cfg.Session.SystemInstruction, "Lingua") {
		t.Error("default system instruction lost the persona")
	}
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.Voice != "Zephyr" {
		t.Errorf("voice = %q, want Zephyr", cfg.Session.Voice)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
session:
  provider: openai
  voice: alloy
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.Provider != "openai" || cfg.Session.Voice != "alloy" {
		t.Errorf("session = %+v", cfg.Session)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging level = %q", cfg.Logging.Level)
	}
	// Sections absent from the file stay at their defaults.
	if cfg.Audio.FrameSize != 4096 {
		t.Errorf("frame size = %d, want default 4096", cfg.Audio.FrameSize)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("logging format = %q, want default text", cfg.Logging.Format)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for a missing config file")
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{
			name:   "unknown provider",
			mutate: func(c *Config) { c.Session.Provider = "azure" },
			errMsg: "provider",
		},
		{
			name:   "capture rate too low",
			mutate: func(c *Config) { c.Audio.CaptureRate = 4000 },
			errMsg: "capture_rate",
		},
		{
			name:   "frame size out of range",
			mutate: func(c *Config) { c.Audio.FrameSize = 64 },
			errMsg: "frame_size",
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.Logging.Level = "verbose" },
			errMsg: "level",
		},
		{
			name:   "bad log format",
			mutate: func(c *Config) { c.Logging.Format = "xml" },
			errMsg: "format",
		},
		{
			name: "metrics enabled without address",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Address = ""
			},
			errMsg: "address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error %q does not mention %q", err, tt.errMsg)
			}
		})
	}
}

func TestAPIKeyEnv(t *testing.T) {
	s := SessionConfig{Provider: "gemini"}
	if got := s.APIKeyEnv(); got != "GEMINI_API_KEY" {
		t.Errorf("gemini env = %q", got)
	}
	s.Provider = "openai"
	if got := s.APIKeyEnv(); got != "OPENAI_API_KEY" {
		t.Errorf("openai env = %q", got)
	}
}
