// Package config handles application configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/pcm"
)

// DefaultSystemInstruction is the coaching persona sent at session open.
const DefaultSystemInstruction = `You are an expert English communication coach named "Lingua".
Your goal is to have a natural, friendly conversation with the user to help them improve their English skills.
Key Responsibilities:
1. Engage in casual conversation (hobbies, work, life) to make the user comfortable.
2. Actively listen for grammatical errors, awkward phrasing, or vocabulary misuse.
3. When a mistake is made, gently interrupt or wait for a pause to provide a brief correction and explanation.
4. Suggest better idioms or vocabulary where appropriate.
5. Keep your responses concise and encouraging.
6. Do not lecture; correct and continue.
7. Use a supportive and warm tone.`

// Config is the complete application configuration. The API key is never
// stored here: it comes from the environment.
type Config struct {
	Session SessionConfig `yaml:"session"`
	Audio   AudioConfig   `yaml:"audio"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// SessionConfig selects and configures the conversation provider.
type SessionConfig struct {
	Provider          string `yaml:"provider"` // gemini or openai
	Model             string `yaml:"model"`    // provider default when empty
	Voice             string `yaml:"voice"`
	Endpoint          string `yaml:"endpoint"` // provider default when empty
	SystemInstruction string `yaml:"system_instruction"`
}

// AudioConfig contains capture and playback parameters.
type AudioConfig struct {
	CaptureRate  int `yaml:"capture_rate"`
	PlaybackRate int `yaml:"playback_rate"`
	FrameSize    int `yaml:"frame_size"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			Provider:          "gemini",
			Voice:             "Zephyr",
			SystemInstruction: DefaultSystemInstruction,
		},
		Audio: AudioConfig{
			CaptureRate:  pcm.CaptureRate,
			PlaybackRate: pcm.PlaybackRate,
			FrameSize:    4096,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
	}
}

// Load reads and parses the configuration file. Values absent from the
// file keep their defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}
	return nil
}

// APIKeyEnv names the environment variable holding the provider's key.
func (s *SessionConfig) APIKeyEnv() string {
	if s.Provider == "openai" {
		return "OPENAI_API_KEY"
	}
	return "GEMINI_API_KEY"
}

// Validate validates the session settings.
func (s *SessionConfig) Validate() error {
	switch s.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("provider must be 'gemini' or 'openai', got '%s'", s.Provider)
	}
	return nil
}

// Validate validates the audio settings.
func (a *AudioConfig) Validate() error {
	if a.CaptureRate < 8000 {
		return fmt.Errorf("capture_rate must be at least 8000 Hz, got %d", a.CaptureRate)
	}
	if a.PlaybackRate < 8000 {
		return fmt.Errorf("playback_rate must be at least 8000 Hz, got %d", a.PlaybackRate)
	}
	if a.FrameSize < 256 || a.FrameSize > 16384 {
		return fmt.Errorf("frame_size must be between 256 and 16384 samples, got %d", a.FrameSize)
	}
	return nil
}

// Validate validates the logging settings.
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}
	return nil
}

// Validate validates the metrics settings.
func (m *MetricsConfig) Validate() error {
	if m.Enabled && m.Address == "" {
		return fmt.Errorf("address cannot be empty when metrics are enabled")
	}
	return nil
}
