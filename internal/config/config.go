package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// AudioConfig stores capture and playback device parameters.
type AudioConfig struct {
	InputSampleRate  int `yaml:"input_sample_rate"`
	OutputSampleRate int `yaml:"output_sample_rate"`
	CaptureBlockSize int `yaml:"capture_block_size"`
	Channels         int `yaml:"channels"`
}

// RealtimeConfig stores realtime API specific configurations.
type RealtimeConfig struct {
	APIKey       string `yaml:"api_key"`
	Model        string `yaml:"model"`
	Voice        string `yaml:"voice"`
	Instructions string `yaml:"instructions"`
	PricingFile  string `yaml:"pricing_file"`
}

// SessionConfig stores session lifetime limits. Zero disables a limit.
type SessionConfig struct {
	InactivityTimeoutSeconds int     `yaml:"inactivity_timeout_seconds"`
	MaxSessionLengthMinutes  int     `yaml:"max_session_length_minutes"`
	MaxCostPerSession        float64 `yaml:"max_cost_per_session"`
}

// TranscriptConfig stores transcript history parameters.
type TranscriptConfig struct {
	HistorySize int `yaml:"history_size"`
}

// Config stores the application configuration.
type Config struct {
	Audio      AudioConfig      `yaml:"audio"`
	Realtime   RealtimeConfig   `yaml:"realtime"`
	Session    SessionConfig    `yaml:"session"`
	Transcript TranscriptConfig `yaml:"transcript"`
	LogLevel   string           `yaml:"log_level"`
}

// LoadConfig loads the configuration from the given file path and fills in
// defaults for unset audio parameters.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Audio.InputSampleRate <= 0 {
		c.Audio.InputSampleRate = 16000
	}
	if c.Audio.OutputSampleRate <= 0 {
		c.Audio.OutputSampleRate = 24000
	}
	if c.Audio.CaptureBlockSize <= 0 {
		c.Audio.CaptureBlockSize = 4096
	}
	if c.Audio.Channels <= 0 {
		c.Audio.Channels = 1
	}
	if c.Realtime.Model == "" {
		c.Realtime.Model = "gpt-4o-realtime-preview"
	}
	if c.Transcript.HistorySize <= 0 {
		c.Transcript.HistorySize = 32
	}
}
