package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calyptra/voicepipe/internal/config"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
audio:
  input_sample_rate: 8000
  output_sample_rate: 48000
  capture_block_size: 2048
  channels: 2
realtime:
  api_key: test-key
  model: gpt-4o-realtime-preview
  voice: alloy
session:
  inactivity_timeout_seconds: 120
  max_session_length_minutes: 30
transcript:
  history_size: 16
log_level: debug
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Audio.InputSampleRate)
	assert.Equal(t, 48000, cfg.Audio.OutputSampleRate)
	assert.Equal(t, 2048, cfg.Audio.CaptureBlockSize)
	assert.Equal(t, 2, cfg.Audio.Channels)
	assert.Equal(t, "test-key", cfg.Realtime.APIKey)
	assert.Equal(t, "gpt-4o-realtime-preview", cfg.Realtime.Model)
	assert.Equal(t, "alloy", cfg.Realtime.Voice)
	assert.Equal(t, 120, cfg.Session.InactivityTimeoutSeconds)
	assert.Equal(t, 30, cfg.Session.MaxSessionLengthMinutes)
	assert.Equal(t, 16, cfg.Transcript.HistorySize)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfigFile(t, `
realtime:
  api_key: test-key
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 16000, cfg.Audio.InputSampleRate)
	assert.Equal(t, 24000, cfg.Audio.OutputSampleRate)
	assert.Equal(t, 4096, cfg.Audio.CaptureBlockSize)
	assert.Equal(t, 1, cfg.Audio.Channels)
	assert.Equal(t, 32, cfg.Transcript.HistorySize)
	assert.Equal(t, "gpt-4o-realtime-preview", cfg.Realtime.Model)
	assert.Zero(t, cfg.Session.InactivityTimeoutSeconds)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "audio: [not: a: mapping")

	_, err := config.LoadConfig(path)
	assert.Error(t, err)
}
