package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Channel.Endpoint == "" || cfg.Channel.RetryBudget != 5 {
		t.Fatalf("defaults = %+v", cfg.Channel)
	}
	if cfg.Recording.Format != "wav" || cfg.Recording.ChunkIntervalMS != 500 {
		t.Fatalf("defaults = %+v", cfg.Recording)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minute.yaml")
	body := `
channel:
  endpoint: wss://backend.example.com/channel
  retry_budget: 2
recording:
  format: flac
  speaker_id: host
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Channel.Endpoint != "wss://backend.example.com/channel" || cfg.Channel.RetryBudget != 2 {
		t.Fatalf("channel = %+v", cfg.Channel)
	}
	if cfg.Recording.Format != "flac" || cfg.Recording.SpeakerID != "host" {
		t.Fatalf("recording = %+v", cfg.Recording)
	}
	// Untouched keys keep their defaults.
	if cfg.Recording.ChunkIntervalMS != 500 {
		t.Fatalf("chunk_interval_ms = %d", cfg.Recording.ChunkIntervalMS)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minute.yaml")
	if err := os.WriteFile(path, []byte("channel:\n  retry_budget: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MINUTE_CHANNEL_RETRY_BUDGET", "9")
	t.Setenv("MINUTE_RECORDING_FORMAT", "flac")
	t.Setenv("MINUTE_RECORDING_DISABLE_VAD", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Channel.RetryBudget != 9 {
		t.Fatalf("retry_budget = %d, want env value 9", cfg.Channel.RetryBudget)
	}
	if cfg.Recording.Format != "flac" || !cfg.Recording.DisableVAD {
		t.Fatalf("recording = %+v", cfg.Recording)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad scheme", func(c *Config) { c.Channel.Endpoint = "http://x" }, "ws://"},
		{"empty endpoint", func(c *Config) { c.Channel.Endpoint = "" }, "endpoint"},
		{"negative budget", func(c *Config) { c.Channel.RetryBudget = -1 }, "retry_budget"},
		{"bad format", func(c *Config) { c.Recording.Format = "mp3" }, "format"},
		{"zero chunk interval", func(c *Config) { c.Recording.ChunkIntervalMS = 0 }, "chunk_interval"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}
