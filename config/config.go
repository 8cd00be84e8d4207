package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ChannelConfig struct {
	Endpoint          string `yaml:"endpoint"`
	RetryBudget       int    `yaml:"retry_budget"`
	BaseDelayMS       int    `yaml:"base_delay_ms"`
	ConnectThrottleMS int    `yaml:"connect_throttle_ms"`
	DialTimeoutMS     int    `yaml:"dial_timeout_ms"`
}

type RecordingConfig struct {
	Dir             string `yaml:"dir"`
	Format          string `yaml:"format"` // wav or flac
	Device          string `yaml:"device"` // empty means system default
	SpeakerID       string `yaml:"speaker_id"`
	ChunkIntervalMS int    `yaml:"chunk_interval_ms"`
	LevelIntervalMS int    `yaml:"level_interval_ms"`
	DisableVAD      bool   `yaml:"disable_vad"`
}

type Config struct {
	Channel   ChannelConfig   `yaml:"channel"`
	Recording RecordingConfig `yaml:"recording"`
	LogDir    string          `yaml:"log_dir"`
}

func Default() Config {
	return Config{
		Channel: ChannelConfig{
			Endpoint:          "ws://127.0.0.1:8765/channel",
			RetryBudget:       5,
			BaseDelayMS:       1000,
			ConnectThrottleMS: 1000,
			DialTimeoutMS:     10000,
		},
		Recording: RecordingConfig{
			Dir:             "./recordings",
			Format:          "wav",
			ChunkIntervalMS: 500,
			LevelIntervalMS: 200,
		},
	}
}

// Load reads the config file at path (defaults only when path is empty),
// applies MINUTE_* environment overrides on top and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Channel.Endpoint, "MINUTE_CHANNEL_ENDPOINT")
	overrideInt(&cfg.Channel.RetryBudget, "MINUTE_CHANNEL_RETRY_BUDGET")
	overrideInt(&cfg.Channel.BaseDelayMS, "MINUTE_CHANNEL_BASE_DELAY_MS")
	overrideInt(&cfg.Channel.ConnectThrottleMS, "MINUTE_CHANNEL_CONNECT_THROTTLE_MS")
	overrideInt(&cfg.Channel.DialTimeoutMS, "MINUTE_CHANNEL_DIAL_TIMEOUT_MS")
	overrideString(&cfg.Recording.Dir, "MINUTE_RECORDING_DIR")
	overrideString(&cfg.Recording.Format, "MINUTE_RECORDING_FORMAT")
	overrideString(&cfg.Recording.Device, "MINUTE_RECORDING_DEVICE")
	overrideString(&cfg.Recording.SpeakerID, "MINUTE_RECORDING_SPEAKER_ID")
	overrideInt(&cfg.Recording.ChunkIntervalMS, "MINUTE_RECORDING_CHUNK_INTERVAL_MS")
	overrideInt(&cfg.Recording.LevelIntervalMS, "MINUTE_RECORDING_LEVEL_INTERVAL_MS")
	overrideBool(&cfg.Recording.DisableVAD, "MINUTE_RECORDING_DISABLE_VAD")
	overrideString(&cfg.LogDir, "MINUTE_LOG_DIR")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.Channel.Endpoint == "" {
		return errors.New("channel.endpoint must not be empty")
	}
	if !strings.HasPrefix(cfg.Channel.Endpoint, "ws://") && !strings.HasPrefix(cfg.Channel.Endpoint, "wss://") {
		return errors.New("channel.endpoint must use a ws:// or wss:// scheme")
	}
	if cfg.Channel.RetryBudget < 0 {
		return errors.New("channel.retry_budget must be >= 0")
	}
	if cfg.Channel.BaseDelayMS <= 0 {
		return errors.New("channel.base_delay_ms must be positive")
	}
	if cfg.Channel.DialTimeoutMS <= 0 {
		return errors.New("channel.dial_timeout_ms must be positive")
	}
	if cfg.Recording.Dir == "" {
		return errors.New("recording.dir must not be empty")
	}
	switch cfg.Recording.Format {
	case "wav", "flac":
		// ok
	default:
		return errors.New("recording.format must be one of wav|flac")
	}
	if cfg.Recording.ChunkIntervalMS <= 0 {
		return errors.New("recording.chunk_interval_ms must be positive")
	}
	if cfg.Recording.LevelIntervalMS <= 0 {
		return errors.New("recording.level_interval_ms must be positive")
	}
	return nil
}
