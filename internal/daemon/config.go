// Package daemon wires the engine, audio bridge, journal and HTTP API into
// one long-running process and owns its configuration.
package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/saira-network/saira/internal/domain"
)

// Config is the top-level daemon configuration (config.toml).
type Config struct {
	API     APIConfig     `toml:"api"`
	Log     LogConfig     `toml:"log"`
	LLM     LaneConfig    `toml:"llm"`
	ASR     LaneConfig    `toml:"asr"`
	Audio   AudioConfig   `toml:"audio"`
	Metrics MetricsConfig `toml:"metrics"`
	Journal JournalConfig `toml:"journal"`
}

// APIConfig controls the HTTP listener.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LogConfig controls the root logger.
type LogConfig struct {
	Level  string `toml:"level"`  // trace, debug, info, warn, error
	Format string `toml:"format"` // console or json
}

// LaneConfig configures one model kind.
type LaneConfig struct {
	Provider     string `toml:"provider"` // "fake" or "openai"
	Model        string `toml:"model"`    // path or model ID loaded on start, optional
	Workers      int    `toml:"workers"`
	QueueLimit   int    `toml:"queue_limit"`
	BaseURL      string `toml:"base_url"`
	APIKeyEnv    string `toml:"api_key_env"`
	Timeout      string `toml:"timeout"`
	EmbeddingDim int    `toml:"embedding_dim"` // fake provider only
}

// AudioConfig controls the capture/playback bridge.
type AudioConfig struct {
	Backend     string `toml:"backend"` // "miniaudio" or "fake"
	SampleRate  int    `toml:"sample_rate"`
	Channels    int    `toml:"channels"`
	MaxSessions int    `toml:"max_sessions"`
}

// MetricsConfig controls /metrics and the span ring.
type MetricsConfig struct {
	Enabled  bool `toml:"enabled"`
	MaxSpans int  `toml:"max_spans"`
}

// JournalConfig controls the SQLite operation journal.
type JournalConfig struct {
	Enabled        bool `toml:"enabled"`
	RestoreOnStart bool `toml:"restore_on_start"`
}

// Supported provider and audio backend names.
const (
	ProviderFake   = "fake"
	ProviderOpenAI = "openai"

	AudioMiniaudio = "miniaudio"
	AudioFake      = "fake"
)

// DefaultConfig returns sensible defaults for a local install.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 3000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		LLM: LaneConfig{
			Provider: ProviderFake,
			Workers:  1,
			BaseURL:  "http://127.0.0.1:8080/v1/",
			Timeout:  "2m",
		},
		ASR: LaneConfig{
			Provider: ProviderFake,
			Workers:  1,
			BaseURL:  "http://127.0.0.1:8081/v1/",
			Timeout:  "2m",
		},
		Audio: AudioConfig{
			Backend:     AudioMiniaudio,
			SampleRate:  domain.DefaultSampleRate,
			Channels:    domain.DefaultChannels,
			MaxSessions: 4,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			MaxSpans: 2048,
		},
		Journal: JournalConfig{
			Enabled:        true,
			RestoreOnStart: false,
		},
	}
}

// Home returns the data directory: $SAIRA_HOME or ~/.saira.
func Home() string {
	if h := os.Getenv("SAIRA_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".saira"
	}
	return filepath.Join(home, ".saira")
}

// ConfigPath returns the config file path inside dir.
func ConfigPath(dir string) string {
	return filepath.Join(dir, "config.toml")
}

// LoadConfig reads dir/config.toml over the defaults, then applies the
// environment. A missing file is not an error.
func LoadConfig(dir string) (Config, error) {
	cfg := DefaultConfig()
	path := ConfigPath(dir)
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// applyEnv overlays PORT and SAIRA_LOG_LEVEL.
func (c *Config) applyEnv(getenv func(string) string) error {
	if p := getenv("PORT"); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("PORT=%q: %w", p, err)
		}
		c.API.Port = port
	}
	if lvl := getenv("SAIRA_LOG_LEVEL"); lvl != "" {
		c.Log.Level = lvl
	}
	return nil
}

// Validate checks values that would otherwise fail late at wiring time.
func (c Config) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	for name, lane := range map[string]LaneConfig{"llm": c.LLM, "asr": c.ASR} {
		switch lane.Provider {
		case ProviderFake, ProviderOpenAI:
		default:
			return fmt.Errorf("%s.provider %q: want %q or %q", name, lane.Provider, ProviderFake, ProviderOpenAI)
		}
		if lane.QueueLimit < 0 {
			return fmt.Errorf("%s.queue_limit must not be negative", name)
		}
		if _, err := lane.timeout(); err != nil {
			return fmt.Errorf("%s.timeout: %w", name, err)
		}
	}
	switch c.Audio.Backend {
	case AudioMiniaudio, AudioFake:
	default:
		return fmt.Errorf("audio.backend %q: want %q or %q", c.Audio.Backend, AudioMiniaudio, AudioFake)
	}
	return nil
}

// Lane returns the lane config for a model kind.
func (c Config) Lane(kind domain.ModelKind) LaneConfig {
	if kind == domain.ModelASR {
		return c.ASR
	}
	return c.LLM
}

func (l LaneConfig) timeout() (time.Duration, error) {
	if strings.TrimSpace(l.Timeout) == "" {
		return 0, nil
	}
	return time.ParseDuration(l.Timeout)
}

// apiKey resolves the lane's API key from the named environment variable.
func (l LaneConfig) apiKey(getenv func(string) string) string {
	if l.APIKeyEnv == "" {
		return ""
	}
	return getenv(l.APIKeyEnv)
}

// Addr returns the listen address.
func (a APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}
