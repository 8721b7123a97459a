// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config resolves the daemon configuration with the precedence
// environment > config file > defaults. The file is parsed strictly: unknown
// keys fail the load instead of being silently ignored.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved daemon configuration.
type Config struct {
	// Listen is the HTTP bind address of the preview API.
	Listen string `yaml:"listen"`

	// EditorBaseURL points at the story editor backend.
	EditorBaseURL string `yaml:"editor_base_url"`

	// SettingsPath is the hot-reloaded playback settings file. Empty
	// disables the watcher.
	SettingsPath string `yaml:"settings_path"`

	// FFProbeBin is the probe binary used to resolve media durations.
	FFProbeBin string `yaml:"ffprobe_bin"`

	// MetadataTimeout bounds a single media metadata probe.
	MetadataTimeout time.Duration `yaml:"metadata_timeout"`

	// PreloadConcurrency caps parallel media warm-up work.
	PreloadConcurrency int `yaml:"preload_concurrency"`

	// RateLimit is the per-client request budget per minute on the intent
	// API. 0 disables rate limiting.
	RateLimit int `yaml:"rate_limit"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Listen:             ":8090",
		EditorBaseURL:      "http://127.0.0.1:3000",
		FFProbeBin:         "ffprobe",
		MetadataTimeout:    3 * time.Second,
		PreloadConcurrency: 4,
		RateLimit:          120,
		LogLevel:           "info",
	}
}

// Load resolves the configuration: defaults, then the optional YAML file at
// path, then STORYPLAY_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := mergeFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	mergeEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	f, err := os.Open(path) // #nosec G304 -- path comes from the operator
	if err != nil {
		return fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func mergeEnv(cfg *Config) {
	cfg.Listen = ParseString("STORYPLAY_LISTEN", cfg.Listen)
	cfg.EditorBaseURL = ParseString("STORYPLAY_EDITOR_URL", cfg.EditorBaseURL)
	cfg.SettingsPath = ParseString("STORYPLAY_SETTINGS_PATH", cfg.SettingsPath)
	cfg.FFProbeBin = ParseString("STORYPLAY_FFPROBE_BIN", cfg.FFProbeBin)
	cfg.MetadataTimeout = ParseDuration("STORYPLAY_METADATA_TIMEOUT", cfg.MetadataTimeout)
	cfg.PreloadConcurrency = ParseInt("STORYPLAY_PRELOAD_CONCURRENCY", cfg.PreloadConcurrency)
	cfg.RateLimit = ParseInt("STORYPLAY_RATE_LIMIT", cfg.RateLimit)
	cfg.LogLevel = ParseString("STORYPLAY_LOG_LEVEL", cfg.LogLevel)
}

// Validate rejects configurations the daemon cannot run with.
func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("config: listen address must not be empty")
	}
	if c.EditorBaseURL == "" {
		return fmt.Errorf("config: editor_base_url must not be empty")
	}
	if c.MetadataTimeout <= 0 {
		return fmt.Errorf("config: metadata_timeout must be positive (got %s)", c.MetadataTimeout)
	}
	if c.PreloadConcurrency <= 0 {
		return fmt.Errorf("config: preload_concurrency must be positive (got %d)", c.PreloadConcurrency)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("config: rate_limit must not be negative (got %d)", c.RateLimit)
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}
