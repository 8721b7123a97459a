// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package settings holds the user-facing playback settings: global narration
// volume, background music and caption rendering. Settings are persisted by
// the editor backend; the daemon only consumes a resolved snapshot and keeps
// it hot-reloadable so a mid-playback change takes effect within one tick.
package settings

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Music is the background-music triple persisted externally.
type Music struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	URL     string `yaml:"music_url" json:"music_url"`
	Volume  int    `yaml:"volume" json:"volume"` // 0-100
}

// Captions configures the caption overlay. The daemon only routes these to
// the rendering collaborator; it never computes layout.
type Captions struct {
	Enabled            bool   `yaml:"enabled" json:"enabled"`
	FontFamily         string `yaml:"font_family" json:"font_family"`
	FontSize           int    `yaml:"font_size" json:"font_size"`
	FontWeight         int    `yaml:"font_weight" json:"font_weight"`
	PositionFromBottom int    `yaml:"position_from_bottom" json:"position_from_bottom"` // 0-100
	ActiveColor        string `yaml:"active_color" json:"active_color"`
	InactiveColor      string `yaml:"inactive_color" json:"inactive_color"`
	WordsPerBatch      int    `yaml:"words_per_batch" json:"words_per_batch"`
	TextTransform      string `yaml:"text_transform" json:"text_transform"` // "", "uppercase", "lowercase"
}

// Settings is the full hot-reloadable snapshot.
type Settings struct {
	Volume   int      `yaml:"volume" json:"volume"` // global narration volume, 0-100
	Music    Music    `yaml:"music" json:"music"`
	Captions Captions `yaml:"captions" json:"captions"`
}

// Default returns the settings used when no file is present.
func Default() Settings {
	return Settings{
		Volume: 100,
		Music:  Music{Enabled: false, Volume: 20},
		Captions: Captions{
			Enabled:            true,
			FontFamily:         "Inter",
			FontSize:           32,
			FontWeight:         700,
			PositionFromBottom: 10,
			ActiveColor:        "#FFD400",
			InactiveColor:      "#FFFFFF",
			WordsPerBatch:      4,
		},
	}
}

// Load reads a settings snapshot from a YAML file with strict parsing.
// Unknown fields are rejected to surface typos instead of silently ignoring
// them.
func Load(path string) (Settings, error) {
	s := Default()

	// #nosec G304 -- settings file path is provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if err == io.EOF {
			return Default(), nil
		}
		return Default(), fmt.Errorf("strict settings parse error: %w", err)
	}

	if err := validate(s); err != nil {
		return Default(), err
	}
	return s, nil
}

func validate(s Settings) error {
	if s.Volume < 0 || s.Volume > 100 {
		return fmt.Errorf("volume %d out of range 0-100", s.Volume)
	}
	if s.Music.Volume < 0 || s.Music.Volume > 100 {
		return fmt.Errorf("music volume %d out of range 0-100", s.Music.Volume)
	}
	if s.Captions.PositionFromBottom < 0 || s.Captions.PositionFromBottom > 100 {
		return fmt.Errorf("caption position %d out of range 0-100", s.Captions.PositionFromBottom)
	}
	if s.Captions.WordsPerBatch < 0 {
		return fmt.Errorf("words per batch must not be negative")
	}
	switch s.Captions.TextTransform {
	case "", "uppercase", "lowercase":
	default:
		return fmt.Errorf("unknown text transform %q", s.Captions.TextTransform)
	}
	return nil
}

// Store is the single live source of truth for settings. Engine ticks read it
// through Store methods on every tick, so closures never hold stale copies.
type Store struct {
	mu      sync.RWMutex
	current Settings
}

// NewStore creates a store seeded with the given snapshot.
func NewStore(s Settings) *Store {
	return &Store{current: s}
}

// Current returns the live snapshot.
func (st *Store) Current() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.current
}

// Replace swaps in a new snapshot.
func (st *Store) Replace(s Settings) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.current = s
}

// VolumeFraction is the live global narration volume in [0, 1].
func (st *Store) VolumeFraction() float64 {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return float64(st.current.Volume) / 100
}

// Music returns the live background-music settings.
func (st *Store) Music() Music {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.current.Music
}

// Captions returns the live caption settings.
func (st *Store) Captions() Captions {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.current.Captions
}
