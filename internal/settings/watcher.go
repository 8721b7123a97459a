// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package settings

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/storyplay/internal/log"
)

// Watcher hot-reloads the settings file into a Store. A failed reload keeps
// the last good snapshot, so a half-written file never mutes a running
// preview.
type Watcher struct {
	store   *Store
	path    string
	watcher *fsnotify.Watcher
	logger  zerolog.Logger
}

// NewWatcher creates a watcher feeding the given store.
func NewWatcher(store *Store, path string) *Watcher {
	return &Watcher{
		store:  store,
		path:   path,
		logger: xglog.WithComponent("settings"),
	}
}

// Reload reads the settings file and atomically swaps the store snapshot.
func (w *Watcher) Reload() error {
	s, err := Load(w.path)
	if err != nil {
		w.logger.Error().
			Err(err).
			Str("event", "settings.reload_failed").
			Str("path", w.path).
			Msg("failed to reload settings, keeping last good snapshot")
		return fmt.Errorf("reload settings: %w", err)
	}

	w.store.Replace(s)
	w.logger.Info().
		Str("event", "settings.reload_success").
		Int("volume", s.Volume).
		Bool("music_enabled", s.Music.Enabled).
		Msg("settings reloaded")
	return nil
}

// Start begins watching the settings file. An empty path disables watching.
func (w *Watcher) Start(ctx context.Context) error {
	if w.path == "" {
		w.logger.Info().
			Str("event", "settings.watcher_disabled").
			Msg("settings file watcher disabled")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	w.watcher = watcher

	if err := watcher.Add(w.path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch settings file: %w", err)
	}

	w.logger.Info().
		Str("event", "settings.watcher_started").
		Str("path", w.path).
		Msg("watching settings file for changes")

	go w.watchLoop(ctx)
	return nil
}

func (w *Watcher) watchLoop(ctx context.Context) {
	// Debounce rapid write bursts from editors.
	var debounce *time.Timer
	const debounceAfter = 250 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Str("event", "settings.watcher_stopped").Msg("settings watcher stopped")
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceAfter, func() {
					_ = w.Reload()
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().
				Err(err).
				Str("event", "settings.watcher_error").
				Msg("settings watcher error")
		}
	}
}
