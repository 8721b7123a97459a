// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command daemon runs the story preview playback daemon: it mirrors the
// editor's story content, preloads scene media and serves the playback
// intent API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ManuGH/storyplay/internal/api"
	"github.com/ManuGH/storyplay/internal/config"
	"github.com/ManuGH/storyplay/internal/editor"
	xglog "github.com/ManuGH/storyplay/internal/log"
	"github.com/ManuGH/storyplay/internal/media"
	"github.com/ManuGH/storyplay/internal/player"
	"github.com/ManuGH/storyplay/internal/preload"
	"github.com/ManuGH/storyplay/internal/settings"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe logging defaults until the config is loaded.
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "storyplay",
		Version: version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: "storyplay",
		Version: version,
	})

	store := settings.NewStore(settings.Default())
	if cfg.SettingsPath != "" {
		watcher := settings.NewWatcher(store, cfg.SettingsPath)
		if err := watcher.Reload(); err != nil {
			logger.Warn().
				Err(err).
				Str("path", cfg.SettingsPath).
				Msg("initial settings load failed, starting with defaults")
		}
		if err := watcher.Start(ctx); err != nil {
			logger.Fatal().
				Err(err).
				Str("event", "settings.watch_failed").
				Str("path", cfg.SettingsPath).
				Msg("failed to watch settings file")
		}
	}

	preloader := preload.New(preload.Options{
		Prober:          media.NewFFProbe(cfg.FFProbeBin),
		MetadataTimeout: cfg.MetadataTimeout,
		Concurrency:     cfg.PreloadConcurrency,
		Volume:          store.VolumeFraction,
	})
	engine := player.New(preloader, store, player.Options{})

	server := api.New(api.Options{
		Config:   cfg,
		Version:  version,
		Engine:   engine,
		Preload:  preloader,
		Settings: store,
		Editor:   editor.New(cfg.EditorBaseURL),
		BaseCtx:  ctx,
	})

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info().
			Str("event", "daemon.started").
			Str("listen", cfg.Listen).
			Str("editor", cfg.EditorBaseURL).
			Str("version", version).
			Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		logger.Fatal().Err(err).Str("event", "daemon.failed").Msg("HTTP server failed")
	case <-ctx.Done():
	}

	logger.Info().Str("event", "daemon.stopping").Msg("shutting down")
	engine.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	logger.Info().Str("event", "daemon.stopped").Msg("daemon stopped")
}
