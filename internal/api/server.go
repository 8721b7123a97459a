// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api exposes the playback intent surface of the preview daemon.
// All state transitions go through intents; clients poll status instead of
// holding a session open.
package api

import (
	"context"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/storyplay/internal/api/middleware"
	"github.com/ManuGH/storyplay/internal/config"
	xglog "github.com/ManuGH/storyplay/internal/log"
	"github.com/ManuGH/storyplay/internal/player"
	"github.com/ManuGH/storyplay/internal/preload"
	"github.com/ManuGH/storyplay/internal/settings"
	"github.com/ManuGH/storyplay/internal/story"
)

// StoryFetcher is the slice of the editor client the server needs.
type StoryFetcher interface {
	Story(ctx context.Context, id string) (story.Story, error)
	Scene(ctx context.Context, storyID, sceneID string) (story.Scene, error)
	MusicSettings(ctx context.Context, storyID string) (settings.Music, error)
}

// Server wires the engine, preloader and editor client behind HTTP.
type Server struct {
	cfg      config.Config
	version  string
	engine   *player.Engine
	preload  *preload.Preloader
	settings *settings.Store
	editor   StoryFetcher
	logger   zerolog.Logger

	// baseCtx bounds background work (media warm-up) spawned by handlers.
	baseCtx context.Context

	mu       sync.RWMutex
	story    story.Story
	hasStory bool
}

// Options collects the server dependencies.
type Options struct {
	Config   config.Config
	Version  string
	Engine   *player.Engine
	Preload  *preload.Preloader
	Settings *settings.Store
	Editor   StoryFetcher
	BaseCtx  context.Context
}

// New creates a Server. All dependencies are required except BaseCtx, which
// defaults to context.Background().
func New(opts Options) *Server {
	s := &Server{
		cfg:      opts.Config,
		version:  opts.Version,
		engine:   opts.Engine,
		preload:  opts.Preload,
		settings: opts.Settings,
		editor:   opts.Editor,
		logger:   xglog.WithComponent("api"),
		baseCtx:  opts.BaseCtx,
	}
	if s.baseCtx == nil {
		s.baseCtx = context.Background()
	}
	return s
}

// Router builds the HTTP routing table with the canonical middleware stack.
func (s *Server) Router() *chi.Mux {
	r := middleware.NewRouter(middleware.StackConfig{RateLimit: s.cfg.RateLimit})

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/story/load", s.handleStoryLoad)
		r.Post("/scenes/{sceneID}/refresh", s.handleSceneRefresh)
		r.Route("/playback", func(r chi.Router) {
			r.Post("/play", s.handlePlay)
			r.Post("/stop", s.handleStop)
			r.Post("/seek", s.handleSeek)
			r.Get("/status", s.handleStatus)
		})
	})
	return r
}

// currentStory returns the loaded story snapshot.
func (s *Server) currentStory() (story.Story, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.story, s.hasStory
}

// sceneIndexByID resolves an editor scene ID to its timeline index.
func (s *Server) sceneIndexByID(id string) (int, story.Scene, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, sc := range s.story.Scenes {
		if sc.ID == id {
			return i, sc, true
		}
	}
	return 0, story.Scene{}, false
}
