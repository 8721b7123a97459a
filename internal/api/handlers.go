// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/storyplay/internal/captions"
	"github.com/ManuGH/storyplay/internal/editor"
	xglog "github.com/ManuGH/storyplay/internal/log"
	"github.com/ManuGH/storyplay/internal/player"
	"github.com/ManuGH/storyplay/internal/story"
	"github.com/ManuGH/storyplay/internal/timeline"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "storyplay",
		"version": s.version,
	})
}

type storyLoadRequest struct {
	StoryID string `json:"story_id"`
}

// handleStoryLoad fetches a story from the editor, makes it the active
// timeline and kicks off the media warm-up in the background. Playback of
// the previous story stops.
func (s *Server) handleStoryLoad(w http.ResponseWriter, r *http.Request) {
	var req storyLoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StoryID == "" {
		writeError(w, errors.New("story_id is required"))
		return
	}

	st, err := s.editor.Story(r.Context(), req.StoryID)
	if err != nil {
		writeBadGateway(w, err)
		return
	}
	if err := story.Validate(st.Scenes); err != nil {
		writeError(w, err)
		return
	}

	s.mu.Lock()
	s.story = st
	s.hasStory = true
	s.mu.Unlock()

	logger := xglog.WithContext(r.Context(), s.logger)

	// The editor owns per-story music settings; a fetch failure keeps the
	// current settings instead of blocking the load.
	if music, err := s.editor.MusicSettings(r.Context(), st.ID); err != nil {
		logger.Warn().
			Err(err).
			Str("event", "story.music_settings_failed").
			Str(xglog.FieldStoryID, st.ID).
			Msg("music settings unavailable, keeping current")
	} else {
		cur := s.settings.Current()
		cur.Music = music
		s.settings.Replace(cur)
	}

	s.engine.SetStory(st.Scenes)
	go s.preload.Warm(s.baseCtx, st.Scenes)

	logger.Info().
		Str("event", "story.loaded").
		Str(xglog.FieldStoryID, st.ID).
		Int("scenes", len(st.Scenes)).
		Msg("story loaded, media warm-up started")

	writeJSON(w, http.StatusAccepted, map[string]any{
		"story_id": st.ID,
		"scenes":   len(st.Scenes),
	})
}

// handleSceneRefresh re-fetches one scene after the editor regenerated its
// media and swaps it into the running timeline. Regenerated audio gets a
// cache-busting parameter so stale copies are never replayed.
func (s *Server) handleSceneRefresh(w http.ResponseWriter, r *http.Request) {
	sceneID := chi.URLParam(r, "sceneID")

	st, ok := s.currentStory()
	if !ok {
		writeConflict(w, "no story loaded")
		return
	}
	index, _, ok := s.sceneIndexByID(sceneID)
	if !ok {
		writeNotFound(w)
		return
	}

	scene, err := s.editor.Scene(r.Context(), st.ID, sceneID)
	if err != nil {
		writeBadGateway(w, err)
		return
	}
	scene.AudioURL = editor.CacheBust(scene.AudioURL)

	if err := s.engine.UpdateScene(index, scene); err != nil {
		writeError(w, err)
		return
	}
	s.mu.Lock()
	s.story.Scenes[index] = scene
	s.mu.Unlock()

	s.preload.RefreshScene(r.Context(), index, scene)

	writeJSON(w, http.StatusOK, map[string]any{
		"scene_index": index,
		"scene":       scene,
	})
}

type playRequest struct {
	SceneIndex *int     `json:"scene_index,omitempty"`
	Offset     *float64 `json:"offset,omitempty"`
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.currentStory(); !ok {
		writeConflict(w, "no story loaded")
		return
	}
	if !s.preload.Ready() {
		writeConflict(w, "media preload in progress")
		return
	}

	var req playRequest
	if r.Body != nil {
		// An empty body means "resume or start from the top".
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	var err error
	if req.SceneIndex != nil {
		offset := 0.0
		if req.Offset != nil {
			offset = *req.Offset
		}
		err = s.engine.PlayFrom(*req.SceneIndex, offset)
	} else {
		err = s.engine.Play()
	}
	if err != nil {
		if errors.Is(err, timeline.ErrNoScenes) {
			writeConflict(w, err.Error())
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.statusPayload())
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.engine.Stop()
	writeJSON(w, http.StatusOK, s.statusPayload())
}

type seekRequest struct {
	Time float64 `json:"time"`
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.New("time is required"))
		return
	}
	if err := s.engine.Seek(req.Time); err != nil {
		if errors.Is(err, timeline.ErrNoScenes) {
			writeConflict(w, err.Error())
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.statusPayload())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.statusPayload())
}

type statusResponse struct {
	Playback     player.Progress `json:"playback"`
	Captions     captions.Cue    `json:"captions"`
	PreloadReady bool            `json:"preload_ready"`
	StoryID      string          `json:"story_id,omitempty"`
}

// statusPayload is the single poll surface: position, caption cue and
// preload gate in one read.
func (s *Server) statusPayload() statusResponse {
	prog := s.engine.Status()
	resp := statusResponse{
		Playback:     prog,
		Captions:     captions.Cue{ActiveWord: -1},
		PreloadReady: s.preload.Ready(),
	}
	if st, ok := s.currentStory(); ok {
		resp.StoryID = st.ID
	}
	if scene, ok := s.engine.Scene(prog.SceneIndex); ok {
		resp.Captions = captions.Resolve(scene, s.settings.Captions(), prog.CaptionTime)
	}
	return resp
}
