// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package editor talks to the story editor backend that owns the authored
// content. The daemon never mutates stories; it only reads them for preview.
package editor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/storyplay/internal/settings"
	"github.com/ManuGH/storyplay/internal/story"
)

type Client struct {
	base string
	http *http.Client
}

func New(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// Story fetches a full story with its scene list.
func (c *Client) Story(ctx context.Context, id string) (story.Story, error) {
	var p struct {
		Story story.Story `json:"story"`
	}
	u := c.base + "/api/stories/" + url.PathEscape(id)
	if err := c.getJSON(ctx, u, &p); err != nil {
		return story.Story{}, fmt.Errorf("editor: fetch story %q: %w", id, err)
	}
	p.Story.Scenes = story.Normalize(p.Story.Scenes)
	return p.Story, nil
}

// Scene fetches a single scene, used after the editor regenerated its media.
func (c *Client) Scene(ctx context.Context, storyID, sceneID string) (story.Scene, error) {
	var p struct {
		Scene story.Scene `json:"scene"`
	}
	u := c.base + "/api/stories/" + url.PathEscape(storyID) + "/scenes/" + url.PathEscape(sceneID)
	if err := c.getJSON(ctx, u, &p); err != nil {
		return story.Scene{}, fmt.Errorf("editor: fetch scene %q: %w", sceneID, err)
	}
	return p.Scene, nil
}

// MusicSettings fetches the story's background music configuration from the
// editor.
func (c *Client) MusicSettings(ctx context.Context, storyID string) (settings.Music, error) {
	var p struct {
		Music settings.Music `json:"music"`
	}
	u := c.base + "/api/stories/" + url.PathEscape(storyID) + "/music"
	if err := c.getJSON(ctx, u, &p); err != nil {
		return settings.Music{}, fmt.Errorf("editor: fetch music settings for %q: %w", storyID, err)
	}
	return p.Music, nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// CacheBust appends a timestamp query parameter so intermediate caches hand
// back the regenerated media instead of a stale copy. Invalid URLs pass
// through untouched.
func CacheBust(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("cb", strconv.FormatInt(time.Now().UnixMilli(), 10))
	u.RawQuery = q.Encode()
	return u.String()
}
