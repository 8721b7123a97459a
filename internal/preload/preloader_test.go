// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package preload

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/storyplay/internal/media"
	"github.com/ManuGH/storyplay/internal/story"
)

type stubProber struct {
	durations map[string]float64
	errs      map[string]error
}

func (s *stubProber) ProbeDuration(ctx context.Context, url string) (float64, error) {
	if err, ok := s.errs[url]; ok {
		return 0, err
	}
	if d, ok := s.durations[url]; ok {
		return d, nil
	}
	return 0, errors.New("unknown url")
}

type slowProber struct{}

func (slowProber) ProbeDuration(ctx context.Context, url string) (float64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	img := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			_, _ = w.Write(img)
		case "/garbage.png":
			_, _ = w.Write([]byte("not an image"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWarmBuildsEntries(t *testing.T) {
	srv := imageServer(t)

	scenes := []story.Scene{
		{ID: "a", Order: 0, ImageURL: srv.URL + "/ok.png", AudioURL: "audio-a"},
		{ID: "b", Order: 1, VideoURL: "video-b", AudioURL: "audio-b"},
		{ID: "c", Order: 2, Text: "silent scene", Duration: 4},
	}

	p := New(Options{
		HTTPClient: srv.Client(),
		Prober: &stubProber{durations: map[string]float64{
			"audio-a": 3.5,
			"audio-b": 6.2,
			"video-b": 6.0,
		}},
	})
	require.False(t, p.Ready())

	p.Warm(context.Background(), scenes)
	require.True(t, p.Ready())

	a, ok := p.Entry(0)
	require.True(t, ok)
	assert.True(t, a.ImageReady)
	assert.InDelta(t, 3.5, a.AudioDuration, 1e-9)
	require.NotNil(t, a.Audio)
	assert.InDelta(t, 3.5, a.Audio.Duration(), 1e-9)

	b, ok := p.Entry(1)
	require.True(t, ok)
	assert.InDelta(t, 6.2, b.AudioDuration, 1e-9)
	assert.InDelta(t, 6.0, b.VideoDuration, 1e-9)

	c, ok := p.Entry(2)
	require.True(t, ok)
	assert.Nil(t, c.Audio)
	assert.Zero(t, c.AudioDuration)
}

func TestWarmSwallowsImageFailures(t *testing.T) {
	srv := imageServer(t)

	scenes := []story.Scene{
		{ID: "a", Order: 0, ImageURL: srv.URL + "/garbage.png"},
		{ID: "b", Order: 1, ImageURL: srv.URL + "/missing.png"},
	}

	p := New(Options{HTTPClient: srv.Client()})
	p.Warm(context.Background(), scenes)

	require.True(t, p.Ready())
	a, _ := p.Entry(0)
	assert.False(t, a.ImageReady)
	b, _ := p.Entry(1)
	assert.False(t, b.ImageReady)
}

func TestWarmAudioProbeErrorDropsElement(t *testing.T) {
	scenes := []story.Scene{
		{ID: "a", Order: 0, AudioURL: "audio-broken"},
	}
	p := New(Options{
		Prober: &stubProber{errs: map[string]error{"audio-broken": errors.New("probe: exit status 1")}},
	})
	p.Warm(context.Background(), scenes)

	e, ok := p.Entry(0)
	require.True(t, ok)
	assert.Nil(t, e.Audio)
	assert.Zero(t, e.AudioDuration)
}

func TestWarmMetadataTimeoutAcceptsWithoutDuration(t *testing.T) {
	scenes := []story.Scene{
		{ID: "a", Order: 0, AudioURL: "audio-slow"},
	}
	p := New(Options{
		Prober:          slowProber{},
		MetadataTimeout: 20 * time.Millisecond,
	})
	p.Warm(context.Background(), scenes)

	e, ok := p.Entry(0)
	require.True(t, ok)
	require.NotNil(t, e.Audio)
	assert.Zero(t, e.AudioDuration)
	assert.Zero(t, e.Audio.Duration())
}

func TestRefreshSceneReplacesSingleEntry(t *testing.T) {
	scenes := []story.Scene{
		{ID: "a", Order: 0, AudioURL: "audio-a"},
		{ID: "b", Order: 1, AudioURL: "audio-b"},
	}
	prober := &stubProber{durations: map[string]float64{
		"audio-a": 3.0,
		"audio-b": 4.0,
	}}
	p := New(Options{Prober: prober})
	p.Warm(context.Background(), scenes)

	prober.durations["audio-b2"] = 7.5
	updated := scenes[1]
	updated.AudioURL = "audio-b2"
	p.RefreshScene(context.Background(), 1, updated)

	assert.InDelta(t, 3.0, p.AudioDuration(0), 1e-9)
	assert.InDelta(t, 7.5, p.AudioDuration(1), 1e-9)
}

func TestWarmCancelledLeavesNotReady(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(Options{Prober: &stubProber{durations: map[string]float64{"audio-a": 3}}})
	p.Warm(ctx, []story.Scene{{ID: "a", Order: 0, AudioURL: "audio-a"}})

	assert.False(t, p.Ready())
}

func TestMediaDurationsForUnknownIndex(t *testing.T) {
	p := New(Options{})
	assert.Zero(t, p.AudioDuration(9))
	assert.Zero(t, p.VideoDuration(9))
	assert.Nil(t, p.AudioElement(9))
}

func TestVolumeAppliedAtCreation(t *testing.T) {
	scenes := []story.Scene{{ID: "a", Order: 0, AudioURL: "audio-a"}}
	p := New(Options{
		Prober: &stubProber{durations: map[string]float64{"audio-a": 3}},
		Volume: func() float64 { return 0.25 },
	})
	p.Warm(context.Background(), scenes)

	e, ok := p.Entry(0)
	require.True(t, ok)
	clock, ok := e.Audio.(*media.Clock)
	require.True(t, ok)
	assert.InDelta(t, 0.25, clock.Volume(), 1e-9)
}
