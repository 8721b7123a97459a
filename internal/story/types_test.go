// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package story

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveDuration(t *testing.T) {
	tests := []struct {
		name     string
		scene    Scene
		audioDur float64
		videoDur float64
		want     float64
	}{
		{
			name:     "audio wins over everything",
			scene:    Scene{Duration: 8},
			audioDur: 6.2,
			videoDur: 6.0,
			want:     6.2,
		},
		{
			name:     "video wins when audio unknown",
			scene:    Scene{Duration: 8},
			videoDur: 6.0,
			want:     6.0,
		},
		{
			name:  "stored duration wins over fallback constant",
			scene: Scene{Duration: 3.5},
			want:  3.5,
		},
		{
			name:  "fallback only when truly absent",
			scene: Scene{},
			want:  FallbackDuration,
		},
		{
			name:  "negative stored duration treated as absent",
			scene: Scene{Duration: -1},
			want:  FallbackDuration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.scene.EffectiveDuration(tt.audioDur, tt.videoDur)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize(t *testing.T) {
	scenes := []Scene{
		{ID: "c", Order: 7},
		{ID: "a", Order: 1},
		{ID: "b", Order: 3},
	}

	got := Normalize(scenes)

	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})
	for i, s := range got {
		assert.Equal(t, i, s.Order)
	}
	// input untouched
	assert.Equal(t, 7, scenes[0].Order)
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		scenes := []Scene{
			{ID: "a", Order: 0, ImageURL: "http://img/0.webp"},
			{ID: "b", Order: 1, VideoURL: "http://vid/1.mp4"},
			{ID: "c", Order: 2},
		}
		require.NoError(t, Validate(scenes))
	})

	t.Run("gap in ordering", func(t *testing.T) {
		scenes := []Scene{
			{ID: "a", Order: 0},
			{ID: "b", Order: 2},
		}
		require.Error(t, Validate(scenes))
	})

	t.Run("image and video on one scene", func(t *testing.T) {
		scenes := []Scene{
			{ID: "a", Order: 0, ImageURL: "http://img/0.webp", VideoURL: "http://vid/0.mp4"},
		}
		require.Error(t, Validate(scenes))
	})
}
