// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"
	FieldStoryID   = "story_id"
	FieldSceneID   = "scene_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStrategy  = "strategy"

	// Timeline fields
	FieldSceneIndex = "scene_index"
	FieldOffset     = "offset_s"
	FieldTotalTime  = "total_time_s"
	FieldDuration   = "duration_s"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Media / URL fields
	FieldURL   = "url"
	FieldMedia = "media"
)
