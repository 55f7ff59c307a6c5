package mixer

import (
	"time"

	"ZenMix/core/audio"
)

// Source is a catalog sound assigned to a track slot.
type Source struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	URL      string  `json:"url"`
	Duration float64 `json:"duration,omitempty"` // natural duration, 0 when unknown
}

// Track is one independently controllable audio slot. An empty Name marks
// an unassigned slot; unassigned slots never hold a handle. The engine's
// mutex guards all fields.
type Track struct {
	ID        string
	Name      string
	Source    *Source
	Volume    float64
	LoopTime  int // seconds; local position resets to 0 at this point
	IsPlaying bool
	Progress  float64 // percent in [0,100], recomputed every tick

	handle    audio.Handle
	startedAt time.Time // base for elapsed fallback when polling fails
}

// Assigned reports whether the slot has a source.
func (t *Track) Assigned() bool {
	return t.Name != "" && t.Source != nil
}

// unload releases the slot's handle if one exists. Pause first so a
// backend that cannot tear down instantly goes silent immediately.
func (t *Track) unload() {
	if t.handle == nil {
		return
	}
	t.handle.Pause()
	t.handle.Unload()
	t.handle = nil
	t.IsPlaying = false
}

// TrackState is the serializable view of a track slot.
type TrackState struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	SourceID  int64   `json:"sourceId,omitempty"`
	URL       string  `json:"url,omitempty"`
	Volume    float64 `json:"volume"`
	LoopTime  int     `json:"loopTime"`
	IsPlaying bool    `json:"isPlaying"`
	Progress  float64 `json:"progress"`
}

func (t *Track) state() TrackState {
	s := TrackState{
		ID:        t.ID,
		Name:      t.Name,
		Volume:    t.Volume,
		LoopTime:  t.LoopTime,
		IsPlaying: t.IsPlaying,
		Progress:  t.Progress,
	}
	if t.Source != nil {
		s.SourceID = t.Source.ID
		s.URL = t.Source.URL
	}
	return s
}
