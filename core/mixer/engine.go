// Package mixer implements the multi-track ambient mixer: up to eight
// independently playable tracks under one master transport, advanced by a
// single shared timing loop.
package mixer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"ZenMix/core/audio"
	"ZenMix/logger"
	"ZenMix/model"
)

const (
	// MaxTracks 混音器的最大轨道数
	MaxTracks = 8
	// DefaultSlots is the number of empty slots a fresh session starts with.
	DefaultSlots = 4
	// DefaultMixDuration is used when nothing better is known (seconds).
	DefaultMixDuration = 300
	// MaxDuration and MaxDurationLong cap loop times and the mix duration
	// depending on long-duration mode (1h vs 8h).
	MaxDuration     = 3600
	MaxDurationLong = 28800

	defaultTick = 100 * time.Millisecond
)

var (
	ErrTrackLimit      = errors.New("mixer already has the maximum number of tracks")
	ErrTrackNotFound   = errors.New("track not found")
	ErrTrackUnassigned = errors.New("track has no source assigned")
	ErrNothingToPlay   = errors.New("no tracks with a source to play")
)

// Options configure an Engine.
type Options struct {
	Tick time.Duration
	// RestartOnResume restores the legacy behavior where resuming a
	// paused track restarts its loop from 0 instead of continuing.
	RestartOnResume bool
	// Clock overrides the time source. Tests use a fake clock.
	Clock func() time.Time
}

// State is a consistent snapshot of the whole mixer, taken under the
// engine lock and pushed to clients every tick.
type State struct {
	Tracks       []TrackState `json:"tracks"`
	MasterVolume float64      `json:"masterVolume"`
	IsAllPlaying bool         `json:"isAllPlaying"`
	MixDuration  int          `json:"mixDuration"`
	MixProgress  float64      `json:"mixProgress"`
	LongDuration bool         `json:"isLongDuration"`
}

// MasterSettingsPatch is a partial update of the master settings. Nil
// fields are left untouched.
type MasterSettingsPatch struct {
	Duration       *float64 `json:"duration,omitempty"`
	Volume         *float64 `json:"volume,omitempty"`
	IsLongDuration *bool    `json:"isLongDuration,omitempty"`
}

// Engine owns the track set and the master transport. All playback state
// is mutated under one mutex; a single ticker goroutine advances every
// track's progress and the master progress from one shared timestamp per
// tick.
type Engine struct {
	mu      sync.Mutex
	adapter audio.Adapter
	tracks  []*Track

	nextSlot     int
	masterVolume float64
	allPlaying   bool
	mixDuration  int
	longDuration bool
	mixProgress  float64
	mixStart     time.Time

	restartOnResume bool
	now             func() time.Time
	tickEvery       time.Duration

	stopCh chan struct{}
	closed bool
}

// New creates an engine with no slots. Callers add slots explicitly.
func New(adapter audio.Adapter, opts Options) *Engine {
	e := &Engine{
		adapter:         adapter,
		masterVolume:    1,
		mixDuration:     DefaultMixDuration,
		restartOnResume: opts.RestartOnResume,
		now:             opts.Clock,
		tickEvery:       opts.Tick,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.tickEvery <= 0 {
		e.tickEvery = defaultTick
	}
	return e
}

// Start launches the shared timing loop.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopCh != nil || e.closed {
		return
	}
	e.stopCh = make(chan struct{})
	go e.run(e.stopCh)
}

func (e *Engine) run(stop chan struct{}) {
	ticker := time.NewTicker(e.tickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			e.tick(now)
		}
	}
}

// Close stops the timing loop and unloads every live handle. It is safe
// to call more than once. No native playback survives Close.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	if e.stopCh != nil {
		close(e.stopCh)
		e.stopCh = nil
	}
	for _, t := range e.tracks {
		t.unload()
	}
	e.allPlaying = false
	e.mixProgress = 0
}

// AddTrack appends a new unassigned slot and returns its id. The ninth
// call fails with ErrTrackLimit and changes nothing.
func (e *Engine) AddTrack() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.tracks) >= MaxTracks {
		return "", ErrTrackLimit
	}
	t := &Track{
		ID:       fmt.Sprintf("track-%d", e.nextSlot),
		Volume:   1,
		LoopTime: model.DefaultLoopTime,
	}
	e.nextSlot++
	e.tracks = append(e.tracks, t)
	return t.ID, nil
}

func (e *Engine) findTrack(id string) *Track {
	for _, t := range e.tracks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// AssignSource binds a catalog sound to a slot. Any previous handle is
// unloaded first; playback does not start.
func (e *Engine) AssignSource(trackID string, src Source) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.findTrack(trackID)
	if t == nil {
		return ErrTrackNotFound
	}
	t.unload()
	t.Name = src.Name
	t.Source = &src
	t.IsPlaying = false
	t.Progress = 0
	return nil
}

// PlayTrack starts or resumes one track. On first play the handle is
// loaded lazily at the track's effective volume. Resume continues from
// the paused position unless the engine runs in restart-on-resume mode.
func (e *Engine) PlayTrack(ctx context.Context, trackID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.findTrack(trackID)
	if t == nil {
		return ErrTrackNotFound
	}
	return e.playTrackLocked(ctx, t)
}

func (e *Engine) playTrackLocked(ctx context.Context, t *Track) error {
	if !t.Assigned() {
		return ErrTrackUnassigned
	}

	if t.handle == nil {
		h, err := e.adapter.Load(ctx, t.Source.URL)
		if err != nil {
			// A failed load leaves the track exactly as it was: no
			// handle, not playing.
			return err
		}
		h.SetVolume(clampUnit(t.Volume * e.masterVolume))
		if err := h.Play(); err != nil {
			h.Unload()
			return err
		}
		t.handle = h
		t.startedAt = e.now()
		t.Progress = 0
		t.IsPlaying = true
		return nil
	}

	if t.IsPlaying {
		return nil
	}

	if e.restartOnResume {
		if err := t.handle.Seek(0); err != nil {
			return err
		}
		t.startedAt = e.now()
		t.Progress = 0
	} else if pos, err := t.handle.Position(); err == nil {
		// Shift the elapsed base so the fallback progress math continues
		// from the paused position.
		t.startedAt = e.now().Add(-time.Duration(pos * float64(time.Second)))
	} else {
		t.startedAt = e.now()
	}

	if err := t.handle.Play(); err != nil {
		return err
	}
	t.IsPlaying = true
	return nil
}

// PauseTrack pauses one track, keeping its handle and progress.
func (e *Engine) PauseTrack(trackID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.findTrack(trackID)
	if t == nil {
		return ErrTrackNotFound
	}
	if t.handle != nil && t.IsPlaying {
		if err := t.handle.Pause(); err != nil {
			return err
		}
	}
	t.IsPlaying = false
	return nil
}

// SetTrackVolume stores a clamped volume and applies it live when a
// handle exists.
func (e *Engine) SetTrackVolume(trackID string, v float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.findTrack(trackID)
	if t == nil {
		return ErrTrackNotFound
	}
	t.Volume = clampUnit(v)
	if t.handle != nil {
		return t.handle.SetVolume(clampUnit(t.Volume * e.masterVolume))
	}
	return nil
}

// SetLoopTime stores a clamped loop time. A currently-playing track is
// not reseeked; the new value takes effect at the next tick's comparison.
func (e *Engine) SetLoopTime(trackID string, seconds int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.findTrack(trackID)
	if t == nil {
		return ErrTrackNotFound
	}
	if seconds < 1 {
		seconds = 1
	}
	if max := e.durationCeiling(); seconds > max {
		seconds = max
	}
	t.LoopTime = seconds
	return nil
}

// RemoveTrack empties a slot: pause, unload, clear assignment. The slot
// itself remains.
func (e *Engine) RemoveTrack(trackID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.findTrack(trackID)
	if t == nil {
		return ErrTrackNotFound
	}
	t.unload()
	t.Name = ""
	t.Source = nil
	t.IsPlaying = false
	t.Progress = 0
	return nil
}

// PlayAll starts every assigned track. The mix start timestamp is
// recorded at the call, not when individual adapters finish starting. A
// track that fails to start is logged and left non-playing without
// aborting the others. With zero assigned tracks this is a reported
// no-op, not a silent success.
func (e *Engine) PlayAll(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	assigned := 0
	for _, t := range e.tracks {
		if t.Assigned() {
			assigned++
		}
	}
	if assigned == 0 {
		return ErrNothingToPlay
	}

	e.mixStart = e.now()
	for _, t := range e.tracks {
		if !t.Assigned() {
			continue
		}
		if err := e.playTrackLocked(ctx, t); err != nil {
			logger.Warn("track failed to start, continuing without it",
				logger.String("trackId", t.ID),
				logger.String("name", t.Name),
				logger.ErrorField(err))
		}
	}
	e.mixProgress = 0
	e.allPlaying = true
	return nil
}

// PauseAll stops every playing track and resets the mix progress.
// Handles stay loaded so resuming is cheap.
func (e *Engine) PauseAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopAllLocked()
}

func (e *Engine) stopAllLocked() {
	for _, t := range e.tracks {
		if t.handle != nil && t.IsPlaying {
			if err := t.handle.Pause(); err != nil {
				logger.Warn("failed to pause track", logger.String("trackId", t.ID), logger.ErrorField(err))
			}
		}
		t.IsPlaying = false
	}
	e.allPlaying = false
	e.mixProgress = 0
}

// SetMasterVolume clamps and stores the master volume and pushes the new
// effective volume to every live handle immediately.
func (e *Engine) SetMasterVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setMasterVolumeLocked(v)
}

func (e *Engine) setMasterVolumeLocked(v float64) {
	e.masterVolume = clampUnit(v)
	for _, t := range e.tracks {
		if t.handle != nil {
			if err := t.handle.SetVolume(clampUnit(t.Volume * e.masterVolume)); err != nil {
				logger.Warn("failed to apply master volume", logger.String("trackId", t.ID), logger.ErrorField(err))
			}
		}
	}
}

func (e *Engine) durationCeiling() int {
	if e.longDuration {
		return MaxDurationLong
	}
	return MaxDuration
}

// UpdateMasterSettings applies a partial settings patch. Durations are
// rounded to whole seconds before storage; toggling long-duration mode
// clamps the stored duration and loop times down to the new ceiling.
func (e *Engine) UpdateMasterSettings(patch MasterSettingsPatch) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if patch.IsLongDuration != nil {
		e.longDuration = *patch.IsLongDuration
		max := e.durationCeiling()
		if e.mixDuration > max {
			e.mixDuration = max
		}
		for _, t := range e.tracks {
			if t.LoopTime > max {
				t.LoopTime = max
			}
		}
	}
	if patch.Duration != nil {
		d := int(math.Round(*patch.Duration))
		if d < 1 {
			d = 1
		}
		if max := e.durationCeiling(); d > max {
			d = max
		}
		e.mixDuration = d
	}
	if patch.Volume != nil {
		e.setMasterVolumeLocked(*patch.Volume)
	}
}

// SetMixDuration stores a rounded duration, clamped to the ceiling.
func (e *Engine) SetMixDuration(seconds float64) {
	d := seconds
	e.UpdateMasterSettings(MasterSettingsPatch{Duration: &d})
}

// tick advances every playing track and the master progress from one
// shared timestamp, keeping all tracks consistent within a tick.
func (e *Engine) tick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, t := range e.tracks {
		if !t.IsPlaying || t.handle == nil {
			continue
		}
		loop := float64(t.LoopTime)
		if loop <= 0 {
			loop = model.DefaultLoopTime
		}

		pos, err := t.handle.Position()
		if err != nil {
			// Polling can be expensive or unavailable; fall back to
			// elapsed time since track start.
			pos = now.Sub(t.startedAt).Seconds()
		}

		if pos >= loop {
			if err := t.handle.Seek(0); err != nil {
				logger.Warn("loop reset seek failed", logger.String("trackId", t.ID), logger.ErrorField(err))
			}
			t.startedAt = now
			t.Progress = 0
			continue
		}

		p := pos / loop * 100
		if p < 0 {
			p = 0
		}
		if p > 100 {
			p = 100
		}
		t.Progress = p
	}

	if e.allPlaying {
		elapsed := now.Sub(e.mixStart).Seconds()
		progress := elapsed / float64(e.mixDuration)
		if progress >= 1 {
			// Natural completion: halt everything within this tick.
			e.stopAllLocked()
		} else if progress > 0 {
			e.mixProgress = progress
		}
	}
}

// State returns a consistent snapshot of the mixer.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := State{
		Tracks:       make([]TrackState, 0, len(e.tracks)),
		MasterVolume: e.masterVolume,
		IsAllPlaying: e.allPlaying,
		MixDuration:  e.mixDuration,
		MixProgress:  e.mixProgress,
		LongDuration: e.longDuration,
	}
	for _, t := range e.tracks {
		s.Tracks = append(s.Tracks, t.state())
	}
	return s
}

// Snapshots returns the persistable view of the assigned slots, in slot
// order. Unassigned slots are skipped.
func (e *Engine) Snapshots() []model.TrackSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.TrackSnapshot, 0, len(e.tracks))
	for _, t := range e.tracks {
		if !t.Assigned() {
			continue
		}
		out = append(out, model.TrackSnapshot{
			ID:       t.ID,
			Name:     t.Name,
			SourceID: t.Source.ID,
			URL:      t.Source.URL,
			Volume:   t.Volume,
			LoopTime: t.LoopTime,
		})
	}
	return out
}

// MixDuration returns the current master duration in seconds.
func (e *Engine) MixDuration() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mixDuration
}

// ApplyMix loads persisted snapshots into the slots positionally:
// snapshot index maps to slot index, snapshots beyond the track limit are
// dropped. Existing playback is stopped and handles released first.
func (e *Engine) ApplyMix(snapshots []model.TrackSnapshot, durationSeconds int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopAllLocked()
	for _, t := range e.tracks {
		t.unload()
		t.Name = ""
		t.Source = nil
		t.Progress = 0
	}

	if len(snapshots) > MaxTracks {
		snapshots = snapshots[:MaxTracks]
	}
	for len(e.tracks) < len(snapshots) {
		t := &Track{
			ID:       fmt.Sprintf("track-%d", e.nextSlot),
			Volume:   1,
			LoopTime: model.DefaultLoopTime,
		}
		e.nextSlot++
		e.tracks = append(e.tracks, t)
	}

	for i, snap := range snapshots {
		t := e.tracks[i]
		t.Name = snap.Name
		t.Source = &Source{ID: snap.SourceID, Name: snap.Name, URL: snap.URL}
		t.Volume = clampUnit(snap.Volume)
		if snap.LoopTime > 0 {
			t.LoopTime = snap.LoopTime
		} else {
			t.LoopTime = model.DefaultLoopTime
		}
		t.IsPlaying = false
		t.Progress = 0
	}

	if durationSeconds > 0 {
		if max := e.durationCeiling(); durationSeconds > max {
			durationSeconds = max
		}
		e.mixDuration = durationSeconds
	}
}

// clampUnit clamps a volume to [0,1].
func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
