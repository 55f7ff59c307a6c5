package mixer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"ZenMix/core/audio"
	"ZenMix/model"
)

type fakeHandle struct {
	playing  bool
	volume   float64
	pos      float64
	posErr   error
	seeks    []float64
	unloaded bool
	dur      float64
	durKnown bool
}

func (h *fakeHandle) Play() error  { h.playing = true; return nil }
func (h *fakeHandle) Pause() error { h.playing = false; return nil }
func (h *fakeHandle) SetVolume(v float64) error {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	h.volume = v
	return nil
}
func (h *fakeHandle) Seek(seconds float64) error {
	h.seeks = append(h.seeks, seconds)
	h.pos = seconds
	return nil
}
func (h *fakeHandle) Position() (float64, error) {
	if h.posErr != nil {
		return 0, h.posErr
	}
	return h.pos, nil
}
func (h *fakeHandle) Duration() (float64, bool) { return h.dur, h.durKnown }
func (h *fakeHandle) Unload() error             { h.unloaded = true; h.playing = false; return nil }

type fakeAdapter struct {
	handles  map[string]*fakeHandle
	failURLs map[string]bool
	loads    []string
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{handles: make(map[string]*fakeHandle), failURLs: make(map[string]bool)}
}

func (a *fakeAdapter) Name() string { return "fake" }

func (a *fakeAdapter) Load(ctx context.Context, url string) (audio.Handle, error) {
	a.loads = append(a.loads, url)
	if a.failURLs[url] {
		return nil, &audio.LoadError{URL: url, Err: errors.New("boom")}
	}
	h := &fakeHandle{}
	a.handles[url] = h
	return h, nil
}

// fakeClock lets tests advance engine time manually.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEngine(t *testing.T, slots int) (*Engine, *fakeAdapter, *fakeClock) {
	t.Helper()
	adapter := newFakeAdapter()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	e := New(adapter, Options{Clock: clock.now})
	for i := 0; i < slots; i++ {
		if _, err := e.AddTrack(); err != nil {
			t.Fatalf("AddTrack: %v", err)
		}
	}
	return e, adapter, clock
}

func assign(t *testing.T, e *Engine, trackID, url string) {
	t.Helper()
	src := Source{ID: 1, Name: trackID, URL: url}
	if err := e.AssignSource(trackID, src); err != nil {
		t.Fatalf("AssignSource(%s): %v", trackID, err)
	}
}

func TestAddTrackLimit(t *testing.T) {
	e, _, _ := newTestEngine(t, 0)

	for i := 0; i < MaxTracks; i++ {
		id, err := e.AddTrack()
		if err != nil {
			t.Fatalf("AddTrack %d: %v", i, err)
		}
		if want := fmt.Sprintf("track-%d", i); id != want {
			t.Errorf("track id = %q, want %q", id, want)
		}
	}

	if _, err := e.AddTrack(); !errors.Is(err, ErrTrackLimit) {
		t.Errorf("ninth AddTrack error = %v, want ErrTrackLimit", err)
	}
	if got := len(e.State().Tracks); got != MaxTracks {
		t.Errorf("track count after rejected add = %d, want %d", got, MaxTracks)
	}
}

func TestTrackIDsNeverReused(t *testing.T) {
	e, _, _ := newTestEngine(t, 2)

	if err := e.RemoveTrack("track-0"); err != nil {
		t.Fatalf("RemoveTrack: %v", err)
	}
	id, err := e.AddTrack()
	if err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	if id != "track-2" {
		t.Errorf("new track id = %q, want track-2", id)
	}
}

func TestPlayAllWithNothingAssigned(t *testing.T) {
	e, adapter, _ := newTestEngine(t, 4)

	err := e.PlayAll(context.Background())
	if !errors.Is(err, ErrNothingToPlay) {
		t.Fatalf("PlayAll error = %v, want ErrNothingToPlay", err)
	}
	if len(adapter.loads) != 0 {
		t.Errorf("adapter loads = %v, want none", adapter.loads)
	}
	if e.State().IsAllPlaying {
		t.Error("IsAllPlaying = true after rejected PlayAll")
	}
}

func TestPlayAllContinuesPastFailedTrack(t *testing.T) {
	e, adapter, _ := newTestEngine(t, 2)
	assign(t, e, "track-0", "ok.mp3")
	assign(t, e, "track-1", "bad.mp3")
	adapter.failURLs["bad.mp3"] = true

	if err := e.PlayAll(context.Background()); err != nil {
		t.Fatalf("PlayAll: %v", err)
	}

	st := e.State()
	if !st.IsAllPlaying {
		t.Error("IsAllPlaying = false, want true")
	}
	if !st.Tracks[0].IsPlaying {
		t.Error("healthy track not playing")
	}
	if st.Tracks[1].IsPlaying {
		t.Error("failed track marked playing")
	}
}

func TestFailedLoadLeavesTrackUntouched(t *testing.T) {
	e, adapter, _ := newTestEngine(t, 1)
	assign(t, e, "track-0", "bad.mp3")
	adapter.failURLs["bad.mp3"] = true

	err := e.PlayTrack(context.Background(), "track-0")
	var loadErr *audio.LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("PlayTrack error = %v, want LoadError", err)
	}

	st := e.State().Tracks[0]
	if st.IsPlaying || st.Progress != 0 {
		t.Errorf("failed track state = playing=%v progress=%v, want untouched", st.IsPlaying, st.Progress)
	}

	// The track stays usable: a later play retries the load.
	adapter.failURLs["bad.mp3"] = false
	if err := e.PlayTrack(context.Background(), "track-0"); err != nil {
		t.Fatalf("retry PlayTrack: %v", err)
	}
}

func TestVolumeClampAndMasterScaling(t *testing.T) {
	e, adapter, _ := newTestEngine(t, 2)
	assign(t, e, "track-0", "a.mp3")
	assign(t, e, "track-1", "b.mp3")

	if err := e.SetTrackVolume("track-0", 1.5); err != nil {
		t.Fatalf("SetTrackVolume: %v", err)
	}
	if err := e.SetTrackVolume("track-1", 0.4); err != nil {
		t.Fatalf("SetTrackVolume: %v", err)
	}

	st := e.State()
	if st.Tracks[0].Volume != 1 {
		t.Errorf("over-range volume stored as %v, want 1", st.Tracks[0].Volume)
	}

	if err := e.PlayAll(context.Background()); err != nil {
		t.Fatalf("PlayAll: %v", err)
	}
	e.SetMasterVolume(0.5)

	if got := adapter.handles["a.mp3"].volume; got != 0.5 {
		t.Errorf("effective volume a = %v, want 0.5", got)
	}
	if got := adapter.handles["b.mp3"].volume; got != 0.2 {
		t.Errorf("effective volume b = %v, want 0.2", got)
	}

	e.SetMasterVolume(-3)
	if got := e.State().MasterVolume; got != 0 {
		t.Errorf("negative master volume stored as %v, want 0", got)
	}
}

func TestLoopWrapSeeksToZero(t *testing.T) {
	e, adapter, clock := newTestEngine(t, 1)
	assign(t, e, "track-0", "a.mp3")
	if err := e.PlayTrack(context.Background(), "track-0"); err != nil {
		t.Fatalf("PlayTrack: %v", err)
	}
	if err := e.SetLoopTime("track-0", 10); err != nil {
		t.Fatalf("SetLoopTime: %v", err)
	}

	h := adapter.handles["a.mp3"]

	h.pos = 4
	clock.advance(4 * time.Second)
	e.tick(clock.now())
	if got := e.State().Tracks[0].Progress; got != 40 {
		t.Errorf("progress at 4s of 10s loop = %v, want 40", got)
	}

	h.pos = 10
	clock.advance(6 * time.Second)
	e.tick(clock.now())
	if got := e.State().Tracks[0].Progress; got != 0 {
		t.Errorf("progress after wrap = %v, want 0", got)
	}
	if len(h.seeks) != 1 || h.seeks[0] != 0 {
		t.Errorf("seeks = %v, want one seek to 0", h.seeks)
	}
}

func TestTickFallsBackToElapsedTime(t *testing.T) {
	e, adapter, clock := newTestEngine(t, 1)
	assign(t, e, "track-0", "a.mp3")
	if err := e.PlayTrack(context.Background(), "track-0"); err != nil {
		t.Fatalf("PlayTrack: %v", err)
	}
	if err := e.SetLoopTime("track-0", 20); err != nil {
		t.Fatalf("SetLoopTime: %v", err)
	}

	adapter.handles["a.mp3"].posErr = errors.New("position unavailable")

	clock.advance(5 * time.Second)
	e.tick(clock.now())
	if got := e.State().Tracks[0].Progress; got != 25 {
		t.Errorf("fallback progress = %v, want 25", got)
	}
}

func TestMixProgressMonotonicAndCompletion(t *testing.T) {
	e, adapter, clock := newTestEngine(t, 2)
	assign(t, e, "track-0", "a.mp3")
	assign(t, e, "track-1", "b.mp3")
	e.SetMixDuration(10)

	if err := e.PlayAll(context.Background()); err != nil {
		t.Fatalf("PlayAll: %v", err)
	}

	var last float64
	for i := 0; i < 5; i++ {
		clock.advance(time.Second)
		e.tick(clock.now())
		got := e.State().MixProgress
		if got <= last {
			t.Fatalf("mix progress not increasing: %v after %v", got, last)
		}
		last = got
	}

	// Crossing the duration stops everything within the same tick.
	clock.advance(6 * time.Second)
	e.tick(clock.now())

	st := e.State()
	if st.IsAllPlaying {
		t.Error("IsAllPlaying = true after completion")
	}
	if st.MixProgress != 0 {
		t.Errorf("MixProgress after completion = %v, want 0", st.MixProgress)
	}
	for url, h := range adapter.handles {
		if h.playing {
			t.Errorf("handle %s still playing after completion", url)
		}
	}
}

func TestPauseAllResetsMixProgress(t *testing.T) {
	e, _, clock := newTestEngine(t, 1)
	assign(t, e, "track-0", "a.mp3")
	e.SetMixDuration(100)

	if err := e.PlayAll(context.Background()); err != nil {
		t.Fatalf("PlayAll: %v", err)
	}
	clock.advance(30 * time.Second)
	e.tick(clock.now())
	if got := e.State().MixProgress; got == 0 {
		t.Fatal("expected nonzero progress before pause")
	}

	e.PauseAll()
	st := e.State()
	if st.MixProgress != 0 {
		t.Errorf("MixProgress after PauseAll = %v, want 0", st.MixProgress)
	}
	if st.IsAllPlaying {
		t.Error("IsAllPlaying = true after PauseAll")
	}
}

func TestResumeContinuesFromPosition(t *testing.T) {
	e, adapter, clock := newTestEngine(t, 1)
	assign(t, e, "track-0", "a.mp3")
	if err := e.PlayTrack(context.Background(), "track-0"); err != nil {
		t.Fatalf("PlayTrack: %v", err)
	}

	h := adapter.handles["a.mp3"]
	h.pos = 12

	if err := e.PauseTrack("track-0"); err != nil {
		t.Fatalf("PauseTrack: %v", err)
	}
	clock.advance(time.Minute)
	if err := e.PlayTrack(context.Background(), "track-0"); err != nil {
		t.Fatalf("resume PlayTrack: %v", err)
	}

	if len(h.seeks) != 0 {
		t.Errorf("resume seeked (%v), want continue from position", h.seeks)
	}
	if !h.playing {
		t.Error("handle not playing after resume")
	}
}

func TestRestartOnResumeSeeksToZero(t *testing.T) {
	adapter := newFakeAdapter()
	clock := &fakeClock{t: time.Now()}
	e := New(adapter, Options{Clock: clock.now, RestartOnResume: true})
	if _, err := e.AddTrack(); err != nil {
		t.Fatal(err)
	}
	assign(t, e, "track-0", "a.mp3")
	if err := e.PlayTrack(context.Background(), "track-0"); err != nil {
		t.Fatalf("PlayTrack: %v", err)
	}

	h := adapter.handles["a.mp3"]
	h.pos = 12
	if err := e.PauseTrack("track-0"); err != nil {
		t.Fatalf("PauseTrack: %v", err)
	}
	if err := e.PlayTrack(context.Background(), "track-0"); err != nil {
		t.Fatalf("resume PlayTrack: %v", err)
	}

	if len(h.seeks) != 1 || h.seeks[0] != 0 {
		t.Errorf("seeks = %v, want one seek to 0", h.seeks)
	}
}

func TestCloseUnloadsEverything(t *testing.T) {
	e, adapter, _ := newTestEngine(t, 3)
	assign(t, e, "track-0", "a.mp3")
	assign(t, e, "track-1", "b.mp3")
	assign(t, e, "track-2", "c.mp3")
	if err := e.PlayAll(context.Background()); err != nil {
		t.Fatalf("PlayAll: %v", err)
	}

	e.Close()
	e.Close() // idempotent

	for url, h := range adapter.handles {
		if !h.unloaded {
			t.Errorf("handle %s not unloaded after Close", url)
		}
	}
}

func TestSetLoopTimeClampsToCeiling(t *testing.T) {
	e, _, _ := newTestEngine(t, 1)

	if err := e.SetLoopTime("track-0", 0); err != nil {
		t.Fatalf("SetLoopTime: %v", err)
	}
	if got := e.State().Tracks[0].LoopTime; got != 1 {
		t.Errorf("loop time below 1 stored as %v, want 1", got)
	}

	if err := e.SetLoopTime("track-0", MaxDuration+500); err != nil {
		t.Fatalf("SetLoopTime: %v", err)
	}
	if got := e.State().Tracks[0].LoopTime; got != MaxDuration {
		t.Errorf("loop time = %v, want ceiling %v", got, MaxDuration)
	}

	long := true
	e.UpdateMasterSettings(MasterSettingsPatch{IsLongDuration: &long})
	if err := e.SetLoopTime("track-0", MaxDuration+500); err != nil {
		t.Fatalf("SetLoopTime: %v", err)
	}
	if got := e.State().Tracks[0].LoopTime; got != MaxDuration+500 {
		t.Errorf("long mode loop time = %v, want %v", got, MaxDuration+500)
	}
}

func TestLongDurationToggleClampsDown(t *testing.T) {
	e, _, _ := newTestEngine(t, 1)

	long := true
	e.UpdateMasterSettings(MasterSettingsPatch{IsLongDuration: &long})
	e.SetMixDuration(MaxDurationLong)
	if err := e.SetLoopTime("track-0", 7200); err != nil {
		t.Fatalf("SetLoopTime: %v", err)
	}

	long = false
	e.UpdateMasterSettings(MasterSettingsPatch{IsLongDuration: &long})

	st := e.State()
	if st.MixDuration != MaxDuration {
		t.Errorf("mix duration after toggle = %v, want %v", st.MixDuration, MaxDuration)
	}
	if st.Tracks[0].LoopTime != MaxDuration {
		t.Errorf("loop time after toggle = %v, want %v", st.Tracks[0].LoopTime, MaxDuration)
	}
}

func TestMasterSettingsRoundsDuration(t *testing.T) {
	e, _, _ := newTestEngine(t, 0)

	e.SetMixDuration(299.6)
	if got := e.MixDuration(); got != 300 {
		t.Errorf("rounded duration = %v, want 300", got)
	}
	e.SetMixDuration(0.2)
	if got := e.MixDuration(); got != 1 {
		t.Errorf("floor duration = %v, want 1", got)
	}
}

func TestApplyMixPositionalAndCapped(t *testing.T) {
	e, adapter, _ := newTestEngine(t, 2)
	assign(t, e, "track-0", "old.mp3")
	if err := e.PlayTrack(context.Background(), "track-0"); err != nil {
		t.Fatalf("PlayTrack: %v", err)
	}

	snapshots := make([]model.TrackSnapshot, 0, MaxTracks+2)
	for i := 0; i < MaxTracks+2; i++ {
		snapshots = append(snapshots, model.TrackSnapshot{
			Name:     fmt.Sprintf("sound-%d", i),
			SourceID: int64(i + 1),
			URL:      fmt.Sprintf("s%d.mp3", i),
			Volume:   0.5,
			LoopTime: 60,
		})
	}

	e.ApplyMix(snapshots, 600)

	if !adapter.handles["old.mp3"].unloaded {
		t.Error("previous handle survived ApplyMix")
	}

	st := e.State()
	if len(st.Tracks) != MaxTracks {
		t.Fatalf("track count = %d, want %d", len(st.Tracks), MaxTracks)
	}
	for i, ts := range st.Tracks {
		if ts.Name != fmt.Sprintf("sound-%d", i) {
			t.Errorf("slot %d holds %q, want sound-%d", i, ts.Name, i)
		}
		if ts.IsPlaying {
			t.Errorf("slot %d playing right after load", i)
		}
	}
	if st.MixDuration != 600 {
		t.Errorf("mix duration = %v, want 600", st.MixDuration)
	}
}

func TestSnapshotsSkipUnassigned(t *testing.T) {
	e, _, _ := newTestEngine(t, 3)
	assign(t, e, "track-1", "a.mp3")

	snaps := e.Snapshots()
	if len(snaps) != 1 {
		t.Fatalf("snapshot count = %d, want 1", len(snaps))
	}
	if snaps[0].ID != "track-1" || snaps[0].URL != "a.mp3" {
		t.Errorf("snapshot = %+v, want track-1/a.mp3", snaps[0])
	}
}

func TestUnknownTrackOperations(t *testing.T) {
	e, _, _ := newTestEngine(t, 1)

	if err := e.PlayTrack(context.Background(), "track-99"); !errors.Is(err, ErrTrackNotFound) {
		t.Errorf("PlayTrack unknown = %v, want ErrTrackNotFound", err)
	}
	if err := e.PlayTrack(context.Background(), "track-0"); !errors.Is(err, ErrTrackUnassigned) {
		t.Errorf("PlayTrack unassigned = %v, want ErrTrackUnassigned", err)
	}
}
