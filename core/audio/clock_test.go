package audio

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ZenMix/storage"
)

func newClockServer(t *testing.T, status int, duration string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("probe method = %s, want HEAD", r.Method)
		}
		if duration != "" {
			w.Header().Set("X-Amz-Meta-"+storage.DurationMetaKey, duration)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClockLoadReadsDurationMetadata(t *testing.T) {
	srv := newClockServer(t, http.StatusOK, "42.5")

	a := NewClockAdapter()
	h, err := a.Load(context.Background(), srv.URL+"/audio/rain.mp3")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer h.Unload()

	seconds, known := h.Duration()
	if !known || seconds != 42.5 {
		t.Errorf("Duration() = %v, %v, want 42.5, true", seconds, known)
	}
}

func TestClockLoadWithoutMetadata(t *testing.T) {
	srv := newClockServer(t, http.StatusOK, "")

	a := NewClockAdapter()
	h, err := a.Load(context.Background(), srv.URL+"/audio/rain.mp3")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer h.Unload()

	if _, known := h.Duration(); known {
		t.Error("duration known without metadata")
	}
}

func TestClockLoadErrors(t *testing.T) {
	a := NewClockAdapter()

	srv := newClockServer(t, http.StatusNotFound, "")
	if _, err := a.Load(context.Background(), srv.URL+"/missing.mp3"); err == nil {
		t.Error("Load on 404 succeeded, want LoadError")
	} else {
		var loadErr *LoadError
		if !errors.As(err, &loadErr) {
			t.Errorf("Load error type = %T, want *LoadError", err)
		}
	}

	if _, err := a.Load(context.Background(), "http://127.0.0.1:1/unreachable.mp3"); err == nil {
		t.Error("Load on unreachable host succeeded, want LoadError")
	}
}

func TestClockPositionAdvancesOnlyWhilePlaying(t *testing.T) {
	clock := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	h := &clockHandle{now: func() time.Time { return clock }}

	pos, err := h.Position()
	if err != nil || pos != 0 {
		t.Fatalf("initial Position() = %v, %v", pos, err)
	}

	if err := h.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	clock = clock.Add(7 * time.Second)
	if pos, _ := h.Position(); pos != 7 {
		t.Errorf("position while playing = %v, want 7", pos)
	}

	if err := h.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	clock = clock.Add(time.Hour)
	if pos, _ := h.Position(); pos != 7 {
		t.Errorf("position while paused = %v, want 7", pos)
	}

	// Resume continues from the accumulated offset.
	if err := h.Play(); err != nil {
		t.Fatalf("resume Play: %v", err)
	}
	clock = clock.Add(3 * time.Second)
	if pos, _ := h.Position(); pos != 10 {
		t.Errorf("position after resume = %v, want 10", pos)
	}
}

func TestClockPositionWrapsAtDuration(t *testing.T) {
	clock := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	h := &clockHandle{now: func() time.Time { return clock }, duration: 10, durKnown: true}

	if err := h.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	clock = clock.Add(23 * time.Second)
	if pos, _ := h.Position(); pos != 3 {
		t.Errorf("wrapped position = %v, want 3", pos)
	}
}

func TestClockSeekClamps(t *testing.T) {
	clock := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	h := &clockHandle{now: func() time.Time { return clock }, duration: 30, durKnown: true}

	if err := h.Seek(-5); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if pos, _ := h.Position(); pos != 0 {
		t.Errorf("position after negative seek = %v, want 0", pos)
	}

	if err := h.Seek(99); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if pos, _ := h.Position(); pos != 0 {
		// 30 wraps to 0 through the duration emulation
		t.Errorf("position after over-range seek = %v, want 0", pos)
	}

	if err := h.Seek(12); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if pos, _ := h.Position(); pos != 12 {
		t.Errorf("position after seek = %v, want 12", pos)
	}
}

func TestClockUnloadInvalidatesHandle(t *testing.T) {
	h := &clockHandle{now: time.Now}

	if err := h.Unload(); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if err := h.Unload(); err != nil {
		t.Errorf("second Unload = %v, want nil", err)
	}

	if err := h.Play(); !errors.Is(err, ErrHandleInvalid) {
		t.Errorf("Play after Unload = %v, want ErrHandleInvalid", err)
	}
	if err := h.Pause(); !errors.Is(err, ErrHandleInvalid) {
		t.Errorf("Pause after Unload = %v, want ErrHandleInvalid", err)
	}
	if err := h.SetVolume(0.5); !errors.Is(err, ErrHandleInvalid) {
		t.Errorf("SetVolume after Unload = %v, want ErrHandleInvalid", err)
	}
	if err := h.Seek(0); !errors.Is(err, ErrHandleInvalid) {
		t.Errorf("Seek after Unload = %v, want ErrHandleInvalid", err)
	}
	if _, err := h.Position(); !errors.Is(err, ErrHandleInvalid) {
		t.Errorf("Position after Unload = %v, want ErrHandleInvalid", err)
	}
	if _, known := h.Duration(); known {
		t.Error("Duration known after Unload")
	}
}
