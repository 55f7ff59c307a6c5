package audio

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"ZenMix/storage"
)

// ClockAdapter simulates playback with wall-clock arithmetic. It is the
// backend for headless deployments where the actual audio renders on the
// client; the engine still gets real positions, looping and progress out
// of it. Load performs a HEAD request both as a reachability check and to
// recover the duration metadata stamped on uploaded objects.
type ClockAdapter struct {
	client *http.Client
	now    func() time.Time
}

// NewClockAdapter 创建时钟模拟后端
func NewClockAdapter() *ClockAdapter {
	return &ClockAdapter{
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

func (a *ClockAdapter) Name() string {
	return "clock"
}

// Load probes the URL. An unreachable URL or error status fails with
// LoadError; a reachable URL without duration metadata loads fine with an
// unknown duration.
func (a *ClockAdapter) Load(ctx context.Context, url string) (Handle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, &LoadError{URL: url, Err: err}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &LoadError{URL: url, Err: err}
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, &LoadError{URL: url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	h := &clockHandle{now: a.now}
	if meta := resp.Header.Get("X-Amz-Meta-" + storage.DurationMetaKey); meta != "" {
		if d, err := strconv.ParseFloat(meta, 64); err == nil && d > 0 {
			h.duration = d
			h.durKnown = true
		}
	}
	return h, nil
}

// clockHandle keeps a raw elapsed offset; the natural-loop wrap is applied
// only when reporting the position, mirroring a backend that loops the
// media itself.
type clockHandle struct {
	mu       sync.Mutex
	now      func() time.Time
	playing  bool
	invalid  bool
	startdAt time.Time
	offset   float64 // accumulated seconds while not playing
	duration float64
	durKnown bool
}

func (h *clockHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.invalid {
		return ErrHandleInvalid
	}
	if h.playing {
		return nil
	}
	h.startdAt = h.now()
	h.playing = true
	return nil
}

func (h *clockHandle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.invalid {
		return ErrHandleInvalid
	}
	if !h.playing {
		return nil
	}
	h.offset += h.now().Sub(h.startdAt).Seconds()
	h.playing = false
	return nil
}

func (h *clockHandle) SetVolume(v float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.invalid {
		return ErrHandleInvalid
	}
	// Nothing renders here; the clamp keeps the contract uniform across
	// backends.
	_ = clampUnit(v)
	return nil
}

func (h *clockHandle) Seek(seconds float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.invalid {
		return ErrHandleInvalid
	}
	if seconds < 0 {
		seconds = 0
	}
	if h.durKnown && seconds > h.duration {
		seconds = h.duration
	}
	h.offset = seconds
	if h.playing {
		h.startdAt = h.now()
	}
	return nil
}

func (h *clockHandle) Position() (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.invalid {
		return 0, ErrHandleInvalid
	}
	pos := h.offset
	if h.playing {
		pos += h.now().Sub(h.startdAt).Seconds()
	}
	// Emulate native end-of-media looping when the duration is known.
	if h.durKnown && h.duration > 0 {
		pos = math.Mod(pos, h.duration)
	}
	return pos, nil
}

func (h *clockHandle) Duration() (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.invalid {
		return 0, false
	}
	return h.duration, h.durKnown
}

func (h *clockHandle) Unload() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.invalid {
		return nil
	}
	h.invalid = true
	h.playing = false
	return nil
}
