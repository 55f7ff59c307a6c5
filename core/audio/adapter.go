// Package audio normalizes the playback backends behind one adapter
// interface. The backend is chosen once at startup; callers never branch
// on platform.
package audio

import (
	"context"
	"errors"
	"fmt"
)

// ErrHandleInvalid is returned by every operation on an unloaded handle.
var ErrHandleInvalid = errors.New("audio handle has been unloaded")

// LoadError reports a failed load: unreachable URL, bad status or an
// unsupported format. A load that fails never yields a half-initialized
// handle.
type LoadError struct {
	URL string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load audio from %s: %v", e.URL, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Adapter creates playback handles for audio sources.
type Adapter interface {
	// Name identifies the backend ("speaker" or "clock").
	Name() string
	// Load resolves a URL into a playable handle. The handle starts
	// paused at position 0. Duration may still be unknown when Load
	// returns; callers must treat unknown as a distinct state.
	Load(ctx context.Context, url string) (Handle, error)
}

// Handle is one active connection to the playback facility. A handle is
// owned by exactly one track. All operations after Unload fail with
// ErrHandleInvalid; Unload itself is idempotent.
type Handle interface {
	// Play starts or resumes playback from the current position.
	// Idempotent while playing.
	Play() error
	// Pause halts playback, keeping the position. Idempotent while paused.
	Pause() error
	// SetVolume applies a gain in [0,1]. Out-of-range input is clamped,
	// never rejected.
	SetVolume(v float64) error
	// Seek moves the position, clamping to [0, duration] when the
	// duration is known.
	Seek(seconds float64) error
	// Position reports the current playback position in seconds.
	Position() (float64, error)
	// Duration reports the natural media duration. known is false until
	// metadata is available; callers must not treat unknown as zero.
	Duration() (seconds float64, known bool)
	// Unload releases the underlying resources.
	Unload() error
}

// clampUnit clamps a gain value to [0,1].
func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
