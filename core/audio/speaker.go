package audio

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
)

const speakerSampleRate beep.SampleRate = 44100

// speakerFormat is the format every source is resampled into before
// buffering, so position math is uniform across sources.
var speakerFormat = beep.Format{SampleRate: speakerSampleRate, NumChannels: 2, Precision: 2}

var (
	speakerInitOnce sync.Once
	speakerInitErr  error
)

// SpeakerAdapter plays through the local sound device via beep. Sources
// are decoded fully into a buffer on Load, which makes Seek and Position
// cheap sample arithmetic and lets the tick loop poll without touching
// the device.
type SpeakerAdapter struct {
	client *http.Client
}

// NewSpeakerAdapter initializes the speaker once for the process.
func NewSpeakerAdapter() (*SpeakerAdapter, error) {
	speakerInitOnce.Do(func() {
		speakerInitErr = speaker.Init(speakerSampleRate, speakerSampleRate.N(100*time.Millisecond))
	})
	if speakerInitErr != nil {
		return nil, fmt.Errorf("failed to initialize speaker: %w", speakerInitErr)
	}
	return &SpeakerAdapter{client: &http.Client{Timeout: 60 * time.Second}}, nil
}

func (a *SpeakerAdapter) Name() string {
	return "speaker"
}

// Load fetches and decodes the source, buffers it at the speaker format
// and attaches a paused playback chain to the speaker mixer.
func (a *SpeakerAdapter) Load(ctx context.Context, url string) (Handle, error) {
	rc, err := a.open(ctx, url)
	if err != nil {
		return nil, &LoadError{URL: url, Err: err}
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch strings.ToLower(path.Ext(url)) {
	case ".wav":
		streamer, format, err = wav.Decode(rc)
	default:
		streamer, format, err = mp3.Decode(rc)
	}
	if err != nil {
		rc.Close()
		return nil, &LoadError{URL: url, Err: err}
	}

	buffer := beep.NewBuffer(speakerFormat)
	if format.SampleRate == speakerSampleRate {
		buffer.Append(streamer)
	} else {
		buffer.Append(beep.Resample(4, format.SampleRate, speakerSampleRate, streamer))
	}
	streamer.Close()

	seeker := buffer.Streamer(0, buffer.Len())
	// Native looping stays on so short gaps between engine poll ticks
	// never produce silence; the engine's loop-time reset is layered on
	// top of it.
	ctrl := &beep.Ctrl{Streamer: beep.Loop(-1, seeker), Paused: true}
	vol := &effects.Volume{Streamer: ctrl, Base: 2, Volume: 0}

	h := &speakerHandle{
		seeker:   seeker,
		ctrl:     ctrl,
		vol:      vol,
		duration: speakerFormat.SampleRate.D(buffer.Len()).Seconds(),
	}
	speaker.Play(vol)
	return h, nil
}

func (a *SpeakerAdapter) open(ctx context.Context, url string) (interface {
	Read(p []byte) (int, error)
	Close() error
}, error) {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := a.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return resp.Body, nil
	}
	return os.Open(strings.TrimPrefix(url, "file://"))
}

type speakerHandle struct {
	mu       sync.Mutex
	seeker   beep.StreamSeeker
	ctrl     *beep.Ctrl
	vol      *effects.Volume
	duration float64
	invalid  bool
}

func (h *speakerHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.invalid {
		return ErrHandleInvalid
	}
	speaker.Lock()
	h.ctrl.Paused = false
	speaker.Unlock()
	return nil
}

func (h *speakerHandle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.invalid {
		return ErrHandleInvalid
	}
	speaker.Lock()
	h.ctrl.Paused = true
	speaker.Unlock()
	return nil
}

func (h *speakerHandle) SetVolume(v float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.invalid {
		return ErrHandleInvalid
	}
	v = clampUnit(v)
	speaker.Lock()
	if v == 0 {
		h.vol.Silent = true
	} else {
		h.vol.Silent = false
		h.vol.Volume = math.Log2(v)
	}
	speaker.Unlock()
	return nil
}

func (h *speakerHandle) Seek(seconds float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.invalid {
		return ErrHandleInvalid
	}
	if seconds < 0 {
		seconds = 0
	}
	if seconds > h.duration {
		seconds = h.duration
	}
	speaker.Lock()
	err := h.seeker.Seek(speakerFormat.SampleRate.N(time.Duration(seconds * float64(time.Second))))
	speaker.Unlock()
	if err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	return nil
}

func (h *speakerHandle) Position() (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.invalid {
		return 0, ErrHandleInvalid
	}
	speaker.Lock()
	pos := h.seeker.Position()
	speaker.Unlock()
	return speakerFormat.SampleRate.D(pos).Seconds(), nil
}

func (h *speakerHandle) Duration() (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.invalid {
		return 0, false
	}
	return h.duration, true
}

func (h *speakerHandle) Unload() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.invalid {
		return nil
	}
	h.invalid = true
	speaker.Lock()
	h.ctrl.Paused = true
	h.ctrl.Streamer = nil
	speaker.Unlock()
	return nil
}
