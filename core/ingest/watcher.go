// Package ingest watches a local drop directory and feeds new audio
// files into the catalog automatically.
package ingest

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ZenMix/logger"
	"ZenMix/model"

	"github.com/fsnotify/fsnotify"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

// settleDelay 等待文件写入完成
const settleDelay = 500 * time.Millisecond

// Catalog is the slice of the catalog service the watcher feeds. Ingested
// files become ownerless built-in sounds: the watcher runs outside any
// request, so there is no user to stamp.
type Catalog interface {
	IngestBuiltIn(ctx context.Context, name, category, fileName string, r io.Reader, size int64, contentType string, durationSeconds float64) (*model.AudioTrack, error)
}

// Watcher uploads files dropped into a directory as catalog sounds.
type Watcher struct {
	dir     string
	catalog Catalog
}

// NewWatcher 创建目录监听器
func NewWatcher(dir string, c Catalog) *Watcher {
	return &Watcher{dir: dir, catalog: c}
}

// Run blocks watching the directory until ctx is cancelled. Only create
// events for .mp3/.wav files are acted on; everything else is ignored.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return err
	}
	logger.Info("ingest watcher started", logger.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) || !audioFile(event.Name) {
				continue
			}
			w.ingest(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("ingest watcher error", logger.ErrorField(err))
		}
	}
}

// audioFile reports whether the path is worth ingesting.
func audioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".mp3" || ext == ".wav"
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	// Writers are still flushing right after the create event; wait for
	// the size to settle before reading.
	var lastSize int64 = -1
	for {
		info, err := os.Stat(path)
		if err != nil {
			logger.Warn("ingest stat failed", logger.String("file", path), logger.ErrorField(err))
			return
		}
		if info.Size() == lastSize {
			break
		}
		lastSize = info.Size()
		select {
		case <-ctx.Done():
			return
		case <-time.After(settleDelay):
		}
	}

	duration := probeDuration(path)

	f, err := os.Open(path)
	if err != nil {
		logger.Warn("ingest open failed", logger.String("file", path), logger.ErrorField(err))
		return
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	contentType := "audio/mpeg"
	if strings.ToLower(filepath.Ext(path)) == ".wav" {
		contentType = "audio/wav"
	}

	sound, err := w.catalog.IngestBuiltIn(ctx, name, model.CategoryUpload, filepath.Base(path), f, lastSize, contentType, duration)
	if err != nil {
		logger.Error("ingest upload failed", logger.String("file", path), logger.ErrorField(err))
		return
	}
	logger.Info("ingested sound from drop directory",
		logger.Int64("soundId", sound.ID),
		logger.String("file", path),
		logger.Float64("duration", duration))
}

// probeDuration decodes just enough to learn the natural duration.
// Returns 0 when the file cannot be decoded.
func probeDuration(path string) float64 {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}

	var (
		streamer interface {
			Len() int
			Close() error
		}
		sampleRate float64
	)
	if strings.ToLower(filepath.Ext(path)) == ".wav" {
		s, format, err := wav.Decode(f)
		if err != nil {
			f.Close()
			return 0
		}
		streamer, sampleRate = s, float64(format.SampleRate)
	} else {
		s, format, err := mp3.Decode(f)
		if err != nil {
			f.Close()
			return 0
		}
		streamer, sampleRate = s, float64(format.SampleRate)
	}
	defer streamer.Close()

	if sampleRate <= 0 {
		return 0
	}
	return float64(streamer.Len()) / sampleRate
}
