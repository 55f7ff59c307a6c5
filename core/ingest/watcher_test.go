package ingest

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"ZenMix/model"
)

type ingestedSound struct {
	name        string
	category    string
	fileName    string
	contentType string
	size        int64
	duration    float64
	bytes       []byte
}

type fakeCatalog struct {
	sounds []ingestedSound
}

func (c *fakeCatalog) IngestBuiltIn(ctx context.Context, name, category, fileName string, r io.Reader, size int64, contentType string, durationSeconds float64) (*model.AudioTrack, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	c.sounds = append(c.sounds, ingestedSound{
		name:        name,
		category:    category,
		fileName:    fileName,
		contentType: contentType,
		size:        size,
		duration:    durationSeconds,
		bytes:       data,
	})
	return &model.AudioTrack{
		ID:        int64(len(c.sounds)),
		Name:      name,
		Category:  category,
		Duration:  durationSeconds,
		IsBuiltIn: true,
	}, nil
}

// writeWAV writes a minimal mono 16-bit PCM file with the given number of
// frames at 8kHz.
func writeWAV(t *testing.T, path string, frames int) {
	t.Helper()

	const sampleRate = 8000
	dataLen := frames * 2

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(make([]byte, dataLen))

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
}

func TestIngestRegistersDroppedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "morning-rain.wav")
	writeWAV(t, path, 4000) // 0.5s at 8kHz

	catalog := &fakeCatalog{}
	w := NewWatcher(dir, catalog)

	// The watcher runs on a plain background context: no request, no user.
	w.ingest(context.Background(), path)

	if len(catalog.sounds) != 1 {
		t.Fatalf("ingested sounds = %d, want 1", len(catalog.sounds))
	}
	got := catalog.sounds[0]
	if got.name != "morning-rain" {
		t.Errorf("name = %q, want morning-rain", got.name)
	}
	if got.category != model.CategoryUpload {
		t.Errorf("category = %q, want %q", got.category, model.CategoryUpload)
	}
	if got.fileName != "morning-rain.wav" {
		t.Errorf("file name = %q", got.fileName)
	}
	if got.contentType != "audio/wav" {
		t.Errorf("content type = %q, want audio/wav", got.contentType)
	}
	if got.duration != 0.5 {
		t.Errorf("probed duration = %v, want 0.5", got.duration)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.size != info.Size() || int64(len(got.bytes)) != info.Size() {
		t.Errorf("size = %d, read %d bytes, file is %d", got.size, len(got.bytes), info.Size())
	}
}

func TestIngestUndecodableFileStillRegisters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.mp3")
	if err := os.WriteFile(path, []byte("not audio at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	catalog := &fakeCatalog{}
	w := NewWatcher(dir, catalog)
	w.ingest(context.Background(), path)

	if len(catalog.sounds) != 1 {
		t.Fatalf("ingested sounds = %d, want 1", len(catalog.sounds))
	}
	got := catalog.sounds[0]
	if got.contentType != "audio/mpeg" {
		t.Errorf("content type = %q, want audio/mpeg", got.contentType)
	}
	// Unknown duration is 0, never a guess.
	if got.duration != 0 {
		t.Errorf("duration = %v, want 0", got.duration)
	}
}

func TestIngestIgnoresMissingFile(t *testing.T) {
	catalog := &fakeCatalog{}
	w := NewWatcher(t.TempDir(), catalog)

	w.ingest(context.Background(), filepath.Join(w.dir, "ghost.mp3"))

	if len(catalog.sounds) != 0 {
		t.Errorf("ingested sounds = %d, want 0", len(catalog.sounds))
	}
}

func TestAudioFileFilter(t *testing.T) {
	cases := map[string]bool{
		"rain.mp3":      true,
		"RAIN.WAV":      true,
		"notes.txt":     false,
		"cover.jpg":     false,
		"archive.mp3.1": false,
	}
	for path, want := range cases {
		if got := audioFile(path); got != want {
			t.Errorf("audioFile(%q) = %v, want %v", path, got, want)
		}
	}
}
