package export

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type pngSource struct{}

func (pngSource) WritePNG(w io.Writer) error {
	return png.Encode(w, image.NewRGBA(image.Rect(0, 0, 4, 4)))
}

type failingSource struct{}

func (failingSource) WritePNG(io.Writer) error {
	return errors.New("no frame")
}

func TestNewRejectsInvalidInterval(t *testing.T) {
	if _, err := New(t.TempDir(), 0, pngSource{}); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
}

func TestExportWritesLatest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "frames")
	e, err := New(dir, time.Hour, pngSource{}, WithTimestamped(true))
	if err != nil {
		t.Fatalf("failed to create exporter: %v", err)
	}

	path, err := e.Export()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != filepath.Join(dir, LatestName) {
		t.Fatalf("expected latest path, got %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("expected a valid PNG, got %v", err)
	}
	if img.Bounds().Dx() != 4 {
		t.Fatalf("expected width 4, got %d", img.Bounds().Dx())
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "canvas-*.png"))
	if len(matches) != 1 {
		t.Fatalf("expected 1 timestamped export, got %d", len(matches))
	}

	if n, lastErr := e.Stats(); n != 1 || lastErr != nil {
		t.Fatalf("expected 1 export and no error, got %d, %v", n, lastErr)
	}
}

func TestExportFailureKeepsPreviousFile(t *testing.T) {
	dir := t.TempDir()
	latest := filepath.Join(dir, LatestName)
	if err := os.WriteFile(latest, []byte("previous"), 0o644); err != nil {
		t.Fatalf("failed to seed file: %v", err)
	}

	e, err := New(dir, time.Hour, failingSource{})
	if err != nil {
		t.Fatalf("failed to create exporter: %v", err)
	}
	if _, err := e.Export(); err == nil {
		t.Fatal("expected export error")
	}

	data, _ := os.ReadFile(latest)
	if string(data) != "previous" {
		t.Fatalf("expected previous file untouched, got %q", data)
	}
	if _, lastErr := e.Stats(); lastErr == nil {
		t.Fatal("expected last error to be recorded")
	}

	temps, _ := filepath.Glob(filepath.Join(dir, ".export-*"))
	if len(temps) != 0 {
		t.Fatalf("expected temp files cleaned up, got %v", temps)
	}
}

func TestScheduleExports(t *testing.T) {
	e, err := New(t.TempDir(), time.Second, pngSource{})
	if err != nil {
		t.Fatalf("failed to create exporter: %v", err)
	}
	e.Start()
	defer e.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if n, _ := e.Stats(); n > 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("expected a scheduled export within 5s")
}
