package filesource

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeFrames creates a temp dir holding the given name→content image files.
func writeFrames(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestNewRejectsEmptyDir(t *testing.T) {
	if _, err := New(t.TempDir()); err == nil {
		t.Fatal("expected error for directory without image files")
	}
}

func TestNewIgnoresUnrecognisedFiles(t *testing.T) {
	dir := writeFrames(t, map[string]string{
		"a.jpg":      "frame-a",
		"notes.txt":  "not a frame",
		"clip.mp4":   "not a frame either",
		"b.png":      "frame-b",
		".hidden.md": "nope",
	})

	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestCaptureAdvancesAndLoops(t *testing.T) {
	dir := writeFrames(t, map[string]string{
		"00.jpg": "frame-0",
		"01.jpg": "frame-1",
		"02.jpg": "frame-2",
	})

	s, err := New(dir, WithFrameInterval(100*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	// Pin the clock so playback position is deterministic.
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	s.now = func() time.Time { return clock }
	s.start = base

	cases := []struct {
		elapsed time.Duration
		want    string
	}{
		{0, "frame-0"},
		{50 * time.Millisecond, "frame-0"},
		{100 * time.Millisecond, "frame-1"},
		{250 * time.Millisecond, "frame-2"},
		{300 * time.Millisecond, "frame-0"}, // wrapped around
		{410 * time.Millisecond, "frame-1"},
	}
	for _, tc := range cases {
		clock = base.Add(tc.elapsed)
		f, ok := s.Capture()
		if !ok {
			t.Fatalf("elapsed %v: Capture not ready", tc.elapsed)
		}
		if string(f.Data) != tc.want {
			t.Errorf("elapsed %v: frame = %q, want %q", tc.elapsed, f.Data, tc.want)
		}
		if !f.CapturedAt.Equal(clock) {
			t.Errorf("elapsed %v: CapturedAt = %v, want %v", tc.elapsed, f.CapturedAt, clock)
		}
	}
}

func TestCaptureSetsMIMEFromExtension(t *testing.T) {
	dir := writeFrames(t, map[string]string{"only.png": "png-bytes"})

	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	f, ok := s.Capture()
	if !ok {
		t.Fatal("Capture not ready")
	}
	if f.MIME != "image/png" {
		t.Errorf("MIME = %q, want image/png", f.MIME)
	}
}
