// Package filesource implements framesource.Source on top of a directory of
// pre-encoded image files. It stands in for file-based video playback: frames
// advance with wall-clock time at a fixed interval and loop forever, so the
// engine sees an endlessly repeating clip.
package filesource

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/framelens/vigil/pkg/framesource"
)

// DefaultFrameInterval is how long each frame is presented before the
// playback advances to the next one.
const DefaultFrameInterval = 200 * time.Millisecond

// mimeByExt maps recognised file extensions to their content type. Files with
// other extensions are ignored during loading.
var mimeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// Compile-time interface check.
var _ framesource.Source = (*Source)(nil)

// Option is a functional option for configuring the playback Source.
type Option func(*Source)

// WithFrameInterval sets the presentation time per frame.
func WithFrameInterval(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.interval = d
		}
	}
}

// Source plays back the image files of a directory as a looping frame stream.
// It is safe for concurrent use; all state after New is read-only except the
// clock, which is only read.
type Source struct {
	frames   []framesource.Frame
	interval time.Duration
	start    time.Time

	// now is stubbed in tests.
	now func() time.Time
}

// New loads every recognised image file under dir (sorted by file name) and
// returns a Source that starts playing immediately. It fails when the
// directory cannot be read or contains no usable frames.
func New(dir string, opts ...Option) (*Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("filesource: read dir %q: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := mimeByExt[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	if len(names) == 0 {
		return nil, fmt.Errorf("filesource: no image files in %q", dir)
	}

	s := &Source{
		interval: DefaultFrameInterval,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("filesource: read %q: %w", name, err)
		}
		s.frames = append(s.frames, framesource.Frame{
			Data: data,
			MIME: mimeByExt[strings.ToLower(filepath.Ext(name))],
		})
	}

	s.start = s.now()
	return s, nil
}

// Capture implements framesource.Source. It is always ready: the frame for
// the current playback position is returned with a fresh capture timestamp.
func (s *Source) Capture() (framesource.Frame, bool) {
	now := s.now()
	idx := int(now.Sub(s.start)/s.interval) % len(s.frames)

	f := s.frames[idx]
	f.CapturedAt = now
	return f, true
}

// Len returns the number of loaded frames.
func (s *Source) Len() int {
	return len(s.frames)
}
