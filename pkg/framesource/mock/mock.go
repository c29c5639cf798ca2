// Package mock provides a test double for the framesource.Source interface.
//
// Frames are served from a script: each call to Capture consumes the next
// [Step]. When the script is exhausted the last step repeats, so a single-step
// mock behaves like a steady camera.
package mock

import (
	"sync"

	"github.com/framelens/vigil/pkg/framesource"
)

// Step is one scripted Capture outcome.
type Step struct {
	// Frame is returned when Ready is true.
	Frame framesource.Frame

	// Ready is the second return value of Capture.
	Ready bool
}

// Source is a mock implementation of framesource.Source.
// The zero value reports not-ready forever.
type Source struct {
	mu sync.Mutex

	// Steps is the Capture script. Consumed in order; the final step repeats.
	Steps []Step

	// Captures counts every Capture call.
	Captures int

	next int
}

// Ready returns a Source that always serves frame.
func Ready(frame framesource.Frame) *Source {
	return &Source{Steps: []Step{{Frame: frame, Ready: true}}}
}

// Capture implements framesource.Source.
func (s *Source) Capture() (framesource.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Captures++
	if len(s.Steps) == 0 {
		return framesource.Frame{}, false
	}
	step := s.Steps[s.next]
	if s.next < len(s.Steps)-1 {
		s.next++
	}
	return step.Frame, step.Ready
}

// CaptureCount returns the number of Capture calls so far.
func (s *Source) CaptureCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Captures
}
