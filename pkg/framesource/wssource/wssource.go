// Package wssource implements framesource.Source fed by a WebSocket
// publisher. A capture client (browser, camera gateway, test harness)
// connects and pushes encoded stills as binary messages; each message
// replaces the latest frame. The engine polls Capture and sees whatever the
// publisher most recently delivered.
//
// The Source doubles as an http.Handler so the embedding application can
// mount it on whatever mux it already runs.
package wssource

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/framelens/vigil/pkg/framesource"
)

// DefaultStaleAfter is how long the latest frame stays valid without the
// publisher delivering a newer one. After that Capture reports not-ready
// again until fresh frames arrive.
const DefaultStaleAfter = 5 * time.Second

// Compile-time interface checks.
var (
	_ framesource.Source = (*Source)(nil)
	_ http.Handler       = (*Source)(nil)
)

// Option is a functional option for configuring the Source.
type Option func(*Source)

// WithStaleAfter sets the staleness window. Zero or negative disables
// staleness checking entirely — the last frame stays valid forever.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Source) {
		s.staleAfter = d
	}
}

// Source holds the most recently pushed frame. Safe for concurrent use.
type Source struct {
	staleAfter time.Duration

	mu      sync.Mutex
	frame   framesource.Frame
	hasAny  bool
	conn    *websocket.Conn // current publisher, nil when disconnected
	connGen uint64

	// now is stubbed in tests.
	now func() time.Time
}

// New creates an empty Source. Capture reports not-ready until the first
// frame is pushed.
func New(opts ...Option) *Source {
	s := &Source{
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Capture implements framesource.Source. It returns the latest pushed frame,
// or not-ready when nothing has arrived yet or the last frame is older than
// the staleness window.
func (s *Source) Capture() (framesource.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasAny {
		return framesource.Frame{}, false
	}
	if s.staleAfter > 0 && s.now().Sub(s.frame.CapturedAt) > s.staleAfter {
		return framesource.Frame{}, false
	}
	return s.frame, true
}

// ServeHTTP accepts a publisher connection and consumes its frames until the
// connection drops or a newer publisher supersedes it. Only one publisher is
// active at a time; accepting a new one closes the previous connection.
func (s *Source) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("wssource: accept failed", "err", err)
		return
	}

	mime := r.URL.Query().Get("mime")
	if mime == "" {
		mime = framesource.DefaultMIME
	}

	gen := s.adoptPublisher(conn)
	slog.Info("wssource: publisher connected", "remote", r.RemoteAddr, "mime", mime)

	// Read until the publisher goes away or is superseded. No read deadline:
	// a silent publisher just means stale frames, which Capture handles.
	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		if typ != websocket.MessageBinary || len(data) == 0 {
			continue
		}
		s.storeFrame(framesource.Frame{
			Data:       data,
			MIME:       mime,
			CapturedAt: s.now(),
		})
	}

	s.releasePublisher(gen)
	conn.Close(websocket.StatusNormalClosure, "done")
	slog.Info("wssource: publisher disconnected", "remote", r.RemoteAddr)
}

// adoptPublisher installs conn as the active publisher, closing any previous
// one, and returns the new connection generation.
func (s *Source) adoptPublisher(conn *websocket.Conn) uint64 {
	s.mu.Lock()
	old := s.conn
	s.conn = conn
	s.connGen++
	gen := s.connGen
	s.mu.Unlock()

	if old != nil {
		old.Close(websocket.StatusPolicyViolation, "superseded by a new publisher")
	}
	return gen
}

// releasePublisher clears the active connection, unless a newer publisher has
// already taken over.
func (s *Source) releasePublisher(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connGen == gen {
		s.conn = nil
	}
}

// storeFrame replaces the latest frame.
func (s *Source) storeFrame(f framesource.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = f
	s.hasAny = true
}

// Close disconnects the active publisher, if any.
func (s *Source) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusGoingAway, "source closed")
	}
	return nil
}
