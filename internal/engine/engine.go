// Package engine implements the continuous visual-query loop: capture a
// frame, ask the vision endpoint two questions about it in parallel, check
// the trigger answer for a match, update the rolling result feed, sleep the
// pacing interval, repeat.
//
// Cycles are strictly sequential. The next one starts only after the
// previous cycle's capture, both inference calls, and feed update have
// completed. With two parallel questions per cycle that self-throttles the
// endpoint to at most two in-flight requests; when inference runs slower
// than the pacing interval, throughput drops instead of requests queuing.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/framelens/vigil/internal/observe"
	"github.com/framelens/vigil/internal/trigger"
	"github.com/framelens/vigil/pkg/framesource"
	"github.com/framelens/vigil/pkg/provider/vision"
)

// FallbackQuery is used when the free-text query is blank.
const FallbackQuery = "summarize what you see in one short sentence"

// DefaultPacing is the fixed delay between the end of one cycle and the
// start of the next.
const DefaultPacing = 100 * time.Millisecond

// State reports whether the engine is currently streaming.
type State int

const (
	// Idle means no loop is running.
	Idle State = iota

	// Active means the loop is capturing and inferring.
	Active
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// ErrAlreadyActive is returned by [Engine.Start] when a loop is already
// running.
var ErrAlreadyActive = errors.New("engine: stream already active")

// Config wires an Engine's collaborators.
type Config struct {
	// Source supplies frames. Required.
	Source framesource.Source

	// Querier answers questions about frames. Required.
	Querier vision.Querier

	// Triggers resolves the active detection trigger each cycle. Required.
	Triggers *trigger.Registry

	// Query is the initial free-text query. Blank falls back to
	// [FallbackQuery]; it can be changed at runtime via [Engine.SetQuery].
	Query string

	// Pacing overrides [DefaultPacing] when positive.
	Pacing time.Duration

	// Metrics receives engine instrumentation. Nil uses
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// OnResult, when non-nil, is called for every result pushed onto the
	// feed, after the push. Called from the loop goroutine.
	OnResult func(Result)

	// OnError, when non-nil, is called when an inference failure aborts a
	// cycle's feed update. The loop itself keeps running. Called from the
	// loop goroutine.
	OnError func(error)
}

// Engine runs the visual-query loop. All exported methods are safe for
// concurrent use.
type Engine struct {
	source   framesource.Source
	querier  vision.Querier
	triggers *trigger.Registry
	pacing   time.Duration
	metrics  *observe.Metrics
	onResult func(Result)
	onError  func(error)

	feed *Feed

	mu     sync.Mutex
	state  State
	done   chan struct{}
	loopWG sync.WaitGroup
	query  string
	lastID int64

	// now and sleep are stubbed in tests.
	now   func() time.Time
	sleep func(ctx context.Context, done <-chan struct{}, d time.Duration) bool
}

// New creates an Engine in the Idle state.
func New(cfg Config) (*Engine, error) {
	if cfg.Source == nil {
		return nil, errors.New("engine: Source is required")
	}
	if cfg.Querier == nil {
		return nil, errors.New("engine: Querier is required")
	}
	if cfg.Triggers == nil {
		return nil, errors.New("engine: Triggers is required")
	}

	pacing := cfg.Pacing
	if pacing <= 0 {
		pacing = DefaultPacing
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	return &Engine{
		source:   cfg.Source,
		querier:  cfg.Querier,
		triggers: cfg.Triggers,
		pacing:   pacing,
		metrics:  metrics,
		onResult: cfg.OnResult,
		onError:  cfg.OnError,
		feed:     newFeed(FeedCapacity),
		query:    cfg.Query,
		now:      time.Now,
		sleep:    sleepInterruptible,
	}, nil
}

// Feed returns the rolling result feed.
func (e *Engine) Feed() *Feed {
	return e.feed
}

// State returns the current stream state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SetQuery replaces the free-text query. Takes effect from the next cycle.
func (e *Engine) SetQuery(q string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.query = q
}

// Query returns the current free-text query (possibly blank).
func (e *Engine) Query() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.query
}

// Start transitions Idle → Active and launches the loop goroutine. It
// returns [ErrAlreadyActive] if a loop is already running. ctx cancellation
// stops the loop the same way [Engine.Stop] does.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state == Active {
		e.mu.Unlock()
		return ErrAlreadyActive
	}
	e.state = Active
	e.done = make(chan struct{})
	done := e.done
	e.loopWG.Add(1)
	e.mu.Unlock()

	e.metrics.ActiveStreams.Add(ctx, 1)
	slog.Info("stream started", "pacing", e.pacing)

	go e.run(ctx, done)
	return nil
}

// Stop transitions Active → Idle and clears the feed. The in-flight cycle,
// if any, is allowed to finish; its late results are discarded. Stop does
// not wait for in-flight network calls and is safe to call multiple times.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state != Active {
		e.mu.Unlock()
		return
	}
	e.state = Idle
	close(e.done)
	e.mu.Unlock()

	e.feed.clear()
	slog.Info("stream stopped")
}

// Wait blocks until the loop goroutine has exited. Useful for tests and for
// orderly shutdown; streaming can be restarted afterwards.
func (e *Engine) Wait() {
	e.loopWG.Wait()
}

// run is the sequential cycle loop. done belongs to this run; a Stop/Start
// pair swaps in a fresh channel for the next run.
func (e *Engine) run(ctx context.Context, done <-chan struct{}) {
	defer e.loopWG.Done()
	defer e.metrics.ActiveStreams.Add(context.WithoutCancel(ctx), -1)

	for {
		select {
		case <-ctx.Done():
			e.Stop()
			return
		case <-done:
			return
		default:
		}

		e.cycle(ctx, done)

		if !e.sleep(ctx, done, e.pacing) {
			// Interrupted by Stop or ctx; the top of the loop exits.
			continue
		}
	}
}

// cycle performs one capture → dual inference → feed update pass.
func (e *Engine) cycle(ctx context.Context, done <-chan struct{}) {
	start := e.now()

	frame, ok := e.source.Capture()
	if !ok {
		// Source has nothing decodable buffered. Skip, not a failure.
		e.metrics.RecordCycle(ctx, observe.CycleSkipped, e.now().Sub(start).Seconds())
		return
	}
	image := frame.DataURI()

	freeQuery := strings.TrimSpace(e.Query())
	if freeQuery == "" {
		freeQuery = FallbackQuery
	}

	// One consistent snapshot of the active trigger per cycle; registry
	// mutations land on the next cycle.
	trig, hasTrigger := e.triggers.Active()

	var summary, trigAnswer string
	var g errgroup.Group
	g.Go(func() error {
		var err error
		summary, err = e.timedQuery(ctx, "summary", image, freeQuery)
		return err
	})
	if hasTrigger {
		g.Go(func() error {
			var err error
			trigAnswer, err = e.timedQuery(ctx, "trigger", image, trig.Query)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		e.metrics.RecordCycle(ctx, observe.CycleError, e.now().Sub(start).Seconds())
		slog.Warn("cycle aborted", "err", err)
		if e.onError != nil {
			e.onError(err)
		}
		return
	}

	// Stop may have landed while the calls were in flight; their results
	// are discarded once the state has moved to Idle.
	select {
	case <-done:
		return
	default:
	}

	if hasTrigger && containsFold(trigAnswer, trig.TriggerText) {
		e.metrics.RecordDetection(ctx, trig.ID)
		slog.Info("detection triggered", "trigger", trig.ID, "match", trig.TriggerText)
		// The notification replaces this cycle's regular-answer update.
		e.emit(Result{ID: e.nextID(), Text: trig.NotificationText, Notification: true})
		e.metrics.RecordCycle(ctx, observe.CycleOK, e.now().Sub(start).Seconds())
		return
	}

	if summary != "" {
		e.emit(Result{ID: e.nextID(), Text: summary, Notification: false})
		e.metrics.RecordCycle(ctx, observe.CycleOK, e.now().Sub(start).Seconds())
		return
	}

	e.metrics.RecordCycle(ctx, observe.CycleIdle, e.now().Sub(start).Seconds())
}

// timedQuery wraps one inference call with metrics.
func (e *Engine) timedQuery(ctx context.Context, kind, image, question string) (string, error) {
	start := e.now()
	answer, err := e.querier.Query(ctx, image, question)
	status := "ok"
	if err != nil {
		status = "error"
	}
	e.metrics.RecordInference(ctx, kind, status, e.now().Sub(start).Seconds())
	return answer, err
}

// emit pushes a result and notifies the callback. Results arriving after the
// state has moved to Idle are dropped; Stop clears the feed only after
// setting Idle, so nothing pushed here survives a stop.
func (e *Engine) emit(r Result) {
	e.mu.Lock()
	if e.state != Active {
		e.mu.Unlock()
		return
	}
	e.feed.push(r)
	e.mu.Unlock()

	if e.onResult != nil {
		e.onResult(r)
	}
}

// nextID returns a unix-millisecond id, bumped when cycles complete within
// the same millisecond.
func (e *Engine) nextID() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.now().UnixMilli()
	if id <= e.lastID {
		id = e.lastID + 1
	}
	e.lastID = id
	return id
}

// containsFold reports whether s contains substr, ignoring case.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// sleepInterruptible waits d, returning false early when ctx or done fires.
func sleepInterruptible(ctx context.Context, done <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-done:
		return false
	case <-t.C:
		return true
	}
}
