package engine

import "sync"

// FeedCapacity is how many results the rolling feed retains.
const FeedCapacity = 3

// Result is a single unit of feed output. Immutable once created.
type Result struct {
	// ID is unique and monotonically increasing across one engine's lifetime.
	ID int64

	// Text is the display string: a free-form answer, or the trigger's
	// notification text.
	Text string

	// Notification is true when the result was produced by a trigger match.
	Notification bool
}

// Feed is the bounded, newest-first result history. Only the engine mutates
// it; everything else reads snapshots. Safe for concurrent use.
type Feed struct {
	mu       sync.Mutex
	results  []Result
	capacity int
}

// newFeed creates an empty feed with the given capacity (FeedCapacity when
// n <= 0).
func newFeed(n int) *Feed {
	if n <= 0 {
		n = FeedCapacity
	}
	return &Feed{capacity: n}
}

// push prepends r, evicting the oldest entry when the feed is full.
func (f *Feed) push(r Result) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.results = append([]Result{r}, f.results...)
	if len(f.results) > f.capacity {
		f.results = f.results[:f.capacity]
	}
}

// clear empties the feed. Invoked when the stream stops.
func (f *Feed) clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = nil
}

// Snapshot returns a copy of the feed, newest first.
func (f *Feed) Snapshot() []Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Result, len(f.results))
	copy(out, f.results)
	return out
}

// Len returns the current number of results.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results)
}
