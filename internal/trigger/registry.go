package trigger

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// ErrInvalidTrigger is returned by [Registry.CreateCustom] when any of the
// four text fields is empty. The registry and store are left untouched.
var ErrInvalidTrigger = errors.New("trigger: name, query, trigger text and notification text must all be non-empty")

// Registry owns the built-in trigger set, the mutable custom set, and the
// currently selected trigger id.
//
// The inference loop only reads (one Active snapshot per cycle); mutation
// happens on the user-initiated creation and selection paths. An RWMutex
// keeps both sides consistent.
type Registry struct {
	store Store

	mu       sync.RWMutex
	builtins []Trigger
	customs  []Trigger
	selected string

	// lastID guards against two creations landing in the same millisecond.
	lastID int64

	// now is stubbed in tests.
	now func() time.Time
}

// NewRegistry loads the persisted custom set from store (best-effort; a
// broken store yields an empty set) and selects the first built-in trigger.
func NewRegistry(store Store) (*Registry, error) {
	customs, err := store.Load()
	if err != nil {
		// Store implementations swallow corruption themselves; an error here
		// is unexpected but still must not take the process down.
		slog.Warn("trigger registry: load failed, starting with no custom triggers", "err", err)
		customs = nil
	}

	r := &Registry{
		store:    store,
		builtins: Builtins(),
		customs:  customs,
		now:      time.Now,
	}
	r.selected = r.builtins[0].ID
	return r, nil
}

// All returns every trigger in order: built-ins first, then customs in
// creation order.
func (r *Registry) All() []Trigger {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Trigger, 0, len(r.builtins)+len(r.customs))
	out = append(out, r.builtins...)
	out = append(out, r.customs...)
	return out
}

// Select sets the active trigger id. Unknown ids are accepted without error;
// resolution then fails softly — [Registry.Active] reports no active trigger
// until a known id is selected.
func (r *Registry) Select(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selected = id
}

// Selected returns the currently selected trigger id.
func (r *Registry) Selected() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selected
}

// Active resolves the selected id to its trigger. ok is false when the
// selected id matches nothing.
func (r *Registry) Active() (t Trigger, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findLocked(r.selected)
}

// findLocked resolves id against built-ins then customs. Callers hold r.mu.
func (r *Registry) findLocked(id string) (Trigger, bool) {
	for _, t := range r.builtins {
		if t.ID == id {
			return t, true
		}
	}
	for _, t := range r.customs {
		if t.ID == id {
			return t, true
		}
	}
	return Trigger{}, false
}

// CreateCustom validates the four fields, assigns a fresh creation-time id,
// appends the trigger to the custom set, persists the whole set, and makes
// the new trigger active.
//
// A persistence failure is logged but does not roll back the in-memory
// mutation: the trigger works for this session and the next save retries the
// whole set anyway.
func (r *Registry) CreateCustom(name, query, triggerText, notificationText string) (Trigger, error) {
	if name == "" || query == "" || triggerText == "" || notificationText == "" {
		return Trigger{}, ErrInvalidTrigger
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t := Trigger{
		ID:               "custom-" + strconv.FormatInt(r.nextIDLocked(), 10),
		Name:             name,
		Query:            query,
		TriggerText:      triggerText,
		NotificationText: notificationText,
	}

	r.customs = append(r.customs, t)
	r.selected = t.ID

	if err := r.store.Save(r.customs); err != nil {
		slog.Warn("trigger registry: persist failed, custom trigger kept in memory only",
			"id", t.ID, "err", err)
	}

	slog.Info("custom trigger created", "id", t.ID, "name", t.Name)
	return t, nil
}

// nextIDLocked returns a unix-millisecond id component, bumped when two
// creations collide within the same millisecond. Callers hold r.mu.
func (r *Registry) nextIDLocked() int64 {
	id := r.now().UnixMilli()
	if id <= r.lastID {
		id = r.lastID + 1
	}
	r.lastID = id
	return id
}

// String summarises the registry for debug logs.
func (r *Registry) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fmt.Sprintf("trigger.Registry{builtins: %d, customs: %d, selected: %q}",
		len(r.builtins), len(r.customs), r.selected)
}
