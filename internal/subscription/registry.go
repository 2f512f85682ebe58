// Package subscription tracks the push listeners one view controller holds
// open, so they can be torn down together.
package subscription

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/dukerupert/huddle/internal/remote"
)

// Handle identifies one registered listener.
type Handle string

type entry struct {
	name     string
	listener remote.Listener
}

// Registry is owned by a single controller. The zero value is not usable;
// call NewRegistry.
type Registry struct {
	mu      sync.Mutex
	entries map[Handle]entry
	closed  bool
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{entries: make(map[Handle]entry), logger: logger}
}

// Add takes ownership of l. After Close the listener is closed at once and
// the empty handle is returned.
func (r *Registry) Add(name string, l remote.Listener) Handle {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.closeListener(name, l)
		return ""
	}
	h := Handle(uuid.NewString())
	r.entries[h] = entry{name: name, listener: l}
	r.mu.Unlock()
	return h
}

// Release closes and forgets one listener. Unknown handles are ignored.
func (r *Registry) Release(h Handle) {
	r.mu.Lock()
	e, ok := r.entries[h]
	delete(r.entries, h)
	r.mu.Unlock()
	if ok {
		r.closeListener(e.name, e.listener)
	}
}

// Len returns the number of open listeners.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close tears down every open listener. It is safe to call more than once.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[Handle]entry)
	r.closed = true
	r.mu.Unlock()

	for _, e := range entries {
		r.closeListener(e.name, e.listener)
	}
}

func (r *Registry) closeListener(name string, l remote.Listener) {
	if err := l.Close(); err != nil {
		r.logger.Warn("close listener", "name", name, "error", err)
	}
}
