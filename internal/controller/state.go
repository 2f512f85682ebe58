// Package controller holds the in-memory view state behind each screen:
// one load path, the push listeners that keep it fresh, and a cancellation
// token that stops both when the view goes away.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/dukerupert/huddle/internal/remote"
	"github.com/dukerupert/huddle/internal/subscription"
)

// ErrDisposed is returned by loads whose result arrived after Dispose. The
// result is discarded.
var ErrDisposed = errors.New("controller disposed")

// Publisher pushes state changes to connected UIs.
type Publisher interface {
	Publish(entity, action, id string, data any)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, string, string, any) {}

// ListState is an id-keyed list. Merge replaces an entry in place or
// appends it, so the last write for an id wins.
type ListState[T any] struct {
	mu    sync.RWMutex
	items []T
	index map[string]int
	idOf  func(T) string
}

func NewListState[T any](idOf func(T) string) *ListState[T] {
	return &ListState[T]{index: make(map[string]int), idOf: idOf}
}

// Replace swaps in a freshly loaded list. Duplicate ids keep the later
// entry.
func (s *ListState[T]) Replace(items []T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = s.items[:0]
	clear(s.index)
	for _, it := range items {
		s.mergeLocked(it)
	}
}

// Merge applies one pushed or fetched record.
func (s *ListState[T]) Merge(item T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeLocked(item)
}

func (s *ListState[T]) mergeLocked(item T) {
	id := s.idOf(item)
	if i, ok := s.index[id]; ok {
		s.items[i] = item
		return
	}
	s.index[id] = len(s.items)
	s.items = append(s.items, item)
}

// Update rewrites the whole list under the lock, e.g. to re-sort it.
func (s *ListState[T]) Update(fn func(items []T)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.items)
	clear(s.index)
	for i, it := range s.items {
		s.index[s.idOf(it)] = i
	}
}

// Items returns a copy of the current list.
func (s *ListState[T]) Items() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

func (s *ListState[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// lifecycle is the cancellation token and listener registry every
// controller owns.
type lifecycle struct {
	ctx    context.Context
	cancel context.CancelFunc
	subs   *subscription.Registry
	pub    Publisher
	logger *slog.Logger

	mu      sync.Mutex
	watched map[string]subscription.Handle
}

// newLifecycle keeps parent's values but not its cancellation; the
// controller ends only on Dispose.
func newLifecycle(parent context.Context, pub Publisher, logger *slog.Logger) *lifecycle {
	if pub == nil {
		pub = nopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	return &lifecycle{
		ctx:     ctx,
		cancel:  cancel,
		subs:    subscription.NewRegistry(logger),
		pub:     pub,
		logger:  logger,
		watched: make(map[string]subscription.Handle),
	}
}

func (l *lifecycle) alive() bool {
	return l.ctx.Err() == nil
}

// scope derives a context from the caller's ctx, so its values (the
// caller's credentials among them) reach the remote store. It also ends
// when the controller ends.
func (l *lifecycle) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	scoped, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(l.ctx, cancel)
	return scoped, func() {
		stop()
		cancel()
	}
}

// scopedListener ends the listen context when the listener is closed.
type scopedListener struct {
	remote.Listener
	stop func()
}

func (s scopedListener) Close() error {
	s.stop()
	return s.Listener.Close()
}

// watchOnce opens a listener for key unless one is already open. The
// listener gets ctx's values but outlives the load that opened it; it ends
// on release or Dispose.
func (l *lifecycle) watchOnce(ctx context.Context, key string, open func(ctx context.Context) (remote.Listener, error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.watched[key]; ok || !l.alive() {
		return
	}
	listenCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(l.ctx, cancel)
	lst, err := open(listenCtx)
	if err != nil {
		stop()
		cancel()
		l.logger.Warn("open listener", "key", key, "error", err)
		return
	}
	wrapped := scopedListener{Listener: lst, stop: func() {
		stop()
		cancel()
	}}
	if h := l.subs.Add(key, wrapped); h != "" {
		l.watched[key] = h
	}
}

// watching reports whether a listener is open for key.
func (l *lifecycle) watching(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.watched[key]
	return ok
}

// retain closes every listener under prefix whose id is not in ids.
func (l *lifecycle) retain(prefix string, ids []string) {
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[prefix+id] = true
	}
	var stale []subscription.Handle
	l.mu.Lock()
	for key, h := range l.watched {
		if strings.HasPrefix(key, prefix) && !keep[key] {
			stale = append(stale, h)
			delete(l.watched, key)
		}
	}
	l.mu.Unlock()
	for _, h := range stale {
		l.subs.Release(h)
	}
}

// Listeners returns the number of open push listeners.
func (l *lifecycle) Listeners() int {
	return l.subs.Len()
}

// Dispose cancels in-flight loads and closes every listener. Results that
// arrive afterwards are dropped.
func (l *lifecycle) Dispose() {
	l.cancel()
	l.mu.Lock()
	clear(l.watched)
	l.mu.Unlock()
	l.subs.Close()
}
