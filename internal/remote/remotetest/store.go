// Package remotetest provides an in-memory remote.DocumentStore with
// controllable latency and failures, for tests of code built on the store.
package remotetest

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/huddle/internal/remote"
)

type key struct {
	collection string
	id         string
}

type watcher struct {
	target remote.WatchTarget
	fn     func(remote.Document)
}

// Store is an in-memory DocumentStore. Every method call counts as one
// transport invocation.
type Store struct {
	mu       sync.Mutex
	docs     map[key]remote.Document
	delays   map[key]time.Duration
	errs     map[key]error
	holds    map[key]chan struct{}
	queryErr error
	calls    map[string]int
	watchers map[int]*watcher
	nextW    int
}

func New() *Store {
	return &Store{
		docs:     make(map[key]remote.Document),
		delays:   make(map[key]time.Duration),
		errs:     make(map[key]error),
		holds:    make(map[key]chan struct{}),
		calls:    make(map[string]int),
		watchers: make(map[int]*watcher),
	}
}

// Put stores a document and pushes it to matching watchers.
func (s *Store) Put(collection, id string, fields map[string]any) {
	doc := remote.Document{ID: id, Collection: collection, Fields: maps.Clone(fields), UpdatedAt: time.Now().UTC()}
	s.mu.Lock()
	s.docs[key{collection, id}] = doc
	var targets []func(remote.Document)
	for _, w := range s.watchers {
		if matches(w.target, doc) {
			targets = append(targets, w.fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range targets {
		fn(copyDoc(doc))
	}
}

// SetDelay makes Get for the document wait d before completing.
func (s *Store) SetDelay(collection, id string, d time.Duration) {
	s.mu.Lock()
	s.delays[key{collection, id}] = d
	s.mu.Unlock()
}

// SetError makes Get for the document fail with err.
func (s *Store) SetError(collection, id string, err error) {
	s.mu.Lock()
	s.errs[key{collection, id}] = err
	s.mu.Unlock()
}

// SetQueryError makes every Query fail with err.
func (s *Store) SetQueryError(err error) {
	s.mu.Lock()
	s.queryErr = err
	s.mu.Unlock()
}

// Hold blocks Get for the document until the returned release func is called.
func (s *Store) Hold(collection, id string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holds[key{collection, id}] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Calls returns the number of invocations of op ("get", "query", ...), or
// of every op when op is empty.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if op != "" {
		return s.calls[op]
	}
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// Watchers returns the number of open listeners.
func (s *Store) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

// Doc returns the stored document, if any.
func (s *Store) Doc(collection, id string) (remote.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[key{collection, id}]
	return copyDoc(d), ok
}

func (s *Store) count(op string) {
	s.mu.Lock()
	s.calls[op]++
	s.mu.Unlock()
}

func (s *Store) Get(ctx context.Context, collection, id string) (*remote.Document, error) {
	s.count("get")
	k := key{collection, id}

	s.mu.Lock()
	delay := s.delays[k]
	hold := s.holds[k]
	s.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs[k]; err != nil {
		return nil, err
	}
	doc, ok := s.docs[k]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", collection, remote.ErrNotFound)
	}
	d := copyDoc(doc)
	return &d, nil
}

func (s *Store) Query(ctx context.Context, q remote.Query) ([]remote.Document, error) {
	s.count("query")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var out []remote.Document
	for k, doc := range s.docs {
		if k.collection == q.Collection && matchQuery(q, doc) {
			out = append(out, copyDoc(doc))
		}
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, collection, id string, fields map[string]any) (string, error) {
	s.count("create")
	if id == "" {
		id = uuid.NewString()
	}
	s.mu.Lock()
	_, exists := s.docs[key{collection, id}]
	s.mu.Unlock()
	if exists {
		return "", fmt.Errorf("create %s/%s: already exists", collection, id)
	}
	s.Put(collection, id, fields)
	return id, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	s.count("update")
	s.mu.Lock()
	doc, ok := s.docs[key{collection, id}]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("update %s: %w", collection, remote.ErrNotFound)
	}
	merged := maps.Clone(doc.Fields)
	if merged == nil {
		merged = map[string]any{}
	}
	maps.Copy(merged, fields)
	s.Put(collection, id, merged)
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.count("delete")
	s.mu.Lock()
	delete(s.docs, key{collection, id})
	s.mu.Unlock()
	return nil
}

type listener struct {
	s    *Store
	id   int
	once sync.Once
}

func (l *listener) Close() error {
	l.once.Do(func() {
		l.s.mu.Lock()
		delete(l.s.watchers, l.id)
		l.s.mu.Unlock()
	})
	return nil
}

func (s *Store) Watch(ctx context.Context, target remote.WatchTarget, fn func(remote.Document)) (remote.Listener, error) {
	s.count("watch")
	s.mu.Lock()
	s.nextW++
	id := s.nextW
	s.watchers[id] = &watcher{target: target, fn: fn}
	s.mu.Unlock()
	return &listener{s: s, id: id}, nil
}

func copyDoc(d remote.Document) remote.Document {
	d.Fields = maps.Clone(d.Fields)
	return d
}

func matches(t remote.WatchTarget, doc remote.Document) bool {
	if t.Collection != doc.Collection {
		return false
	}
	if t.ID != "" {
		return t.ID == doc.ID
	}
	if t.Query != nil {
		return matchQuery(*t.Query, doc)
	}
	return true
}

func matchQuery(q remote.Query, doc remote.Document) bool {
	v, ok := doc.Fields[q.Field]
	if !ok {
		return false
	}
	switch q.Op {
	case remote.OpEqual:
		return reflect.DeepEqual(v, q.Value)
	case remote.OpArrayContains:
		return contains(v, q.Value)
	case remote.OpIn:
		return contains(q.Value, v)
	}
	return false
}

func contains(list, v any) bool {
	rv := reflect.ValueOf(list)
	if rv.Kind() != reflect.Slice {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if reflect.DeepEqual(rv.Index(i).Interface(), v) {
			return true
		}
	}
	return false
}

var _ remote.DocumentStore = (*Store)(nil)
