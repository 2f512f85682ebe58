// Package remote talks to the managed document store that owns every
// group, activity, proposal, vote and user record.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Collection names in the remote document store.
const (
	CollectionUsers           = "users"
	CollectionGroups          = "groups"
	CollectionActivities      = "activities"
	CollectionProposals       = "proposeActivities"
	CollectionVoteSubmissions = "voteSubmissions"
)

// Document is a remote record in the store's native JSON encoding.
type Document struct {
	ID         string         `json:"id"`
	Collection string         `json:"collection"`
	Fields     map[string]any `json:"fields"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Op is a query predicate operator.
type Op string

const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
	OpIn            Op = "in"
)

// Query selects documents of one collection by a single field predicate.
type Query struct {
	Collection string `json:"-"`
	Field      string `json:"field"`
	Op         Op     `json:"op"`
	Value      any    `json:"value"`
}

// WatchTarget selects what a listener follows: one document when ID is set,
// otherwise every document matching Query.
type WatchTarget struct {
	Collection string
	ID         string
	Query      *Query
}

// Listener is a live push subscription. Close stops delivery; it is safe to
// call more than once.
type Listener interface {
	Close() error
}

// DocumentStore is the subset of the remote store the app uses.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	Create(ctx context.Context, collection, id string, fields map[string]any) (string, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Watch(ctx context.Context, target WatchTarget, fn func(Document)) (Listener, error)
}

var (
	// ErrNotFound means the document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrUnauthenticated means the backend rejected the caller's identity;
	// the user has to sign in again.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// TransportError wraps a connectivity or server failure talking to the store.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: remote returned status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err is a transport failure, as opposed to a
// missing document or a rejected identity.
func IsUnavailable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
