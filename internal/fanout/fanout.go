// Package fanout resolves a batch of foreign ids into records with one
// concurrent fetch per id.
package fanout

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrBlankID is the skip reason for an id that is empty after trimming.
var ErrBlankID = errors.New("blank id")

// Skip records an id whose fetch did not produce a record.
type Skip struct {
	ID  string
	Err error
}

// Result is the outcome of a batch. Items are in completion order, not
// input order.
type Result[T any] struct {
	Items   []T
	Skipped []Skip
}

// Options tunes a batch. The zero value runs every fetch at once.
type Options struct {
	// Limit caps concurrent fetches; <= 0 means no cap.
	Limit  int
	Logger *slog.Logger
	// OnComplete, if set, is called once per id with its outcome.
	OnComplete func(id string, err error)
}

// Gather fetches every id concurrently and returns once all fetches have
// completed. A fetch error turns that id into a skip; it is logged and never
// aborts the rest of the batch. Ids are trimmed of surrounding whitespace
// before lookup.
func Gather[T any](ctx context.Context, ids []string, fetch func(ctx context.Context, id string) (T, error), opts Options) Result[T] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		mu  sync.Mutex
		res Result[T]
	)
	complete := func(id string, item T, err error) {
		mu.Lock()
		if err != nil {
			res.Skipped = append(res.Skipped, Skip{ID: id, Err: err})
		} else {
			res.Items = append(res.Items, item)
		}
		mu.Unlock()
		if err != nil {
			logger.Warn("fan-out fetch skipped", "id", id, "error", err)
		}
		if opts.OnComplete != nil {
			opts.OnComplete(id, err)
		}
	}

	// errgroup.Group is used without WithContext: a skip must not cancel
	// its siblings.
	var g errgroup.Group
	if opts.Limit > 0 {
		g.SetLimit(opts.Limit)
	}
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			var zero T
			complete(raw, zero, ErrBlankID)
			continue
		}
		g.Go(func() error {
			item, err := fetch(ctx, id)
			complete(id, item, err)
			return nil
		})
	}
	g.Wait()

	return res
}

// SkippedIDs returns the ids of the skipped entries.
func (r Result[T]) SkippedIDs() []string {
	ids := make([]string, len(r.Skipped))
	for i, s := range r.Skipped {
		ids[i] = s.ID
	}
	return ids
}
