// Package loader chooses between the remote store and the local mirror for
// each view load, based on the connectivity flag at the time the load
// starts.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dukerupert/huddle/internal/fanout"
	"github.com/dukerupert/huddle/internal/metrics"
	"github.com/dukerupert/huddle/internal/model"
	"github.com/dukerupert/huddle/internal/remotesync"
	"github.com/dukerupert/huddle/internal/store"
)

// Connectivity reports the process-wide connected flag.
type Connectivity interface {
	Connected() bool
}

// Result is one loaded view. Offline results come from the mirror and
// carry a Banner for display.
type Result[T any] struct {
	Items    []T           `json:"items"`
	Skipped  []fanout.Skip `json:"-"`
	Offline  bool          `json:"offline"`
	Banner   string        `json:"banner,omitempty"`
	SyncedAt time.Time     `json:"synced_at,omitzero"`
}

type Config struct {
	Connectivity Connectivity
	Syncer       *remotesync.Syncer
	Mirror       *store.Mirror
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	// ReadLimit bounds offline reads; <= 0 means no bound.
	ReadLimit int
	Now       func() time.Time
}

type Loader struct {
	conn    Connectivity
	syncer  *remotesync.Syncer
	mirror  *store.Mirror
	metrics *metrics.Metrics
	logger  *slog.Logger
	limit   int
	now     func() time.Time
}

func New(cfg Config) *Loader {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Loader{
		conn:    cfg.Connectivity,
		syncer:  cfg.Syncer,
		mirror:  cfg.Mirror,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		limit:   cfg.ReadLimit,
		now:     cfg.Now,
	}
}

// online reads the flag once for the whole load.
func (l *Loader) online() bool {
	up := l.conn.Connected()
	l.metrics.Load(!up)
	return up
}

func (l *Loader) Groups(ctx context.Context, userID string) (Result[model.Group], error) {
	if l.online() {
		res, err := l.syncer.Groups(ctx, userID)
		if err != nil {
			return Result[model.Group]{}, fmt.Errorf("load groups: %w", err)
		}
		return Result[model.Group]{Items: res.Items, Skipped: res.Skipped}, nil
	}

	rows, err := l.mirror.Groups.ReadAll(ctx, userID, l.limit)
	if err != nil {
		return Result[model.Group]{}, fmt.Errorf("read mirrored groups: %w", err)
	}
	items := make([]model.Group, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.Group)
	}
	return offlineResult(ctx, l, store.KindGroup, items)
}

func (l *Loader) Members(ctx context.Context, groupID string) (Result[model.Member], error) {
	if l.online() {
		res, err := l.syncer.Members(ctx, groupID)
		if err != nil {
			return Result[model.Member]{}, fmt.Errorf("load members: %w", err)
		}
		return Result[model.Member]{Items: res.Items, Skipped: res.Skipped}, nil
	}

	g, err := l.mirror.Groups.GetByID(ctx, groupID)
	if err != nil {
		return Result[model.Member]{}, fmt.Errorf("read mirrored group: %w", err)
	}
	var items []model.Member
	if g != nil {
		for _, id := range g.Members {
			m, err := l.mirror.Members.GetByID(ctx, id)
			if err != nil {
				return Result[model.Member]{}, fmt.Errorf("read mirrored member: %w", err)
			}
			if m != nil {
				items = append(items, m.Member)
			}
		}
	}
	return offlineResult(ctx, l, store.KindMember, items)
}

// Activities loads the user's activities and proposals in completion order.
func (l *Loader) Activities(ctx context.Context, userID string) (Result[model.Activity], error) {
	return l.activities(ctx, userID, false)
}

// Calendar is Activities ordered by start time.
func (l *Loader) Calendar(ctx context.Context, userID string) (Result[model.Activity], error) {
	return l.activities(ctx, userID, true)
}

func (l *Loader) activities(ctx context.Context, userID string, sorted bool) (Result[model.Activity], error) {
	if l.online() {
		res, err := l.syncer.Activities(ctx, userID)
		if err != nil {
			return Result[model.Activity]{}, fmt.Errorf("load activities: %w", err)
		}
		if sorted {
			remotesync.SortByStart(res.Items)
		}
		return Result[model.Activity]{Items: res.Items, Skipped: res.Skipped}, nil
	}

	rows, err := l.mirror.Activities.ReadAll(ctx, userID, l.limit)
	if err != nil {
		return Result[model.Activity]{}, fmt.Errorf("read mirrored activities: %w", err)
	}
	items := make([]model.Activity, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.Activity)
	}
	if sorted {
		remotesync.SortByStart(items)
	}
	return offlineResult(ctx, l, store.KindActivity, items)
}

// Submissions loads the votes on a proposal. Votes are not mirrored, so an
// offline load returns no items and a banner dated by the newest mirrored
// activity.
func (l *Loader) Submissions(ctx context.Context, proposalID string) (Result[model.VoteSubmission], error) {
	if l.online() {
		subs, err := l.syncer.Submissions(ctx, proposalID)
		if err != nil {
			return Result[model.VoteSubmission]{}, fmt.Errorf("load submissions: %w", err)
		}
		return Result[model.VoteSubmission]{Items: subs}, nil
	}
	return offlineResult[model.VoteSubmission](ctx, l, store.KindActivity, nil)
}

func offlineResult[T any](ctx context.Context, l *Loader, kind store.Kind, items []T) (Result[T], error) {
	synced, err := l.mirror.LastSynced(ctx, kind)
	if err != nil {
		return Result[T]{}, fmt.Errorf("read last sync: %w", err)
	}
	l.logger.Debug("serving from mirror", "kind", kind, "count", len(items))
	if items == nil {
		items = []T{}
	}
	return Result[T]{
		Items:    items,
		Offline:  true,
		Banner:   Banner(synced, l.now()),
		SyncedAt: synced,
	}, nil
}

// Banner describes how fresh offline data is.
func Banner(synced, now time.Time) string {
	if synced.IsZero() {
		return "Offline – nothing synced yet"
	}
	return "Offline – showing data synced " + humanize.RelTime(synced, now, "ago", "from now")
}
