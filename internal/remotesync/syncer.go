// Package remotesync issues reads against the remote document store, maps
// documents to typed records and writes every successful record through to
// the local mirror.
package remotesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dukerupert/huddle/internal/fanout"
	"github.com/dukerupert/huddle/internal/metrics"
	"github.com/dukerupert/huddle/internal/model"
	"github.com/dukerupert/huddle/internal/remote"
	"github.com/dukerupert/huddle/internal/store"
)

// ImageCache downloads image payloads that the mirror does not hold yet.
// Both calls return immediately; the download happens out of band.
type ImageCache interface {
	EnsureGroupImage(ctx context.Context, g model.Group)
	EnsureMemberImage(ctx context.Context, m model.Member)
}

// Config holds Syncer dependencies. Mirror, Images and Metrics are optional.
type Config struct {
	Store   remote.DocumentStore
	Mirror  *store.Mirror
	Images  ImageCache
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// FetchLimit caps concurrent fan-out fetches; <= 0 means no cap.
	FetchLimit int
	Now        func() time.Time
}

type Syncer struct {
	store   remote.DocumentStore
	mirror  *store.Mirror
	images  ImageCache
	metrics *metrics.Metrics
	logger  *slog.Logger
	limit   int
	now     func() time.Time
}

func New(cfg Config) *Syncer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Syncer{
		store:   cfg.Store,
		mirror:  cfg.Mirror,
		images:  cfg.Images,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		limit:   cfg.FetchLimit,
		now:     cfg.Now,
	}
}

func (s *Syncer) fanoutOptions() fanout.Options {
	return fanout.Options{
		Limit:      s.limit,
		Logger:     s.logger,
		OnComplete: func(_ string, err error) { s.metrics.FanoutFetch(err) },
	}
}

// User fetches the root user document. Its failure is terminal for any
// aggregation that starts from it.
func (s *Syncer) User(ctx context.Context, userID string) (model.User, error) {
	doc, err := s.store.Get(ctx, remote.CollectionUsers, userID)
	if err != nil {
		return model.User{}, fmt.Errorf("fetch user %s: %w", userID, err)
	}
	u, err := ParseUser(*doc)
	if err != nil {
		return model.User{}, fmt.Errorf("parse user %s: %w", userID, err)
	}
	return u, nil
}

// Groups resolves every group the user belongs to. Groups that are missing
// or malformed are skipped.
func (s *Syncer) Groups(ctx context.Context, userID string) (fanout.Result[model.Group], error) {
	u, err := s.User(ctx, userID)
	if err != nil {
		return fanout.Result[model.Group]{}, err
	}
	res := fanout.Gather(ctx, u.Groups, s.fetchGroup, s.fanoutOptions())
	s.storeOwners(ctx, userID, store.KindGroup, u.Groups)
	return res, nil
}

// storeOwners records the user's ids of one kind so offline reads stay
// per user.
func (s *Syncer) storeOwners(ctx context.Context, userID string, kind store.Kind, ids []string) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Owners.Replace(ctx, userID, kind, ids); err != nil {
		s.logger.Error("mirror owners", "user", userID, "kind", kind, "error", err)
	}
}

func (s *Syncer) fetchGroup(ctx context.Context, id string) (model.Group, error) {
	doc, err := s.store.Get(ctx, remote.CollectionGroups, id)
	if err != nil {
		return model.Group{}, err
	}
	g, err := ParseGroup(*doc)
	if err != nil {
		return model.Group{}, err
	}
	s.StoreGroup(ctx, g)
	return g, nil
}

// StoreGroup writes a freshly read group through to the mirror and starts
// its image download. Mirror failures are logged and do not fail the read.
func (s *Syncer) StoreGroup(ctx context.Context, g model.Group) {
	if s.mirror != nil {
		if err := s.mirror.Groups.Upsert(ctx, g, s.now()); err != nil {
			s.logger.Error("mirror group", "id", g.ID, "error", err)
		} else {
			s.metrics.MirrorUpsert(string(store.KindGroup))
		}
	}
	if s.images != nil && g.ImageURL != "" {
		s.images.EnsureGroupImage(ctx, g)
	}
}

// Members resolves the member profiles of a group, in completion order.
func (s *Syncer) Members(ctx context.Context, groupID string) (fanout.Result[model.Member], error) {
	doc, err := s.store.Get(ctx, remote.CollectionGroups, groupID)
	if err != nil {
		return fanout.Result[model.Member]{}, fmt.Errorf("fetch group %s: %w", groupID, err)
	}
	g, err := ParseGroup(*doc)
	if err != nil {
		return fanout.Result[model.Member]{}, fmt.Errorf("parse group %s: %w", groupID, err)
	}
	s.StoreGroup(ctx, g)

	fetch := func(ctx context.Context, id string) (model.Member, error) {
		doc, err := s.store.Get(ctx, remote.CollectionUsers, id)
		if err != nil {
			return model.Member{}, err
		}
		m, err := ParseMember(*doc)
		if err != nil {
			return model.Member{}, err
		}
		s.storeMember(ctx, groupID, m)
		return m, nil
	}
	return fanout.Gather(ctx, g.Members, fetch, s.fanoutOptions()), nil
}

func (s *Syncer) storeMember(ctx context.Context, groupID string, m model.Member) {
	if s.mirror != nil {
		if err := s.mirror.Members.Upsert(ctx, groupID, m, s.now()); err != nil {
			s.logger.Error("mirror member", "id", m.ID, "error", err)
		} else {
			s.metrics.MirrorUpsert(string(store.KindMember))
		}
	}
	if s.images != nil && m.ImageURL != "" {
		s.images.EnsureMemberImage(ctx, m)
	}
}

// Activities resolves the user's proposals and activities in completion
// order. A proposal that has been resolved may live in the activities
// collection instead of proposeActivities; both are tried.
func (s *Syncer) Activities(ctx context.Context, userID string) (fanout.Result[model.Activity], error) {
	u, err := s.User(ctx, userID)
	if err != nil {
		return fanout.Result[model.Activity]{}, err
	}
	res := fanout.Gather(ctx, u.Proposals, s.fetchActivity, s.fanoutOptions())
	s.storeOwners(ctx, userID, store.KindActivity, u.Proposals)
	return res, nil
}

// Calendar is Activities sorted by start time.
func (s *Syncer) Calendar(ctx context.Context, userID string) (fanout.Result[model.Activity], error) {
	res, err := s.Activities(ctx, userID)
	if err != nil {
		return res, err
	}
	SortByStart(res.Items)
	return res, nil
}

// SortByStart orders activities chronologically, ties broken by id.
func SortByStart(items []model.Activity) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].StartTime.Equal(items[j].StartTime) {
			return items[i].StartTime.Before(items[j].StartTime)
		}
		return items[i].ID < items[j].ID
	})
}

func (s *Syncer) fetchActivity(ctx context.Context, id string) (model.Activity, error) {
	doc, err := s.store.Get(ctx, remote.CollectionProposals, id)
	if errors.Is(err, remote.ErrNotFound) {
		doc, err = s.store.Get(ctx, remote.CollectionActivities, id)
	}
	if err != nil {
		return model.Activity{}, err
	}
	a, err := ParseActivity(*doc)
	if err != nil {
		return model.Activity{}, err
	}
	s.StoreActivity(ctx, a)
	return a, nil
}

func (s *Syncer) StoreActivity(ctx context.Context, a model.Activity) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Activities.Upsert(ctx, a, s.now()); err != nil {
		s.logger.Error("mirror activity", "id", a.ID, "error", err)
		return
	}
	s.metrics.MirrorUpsert(string(store.KindActivity))
}

// Submissions returns every vote on a proposal. Malformed submissions are
// skipped and logged.
func (s *Syncer) Submissions(ctx context.Context, proposalID string) ([]model.VoteSubmission, error) {
	docs, err := s.store.Query(ctx, remote.Query{
		Collection: remote.CollectionVoteSubmissions,
		Field:      "proposalId",
		Op:         remote.OpEqual,
		Value:      proposalID,
	})
	if err != nil {
		return nil, fmt.Errorf("query submissions for %s: %w", proposalID, err)
	}

	subs := make([]model.VoteSubmission, 0, len(docs))
	for _, doc := range docs {
		v, err := ParseVote(doc)
		if err != nil {
			s.logger.Warn("skipping submission", "id", doc.ID, "error", err)
			continue
		}
		subs = append(subs, v)
	}
	return subs, nil
}

// WatchGroup follows one group document. Each pushed version is parsed,
// written through to the mirror and handed to fn; malformed versions are
// dropped.
func (s *Syncer) WatchGroup(ctx context.Context, groupID string, fn func(model.Group)) (remote.Listener, error) {
	return s.store.Watch(ctx, remote.WatchTarget{Collection: remote.CollectionGroups, ID: groupID}, func(doc remote.Document) {
		g, err := ParseGroup(doc)
		if err != nil {
			s.logger.Warn("dropping pushed group", "id", doc.ID, "error", err)
			return
		}
		s.StoreGroup(ctx, g)
		fn(g)
	})
}

// WatchActivity follows one proposal document.
func (s *Syncer) WatchActivity(ctx context.Context, activityID string, fn func(model.Activity)) (remote.Listener, error) {
	return s.store.Watch(ctx, remote.WatchTarget{Collection: remote.CollectionProposals, ID: activityID}, func(doc remote.Document) {
		a, err := ParseActivity(doc)
		if err != nil {
			s.logger.Warn("dropping pushed activity", "id", doc.ID, "error", err)
			return
		}
		s.StoreActivity(ctx, a)
		fn(a)
	})
}

// WatchSubmissions follows every vote on a proposal.
func (s *Syncer) WatchSubmissions(ctx context.Context, proposalID string, fn func(model.VoteSubmission)) (remote.Listener, error) {
	target := remote.WatchTarget{
		Collection: remote.CollectionVoteSubmissions,
		Query: &remote.Query{
			Collection: remote.CollectionVoteSubmissions,
			Field:      "proposalId",
			Op:         remote.OpEqual,
			Value:      proposalID,
		},
	}
	return s.store.Watch(ctx, target, func(doc remote.Document) {
		v, err := ParseVote(doc)
		if err != nil {
			s.logger.Warn("dropping pushed submission", "id", doc.ID, "error", err)
			return
		}
		fn(v)
	})
}
