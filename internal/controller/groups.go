package controller

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dukerupert/huddle/internal/loader"
	"github.com/dukerupert/huddle/internal/model"
	"github.com/dukerupert/huddle/internal/remote"
	"github.com/dukerupert/huddle/internal/remotesync"
	"github.com/dukerupert/huddle/internal/websocket"
)

// View is a controller snapshot as served to the UI.
type View[T any] struct {
	Items   []T    `json:"items"`
	Offline bool   `json:"offline"`
	Banner  string `json:"banner,omitempty"`
}

// GroupsController backs the group list screen.
type GroupsController struct {
	*lifecycle
	userID string
	loader *loader.Loader
	syncer *remotesync.Syncer
	state  *ListState[model.Group]

	mu      sync.Mutex
	offline bool
	banner  string
}

func NewGroupsController(ctx context.Context, userID string, l *loader.Loader, s *remotesync.Syncer, pub Publisher, logger *slog.Logger) *GroupsController {
	return &GroupsController{
		lifecycle: newLifecycle(ctx, pub, logger),
		userID:    userID,
		loader:    l,
		syncer:    s,
		state:     NewListState(func(g model.Group) string { return g.ID }),
	}
}

// Load refreshes the list. Online loads also start a push listener for
// each group not already watched.
func (c *GroupsController) Load(ctx context.Context) (View[model.Group], error) {
	if !c.alive() {
		return View[model.Group]{}, ErrDisposed
	}
	ctx, cancel := c.scope(ctx)
	defer cancel()

	res, err := c.loader.Groups(ctx, c.userID)
	if !c.alive() {
		return View[model.Group]{}, ErrDisposed
	}
	if err != nil {
		return View[model.Group]{}, err
	}

	c.state.Replace(res.Items)
	c.mu.Lock()
	c.offline, c.banner = res.Offline, res.Banner
	c.mu.Unlock()
	c.pub.Publish(websocket.EntityGroup, websocket.ActionLoaded, "", nil)

	if !res.Offline {
		ids := make([]string, 0, len(res.Items))
		for _, g := range res.Items {
			ids = append(ids, g.ID)
			c.watch(ctx, g.ID)
		}
		c.retain(groupKey, ids)
	}
	return c.View(), nil
}

const groupKey = "group:"

func (c *GroupsController) watch(ctx context.Context, id string) {
	c.watchOnce(ctx, groupKey+id, func(ctx context.Context) (remote.Listener, error) {
		return c.syncer.WatchGroup(ctx, id, c.apply)
	})
}

// apply merges a pushed group. Pushes after Dispose, or for a group no
// longer in the list, are dropped.
func (c *GroupsController) apply(g model.Group) {
	if !c.alive() || !c.watching(groupKey+g.ID) {
		return
	}
	c.state.Merge(g)
	c.pub.Publish(websocket.EntityGroup, websocket.ActionUpdated, g.ID, g)
}

func (c *GroupsController) View() View[model.Group] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View[model.Group]{Items: c.state.Items(), Offline: c.offline, Banner: c.banner}
}
