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

// ActivitiesController backs the activity list and, when sorted, the
// calendar screen.
type ActivitiesController struct {
	*lifecycle
	userID string
	sorted bool
	loader *loader.Loader
	syncer *remotesync.Syncer
	state  *ListState[model.Activity]

	mu      sync.Mutex
	offline bool
	banner  string
}

func NewActivitiesController(ctx context.Context, userID string, sorted bool, l *loader.Loader, s *remotesync.Syncer, pub Publisher, logger *slog.Logger) *ActivitiesController {
	return &ActivitiesController{
		lifecycle: newLifecycle(ctx, pub, logger),
		userID:    userID,
		sorted:    sorted,
		loader:    l,
		syncer:    s,
		state:     NewListState(func(a model.Activity) string { return a.ID }),
	}
}

func (c *ActivitiesController) Load(ctx context.Context) (View[model.Activity], error) {
	if !c.alive() {
		return View[model.Activity]{}, ErrDisposed
	}
	ctx, cancel := c.scope(ctx)
	defer cancel()

	var (
		res loader.Result[model.Activity]
		err error
	)
	if c.sorted {
		res, err = c.loader.Calendar(ctx, c.userID)
	} else {
		res, err = c.loader.Activities(ctx, c.userID)
	}
	if !c.alive() {
		return View[model.Activity]{}, ErrDisposed
	}
	if err != nil {
		return View[model.Activity]{}, err
	}

	c.state.Replace(res.Items)
	c.mu.Lock()
	c.offline, c.banner = res.Offline, res.Banner
	c.mu.Unlock()
	c.pub.Publish(websocket.EntityActivity, websocket.ActionLoaded, "", nil)

	if !res.Offline {
		ids := make([]string, 0, len(res.Items))
		for _, a := range res.Items {
			ids = append(ids, a.ID)
			c.watch(ctx, a.ID)
		}
		c.retain(activityKey, ids)
	}
	return c.View(), nil
}

const activityKey = "activity:"

func (c *ActivitiesController) watch(ctx context.Context, id string) {
	c.watchOnce(ctx, activityKey+id, func(ctx context.Context) (remote.Listener, error) {
		return c.syncer.WatchActivity(ctx, id, c.apply)
	})
}

func (c *ActivitiesController) apply(a model.Activity) {
	if !c.alive() || !c.watching(activityKey+a.ID) {
		return
	}
	c.state.Merge(a)
	if c.sorted {
		c.state.Update(remotesync.SortByStart)
	}
	c.pub.Publish(websocket.EntityActivity, websocket.ActionUpdated, a.ID, a)
}

func (c *ActivitiesController) View() View[model.Activity] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View[model.Activity]{Items: c.state.Items(), Offline: c.offline, Banner: c.banner}
}
