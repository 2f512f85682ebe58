package controller

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dukerupert/huddle/internal/loader"
	"github.com/dukerupert/huddle/internal/model"
	"github.com/dukerupert/huddle/internal/proposal"
	"github.com/dukerupert/huddle/internal/remote"
	"github.com/dukerupert/huddle/internal/remotesync"
	"github.com/dukerupert/huddle/internal/websocket"
)

// Votes is the vote screen's view of a proposal.
type Votes struct {
	Mine    *model.VoteSubmission  `json:"mine"`
	Others  []model.VoteSubmission `json:"others"`
	Offline bool                   `json:"offline"`
	Banner  string                 `json:"banner,omitempty"`
}

// ProposalController backs the vote screen of one proposal. Votes are not
// mirrored: offline loads show an empty screen with a banner. Online loads
// keep a push listener on the proposal's submissions.
type ProposalController struct {
	*lifecycle
	proposalID string
	userID     string
	loader     *loader.Loader
	syncer     *remotesync.Syncer
	state      *ListState[model.VoteSubmission]

	mu      sync.Mutex
	offline bool
	banner  string
}

func NewProposalController(ctx context.Context, proposalID, userID string, l *loader.Loader, s *remotesync.Syncer, pub Publisher, logger *slog.Logger) *ProposalController {
	return &ProposalController{
		lifecycle:  newLifecycle(ctx, pub, logger),
		proposalID: proposalID,
		userID:     userID,
		loader:     l,
		syncer:     s,
		state:      NewListState(func(v model.VoteSubmission) string { return v.ID }),
	}
}

func (c *ProposalController) Load(ctx context.Context) (Votes, error) {
	if !c.alive() {
		return Votes{}, ErrDisposed
	}
	ctx, cancel := c.scope(ctx)
	defer cancel()

	res, err := c.loader.Submissions(ctx, c.proposalID)
	if !c.alive() {
		return Votes{}, ErrDisposed
	}
	if err != nil {
		return Votes{}, err
	}
	c.state.Replace(res.Items)
	c.mu.Lock()
	c.offline, c.banner = res.Offline, res.Banner
	c.mu.Unlock()
	c.pub.Publish(websocket.EntitySubmission, websocket.ActionLoaded, c.proposalID, nil)

	if !res.Offline {
		c.watchOnce(ctx, "votes:"+c.proposalID, func(ctx context.Context) (remote.Listener, error) {
			return c.syncer.WatchSubmissions(ctx, c.proposalID, c.apply)
		})
	}
	return c.Votes(), nil
}

func (c *ProposalController) apply(v model.VoteSubmission) {
	if !c.alive() {
		return
	}
	c.state.Merge(v)
	c.pub.Publish(websocket.EntitySubmission, websocket.ActionUpdated, v.ID, v)
}

// Votes classifies the current submissions for the controller's user.
func (c *ProposalController) Votes() Votes {
	mine, others := proposal.Classify(c.state.Items(), c.userID)
	c.mu.Lock()
	defer c.mu.Unlock()
	return Votes{Mine: mine, Others: others, Offline: c.offline, Banner: c.banner}
}
