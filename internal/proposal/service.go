package proposal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/huddle/internal/calendar"
	"github.com/dukerupert/huddle/internal/fanout"
	"github.com/dukerupert/huddle/internal/model"
	"github.com/dukerupert/huddle/internal/remote"
	"github.com/dukerupert/huddle/internal/remotesync"
)

var (
	ErrInvalid         = errors.New("invalid request")
	ErrAlreadyResolved = errors.New("proposal already resolved")
)

// PartialError reports a user action whose remote save succeeded but whose
// follow-up step failed. The saved record is not rolled back.
type PartialError struct {
	Activity model.Activity
	Step     string
	Err      error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("activity %s saved, %s failed: %v", e.Activity.ID, e.Step, e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

// Service performs the proposal write paths. None of them retries.
type Service struct {
	store    remote.DocumentStore
	syncer   *remotesync.Syncer
	exporter calendar.Exporter
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(store remote.DocumentStore, syncer *remotesync.Syncer, exporter calendar.Exporter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, syncer: syncer, exporter: exporter, logger: logger, now: time.Now}
}

// Submit stores a new vote. Earlier votes by the same user are left in
// place; Classify picks the latest.
func (s *Service) Submit(ctx context.Context, v model.VoteSubmission) (model.VoteSubmission, error) {
	v.UserID = strings.TrimSpace(v.UserID)
	v.ProposalID = strings.TrimSpace(v.ProposalID)
	switch {
	case v.UserID == "":
		return v, fmt.Errorf("%w: user id is required", ErrInvalid)
	case v.ProposalID == "":
		return v, fmt.Errorf("%w: proposal id is required", ErrInvalid)
	case v.From.IsZero() || v.To.IsZero():
		return v, fmt.Errorf("%w: availability window is required", ErrInvalid)
	case !v.From.Before(v.To):
		return v, fmt.Errorf("%w: from must be before to", ErrInvalid)
	}

	v.ID = uuid.NewString()
	v.SubmittedAt = s.now().UTC()
	if _, err := s.store.Create(ctx, remote.CollectionVoteSubmissions, v.ID, remotesync.VoteFields(v)); err != nil {
		return v, fmt.Errorf("save submission: %w", err)
	}
	return v, nil
}

// CreateActivity saves a new proposal, links it to each participant and
// exports it to the calendar. A failed export after a successful save is
// returned as *PartialError together with the saved activity.
func (s *Service) CreateActivity(ctx context.Context, a model.Activity) (model.Activity, error) {
	a.Title = strings.TrimSpace(a.Title)
	switch {
	case a.Title == "":
		return a, fmt.Errorf("%w: title is required", ErrInvalid)
	case strings.TrimSpace(a.GroupID) == "":
		return a, fmt.Errorf("%w: group id is required", ErrInvalid)
	case !a.EndTime.IsZero() && !a.StartTime.IsZero() && !a.StartTime.Before(a.EndTime):
		return a, fmt.Errorf("%w: start must be before end", ErrInvalid)
	}

	a.ID = uuid.NewString()
	a.Status = model.ActivityPending
	a.CreatedAt = s.now().UTC()
	if _, err := s.store.Create(ctx, remote.CollectionProposals, a.ID, remotesync.ActivityFields(a)); err != nil {
		return a, fmt.Errorf("save activity: %w", err)
	}
	s.syncer.StoreActivity(ctx, a)

	linked := fanout.Gather(ctx, a.Participants, func(ctx context.Context, userID string) (string, error) {
		return userID, s.linkProposal(ctx, userID, a.ID)
	}, fanout.Options{Logger: s.logger})
	if len(linked.Skipped) > 0 {
		s.logger.Warn("activity not linked to every participant", "id", a.ID, "missing", linked.SkippedIDs())
	}

	if s.exporter != nil {
		if err := s.exporter.Export(ctx, a); err != nil {
			return a, &PartialError{Activity: a, Step: "calendar export", Err: err}
		}
	}
	return a, nil
}

// linkProposal appends proposalID to the user's proposal list. The
// read-modify-write is not atomic.
func (s *Service) linkProposal(ctx context.Context, userID, proposalID string) error {
	u, err := s.syncer.User(ctx, userID)
	if err != nil {
		return err
	}
	if slices.Contains(u.Proposals, proposalID) {
		return nil
	}
	proposals := make([]any, 0, len(u.Proposals)+1)
	for _, p := range u.Proposals {
		proposals = append(proposals, p)
	}
	proposals = append(proposals, proposalID)
	if err := s.store.Update(ctx, remote.CollectionUsers, userID, map[string]any{"proposals": proposals}); err != nil {
		return fmt.Errorf("link proposal to %s: %w", userID, err)
	}
	return nil
}

// Resolve fixes a pending proposal's time and place and moves it to the
// activities collection. A nil choice is derived from the votes with
// Suggest.
func (s *Service) Resolve(ctx context.Context, proposalID string, choice *Choice) (model.Activity, error) {
	doc, err := s.store.Get(ctx, remote.CollectionProposals, proposalID)
	if errors.Is(err, remote.ErrNotFound) {
		if _, aerr := s.store.Get(ctx, remote.CollectionActivities, proposalID); aerr == nil {
			return model.Activity{}, ErrAlreadyResolved
		}
	}
	if err != nil {
		return model.Activity{}, fmt.Errorf("fetch proposal: %w", err)
	}
	a, err := remotesync.ParseActivity(*doc)
	if err != nil {
		return model.Activity{}, fmt.Errorf("parse proposal: %w", err)
	}
	if a.Status == model.ActivityResolved {
		return a, ErrAlreadyResolved
	}

	if choice == nil {
		subs, err := s.syncer.Submissions(ctx, proposalID)
		if err != nil {
			return a, err
		}
		c, err := Suggest(subs)
		if err != nil {
			return a, fmt.Errorf("resolve %s: %w", proposalID, err)
		}
		choice = &c
	}
	if !choice.StartTime.Before(choice.EndTime) {
		return a, fmt.Errorf("%w: start must be before end", ErrInvalid)
	}

	a.Status = model.ActivityResolved
	a.StartTime = choice.StartTime
	a.EndTime = choice.EndTime
	if choice.Location != "" {
		a.Locations = pickLocation(a.Locations, choice.Location)
	}

	if _, err := s.store.Create(ctx, remote.CollectionActivities, a.ID, remotesync.ActivityFields(a)); err != nil {
		return a, fmt.Errorf("save resolved activity: %w", err)
	}
	s.syncer.StoreActivity(ctx, a)
	if err := s.store.Delete(ctx, remote.CollectionProposals, a.ID); err != nil {
		return a, &PartialError{Activity: a, Step: "proposal cleanup", Err: err}
	}
	return a, nil
}

// pickLocation moves the chosen location to the front, adding it when it
// was not among the proposed ones.
func pickLocation(locs []model.Location, name string) []model.Location {
	out := []model.Location{{Name: name}}
	for _, l := range locs {
		if l.Name == name {
			out[0] = l
			continue
		}
		out = append(out, l)
	}
	return out
}
