package proposal

import (
	"errors"
	"time"

	"github.com/dukerupert/huddle/internal/model"
)

var ErrNoConsensus = errors.New("no common availability")

// Choice is the final time and place of a resolved proposal.
type Choice struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Location  string    `json:"location,omitempty"`
}

// Suggest derives a Choice from the latest vote of each user: the window
// every voter is available in, and the most voted location (ties broken
// alphabetically).
func Suggest(subs []model.VoteSubmission) (Choice, error) {
	latest := make(map[string]model.VoteSubmission)
	for _, s := range subs {
		if cur, ok := latest[s.UserID]; !ok || newer(s, cur) {
			latest[s.UserID] = s
		}
	}
	if len(latest) == 0 {
		return Choice{}, ErrNoConsensus
	}

	var c Choice
	votes := make(map[string]int)
	for _, s := range latest {
		if c.StartTime.IsZero() || s.From.After(c.StartTime) {
			c.StartTime = s.From
		}
		if c.EndTime.IsZero() || s.To.Before(c.EndTime) {
			c.EndTime = s.To
		}
		if s.Location != "" {
			votes[s.Location]++
		}
	}
	if !c.StartTime.Before(c.EndTime) {
		return Choice{}, ErrNoConsensus
	}

	best := 0
	for loc, n := range votes {
		if n > best || (n == best && loc < c.Location) {
			c.Location, best = loc, n
		}
	}
	return c, nil
}
