// Package proposal implements voting on activity proposals: submitting
// availability, classifying votes, creating proposals and resolving them.
package proposal

import (
	"sort"

	"github.com/dukerupert/huddle/internal/model"
)

// Classify splits submissions into the caller's own vote and everyone
// else's. If the caller has several submissions, the latest one (ties
// broken by id) is theirs and the rest are reported with the others. The
// outcome does not depend on the order subs arrive in.
func Classify(subs []model.VoteSubmission, userID string) (mine *model.VoteSubmission, others []model.VoteSubmission) {
	mineIdx := -1
	for i, s := range subs {
		if s.UserID != userID {
			continue
		}
		if mineIdx < 0 || newer(s, subs[mineIdx]) {
			mineIdx = i
		}
	}

	others = make([]model.VoteSubmission, 0, len(subs))
	for i, s := range subs {
		if i == mineIdx {
			continue
		}
		others = append(others, s)
	}
	sortSubmissions(others)

	if mineIdx >= 0 {
		m := subs[mineIdx]
		mine = &m
	}
	return mine, others
}

func newer(a, b model.VoteSubmission) bool {
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.After(b.SubmittedAt)
	}
	return a.ID > b.ID
}

// sortSubmissions orders by submission time, then id.
func sortSubmissions(subs []model.VoteSubmission) {
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].SubmittedAt.Equal(subs[j].SubmittedAt) {
			return subs[i].SubmittedAt.Before(subs[j].SubmittedAt)
		}
		return subs[i].ID < subs[j].ID
	})
}
