package model

import "time"

// VoteSubmission is one user's availability and location vote on a proposal.
type VoteSubmission struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name"`
	ProposalID  string    `json:"proposal_id"`
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	Comment     string    `json:"comment"`
	Location    string    `json:"location"`
	SubmittedAt time.Time `json:"submitted_at"`
}
