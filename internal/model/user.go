package model

import "time"

// Notification kind constants
const (
	NotifKindProposalCreated  = "proposal_created"
	NotifKindProposalResolved = "proposal_resolved"
	NotifKindGroupJoined      = "group_joined"
)

type User struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Email         string         `json:"email"`
	Groups        []string       `json:"groups"`
	Proposals     []string       `json:"proposals"`
	Notifications []Notification `json:"notifications"`
}

type Notification struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	ProposalID string    `json:"proposal_id,omitempty"`
	GroupID    string    `json:"group_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
