package model

import "time"

// Group is a set of users who plan activities together. Members are kept in
// join order.
type Group struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Code        string   `json:"code"`
	CreatorID   string   `json:"creator_id"`
	Members     []string `json:"members"`
	ImageURL    string   `json:"image_url,omitempty"`
}

// HasMember reports whether userID is in the group's member list.
func (g Group) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// Member is the public profile of a group member.
type Member struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	ImageURL string `json:"image_url,omitempty"`
}

// MirrorGroup is the local copy of a Group plus sync metadata.
type MirrorGroup struct {
	Group
	SyncedAt    time.Time `json:"synced_at"`
	Image       []byte    `json:"-"`
	ImageDigest string    `json:"image_digest,omitempty"`
}

// HasImage is false while the image payload has not been downloaded yet;
// callers render a placeholder in that case.
func (g MirrorGroup) HasImage() bool {
	return len(g.Image) > 0
}

// MirrorMember is the local copy of a Member, scoped to the group it was
// fetched through.
type MirrorMember struct {
	Member
	GroupID     string    `json:"group_id"`
	SyncedAt    time.Time `json:"synced_at"`
	Image       []byte    `json:"-"`
	ImageDigest string    `json:"image_digest,omitempty"`
}

func (m MirrorMember) HasImage() bool {
	return len(m.Image) > 0
}
