package model

import "time"

// ActivityStatus is the informal lifecycle of a proposed activity.
type ActivityStatus string

const (
	ActivityPending  ActivityStatus = "pending"
	ActivityResolved ActivityStatus = "resolved"
)

type Location struct {
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Activity is a proposed or scheduled outing for a group. Proposals and
// confirmed activities share this shape and differ only by Status.
type Activity struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	GroupID      string         `json:"group_id"`
	GroupName    string         `json:"group_name"`
	Locations    []Location     `json:"locations"`
	Participants []string       `json:"participants"`
	Status       ActivityStatus `json:"status"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      time.Time      `json:"end_time"`
	Notes        string         `json:"notes,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// MirrorActivity is the local copy of an Activity plus sync metadata.
type MirrorActivity struct {
	Activity
	SyncedAt time.Time `json:"synced_at"`
}
