package remotesync

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/dukerupert/huddle/internal/model"
	"github.com/dukerupert/huddle/internal/remote"
)

// ErrMalformed marks a document whose required fields are missing or of the
// wrong type. Callers skip such records; they are never fatal.
var ErrMalformed = errors.New("malformed document")

type groupDoc struct {
	Name        string   `mapstructure:"name"`
	Description string   `mapstructure:"description"`
	Code        string   `mapstructure:"code"`
	CreatorID   string   `mapstructure:"creatorId"`
	Members     []string `mapstructure:"members"`
	ImageURL    string   `mapstructure:"imageUrl"`
}

type notificationDoc struct {
	ID         string    `mapstructure:"id"`
	Kind       string    `mapstructure:"kind"`
	Message    string    `mapstructure:"message"`
	ProposalID string    `mapstructure:"proposalId"`
	GroupID    string    `mapstructure:"groupId"`
	CreatedAt  time.Time `mapstructure:"createdAt"`
}

type userDoc struct {
	Name          string            `mapstructure:"name"`
	Email         string            `mapstructure:"email"`
	Groups        []string          `mapstructure:"groups"`
	Proposals     []string          `mapstructure:"proposals"`
	Notifications []notificationDoc `mapstructure:"notifications"`
	ImageURL      string            `mapstructure:"imageUrl"`
}

type locationDoc struct {
	Name      string  `mapstructure:"name"`
	Address   string  `mapstructure:"address"`
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
}

type activityDoc struct {
	Title        string        `mapstructure:"title"`
	GroupID      string        `mapstructure:"groupId"`
	GroupName    string        `mapstructure:"groupName"`
	Locations    []locationDoc `mapstructure:"locations"`
	Participants []string      `mapstructure:"participants"`
	Status       string        `mapstructure:"status"`
	StartTime    time.Time     `mapstructure:"startTime"`
	EndTime      time.Time     `mapstructure:"endTime"`
	Notes        string        `mapstructure:"notes"`
	CreatedAt    time.Time     `mapstructure:"createdAt"`
}

type voteDoc struct {
	UserID      string    `mapstructure:"userId"`
	UserName    string    `mapstructure:"userName"`
	ProposalID  string    `mapstructure:"proposalId"`
	From        time.Time `mapstructure:"from"`
	To          time.Time `mapstructure:"to"`
	Comment     string    `mapstructure:"comment"`
	Location    string    `mapstructure:"location"`
	SubmittedAt time.Time `mapstructure:"submittedAt"`
}

// decode maps doc fields onto out. Every name in required must be present
// and non-empty; every present field must have the declared type.
func decode(doc remote.Document, out any, required ...string) error {
	for _, f := range required {
		v, ok := doc.Fields[f]
		if !ok || v == nil {
			return fmt.Errorf("%s/%s: missing field %q: %w", doc.Collection, doc.ID, f, ErrMalformed)
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s/%s: empty field %q: %w", doc.Collection, doc.ID, f, ErrMalformed)
		}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     out,
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(doc.Fields); err != nil {
		return fmt.Errorf("%s/%s: %v: %w", doc.Collection, doc.ID, err, ErrMalformed)
	}
	return nil
}

func ParseGroup(doc remote.Document) (model.Group, error) {
	var d groupDoc
	if err := decode(doc, &d, "name", "members"); err != nil {
		return model.Group{}, err
	}
	return model.Group{
		ID:          doc.ID,
		Name:        d.Name,
		Description: d.Description,
		Code:        d.Code,
		CreatorID:   d.CreatorID,
		Members:     d.Members,
		ImageURL:    d.ImageURL,
	}, nil
}

func ParseUser(doc remote.Document) (model.User, error) {
	var d userDoc
	if err := decode(doc, &d, "name"); err != nil {
		return model.User{}, err
	}
	u := model.User{
		ID:        doc.ID,
		Name:      d.Name,
		Email:     d.Email,
		Groups:    d.Groups,
		Proposals: d.Proposals,
	}
	for _, n := range d.Notifications {
		u.Notifications = append(u.Notifications, model.Notification(n))
	}
	return u, nil
}

// ParseMember reads the public profile part of a users document.
func ParseMember(doc remote.Document) (model.Member, error) {
	var d userDoc
	if err := decode(doc, &d, "name"); err != nil {
		return model.Member{}, err
	}
	return model.Member{ID: doc.ID, Name: d.Name, Email: d.Email, ImageURL: d.ImageURL}, nil
}

func ParseActivity(doc remote.Document) (model.Activity, error) {
	var d activityDoc
	if err := decode(doc, &d, "title", "groupId"); err != nil {
		return model.Activity{}, err
	}
	a := model.Activity{
		ID:           doc.ID,
		Title:        d.Title,
		GroupID:      d.GroupID,
		GroupName:    d.GroupName,
		Participants: d.Participants,
		Status:       model.ActivityStatus(d.Status),
		StartTime:    d.StartTime,
		EndTime:      d.EndTime,
		Notes:        d.Notes,
		CreatedAt:    d.CreatedAt,
	}
	if a.Status == "" {
		a.Status = model.ActivityPending
	}
	for _, l := range d.Locations {
		a.Locations = append(a.Locations, model.Location(l))
	}
	return a, nil
}

func ParseVote(doc remote.Document) (model.VoteSubmission, error) {
	var d voteDoc
	if err := decode(doc, &d, "userId", "proposalId", "from", "to"); err != nil {
		return model.VoteSubmission{}, err
	}
	return model.VoteSubmission{
		ID:          doc.ID,
		UserID:      d.UserID,
		UserName:    d.UserName,
		ProposalID:  d.ProposalID,
		From:        d.From,
		To:          d.To,
		Comment:     d.Comment,
		Location:    d.Location,
		SubmittedAt: d.SubmittedAt,
	}, nil
}

// VoteFields encodes a submission in the store's field layout.
func VoteFields(v model.VoteSubmission) map[string]any {
	return map[string]any{
		"userId":      v.UserID,
		"userName":    v.UserName,
		"proposalId":  v.ProposalID,
		"from":        v.From.UTC().Format(time.RFC3339),
		"to":          v.To.UTC().Format(time.RFC3339),
		"comment":     v.Comment,
		"location":    v.Location,
		"submittedAt": v.SubmittedAt.UTC().Format(time.RFC3339),
	}
}

// ActivityFields encodes an activity in the store's field layout.
func ActivityFields(a model.Activity) map[string]any {
	locations := make([]any, 0, len(a.Locations))
	for _, l := range a.Locations {
		locations = append(locations, map[string]any{
			"name":      l.Name,
			"address":   l.Address,
			"latitude":  l.Latitude,
			"longitude": l.Longitude,
		})
	}
	participants := make([]any, 0, len(a.Participants))
	for _, p := range a.Participants {
		participants = append(participants, p)
	}
	fields := map[string]any{
		"title":        a.Title,
		"groupId":      a.GroupID,
		"groupName":    a.GroupName,
		"locations":    locations,
		"participants": participants,
		"status":       string(a.Status),
		"notes":        a.Notes,
		"createdAt":    a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !a.StartTime.IsZero() {
		fields["startTime"] = a.StartTime.UTC().Format(time.RFC3339)
	}
	if !a.EndTime.IsZero() {
		fields["endTime"] = a.EndTime.UTC().Format(time.RFC3339)
	}
	return fields
}
