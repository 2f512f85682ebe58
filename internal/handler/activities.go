package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/dukerupert/huddle/internal/controller"
	"github.com/dukerupert/huddle/internal/model"
	"github.com/dukerupert/huddle/internal/proposal"
	"github.com/dukerupert/huddle/internal/websocket"
)

type ActivityHandler struct {
	sessions *controller.Sessions
	service  *proposal.Service
	pub      controller.Publisher
	logger   *slog.Logger
}

func NewActivityHandler(sessions *controller.Sessions, svc *proposal.Service, pub controller.Publisher, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{sessions: sessions, service: svc, pub: pub, logger: logger}
}

func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	view, err := h.sessions.Get(r.Context(), userID).Activities.Load(r.Context())
	if err != nil {
		writeError(w, h.logger, err, "load activities")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Calendar is List sorted by start time.
func (h *ActivityHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	view, err := h.sessions.Get(r.Context(), userID).Calendar.Load(r.Context())
	if err != nil {
		writeError(w, h.logger, err, "load calendar")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type activityRequest struct {
	Title        string           `json:"title"`
	GroupID      string           `json:"group_id"`
	GroupName    string           `json:"group_name"`
	Locations    []model.Location `json:"locations"`
	Participants []string         `json:"participants"`
	StartTime    time.Time        `json:"start_time"`
	EndTime      time.Time        `json:"end_time"`
	Notes        string           `json:"notes"`
}

// Create proposes a new activity. The caller is always a participant.
func (h *ActivityHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req activityRequest
	if _, err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	participants := req.Participants
	if !slices.Contains(participants, userID) {
		participants = append([]string{userID}, participants...)
	}
	a, err := h.service.CreateActivity(r.Context(), model.Activity{
		Title:        req.Title,
		GroupID:      req.GroupID,
		GroupName:    req.GroupName,
		Locations:    req.Locations,
		Participants: participants,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		Notes:        req.Notes,
	})
	if saved(err) {
		h.pub.Publish(websocket.EntityActivity, websocket.ActionCreated, a.ID, a)
	}
	if err != nil {
		writeError(w, h.logger, err, "create activity")
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// saved reports whether a write path got as far as the remote save.
func saved(err error) bool {
	var partial *proposal.PartialError
	return err == nil || errors.As(err, &partial)
}
