package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/huddle/internal/controller"
	"github.com/dukerupert/huddle/internal/model"
	"github.com/dukerupert/huddle/internal/proposal"
	"github.com/dukerupert/huddle/internal/websocket"
)

type ProposalHandler struct {
	sessions *controller.Sessions
	service  *proposal.Service
	pub      controller.Publisher
	logger   *slog.Logger
}

func NewProposalHandler(sessions *controller.Sessions, svc *proposal.Service, pub controller.Publisher, logger *slog.Logger) *ProposalHandler {
	return &ProposalHandler{sessions: sessions, service: svc, pub: pub, logger: logger}
}

// Submissions returns the caller's latest vote and everyone else's.
func (h *ProposalHandler) Submissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	votes, err := h.sessions.Proposal(r.Context(), userID, r.PathValue("id")).Load(r.Context())
	if err != nil {
		writeError(w, h.logger, err, "load submissions")
		return
	}
	if votes.Others == nil {
		votes.Others = []model.VoteSubmission{}
	}
	writeJSON(w, http.StatusOK, votes)
}

type voteRequest struct {
	UserName string    `json:"user_name"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Comment  string    `json:"comment"`
	Location string    `json:"location"`
}

func (h *ProposalHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req voteRequest
	if _, err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	v, err := h.service.Submit(r.Context(), model.VoteSubmission{
		UserID:     userID,
		UserName:   req.UserName,
		ProposalID: r.PathValue("id"),
		From:       req.From,
		To:         req.To,
		Comment:    req.Comment,
		Location:   req.Location,
	})
	if err != nil {
		writeError(w, h.logger, err, "submit vote")
		return
	}
	h.pub.Publish(websocket.EntitySubmission, websocket.ActionCreated, v.ID, v)
	writeJSON(w, http.StatusCreated, v)
}

// Resolve fixes the proposal's time and place. With no body the choice is
// derived from the votes.
func (h *ProposalHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var choice proposal.Choice
	given, err := decodeBody(r, &choice)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	var cp *proposal.Choice
	if given {
		cp = &choice
	}

	a, err := h.service.Resolve(r.Context(), r.PathValue("id"), cp)
	if saved(err) {
		h.pub.Publish(websocket.EntityActivity, websocket.ActionChanged, a.ID, a)
	}
	if err != nil {
		writeError(w, h.logger, err, "resolve proposal")
		return
	}
	writeJSON(w, http.StatusOK, a)
}
