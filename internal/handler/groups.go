package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/huddle/internal/controller"
	"github.com/dukerupert/huddle/internal/loader"
	"github.com/dukerupert/huddle/internal/store"
)

type GroupHandler struct {
	sessions *controller.Sessions
	loader   *loader.Loader
	mirror   *store.Mirror
	logger   *slog.Logger
}

func NewGroupHandler(sessions *controller.Sessions, l *loader.Loader, mirror *store.Mirror, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{sessions: sessions, loader: l, mirror: mirror, logger: logger}
}

func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	view, err := h.sessions.Get(r.Context(), userID).Groups.Load(r.Context())
	if err != nil {
		writeError(w, h.logger, err, "load groups")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Members lists a group's member profiles. Only members of the group may
// list them; membership is checked against the group as just loaded.
func (h *GroupHandler) Members(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	groupID := r.PathValue("id")
	res, err := h.loader.Members(r.Context(), groupID)
	if err != nil {
		writeError(w, h.logger, err, "load members")
		return
	}
	g, err := h.mirror.Groups.GetByID(r.Context(), groupID)
	if err != nil {
		writeError(w, h.logger, err, "load members")
		return
	}
	if g == nil || !g.HasMember(caller) {
		writeError(w, h.logger, errNotMember, "load members")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Image serves the cached group image. Until the download completes the
// response is a 404 flagged as a placeholder.
func (h *GroupHandler) Image(w http.ResponseWriter, r *http.Request) {
	g, err := h.mirror.Groups.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err, "load group image")
		return
	}
	if g == nil || !g.HasImage() {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "image not cached", "placeholder": true})
		return
	}

	etag := `"` + g.ImageDigest + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, max-age=300")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(g.Image))
	w.WriteHeader(http.StatusOK)
	w.Write(g.Image)
}
