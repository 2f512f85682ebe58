package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/huddle/internal/loader"
	"github.com/dukerupert/huddle/internal/store"
)

// Connectivity is the part of the connectivity monitor the status route
// reads.
type Connectivity interface {
	Connected() bool
	ChangedAt() time.Time
}

type StatusHandler struct {
	conn   Connectivity
	mirror *store.Mirror
	logger *slog.Logger
	now    func() time.Time
}

func NewStatusHandler(conn Connectivity, mirror *store.Mirror, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{conn: conn, mirror: mirror, logger: logger, now: time.Now}
}

type statusResponse struct {
	Connected  bool                 `json:"connected"`
	ChangedAt  time.Time            `json:"changed_at,omitzero"`
	Banner     string               `json:"banner,omitempty"`
	LastSynced map[string]time.Time `json:"last_synced"`
}

func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Connected:  h.conn.Connected(),
		ChangedAt:  h.conn.ChangedAt(),
		LastSynced: make(map[string]time.Time),
	}

	var newest time.Time
	for _, kind := range []store.Kind{store.KindGroup, store.KindMember, store.KindActivity} {
		t, err := h.mirror.LastSynced(r.Context(), kind)
		if err != nil {
			writeError(w, h.logger, err, "read sync status")
			return
		}
		if t.IsZero() {
			continue
		}
		resp.LastSynced[string(kind)] = t
		if t.After(newest) {
			newest = t
		}
	}
	if !resp.Connected {
		resp.Banner = loader.Banner(newest, h.now())
	}
	writeJSON(w, http.StatusOK, resp)
}
