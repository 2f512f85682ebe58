// Package handler serves the local JSON API over the loader, the view
// controllers and the proposal service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/huddle/internal/auth"
	"github.com/dukerupert/huddle/internal/controller"
	"github.com/dukerupert/huddle/internal/identity"
	"github.com/dukerupert/huddle/internal/proposal"
	"github.com/dukerupert/huddle/internal/remote"
)

const unavailableMsg = "remote store unavailable, showing what is cached locally"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

var errNotMember = errors.New("not a member of this group")

// writeError maps a domain error to a status code. Only unexpected
// failures are logged; action names what was being attempted.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error, action string) {
	var partial *proposal.PartialError
	switch {
	case errors.As(err, &partial):
		writeJSON(w, http.StatusMultiStatus, map[string]any{
			"activity": partial.Activity,
			"warning":  partial.Step + " failed: " + partial.Err.Error(),
		})
	case errors.Is(err, remote.ErrUnauthenticated), errors.Is(err, identity.ErrReauthRequired):
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": identity.ErrReauthRequired.Error(), "reauth": true})
	case errors.Is(err, proposal.ErrInvalid):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, proposal.ErrAlreadyResolved), errors.Is(err, proposal.ErrNoConsensus):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, errNotMember):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, remote.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case remote.IsUnavailable(err):
		logger.Warn("remote store unavailable", "action", action, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": unavailableMsg})
	case errors.Is(err, controller.ErrDisposed), errors.Is(err, context.Canceled):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "request abandoned"})
	default:
		logger.Error("request failed", "action", action, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to " + action})
	}
}

// callerID returns the signed-in user, writing a 401 when there is none.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := auth.UserID(r.Context())
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": identity.ErrReauthRequired.Error(), "reauth": true})
		return "", false
	}
	return id, true
}

// decodeBody decodes a JSON request body. An empty body leaves v untouched
// and reports false.
func decodeBody(r *http.Request, v any) (bool, error) {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	return err == nil, err
}
