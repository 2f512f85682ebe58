package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dukerupert/huddle/internal/auth"
	"github.com/dukerupert/huddle/internal/identity"
)

// RequireIdentity parses the caller's ID token from the Authorization
// header, or uses fallbackToken when the header is absent, and puts the
// identity on the request context. Missing or expired tokens get a 401
// asking the user to sign in again.
func RequireIdentity(fallbackToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("Authorization")
			if token == "" {
				token = fallbackToken
			}

			id, err := identity.Parse(token, time.Now())
			if err != nil {
				writeAuthError(w, err)
				return
			}

			ctx := auth.WithIdentity(r.Context(), auth.Identity{UserID: id.UserID, Token: id.Token})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, err error) {
	msg := identity.ErrReauthRequired.Error()
	if errors.Is(err, identity.ErrInvalidToken) {
		msg = "invalid identity token, " + msg
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]any{"error": msg, "reauth": true})
}
