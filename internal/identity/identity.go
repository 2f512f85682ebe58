// Package identity reads the user id out of the identity provider's ID
// token. Signature checks are left to the backend, which receives the same
// token on every request.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrReauthRequired means the user must sign in again.
	ErrReauthRequired = errors.New("please sign in again")
	ErrInvalidToken   = errors.New("invalid identity token")
)

// Claims are the ID token fields the agent relies on.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Identity is a parsed, unexpired token.
type Identity struct {
	UserID    string
	Email     string
	Name      string
	Token     string
	ExpiresAt time.Time
}

// Parse decodes token without verifying its signature. The user id is the
// user_id claim, falling back to sub.
func Parse(token string, now time.Time) (Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return Identity{}, ErrReauthRequired
	}

	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id := Identity{UserID: claims.UserID, Email: claims.Email, Name: claims.Name, Token: token}
	if id.UserID == "" {
		id.UserID = claims.Subject
	}
	if id.UserID == "" {
		return Identity{}, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
		if !now.Before(id.ExpiresAt) {
			return Identity{}, ErrReauthRequired
		}
	}
	return id, nil
}
