package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func sign(t *testing.T, claims Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestParse(t *testing.T) {
	tok := sign(t, Claims{
		UserID: "u1",
		Email:  "ana@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "provider-sub",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})

	id, err := Parse("Bearer "+tok, now)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id.UserID != "u1" || id.Email != "ana@example.com" || id.Token != tok {
		t.Errorf("id = %+v", id)
	}
}

func TestParseFallsBackToSubject(t *testing.T) {
	tok := sign(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u2"}})
	id, err := Parse(tok, now)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id.UserID != "u2" {
		t.Errorf("UserID = %q, want u2", id.UserID)
	}
}

func TestParseErrors(t *testing.T) {
	expired := sign(t, Claims{UserID: "u1", RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
	}})
	noSubject := sign(t, Claims{Email: "x@example.com"})

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrReauthRequired},
		{"expired", expired, ErrReauthRequired},
		{"garbage", "not-a-jwt", ErrInvalidToken},
		{"no subject", noSubject, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.token, now); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
