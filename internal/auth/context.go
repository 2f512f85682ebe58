// Package auth carries the caller's identity through request contexts.
package auth

import "context"

type contextKey struct{}

// Identity is the signed-in user a request acts for.
type Identity struct {
	UserID string
	Token  string
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

func UserID(ctx context.Context) string {
	id, _ := FromContext(ctx)
	return id.UserID
}

// Token returns the caller's bearer token, or "" when there is none.
func Token(ctx context.Context) string {
	id, _ := FromContext(ctx)
	return id.Token
}
