// Package identity is the signed in user collaborator. It yields an identity
// or none and carries it on the request context; nothing downstream inspects
// it beyond passing it through to procedures.
package identity

import (
	"context"

	"github.com/google/uuid"
)

// User is a signed in identity.
type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

type userContextKey struct{}

// WithUser attaches u to ctx.
func WithUser(ctx context.Context, u User) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if u.ID == uuid.Nil {
		return ctx
	}
	return context.WithValue(ctx, userContextKey{}, u)
}

// FromContext returns the signed in user, if any.
func FromContext(ctx context.Context) (User, bool) {
	if ctx == nil {
		return User{}, false
	}
	u, ok := ctx.Value(userContextKey{}).(User)
	return u, ok
}

// SignedIn reports whether ctx carries a user.
func SignedIn(ctx context.Context) bool {
	_, ok := FromContext(ctx)
	return ok
}
