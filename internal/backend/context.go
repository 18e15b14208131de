package backend

import "context"

type userKey struct{}

// WithUser returns a context acting as userID against the record store.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFrom returns the acting user id, or "" for anonymous access.
func UserFrom(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}
