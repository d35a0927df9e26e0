package middleware

import (
	"context"
	"net/http"
	"strings"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// ActorContextKey is the context key for the acting user
	ActorContextKey ContextKey = "actor"

	// ActorHeader carries the acting user's id.
	ActorHeader = "X-Actor-ID"
)

// Actor stores the X-Actor-ID header in the request context.
// Requests without the header proceed with no actor.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := strings.TrimSpace(r.Header.Get(ActorHeader))
		if actor != "" {
			r = r.WithContext(WithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}

// WithActor returns a context carrying actor.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ActorContextKey, actor)
}

// ActorFromContext returns the actor id, or "" when none was sent.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(ActorContextKey).(string)
	return actor
}
