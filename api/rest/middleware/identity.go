package middleware

import (
	"context"
	"net/http"
)

// IdentityHeader carries the verified user ID, set by the fronting auth
// proxy. Requests without it are treated as anonymous.
const IdentityHeader = "X-User-ID"

type contextKey struct{}

var requesterKey contextKey

// Identity extracts the requester identity from the trusted header and
// stores it on the request context.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(IdentityHeader); id != "" {
			r = r.WithContext(context.WithValue(r.Context(), requesterKey, id))
		}
		next.ServeHTTP(w, r)
	})
}

// RequesterFrom returns the verified requester identity, or nil for
// anonymous requests.
func RequesterFrom(ctx context.Context) *string {
	if id, ok := ctx.Value(requesterKey).(string); ok {
		return &id
	}
	return nil
}
