package testutil

import (
	"context"
	"net/http"

	"verifier/pkg/requestcontext"
)

// WithActor adds an actor to the request context.
// This simulates what the principal middleware does for authenticated requests.
func WithActor(req *http.Request, actorID string) *http.Request {
	if actorID == "" {
		return req
	}
	return req.WithContext(requestcontext.WithActorID(req.Context(), actorID))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
