package requestid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey int

const requestIDKey contextKey = iota

// Generate returns a fresh request id.
func Generate() string {
	return uuid.NewString()
}

func ToContext(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// FromContext returns the request id or an empty string when none was set.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// FromContextPtr is a convenience for response bodies with an optional
// request_id field.
func FromContextPtr(ctx context.Context) *string {
	if id := FromContext(ctx); id != "" {
		return &id
	}
	return nil
}

func FromRequest(r *http.Request) string {
	if id := r.Header.Get("x-request-id"); id != "" {
		return id
	}
	return FromContext(r.Context())
}
