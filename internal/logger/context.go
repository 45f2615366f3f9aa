package logger

import "context"

type contextKey struct{}

var requestIDKey = contextKey{}

// WithRequestID returns a new context with the given request ID stored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request ID from the context, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Detach returns a background context that keeps the request ID of ctx but
// none of its cancellation. Used for bookkeeping that must outlive a request.
func Detach(ctx context.Context) context.Context {
	if id := RequestID(ctx); id != "" {
		return WithRequestID(context.Background(), id)
	}
	return context.Background()
}
