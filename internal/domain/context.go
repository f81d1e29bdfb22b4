package domain

import "context"

type ctxKey string

const callerCtxKey ctxKey = "caller"

// ContextWithCaller returns a new context carrying the name of the agent or
// client issuing the current operation.
func ContextWithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerCtxKey, caller)
}

// CallerFromContext extracts the caller name from the context.
// Returns empty string if not set.
func CallerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(callerCtxKey).(string); ok {
		return v
	}
	return ""
}
