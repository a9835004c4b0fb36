package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// LinkKey is the context key for the link name
	LinkKey ContextKey = "link"
	// RunIDKey is the context key for the id of one link run
	RunIDKey ContextKey = "run_id"
	// ConnIDKey is the context key for the client connection id
	ConnIDKey ContextKey = "conn_id"
	// SessionIDKey is the context key for the ACP session id
	SessionIDKey ContextKey = "session_id"
)

// NewRunID generates a new run ID
func NewRunID() string {
	return uuid.New().String()
}

// WithLink adds the link name to the context
func WithLink(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, LinkKey, name)
}

// WithRunID adds a run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// WithConnID adds a connection ID to the context
func WithConnID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, ConnIDKey, connID)
}

// WithSessionID adds a session ID to the context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

func getString(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetLink retrieves the link name from the context
func GetLink(ctx context.Context) string { return getString(ctx, LinkKey) }

// GetRunID retrieves the run ID from the context
func GetRunID(ctx context.Context) string { return getString(ctx, RunIDKey) }

// GetConnID retrieves the connection ID from the context
func GetConnID(ctx context.Context) string { return getString(ctx, ConnIDKey) }

// GetSessionID retrieves the session ID from the context
func GetSessionID(ctx context.Context) string { return getString(ctx, SessionIDKey) }

// LoggerFromContext returns baseLogger enriched with whichever tracing fields
// ctx carries.
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	lc := baseLogger.With()
	for _, key := range []ContextKey{LinkKey, RunIDKey, ConnIDKey, SessionIDKey} {
		if v := getString(ctx, key); v != "" {
			lc = lc.Str(string(key), v)
		}
	}
	return lc.Logger()
}
