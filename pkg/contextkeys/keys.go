// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so that a
// key is written and read through one typed helper pair.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/watchlist/pkg/contextkeys"
//	ctx = contextkeys.WithCaller(ctx, caller)
//	caller, _ := contextkeys.GetCaller(ctx).(*identity.Caller)
package contextkeys

import (
	"context"
	"time"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// CallerKey contains *identity.Caller
	// Set by: identity.Middleware (pkg/identity/middleware.go)
	// Required by: every handler that needs the authenticated member
	// Type: *identity.Caller
	CallerKey Key = "caller"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated member id
	// Set by: identity.Middleware after token verification
	// Used by: Logger, audit trail
	// Type: string
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.LoggingMiddleware
	// Used by: Handlers and services that log with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// AuditLoggerKey contains audit.Logger interface
	// Used by: services that record audit events without holding a logger
	// Type: audit.Logger
	AuditLoggerKey Key = "audit_logger"

	// RequestStartTimeKey contains request start timestamp
	// Set by: httputil.LoggingMiddleware
	// Type: time.Time
	RequestStartTimeKey Key = "request_start_time"
)

// WithCaller adds the resolved caller to the context
func WithCaller(ctx context.Context, caller interface{}) context.Context {
	return context.WithValue(ctx, CallerKey, caller)
}

// GetCaller retrieves the resolved caller (may be nil)
func GetCaller(ctx context.Context) interface{} {
	return ctx.Value(CallerKey)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetLogger retrieves the logger stored in the context (may be nil)
func GetLogger(ctx context.Context) interface{} {
	return ctx.Value(LoggerKey)
}

// WithAuditLogger adds audit logger to the context
func WithAuditLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, AuditLoggerKey, logger)
}

// GetAuditLogger retrieves the audit logger stored in the context (may be nil)
func GetAuditLogger(ctx context.Context) interface{} {
	return ctx.Value(AuditLoggerKey)
}

// WithRequestStartTime adds request start time to the context
func WithRequestStartTime(ctx context.Context, startTime time.Time) context.Context {
	return context.WithValue(ctx, RequestStartTimeKey, startTime)
}

// GetRequestStartTime retrieves request start time from context
func GetRequestStartTime(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(RequestStartTimeKey).(time.Time)
	return t, ok
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
