package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/watchlist/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// Close closes the logger and flushes any buffered logs
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context
func FromContext(ctx context.Context) Logger {
	if logger, ok := contextkeys.GetAuditLogger(ctx).(Logger); ok && logger != nil {
		return logger
	}
	return NoOp()
}

// NoOp returns a logger that drops every event.
func NoOp() Logger {
	return noOpLogger{}
}

type noOpLogger struct{}

func (noOpLogger) Log(ctx context.Context, event *AuditEvent) error { return nil }
func (noOpLogger) Close() error { return nil }

// buildBaseEvent creates a base audit event with common fields populated
func buildBaseEvent(ctx context.Context, eventType EventType, status EventStatus) *AuditEvent {
	return &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		ActorID:   contextkeys.GetUserID(ctx),
		RequestID: contextkeys.GetRequestID(ctx),
		Metadata:  make(map[string]interface{}),
	}
}

// LogDataMutation logs a successful change to a resource.
func LogDataMutation(ctx context.Context, l Logger, eventType EventType, actorID string, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) error {
	event := buildBaseEvent(ctx, eventType, EventStatusSuccess)
	if actorID != "" {
		event.ActorID = actorID
	}
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Changes = changes
	event.Message = message
	return logTo(ctx, l, event)
}

// LogAdminAction logs an admin action on another member.
func LogAdminAction(ctx context.Context, l Logger, eventType EventType, adminID, targetUserID, message string) error {
	event := buildBaseEvent(ctx, eventType, EventStatusSuccess)
	if adminID != "" {
		event.ActorID = adminID
	}
	event.ResourceType = ResourceTypeUser
	event.ResourceID = targetUserID
	event.Message = message
	return logTo(ctx, l, event)
}

// LogDenied logs a refused operation with the error kind as reason.
func LogDenied(ctx context.Context, l Logger, eventType EventType, resourceType ResourceType, resourceID, reason string) error {
	event := buildBaseEvent(ctx, eventType, EventStatusDenied)
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = fmt.Sprintf("Access denied: %s", reason)
	return logTo(ctx, l, event)
}

func logTo(ctx context.Context, l Logger, event *AuditEvent) error {
	if l == nil {
		l = FromContext(ctx)
	}
	return l.Log(ctx, event)
}
