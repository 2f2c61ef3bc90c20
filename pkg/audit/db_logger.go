package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// DBLogger implements audit logging to the audit_logs table
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-based audit logger. The table is
// created by the schema migrations.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

func marshalOptional(v interface{}, empty bool) (interface{}, error) {
	if empty {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Log logs an audit event to the database
func (l *DBLogger) Log(ctx context.Context, event *AuditEvent) error {
	metadata, err := marshalOptional(event.Metadata, len(event.Metadata) == 0)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	changes, err := marshalOptional(event.Changes, event.Changes == nil)
	if err != nil {
		return fmt.Errorf("failed to marshal changes: %w", err)
	}

	var actorID interface{}
	if event.ActorID != "" {
		actorID = event.ActorID
	}

	query := `
		INSERT INTO audit_logs (
			timestamp, event_type, status, actor_id,
			resource_type, resource_id, request_id,
			message, error_message, metadata, changes
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10, $11
		) RETURNING id
	`

	err = l.db.QueryRowContext(ctx, query,
		event.Timestamp, string(event.EventType), string(event.Status), actorID,
		string(event.ResourceType), event.ResourceID, event.RequestID,
		event.Message, event.ErrorMessage, metadata, changes,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

func (f SearchFilter) where() (string, []interface{}) {
	clause := " WHERE 1=1"
	args := []interface{}{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		clause += fmt.Sprintf(cond, len(args))
	}

	if f.StartTime != nil {
		add(" AND timestamp >= $%d", *f.StartTime)
	}
	if f.EndTime != nil {
		add(" AND timestamp <= $%d", *f.EndTime)
	}
	if f.ActorID != "" {
		add(" AND actor_id = $%d", f.ActorID)
	}
	if len(f.EventTypes) > 0 {
		placeholders := make([]string, len(f.EventTypes))
		for i, et := range f.EventTypes {
			args = append(args, string(et))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clause += " AND event_type IN (" + strings.Join(placeholders, ", ") + ")"
	}
	if f.Status != "" {
		add(" AND status = $%d", string(f.Status))
	}
	if f.ResourceType != "" {
		add(" AND resource_type = $%d", string(f.ResourceType))
	}
	if f.ResourceID != "" {
		add(" AND resource_id = $%d", f.ResourceID)
	}
	return clause, args
}

// Search searches audit logs based on filters, newest first
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	where, args := filter.where()
	query := `
		SELECT
			id, timestamp, event_type, status, actor_id,
			resource_type, resource_id, request_id,
			message, error_message, metadata, changes
		FROM audit_logs` + where + " ORDER BY timestamp DESC, id DESC"

	// OFFSET is only honored together with LIMIT.
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	events := make([]*AuditEvent, 0)
	for rows.Next() {
		event := &AuditEvent{}
		var actorID, resourceType, resourceID, requestID, message, errorMessage, metadata, changes sql.NullString

		err := rows.Scan(
			&event.ID, &event.Timestamp, &event.EventType, &event.Status, &actorID,
			&resourceType, &resourceID, &requestID,
			&message, &errorMessage, &metadata, &changes,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		event.ActorID = actorID.String
		event.ResourceType = ResourceType(resourceType.String)
		event.ResourceID = resourceID.String
		event.RequestID = requestID.String
		event.Message = message.String
		event.ErrorMessage = errorMessage.String

		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		if changes.Valid && changes.String != "" {
			event.Changes = &ChangeDetails{}
			if err := json.Unmarshal([]byte(changes.String), event.Changes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}

	return events, nil
}

// GetStats retrieves audit log statistics for the filter's time range
func (l *DBLogger) GetStats(ctx context.Context, filter SearchFilter) (*AuditStats, error) {
	stats := &AuditStats{
		EventsByType:   make(map[EventType]int64),
		EventsByStatus: make(map[EventStatus]int64),
	}

	where, args := SearchFilter{StartTime: filter.StartTime, EndTime: filter.EndTime}.where()

	err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs"+where, args...).Scan(&stats.TotalEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to get total events: %w", err)
	}

	if err := l.groupCount(ctx, "event_type", where, args, func(k string, n int64) {
		stats.EventsByType[EventType(k)] = n
	}); err != nil {
		return nil, err
	}
	if err := l.groupCount(ctx, "status", where, args, func(k string, n int64) {
		stats.EventsByStatus[EventStatus(k)] = n
	}); err != nil {
		return nil, err
	}

	err = l.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT actor_id) FROM audit_logs"+where+" AND actor_id IS NOT NULL", args...,
	).Scan(&stats.UniqueActors)
	if err != nil {
		return nil, fmt.Errorf("failed to get unique actors: %w", err)
	}

	stats.AccessDenials = stats.EventsByStatus[EventStatusDenied]
	return stats, nil
}

func (l *DBLogger) groupCount(ctx context.Context, column, where string, args []interface{}, fn func(string, int64)) error {
	rows, err := l.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s, COUNT(*) FROM audit_logs%s GROUP BY %s", column, where, column), args...)
	if err != nil {
		return fmt.Errorf("failed to count events by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		fn(key, count)
	}
	return rows.Err()
}

// Close closes the database logger
func (l *DBLogger) Close() error {
	// The connection is shared with the stores.
	return nil
}
