package notifications

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store persists notifications.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a notification store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Insert stores a notification and returns it.
func (s *Store) Insert(ctx context.Context, userID, kind, message string, payload interface{}) (*Notification, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	n := &Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      kind,
		Message:   message,
		Payload:   raw,
		CreatedAt: s.now().UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, message, payload, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.UserID, n.Type, n.Message, string(raw), false, n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert notification: %w", err)
	}
	return n, nil
}

// List returns up to limit notifications of userID created strictly before
// cursor (when set), newest first.
func (s *Store) List(ctx context.Context, userID string, limit int, cursor *time.Time) ([]Notification, error) {
	query := `SELECT id, user_id, type, message, payload, is_read, created_at
		FROM notifications WHERE user_id = $1`
	args := []interface{}{userID}
	if cursor != nil {
		args = append(args, cursor.UTC())
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		var n Notification
		var payload sql.NullString
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Message, &payload, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if payload.Valid && payload.String != "" {
			n.Payload = json.RawMessage(payload.String)
		} else {
			n.Payload = json.RawMessage(`{}`)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// UnreadCount returns the number of unread notifications of userID.
func (s *Store) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = $2`,
		userID, false,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return n, nil
}

// MarkAllRead marks every unread notification of userID as read.
func (s *Store) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = $1 WHERE user_id = $2 AND is_read = $3`,
		true, userID, false)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return res.RowsAffected()
}

// MarkRead marks the given notifications of userID as read. Ids belonging to
// other members are ignored.
func (s *Store) MarkRead(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := []interface{}{true, userID}
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		args = append(args, id)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = $1 WHERE user_id = $2 AND id IN (`+strings.Join(placeholders, ", ")+`)`,
		args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return res.RowsAffected()
}

// DeleteReadBefore removes read notifications older than cutoff.
func (s *Store) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE is_read = $1 AND created_at < $2`,
		true, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune notifications: %w", err)
	}
	return res.RowsAffected()
}
