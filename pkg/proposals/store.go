package proposals

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/watchlist/pkg/moderation"
	"github.com/platinummonkey/watchlist/pkg/storage/postgres"
)

// Store persists proposals. Status changes go through the authorization
// gateway, not through the store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a proposal store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// PendingID returns the id of the pending proposal for animeID on listID,
// "" when there is none.
func (s *Store) PendingID(ctx context.Context, listID string, animeID int64) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM proposals
		WHERE list_id = $1 AND anime_id = $2 AND status = $3
		ORDER BY created_at ASC
		LIMIT 1`, listID, animeID, string(moderation.Pending),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up pending proposal: %w", err)
	}
	return id, nil
}

// Insert stores a new pending proposal.
func (s *Store) Insert(ctx context.Context, listID, userID string, animeID int64, title string, data json.RawMessage) (*Proposal, error) {
	p := &Proposal{
		ID:         uuid.NewString(),
		ListID:     listID,
		UserID:     userID,
		AnimeID:    animeID,
		AnimeTitle: &title,
		AnimeData:  data,
		Status:     moderation.Pending,
		CreatedAt:  s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proposals (id, list_id, user_id, anime_id, anime_title, anime_data, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, listID, userID, animeID, title, string(data), string(p.Status), p.CreatedAt, p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert proposal: %w", err)
	}
	return p, nil
}

// ForList returns the proposals of listID with their proposer's username,
// newest first. On a schema without the soft-cancel columns the rows are
// read without them.
func (s *Store) ForList(ctx context.Context, listID string) ([]Proposal, error) {
	out, err := s.forList(ctx, listID, true)
	if postgres.IsUndefinedColumn(err) {
		return s.forList(ctx, listID, false)
	}
	return out, err
}

func (s *Store) forList(ctx context.Context, listID string, softCancel bool) ([]Proposal, error) {
	cancelCols := "p.cancelled_at, p.cancelled_by"
	if !softCancel {
		cancelCols = "NULL, NULL"
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.list_id, p.user_id, p.anime_id, p.anime_title, p.anime_data, p.status,
			p.created_at, `+cancelCols+`, pr.username
		FROM proposals p
		LEFT JOIN profiles pr ON pr.id = p.user_id
		WHERE p.list_id = $1
		ORDER BY p.created_at DESC`, listID)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	defer rows.Close()

	out := []Proposal{}
	for rows.Next() {
		var p Proposal
		var status string
		var title, data, cancelledBy, username sql.NullString
		var cancelledAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.ListID, &p.UserID, &p.AnimeID, &title, &data, &status,
			&p.CreatedAt, &cancelledAt, &cancelledBy, &username); err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		p.Status = moderation.Normalize(status)
		if title.Valid {
			p.AnimeTitle = &title.String
		}
		if data.Valid && data.String != "" {
			p.AnimeData = json.RawMessage(data.String)
		}
		if cancelledAt.Valid {
			p.CancelledAt = &cancelledAt.Time
		}
		if cancelledBy.Valid {
			p.CancelledBy = &cancelledBy.String
		}
		if username.Valid {
			p.ProposerUsername = &username.String
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// IsPublicList reports whether listID exists and is public.
func (s *Store) IsPublicList(ctx context.Context, listID string) (bool, error) {
	var public bool
	err := s.db.QueryRowContext(ctx, `SELECT is_public FROM lists WHERE id = $1`, listID).Scan(&public)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up list visibility: %w", err)
	}
	return public, nil
}

// PurgeCancelledBefore deletes cancelled proposals whose cancellation (or
// last update, for rows cancelled before the soft-cancel columns existed)
// is older than cutoff.
func (s *Store) PurgeCancelledBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM proposals
		WHERE status = $1 AND COALESCE(cancelled_at, updated_at) < $2`,
		string(moderation.Cancelled), cutoff.UTC())
	if postgres.IsUndefinedColumn(err) {
		res, err = s.db.ExecContext(ctx, `
			DELETE FROM proposals
			WHERE status = $1 AND updated_at < $2`,
			string(moderation.Cancelled), cutoff.UTC())
	}
	if err != nil {
		return 0, fmt.Errorf("failed to purge cancelled proposals: %w", err)
	}
	return res.RowsAffected()
}
