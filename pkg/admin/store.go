package admin

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/moderation"
	"github.com/platinummonkey/watchlist/pkg/storage/postgres"
)

// Store holds the admin-only queries over lists and proposals.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates an admin store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// CreateGlobalList inserts a public global list owned by ownerID.
func (s *Store) CreateGlobalList(ctx context.Context, ownerID, name string) (*GlobalList, error) {
	l := &GlobalList{ID: uuid.NewString(), OwnerID: ownerID, Name: name, CreatedAt: s.now().UTC()}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lists (id, owner_id, user_id, name, is_public, is_global, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.ID, ownerID, ownerID, name, true, true, l.CreatedAt)
	if postgres.IsUniqueViolation(err) {
		return nil, apperr.ErrConflict.WithHint("a list with this name already exists")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create global list: %w", err)
	}
	return l, nil
}

// GlobalLists returns every global list, newest first.
func (s *Store) GlobalLists(ctx context.Context) ([]GlobalList, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, created_at FROM lists
		WHERE is_global = $1
		ORDER BY created_at DESC`, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list global lists: %w", err)
	}
	defer rows.Close()

	out := []GlobalList{}
	for rows.Next() {
		var l GlobalList
		if err := rows.Scan(&l.ID, &l.OwnerID, &l.Name, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan global list: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// RecentProposals returns the latest proposals across all lists.
func (s *Store) RecentProposals(ctx context.Context, limit int) ([]ProposalRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, list_id, user_id, anime_title, status, created_at
		FROM proposals
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	defer rows.Close()

	out := []ProposalRow{}
	for rows.Next() {
		var p ProposalRow
		var title sql.NullString
		if err := rows.Scan(&p.ID, &p.ListID, &p.UserID, &title, &p.Status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		if title.Valid {
			t := title.String
			p.AnimeTitle = &t
		}
		p.Status = string(moderation.Normalize(p.Status))
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteProposal hard-deletes a proposal and reports whether it existed.
func (s *Store) DeleteProposal(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM proposals WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete proposal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete proposal: %w", err)
	}
	return n > 0, nil
}
