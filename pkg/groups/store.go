package groups

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/watchlist/pkg/apperr"
)

// Store persists groups, memberships and invitations.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a group store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// CreateGroup inserts a group and its owner membership in one transaction.
func (s *Store) CreateGroup(ctx context.Context, name, ownerID string) (*Group, error) {
	g := &Group{ID: uuid.NewString(), Name: name, OwnerID: ownerID, CreatedAt: s.now().UTC()}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO groups (id, name, owner_id, created_at) VALUES ($1, $2, $3, $4)`,
		g.ID, g.Name, g.OwnerID, g.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES ($1, $2, $3, $4)`,
		g.ID, ownerID, RoleOwner, g.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to add group owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit group: %w", err)
	}
	return g, nil
}

// GetGroup returns a group, or apperr.ErrNotFound.
func (s *Store) GetGroup(ctx context.Context, id string) (*Group, error) {
	g := &Group{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, created_at FROM groups WHERE id = $1`, id,
	).Scan(&g.ID, &g.Name, &g.OwnerID, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return g, nil
}

// IsMember reports whether userID has a membership row in groupID.
func (s *Store) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM group_members WHERE group_id = $1 AND user_id = $2`,
		groupID, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return n > 0, nil
}

// AddMember inserts a plain membership unless one exists and reports
// whether a row was written.
func (s *Store) AddMember(ctx context.Context, groupID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO group_members (group_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_id, user_id) DO NOTHING`,
		groupID, userID, RoleMember, s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to add member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// RemoveMember deletes a membership and reports whether it existed.
func (s *Store) RemoveMember(ctx context.Context, groupID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to remove member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// CountOwners returns the number of owner memberships of groupID.
func (s *Store) CountOwners(ctx context.Context, groupID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM group_members WHERE group_id = $1 AND role = $2`,
		groupID, RoleOwner,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count group owners: %w", err)
	}
	return n, nil
}

// PendingInvitation returns the pending invitation of userID to groupID, or
// nil.
func (s *Store) PendingInvitation(ctx context.Context, groupID, userID string) (*Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx, `
		SELECT id, group_id, invited_user_id, invited_by, status, created_at
		FROM group_invitations
		WHERE group_id = $1 AND invited_user_id = $2 AND status = $3
		LIMIT 1`, groupID, userID, string(InvitePending)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending invitation: %w", err)
	}
	return inv, nil
}

// CreateInvitation inserts a pending invitation.
func (s *Store) CreateInvitation(ctx context.Context, groupID, userID, invitedBy string) (*Invitation, error) {
	inv := &Invitation{
		ID:            uuid.NewString(),
		GroupID:       groupID,
		InvitedUserID: userID,
		InvitedBy:     invitedBy,
		Status:        InvitePending,
		CreatedAt:     s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_invitations (id, group_id, invited_user_id, invited_by, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		inv.ID, inv.GroupID, inv.InvitedUserID, inv.InvitedBy, string(inv.Status), inv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}
	return inv, nil
}

// GetInvitation returns an invitation, or apperr.ErrNotFound.
func (s *Store) GetInvitation(ctx context.Context, id string) (*Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx, `
		SELECT id, group_id, invited_user_id, invited_by, status, created_at
		FROM group_invitations WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

// ResolveInvitation moves a pending invitation to status and reports
// whether it was still pending.
func (s *Store) ResolveInvitation(ctx context.Context, id string, status InviteStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE group_invitations SET status = $1, responded_at = $2
		WHERE id = $3 AND status = $4`,
		string(status), s.now().UTC(), id, string(InvitePending))
	if err != nil {
		return false, fmt.Errorf("failed to update invitation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// ListInvitations returns invitations received (incoming) or sent by
// userID, newest first, optionally restricted to status.
func (s *Store) ListInvitations(ctx context.Context, userID string, incoming bool, status InviteStatus) ([]InvitationView, error) {
	column := "i.invited_by"
	if incoming {
		column = "i.invited_user_id"
	}
	query := `
		SELECT i.id, i.group_id, i.invited_user_id, i.invited_by, i.status, i.created_at,
		       g.name, inviter.username, invitee.username
		FROM group_invitations i
		JOIN groups g ON g.id = i.group_id
		LEFT JOIN profiles inviter ON inviter.id = i.invited_by
		LEFT JOIN profiles invitee ON invitee.id = i.invited_user_id
		WHERE ` + column + ` = $1`
	args := []interface{}{userID}
	if status != "" {
		query += ` AND i.status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY i.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	out := []InvitationView{}
	for rows.Next() {
		var v InvitationView
		var raw string
		var inviter, invitee sql.NullString
		if err := rows.Scan(&v.ID, &v.GroupID, &v.InvitedUserID, &v.InvitedBy, &raw, &v.CreatedAt,
			&v.GroupName, &inviter, &invitee); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		v.Status = InviteStatus(raw)
		v.InviterUsername = nullableString(inviter)
		v.InvitedUsername = nullableString(invitee)
		out = append(out, v)
	}
	return out, rows.Err()
}

// ExpirePendingInvitations declines invitations left pending since before
// cutoff.
func (s *Store) ExpirePendingInvitations(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE group_invitations SET status = $1, responded_at = $2
		WHERE status = $3 AND created_at < $4`,
		string(InviteDeclined), s.now().UTC(), string(InvitePending), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire invitations: %w", err)
	}
	return res.RowsAffected()
}

// DeleteStaleInvitations removes resolved invitations answered before
// cutoff.
func (s *Store) DeleteStaleInvitations(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM group_invitations WHERE status <> $1 AND responded_at < $2`,
		string(InvitePending), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale invitations: %w", err)
	}
	return res.RowsAffected()
}

func scanInvitation(row interface{ Scan(...interface{}) error }) (*Invitation, error) {
	inv := &Invitation{}
	var status string
	if err := row.Scan(&inv.ID, &inv.GroupID, &inv.InvitedUserID, &inv.InvitedBy, &status, &inv.CreatedAt); err != nil {
		return nil, err
	}
	inv.Status = InviteStatus(status)
	return inv, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
