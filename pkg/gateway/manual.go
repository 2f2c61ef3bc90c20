package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/moderation"
	"github.com/platinummonkey/watchlist/pkg/storage/postgres"
)

// Manual implements Gateway with plain table access.
type Manual struct {
	db  *sql.DB
	now func() time.Time
}

// NewManual creates the plain-access gateway.
func NewManual(db *sql.DB) *Manual {
	return &Manual{db: db, now: time.Now}
}

// Mode implements Gateway.
func (m *Manual) Mode() string {
	return ModeManual
}

// WhoAmIFlags implements Gateway.
func (m *Manual) WhoAmIFlags(ctx context.Context, userID string) (Flags, error) {
	var flags Flags
	err := m.db.QueryRowContext(ctx,
		`SELECT role, is_admin FROM profiles WHERE id = $1`, userID,
	).Scan(&flags.Role, &flags.IsAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return Flags{}, nil
	}
	if err != nil {
		return Flags{}, fmt.Errorf("failed to load flags: %w", err)
	}
	flags.Found = true
	return flags, nil
}

// AdminListUsers implements Gateway.
func (m *Manual) AdminListUsers(ctx context.Context, search string, limit, offset int) ([]UserRow, int64, error) {
	where := ""
	args := []interface{}{}
	if s := strings.TrimSpace(search); s != "" {
		where = " WHERE LOWER(username) LIKE $1"
		args = append(args, "%"+strings.ToLower(s)+"%")
	}

	var total int64
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := fmt.Sprintf(`SELECT id, username, role, is_admin, created_at FROM profiles%s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []UserRow{}
	for rows.Next() {
		var u UserRow
		var username sql.NullString
		if err := rows.Scan(&u.ID, &username, &u.Role, &u.IsAdmin, &u.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Username = nullableString(username)
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// ListMyGroups implements Gateway. Ownership wins over a member row.
func (m *Manual) ListMyGroups(ctx context.Context, userID string) ([]GroupRow, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT g.id, g.name, g.owner_id, g.created_at, COALESCE(gm.role, '')
		FROM groups g
		LEFT JOIN group_members gm ON gm.group_id = g.id AND gm.user_id = $1
		WHERE g.owner_id = $1 OR gm.user_id IS NOT NULL
		ORDER BY g.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	groups := []GroupRow{}
	for rows.Next() {
		var g GroupRow
		if err := rows.Scan(&g.ID, &g.Name, &g.OwnerID, &g.CreatedAt, &g.MyRole); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		switch {
		case g.OwnerID == userID:
			g.MyRole = "owner"
		case g.MyRole == "":
			g.MyRole = "member"
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// GroupRole implements Gateway.
func (m *Manual) GroupRole(ctx context.Context, groupID, userID string) (string, error) {
	var ownerID string
	err := m.db.QueryRowContext(ctx, `SELECT owner_id FROM groups WHERE id = $1`, groupID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load group: %w", err)
	}
	if ownerID == userID {
		return "owner", nil
	}

	var role string
	err = m.db.QueryRowContext(ctx,
		`SELECT role FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load group role: %w", err)
	}
	return role, nil
}

// GroupMembers implements Gateway.
func (m *Manual) GroupMembers(ctx context.Context, groupID string) ([]MemberRow, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT gm.user_id, p.username, gm.role, gm.joined_at
		FROM group_members gm
		LEFT JOIN profiles p ON p.id = gm.user_id
		WHERE gm.group_id = $1
		ORDER BY gm.joined_at ASC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []MemberRow{}
	for rows.Next() {
		var mr MemberRow
		var username sql.NullString
		if err := rows.Scan(&mr.UserID, &username, &mr.Role, &mr.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		mr.Username = nullableString(username)
		members = append(members, mr)
	}
	return members, rows.Err()
}

type listAccessRow struct {
	ownerID      string
	groupID      sql.NullString
	isGlobal     bool
	groupOwnerID sql.NullString
}

func (m *Manual) loadList(ctx context.Context, listID string) (*listAccessRow, error) {
	var l listAccessRow
	err := m.db.QueryRowContext(ctx, `
		SELECT l.owner_id, l.group_id, l.is_global, g.owner_id
		FROM lists l
		LEFT JOIN groups g ON g.id = l.group_id
		WHERE l.id = $1`, listID,
	).Scan(&l.ownerID, &l.groupID, &l.isGlobal, &l.groupOwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load list: %w", err)
	}
	return &l, nil
}

func (l *listAccessRow) moderationOwner(userID string) bool {
	return l.ownerID == userID || (l.groupOwnerID.Valid && l.groupOwnerID.String == userID)
}

// CanAccessList implements Gateway. Group-bound lists follow group
// membership, other lists follow list membership; owners are always in and
// global lists are open to every authenticated member.
func (m *Manual) CanAccessList(ctx context.Context, listID, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	l, err := m.loadList(ctx, listID)
	if err != nil || l == nil {
		return false, err
	}
	return m.canAccess(ctx, listID, l, userID)
}

func (m *Manual) canAccess(ctx context.Context, listID string, l *listAccessRow, userID string) (bool, error) {
	if l.isGlobal || l.moderationOwner(userID) {
		return true, nil
	}

	var query string
	var args []interface{}
	if l.groupID.Valid {
		query = `SELECT COUNT(*) FROM group_members WHERE group_id = $1 AND user_id = $2`
		args = []interface{}{l.groupID.String, userID}
	} else {
		query = `SELECT COUNT(*) FROM list_members WHERE list_id = $1 AND user_id = $2`
		args = []interface{}{listID, userID}
	}

	var n int
	if err := m.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check list access: %w", err)
	}
	return n > 0, nil
}

// IsModerationOwner reports whether userID owns listID or its group.
func (m *Manual) IsModerationOwner(ctx context.Context, listID, userID string) (bool, error) {
	l, err := m.loadList(ctx, listID)
	if err != nil || l == nil {
		return false, err
	}
	return l.moderationOwner(userID), nil
}

// UpdateProposalStatus implements Gateway: status validation, load, access,
// then the moderation rules, then the write.
func (m *Manual) UpdateProposalStatus(ctx context.Context, change ProposalStatusChange) (ProposalUpdate, error) {
	target, err := moderation.Parse(change.Status)
	if err != nil {
		return ProposalUpdate{}, err
	}

	upd := ProposalUpdate{ProposalID: change.ProposalID, Status: target}
	var current string
	var title sql.NullString
	err = m.db.QueryRowContext(ctx,
		`SELECT list_id, user_id, anime_id, anime_title, status FROM proposals WHERE id = $1`, change.ProposalID,
	).Scan(&upd.ListID, &upd.ProposerID, &upd.AnimeID, &title, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return ProposalUpdate{}, apperr.ErrNotFound
	}
	if err != nil {
		return ProposalUpdate{}, fmt.Errorf("failed to load proposal: %w", err)
	}
	upd.AnimeTitle = title.String
	upd.Previous = moderation.Normalize(current)

	l, err := m.loadList(ctx, upd.ListID)
	if err != nil {
		return ProposalUpdate{}, err
	}
	if l == nil || change.ActorID == "" {
		return ProposalUpdate{}, apperr.ErrForbidden
	}
	ok, err := m.canAccess(ctx, upd.ListID, l, change.ActorID)
	if err != nil {
		return ProposalUpdate{}, err
	}
	if !ok {
		return ProposalUpdate{}, apperr.ErrForbidden
	}

	noop, err := moderation.Check(moderation.Transition{
		Current:         upd.Previous,
		Target:          target,
		ActorID:         change.ActorID,
		ProposerID:      upd.ProposerID,
		ModerationOwner: l.moderationOwner(change.ActorID),
	})
	if err != nil || noop {
		return upd, err
	}

	if target == moderation.Cancelled {
		return m.cancel(ctx, change, upd)
	}

	if _, err := m.db.ExecContext(ctx,
		`UPDATE proposals SET status = $1, updated_at = $2 WHERE id = $3`,
		string(target), m.now().UTC(), change.ProposalID,
	); err != nil {
		return ProposalUpdate{}, fmt.Errorf("failed to update proposal: %w", err)
	}
	upd.Changed = true
	return upd, nil
}

// cancel soft-cancels; when the schema has no cancel columns it falls back to
// a plain status update, or a delete when the caller asked for it.
func (m *Manual) cancel(ctx context.Context, change ProposalStatusChange, upd ProposalUpdate) (ProposalUpdate, error) {
	now := m.now().UTC()
	_, err := m.db.ExecContext(ctx,
		`UPDATE proposals SET status = $1, updated_at = $2, cancelled_at = $3, cancelled_by = $4 WHERE id = $5`,
		string(moderation.Cancelled), now, now, change.ActorID, change.ProposalID)
	if err == nil {
		upd.Changed = true
		return upd, nil
	}
	if !postgres.IsUndefinedColumn(err) {
		return ProposalUpdate{}, fmt.Errorf("failed to cancel proposal: %w", err)
	}

	if change.HardDeleteFallback {
		if _, err := m.db.ExecContext(ctx, `DELETE FROM proposals WHERE id = $1`, change.ProposalID); err != nil {
			return ProposalUpdate{}, fmt.Errorf("failed to delete proposal: %w", err)
		}
		upd.Changed = true
		upd.Deleted = true
		return upd, nil
	}

	if _, err := m.db.ExecContext(ctx,
		`UPDATE proposals SET status = $1 WHERE id = $2`, string(moderation.Cancelled), change.ProposalID,
	); err != nil {
		return ProposalUpdate{}, fmt.Errorf("failed to cancel proposal: %w", err)
	}
	upd.Changed = true
	return upd, nil
}

// ProfilesSuggest implements Gateway.
func (m *Manual) ProfilesSuggest(ctx context.Context, query string, limit int) ([]Suggestion, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, username FROM profiles
		WHERE username IS NOT NULL AND LOWER(username) LIKE $1
		ORDER BY username
		LIMIT $2`, strings.ToLower(strings.TrimSpace(query))+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest profiles: %w", err)
	}
	defer rows.Close()

	out := []Suggestion{}
	for rows.Next() {
		var s Suggestion
		if err := rows.Scan(&s.ID, &s.Username); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ProfileIDByUsername implements Gateway.
func (m *Manual) ProfileIDByUsername(ctx context.Context, username string) (string, error) {
	var id string
	err := m.db.QueryRowContext(ctx,
		`SELECT id FROM profiles WHERE LOWER(username) = LOWER($1) LIMIT 1`, strings.TrimSpace(username),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve username: %w", err)
	}
	return id, nil
}
