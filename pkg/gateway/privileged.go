package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/watchlist/pkg/contextkeys"
	"github.com/platinummonkey/watchlist/pkg/moderation"
	"github.com/platinummonkey/watchlist/pkg/observability"
	"github.com/platinummonkey/watchlist/pkg/storage/postgres"
)

// Privileged implements Gateway on top of the SECURITY DEFINER procedures.
// A procedure dropped after startup (42883) falls back to the manual path
// for that call.
type Privileged struct {
	db       *sql.DB
	fallback *Manual
	logger   *observability.Logger
}

// NewPrivileged creates a procedure-backed gateway.
func NewPrivileged(db *sql.DB, fallback *Manual, logger *observability.Logger) *Privileged {
	if logger == nil {
		logger = observability.Default()
	}
	if fallback == nil {
		fallback = NewManual(db)
	}
	return &Privileged{db: db, fallback: fallback, logger: logger}
}

// Mode implements Gateway.
func (p *Privileged) Mode() string {
	return ModePrivileged
}

func (p *Privileged) missing(ctx context.Context, procedure string, err error) bool {
	if !postgres.IsUndefinedFunction(err) {
		return false
	}
	logger := p.logger
	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		logger = logger.WithField("request_id", requestID)
	}
	logger.WithField("procedure", procedure).
		Warn("procedure missing, using manual query")
	return true
}

// WhoAmIFlags implements Gateway.
func (p *Privileged) WhoAmIFlags(ctx context.Context, userID string) (Flags, error) {
	var flags Flags
	err := p.db.QueryRowContext(ctx, `SELECT role, is_admin FROM whoami_flags($1)`, userID).
		Scan(&flags.Role, &flags.IsAdmin)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Flags{}, nil
	case p.missing(ctx, "whoami_flags", err):
		return p.fallback.WhoAmIFlags(ctx, userID)
	case err != nil:
		return Flags{}, fmt.Errorf("whoami_flags failed: %w", err)
	}
	flags.Found = true
	return flags, nil
}

// AdminListUsers implements Gateway.
func (p *Privileged) AdminListUsers(ctx context.Context, search string, limit, offset int) ([]UserRow, int64, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, username, role, is_admin, created_at, total_count FROM admin_list_users($1, $2, $3)`,
		search, limit, offset)
	if p.missing(ctx, "admin_list_users", err) {
		return p.fallback.AdminListUsers(ctx, search, limit, offset)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("admin_list_users failed: %w", err)
	}
	defer rows.Close()

	var total int64
	users := []UserRow{}
	for rows.Next() {
		var u UserRow
		var username sql.NullString
		if err := rows.Scan(&u.ID, &username, &u.Role, &u.IsAdmin, &u.CreatedAt, &total); err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Username = nullableString(username)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// An offset past the end returns no rows and therefore no window count.
	if len(users) == 0 && offset > 0 {
		_, total, err = p.fallback.AdminListUsers(ctx, search, 1, 0)
		if err != nil {
			return nil, 0, err
		}
	}
	return users, total, nil
}

// ListMyGroups implements Gateway.
func (p *Privileged) ListMyGroups(ctx context.Context, userID string) ([]GroupRow, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, name, owner_id, created_at, my_role FROM list_my_groups($1)`, userID)
	if p.missing(ctx, "list_my_groups", err) {
		return p.fallback.ListMyGroups(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list_my_groups failed: %w", err)
	}
	defer rows.Close()

	groups := []GroupRow{}
	for rows.Next() {
		var g GroupRow
		if err := rows.Scan(&g.ID, &g.Name, &g.OwnerID, &g.CreatedAt, &g.MyRole); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// GroupRole implements Gateway.
func (p *Privileged) GroupRole(ctx context.Context, groupID, userID string) (string, error) {
	var role sql.NullString
	err := p.db.QueryRowContext(ctx, `SELECT group_role($1, $2)`, groupID, userID).Scan(&role)
	if p.missing(ctx, "group_role", err) {
		return p.fallback.GroupRole(ctx, groupID, userID)
	}
	if err != nil {
		return "", fmt.Errorf("group_role failed: %w", err)
	}
	return role.String, nil
}

// GroupMembers implements Gateway.
func (p *Privileged) GroupMembers(ctx context.Context, groupID string) ([]MemberRow, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT user_id, username, role, joined_at FROM get_group_members($1)`, groupID)
	if p.missing(ctx, "get_group_members", err) {
		return p.fallback.GroupMembers(ctx, groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("get_group_members failed: %w", err)
	}
	defer rows.Close()

	members := []MemberRow{}
	for rows.Next() {
		var m MemberRow
		var username sql.NullString
		if err := rows.Scan(&m.UserID, &username, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.Username = nullableString(username)
		members = append(members, m)
	}
	return members, rows.Err()
}

// CanAccessList implements Gateway.
func (p *Privileged) CanAccessList(ctx context.Context, listID, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	var ok bool
	err := p.db.QueryRowContext(ctx, `SELECT can_access_list($1, $2)`, listID, userID).Scan(&ok)
	if p.missing(ctx, "can_access_list", err) {
		return p.fallback.CanAccessList(ctx, listID, userID)
	}
	if err != nil {
		return false, fmt.Errorf("can_access_list failed: %w", err)
	}
	return ok, nil
}

// UpdateProposalStatus implements Gateway. The status is validated locally
// before the round trip; the procedure's raised messages map back to the
// same errors the manual path returns.
func (p *Privileged) UpdateProposalStatus(ctx context.Context, change ProposalStatusChange) (ProposalUpdate, error) {
	if _, err := moderation.Parse(change.Status); err != nil {
		return ProposalUpdate{}, err
	}

	upd := ProposalUpdate{ProposalID: change.ProposalID}
	var status, previous string
	var title sql.NullString
	err := p.db.QueryRowContext(ctx,
		`SELECT status, previous, changed, proposer_id, list_id, anime_id, anime_title
		FROM update_proposal_status($1, $2, $3)`,
		change.ProposalID, change.Status, change.ActorID,
	).Scan(&status, &previous, &upd.Changed, &upd.ProposerID, &upd.ListID, &upd.AnimeID, &title)

	if p.missing(ctx, "update_proposal_status", err) {
		return p.fallback.UpdateProposalStatus(ctx, change)
	}
	if msg, ok := postgres.RaisedMessage(err); ok {
		if mapped := moderation.FromRaised(msg); mapped != nil {
			return ProposalUpdate{}, mapped
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ProposalUpdate{}, fmt.Errorf("update_proposal_status returned no row")
	}
	if err != nil {
		return ProposalUpdate{}, fmt.Errorf("update_proposal_status failed: %w", err)
	}

	upd.Status = moderation.Normalize(status)
	upd.Previous = moderation.Normalize(previous)
	upd.AnimeTitle = title.String
	return upd, nil
}

// ProfilesSuggest implements Gateway.
func (p *Privileged) ProfilesSuggest(ctx context.Context, query string, limit int) ([]Suggestion, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, username FROM profiles_suggest($1, $2)`, query, limit)
	if p.missing(ctx, "profiles_suggest", err) {
		return p.fallback.ProfilesSuggest(ctx, query, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("profiles_suggest failed: %w", err)
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
func (p *Privileged) ProfileIDByUsername(ctx context.Context, username string) (string, error) {
	var id sql.NullString
	err := p.db.QueryRowContext(ctx, `SELECT profile_id_by_username($1)`, username).Scan(&id)
	if p.missing(ctx, "profile_id_by_username", err) {
		return p.fallback.ProfileIDByUsername(ctx, username)
	}
	if err != nil {
		return "", fmt.Errorf("profile_id_by_username failed: %w", err)
	}
	return id.String, nil
}

// IsModerationOwner reports whether userID owns listID or its group.
func (p *Privileged) IsModerationOwner(ctx context.Context, listID, userID string) (bool, error) {
	return p.fallback.IsModerationOwner(ctx, listID, userID)
}
