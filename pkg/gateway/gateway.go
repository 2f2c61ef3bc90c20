// Package gateway is the single entry point for the privileged lookups the
// services need: caller flags, group roles, list access, proposal status
// updates and username lookups.
//
// Two implementations behave identically. Privileged calls the stored
// procedures installed by postgres.InstallProcedures; Manual replicates them
// with plain table access. New picks one once, at startup, by probing
// pg_proc, so call sites never branch on availability.
package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/platinummonkey/watchlist/pkg/moderation"
	"github.com/platinummonkey/watchlist/pkg/observability"
	"github.com/platinummonkey/watchlist/pkg/storage/postgres"
)

// Modes reported by Gateway.Mode.
const (
	ModePrivileged = "privileged"
	ModeManual     = "manual"
)

// Gateway resolves authorization facts and performs the privileged writes.
type Gateway interface {
	// WhoAmIFlags returns the stored role and admin flag of userID.
	WhoAmIFlags(ctx context.Context, userID string) (Flags, error)
	// AdminListUsers pages members newest first; search is a
	// case-insensitive username substring.
	AdminListUsers(ctx context.Context, search string, limit, offset int) ([]UserRow, int64, error)
	// ListMyGroups returns the groups userID owns or belongs to.
	ListMyGroups(ctx context.Context, userID string) ([]GroupRow, error)
	// GroupRole returns userID's role in groupID, or "" when none.
	GroupRole(ctx context.Context, groupID, userID string) (string, error)
	// GroupMembers returns the members of groupID with their usernames.
	GroupMembers(ctx context.Context, groupID string) ([]MemberRow, error)
	// CanAccessList reports whether userID may take part in listID.
	CanAccessList(ctx context.Context, listID, userID string) (bool, error)
	// IsModerationOwner reports whether userID owns listID or its group.
	IsModerationOwner(ctx context.Context, listID, userID string) (bool, error)
	// UpdateProposalStatus applies a moderation transition.
	UpdateProposalStatus(ctx context.Context, change ProposalStatusChange) (ProposalUpdate, error)
	// ProfilesSuggest returns usernames starting with query.
	ProfilesSuggest(ctx context.Context, query string, limit int) ([]Suggestion, error)
	// ProfileIDByUsername resolves a username (case-insensitive), "" when unknown.
	ProfileIDByUsername(ctx context.Context, username string) (string, error)
	// Mode reports ModePrivileged or ModeManual.
	Mode() string
}

// Flags are the stored privilege flags of a member.
type Flags struct {
	Role    string `json:"role"`
	IsAdmin bool   `json:"is_admin"`
	// Found is false when the member has no profile row yet.
	Found bool `json:"found"`
}

// UserRow is one member in the admin listing.
type UserRow struct {
	ID        string    `json:"id"`
	Username  *string   `json:"username"`
	Role      string    `json:"role"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// GroupRow is a group with the caller's role in it.
type GroupRow struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	MyRole    string    `json:"my_role"`
}

// MemberRow is a group member.
type MemberRow struct {
	UserID   string    `json:"user_id"`
	Username *string   `json:"username"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// Suggestion is a username completion.
type Suggestion struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// ProposalStatusChange is a requested moderation transition.
type ProposalStatusChange struct {
	ProposalID string
	Status     string
	ActorID    string
	// HardDeleteFallback deletes the row when a cancel cannot be recorded
	// because the schema lacks the soft-cancel columns.
	HardDeleteFallback bool
}

// ProposalUpdate is the outcome of UpdateProposalStatus.
type ProposalUpdate struct {
	ProposalID string
	Status     moderation.Status
	Previous   moderation.Status
	Changed    bool
	Deleted    bool
	ProposerID string
	ListID     string
	AnimeID    int64
	AnimeTitle string
}

// Procedures returns the names of the privileged procedures.
func Procedures() []string {
	names := make([]string, len(postgres.ProcedureNames))
	copy(names, postgres.ProcedureNames)
	return names
}

// Probe reports whether every privileged procedure is installed.
func Probe(ctx context.Context, db *sql.DB) (bool, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT DISTINCT proname FROM pg_proc WHERE proname = ANY($1)`,
		pq.Array(postgres.ProcedureNames))
	if err != nil {
		return false, fmt.Errorf("failed to probe procedures: %w", err)
	}
	defer rows.Close()

	found := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, fmt.Errorf("failed to scan procedure name: %w", err)
		}
		found[name] = true
	}
	if err := rows.Err(); err != nil {
		return false, err
	}

	for _, name := range postgres.ProcedureNames {
		if !found[name] {
			return false, nil
		}
	}
	return true, nil
}

// New probes db and returns the privileged gateway when every procedure is
// installed, the manual one otherwise. A failing probe selects manual.
func New(ctx context.Context, db *sql.DB, logger *observability.Logger, metrics *observability.Metrics) Gateway {
	if logger == nil {
		logger = observability.Default()
	}

	manual := NewManual(db)
	var gw Gateway = manual

	ok, err := Probe(ctx, db)
	switch {
	case err != nil:
		logger.WithError(err).Warn("procedure probe failed, using manual gateway")
	case ok:
		gw = NewPrivileged(db, manual, logger)
	}

	logger.WithField("mode", gw.Mode()).Info("authorization gateway selected")
	metrics.SetGatewayMode(gw.Mode(), ModePrivileged, ModeManual)
	return gw
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
