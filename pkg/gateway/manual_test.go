package gateway

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/moderation"
	"github.com/platinummonkey/watchlist/pkg/storage/sqltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupManual(t *testing.T) (*Manual, *sqltest.Fixtures, *sql.DB) {
	t.Helper()
	db := sqltest.Open(t)
	fx := sqltest.NewFixtures(t, db)
	m := NewManual(db)
	m.now = fx.Now
	return m, fx, db
}

func TestManualWhoAmIFlags(t *testing.T) {
	m, fx, _ := setupManual(t)
	ctx := context.Background()

	admin := fx.Profile("alice", "admin", true)

	flags, err := m.WhoAmIFlags(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, Flags{Role: "admin", IsAdmin: true, Found: true}, flags)

	flags, err = m.WhoAmIFlags(ctx, "00000000-0000-0000-0000-000000000000")
	require.NoError(t, err)
	assert.False(t, flags.Found)
	assert.Equal(t, ModeManual, m.Mode())
}

func TestManualAdminListUsers(t *testing.T) {
	m, fx, _ := setupManual(t)
	ctx := context.Background()

	fx.Profile("Alice", "user", false)
	fx.Profile("bob", "member", false)
	newest := fx.Profile("malice", "moderator", false)

	users, total, err := m.AdminListUsers(ctx, "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, users, 3)
	assert.Equal(t, newest, users[0].ID, "newest first")

	users, total, err = m.AdminListUsers(ctx, "ALIC", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, users, 2)

	users, total, err = m.AdminListUsers(ctx, "", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", *users[0].Username)
}

func TestManualGroups(t *testing.T) {
	m, fx, _ := setupManual(t)
	ctx := context.Background()

	owner := fx.Profile("owner", "user", false)
	member := fx.Profile("member", "user", false)
	outsider := fx.Profile("outsider", "user", false)

	g1 := fx.Group("one", owner)
	g2 := fx.Group("two", member)
	fx.GroupMember(g2, owner, "member")
	fx.GroupMember(g1, member, "member")

	groups, err := m.ListMyGroups(ctx, owner)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, g2, groups[0].ID)
	assert.Equal(t, "member", groups[0].MyRole)
	assert.Equal(t, "owner", groups[1].MyRole)

	role, err := m.GroupRole(ctx, g1, owner)
	require.NoError(t, err)
	assert.Equal(t, "owner", role)

	role, err = m.GroupRole(ctx, g1, member)
	require.NoError(t, err)
	assert.Equal(t, "member", role)

	role, err = m.GroupRole(ctx, g1, outsider)
	require.NoError(t, err)
	assert.Empty(t, role)

	members, err := m.GroupMembers(ctx, g1)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, owner, members[0].UserID)
	assert.Equal(t, "owner", *members[0].Username)
}

func TestManualCanAccessList(t *testing.T) {
	m, fx, _ := setupManual(t)
	ctx := context.Background()

	owner := fx.Profile("owner", "user", false)
	friend := fx.Profile("friend", "user", false)
	groupie := fx.Profile("groupie", "user", false)
	stranger := fx.Profile("stranger", "user", false)

	group := fx.Group("crew", owner)
	fx.GroupMember(group, groupie, "member")

	private := fx.List(owner, "private", sqltest.ListOptions{})
	fx.ListMember(private, friend)
	grouped := fx.List(friend, "grouped", sqltest.ListOptions{GroupID: group})
	global := fx.List(owner, "global", sqltest.ListOptions{Global: true})
	public := fx.List(owner, "public", sqltest.ListOptions{Public: true})

	tests := []struct {
		name   string
		listID string
		userID string
		want   bool
	}{
		{"owner of private list", private, owner, true},
		{"direct member", private, friend, true},
		{"stranger on private list", private, stranger, false},
		{"group member", grouped, groupie, true},
		{"group owner", grouped, owner, true},
		{"list owner of group list", grouped, friend, true},
		{"stranger on group list", grouped, stranger, false},
		{"anyone on global list", global, stranger, true},
		{"public list stays view only", public, stranger, false},
		{"unknown list", "missing", owner, false},
		{"anonymous", private, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := m.CanAccessList(ctx, tt.listID, tt.userID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	isOwner, err := m.IsModerationOwner(ctx, grouped, owner)
	require.NoError(t, err)
	assert.True(t, isOwner, "group owner moderates group lists")

	isOwner, err = m.IsModerationOwner(ctx, grouped, groupie)
	require.NoError(t, err)
	assert.False(t, isOwner)
}

func statusOf(t *testing.T, db *sql.DB, id string) string {
	t.Helper()
	var status string
	require.NoError(t, db.QueryRow(`SELECT status FROM proposals WHERE id = $1`, id).Scan(&status))
	return status
}

func updatedAtOf(t *testing.T, db *sql.DB, id string) time.Time {
	t.Helper()
	var at time.Time
	require.NoError(t, db.QueryRow(`SELECT updated_at FROM proposals WHERE id = $1`, id).Scan(&at))
	return at
}

func TestManualUpdateProposalStatus(t *testing.T) {
	m, fx, db := setupManual(t)
	ctx := context.Background()

	owner := fx.Profile("owner", "user", false)
	proposer := fx.Profile("proposer", "user", false)
	voter := fx.Profile("voter", "user", false)
	stranger := fx.Profile("stranger", "user", false)

	list := fx.List(owner, "shared", sqltest.ListOptions{})
	fx.ListMember(list, proposer)
	fx.ListMember(list, voter)

	t.Run("member accepts", func(t *testing.T) {
		p := fx.Proposal(list, proposer, 1, "Mononoke", "pending")
		upd, err := m.UpdateProposalStatus(ctx, ProposalStatusChange{ProposalID: p, Status: "approved", ActorID: voter})
		require.NoError(t, err)
		assert.True(t, upd.Changed)
		assert.Equal(t, moderation.Accepted, upd.Status)
		assert.Equal(t, moderation.Pending, upd.Previous)
		assert.Equal(t, proposer, upd.ProposerID)
		assert.Equal(t, int64(1), upd.AnimeID)
		assert.Equal(t, "Mononoke", upd.AnimeTitle)
		assert.Equal(t, "accepted", statusOf(t, db, p))
	})

	t.Run("proposer cannot accept own proposal", func(t *testing.T) {
		p := fx.Proposal(list, proposer, 2, "Akira", "pending")
		_, err := m.UpdateProposalStatus(ctx, ProposalStatusChange{ProposalID: p, Status: "accepted", ActorID: proposer})
		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrForbidden)
		assert.Equal(t, moderation.HintSelfModeration, apperr.From(err).Hint)
		assert.Equal(t, "pending", statusOf(t, db, p))
	})

	t.Run("owner moderates own proposal", func(t *testing.T) {
		p := fx.Proposal(list, owner, 3, "Paprika", "pending")
		upd, err := m.UpdateProposalStatus(ctx, ProposalStatusChange{ProposalID: p, Status: "rejected", ActorID: owner})
		require.NoError(t, err)
		assert.True(t, upd.Changed)
	})

	t.Run("only owner resets to pending", func(t *testing.T) {
		p := fx.Proposal(list, proposer, 4, "Perfect Blue", "rejected")
		_, err := m.UpdateProposalStatus(ctx, ProposalStatusChange{ProposalID: p, Status: "pending", ActorID: voter})
		assert.ErrorIs(t, err, apperr.ErrOnlyOwnerCanResetToPending)

		upd, err := m.UpdateProposalStatus(ctx, ProposalStatusChange{ProposalID: p, Status: "pending", ActorID: owner})
		require.NoError(t, err)
		assert.True(t, upd.Changed)
	})

	t.Run("author cancels and cancel is terminal", func(t *testing.T) {
		p := fx.Proposal(list, proposer, 5, "Redline", "pending")
		_, err := m.UpdateProposalStatus(ctx, ProposalStatusChange{ProposalID: p, Status: "cancelled", ActorID: voter})
		assert.ErrorIs(t, err, apperr.ErrOnlyAuthorOrOwnerCanCancel)

		upd, err := m.UpdateProposalStatus(ctx, ProposalStatusChange{ProposalID: p, Status: "cancelled", ActorID: proposer})
		require.NoError(t, err)
		assert.True(t, upd.Changed)

		var cancelledBy sql.NullString
		require.NoError(t, db.QueryRow(`SELECT cancelled_by FROM proposals WHERE id = $1`, p).Scan(&cancelledBy))
		assert.Equal(t, proposer, cancelledBy.String)

		_, err = m.UpdateProposalStatus(ctx, ProposalStatusChange{ProposalID: p, Status: "pending", ActorID: owner})
		assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

		upd, err = m.UpdateProposalStatus(ctx, ProposalStatusChange{ProposalID: p, Status: "cancelled", ActorID: proposer})
		require.NoError(t, err)
		assert.False(t, upd.Changed)
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		p := fx.Proposal(list, proposer, 6, "Tekkonkinkreet", "approved")
		before := updatedAtOf(t, db, p)

		upd, err := m.UpdateProposalStatus(ctx, ProposalStatusChange{ProposalID: p, Status: "accepted", ActorID: voter})
		require.NoError(t, err)
		assert.False(t, upd.Changed)
		assert.Equal(t, "approved", statusOf(t, db, p), "no write on no-op")
		assert.True(t, before.Equal(updatedAtOf(t, db, p)), "updated_at untouched")

		q := fx.Proposal(list, proposer, 8, "Tokyo Godfathers", "pending")
		before = updatedAtOf(t, db, q)
		upd, err = m.UpdateProposalStatus(ctx, ProposalStatusChange{ProposalID: q, Status: "pending", ActorID: owner})
		require.NoError(t, err)
		assert.False(t, upd.Changed)
		assert.True(t, before.Equal(updatedAtOf(t, db, q)), "updated_at untouched")
	})

	t.Run("stranger is forbidden", func(t *testing.T) {
		p := fx.Proposal(list, proposer, 7, "Memories", "pending")
		_, err := m.UpdateProposalStatus(ctx, ProposalStatusChange{ProposalID: p, Status: "accepted", ActorID: stranger})
		assert.ErrorIs(t, err, apperr.ErrForbidden)
	})

	t.Run("invalid status checked before load", func(t *testing.T) {
		_, err := m.UpdateProposalStatus(ctx, ProposalStatusChange{ProposalID: "missing", Status: "maybe", ActorID: owner})
		assert.ErrorIs(t, err, apperr.ErrInvalidStatus)
	})

	t.Run("unknown proposal", func(t *testing.T) {
		_, err := m.UpdateProposalStatus(ctx, ProposalStatusChange{ProposalID: "missing", Status: "accepted", ActorID: owner})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestManualProfiles(t *testing.T) {
	m, fx, _ := setupManual(t)
	ctx := context.Background()

	naruto := fx.Profile("Naruto", "user", false)
	fx.Profile("nami", "user", false)
	fx.Profile("luffy", "user", false)
	fx.Profile("", "user", false)

	suggestions, err := m.ProfilesSuggest(ctx, "NA", 10)
	require.NoError(t, err)
	require.Len(t, suggestions, 2)

	suggestions, err = m.ProfilesSuggest(ctx, "na", 1)
	require.NoError(t, err)
	assert.Len(t, suggestions, 1)

	id, err := m.ProfileIDByUsername(ctx, "  naruto ")
	require.NoError(t, err)
	assert.Equal(t, naruto, id)

	id, err = m.ProfileIDByUsername(ctx, "sasuke")
	require.NoError(t, err)
	assert.Empty(t, id)
}
