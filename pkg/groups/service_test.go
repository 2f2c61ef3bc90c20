package groups

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/gateway"
	"github.com/platinummonkey/watchlist/pkg/identity"
	"github.com/platinummonkey/watchlist/pkg/notifications"
	"github.com/platinummonkey/watchlist/pkg/roles"
	"github.com/platinummonkey/watchlist/pkg/storage/sqltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	userID, kind string
	payload      map[string]interface{}
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recordingSender) Notify(ctx context.Context, userID, kind, message string, payload map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{userID: userID, kind: kind, payload: payload})
}

type testEnv struct {
	db      *sql.DB
	fx      *sqltest.Fixtures
	store   *Store
	service *Service
	sender  *recordingSender

	ownerID, adminID, memberID, outsiderID string
	groupID                                string
}

func setupService(t *testing.T) *testEnv {
	t.Helper()
	db := sqltest.Open(t)
	fx := sqltest.NewFixtures(t, db)
	env := &testEnv{db: db, fx: fx, store: NewStore(db), sender: &recordingSender{}}
	env.service = NewService(env.store, gateway.NewManual(db), env.sender, nil, nil)

	env.ownerID = fx.Profile("hana", "user", false)
	env.adminID = fx.Profile("ichiro", "user", false)
	env.memberID = fx.Profile("jun", "user", false)
	env.outsiderID = fx.Profile("kaito", "user", false)
	env.groupID = fx.Group("Club", env.ownerID)
	fx.GroupMember(env.groupID, env.adminID, RoleAdmin)
	fx.GroupMember(env.groupID, env.memberID, RoleMember)
	return env
}

func as(userID string) context.Context {
	return identity.WithCaller(context.Background(), identity.NewCaller(userID, "", roles.User, false))
}

func (e *testEnv) isMember(t *testing.T, userID string) bool {
	t.Helper()
	ok, err := e.store.IsMember(context.Background(), e.groupID, userID)
	require.NoError(t, err)
	return ok
}

func TestCreateGroup(t *testing.T) {
	env := setupService(t)

	g, err := env.service.CreateGroup(as(env.outsiderID), "  Seinen  ")
	require.NoError(t, err)
	assert.Equal(t, "Seinen", g.Name)

	groups, err := env.service.ListMyGroups(as(env.outsiderID))
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "owner", groups[0].MyRole)

	_, err = env.service.CreateGroup(as(env.outsiderID), "   ")
	assert.ErrorIs(t, err, apperr.ErrBadPayload)

	_, err = env.service.CreateGroup(context.Background(), "x")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	groups, err = env.service.ListMyGroups(context.Background())
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestListMembers(t *testing.T) {
	env := setupService(t)

	members, err := env.service.ListMembers(as(env.memberID), env.groupID)
	require.NoError(t, err)
	assert.Len(t, members, 3)

	_, err = env.service.ListMembers(as(env.outsiderID), env.groupID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestAddMember(t *testing.T) {
	env := setupService(t)

	res, err := env.service.AddMember(as(env.memberID), env.groupID, "KAITO")
	require.NoError(t, err)
	assert.False(t, res.Already)
	assert.True(t, env.isMember(t, env.outsiderID))

	res, err = env.service.AddMember(as(env.memberID), env.groupID, "kaito")
	require.NoError(t, err)
	assert.True(t, res.Already)

	_, err = env.service.AddMember(as(env.memberID), env.groupID, "nobody")
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)

	stranger := env.fx.Profile("lena", "user", false)
	_, err = env.service.AddMember(as(stranger), env.groupID, "jun")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestInviteLifecycle(t *testing.T) {
	env := setupService(t)

	res, err := env.service.Invite(as(env.adminID), env.groupID, "kaito")
	require.NoError(t, err)
	require.NotEmpty(t, res.InviteID)
	inviteID := res.InviteID

	require.Len(t, env.sender.sent, 1)
	assert.Equal(t, env.outsiderID, env.sender.sent[0].userID)
	assert.Equal(t, notifications.TypeGroupInvite, env.sender.sent[0].kind)

	res, err = env.service.Invite(as(env.memberID), env.groupID, "kaito")
	require.NoError(t, err)
	assert.True(t, res.AlreadyInvited)
	assert.Equal(t, inviteID, res.InviteID)

	res, err = env.service.Invite(as(env.adminID), env.groupID, "jun")
	require.NoError(t, err)
	assert.True(t, res.Already)

	invs, err := env.service.ListInvitations(as(env.outsiderID), "pending")
	require.NoError(t, err)
	require.Len(t, invs.Incoming, 1)
	assert.Equal(t, "Club", invs.Incoming[0].GroupName)
	require.NotNil(t, invs.Incoming[0].InviterUsername)
	assert.Equal(t, "ichiro", *invs.Incoming[0].InviterUsername)
	assert.Empty(t, invs.Outgoing)

	invs, err = env.service.ListInvitations(as(env.adminID), "")
	require.NoError(t, err)
	assert.Len(t, invs.Outgoing, 1)

	_, err = env.service.RespondInvite(as(env.memberID), inviteID, "accept")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = env.service.RespondInvite(as(env.outsiderID), inviteID, "maybe")
	assert.ErrorIs(t, err, apperr.ErrBadPayload)

	_, err = env.service.RespondInvite(as(env.outsiderID), "missing", "accept")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	out, err := env.service.RespondInvite(as(env.outsiderID), inviteID, "accept")
	require.NoError(t, err)
	assert.Equal(t, InviteAccepted, out.Status)
	assert.True(t, out.Changed)
	assert.True(t, env.isMember(t, env.outsiderID))

	require.Len(t, env.sender.sent, 2)
	assert.Equal(t, env.adminID, env.sender.sent[1].userID)
	assert.Equal(t, notifications.TypeGroupInviteAccepted, env.sender.sent[1].kind)

	// A repeated answer is a no-op, whatever it says.
	out, err = env.service.RespondInvite(as(env.outsiderID), inviteID, "decline")
	require.NoError(t, err)
	assert.Equal(t, InviteAccepted, out.Status)
	assert.False(t, out.Changed)
	assert.Len(t, env.sender.sent, 2)
}

func TestRespondInvite_AcceptIsIdempotent(t *testing.T) {
	env := setupService(t)
	inviteID := env.fx.Invitation(env.groupID, env.outsiderID, env.ownerID, "pending")

	// A previous attempt inserted the membership but never marked the
	// invitation.
	env.fx.GroupMember(env.groupID, env.outsiderID, RoleMember)

	out, err := env.service.RespondInvite(as(env.outsiderID), inviteID, "accept")
	require.NoError(t, err)
	assert.Equal(t, InviteAccepted, out.Status)

	var n int
	require.NoError(t, env.db.QueryRow(
		`SELECT COUNT(*) FROM group_members WHERE group_id = $1 AND user_id = $2`, env.groupID, env.outsiderID,
	).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestRespondInvite_ConcurrentAccept(t *testing.T) {
	env := setupService(t)
	inviteID := env.fx.Invitation(env.groupID, env.outsiderID, env.ownerID, "pending")

	const attempts = 2
	results := make([]*RespondResult, attempts)
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.service.RespondInvite(as(env.outsiderID), inviteID, "accept")
		}(i)
	}
	wg.Wait()

	changed := 0
	for i := 0; i < attempts; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, InviteAccepted, results[i].Status)
		if results[i].Changed {
			changed++
		}
	}
	assert.Equal(t, 1, changed)

	var n int
	require.NoError(t, env.db.QueryRow(
		`SELECT COUNT(*) FROM group_members WHERE group_id = $1 AND user_id = $2`, env.groupID, env.outsiderID,
	).Scan(&n))
	assert.Equal(t, 1, n)

	env.sender.mu.Lock()
	defer env.sender.mu.Unlock()
	assert.Len(t, env.sender.sent, 1)
}

func TestRespondInvite_DeclineFamily(t *testing.T) {
	for action, want := range map[string]InviteStatus{
		"decline": InviteDeclined,
		"REFUSE":  InviteRefused,
		"reject":  InviteRejected,
	} {
		t.Run(action, func(t *testing.T) {
			env := setupService(t)
			inviteID := env.fx.Invitation(env.groupID, env.outsiderID, env.ownerID, "pending")

			out, err := env.service.RespondInvite(as(env.outsiderID), inviteID, action)
			require.NoError(t, err)
			assert.Equal(t, want, out.Status)
			assert.False(t, env.isMember(t, env.outsiderID))

			require.Len(t, env.sender.sent, 1)
			assert.Equal(t, env.ownerID, env.sender.sent[0].userID)
			assert.Equal(t, notifications.TypeGroupInviteRefused, env.sender.sent[0].kind)
		})
	}
}

func TestRemoveMember(t *testing.T) {
	env := setupService(t)
	otherAdmin := env.fx.Profile("mio", "user", false)
	env.fx.GroupMember(env.groupID, otherAdmin, RoleAdmin)

	tests := []struct {
		name   string
		caller string
		target string
		err    error
	}{
		{"sole owner leaving", env.ownerID, env.ownerID, apperr.ErrLastOwnerProtected},
		{"member removing another", env.memberID, env.adminID, apperr.ErrForbidden},
		{"admin removing an admin", env.adminID, otherAdmin, apperr.ErrForbidden},
		{"admin removing the owner", env.adminID, env.ownerID, apperr.ErrForbidden},
		{"outsider", env.outsiderID, env.memberID, apperr.ErrForbidden},
		{"unknown target", env.ownerID, env.outsiderID, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.service.RemoveMember(as(tt.caller), env.groupID, tt.target)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	require.NoError(t, env.service.RemoveMember(as(env.adminID), env.groupID, env.memberID))
	assert.False(t, env.isMember(t, env.memberID))

	require.NoError(t, env.service.RemoveMember(as(otherAdmin), env.groupID, otherAdmin))
	require.NoError(t, env.service.RemoveMember(as(env.ownerID), env.groupID, env.adminID))
	assert.True(t, env.isMember(t, env.ownerID))
}
