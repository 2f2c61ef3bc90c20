package groups

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateGroupRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO groups").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO group_members").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	_, err = NewStore(db).CreateGroup(context.Background(), "Club", "u1")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ResolveInvitationOnlyOnce(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	id := env.fx.Invitation(env.groupID, env.outsiderID, env.ownerID, "pending")

	changed, err := env.store.ResolveInvitation(ctx, id, InviteDeclined)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = env.store.ResolveInvitation(ctx, id, InviteAccepted)
	require.NoError(t, err)
	assert.False(t, changed)

	inv, err := env.store.GetInvitation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, InviteDeclined, inv.Status)

	n, err := env.store.DeleteStaleInvitations(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
