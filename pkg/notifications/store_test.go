package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/platinummonkey/watchlist/pkg/storage/sqltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ListPaging(t *testing.T) {
	db := sqltest.Open(t)
	fx := sqltest.NewFixtures(t, db)
	store := NewStore(db)
	ctx := context.Background()

	var times []time.Time
	for i := 0; i < 5; i++ {
		at := fx.Now()
		times = append(times, at)
		fx.Notification("u1", TypeGroupInvite, i%2 == 0, at)
	}
	fx.Notification("u2", TypeGroupInvite, false, fx.Now())

	first, err := store.List(ctx, "u1", 2, nil)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.True(t, first[0].CreatedAt.Equal(times[4]))
	assert.True(t, first[1].CreatedAt.Equal(times[3]))

	cursor := first[1].CreatedAt
	rest, err := store.List(ctx, "u1", 10, &cursor)
	require.NoError(t, err)
	require.Len(t, rest, 3)
	assert.True(t, rest[0].CreatedAt.Equal(times[2]))
	assert.JSONEq(t, `{}`, string(rest[0].Payload))

	unread, err := store.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)
}

func TestStore_MarkRead(t *testing.T) {
	db := sqltest.Open(t)
	fx := sqltest.NewFixtures(t, db)
	store := NewStore(db)
	ctx := context.Background()

	a := fx.Notification("u1", TypeGroupInvite, false, fx.Now())
	fx.Notification("u1", TypeGroupInvite, false, fx.Now())
	foreign := fx.Notification("u2", TypeGroupInvite, false, fx.Now())

	n, err := store.MarkRead(ctx, "u1", []string{a, foreign})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	unread, err := store.UnreadCount(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	n, err = store.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	unread, err = store.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestStore_InsertAndPrune(t *testing.T) {
	db := sqltest.Open(t)
	store := NewStore(db)
	ctx := context.Background()
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return old }

	n, err := store.Insert(ctx, "u1", TypeProposalAccepted, "Proposition acceptée", map[string]interface{}{"proposal_id": "p1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"proposal_id":"p1"}`, string(n.Payload))

	_, err = store.MarkAllRead(ctx, "u1")
	require.NoError(t, err)

	store.now = time.Now
	_, err = store.Insert(ctx, "u1", TypeProposalRejected, "Proposition refusée", nil)
	require.NoError(t, err)

	pruned, err := store.DeleteReadBefore(ctx, old.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	items, err := store.List(ctx, "u1", 10, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, TypeProposalRejected, items[0].Type)
	assert.False(t, items[0].IsRead)
}
