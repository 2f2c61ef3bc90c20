package profiles

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/storage/sqltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestNormalizeUsername(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr error
	}{
		{"  alice  ", "alice", nil},
		{"   ", "", apperr.ErrUsernameInvalid},
		{"ab", "", apperr.ErrUsernameLength},
		{"abcdefghijklmnopqrstuvwxyz0123456", "", apperr.ErrUsernameLength},
		{"élève", "élève", nil},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := NormalizeUsername(tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStore_Get(t *testing.T) {
	db := sqltest.Open(t)
	fx := sqltest.NewFixtures(t, db)
	id := fx.Profile("alice", "admin", true)
	store := NewStore(db)
	ctx := context.Background()

	p, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, p.Username)
	assert.Equal(t, "alice", *p.Username)
	assert.Equal(t, "admin", p.Role)
	assert.True(t, p.IsAdmin)

	p, err = store.GetByUsername(ctx, " ALICE ")
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = store.GetByUsername(ctx, "bob")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStore_SetUsername(t *testing.T) {
	db := sqltest.Open(t)
	fx := sqltest.NewFixtures(t, db)
	id := fx.Profile("", "member", false)
	store := NewStore(db)
	ctx := context.Background()

	require.NoError(t, store.SetUsername(ctx, id, "carol"))
	p, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "carol", *p.Username)
	assert.Equal(t, "member", p.Role)

	require.NoError(t, store.SetUsername(ctx, "fresh-id", "dave"))
	p, err = store.Get(ctx, "fresh-id")
	require.NoError(t, err)
	assert.Equal(t, "user", p.Role)
	assert.False(t, p.IsAdmin)

	taken, err := store.UsernameTaken(ctx, "CAROL", "fresh-id")
	require.NoError(t, err)
	assert.True(t, taken)
	taken, err = store.UsernameTaken(ctx, "carol", id)
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestStore_Apply(t *testing.T) {
	db := sqltest.Open(t)
	fx := sqltest.NewFixtures(t, db)
	id := fx.Profile("erin", "user", false)
	store := NewStore(db)
	ctx := context.Background()

	require.NoError(t, store.Apply(ctx, id, Patch{Role: strPtr("admin"), IsAdmin: boolPtr(true), Username: strPtr("erin2")}))
	p, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "admin", p.Role)
	assert.True(t, p.IsAdmin)
	assert.Equal(t, "erin2", *p.Username)

	assert.ErrorIs(t, store.Apply(ctx, id, Patch{}), apperr.ErrNoChanges)
	assert.ErrorIs(t, store.Apply(ctx, "missing", Patch{Role: strPtr("user")}), apperr.ErrNotFound)
}

func TestStore_ApplyUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE profiles SET username = \\$1 WHERE id = \\$2").
		WithArgs("taken", "u1").
		WillReturnError(&pq.Error{Code: "23505"})

	err = NewStore(db).Apply(context.Background(), "u1", Patch{Username: strPtr("taken")})
	assert.ErrorIs(t, err, apperr.ErrUsernameTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SetUsernameUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO profiles").WillReturnError(&pq.Error{Code: "23505"})

	err = NewStore(db).SetUsername(context.Background(), "u1", "taken")
	assert.ErrorIs(t, err, apperr.ErrUsernameTaken)
}

func TestStore_CountOwnersAndDelete(t *testing.T) {
	db := sqltest.Open(t)
	fx := sqltest.NewFixtures(t, db)
	owner := fx.Profile("root", "owner", true)
	fx.Profile("frank", "user", false)
	store := NewStore(db)
	ctx := context.Background()

	n, err := store.CountOwners(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, store.Delete(ctx, owner))
	require.NoError(t, store.Delete(ctx, owner))
	n, err = store.CountOwners(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_GetMalformedID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM profiles WHERE id = \\$1").
		WithArgs("abc").
		WillReturnError(&pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "abc"`})

	_, err = NewStore(db).Get(context.Background(), "abc")
	require.Error(t, err)
	assert.Equal(t, apperr.KindBadPayload, apperr.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}
