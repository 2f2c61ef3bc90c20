package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/platinummonkey/watchlist/pkg/contextkeys"
	"github.com/platinummonkey/watchlist/pkg/storage/sqltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDBLogger_RequiresDB(t *testing.T) {
	_, err := NewDBLogger(nil)
	assert.Error(t, err)
}

func TestDBLogger_LogAndSearch(t *testing.T) {
	db := sqltest.Open(t)
	logger, err := NewDBLogger(db)
	require.NoError(t, err)

	ctx := contextkeys.WithRequestID(context.Background(), "req-1")
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	events := []*AuditEvent{
		{
			Timestamp: base, EventType: EventTypeRoleCreate, Status: EventStatusSuccess,
			ActorID: "admin-1", ResourceType: ResourceTypeRole, ResourceID: "curator",
			Message: "role created", Metadata: map[string]interface{}{"perms": 2},
		},
		{
			Timestamp: base.Add(time.Minute), EventType: EventTypeAdminUserUpdate, Status: EventStatusSuccess,
			ActorID: "admin-1", ResourceType: ResourceTypeUser, ResourceID: "user-9",
			Changes: &ChangeDetails{
				Before: map[string]interface{}{"role": "user"},
				After:  map[string]interface{}{"role": "moderator"},
			},
		},
		{
			Timestamp: base.Add(2 * time.Minute), EventType: EventTypeAccessDenied, Status: EventStatusDenied,
			ResourceType: ResourceTypeProposal, ResourceID: "p1",
		},
	}
	for _, e := range events {
		require.NoError(t, logger.Log(ctx, e))
		assert.NotZero(t, e.ID)
	}

	all, err := logger.Search(ctx, SearchFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, EventTypeAccessDenied, all[0].EventType, "newest first")
	assert.Empty(t, all[0].ActorID)

	byActor, err := logger.Search(ctx, SearchFilter{ActorID: "admin-1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, byActor, 2)
	require.NotNil(t, byActor[0].Changes)
	assert.Equal(t, "moderator", byActor[0].Changes.After["role"])
	assert.Equal(t, float64(2), byActor[1].Metadata["perms"])

	byType, err := logger.Search(ctx, SearchFilter{
		EventTypes: []EventType{EventTypeRoleCreate, EventTypeAccessDenied},
		Limit:      10,
	})
	require.NoError(t, err)
	assert.Len(t, byType, 2)

	start := base.Add(30 * time.Second)
	ranged, err := logger.Search(ctx, SearchFilter{StartTime: &start, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, EventTypeAdminUserUpdate, ranged[0].EventType)

	stats, err := logger.GetStats(ctx, SearchFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalEvents)
	assert.Equal(t, int64(1), stats.EventsByType[EventTypeRoleCreate])
	assert.Equal(t, int64(2), stats.EventsByStatus[EventStatusSuccess])
	assert.Equal(t, int64(1), stats.UniqueActors)
	assert.Equal(t, int64(1), stats.AccessDenials)
}

func TestDBLogger_InsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO audit_logs").WillReturnError(assert.AnError)

	logger, err := NewDBLogger(db)
	require.NoError(t, err)

	err = logger.Log(context.Background(), &AuditEvent{EventType: EventTypeRoleDelete, Status: EventStatusSuccess})
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}
