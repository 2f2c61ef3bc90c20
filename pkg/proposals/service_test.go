package proposals

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"

	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/audit"
	"github.com/platinummonkey/watchlist/pkg/gateway"
	"github.com/platinummonkey/watchlist/pkg/identity"
	"github.com/platinummonkey/watchlist/pkg/moderation"
	"github.com/platinummonkey/watchlist/pkg/notifications"
	"github.com/platinummonkey/watchlist/pkg/observability"
	"github.com/platinummonkey/watchlist/pkg/roles"
	"github.com/platinummonkey/watchlist/pkg/storage/sqltest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	userID, kind string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recordingSender) Notify(ctx context.Context, userID, kind, message string, payload map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{userID: userID, kind: kind})
}

func (r *recordingSender) all() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.sent...)
}

type mockAuditLogger struct {
	mu     sync.Mutex
	events []*audit.AuditEvent
}

func (m *mockAuditLogger) Log(ctx context.Context, event *audit.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockAuditLogger) Close() error { return nil }

func (m *mockAuditLogger) count(eventType audit.EventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

type testEnv struct {
	db      *sql.DB
	fx      *sqltest.Fixtures
	store   *Store
	service *Service
	sender  *recordingSender
	audit   *mockAuditLogger
	metrics *observability.Metrics

	ownerID, proposerID, voterID, outsiderID string
	listID                                   string
}

func setupService(t *testing.T) *testEnv {
	t.Helper()
	db := sqltest.Open(t)
	fx := sqltest.NewFixtures(t, db)
	env := &testEnv{
		db:      db,
		fx:      fx,
		store:   NewStore(db),
		sender:  &recordingSender{},
		audit:   &mockAuditLogger{},
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
	}
	env.store.now = fx.Now
	env.service = NewService(env.store, gateway.NewManual(db), env.sender, env.audit, nil, env.metrics)

	env.ownerID = fx.Profile("sora", "user", false)
	env.proposerID = fx.Profile("taro", "user", false)
	env.voterID = fx.Profile("yui", "user", false)
	env.outsiderID = fx.Profile("umi", "user", false)

	env.listID = fx.List(env.ownerID, "Summer", sqltest.ListOptions{})
	fx.ListMember(env.listID, env.proposerID)
	fx.ListMember(env.listID, env.voterID)
	return env
}

func as(userID string) context.Context {
	return identity.WithCaller(context.Background(), identity.NewCaller(userID, "", roles.User, false))
}

func anime(id int64) json.RawMessage {
	raw, _ := json.Marshal(map[string]interface{}{
		"id":    id,
		"title": map[string]interface{}{"english": nil, "romaji": nil, "native": "進撃の巨人"},
	})
	return raw
}

func (e *testEnv) propose(t *testing.T, userID string, animeID int64) string {
	t.Helper()
	res, err := e.service.Create(as(userID), e.listID, anime(animeID))
	require.NoError(t, err)
	require.NotNil(t, res.Proposal)
	return res.Proposal.ID
}

func TestCreate(t *testing.T) {
	env := setupService(t)

	res, err := env.service.Create(as(env.proposerID), env.listID, anime(16498))
	require.NoError(t, err)
	require.NotNil(t, res.Proposal)
	assert.Equal(t, moderation.Pending, res.Proposal.Status)
	require.NotNil(t, res.Proposal.AnimeTitle)
	assert.Equal(t, "進撃の巨人", *res.Proposal.AnimeTitle)

	res, err = env.service.Create(as(env.voterID), env.listID, anime(16498))
	require.NoError(t, err)
	assert.True(t, res.AlreadyPending)
	assert.Nil(t, res.Proposal)

	_, err = env.service.Create(as(env.outsiderID), env.listID, anime(1))
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = env.service.Create(as(env.proposerID), env.listID, json.RawMessage(`{"title":{"english":"x"}}`))
	assert.ErrorIs(t, err, apperr.ErrBadPayload)

	_, err = env.service.Create(context.Background(), env.listID, anime(1))
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestList(t *testing.T) {
	env := setupService(t)
	first := env.propose(t, env.proposerID, 1)
	second := env.propose(t, env.voterID, 2)

	proposals, err := env.service.List(as(env.ownerID), env.listID)
	require.NoError(t, err)
	require.Len(t, proposals, 2)
	assert.Equal(t, second, proposals[0].ID)
	assert.Equal(t, first, proposals[1].ID)
	require.NotNil(t, proposals[1].ProposerUsername)
	assert.Equal(t, "taro", *proposals[1].ProposerUsername)

	proposals, err = env.service.List(as(env.outsiderID), env.listID)
	require.NoError(t, err)
	assert.Empty(t, proposals)

	proposals, err = env.service.List(context.Background(), env.listID)
	require.NoError(t, err)
	assert.Empty(t, proposals)

	proposals, err = env.service.List(as(env.ownerID), "")
	require.NoError(t, err)
	assert.Empty(t, proposals)

	proposals, err = env.service.List(context.Background(), "not-a-uuid")
	require.NoError(t, err)
	assert.Empty(t, proposals)
}

func TestListPublicList(t *testing.T) {
	env := setupService(t)
	publicID := env.fx.List(env.ownerID, "Shared", sqltest.ListOptions{Public: true})
	pendingID := env.fx.Proposal(publicID, env.ownerID, 5114, "Fullmetal Alchemist", "pending")

	for name, ctx := range map[string]context.Context{
		"outsider":  as(env.outsiderID),
		"anonymous": context.Background(),
	} {
		t.Run(name, func(t *testing.T) {
			proposals, err := env.service.List(ctx, publicID)
			require.NoError(t, err)
			require.Len(t, proposals, 1)
			assert.Equal(t, pendingID, proposals[0].ID)

			buckets, err := env.service.Buckets(ctx, publicID)
			require.NoError(t, err)
			assert.Len(t, buckets.Pending, 1)
		})
	}

	// Readable, not moderatable.
	_, err := env.service.UpdateStatus(as(env.outsiderID), pendingID, "accepted")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestSelfModeration(t *testing.T) {
	env := setupService(t)
	id := env.propose(t, env.proposerID, 1)

	_, err := env.service.UpdateStatus(as(env.proposerID), id, "accepted")
	require.ErrorIs(t, err, apperr.ErrForbidden)
	assert.Equal(t, moderation.HintSelfModeration, apperr.From(err).Hint)
	assert.Equal(t, 1, env.audit.count(audit.EventTypeAccessDenied))

	upd, err := env.service.UpdateStatus(as(env.ownerID), id, "approved")
	require.NoError(t, err)
	assert.True(t, upd.Changed)
	assert.Equal(t, moderation.Accepted, upd.Status)
	assert.Equal(t, moderation.Pending, upd.Previous)

	assert.Equal(t, []sent{{userID: env.proposerID, kind: notifications.TypeProposalAccepted}}, env.sender.all())
	assert.Equal(t, 1, env.audit.count(audit.EventTypeProposalStatus))
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.ProposalTransitionsTotal.WithLabelValues("accepted")))

	upd, err = env.service.UpdateStatus(as(env.ownerID), id, "accepted")
	require.NoError(t, err)
	assert.False(t, upd.Changed)
	assert.Len(t, env.sender.all(), 1)
	assert.Equal(t, 1, env.audit.count(audit.EventTypeProposalStatus))
}

func TestVoteByOtherMember(t *testing.T) {
	env := setupService(t)
	id := env.propose(t, env.proposerID, 1)

	upd, err := env.service.UpdateStatus(as(env.voterID), id, "rejected")
	require.NoError(t, err)
	assert.Equal(t, moderation.Rejected, upd.Status)
	assert.Equal(t, []sent{{userID: env.proposerID, kind: notifications.TypeProposalRejected}}, env.sender.all())

	_, err = env.service.UpdateStatus(as(env.outsiderID), id, "accepted")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestOwnerSelfApproval(t *testing.T) {
	env := setupService(t)
	id := env.propose(t, env.ownerID, 7)

	upd, err := env.service.UpdateStatus(as(env.ownerID), id, "accepted")
	require.NoError(t, err)
	assert.True(t, upd.Changed)
	assert.Empty(t, env.sender.all())
}

func TestResetToPending(t *testing.T) {
	env := setupService(t)
	id := env.propose(t, env.proposerID, 1)
	_, err := env.service.UpdateStatus(as(env.voterID), id, "accepted")
	require.NoError(t, err)

	_, err = env.service.UpdateStatus(as(env.voterID), id, "pending")
	assert.ErrorIs(t, err, apperr.ErrOnlyOwnerCanResetToPending)

	upd, err := env.service.UpdateStatus(as(env.ownerID), id, "pending")
	require.NoError(t, err)
	assert.Equal(t, moderation.Pending, upd.Status)
	assert.Len(t, env.sender.all(), 1)
}

func TestCancel(t *testing.T) {
	env := setupService(t)
	id := env.propose(t, env.proposerID, 1)

	_, err := env.service.Cancel(as(env.voterID), id)
	assert.ErrorIs(t, err, apperr.ErrOnlyAuthorOrOwnerCanCancel)

	upd, err := env.service.Cancel(as(env.proposerID), id)
	require.NoError(t, err)
	assert.True(t, upd.Changed)
	assert.False(t, upd.Deleted)
	assert.Equal(t, moderation.Cancelled, upd.Status)

	_, err = env.service.UpdateStatus(as(env.ownerID), id, "accepted")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	upd, err = env.service.Cancel(as(env.proposerID), id)
	require.NoError(t, err)
	assert.False(t, upd.Changed)

	proposals, err := env.service.List(as(env.ownerID), env.listID)
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	require.NotNil(t, proposals[0].CancelledBy)
	assert.Equal(t, env.proposerID, *proposals[0].CancelledBy)
	assert.NotNil(t, proposals[0].CancelledAt)

	owned := env.propose(t, env.voterID, 2)
	_, err = env.service.Cancel(as(env.ownerID), owned)
	require.NoError(t, err)
}

func TestUpdateStatusErrors(t *testing.T) {
	env := setupService(t)
	id := env.propose(t, env.proposerID, 1)

	_, err := env.service.UpdateStatus(as(env.ownerID), id, "done")
	assert.ErrorIs(t, err, apperr.ErrInvalidStatus)

	_, err = env.service.UpdateStatus(as(env.ownerID), "missing", "accepted")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = env.service.UpdateStatus(context.Background(), id, "accepted")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestBuckets(t *testing.T) {
	env := setupService(t)
	env.fx.Proposal(env.listID, env.proposerID, 1, "A", "pending")
	env.fx.Proposal(env.listID, env.proposerID, 2, "B", "approved")
	env.fx.Proposal(env.listID, env.proposerID, 3, "C", "rejected")
	env.fx.Proposal(env.listID, env.proposerID, 4, "D", "cancelled")

	b, err := env.service.Buckets(as(env.voterID), env.listID)
	require.NoError(t, err)
	assert.Len(t, b.Pending, 1)
	require.Len(t, b.Accepted, 1)
	assert.Equal(t, moderation.Accepted, b.Accepted[0].Status)
	assert.Len(t, b.Rejected, 1)

	b, err = env.service.Buckets(as(env.outsiderID), env.listID)
	require.NoError(t, err)
	assert.Empty(t, b.Pending)
	assert.NotNil(t, b.Accepted)
}

func TestBucket(t *testing.T) {
	b := Bucket([]Proposal{
		{ID: "1", Status: "pending"},
		{ID: "2", Status: "cancelled"},
		{ID: "3", Status: "approved"},
		{ID: "4", Status: "pending"},
	})
	require.Len(t, b.Pending, 2)
	assert.Equal(t, "1", b.Pending[0].ID)
	assert.Equal(t, "4", b.Pending[1].ID)
	assert.Len(t, b.Accepted, 1)
	assert.Empty(t, b.Rejected)
}
