package maintenance

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/platinummonkey/watchlist/pkg/config"
	"github.com/platinummonkey/watchlist/pkg/groups"
	"github.com/platinummonkey/watchlist/pkg/notifications"
	"github.com/platinummonkey/watchlist/pkg/proposals"
	"github.com/platinummonkey/watchlist/pkg/roles"
	"github.com/platinummonkey/watchlist/pkg/storage/sqltest"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConfig = config.MaintenanceConfig{
	NotificationSchedule:  "@daily",
	NotificationRetention: 30 * 24 * time.Hour,
	InvitationSchedule:    "@hourly",
	InvitationRetention:   14 * 24 * time.Hour,
	ProposalSchedule:      "@weekly",
	ProposalRetention:     90 * 24 * time.Hour,
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(&bytes.Buffer{})
	return l
}

func TestRunOnce(t *testing.T) {
	db := sqltest.Open(t)
	fx := sqltest.NewFixtures(t, db)
	ctx := context.Background()

	owner := fx.Profile("akane", string(roles.User), false)
	guest := fx.Profile("ren", string(roles.User), false)
	other := fx.Profile("sho", string(roles.User), false)
	groupID := fx.Group("Club", owner)
	listID := fx.List(owner, "Winter", sqltest.ListOptions{})

	now := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	oldRead := fx.Notification(guest, "proposal_accepted", true, now.AddDate(0, -3, 0))
	oldUnread := fx.Notification(guest, "proposal_rejected", false, now.AddDate(0, -3, 0))
	recentRead := fx.Notification(guest, "proposal_accepted", true, now.AddDate(0, 0, -2))

	stale := fx.Invitation(groupID, guest, owner, string(groups.InvitePending))
	accepted := fx.Invitation(groupID, other, owner, string(groups.InviteAccepted))

	cancelled := fx.Proposal(listID, guest, 1, "Old", "cancelled")
	pending := fx.Proposal(listID, guest, 2, "Open", "pending")

	notifStore := notifications.NewStore(db)
	groupStore := groups.NewStore(db)
	proposalStore := proposals.NewStore(db)

	r := NewRunner(testConfig, notifStore, groupStore, proposalStore, quietLogger())
	r.now = func() time.Time { return now }
	require.Len(t, r.Jobs(), 3)

	require.NoError(t, r.RunOnce(ctx))

	items, err := notifStore.List(ctx, guest, 50, nil)
	require.NoError(t, err)
	ids := make([]string, 0, len(items))
	for _, n := range items {
		ids = append(ids, n.ID)
	}
	assert.NotContains(t, ids, oldRead)
	assert.Contains(t, ids, oldUnread)
	assert.Contains(t, ids, recentRead)

	inv, err := groupStore.GetInvitation(ctx, stale)
	require.NoError(t, err)
	assert.Equal(t, groups.InviteDeclined, inv.Status)
	inv, err = groupStore.GetInvitation(ctx, accepted)
	require.NoError(t, err)
	assert.Equal(t, groups.InviteAccepted, inv.Status)

	remaining, err := proposalStore.ForList(ctx, listID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, pending, remaining[0].ID)
	assert.NotEqual(t, cancelled, remaining[0].ID)
}

func TestDisabledJobs(t *testing.T) {
	cfg := testConfig
	cfg.NotificationRetention = 0
	cfg.ProposalSchedule = ""

	r := NewRunner(cfg, &fakeStores{}, &fakeStores{}, &fakeStores{}, quietLogger())
	jobs := r.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, JobExpireInvitations, jobs[0].Name)
}

type fakeStores struct {
	err     error
	calls   int
	cutoffs []time.Time
}

func (f *fakeStores) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return f.record(cutoff, 1)
}

func (f *fakeStores) ExpirePendingInvitations(ctx context.Context, cutoff time.Time) (int64, error) {
	return f.record(cutoff, 2)
}

func (f *fakeStores) DeleteStaleInvitations(ctx context.Context, cutoff time.Time) (int64, error) {
	return f.record(cutoff, 3)
}

func (f *fakeStores) PurgeCancelledBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return f.record(cutoff, 4)
}

func (f *fakeStores) record(cutoff time.Time, n int64) (int64, error) {
	f.calls++
	f.cutoffs = append(f.cutoffs, cutoff)
	if f.err != nil {
		return 0, f.err
	}
	return n, nil
}

func TestRunComputesCutoff(t *testing.T) {
	invites := &fakeStores{}
	r := NewRunner(testConfig, &fakeStores{}, invites, &fakeStores{}, quietLogger())
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	var job Job
	for _, j := range r.Jobs() {
		if j.Name == JobExpireInvitations {
			job = j
		}
	}
	n, err := r.Run(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	require.Len(t, invites.cutoffs, 2)
	assert.Equal(t, now.Add(-14*24*time.Hour), invites.cutoffs[0])
}

func TestRunOnceContinuesAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	notif := &fakeStores{err: boom}
	invites := &fakeStores{}
	props := &fakeStores{}
	r := NewRunner(testConfig, notif, invites, props, quietLogger())

	err := r.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), JobPruneNotifications)
	assert.Equal(t, 2, invites.calls)
	assert.Equal(t, 1, props.calls)
}

func TestSchedule(t *testing.T) {
	r := NewRunner(testConfig, &fakeStores{}, &fakeStores{}, &fakeStores{}, quietLogger())
	c := NewCron(quietLogger())
	require.NoError(t, r.Schedule(c))
	assert.Len(t, c.Entries(), 3)

	cfg := testConfig
	cfg.ProposalSchedule = "every tuesday"
	r = NewRunner(cfg, &fakeStores{}, &fakeStores{}, &fakeStores{}, quietLogger())
	err := r.Schedule(cron.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobPurgeProposals)
}
