package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/watchlist/pkg/config"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job names.
const (
	JobPruneNotifications = "prune_notifications"
	JobExpireInvitations  = "expire_invitations"
	JobPurgeProposals     = "purge_proposals"
)

// NotificationPruner deletes read notifications.
type NotificationPruner interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// InvitationExpirer declines forgotten invitations and drops old answered ones.
type InvitationExpirer interface {
	ExpirePendingInvitations(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteStaleInvitations(ctx context.Context, cutoff time.Time) (int64, error)
}

// ProposalPurger deletes cancelled proposals.
type ProposalPurger interface {
	PurgeCancelledBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Job is one scheduled cleanup.
type Job struct {
	Name      string
	Schedule  string
	Retention time.Duration
	run       func(ctx context.Context, cutoff time.Time) (int64, error)
}

// Runner executes the cleanup jobs.
type Runner struct {
	jobs    []Job
	logger  logrus.FieldLogger
	timeout time.Duration
	now     func() time.Time
}

// NewRunner builds the jobs from cfg. A job with a non-positive retention or
// an empty schedule is disabled.
func NewRunner(cfg config.MaintenanceConfig, notifications NotificationPruner, invitations InvitationExpirer, proposals ProposalPurger, logger logrus.FieldLogger) *Runner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	r := &Runner{logger: logger, timeout: 5 * time.Minute, now: time.Now}

	r.add(Job{
		Name:      JobPruneNotifications,
		Schedule:  cfg.NotificationSchedule,
		Retention: cfg.NotificationRetention,
		run:       notifications.DeleteReadBefore,
	})
	r.add(Job{
		Name:      JobExpireInvitations,
		Schedule:  cfg.InvitationSchedule,
		Retention: cfg.InvitationRetention,
		run: func(ctx context.Context, cutoff time.Time) (int64, error) {
			expired, err := invitations.ExpirePendingInvitations(ctx, cutoff)
			if err != nil {
				return 0, err
			}
			deleted, err := invitations.DeleteStaleInvitations(ctx, cutoff)
			return expired + deleted, err
		},
	})
	r.add(Job{
		Name:      JobPurgeProposals,
		Schedule:  cfg.ProposalSchedule,
		Retention: cfg.ProposalRetention,
		run:       proposals.PurgeCancelledBefore,
	})
	return r
}

func (r *Runner) add(job Job) {
	if job.Retention <= 0 || job.Schedule == "" {
		r.logger.WithField("job", job.Name).Info("maintenance job disabled")
		return
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns the enabled jobs.
func (r *Runner) Jobs() []Job {
	out := make([]Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}

// Run executes one job and returns the number of rows it touched.
func (r *Runner) Run(ctx context.Context, job Job) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := r.now()
	cutoff := start.Add(-job.Retention)
	log := r.logger.WithFields(logrus.Fields{"job": job.Name, "cutoff": cutoff.UTC().Format(time.RFC3339)})

	n, err := job.run(ctx, cutoff)
	if err != nil {
		log.WithError(err).Error("maintenance job failed")
		return n, fmt.Errorf("%s: %w", job.Name, err)
	}
	log.WithFields(logrus.Fields{"rows": n, "duration": time.Since(start).String()}).Info("maintenance job completed")
	return n, nil
}

// RunOnce executes every enabled job in order. A failing job does not stop
// the others; all failures are returned together.
func (r *Runner) RunOnce(ctx context.Context) error {
	var errs []error
	for _, job := range r.jobs {
		if _, err := r.Run(ctx, job); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Schedule registers every enabled job on c.
func (r *Runner) Schedule(c *cron.Cron) error {
	for _, job := range r.jobs {
		if _, err := c.AddFunc(job.Schedule, func() {
			r.Run(context.Background(), job)
		}); err != nil {
			return fmt.Errorf("failed to schedule %s (%q): %w", job.Name, job.Schedule, err)
		}
		r.logger.WithFields(logrus.Fields{"job": job.Name, "schedule": job.Schedule}).Info("maintenance job scheduled")
	}
	return nil
}

// NewCron returns a scheduler that logs through logger and skips a run while
// the previous one of the same job is still going.
func NewCron(logger *logrus.Logger) *cron.Cron {
	cl := cron.PrintfLogger(logger)
	return cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
}
