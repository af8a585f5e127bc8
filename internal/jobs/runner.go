package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notification-service/internal/metrics"
	"notification-service/internal/repository"

	"github.com/sirupsen/logrus"
)

const statusTTL = 7 * 24 * time.Hour

// Status is the cached summary of a job's last run.
type Status struct {
	Job      string     `json:"job"`
	Schedule string     `json:"schedule,omitempty"`
	LastRun  *Result    `json:"lastRun,omitempty"`
	Error    string     `json:"error,omitempty"`
	RanAt    *time.Time `json:"ranAt,omitempty"`
}

// Runner executes jobs by name under a distributed lock, so a scheduled run
// and a manual trigger on another replica never sweep the same scope at once.
type Runner struct {
	jobs      map[string]Job
	order     []string
	schedules map[string]string
	locker    repository.Locker
	status    repository.StatusStore
	lockTTL   time.Duration
	log       logrus.FieldLogger
}

func NewRunner(locker repository.Locker, status repository.StatusStore, lockTTL time.Duration, log logrus.FieldLogger, jobs ...Job) *Runner {
	r := &Runner{
		jobs:      make(map[string]Job, len(jobs)),
		schedules: make(map[string]string),
		locker:    locker,
		status:    status,
		lockTTL:   lockTTL,
		log:       log,
	}
	for _, j := range jobs {
		r.jobs[j.Name()] = j
		r.order = append(r.order, j.Name())
	}
	return r
}

func (r *Runner) Names() []string {
	return append([]string(nil), r.order...)
}

// SetSchedule records the schedule expression shown in Statuses.
func (r *Runner) SetSchedule(job, schedule string) {
	r.schedules[job] = schedule
}

func (r *Runner) Run(ctx context.Context, name string, opts RunOptions) (Result, error) {
	job, ok := r.jobs[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	lockName := name
	if opts.UserID != "" {
		lockName = name + ":" + opts.UserID
	}
	release, err := r.locker.Acquire(ctx, lockName, r.lockTTL)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			r.log.WithField("job", name).WithError(err).Warn("failed to release job lock")
		}
	}()

	logger := r.log.WithFields(logrus.Fields{"job": name, "user_id": opts.UserID, "force_daily": opts.ForceDaily})
	logger.Info("job started")

	start := time.Now()
	result, err := job.Run(ctx, opts)
	elapsed := time.Since(start)

	label := "success"
	if err != nil {
		label = "error"
	}
	metrics.JobDuration.WithLabelValues(name, label).Observe(elapsed.Seconds())
	metrics.JobNotificationsSent.WithLabelValues(name).Add(float64(result.NotificationsSent))

	if opts.UserID == "" {
		r.saveStatus(ctx, name, result, err)
	}

	if err != nil {
		logger.WithError(err).Error("job failed")
		return result, err
	}
	logger.WithFields(logrus.Fields{
		"users_processed":    result.UsersProcessed,
		"notifications_sent": result.NotificationsSent,
		"failed":             result.Failed,
		"deleted":            result.Deleted,
		"duration":           elapsed.String(),
	}).Info("job finished")
	return result, nil
}

func (r *Runner) saveStatus(ctx context.Context, name string, result Result, runErr error) {
	now := time.Now().UTC()
	status := Status{Job: name, LastRun: &result, RanAt: &now}
	if runErr != nil {
		status.Error = runErr.Error()
	}
	if err := r.status.SaveStatus(context.WithoutCancel(ctx), name, status, statusTTL); err != nil {
		r.log.WithField("job", name).WithError(err).Warn("failed to save job status")
	}
}

// Statuses returns every registered job with its last cached run.
func (r *Runner) Statuses(ctx context.Context) ([]Status, error) {
	out := make([]Status, 0, len(r.order))
	for _, name := range r.order {
		var s Status
		found, err := r.status.LoadStatus(ctx, name, &s)
		if err != nil {
			return nil, fmt.Errorf("failed to load status of %s: %w", name, err)
		}
		if !found {
			s = Status{Job: name}
		}
		s.Schedule = r.schedules[name]
		out = append(out, s)
	}
	return out, nil
}

// IsBusy reports whether err means the job was already running.
func IsBusy(err error) bool {
	return errors.Is(err, repository.ErrLockHeld)
}
