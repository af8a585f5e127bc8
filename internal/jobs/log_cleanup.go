package jobs

import (
	"context"
	"time"

	"notification-service/internal/service"
)

// LogCleanupJob applies the notification log retention. It ignores the user
// and forceDaily options.
type LogCleanupJob struct {
	logs      *service.NotificationLogService
	retention time.Duration
}

func NewLogCleanupJob(logs *service.NotificationLogService, retention time.Duration) *LogCleanupJob {
	return &LogCleanupJob{logs: logs, retention: retention}
}

func (j *LogCleanupJob) Name() string { return JobLogCleanup }

func (j *LogCleanupJob) Run(ctx context.Context, _ RunOptions) (Result, error) {
	result := Result{Job: JobLogCleanup, StartedAt: time.Now().UTC()}
	deleted, err := j.logs.Cleanup(ctx, j.retention)
	if err != nil {
		return result, err
	}
	result.Deleted = deleted
	result.FinishedAt = time.Now().UTC()
	return result, nil
}
