package service

import (
	"context"
	"time"

	"notification-service/internal/metrics"
	"notification-service/internal/models"
	"notification-service/internal/repository"

	"github.com/sirupsen/logrus"
)

// NotificationLogService writes the delivery audit trail. The log is written
// after the entity history and independently of it; a failed log write is
// logged and dropped so it can never undo or block a delivery.
type NotificationLogService struct {
	store repository.LogStore
	log   logrus.FieldLogger
}

func NewNotificationLogService(store repository.LogStore, log logrus.FieldLogger) *NotificationLogService {
	return &NotificationLogService{store: store, log: log}
}

func (s *NotificationLogService) Record(ctx context.Context, entry models.NotificationLog) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	metrics.DeliveryAttempts.WithLabelValues(string(entry.Channel), string(entry.Status)).Inc()

	if err := s.store.Insert(ctx, &entry); err != nil {
		s.log.WithFields(logrus.Fields{
			"user_id":   entry.UserID.Hex(),
			"entity_id": entry.EntityID.Hex(),
			"channel":   entry.Channel,
			"status":    entry.Status,
		}).WithError(err).Error("failed to write notification log")
	}
}

// Cleanup deletes entries older than retention.
func (s *NotificationLogService) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.log.WithFields(logrus.Fields{"deleted": deleted, "cutoff": cutoff}).Info("notification log cleanup finished")
	return deleted, nil
}

func (s *NotificationLogService) Stats(ctx context.Context, since time.Time) ([]models.LogStat, error) {
	return s.store.Stats(ctx, since)
}
