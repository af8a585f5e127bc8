package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notification-service/internal/events"
	"notification-service/internal/models"
	"notification-service/internal/repository"
	"notification-service/internal/service"
	"notification-service/internal/templates"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type Mailer interface {
	Send(ctx context.Context, to, category, name string, vars map[string]string) (templates.Rendered, error)
}

type Pusher interface {
	Push(ctx context.Context, userID string, alert *models.Alert) bool
}

// Notice is one eligible entity ready to be rendered and delivered.
type Notice struct {
	Entity    models.Notifiable
	AlertType string
	Category  string
	Template  string
	Vars      map[string]string
	Backfill  *models.NotificationSettings
}

type DispatcherConfig struct {
	BrowserConcurrency int
}

// Dispatcher delivers notices over a channel and commits the outcome to the
// entity history, then to the notification log.
type Dispatcher struct {
	mailer      Mailer
	renderer    templates.Renderer
	browser     Pusher
	alerts      repository.AlertStore
	recorder    *service.Recorder
	logs        *service.NotificationLogService
	publisher   events.Publisher
	log         logrus.FieldLogger
	concurrency int
	now         func() time.Time
}

func NewDispatcher(
	mailer Mailer,
	renderer templates.Renderer,
	browser Pusher,
	alerts repository.AlertStore,
	recorder *service.Recorder,
	logs *service.NotificationLogService,
	publisher events.Publisher,
	log logrus.FieldLogger,
	cfg DispatcherConfig,
) *Dispatcher {
	return &Dispatcher{
		mailer:      mailer,
		renderer:    renderer,
		browser:     browser,
		alerts:      alerts,
		recorder:    recorder,
		logs:        logs,
		publisher:   publisher,
		log:         log,
		concurrency: cfg.BrowserConcurrency,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SendEmail delivers one notice by email. A transport failure is recorded
// with success false and reported as not sent; only a storage failure is
// returned as an error.
func (d *Dispatcher) SendEmail(ctx context.Context, job string, user models.User, store repository.HistoryStore, n Notice) (bool, error) {
	entity := n.Entity
	now := d.now()
	notificationID := models.NotificationID(entity.Kind(), entity.EntityID(), models.ChannelEmail, n.AlertType, models.DayKey(now))
	logger := d.log.WithFields(logrus.Fields{
		"job":       job,
		"user_id":   user.ID.Hex(),
		"entity_id": entity.EntityID().Hex(),
		"kind":      entity.Kind(),
		"channel":   models.ChannelEmail,
	})

	rendered, sendErr := d.mailer.Send(ctx, user.Email, n.Category, n.Template, n.Vars)

	record := models.NotificationRecord{
		Date:           now,
		Type:           models.ChannelEmail,
		Success:        sendErr == nil,
		AlertType:      n.AlertType,
		NotificationID: notificationID,
	}
	if sendErr != nil {
		record.Details = sendErr.Error()
	}

	appended, err := d.recorder.RecordOne(ctx, store, entity.EntityID(), record, service.RecordOptions{Backfill: n.Backfill})
	if err != nil {
		return sendErr == nil, fmt.Errorf("record email notification: %w", err)
	}
	if !appended {
		logger.Debug("email notification already recorded by a concurrent run")
	}

	entry := models.NotificationLog{
		UserID:         user.ID,
		EntityID:       entity.EntityID(),
		EntityKind:     entity.Kind(),
		Channel:        models.ChannelEmail,
		Status:         models.DeliverySent,
		AlertType:      n.AlertType,
		Subject:        rendered.Subject,
		Recipient:      user.Email,
		NotificationID: notificationID,
		Job:            job,
	}
	if sendErr != nil {
		entry.Status = models.DeliveryFailed
		entry.Error = sendErr.Error()
		d.logs.Record(ctx, entry)
		logger.WithError(sendErr).Warn("email notification failed")
		return false, nil
	}
	d.logs.Record(ctx, entry)
	d.publish(ctx, user, entity, models.ChannelEmail, n.AlertType, notificationID)
	return true, nil
}

// SendBrowser persists one alert per notice, pushes it to the user's live
// connections, and records each entity on its own. Alerts for an offline
// user stay pending for the reconnection catch-up and still count as sent.
func (d *Dispatcher) SendBrowser(ctx context.Context, job string, user models.User, store repository.HistoryStore, notices []Notice) service.SequentialReport {
	if len(notices) == 0 {
		return service.SequentialReport{}
	}

	byID := make(map[bson.ObjectID]Notice, len(notices))
	ids := make([]bson.ObjectID, 0, len(notices))
	for _, n := range notices {
		id := n.Entity.EntityID()
		if _, dup := byID[id]; dup {
			continue
		}
		byID[id] = n
		ids = append(ids, id)
	}

	deliver := func(ctx context.Context, id bson.ObjectID) (models.NotificationRecord, error) {
		n := byID[id]
		now := d.now()
		notificationID := models.NotificationID(n.Entity.Kind(), id, models.ChannelBrowser, n.AlertType, models.DayKey(now))

		rendered, err := d.renderer.Render(n.Category, n.Template, n.Vars)
		if err != nil {
			return models.NotificationRecord{}, err
		}

		alert := &models.Alert{
			UserID:         user.ID,
			EntityID:       id,
			EntityKind:     n.Entity.Kind(),
			AlertType:      n.AlertType,
			Title:          rendered.Subject,
			Message:        rendered.Text,
			NotificationID: notificationID,
			CreatedAt:      now,
		}
		if err := d.alerts.Create(ctx, alert); err != nil {
			if !errors.Is(err, repository.ErrDuplicateAlert) {
				return models.NotificationRecord{}, fmt.Errorf("persist alert: %w", err)
			}
			// Another worker already created, and pushed or queued, this
			// alert. Only its record is left to append.
			d.log.WithFields(logrus.Fields{"entity_id": id.Hex(), "notification_id": notificationID}).
				Debug("browser alert already exists, not pushing again")
			return models.NotificationRecord{
				Date:           now,
				Type:           models.ChannelBrowser,
				Success:        true,
				Details:        "duplicate",
				AlertType:      n.AlertType,
				NotificationID: notificationID,
			}, nil
		}

		status, details := models.DeliveryPending, "pending"
		if d.browser.Push(ctx, user.ID.Hex(), alert) {
			status, details = models.DeliveryDelivered, "delivered"
		}

		d.logs.Record(ctx, models.NotificationLog{
			UserID:         user.ID,
			EntityID:       id,
			EntityKind:     n.Entity.Kind(),
			Channel:        models.ChannelBrowser,
			Status:         status,
			AlertType:      n.AlertType,
			Subject:        rendered.Subject,
			NotificationID: notificationID,
			Job:            job,
		})
		if status == models.DeliveryDelivered {
			d.publish(ctx, user, n.Entity, models.ChannelBrowser, n.AlertType, notificationID)
		}

		return models.NotificationRecord{
			Date:           now,
			Type:           models.ChannelBrowser,
			Success:        true,
			Details:        details,
			AlertType:      n.AlertType,
			NotificationID: notificationID,
		}, nil
	}

	// Every notice in one call shares the same backfill, since they come
	// from the same user and kind.
	opts := service.RecordOptions{Backfill: notices[0].Backfill}
	return d.recorder.RecordSequential(ctx, store, ids, deliver, opts, d.concurrency)
}

func (d *Dispatcher) publish(ctx context.Context, user models.User, entity models.Notifiable, channel models.Channel, alertType, notificationID string) {
	if d.publisher == nil {
		return
	}
	evt := events.NewNotificationDeliveredEvent(user.ID.Hex(), entity.EntityID().Hex(), string(entity.Kind()), string(channel), alertType, notificationID)
	if err := d.publisher.PublishNotificationDelivered(ctx, evt); err != nil {
		d.log.WithField("entity_id", entity.EntityID().Hex()).WithError(err).Warn("failed to publish delivery event")
	}
}
