package realtime

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"notification-service/internal/metrics"
	"notification-service/internal/models"
	"notification-service/internal/repository"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	EventAuthenticated = "authenticated"
	EventAuthError     = "auth_error"
	EventAlert         = "alert"
	EventPendingAlerts = "alerts:pending"

	DefaultRevalidateInterval = 5 * time.Minute
	DefaultPendingLimit       = 50

	deliveryStripes = 64
)

// CredentialValidator checks that a token was issued to a user.
type CredentialValidator interface {
	Verify(token, userID string) error
}

type Config struct {
	RevalidateInterval time.Duration
	PendingLimit       int
}

type session struct {
	userID string
	stop   chan struct{}
}

// BrowserChannel delivers alerts to connected users and flushes queued ones
// when they reconnect.
type BrowserChannel struct {
	registry  *Registry
	transport Transport
	alerts    repository.AlertStore
	validator CredentialValidator
	log       logrus.FieldLogger
	cfg       Config

	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time

	// delivery serializes Push and the pending catch-up per user.
	delivery [deliveryStripes]sync.Mutex
}

func NewBrowserChannel(registry *Registry, transport Transport, alerts repository.AlertStore, validator CredentialValidator, log logrus.FieldLogger, cfg Config) *BrowserChannel {
	if cfg.RevalidateInterval <= 0 {
		cfg.RevalidateInterval = DefaultRevalidateInterval
	}
	if cfg.PendingLimit <= 0 {
		cfg.PendingLimit = DefaultPendingLimit
	}
	return &BrowserChannel{
		registry:  registry,
		transport: transport,
		alerts:    alerts,
		validator: validator,
		log:       log,
		cfg:       cfg,
		sessions:  make(map[string]*session),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Authenticate registers conn for userID once token checks out, then flushes
// the user's pending alerts and starts periodic re-validation. On failure the
// client receives an auth_error event and nothing is registered.
func (b *BrowserChannel) Authenticate(ctx context.Context, conn Connection, userID, token string) error {
	logger := b.log.WithFields(logrus.Fields{"user_id": userID, "connection_id": conn.ID()})

	if err := b.validator.Verify(token, userID); err != nil {
		logger.WithError(err).Warn("browser authentication rejected")
		if sendErr := conn.Send(ctx, EventAuthError, message{"message": "authentication failed"}); sendErr != nil {
			logger.WithError(sendErr).Debug("could not signal authentication failure")
		}
		return err
	}

	s := &session{userID: userID, stop: make(chan struct{})}
	b.mu.Lock()
	old, reauth := b.sessions[conn.ID()]
	if reauth {
		close(old.stop)
	}
	b.sessions[conn.ID()] = s
	b.mu.Unlock()

	if reauth && old.userID != userID {
		b.transport.LeaveGroup(conn, UserGroup(old.userID))
		b.registry.Remove(old.userID, conn.ID())
	}
	b.registry.Add(userID, conn)
	b.transport.JoinGroup(conn, UserGroup(userID))
	go b.revalidate(conn, s, token)

	b.updateGauges()
	logger.Info("browser connection authenticated")

	if err := conn.Send(ctx, EventAuthenticated, message{"userId": userID}); err != nil {
		logger.WithError(err).Debug("could not acknowledge authentication")
	}
	if _, err := b.DeliverPendingAlerts(ctx, userID); err != nil {
		logger.WithError(err).Error("failed to deliver pending alerts")
	}
	return nil
}

func (b *BrowserChannel) revalidate(conn Connection, s *session, token string) {
	ticker := time.NewTicker(b.cfg.RevalidateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := b.validator.Verify(token, s.userID); err != nil {
				// The connection may have re-authenticated since the tick.
				if !b.disconnectSession(conn, s) {
					return
				}
				b.log.WithFields(logrus.Fields{"user_id": s.userID, "connection_id": conn.ID()}).
					WithError(err).Info("credential no longer valid, closing connection")
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = conn.Send(ctx, EventAuthError, message{"message": "session expired"})
				cancel()
				_ = conn.Close("session expired")
				return
			}
		}
	}
}

func (b *BrowserChannel) IsUserConnected(userID string) bool {
	return b.registry.IsConnected(userID)
}

func (b *BrowserChannel) ConnectionCount(userID string) int {
	return b.registry.ConnectionCount(userID)
}

// Push sends alert to the user's live connections and marks it delivered.
// It returns false, leaving the alert pending, when the user is offline or the
// transport fails. An alert the pending catch-up already sent is not sent
// again.
func (b *BrowserChannel) Push(ctx context.Context, userID string, alert *models.Alert) bool {
	if !b.registry.IsConnected(userID) {
		return false
	}
	unlock := b.lockUser(userID)
	defer unlock()

	logger := b.log.WithFields(logrus.Fields{"user_id": userID, "alert_id": alert.ID.Hex()})
	now := b.now()
	if !alert.ID.IsZero() {
		claimed, err := b.alerts.MarkDelivered(ctx, []bson.ObjectID{alert.ID}, now)
		if err != nil {
			logger.WithError(err).Error("failed to mark alert delivered")
			return false
		}
		if claimed == 0 {
			logger.Debug("alert already delivered by catch-up")
			alert.Delivered = true
			alert.DeliveredAt = &now
			return true
		}
	}

	if err := b.transport.BroadcastToGroup(ctx, UserGroup(userID), EventAlert, alert); err != nil {
		logger.WithError(err).Warn("browser push failed")
		metrics.DeliveryAttempts.WithLabelValues(string(models.ChannelBrowser), string(models.DeliveryFailed)).Inc()
		if !alert.ID.IsZero() {
			if err := b.alerts.MarkPending(ctx, alert.ID); err != nil {
				logger.WithError(err).Error("failed to requeue alert")
			}
		}
		return false
	}

	alert.Delivered = true
	alert.DeliveredAt = &now
	return true
}

func (b *BrowserChannel) lockUser(userID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	mu := &b.delivery[h.Sum32()%deliveryStripes]
	mu.Lock()
	return mu.Unlock
}

// DeliverPendingAlerts pushes the user's undelivered alerts, newest first and
// bounded by the pending limit, as one batch event and marks them delivered
// in one update. It returns the number of alerts delivered.
func (b *BrowserChannel) DeliverPendingAlerts(ctx context.Context, userID string) (int, error) {
	if !b.registry.IsConnected(userID) {
		return 0, nil
	}
	oid, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q: %w", userID, err)
	}
	unlock := b.lockUser(userID)
	defer unlock()

	pending, err := b.alerts.FindPending(ctx, oid, b.cfg.PendingLimit)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	if err := b.transport.BroadcastToGroup(ctx, UserGroup(userID), EventPendingAlerts, pending); err != nil {
		b.log.WithField("user_id", userID).WithError(err).Warn("pending alert batch push failed")
		return 0, nil
	}

	ids := make([]bson.ObjectID, len(pending))
	for i, a := range pending {
		ids[i] = a.ID
	}
	if _, err := b.alerts.MarkDelivered(ctx, ids, b.now()); err != nil {
		return 0, err
	}

	metrics.PendingAlertsDelivered.Add(float64(len(pending)))
	b.log.WithFields(logrus.Fields{"user_id": userID, "count": len(pending)}).Info("delivered pending alerts")
	return len(pending), nil
}

// Disconnect removes conn from its user's set and stops its re-validation.
// Unknown connections are ignored.
func (b *BrowserChannel) Disconnect(conn Connection) {
	b.disconnectSession(conn, nil)
}

// disconnectSession tears down conn's session. When only is set, it acts only
// if that session is still the current one for conn.
func (b *BrowserChannel) disconnectSession(conn Connection, only *session) bool {
	b.mu.Lock()
	s, ok := b.sessions[conn.ID()]
	if ok && only != nil && s != only {
		ok = false
	}
	if ok {
		delete(b.sessions, conn.ID())
		close(s.stop)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}

	b.transport.LeaveGroup(conn, UserGroup(s.userID))
	remaining := b.registry.Remove(s.userID, conn.ID())
	b.updateGauges()
	b.log.WithFields(logrus.Fields{"user_id": s.userID, "connection_id": conn.ID(), "remaining": remaining}).Info("browser connection closed")
	return true
}

func (b *BrowserChannel) updateGauges() {
	users, conns := b.registry.Totals()
	metrics.ConnectedUsers.Set(float64(users))
	metrics.OpenConnections.Set(float64(conns))
}

// message is the JSON object shape sent to clients.
type message map[string]any
