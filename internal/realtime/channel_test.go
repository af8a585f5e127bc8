package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"notification-service/internal/models"
	"notification-service/internal/repository/memory"

	"github.com/google/uuid"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type sent struct {
	event   string
	payload any
}

type fakeConn struct {
	id      string
	mu      sync.Mutex
	events  []sent
	failing bool
	closed  bool
}

func newFakeConn() *fakeConn { return &fakeConn{id: uuid.NewString()} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(_ context.Context, event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("broken pipe")
	}
	c.events = append(c.events, sent{event, payload})
	return nil
}

func (c *fakeConn) Close(string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received(event string) []sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sent
	for _, e := range c.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeValidator struct {
	mu    sync.Mutex
	valid map[string]string
}

func (v *fakeValidator) Verify(token, userID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.valid[token] != userID {
		return errors.New("invalid credential")
	}
	return nil
}

func (v *fakeValidator) revoke(token string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.valid, token)
}

func newTestChannel(t *testing.T, cfg Config) (*BrowserChannel, *memory.AlertStore, *fakeValidator, string) {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	userID := bson.NewObjectID().Hex()
	validator := &fakeValidator{valid: map[string]string{"good-token": userID}}
	alerts := memory.NewAlertStore()
	ch := NewBrowserChannel(NewRegistry(), NewLocalTransport(), alerts, validator, logger, cfg)
	return ch, alerts, validator, userID
}

func TestConnectionRegistryConsistency(t *testing.T) {
	ch, _, _, userID := newTestChannel(t, Config{})
	ctx := context.Background()

	conns := []*fakeConn{newFakeConn(), newFakeConn(), newFakeConn()}
	for _, c := range conns {
		require.NoError(t, ch.Authenticate(ctx, c, userID, "good-token"))
	}
	assert.Equal(t, 3, ch.ConnectionCount(userID))

	ch.Disconnect(conns[0])
	ch.Disconnect(conns[1])
	assert.True(t, ch.IsUserConnected(userID))
	assert.Equal(t, 1, ch.ConnectionCount(userID))

	ch.Disconnect(conns[2])
	assert.False(t, ch.IsUserConnected(userID))
	assert.False(t, ch.registry.HasEntry(userID))

	// a second disconnect of the same socket is a no-op
	ch.Disconnect(conns[2])
	assert.Equal(t, 0, ch.ConnectionCount(userID))
}

func TestAuthenticateRejectsBadCredential(t *testing.T) {
	ch, _, _, userID := newTestChannel(t, Config{})
	conn := newFakeConn()

	err := ch.Authenticate(context.Background(), conn, userID, "stolen-token")
	assert.Error(t, err)
	assert.False(t, ch.IsUserConnected(userID))
	assert.Len(t, conn.received(EventAuthError), 1)
}

func TestPendingAlertCatchUpIsIdempotent(t *testing.T) {
	ch, alerts, _, userID := newTestChannel(t, Config{PendingLimit: 10})
	ctx := context.Background()
	owner, _ := bson.ObjectIDFromHex(userID)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, alerts.Create(ctx, &models.Alert{UserID: owner, Title: "Vencimiento", CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	conn := newFakeConn()
	require.NoError(t, ch.Authenticate(ctx, conn, userID, "good-token"))

	batches := conn.received(EventPendingAlerts)
	require.Len(t, batches, 1)
	batch := batches[0].payload.([]models.Alert)
	require.Len(t, batch, 3)
	assert.True(t, batch[0].CreatedAt.After(batch[2].CreatedAt), "newest first")

	n, err := ch.DeliverPendingAlerts(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, conn.received(EventPendingAlerts), 1)

	for _, a := range alerts.All() {
		assert.True(t, a.Delivered)
		assert.NotNil(t, a.DeliveredAt)
	}
}

func TestPendingAlertsRespectLimit(t *testing.T) {
	ch, alerts, _, userID := newTestChannel(t, Config{PendingLimit: 2})
	ctx := context.Background()
	owner, _ := bson.ObjectIDFromHex(userID)
	for i := 0; i < 5; i++ {
		require.NoError(t, alerts.Create(ctx, &models.Alert{UserID: owner, CreatedAt: time.Now().Add(time.Duration(i) * time.Second)}))
	}

	require.NoError(t, ch.Authenticate(ctx, newFakeConn(), userID, "good-token"))

	pending, err := alerts.FindPending(ctx, owner, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestPush(t *testing.T) {
	ch, alerts, _, userID := newTestChannel(t, Config{})
	ctx := context.Background()
	owner, _ := bson.ObjectIDFromHex(userID)

	offline := &models.Alert{UserID: owner, Title: "Audiencia"}
	require.NoError(t, alerts.Create(ctx, offline))
	assert.False(t, ch.Push(ctx, userID, offline))
	assert.False(t, offline.Delivered)

	first, second := newFakeConn(), newFakeConn()
	require.NoError(t, ch.Authenticate(ctx, first, userID, "good-token"))
	require.NoError(t, ch.Authenticate(ctx, second, userID, "good-token"))

	online := &models.Alert{UserID: owner, Title: "Plazo"}
	require.NoError(t, alerts.Create(ctx, online))
	assert.True(t, ch.Push(ctx, userID, online))
	assert.Len(t, first.received(EventAlert), 1)
	assert.Len(t, second.received(EventAlert), 1)

	pending, err := alerts.FindPending(ctx, owner, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPushTransportFailureLeavesAlertPending(t *testing.T) {
	ch, alerts, _, userID := newTestChannel(t, Config{})
	ctx := context.Background()
	owner, _ := bson.ObjectIDFromHex(userID)

	conn := newFakeConn()
	require.NoError(t, ch.Authenticate(ctx, conn, userID, "good-token"))
	conn.mu.Lock()
	conn.failing = true
	conn.mu.Unlock()

	alert := &models.Alert{UserID: owner, Title: "Plazo"}
	require.NoError(t, alerts.Create(ctx, alert))
	assert.False(t, ch.Push(ctx, userID, alert))

	pending, err := alerts.FindPending(ctx, owner, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestRevalidationClosesExpiredSessions(t *testing.T) {
	ch, _, validator, userID := newTestChannel(t, Config{RevalidateInterval: 10 * time.Millisecond})
	conn := newFakeConn()
	require.NoError(t, ch.Authenticate(context.Background(), conn, userID, "good-token"))

	validator.revoke("good-token")

	assert.Eventually(t, func() bool {
		return !ch.IsUserConnected(userID) && conn.isClosed()
	}, time.Second, 5*time.Millisecond)
}

func TestPushAfterCatchUpDoesNotResend(t *testing.T) {
	ch, alerts, _, userID := newTestChannel(t, Config{})
	ctx := context.Background()
	owner, _ := bson.ObjectIDFromHex(userID)

	// The alert is persisted while the user is offline, then the user
	// connects before the producer gets to push it.
	alert := &models.Alert{UserID: owner, Title: "Audiencia", NotificationID: "n-1"}
	require.NoError(t, alerts.Create(ctx, alert))
	conn := newFakeConn()
	require.NoError(t, ch.Authenticate(ctx, conn, userID, "good-token"))
	require.Len(t, conn.received(EventPendingAlerts), 1)

	assert.True(t, ch.Push(ctx, userID, alert))
	assert.Empty(t, conn.received(EventAlert))
	assert.True(t, alert.Delivered)
}

func TestStaleRevalidationKeepsNewSession(t *testing.T) {
	ch, _, validator, userID := newTestChannel(t, Config{RevalidateInterval: time.Hour})
	validator.valid["fresh-token"] = userID
	conn := newFakeConn()
	ctx := context.Background()

	require.NoError(t, ch.Authenticate(ctx, conn, userID, "good-token"))
	ch.mu.Lock()
	stale := ch.sessions[conn.ID()]
	ch.mu.Unlock()

	require.NoError(t, ch.Authenticate(ctx, conn, userID, "fresh-token"))
	validator.revoke("good-token")

	// The superseded session's check fails but must not close the new one.
	assert.False(t, ch.disconnectSession(conn, stale))
	assert.True(t, ch.IsUserConnected(userID))
	assert.False(t, conn.isClosed())

	ch.Disconnect(conn)
	assert.False(t, ch.IsUserConnected(userID))
}
