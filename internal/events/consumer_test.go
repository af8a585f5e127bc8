package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"notification-service/internal/models"
	"notification-service/internal/repository/memory"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func newTestConsumer(t *testing.T) (*EventConsumer, *memory.PreferenceStore, *memory.JudicialStore) {
	t.Helper()
	log, _ := test.NewNullLogger()
	prefs := memory.NewPreferenceStore()
	judicial := memory.NewJudicialStore()
	c, err := NewEventConsumer("", "notification.events", "notification.events", prefs, judicial, log)
	require.NoError(t, err)
	return c, prefs, judicial
}

func delivery(t *testing.T, key EventType, event any) amqp091.Delivery {
	t.Helper()
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return amqp091.Delivery{RoutingKey: string(key), Body: body}
}

func TestDisabledConsumerStartAndClose(t *testing.T) {
	c, _, _ := newTestConsumer(t)
	assert.NoError(t, c.Start())
	assert.NoError(t, c.Close())
}

func TestUserRegisteredCreatesDefaults(t *testing.T) {
	c, prefs, _ := newTestConsumer(t)
	userID := bson.NewObjectID()

	msg := delivery(t, EventTypeUserRegistered, UserRegisterEvent{
		BaseEvent: newBaseEvent(EventTypeUserRegistered),
		UserID:    userID.Hex(),
		Email:     "abogado@example.com",
	})
	require.NoError(t, c.processMessage(msg))

	pref, err := prefs.FindByUserID(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, pref)
	assert.True(t, pref.Calendar.Enabled)
	assert.Equal(t, models.DefaultCaducityDays, pref.Inactivity.CaducityDays)

	// Redelivery keeps the existing document.
	require.NoError(t, c.processMessage(msg))
}

func TestUserRegisteredWithBadID(t *testing.T) {
	c, _, _ := newTestConsumer(t)
	msg := delivery(t, EventTypeUserRegistered, UserRegisterEvent{UserID: "nope"})
	assert.NoError(t, c.processMessage(msg))
}

func TestMalformedBodyIsNotRetryable(t *testing.T) {
	c, _, _ := newTestConsumer(t)
	for _, key := range []EventType{EventTypeJudicialMovementCreated, EventTypeUserRegistered} {
		err := c.processMessage(amqp091.Delivery{RoutingKey: string(key), Body: []byte("{")})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedEvent, key)
	}
}

func TestJudicialMovementReplayIsIgnored(t *testing.T) {
	c, _, judicial := newTestConsumer(t)
	userID := bson.NewObjectID()
	date := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	event := JudicialMovementEvent{
		UserID:       userID.Hex(),
		CaseNumber:   "EXP-88/2026",
		MovementType: "Providencia",
		Date:         date,
	}

	event.BaseEvent = newBaseEvent(EventTypeJudicialMovementCreated)
	msg := delivery(t, EventTypeJudicialMovementCreated, event)
	require.NoError(t, c.processMessage(msg))
	require.NoError(t, c.processMessage(msg))

	// A webhook replay is republished under a fresh event id.
	event.BaseEvent = newBaseEvent(EventTypeJudicialMovementCreated)
	require.NoError(t, c.processMessage(delivery(t, EventTypeJudicialMovementCreated, event)))

	found, err := judicial.FindForOwner(context.Background(), userID, date.Add(-time.Hour), date.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.NotEmpty(t, found[0].SourceKey)

	event.MovementType = "Sentencia"
	require.NoError(t, c.processMessage(delivery(t, EventTypeJudicialMovementCreated, event)))
	found, err = judicial.FindForOwner(context.Background(), userID, date.Add(-time.Hour), date.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestJudicialMovementQueued(t *testing.T) {
	c, _, judicial := newTestConsumer(t)
	userID := bson.NewObjectID()
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	msg := delivery(t, EventTypeJudicialMovementCreated, JudicialMovementEvent{
		BaseEvent:    newBaseEvent(EventTypeJudicialMovementCreated),
		UserID:       userID.Hex(),
		CaseNumber:   "EXP-1234/2026",
		Court:        "Juzgado Civil 5",
		MovementType: "Sentencia",
		Date:         date,
	})
	require.NoError(t, c.processMessage(msg))

	found, err := judicial.FindForOwner(context.Background(), userID, date.Add(-time.Hour), date.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, models.JudicialStatusPending, found[0].Status)
	assert.Equal(t, date, found[0].NotifyAt)
	assert.Equal(t, "EXP-1234/2026 - Sentencia", found[0].DisplayName())
}

func TestUnknownRoutingKeyIsAcked(t *testing.T) {
	c, _, _ := newTestConsumer(t)
	assert.NoError(t, c.processMessage(amqp091.Delivery{RoutingKey: "file.uploaded", Body: []byte("{}")}))
}

func TestDisabledPublisherIsNoop(t *testing.T) {
	log, _ := test.NewNullLogger()
	p, err := NewEventPublisher("", "notification.events", log)
	require.NoError(t, err)

	evt := NewNotificationDeliveredEvent(bson.NewObjectID().Hex(), bson.NewObjectID().Hex(), "task", "email", "", "abc")
	assert.Equal(t, EventTypeNotificationDelivered, evt.Type)
	assert.NotEmpty(t, evt.ID)
	assert.NoError(t, p.PublishNotificationDelivered(context.Background(), evt))
	assert.NoError(t, p.Close())
}
