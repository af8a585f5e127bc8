package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"notification-service/internal/models"
	"notification-service/internal/repository"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// ErrMalformedEvent marks a body that cannot be decoded. Redelivery cannot
// fix it, so such messages are rejected without requeue.
var ErrMalformedEvent = errors.New("malformed event")

type Consumer interface {
	Start() error
	Close() error
}

// EventConsumer reacts to platform events: new users get default
// preferences and ingested judicial movements are queued for notification.
type EventConsumer struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	queueName    string
	exchangeName string
	preferences  repository.PreferenceStore
	judicial     repository.JudicialStore
	log          logrus.FieldLogger
	shutdown     chan struct{}
	wg           sync.WaitGroup
	enabled      bool
}

func NewEventConsumer(
	rabbitURI, exchangeName, queueName string,
	preferences repository.PreferenceStore,
	judicial repository.JudicialStore,
	log logrus.FieldLogger,
) (*EventConsumer, error) {
	c := &EventConsumer{
		queueName:    queueName,
		exchangeName: exchangeName,
		preferences:  preferences,
		judicial:     judicial,
		log:          log,
		shutdown:     make(chan struct{}),
	}
	if rabbitURI == "" {
		log.Warn("RabbitMQ URI is empty, event consumption is disabled")
		return c, nil
	}

	conn, err := amqp091.Dial(rabbitURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = channel.Qos(
		10,    // prefetch count
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	err = channel.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	c.conn = conn
	c.channel = channel
	c.enabled = true
	return c, nil
}

func (c *EventConsumer) Start() error {
	if !c.enabled {
		c.log.Info("event consumption is disabled, not starting consumer")
		return nil
	}

	for _, routingKey := range []string{
		string(EventTypeUserRegistered),
		string(EventTypeJudicialMovementCreated),
	} {
		if err := c.channel.QueueBind(c.queueName, routingKey, c.exchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue to exchange: %w", err)
		}
	}

	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consume(msgs)
	}()

	c.log.WithField("queue", c.queueName).Info("event consumer started")
	return nil
}

func (c *EventConsumer) consume(msgs <-chan amqp091.Delivery) {
	for {
		select {
		case <-c.shutdown:
			c.log.Info("stopping event consumer")
			return
		case msg, ok := <-msgs:
			if !ok {
				c.log.Warn("message channel closed, consumer stopped")
				return
			}

			if err := c.processMessage(msg); err != nil {
				requeue := !errors.Is(err, ErrMalformedEvent)
				c.log.WithError(err).WithFields(logrus.Fields{
					"routing_key": msg.RoutingKey,
					"requeue":     requeue,
				}).Error("error processing message")
				if err := msg.Nack(false, requeue); err != nil {
					c.log.WithError(err).Error("error NACKing message")
				}
				continue
			}
			if err := msg.Ack(false); err != nil {
				c.log.WithError(err).Error("error ACKing message")
			}
		}
	}
}

func (c *EventConsumer) processMessage(msg amqp091.Delivery) error {
	c.log.WithField("routing_key", msg.RoutingKey).Debug("processing message")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch msg.RoutingKey {
	case string(EventTypeUserRegistered):
		return c.handleUserRegistered(ctx, msg.Body)
	case string(EventTypeJudicialMovementCreated):
		return c.handleJudicialMovementCreated(ctx, msg.Body)
	default:
		c.log.WithField("routing_key", msg.RoutingKey).Warn("unknown routing key")
		return nil
	}
}

func (c *EventConsumer) handleUserRegistered(ctx context.Context, body []byte) error {
	var event UserRegisterEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: user registered: %v", ErrMalformedEvent, err)
	}

	userID, err := bson.ObjectIDFromHex(event.UserID)
	if err != nil {
		// Redelivery cannot fix a malformed id.
		c.log.WithField("user_id", event.UserID).Warn("user registered event with invalid user id, dropping")
		return nil
	}

	created, err := c.preferences.EnsureDefaults(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to create default preferences: %w", err)
	}
	c.log.WithFields(logrus.Fields{"user_id": event.UserID, "created": created}).Info("default preferences ensured")
	return nil
}

func (c *EventConsumer) handleJudicialMovementCreated(ctx context.Context, body []byte) error {
	var event JudicialMovementEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: judicial movement: %v", ErrMalformedEvent, err)
	}

	userID, err := bson.ObjectIDFromHex(event.UserID)
	if err != nil || event.CaseNumber == "" {
		c.log.WithFields(logrus.Fields{
			"user_id":     event.UserID,
			"case_number": event.CaseNumber,
		}).Warn("incomplete judicial movement event, dropping")
		return nil
	}

	movement := &models.JudicialMovement{
		UserID:       userID,
		CaseNumber:   event.CaseNumber,
		Court:        event.Court,
		MovementType: event.MovementType,
		Detail:       event.Detail,
		Link:         event.Link,
		Date:         event.Date,
		NotifyAt:     event.NotifyAt,
		Status:       models.JudicialStatusPending,
	}
	if movement.NotifyAt.IsZero() {
		movement.NotifyAt = event.Date
	}
	movement.SourceKey = models.JudicialSourceKey(userID, event.CaseNumber, event.MovementType, event.Date)
	if event.FolderID != "" {
		if folderID, err := bson.ObjectIDFromHex(event.FolderID); err == nil {
			movement.FolderID = folderID
		}
	}

	created, err := c.judicial.Insert(ctx, movement)
	if err != nil {
		return fmt.Errorf("failed to store judicial movement: %w", err)
	}
	if !created {
		c.log.WithFields(logrus.Fields{
			"case_number": movement.CaseNumber,
			"source_key":  movement.SourceKey,
		}).Info("judicial movement already queued, ignoring replay")
		return nil
	}
	c.log.WithFields(logrus.Fields{
		"movement_id": movement.ID.Hex(),
		"case_number": movement.CaseNumber,
	}).Info("judicial movement queued")
	return nil
}

func (c *EventConsumer) Close() error {
	if !c.enabled {
		return nil
	}

	close(c.shutdown)
	c.wg.Wait()

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.log.WithError(err).Error("error closing RabbitMQ channel")
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			return fmt.Errorf("error closing RabbitMQ connection: %w", err)
		}
	}
	return nil
}
