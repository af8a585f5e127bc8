package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventTypeUserRegistered          EventType = "user.registered"
	EventTypeJudicialMovementCreated EventType = "judicial.movement.created"
	EventTypeNotificationDelivered   EventType = "notification.delivered"
)

// BaseEvent represents the common fields for all events
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Version   string    `json:"version"`
}

func newBaseEvent(t EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().Unix(),
		Version:   "1.0",
	}
}

type UserRegisterEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// JudicialMovementEvent is emitted by the case ingestion pipeline for every
// new movement it scrapes.
type JudicialMovementEvent struct {
	BaseEvent
	UserID       string    `json:"userId"`
	FolderID     string    `json:"folderId,omitempty"`
	CaseNumber   string    `json:"caseNumber"`
	Court        string    `json:"court,omitempty"`
	MovementType string    `json:"movementType"`
	Detail       string    `json:"detail,omitempty"`
	Link         string    `json:"link,omitempty"`
	Date         time.Time `json:"date"`
	NotifyAt     time.Time `json:"notifyAt,omitempty"`
}

type NotificationDeliveredEvent struct {
	BaseEvent
	UserID         string `json:"userId"`
	EntityID       string `json:"entityId"`
	EntityKind     string `json:"entityKind"`
	Channel        string `json:"channel"`
	AlertType      string `json:"alertType,omitempty"`
	NotificationID string `json:"notificationId,omitempty"`
}

func NewNotificationDeliveredEvent(userID, entityID, kind, channel, alertType, notificationID string) *NotificationDeliveredEvent {
	return &NotificationDeliveredEvent{
		BaseEvent:      newBaseEvent(EventTypeNotificationDelivered),
		UserID:         userID,
		EntityID:       entityID,
		EntityKind:     kind,
		Channel:        channel,
		AlertType:      alertType,
		NotificationID: notificationID,
	}
}
