package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type DeliveryStatus string

const (
	DeliveryCreated   DeliveryStatus = "created"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryRetry     DeliveryStatus = "retry"
)

// NotificationLog is the cross-entity audit trail of delivery attempts. It is
// never consulted for eligibility.
type NotificationLog struct {
	ID             bson.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID         bson.ObjectID  `bson:"userId" json:"userId"`
	EntityID       bson.ObjectID  `bson:"entityId" json:"entityId"`
	EntityKind     EntityKind     `bson:"entityKind" json:"entityKind"`
	Channel        Channel        `bson:"channel" json:"channel"`
	Status         DeliveryStatus `bson:"status" json:"status"`
	AlertType      string         `bson:"alertType,omitempty" json:"alertType,omitempty"`
	Subject        string         `bson:"subject,omitempty" json:"subject,omitempty"`
	Recipient      string         `bson:"recipient,omitempty" json:"recipient,omitempty"`
	Error          string         `bson:"error,omitempty" json:"error,omitempty"`
	NotificationID string         `bson:"notificationId,omitempty" json:"notificationId,omitempty"`
	Job            string         `bson:"job,omitempty" json:"job,omitempty"`
	CreatedAt      time.Time      `bson:"createdAt" json:"createdAt"`
}

// LogStat is one row of the channel/status aggregation.
type LogStat struct {
	Channel Channel        `bson:"channel" json:"channel"`
	Status  DeliveryStatus `bson:"status" json:"status"`
	Count   int64          `bson:"count" json:"count"`
}
