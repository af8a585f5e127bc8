package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Alert is a browser notification. Undelivered alerts are the pending queue
// flushed to the user on reconnection.
type Alert struct {
	ID             bson.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID         bson.ObjectID `bson:"userId" json:"userId"`
	EntityID       bson.ObjectID `bson:"entityId" json:"entityId"`
	EntityKind     EntityKind    `bson:"entityKind" json:"entityKind"`
	AlertType      string        `bson:"alertType,omitempty" json:"alertType,omitempty"`
	Title          string        `bson:"title" json:"title"`
	Message        string        `bson:"message" json:"message"`
	NotificationID string        `bson:"notificationId,omitempty" json:"notificationId,omitempty"`
	Delivered      bool          `bson:"delivered" json:"delivered"`
	DeliveredAt    *time.Time    `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
	CreatedAt      time.Time     `bson:"createdAt" json:"createdAt"`
}
