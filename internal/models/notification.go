package models

import (
	"encoding/hex"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/crypto/blake2b"
)

type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelBrowser Channel = "browser"
)

// DayLayout is the calendar-day representation used for same-day comparisons.
const DayLayout = "2006-01-02"

// NotificationRecord is one entry of an entity's embedded notification history.
type NotificationRecord struct {
	Date           time.Time `bson:"date" json:"date"`
	Type           Channel   `bson:"type" json:"type"`
	Success        bool      `bson:"success" json:"success"`
	Details        string    `bson:"details,omitempty" json:"details,omitempty"`
	AlertType      string    `bson:"alertType,omitempty" json:"alertType,omitempty"`
	NotificationID string    `bson:"notificationId,omitempty" json:"notificationId,omitempty"`
}

// NotificationSettings is the optional per-entity override. Nil fields inherit
// from the owner's preferences.
type NotificationSettings struct {
	NotifyOnceOnly *bool `bson:"notifyOnceOnly,omitempty" json:"notifyOnceOnly,omitempty"`
	DaysInAdvance  *int  `bson:"daysInAdvance,omitempty" json:"daysInAdvance,omitempty"`
}

// NotificationState is embedded in every notifiable entity document.
//
// BrowserAlertSent is a one-way latch: it becomes true with the first browser
// record and is never reset, even when the history is trimmed by retention.
type NotificationState struct {
	Notifications        []NotificationRecord  `bson:"notifications,omitempty" json:"notifications"`
	NotificationSettings *NotificationSettings `bson:"notificationSettings,omitempty" json:"notificationSettings,omitempty"`
	BrowserAlertSent     bool                  `bson:"browserAlertSent" json:"browserAlertSent"`
}

// HasSuccessful reports whether any successful record exists for the channel
// and alert type, regardless of date.
func (s NotificationState) HasSuccessful(channel Channel, alertType string) bool {
	if channel == ChannelBrowser && alertType == "" && s.BrowserAlertSent {
		return true
	}
	for _, n := range s.Notifications {
		if n.Type == channel && n.AlertType == alertType && n.Success {
			return true
		}
	}
	return false
}

// SuccessfulOn reports whether a successful record for the channel and alert
// type falls on the given calendar day (YYYY-MM-DD, UTC).
func (s NotificationState) SuccessfulOn(channel Channel, alertType, day string) bool {
	for _, n := range s.Notifications {
		if n.Type == channel && n.AlertType == alertType && n.Success && DayKey(n.Date) == day {
			return true
		}
	}
	return false
}

// RecentRecord reports whether a record of the channel and alert type exists
// at or after since. Success is not considered; this backs the anti-duplicate
// window.
func (s NotificationState) RecentRecord(channel Channel, alertType string, since time.Time) bool {
	for _, n := range s.Notifications {
		if n.Type == channel && n.AlertType == alertType && !n.Date.Before(since) {
			return true
		}
	}
	return false
}

// Append pushes a record and latches BrowserAlertSent for browser records.
func (s *NotificationState) Append(record NotificationRecord) {
	s.Notifications = append(s.Notifications, record)
	if record.Type == ChannelBrowser {
		s.BrowserAlertSent = true
	}
}

func DayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// NotificationID derives a content-based idempotency hash for one
// (entity, channel, alert type, day) notification.
func NotificationID(kind EntityKind, entityID bson.ObjectID, channel Channel, alertType, day string) string {
	payload := strings.Join([]string{string(kind), entityID.Hex(), string(channel), alertType, day}, "|")
	sum := blake2b.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:16])
}

// JudicialSourceKey hashes the fields that identify one judicial movement as
// reported by the courts. Event ids are not used since a replayed webhook is
// republished under a new id.
func JudicialSourceKey(userID bson.ObjectID, caseNumber, movementType string, date time.Time) string {
	payload := strings.Join([]string{userID.Hex(), caseNumber, movementType, date.UTC().Format(time.RFC3339)}, "|")
	sum := blake2b.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:16])
}
