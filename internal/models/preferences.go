package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// PreferenceKind groups entity kinds that share one block of user settings.
type PreferenceKind string

const (
	PreferenceCalendar   PreferenceKind = "calendar"
	PreferenceExpiration PreferenceKind = "expiration"
	PreferenceJudicial   PreferenceKind = "judicial"
	PreferenceInactivity PreferenceKind = "inactivity"
)

// PreferenceKindFor maps an entity kind to its settings block. Tasks and
// movements share the expiration block.
func PreferenceKindFor(kind EntityKind) PreferenceKind {
	switch kind {
	case KindEvent:
		return PreferenceCalendar
	case KindTask, KindMovement:
		return PreferenceExpiration
	case KindJudicialMovement:
		return PreferenceJudicial
	default:
		return PreferenceInactivity
	}
}

type ChannelToggle struct {
	Email   bool `bson:"email" json:"email"`
	Browser bool `bson:"browser" json:"browser"`
}

func (c ChannelToggle) Enabled(channel Channel) bool {
	switch channel {
	case ChannelEmail:
		return c.Email
	case ChannelBrowser:
		return c.Browser
	}
	return false
}

type KindPreference struct {
	Enabled        bool          `bson:"enabled" json:"enabled"`
	Channels       ChannelToggle `bson:"channels" json:"channels"`
	NotifyOnceOnly bool          `bson:"notifyOnceOnly" json:"notifyOnceOnly"`
	DaysInAdvance  int           `bson:"daysInAdvance" json:"daysInAdvance"`
}

// Settings returns the user-level defaults consumed by the evaluator.
func (p KindPreference) Settings() KindSettings {
	return KindSettings{NotifyOnceOnly: p.NotifyOnceOnly, DaysInAdvance: p.DaysInAdvance}
}

// ChannelEnabled is true when both the kind and the channel are switched on.
func (p KindPreference) ChannelEnabled(channel Channel) bool {
	return p.Enabled && p.Channels.Enabled(channel)
}

type InactivityPreference struct {
	KindPreference   `bson:",inline"`
	CaducityDays     int `bson:"caducityDays" json:"caducityDays"`
	PrescriptionDays int `bson:"prescriptionDays" json:"prescriptionDays"`
}

type UserPreference struct {
	ID         bson.ObjectID        `bson:"_id,omitempty" json:"id"`
	UserID     bson.ObjectID        `bson:"userId" json:"userId"`
	Calendar   KindPreference       `bson:"calendar" json:"calendar"`
	Expiration KindPreference       `bson:"expiration" json:"expiration"`
	Judicial   KindPreference       `bson:"judicial" json:"judicial"`
	Inactivity InactivityPreference `bson:"inactivity" json:"inactivity"`
	CreatedAt  time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// ForKind returns the settings block governing the given entity kind.
func (p *UserPreference) ForKind(kind EntityKind) KindPreference {
	switch PreferenceKindFor(kind) {
	case PreferenceCalendar:
		return p.Calendar
	case PreferenceExpiration:
		return p.Expiration
	case PreferenceJudicial:
		return p.Judicial
	default:
		return p.Inactivity.KindPreference
	}
}

// KindSettings is the user-level {notifyOnceOnly, daysInAdvance} pair for one
// notification kind.
type KindSettings struct {
	NotifyOnceOnly bool `bson:"notifyOnceOnly" json:"notifyOnceOnly"`
	DaysInAdvance  int  `bson:"daysInAdvance" json:"daysInAdvance"`
}

const (
	DefaultCaducityDays     = 180
	DefaultPrescriptionDays = 730
)

// DefaultKindSettings is the hardcoded fallback applied when neither the
// entity nor the user provides a value.
var DefaultKindSettings = map[PreferenceKind]KindSettings{
	PreferenceCalendar:   {NotifyOnceOnly: false, DaysInAdvance: 1},
	PreferenceExpiration: {NotifyOnceOnly: true, DaysInAdvance: 5},
	PreferenceJudicial:   {NotifyOnceOnly: true, DaysInAdvance: 1},
	PreferenceInactivity: {NotifyOnceOnly: true, DaysInAdvance: 15},
}

// DefaultUserPreference builds the preferences a user gets on creation.
func DefaultUserPreference(userID bson.ObjectID) *UserPreference {
	both := ChannelToggle{Email: true, Browser: true}
	block := func(kind PreferenceKind) KindPreference {
		d := DefaultKindSettings[kind]
		return KindPreference{
			Enabled:        true,
			Channels:       both,
			NotifyOnceOnly: d.NotifyOnceOnly,
			DaysInAdvance:  d.DaysInAdvance,
		}
	}

	now := time.Now().UTC()
	return &UserPreference{
		UserID:     userID,
		Calendar:   block(PreferenceCalendar),
		Expiration: block(PreferenceExpiration),
		Judicial:   block(PreferenceJudicial),
		Inactivity: InactivityPreference{
			KindPreference:   block(PreferenceInactivity),
			CaducityDays:     DefaultCaducityDays,
			PrescriptionDays: DefaultPrescriptionDays,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
