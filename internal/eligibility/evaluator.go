// Package eligibility decides whether an entity is due for a notification on a
// given channel. Every decision is a pure function of the entity, the owner's
// settings and the caller-supplied day.
package eligibility

import (
	"errors"
	"fmt"
	"time"

	"notification-service/internal/models"
)

var ErrMissingTriggerDate = errors.New("entity has no trigger date")

type Reason string

const (
	ReasonEligible        Reason = "eligible"
	ReasonOutsideWindow   Reason = "outside-window"
	ReasonAlreadyNotified Reason = "already-notified"
	ReasonNotifiedToday   Reason = "notified-today"
)

type Decision struct {
	ShouldNotify           bool
	EffectiveDaysInAdvance int
	EffectiveOnceOnly      bool
	DaysRemaining          int
	Reason                 Reason
}

// InactivityAlert is one countdown threshold evaluated against a folder's last
// activity, e.g. caducity at 180 days.
type InactivityAlert struct {
	Type          string
	ThresholdDays int
}

const (
	AlertCaducity     = "caducity"
	AlertPrescription = "prescription"
)

// InactivityAlerts returns the caducity and prescription thresholds configured
// for a user, falling back to the defaults.
func InactivityAlerts(pref *models.UserPreference) []InactivityAlert {
	caducity, prescription := models.DefaultCaducityDays, models.DefaultPrescriptionDays
	if pref != nil {
		if pref.Inactivity.CaducityDays > 0 {
			caducity = pref.Inactivity.CaducityDays
		}
		if pref.Inactivity.PrescriptionDays > 0 {
			prescription = pref.Inactivity.PrescriptionDays
		}
	}
	return []InactivityAlert{
		{Type: AlertCaducity, ThresholdDays: caducity},
		{Type: AlertPrescription, ThresholdDays: prescription},
	}
}

type windowMode int

const (
	// windowRange accepts 0 <= daysRemaining <= daysInAdvance.
	windowRange windowMode = iota
	// windowExact accepts only daysRemaining == daysInAdvance.
	windowExact
)

// countdown is the shared shape of every eligibility check: a number of days
// left until a deadline, a resolved policy and the window used in once-only
// mode. Due-date kinds and folder inactivity are two instantiations of it.
type countdown struct {
	remaining      int
	resolved       Resolved
	onceOnlyWindow windowMode
	alertType      string
}

// Evaluate decides whether a due-date entity (event, task, movement, judicial
// movement) should be notified on channel today. forceDaily disables the
// once-only policy but keeps same-day suppression.
func Evaluate(entity models.Notifiable, channel models.Channel, settings models.KindSettings, today time.Time, forceDaily bool) (Decision, error) {
	state := entity.State()
	resolved, err := ResolveSettings(state.NotificationSettings, settings)
	if err != nil {
		return Decision{}, err
	}

	trigger, ok := entity.TriggerDate()
	if !ok {
		return Decision{EffectiveDaysInAdvance: resolved.DaysInAdvance}, fmt.Errorf("%w: %s %s", ErrMissingTriggerDate, entity.Kind(), entity.EntityID().Hex())
	}

	c := countdown{
		remaining:      DaysBetween(today, trigger),
		resolved:       resolved,
		onceOnlyWindow: windowRange,
	}
	return c.decide(state, channel, today, forceDaily), nil
}

// EvaluateInactivity decides whether a folder should receive the given
// inactivity alert. The deadline is last activity plus the alert threshold.
// Once-only mode fires on the exact day the countdown crosses daysInAdvance;
// repeat mode fires every day while 0 <= daysRemaining <= daysInAdvance.
func EvaluateInactivity(folder models.Notifiable, alert InactivityAlert, channel models.Channel, settings models.KindSettings, today time.Time, forceDaily bool) (Decision, error) {
	state := folder.State()
	resolved, err := ResolveSettings(state.NotificationSettings, settings)
	if err != nil {
		return Decision{}, err
	}

	lastActivity, ok := folder.TriggerDate()
	if !ok {
		return Decision{EffectiveDaysInAdvance: resolved.DaysInAdvance}, fmt.Errorf("%w: %s %s", ErrMissingTriggerDate, folder.Kind(), folder.EntityID().Hex())
	}

	deadline := StartOfDay(lastActivity).AddDate(0, 0, alert.ThresholdDays)
	c := countdown{
		remaining:      DaysBetween(today, deadline),
		resolved:       resolved,
		onceOnlyWindow: windowExact,
		alertType:      alert.Type,
	}
	return c.decide(state, channel, today, forceDaily), nil
}

func (c countdown) decide(state models.NotificationState, channel models.Channel, today time.Time, forceDaily bool) Decision {
	onceOnly := c.resolved.NotifyOnceOnly && !forceDaily
	d := Decision{
		EffectiveDaysInAdvance: c.resolved.DaysInAdvance,
		EffectiveOnceOnly:      onceOnly,
		DaysRemaining:          c.remaining,
	}

	mode := windowRange
	if onceOnly {
		mode = c.onceOnlyWindow
	}
	if !inWindow(c.remaining, c.resolved.DaysInAdvance, mode) {
		d.Reason = ReasonOutsideWindow
		return d
	}

	if onceOnly {
		if state.HasSuccessful(channel, c.alertType) {
			d.Reason = ReasonAlreadyNotified
			return d
		}
	} else if state.SuccessfulOn(channel, c.alertType, models.DayKey(today)) {
		d.Reason = ReasonNotifiedToday
		return d
	}

	d.ShouldNotify = true
	d.Reason = ReasonEligible
	return d
}

func inWindow(remaining, days int, mode windowMode) bool {
	if mode == windowExact {
		return remaining == days
	}
	return remaining >= 0 && remaining <= days
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last nanosecond of t's UTC day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// DaysBetween counts whole calendar days from the day of from to the day of
// to. A date later today yields 0; yesterday yields -1.
func DaysBetween(from, to time.Time) int {
	return int(StartOfDay(to).Sub(StartOfDay(from)).Hours() / 24)
}

// Window returns the inclusive [start of today, end of today+days] range used
// to pre-filter candidate entities in storage.
func Window(today time.Time, days int) (time.Time, time.Time) {
	return StartOfDay(today), EndOfDay(StartOfDay(today).AddDate(0, 0, days))
}
