package eligibility

import (
	"errors"
	"fmt"

	"notification-service/internal/models"
)

var ErrInvalidDaysInAdvance = errors.New("days in advance must be greater than zero")

// Resolved is the effective policy for one entity after applying overrides.
type Resolved struct {
	NotifyOnceOnly bool
	DaysInAdvance  int
}

// UserSettings returns the user's kind-level settings, or the hardcoded
// defaults for the kind when the user has no preference document.
func UserSettings(pref *models.UserPreference, kind models.EntityKind) models.KindSettings {
	if pref == nil {
		return models.DefaultKindSettings[models.PreferenceKindFor(kind)]
	}
	return pref.ForKind(kind).Settings()
}

// ResolveSettings merges an entity override over the user's kind settings.
// Precedence is entity override, then user settings (which already fell back
// to hardcoded defaults in UserSettings). An override always wins, even when
// it disagrees with the user's notifyOnceOnly.
func ResolveSettings(override *models.NotificationSettings, user models.KindSettings) (Resolved, error) {
	resolved := Resolved{
		NotifyOnceOnly: user.NotifyOnceOnly,
		DaysInAdvance:  user.DaysInAdvance,
	}

	if override != nil {
		if override.DaysInAdvance != nil {
			resolved.DaysInAdvance = *override.DaysInAdvance
		}
		if override.NotifyOnceOnly != nil {
			resolved.NotifyOnceOnly = *override.NotifyOnceOnly
		}
	}

	if resolved.DaysInAdvance <= 0 {
		return resolved, fmt.Errorf("%w: got %d", ErrInvalidDaysInAdvance, resolved.DaysInAdvance)
	}
	return resolved, nil
}

// BackfillSettings is the override written onto entities that have none, so
// later reads see the policy that was in force when they were first notified.
func BackfillSettings(user models.KindSettings) *models.NotificationSettings {
	onceOnly := user.NotifyOnceOnly
	days := user.DaysInAdvance
	return &models.NotificationSettings{NotifyOnceOnly: &onceOnly, DaysInAdvance: &days}
}
