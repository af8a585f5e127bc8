package jobs

import (
	"context"

	"notification-service/internal/eligibility"
	"notification-service/internal/models"
	"notification-service/internal/repository"
	"notification-service/internal/templates"
)

var inactivityTemplates = map[string]string{
	eligibility.AlertCaducity:     templates.NameFolderCaducity,
	eligibility.AlertPrescription: templates.NameFolderPrescription,
}

// InactivityJob warns about active folders approaching caducity or
// prescription. Each threshold is an independent alert type with its own
// history.
type InactivityJob struct {
	sweep
	store      repository.EntityStore[models.Folder]
	prefs      repository.PreferenceStore
	dispatcher *Dispatcher
}

func NewInactivityJob(deps Deps, store repository.EntityStore[models.Folder]) *InactivityJob {
	return &InactivityJob{
		sweep:      sweep{name: JobInactivity, users: deps.Users, log: deps.Log},
		store:      store,
		prefs:      deps.Preferences,
		dispatcher: deps.Dispatcher,
	}
}

func (j *InactivityJob) Name() string { return j.name }

func (j *InactivityJob) Run(ctx context.Context, opts RunOptions) (Result, error) {
	return j.run(ctx, opts, func(ctx context.Context, user models.User) UserOutcome {
		return j.runForUser(ctx, user, opts)
	})
}

func (j *InactivityJob) runForUser(ctx context.Context, user models.User, opts RunOptions) UserOutcome {
	pref, err := userPolicy(ctx, j.prefs, user.ID)
	if err != nil {
		return UserOutcome{Status: StatusFailed, Error: err.Error()}
	}

	block := pref.ForKind(models.KindFolder)
	if !block.ChannelEnabled(models.ChannelEmail) && !block.ChannelEnabled(models.ChannelBrowser) {
		return UserOutcome{Status: StatusDisabled}
	}

	settings := eligibility.UserSettings(pref, models.KindFolder)
	alerts := eligibility.InactivityAlerts(pref)
	today := opts.today()

	// A folder is due for a threshold when lastActivity + threshold falls
	// within [today, today + days], so the union over thresholds bounds the
	// lastActivity range to query.
	minT, maxT := alerts[0].ThresholdDays, alerts[0].ThresholdDays
	for _, a := range alerts[1:] {
		minT = min(minT, a.ThresholdDays)
		maxT = max(maxT, a.ThresholdDays)
	}
	horizon := max(settings.DaysInAdvance, queryHorizonDays)
	from := eligibility.StartOfDay(today).AddDate(0, 0, -maxT)
	to := eligibility.EndOfDay(eligibility.StartOfDay(today).AddDate(0, 0, horizon-minT))

	folders, err := j.store.FindForOwner(ctx, user.ID, from, to)
	if err != nil {
		return UserOutcome{Status: StatusFailed, Error: err.Error()}
	}

	var backfill *models.NotificationSettings
	if settings.DaysInAdvance > 0 {
		backfill = eligibility.BackfillSettings(settings)
	}

	var candidates []candidate
	var errs []error
	for _, folder := range folders {
		for _, alert := range alerts {
			c := candidate{notice: Notice{
				Entity:    folder,
				AlertType: alert.Type,
				Category:  templates.CategoryInactivity,
				Template:  inactivityTemplates[alert.Type],
				Backfill:  backfill,
			}}

			var decision eligibility.Decision
			for _, ch := range []models.Channel{models.ChannelEmail, models.ChannelBrowser} {
				if !block.ChannelEnabled(ch) {
					continue
				}
				d, err := eligibility.EvaluateInactivity(folder, alert, ch, settings, today, opts.ForceDaily)
				if err != nil {
					errs = append(errs, err)
					break
				}
				if d.ShouldNotify {
					decision = d
					if ch == models.ChannelEmail {
						c.email = true
					} else {
						c.browser = true
					}
				}
			}
			if !c.email && !c.browser {
				continue
			}

			deadline := eligibility.StartOfDay(folder.LastActivityDate).AddDate(0, 0, alert.ThresholdDays)
			vars := baseVars(user, folder.FolderName, deadline.Format(dateLayout), decision.DaysRemaining)
			vars["caseNumber"] = folder.CaseNumber
			vars["lastActivity"] = folder.LastActivityDate.Format(dateLayout)
			c.notice.Vars = vars
			candidates = append(candidates, c)
		}
	}

	out := deliverAll(ctx, j.dispatcher, j.name, user, j.store, candidates)
	errs = append(errs, out.errs...)
	return summarize(out.sent, out.failed, errs)
}
