package jobs

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"notification-service/internal/eligibility"
	"notification-service/internal/models"
	"notification-service/internal/repository"
	"notification-service/internal/templates"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const dateLayout = "02/01/2006"

// Deps are the collaborators shared by every user sweep.
type Deps struct {
	Users       repository.UserStore
	Preferences repository.PreferenceStore
	Dispatcher  *Dispatcher
	Log         logrus.FieldLogger
}

// DueDateJob notifies entities whose trigger date is approaching.
type DueDateJob[T models.Notifiable] struct {
	sweep
	store      repository.EntityStore[T]
	prefs      repository.PreferenceStore
	dispatcher *Dispatcher
	category   string
	template   string
	vars       func(entity T, user models.User, daysRemaining int) map[string]string
	// catchUpDays extends the query into the past. Overdue entities are then
	// evaluated as of their own trigger day.
	catchUpDays int
	// onDelivered runs with the entities delivered on the primary channel.
	onDelivered func(ctx context.Context, ids []bson.ObjectID) error
}

func newDueDateJob[T models.Notifiable](name string, deps Deps, store repository.EntityStore[T], category, template string, vars func(T, models.User, int) map[string]string) *DueDateJob[T] {
	return &DueDateJob[T]{
		sweep:      sweep{name: name, users: deps.Users, log: deps.Log},
		store:      store,
		prefs:      deps.Preferences,
		dispatcher: deps.Dispatcher,
		category:   category,
		template:   template,
		vars:       vars,
	}
}

func NewCalendarJob(deps Deps, store repository.EntityStore[models.Event]) *DueDateJob[models.Event] {
	return newDueDateJob(JobCalendar, deps, store, templates.CategoryCalendar, templates.NameEventReminder,
		func(e models.Event, u models.User, days int) map[string]string {
			vars := baseVars(u, e.Title, e.Start.Format(dateLayout), days)
			vars["location"] = e.Location
			if !e.AllDay {
				vars["date"] = e.Start.Format(dateLayout + " 15:04")
			}
			return vars
		})
}

func NewTaskJob(deps Deps, store repository.EntityStore[models.Task]) *DueDateJob[models.Task] {
	return newDueDateJob(JobTasks, deps, store, templates.CategoryExpiration, templates.NameTaskDue,
		func(t models.Task, u models.User, days int) map[string]string {
			return baseVars(u, t.Name, t.DueDate.Format(dateLayout), days)
		})
}

func NewMovementJob(deps Deps, store repository.EntityStore[models.Movement]) *DueDateJob[models.Movement] {
	return newDueDateJob(JobMovements, deps, store, templates.CategoryExpiration, templates.NameMovementExpiration,
		func(m models.Movement, u models.User, days int) map[string]string {
			vars := baseVars(u, m.Description, m.DateExpiration.Format(dateLayout), days)
			if m.Amount != 0 {
				vars["amount"] = fmt.Sprintf("$%.2f", m.Amount)
			}
			return vars
		})
}

// NewJudicialJob notifies pending judicial movements and flips them to
// notified once delivered. Movements ingested with a past notify date are
// still picked up for a week.
func NewJudicialJob(deps Deps, store repository.JudicialStore) *DueDateJob[models.JudicialMovement] {
	job := newDueDateJob[models.JudicialMovement](JobJudicial, deps, store, templates.CategoryJudicial, templates.NameJudicialMovement,
		func(j models.JudicialMovement, u models.User, days int) map[string]string {
			vars := baseVars(u, j.DisplayName(), j.Date.Format(dateLayout), days)
			vars["caseNumber"] = j.CaseNumber
			vars["court"] = j.Court
			vars["movementType"] = j.MovementType
			vars["detail"] = j.Detail
			vars["link"] = j.Link
			return vars
		})
	job.catchUpDays = 7
	job.onDelivered = store.MarkNotified
	return job
}

func baseVars(u models.User, title, date string, days int) map[string]string {
	return map[string]string{
		"userName":      u.FullName(),
		"title":         title,
		"date":          date,
		"daysRemaining": strconv.Itoa(days),
	}
}

func (j *DueDateJob[T]) Name() string { return j.name }

func (j *DueDateJob[T]) Run(ctx context.Context, opts RunOptions) (Result, error) {
	return j.run(ctx, opts, func(ctx context.Context, user models.User) UserOutcome {
		return j.runForUser(ctx, user, opts)
	})
}

func (j *DueDateJob[T]) runForUser(ctx context.Context, user models.User, opts RunOptions) UserOutcome {
	kind := j.store.Kind()
	pref, err := userPolicy(ctx, j.prefs, user.ID)
	if err != nil {
		return UserOutcome{Status: StatusFailed, Error: err.Error()}
	}

	block := pref.ForKind(kind)
	emailOn := block.ChannelEnabled(models.ChannelEmail)
	browserOn := block.ChannelEnabled(models.ChannelBrowser)
	if !emailOn && !browserOn {
		return UserOutcome{Status: StatusDisabled}
	}

	settings := eligibility.UserSettings(pref, kind)
	today := opts.today()
	from, to := eligibility.Window(today, max(settings.DaysInAdvance, queryHorizonDays))
	from = from.AddDate(0, 0, -j.catchUpDays)

	entities, err := j.store.FindForOwner(ctx, user.ID, from, to)
	if err != nil {
		return UserOutcome{Status: StatusFailed, Error: err.Error()}
	}

	var backfill *models.NotificationSettings
	if settings.DaysInAdvance > 0 {
		backfill = eligibility.BackfillSettings(settings)
	}

	var candidates []candidate
	var errs []error
	for _, entity := range entities {
		day := j.evaluationDay(entity, today)
		c := candidate{notice: Notice{
			Entity:   entity,
			Category: j.category,
			Template: j.template,
			Backfill: backfill,
		}}

		var decision eligibility.Decision
		for _, ch := range []models.Channel{models.ChannelEmail, models.ChannelBrowser} {
			if !block.ChannelEnabled(ch) {
				continue
			}
			d, err := eligibility.Evaluate(entity, ch, settings, day, opts.ForceDaily)
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
		c.notice.Vars = j.vars(entity, user, decision.DaysRemaining)
		candidates = append(candidates, c)
	}

	out := deliverAll(ctx, j.dispatcher, j.name, user, j.store, candidates)
	errs = append(errs, out.errs...)

	if j.onDelivered != nil {
		delivered := out.emailed
		if !emailOn {
			delivered = out.browsed
		}
		if len(delivered) > 0 {
			if err := j.onDelivered(ctx, delivered); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return summarize(out.sent, out.failed, errs)
}

func (j *DueDateJob[T]) evaluationDay(entity T, today time.Time) time.Time {
	if j.catchUpDays == 0 {
		return today
	}
	trigger, ok := entity.TriggerDate()
	if ok && trigger.Before(eligibility.StartOfDay(today)) {
		return trigger
	}
	return today
}
