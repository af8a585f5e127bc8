package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"notification-service/internal/eligibility"
	"notification-service/internal/events"
	"notification-service/internal/models"
	"notification-service/internal/repository/memory"
	"notification-service/internal/service"
	"notification-service/internal/templates"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type sentMail struct {
	to       string
	template string
	vars     map[string]string
}

type fakeMailer struct {
	mu   sync.Mutex
	err  error
	sent []sentMail
}

func (m *fakeMailer) Send(_ context.Context, to, category, name string, vars map[string]string) (templates.Rendered, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rendered := templates.Rendered{Subject: category + "/" + name}
	if m.err != nil {
		return rendered, m.err
	}
	m.sent = append(m.sent, sentMail{to: to, template: category + "/" + name, vars: vars})
	return rendered, nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fakePusher struct {
	mu     sync.Mutex
	online bool
	pushed []models.Alert
}

func (p *fakePusher) Push(_ context.Context, _ string, alert *models.Alert) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online {
		return false
	}
	p.pushed = append(p.pushed, *alert)
	return true
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*events.NotificationDeliveredEvent
}

func (p *fakePublisher) PublishNotificationDelivered(_ context.Context, evt *events.NotificationDeliveredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fixture struct {
	user       models.User
	users      *memory.UserStore
	prefs      *memory.PreferenceStore
	alerts     *memory.AlertStore
	logs       *memory.LogStore
	mailer     *fakeMailer
	pusher     *fakePusher
	publisher  *fakePublisher
	logService *service.NotificationLogService
	dispatcher *Dispatcher
	deps       Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := logtest.NewNullLogger()

	f := &fixture{
		user: models.User{
			ID:        bson.NewObjectID(),
			Email:     "abogada@example.com",
			FirstName: "Laura",
			LastName:  "Gómez",
			IsActive:  true,
		},
		prefs:     memory.NewPreferenceStore(),
		alerts:    memory.NewAlertStore(),
		logs:      memory.NewLogStore(),
		mailer:    &fakeMailer{},
		pusher:    &fakePusher{},
		publisher: &fakePublisher{},
	}
	f.users = memory.NewUserStore(f.user)
	f.logService = service.NewNotificationLogService(f.logs, logger)
	f.dispatcher = NewDispatcher(
		f.mailer,
		templates.NewBuiltinRenderer(),
		f.pusher,
		f.alerts,
		service.NewRecorder(logger, time.Second),
		f.logService,
		f.publisher,
		logger,
		DispatcherConfig{BrowserConcurrency: 4},
	)
	f.deps = Deps{Users: f.users, Preferences: f.prefs, Dispatcher: f.dispatcher, Log: logger}
	return f
}

func TestTaskJobNotifiesOnceAcrossRuns(t *testing.T) {
	f := newFixture(t)
	store := memory.NewTaskStore()
	task := models.Task{
		ID:      bson.NewObjectID(),
		UserID:  f.user.ID,
		Name:    "Contestar demanda",
		Status:  models.TaskStatusPending,
		DueDate: time.Now().UTC().AddDate(0, 0, 3),
	}
	store.Put(task)
	job := NewTaskJob(f.deps, store)
	ctx := context.Background()

	first, err := job.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.UsersProcessed)
	assert.Equal(t, 2, first.NotificationsSent)
	require.Len(t, first.Outcomes, 1)
	assert.Equal(t, StatusNotified, first.Outcomes[0].Status)

	require.Equal(t, 1, f.mailer.count())
	assert.Equal(t, "3", f.mailer.sent[0].vars["daysRemaining"])
	assert.Equal(t, "Laura Gómez", f.mailer.sent[0].vars["userName"])

	stored, _ := store.Get(task.ID)
	require.Len(t, stored.Notifications, 2)
	assert.True(t, stored.BrowserAlertSent)
	require.NotNil(t, stored.NotificationSettings)
	assert.Equal(t, 5, *stored.NotificationSettings.DaysInAdvance)

	alerts := f.alerts.All()
	require.Len(t, alerts, 1)
	assert.False(t, alerts[0].Delivered)
	assert.Equal(t, "Tarea por vencer: Contestar demanda", alerts[0].Title)
	assert.Len(t, f.logs.Entries(), 2)

	second, err := job.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.NotificationsSent)
	assert.Empty(t, second.Outcomes)
	assert.Equal(t, 1, f.mailer.count())
}

func TestEmailFailureIsRecordedAndRetriedNextRun(t *testing.T) {
	f := newFixture(t)
	f.prefs.Put(func() models.UserPreference {
		p := models.DefaultUserPreference(f.user.ID)
		p.Expiration.Channels.Browser = false
		return *p
	}())
	store := memory.NewMovementStore()
	movement := models.Movement{
		ID:             bson.NewObjectID(),
		UserID:         f.user.ID,
		Description:    "Pago de tasa",
		Amount:         1500,
		DateExpiration: time.Now().UTC().AddDate(0, 0, 1),
	}
	store.Put(movement)
	job := NewMovementJob(f.deps, store)
	ctx := context.Background()

	f.mailer.err = errors.New("smtp: 421 service not available")
	first, err := job.Run(ctx, RunOptions{})
	require.NoError(t, err)
	require.Len(t, first.Outcomes, 1)
	assert.Equal(t, StatusFailed, first.Outcomes[0].Status)
	assert.Equal(t, 1, first.Failed)

	stored, _ := store.Get(movement.ID)
	require.Len(t, stored.Notifications, 1)
	assert.False(t, stored.Notifications[0].Success)
	assert.Contains(t, stored.Notifications[0].Details, "421")
	assert.Equal(t, models.DeliveryFailed, f.logs.Entries()[0].Status)

	// The next sweep runs outside the duplicate window.
	f.mailer.err = nil
	f.dispatcher.now = func() time.Time { return time.Now().UTC().Add(time.Minute) }
	second, err := job.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, second.NotificationsSent)
	assert.Equal(t, "$1500.00", f.mailer.sent[0].vars["amount"])

	stored, _ = store.Get(movement.ID)
	require.Len(t, stored.Notifications, 2)
	assert.True(t, stored.Notifications[1].Success)
}

func TestDisabledKindSkipsUser(t *testing.T) {
	f := newFixture(t)
	pref := models.DefaultUserPreference(f.user.ID)
	pref.Calendar.Enabled = false
	f.prefs.Put(*pref)

	store := memory.NewEventStore()
	store.Put(models.Event{ID: bson.NewObjectID(), UserID: f.user.ID, Title: "Audiencia", Start: time.Now().UTC().Add(time.Hour)})

	result, err := NewCalendarJob(f.deps, store).Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.UsersProcessed)
	assert.Equal(t, 0, result.NotificationsSent)
	assert.Zero(t, f.mailer.count())
}

func TestInvalidDaysInAdvanceFailsUser(t *testing.T) {
	f := newFixture(t)
	pref := models.DefaultUserPreference(f.user.ID)
	pref.Calendar.DaysInAdvance = 0
	f.prefs.Put(*pref)

	store := memory.NewEventStore()
	store.Put(models.Event{ID: bson.NewObjectID(), UserID: f.user.ID, Title: "Audiencia", Start: time.Now().UTC().Add(time.Hour)})

	result, err := NewCalendarJob(f.deps, store).Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, StatusFailed, result.Outcomes[0].Status)
	assert.Contains(t, result.Outcomes[0].Error, eligibility.ErrInvalidDaysInAdvance.Error())
}

func TestCalendarForceDailyRepeatsOnNextDay(t *testing.T) {
	f := newFixture(t)
	pref := models.DefaultUserPreference(f.user.ID)
	pref.Calendar.NotifyOnceOnly = true
	pref.Calendar.DaysInAdvance = 3
	pref.Calendar.Channels.Browser = false
	f.prefs.Put(*pref)

	store := memory.NewEventStore()
	event := models.Event{ID: bson.NewObjectID(), UserID: f.user.ID, Title: "Mediación", Start: time.Now().UTC().AddDate(0, 0, 2), AllDay: true}
	store.Put(event)
	job := NewCalendarJob(f.deps, store)
	ctx := context.Background()

	_, err := job.Run(ctx, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, f.mailer.count())

	// Once-only blocks the normal run; forceDaily only blocks the same day.
	tomorrow := time.Now().UTC().AddDate(0, 0, 1)
	f.dispatcher.now = func() time.Time { return tomorrow }

	normal, err := job.Run(ctx, RunOptions{Today: tomorrow})
	require.NoError(t, err)
	assert.Equal(t, 0, normal.NotificationsSent)

	forced, err := job.Run(ctx, RunOptions{Today: tomorrow, ForceDaily: true})
	require.NoError(t, err)
	assert.Equal(t, 1, forced.NotificationsSent)

	again, err := job.Run(ctx, RunOptions{Today: tomorrow, ForceDaily: true})
	require.NoError(t, err)
	assert.Equal(t, 0, again.NotificationsSent)
}

func TestJudicialJobMarksNotified(t *testing.T) {
	f := newFixture(t)
	f.pusher.online = true
	store := memory.NewJudicialStore()
	movement := &models.JudicialMovement{
		UserID:       f.user.ID,
		CaseNumber:   "EXP-77/2026",
		MovementType: "Traslado",
		Date:         time.Now().UTC().AddDate(0, 0, -1),
		NotifyAt:     time.Now().UTC().AddDate(0, 0, -1),
	}
	_, err := store.Insert(context.Background(), movement)
	require.NoError(t, err)
	job := NewJudicialJob(f.deps, store)

	result, err := job.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.NotificationsSent)

	stored, _ := store.Get(movement.ID)
	assert.Equal(t, models.JudicialStatusNotified, stored.Status)
	assert.Equal(t, "EXP-77/2026", f.mailer.sent[0].vars["caseNumber"])

	require.Len(t, f.pusher.pushed, 1)
	assert.Len(t, f.publisher.events, 2)

	again, err := job.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, again.NotificationsSent)
}

func TestInactivityJobTracksAlertTypesSeparately(t *testing.T) {
	f := newFixture(t)
	store := memory.NewFolderStore()
	today := time.Now().UTC()
	folder := models.Folder{
		ID:         bson.NewObjectID(),
		UserID:     f.user.ID,
		FolderName: "Pérez c/ Gómez",
		Status:     models.FolderStatusActive,
		// Caducity (180 days) crosses the 15 day warning today.
		LastActivityDate: eligibility.StartOfDay(today).AddDate(0, 0, -165),
	}
	store.Put(folder)
	job := NewInactivityJob(f.deps, store)

	result, err := job.Run(context.Background(), RunOptions{Today: today})
	require.NoError(t, err)
	assert.Equal(t, 2, result.NotificationsSent)

	stored, _ := store.Get(folder.ID)
	require.Len(t, stored.Notifications, 2)
	for _, n := range stored.Notifications {
		assert.Equal(t, eligibility.AlertCaducity, n.AlertType)
	}
	require.Equal(t, 1, f.mailer.count())
	assert.Equal(t, templates.CategoryInactivity+"/"+templates.NameFolderCaducity, f.mailer.sent[0].template)
	assert.Equal(t, "15", f.mailer.sent[0].vars["daysRemaining"])

	next, err := job.Run(context.Background(), RunOptions{Today: today.AddDate(0, 0, 1)})
	require.NoError(t, err)
	assert.Equal(t, 0, next.NotificationsSent)
}

func TestSweepUnknownUser(t *testing.T) {
	f := newFixture(t)
	job := NewTaskJob(f.deps, memory.NewTaskStore())

	_, err := job.Run(context.Background(), RunOptions{UserID: bson.NewObjectID().Hex()})
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = job.Run(context.Background(), RunOptions{UserID: "garbage"})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestLogCleanupJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.logs.Insert(ctx, &models.NotificationLog{Channel: models.ChannelEmail, Status: models.DeliverySent, CreatedAt: time.Now().AddDate(0, 0, -100)}))
	require.NoError(t, f.logs.Insert(ctx, &models.NotificationLog{Channel: models.ChannelEmail, Status: models.DeliverySent}))

	result, err := NewLogCleanupJob(f.logService, 90*24*time.Hour).Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Deleted)
	assert.Len(t, f.logs.Entries(), 1)
}

func TestSendBrowserDoesNotRepushExistingAlert(t *testing.T) {
	f := newFixture(t)
	f.pusher.online = true
	at := time.Now().UTC()
	f.dispatcher.now = func() time.Time { return at }

	store := memory.NewTaskStore()
	task := models.Task{
		ID:      bson.NewObjectID(),
		UserID:  f.user.ID,
		Name:    "Presentar alegato",
		Status:  models.TaskStatusPending,
		DueDate: at.AddDate(0, 0, 2),
	}
	store.Put(task)
	notice := Notice{
		Entity:   task,
		Category: templates.CategoryExpiration,
		Template: templates.NameTaskDue,
		Vars:     map[string]string{"userName": "Laura Gómez", "title": task.Name, "date": "01/01/2027", "daysRemaining": "2"},
	}
	ctx := context.Background()

	first := f.dispatcher.SendBrowser(ctx, JobTasks, f.user, store, []Notice{notice})
	assert.Equal(t, 1, first.Successful)

	// A second worker racing on the same entity and day.
	second := f.dispatcher.SendBrowser(ctx, JobTasks, f.user, store, []Notice{notice})
	assert.Zero(t, second.Failed)
	assert.Equal(t, 1, second.Skipped)

	assert.Len(t, f.pusher.pushed, 1)
	assert.Len(t, f.alerts.All(), 1)
	assert.Len(t, f.publisher.events, 1)
	stored, _ := store.Get(task.ID)
	assert.Len(t, stored.Notifications, 1)
}
