package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"notification-service/internal/jobs"
	"notification-service/internal/middleware"
	"notification-service/internal/models"
	"notification-service/internal/repository"
	"notification-service/internal/repository/memory"
	"notification-service/internal/service"

	"github.com/gofiber/fiber/v3"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type fakeRunner struct {
	lastName string
	lastOpts jobs.RunOptions
	err      error
}

func (r *fakeRunner) Run(_ context.Context, name string, opts jobs.RunOptions) (jobs.Result, error) {
	r.lastName, r.lastOpts = name, opts
	if r.err != nil {
		return jobs.Result{}, r.err
	}
	return jobs.Result{Job: name, UsersProcessed: 2, NotificationsSent: 3}, nil
}

func (r *fakeRunner) Statuses(_ context.Context) ([]jobs.Status, error) {
	return []jobs.Status{{Job: jobs.JobCalendar, Schedule: "08:00"}}, nil
}

type fakeBrowser struct {
	connected map[string]int
}

func (b *fakeBrowser) IsUserConnected(userID string) bool { return b.connected[userID] > 0 }
func (b *fakeBrowser) ConnectionCount(userID string) int  { return b.connected[userID] }
func (b *fakeBrowser) DeliverPendingAlerts(_ context.Context, userID string) (int, error) {
	if b.connected[userID] == 0 {
		return 0, nil
	}
	return 4, nil
}

type fakeStats struct {
	since time.Time
}

func (s *fakeStats) Stats(_ context.Context, since time.Time) ([]models.LogStat, error) {
	s.since = since
	return []models.LogStat{{Channel: models.ChannelEmail, Status: models.DeliverySent, Count: 7}}, nil
}

func newTestApp(runner *fakeRunner, browser *fakeBrowser, stats *fakeStats) *fiber.App {
	logger, _ := logtest.NewNullLogger()
	app := fiber.New()
	NewNotificationHandler(runner, browser, stats, "notification-service", logger).RegisterRoutes(app)
	return app
}

func do(t *testing.T, app *fiber.App, method, target, body, permissions string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if permissions != "" {
		req.Header.Set(middleware.PermissionsHeader, permissions)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &payload))
	}
	return resp.StatusCode, payload
}

func TestHealth(t *testing.T) {
	app := newTestApp(&fakeRunner{}, &fakeBrowser{}, &fakeStats{})
	status, body := do(t, app, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
}

func TestProtectedRoutesRequirePermission(t *testing.T) {
	app := newTestApp(&fakeRunner{}, &fakeBrowser{}, &fakeStats{})
	status, _ := do(t, app, http.MethodGet, "/protected/notifications/jobs", "", "read:skill")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = do(t, app, http.MethodGet, "/protected/notifications/jobs", "", middleware.ReadNotificationPermission)
	assert.Equal(t, http.StatusOK, status)
}

func TestRunJob(t *testing.T) {
	userID := bson.NewObjectID().Hex()

	tests := []struct {
		name       string
		body       string
		runErr     error
		wantStatus int
	}{
		{name: "full sweep", wantStatus: http.StatusOK},
		{name: "single user", body: fmt.Sprintf(`{"userId":%q,"forceDaily":true}`, userID), wantStatus: http.StatusOK},
		{name: "bad user id", body: `{"userId":"x"}`, wantStatus: http.StatusBadRequest},
		{name: "unknown job", runErr: fmt.Errorf("%w: nope", jobs.ErrUnknownJob), wantStatus: http.StatusNotFound},
		{name: "unknown user", runErr: fmt.Errorf("%w: x", jobs.ErrUserNotFound), wantStatus: http.StatusNotFound},
		{name: "busy", runErr: fmt.Errorf("%w: tasks", repository.ErrLockHeld), wantStatus: http.StatusConflict},
		{name: "storage down", runErr: fmt.Errorf("boom"), wantStatus: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{err: tt.runErr}
			app := newTestApp(runner, &fakeBrowser{}, &fakeStats{})

			status, body := do(t, app, http.MethodPost, "/protected/notifications/jobs/tasks/run", tt.body, middleware.AdminNotificationPermission)
			assert.Equal(t, tt.wantStatus, status)
			if tt.wantStatus != http.StatusOK {
				return
			}
			assert.Equal(t, "tasks", runner.lastName)
			data := body["data"].(map[string]any)
			assert.EqualValues(t, 3, data["notificationsSent"])
			if tt.body != "" {
				assert.Equal(t, userID, runner.lastOpts.UserID)
				assert.True(t, runner.lastOpts.ForceDaily)
			}
		})
	}
}

func TestConnectionsAndDeliverPending(t *testing.T) {
	online := bson.NewObjectID().Hex()
	browser := &fakeBrowser{connected: map[string]int{online: 2}}
	app := newTestApp(&fakeRunner{}, browser, &fakeStats{})
	perms := middleware.ReadNotificationPermission + "," + middleware.RunNotificationJobPermission

	status, body := do(t, app, http.MethodGet, "/protected/notifications/connections/"+online, "", perms)
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, true, data["connected"])
	assert.EqualValues(t, 2, data["connections"])

	status, body = do(t, app, http.MethodPost, "/protected/notifications/alerts/"+online+"/deliver-pending", "", perms)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 4, body["data"].(map[string]any)["delivered"])

	status, _ = do(t, app, http.MethodGet, "/protected/notifications/connections/not-an-id", "", perms)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestLogStats(t *testing.T) {
	stats := &fakeStats{}
	app := newTestApp(&fakeRunner{}, &fakeBrowser{}, stats)

	status, body := do(t, app, http.MethodGet, "/protected/notifications/logs/stats?since=24h", "", middleware.ReadNotificationPermission)
	require.Equal(t, http.StatusOK, status)
	assert.WithinDuration(t, time.Now().Add(-24*time.Hour), stats.since, time.Minute)
	rows := body["data"].(map[string]any)["stats"].([]any)
	require.Len(t, rows, 1)

	status, _ = do(t, app, http.MethodGet, "/protected/notifications/logs/stats?since=yesterday", "", middleware.ReadNotificationPermission)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAcknowledgeNotifications(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	tasks := memory.NewTaskStore()
	brief, fresh := bson.NewObjectID(), bson.NewObjectID()
	tasks.Put(models.Task{ID: brief, UserID: bson.NewObjectID(), Name: "file brief", Status: models.TaskStatusPending})
	tasks.Put(models.Task{ID: fresh, UserID: bson.NewObjectID(), Name: "call client", Status: models.TaskStatusPending})

	app := fiber.New()
	NewNotificationHandler(&fakeRunner{}, &fakeBrowser{}, &fakeStats{}, "notification-service", logger).
		WithRecorder(service.NewRecorder(logger, time.Hour), tasks).
		RegisterRoutes(app)

	body := fmt.Sprintf(`{"ids":[%q,%q,"nope"],"channel":"email","details":"called the client"}`, brief.Hex(), fresh.Hex())
	status, _ := do(t, app, http.MethodPost, "/protected/notifications/records/task", body, middleware.ReadNotificationPermission)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, payload := do(t, app, http.MethodPost, "/protected/notifications/records/task", body, middleware.AdminNotificationPermission)
	require.Equal(t, http.StatusOK, status)
	data := payload["data"].(map[string]any)
	assert.EqualValues(t, 2, data["modified"])
	assert.EqualValues(t, 1, data["invalid"])
	assert.EqualValues(t, 3, data["total"])

	task, ok := tasks.Get(fresh)
	require.True(t, ok)
	require.Len(t, task.Notifications, 1)
	assert.Equal(t, models.ChannelEmail, task.Notifications[0].Type)
	assert.True(t, task.Notifications[0].Success)
	assert.Equal(t, "called the client", task.Notifications[0].Details)

	status, payload = do(t, app, http.MethodPost, "/protected/notifications/records/task", body, middleware.AdminNotificationPermission)
	require.Equal(t, http.StatusOK, status)
	data = payload["data"].(map[string]any)
	assert.EqualValues(t, 0, data["modified"])
	assert.EqualValues(t, 2, data["skipped"])

	tests := []struct {
		name       string
		target     string
		body       string
		wantStatus int
	}{
		{name: "unknown kind", target: "/protected/notifications/records/invoice", body: body, wantStatus: http.StatusNotFound},
		{name: "bad channel", target: "/protected/notifications/records/task", body: fmt.Sprintf(`{"ids":[%q],"channel":"sms"}`, fresh.Hex()), wantStatus: http.StatusBadRequest},
		{name: "no ids", target: "/protected/notifications/records/task", body: `{"ids":[],"channel":"browser"}`, wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := do(t, app, http.MethodPost, tt.target, tt.body, middleware.AdminNotificationPermission)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestAcknowledgeRouteNeedsRecorder(t *testing.T) {
	app := newTestApp(&fakeRunner{}, &fakeBrowser{}, &fakeStats{})
	status, _ := do(t, app, http.MethodPost, "/protected/notifications/records/task", `{"ids":[],"channel":"email"}`, middleware.AdminNotificationPermission)
	assert.Equal(t, http.StatusNotFound, status)
}
