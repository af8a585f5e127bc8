package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notification-service/internal/jobs"
	"notification-service/internal/middleware"
	"notification-service/internal/models"
	"notification-service/internal/repository"
	"notification-service/internal/service"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	defaultStatsWindow = 7 * 24 * time.Hour
	maxRecordBatch     = 500
)

// JobRunner is the slice of jobs.Runner the HTTP layer needs.
type JobRunner interface {
	Run(ctx context.Context, name string, opts jobs.RunOptions) (jobs.Result, error)
	Statuses(ctx context.Context) ([]jobs.Status, error)
}

type BrowserChannel interface {
	IsUserConnected(userID string) bool
	ConnectionCount(userID string) int
	DeliverPendingAlerts(ctx context.Context, userID string) (int, error)
}

type LogStats interface {
	Stats(ctx context.Context, since time.Time) ([]models.LogStat, error)
}

// HistoryRecorder appends records to entity histories in bulk.
type HistoryRecorder interface {
	RecordNotifications(ctx context.Context, store repository.HistoryStore, ids []string, record models.NotificationRecord, opts service.RecordOptions) (service.RecordResult, error)
}

type NotificationHandler struct {
	runner      JobRunner
	browser     BrowserChannel
	logs        LogStats
	recorder    HistoryRecorder
	histories   map[models.EntityKind]repository.HistoryStore
	serviceName string
	log         logrus.FieldLogger
}

type recordRequest struct {
	IDs       []string       `json:"ids"`
	Channel   models.Channel `json:"channel"`
	AlertType string         `json:"alertType"`
	Details   string         `json:"details"`
}

func NewNotificationHandler(runner JobRunner, browser BrowserChannel, logs LogStats, serviceName string, log logrus.FieldLogger) *NotificationHandler {
	return &NotificationHandler{
		runner:      runner,
		browser:     browser,
		logs:        logs,
		serviceName: serviceName,
		log:         log,
	}
}

// WithRecorder enables the acknowledgement route, which records entities as
// already notified so the sweeps skip them.
func (h *NotificationHandler) WithRecorder(recorder HistoryRecorder, histories ...repository.HistoryStore) *NotificationHandler {
	h.recorder = recorder
	h.histories = make(map[models.EntityKind]repository.HistoryStore, len(histories))
	for _, store := range histories {
		h.histories[store.Kind()] = store
	}
	return h
}

func (h *NotificationHandler) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	protectedGroup := app.Group("/protected/notifications")

	protectedGroup.Get("/jobs", h.ListJobs, middleware.PermissionRequired(h.log, middleware.ReadNotificationPermission))
	protectedGroup.Post("/jobs/:job/run", h.RunJob, middleware.PermissionRequired(h.log, middleware.RunNotificationJobPermission))
	protectedGroup.Get("/connections/:userId", h.GetConnections, middleware.PermissionRequired(h.log, middleware.ReadNotificationPermission))
	protectedGroup.Post("/alerts/:userId/deliver-pending", h.DeliverPending, middleware.PermissionRequired(h.log, middleware.RunNotificationJobPermission))
	protectedGroup.Get("/logs/stats", h.GetLogStats, middleware.PermissionRequired(h.log, middleware.ReadNotificationPermission))
	if h.recorder != nil {
		protectedGroup.Post("/records/:kind", h.AcknowledgeNotifications, middleware.PermissionRequired(h.log, middleware.AdminNotificationPermission))
	}
}

func (h *NotificationHandler) HealthCheck(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"service":   h.serviceName,
		"timestamp": time.Now().UTC(),
	})
}

func (h *NotificationHandler) ListJobs(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	statuses, err := h.runner.Statuses(ctx)
	if err != nil {
		h.log.WithError(err).Error("failed to load job statuses")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load job statuses",
		})
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"jobs": statuses,
		},
	})
}

func (h *NotificationHandler) RunJob(c fiber.Ctx) error {
	name := c.Params("job")

	var opts jobs.RunOptions
	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&opts); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}
	if opts.UserID != "" && !validID(opts.UserID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid user ID format",
		})
	}

	// A full sweep can outlive the request deadline of the gateway; the run
	// still finishes and its status is cached.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	result, err := h.runner.Run(ctx, name, opts)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrUnknownJob):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Job not found",
			})
		case errors.Is(err, jobs.ErrUserNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "User not found",
			})
		case jobs.IsBusy(err):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Job is already running",
			})
		}
		h.log.WithField("job", name).WithError(err).Error("manual job run failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to run job",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Job finished",
		"data":    result,
	})
}

func (h *NotificationHandler) GetConnections(c fiber.Ctx) error {
	userID := c.Params("userId")
	if !validID(userID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid user ID format",
		})
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"userId":      userID,
			"connected":   h.browser.IsUserConnected(userID),
			"connections": h.browser.ConnectionCount(userID),
		},
	})
}

func (h *NotificationHandler) DeliverPending(c fiber.Ctx) error {
	userID := c.Params("userId")
	if !validID(userID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid user ID format",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	delivered, err := h.browser.DeliverPendingAlerts(ctx, userID)
	if err != nil {
		h.log.WithField("user_id", userID).WithError(err).Error("failed to deliver pending alerts")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to deliver pending alerts",
		})
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"userId":    userID,
			"connected": h.browser.IsUserConnected(userID),
			"delivered": delivered,
		},
	})
}

// GetLogStats accepts since as RFC 3339 or as a look-back duration such as
// "24h". It defaults to the last week.
func (h *NotificationHandler) GetLogStats(c fiber.Ctx) error {
	since := time.Now().UTC().Add(-defaultStatsWindow)
	if raw := c.Query("since"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			since = t
		} else if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			since = time.Now().UTC().Add(-d)
		} else {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid since parameter",
			})
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := h.logs.Stats(ctx, since)
	if err != nil {
		h.log.WithError(err).Error("failed to aggregate notification logs")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load notification statistics",
		})
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"since": since,
			"stats": stats,
		},
	})
}

// AcknowledgeNotifications records a batch of entities of one kind as
// notified on a channel, for notices handled outside the service. Entities
// with a recent record on that channel are skipped.
func (h *NotificationHandler) AcknowledgeNotifications(c fiber.Ctx) error {
	store, ok := h.histories[models.EntityKind(c.Params("kind"))]
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Unknown entity kind",
		})
	}

	var req recordRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Channel != models.ChannelEmail && req.Channel != models.ChannelBrowser {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Channel must be email or browser",
		})
	}
	if len(req.IDs) == 0 || len(req.IDs) > maxRecordBatch {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("Between 1 and %d ids are required", maxRecordBatch),
		})
	}
	if req.Details == "" {
		req.Details = "acknowledged"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	record := models.NotificationRecord{
		Date:      time.Now().UTC(),
		Type:      req.Channel,
		Success:   true,
		Details:   req.Details,
		AlertType: req.AlertType,
	}
	result, err := h.recorder.RecordNotifications(ctx, store, req.IDs, record, service.RecordOptions{})
	if err != nil {
		h.log.WithField("kind", store.Kind()).WithError(err).Error("failed to record acknowledged notifications")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record notifications",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Notifications recorded",
		"data":    result,
	})
}

func validID(hex string) bool {
	_, err := bson.ObjectIDFromHex(hex)
	return err == nil
}
