package repository

import (
	"context"
	"errors"
	"time"

	"notification-service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	ErrLockHeld = errors.New("lock is held by another worker")
	// ErrDuplicateAlert is returned by AlertStore.Create when an alert with
	// the same notification id already exists.
	ErrDuplicateAlert = errors.New("alert already exists")
)

// AppendRequest describes one conditional append of a notification record
// onto a set of entities.
type AppendRequest struct {
	IDs    []bson.ObjectID
	Record models.NotificationRecord
	// Window is the anti-duplicate window: an entity already holding a record
	// of the same channel and alert type dated within Window of Record.Date is
	// left untouched.
	Window time.Duration
	// Backfill is written as notificationSettings on entities that have none.
	Backfill *models.NotificationSettings
}

// HistoryStore is the write side of an entity collection's embedded
// notification history.
type HistoryStore interface {
	Kind() models.EntityKind
	// AppendIfAbsent performs the conditional append as one filtered bulk
	// update and returns how many entities were modified.
	AppendIfAbsent(ctx context.Context, req AppendRequest) (int64, error)
}

// EntityStore reads candidate entities of one kind for an owner and records
// notifications against them.
type EntityStore[T models.Notifiable] interface {
	HistoryStore
	// FindForOwner returns the owner's entities whose trigger date falls in
	// [from, to].
	FindForOwner(ctx context.Context, ownerID bson.ObjectID, from, to time.Time) ([]T, error)
}

type JudicialStore interface {
	EntityStore[models.JudicialMovement]
	// Insert stores a pending movement. A movement whose SourceKey is already
	// stored is left untouched and Insert reports false.
	Insert(ctx context.Context, movement *models.JudicialMovement) (bool, error)
	MarkNotified(ctx context.Context, ids []bson.ObjectID) error
}

type PreferenceStore interface {
	// FindByUserID returns nil without error when the user has no preferences.
	FindByUserID(ctx context.Context, userID bson.ObjectID) (*models.UserPreference, error)
	// EnsureDefaults creates the default preferences unless a document exists.
	EnsureDefaults(ctx context.Context, userID bson.ObjectID) (bool, error)
}

type UserStore interface {
	FindActive(ctx context.Context) ([]models.User, error)
	// FindByID returns nil without error when the user does not exist.
	FindByID(ctx context.Context, id bson.ObjectID) (*models.User, error)
}

type AlertStore interface {
	Create(ctx context.Context, alert *models.Alert) error
	// FindPending returns at most limit undelivered alerts, newest first.
	FindPending(ctx context.Context, userID bson.ObjectID, limit int) ([]models.Alert, error)
	// MarkDelivered flips undelivered alerts and returns how many it changed,
	// so a count of zero means another delivery already claimed them.
	MarkDelivered(ctx context.Context, ids []bson.ObjectID, at time.Time) (int64, error)
	// MarkPending returns a claimed alert to the pending queue.
	MarkPending(ctx context.Context, id bson.ObjectID) error
}

type LogStore interface {
	Insert(ctx context.Context, entry *models.NotificationLog) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context, since time.Time) ([]models.LogStat, error)
}

// Locker guards a job against concurrent runs across processes.
type Locker interface {
	// Acquire returns a release func, or ErrLockHeld.
	Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error)
}

// StatusStore caches the last run of each job for the status endpoint.
type StatusStore interface {
	SaveStatus(ctx context.Context, job string, status any, ttl time.Duration) error
	LoadStatus(ctx context.Context, job string, model any) (bool, error)
}
