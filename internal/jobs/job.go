// Package jobs runs the notification sweeps: for each user it evaluates the
// candidate entities of one kind, delivers over email and browser, and
// records the outcome in the entity history.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notification-service/internal/models"
	"notification-service/internal/repository"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	ErrUnknownJob   = errors.New("unknown job")
	ErrUserNotFound = errors.New("user not found")
)

const (
	JobCalendar   = "calendar"
	JobTasks      = "tasks"
	JobMovements  = "movements"
	JobJudicial   = "judicial"
	JobInactivity = "inactivity"
	JobLogCleanup = "log-cleanup"
)

type OutcomeStatus string

const (
	StatusNotified   OutcomeStatus = "notified"
	StatusNothingDue OutcomeStatus = "nothing-due"
	StatusDisabled   OutcomeStatus = "disabled"
	StatusFailed     OutcomeStatus = "failed"
)

// UserOutcome is the result of one job for one user. Failures are carried
// here and never abort the sweep.
type UserOutcome struct {
	UserID string        `json:"userId"`
	Status OutcomeStatus `json:"status"`
	Sent   int           `json:"sent"`
	Failed int           `json:"failed"`
	Error  string        `json:"error,omitempty"`
}

type Result struct {
	Job               string        `json:"job"`
	StartedAt         time.Time     `json:"startedAt"`
	FinishedAt        time.Time     `json:"finishedAt"`
	UsersProcessed    int           `json:"usersProcessed"`
	NotificationsSent int           `json:"notificationsSent"`
	Failed            int           `json:"failed"`
	Deleted           int64         `json:"deleted,omitempty"`
	Outcomes          []UserOutcome `json:"outcomes,omitempty"`
}

func (r *Result) add(o UserOutcome) {
	r.UsersProcessed++
	r.NotificationsSent += o.Sent
	r.Failed += o.Failed
	if o.Status != StatusNothingDue && o.Status != StatusDisabled {
		r.Outcomes = append(r.Outcomes, o)
	}
}

type RunOptions struct {
	// UserID restricts the sweep to one user.
	UserID string `json:"userId,omitempty"`
	// ForceDaily ignores once-only policies; same-day suppression still
	// applies.
	ForceDaily bool `json:"forceDaily,omitempty"`
	// Today overrides the evaluation day. Zero means now.
	Today time.Time `json:"-"`
}

func (o RunOptions) today() time.Time {
	if o.Today.IsZero() {
		return time.Now().UTC()
	}
	return o.Today.UTC()
}

type Job interface {
	Name() string
	Run(ctx context.Context, opts RunOptions) (Result, error)
}

// sweep iterates the target users one at a time so the mail transport sees
// a bounded rate.
type sweep struct {
	name  string
	users repository.UserStore
	log   logrus.FieldLogger
}

func (s sweep) run(ctx context.Context, opts RunOptions, perUser func(context.Context, models.User) UserOutcome) (Result, error) {
	result := Result{Job: s.name, StartedAt: time.Now().UTC()}

	users, err := s.targets(ctx, opts.UserID)
	if err != nil {
		return result, err
	}

	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		outcome := perUser(ctx, user)
		outcome.UserID = user.ID.Hex()
		if outcome.Status == StatusFailed {
			s.log.WithFields(logrus.Fields{"job": s.name, "user_id": outcome.UserID}).
				WithField("error", outcome.Error).Warn("user notification sweep failed")
		}
		result.add(outcome)
	}

	result.FinishedAt = time.Now().UTC()
	return result, nil
}

func (s sweep) targets(ctx context.Context, userID string) ([]models.User, error) {
	if userID == "" {
		users, err := s.users.FindActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list active users: %w", err)
		}
		return users, nil
	}

	id, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return []models.User{*user}, nil
}

// summarize folds per-entity counts into a user outcome.
func summarize(sent, failed int, errs []error) UserOutcome {
	o := UserOutcome{Sent: sent, Failed: failed}
	switch {
	case sent > 0:
		o.Status = StatusNotified
	case failed > 0 || len(errs) > 0:
		o.Status = StatusFailed
	default:
		o.Status = StatusNothingDue
	}
	if len(errs) > 0 {
		o.Error = errors.Join(errs...).Error()
	}
	return o
}
