package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Schedule yields the next run time strictly after t.
type Schedule interface {
	Next(t time.Time) time.Time
}

// Every runs at a fixed interval.
type Every time.Duration

func (e Every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

// DailyAt runs once a day at the given UTC wall-clock time.
type DailyAt struct {
	Hour   int
	Minute int
}

func (d DailyAt) Next(t time.Time) time.Time {
	t = t.UTC()
	next := time.Date(t.Year(), t.Month(), t.Day(), d.Hour, d.Minute, 0, 0, time.UTC)
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// ParseSchedule accepts "HH:MM" for a daily run, a Go duration for an
// interval, or "off". A nil schedule means the job is not scheduled.
func ParseSchedule(expr string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	switch expr {
	case "", "off", "disabled":
		return nil, nil
	}

	if at, err := time.Parse("15:04", expr); err == nil {
		return DailyAt{Hour: at.Hour(), Minute: at.Minute()}, nil
	}

	d, err := time.ParseDuration(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: want HH:MM, a duration, or off", expr)
	}
	if d < time.Minute {
		return nil, fmt.Errorf("invalid schedule %q: interval must be at least 1m", expr)
	}
	return Every(d), nil
}

type entry struct {
	job      string
	schedule Schedule
}

// Scheduler triggers runner jobs on their schedules until stopped.
type Scheduler struct {
	runner  *Runner
	entries []entry
	log     logrus.FieldLogger
	now     func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewScheduler(runner *Runner, log logrus.FieldLogger) *Scheduler {
	return &Scheduler{runner: runner, log: log, now: time.Now}
}

// Add registers job under the schedule expression. "off" leaves the job
// available for manual runs only.
func (s *Scheduler) Add(job, expr string) error {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return fmt.Errorf("job %s: %w", job, err)
	}
	s.runner.SetSchedule(job, expr)
	if sched == nil {
		return nil
	}
	s.entries = append(s.entries, entry{job: job, schedule: sched})
	return nil
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	for _, e := range s.entries {
		e := e
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop(ctx, e)
		}()
	}
	s.log.WithField("jobs", len(s.entries)).Info("scheduler started")
}

func (s *Scheduler) loop(ctx context.Context, e entry) {
	for {
		next := e.schedule.Next(s.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		_, err := s.runner.Run(ctx, e.job, RunOptions{})
		switch {
		case err == nil:
		case IsBusy(err):
			s.log.WithField("job", e.job).Info("job already running elsewhere, skipping tick")
		case ctx.Err() != nil:
			return
		default:
			s.log.WithField("job", e.job).WithError(err).Error("scheduled job failed")
		}
	}
}

// Stop cancels pending ticks and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()
	s.wg.Wait()
}
