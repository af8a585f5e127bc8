package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"notification-service/internal/metrics"
	"notification-service/internal/models"
	"notification-service/internal/repository"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/sync/errgroup"
)

const DefaultDuplicateWindow = 5 * time.Second

type RecordOptions struct {
	// Window overrides the recorder's anti-duplicate window when positive.
	Window   time.Duration
	Backfill *models.NotificationSettings
}

// RecordResult reports a bulk append. Skipped entities already had a recent
// record and count as delivered; they are not an error.
type RecordResult struct {
	Modified int `json:"modified"`
	Skipped  int `json:"skipped"`
	Invalid  int `json:"invalid"`
	Total    int `json:"total"`
}

type ItemError struct {
	ItemID string `json:"itemId"`
	Error  string `json:"error"`
}

type SequentialReport struct {
	Total      int         `json:"total"`
	Successful int         `json:"successful"`
	Skipped    int         `json:"skipped"`
	Failed     int         `json:"failed"`
	Errors     []ItemError `json:"errors,omitempty"`
}

// DeliverFunc performs the per-item side effect and returns the record to
// commit. An error means nothing reached the user and nothing is recorded.
type DeliverFunc func(ctx context.Context, id bson.ObjectID) (models.NotificationRecord, error)

// Recorder appends notification records to entity histories. All appends go
// through the store's conditional update, so concurrent recorders for the
// same entity and channel produce at most one record per window.
type Recorder struct {
	log    logrus.FieldLogger
	window time.Duration
	now    func() time.Time
}

func NewRecorder(log logrus.FieldLogger, window time.Duration) *Recorder {
	if window <= 0 {
		window = DefaultDuplicateWindow
	}
	return &Recorder{
		log:    log,
		window: window,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RecordNotifications appends record to every entity in ids that has no
// record of the same channel within the window. Malformed ids are counted as
// invalid and excluded without failing the batch.
func (r *Recorder) RecordNotifications(ctx context.Context, store repository.HistoryStore, ids []string, record models.NotificationRecord, opts RecordOptions) (RecordResult, error) {
	result := RecordResult{Total: len(ids)}

	valid := make([]bson.ObjectID, 0, len(ids))
	seen := make(map[bson.ObjectID]struct{}, len(ids))
	for _, raw := range ids {
		id, err := bson.ObjectIDFromHex(raw)
		if err != nil {
			r.log.WithFields(logrus.Fields{"kind": store.Kind(), "entity_id": raw}).Warn("skipping malformed entity id")
			result.Invalid++
			continue
		}
		if _, dup := seen[id]; dup {
			result.Skipped++
			continue
		}
		seen[id] = struct{}{}
		valid = append(valid, id)
	}

	modified, err := r.append(ctx, store, valid, record, opts)
	if err != nil {
		return result, err
	}
	result.Modified = int(modified)
	result.Skipped += len(valid) - result.Modified

	kind, channel := string(store.Kind()), string(record.Type)
	metrics.RecorderOutcomes.WithLabelValues(kind, channel, "modified").Add(float64(result.Modified))
	metrics.RecorderOutcomes.WithLabelValues(kind, channel, "skipped").Add(float64(result.Skipped))
	metrics.RecorderOutcomes.WithLabelValues(kind, channel, "invalid").Add(float64(result.Invalid))

	r.log.WithFields(logrus.Fields{
		"kind":     kind,
		"channel":  channel,
		"modified": result.Modified,
		"skipped":  result.Skipped,
		"invalid":  result.Invalid,
	}).Debug("recorded notifications")
	return result, nil
}

// RecordOne is the single-entity form of RecordNotifications. It reports
// whether the record was appended; false means a recent record already
// existed.
func (r *Recorder) RecordOne(ctx context.Context, store repository.HistoryStore, id bson.ObjectID, record models.NotificationRecord, opts RecordOptions) (bool, error) {
	if record.NotificationID == "" {
		if record.Date.IsZero() {
			record.Date = r.now()
		}
		record.NotificationID = models.NotificationID(store.Kind(), id, record.Type, record.AlertType, models.DayKey(record.Date))
	}

	modified, err := r.append(ctx, store, []bson.ObjectID{id}, record, opts)
	if err != nil {
		return false, err
	}

	outcome := "skipped"
	if modified > 0 {
		outcome = "modified"
	}
	metrics.RecorderOutcomes.WithLabelValues(string(store.Kind()), string(record.Type), outcome).Inc()
	return modified > 0, nil
}

// RecordSequential runs deliver for each item and then records it on its own,
// so nothing is marked notified before it was delivered. concurrency bounds
// how many items are in flight; values below 2 process items one by one.
// Per-item failures are collected into the report and never abort the batch.
func (r *Recorder) RecordSequential(ctx context.Context, store repository.HistoryStore, ids []bson.ObjectID, deliver DeliverFunc, opts RecordOptions, concurrency int) SequentialReport {
	report := SequentialReport{Total: len(ids)}
	var mu sync.Mutex

	fail := func(id bson.ObjectID, err error) {
		mu.Lock()
		defer mu.Unlock()
		report.Failed++
		report.Errors = append(report.Errors, ItemError{ItemID: id.Hex(), Error: err.Error()})
	}

	process := func(id bson.ObjectID) {
		record, err := deliver(ctx, id)
		if err != nil {
			r.log.WithFields(logrus.Fields{"kind": store.Kind(), "entity_id": id.Hex()}).WithError(err).Warn("delivery failed")
			fail(id, err)
			return
		}

		recorded, err := r.RecordOne(ctx, store, id, record, opts)
		if err != nil {
			fail(id, fmt.Errorf("record: %w", err))
			return
		}

		mu.Lock()
		defer mu.Unlock()
		switch {
		case !recorded:
			report.Skipped++
		case !record.Success:
			report.Failed++
			report.Errors = append(report.Errors, ItemError{ItemID: id.Hex(), Error: record.Details})
		default:
			report.Successful++
		}
	}

	if concurrency < 2 {
		for _, id := range ids {
			process(id)
		}
		return report
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			process(id)
			return nil
		})
	}
	_ = g.Wait()
	return report
}

func (r *Recorder) append(ctx context.Context, store repository.HistoryStore, ids []bson.ObjectID, record models.NotificationRecord, opts RecordOptions) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if record.Date.IsZero() {
		record.Date = r.now()
	}
	window := opts.Window
	if window <= 0 {
		window = r.window
	}

	modified, err := store.AppendIfAbsent(ctx, repository.AppendRequest{
		IDs:      ids,
		Record:   record,
		Window:   window,
		Backfill: opts.Backfill,
	})
	if err != nil {
		return 0, fmt.Errorf("append %s %s notification: %w", store.Kind(), record.Type, err)
	}
	return modified, nil
}
