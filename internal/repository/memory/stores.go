package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"notification-service/internal/models"
	"notification-service/internal/repository"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type PreferenceStore struct {
	mu    sync.RWMutex
	prefs map[bson.ObjectID]models.UserPreference
}

func NewPreferenceStore() *PreferenceStore {
	return &PreferenceStore{prefs: make(map[bson.ObjectID]models.UserPreference)}
}

func (s *PreferenceStore) Put(pref models.UserPreference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[pref.UserID] = pref
}

func (s *PreferenceStore) FindByUserID(_ context.Context, userID bson.ObjectID) (*models.UserPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pref, ok := s.prefs[userID]
	if !ok {
		return nil, nil
	}
	return &pref, nil
}

func (s *PreferenceStore) EnsureDefaults(_ context.Context, userID bson.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prefs[userID]; ok {
		return false, nil
	}
	pref := models.DefaultUserPreference(userID)
	pref.ID = bson.NewObjectID()
	s.prefs[userID] = *pref
	return true, nil
}

type UserStore struct {
	mu    sync.RWMutex
	users []models.User
}

func NewUserStore(users ...models.User) *UserStore {
	return &UserStore{users: users}
}

func (s *UserStore) Put(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].ID == user.ID {
			s.users[i] = user
			return
		}
	}
	s.users = append(s.users, user)
}

func (s *UserStore) FindActive(_ context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.User
	for _, u := range s.users {
		if u.IsActive {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *UserStore) FindByID(_ context.Context, id bson.ObjectID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.ID == id {
			user := u
			return &user, nil
		}
	}
	return nil, nil
}

type AlertStore struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func NewAlertStore() *AlertStore {
	return &AlertStore{}
}

func (s *AlertStore) Create(_ context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if alert.NotificationID != "" {
		for _, a := range s.alerts {
			if a.NotificationID == alert.NotificationID {
				return fmt.Errorf("%w: %s", repository.ErrDuplicateAlert, alert.NotificationID)
			}
		}
	}
	if alert.ID.IsZero() {
		alert.ID = bson.NewObjectID()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	s.alerts = append(s.alerts, *alert)
	return nil
}

func (s *AlertStore) FindPending(_ context.Context, userID bson.ObjectID, limit int) ([]models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Alert
	for _, a := range s.alerts {
		if a.UserID == userID && !a.Delivered {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *AlertStore) MarkDelivered(_ context.Context, ids []bson.ObjectID, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[bson.ObjectID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var n int64
	for i := range s.alerts {
		if _, ok := want[s.alerts[i].ID]; ok && !s.alerts[i].Delivered {
			s.alerts[i].Delivered = true
			deliveredAt := at
			s.alerts[i].DeliveredAt = &deliveredAt
			n++
		}
	}
	return n, nil
}

func (s *AlertStore) MarkPending(_ context.Context, id bson.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			s.alerts[i].Delivered = false
			s.alerts[i].DeliveredAt = nil
		}
	}
	return nil
}

// All returns a snapshot of every stored alert.
func (s *AlertStore) All() []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Alert(nil), s.alerts...)
}

type LogStore struct {
	mu      sync.Mutex
	entries []models.NotificationLog
}

func NewLogStore() *LogStore {
	return &LogStore{}
}

func (s *LogStore) Insert(_ context.Context, entry *models.NotificationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID.IsZero() {
		entry.ID = bson.NewObjectID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *LogStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	var n int64
	for _, e := range s.entries {
		if e.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return n, nil
}

func (s *LogStore) Stats(_ context.Context, since time.Time) ([]models.LogStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type key struct {
		channel models.Channel
		status  models.DeliveryStatus
	}
	counts := make(map[key]int64)
	for _, e := range s.entries {
		if e.CreatedAt.Before(since) {
			continue
		}
		counts[key{e.Channel, e.Status}]++
	}

	stats := make([]models.LogStat, 0, len(counts))
	for k, n := range counts {
		stats = append(stats, models.LogStat{Channel: k.channel, Status: k.status, Count: n})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Channel != stats[j].Channel {
			return stats[i].Channel < stats[j].Channel
		}
		return stats[i].Status < stats[j].Status
	})
	return stats, nil
}

// Entries returns a snapshot of the log.
func (s *LogStore) Entries() []models.NotificationLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.NotificationLog(nil), s.entries...)
}

// Locker is a process-local stand-in for the Redis lock.
type Locker struct {
	mu   sync.Mutex
	held map[string]time.Time
}

func NewLocker() *Locker {
	return &Locker{held: make(map[string]time.Time)}
}

func (l *Locker) Acquire(_ context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if exp, ok := l.held[name]; ok && time.Now().Before(exp) {
		return nil, fmt.Errorf("%w: %s", repository.ErrLockHeld, name)
	}
	l.held[name] = time.Now().Add(ttl)
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, name)
		return nil
	}, nil
}

type StatusStore struct {
	mu       sync.Mutex
	statuses map[string][]byte
}

func NewStatusStore() *StatusStore {
	return &StatusStore{statuses: make(map[string][]byte)}
}

func (s *StatusStore) SaveStatus(_ context.Context, job string, status any, _ time.Duration) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("error encoding job status: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[job] = raw
	return nil
}

func (s *StatusStore) LoadStatus(_ context.Context, job string, model any) (bool, error) {
	s.mu.Lock()
	raw, ok := s.statuses[job]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, model)
}

var (
	_ repository.PreferenceStore = (*PreferenceStore)(nil)
	_ repository.UserStore       = (*UserStore)(nil)
	_ repository.AlertStore      = (*AlertStore)(nil)
	_ repository.LogStore        = (*LogStore)(nil)
	_ repository.Locker          = (*Locker)(nil)
	_ repository.StatusStore     = (*StatusStore)(nil)
)
