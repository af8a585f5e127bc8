// Package memory holds process-local implementations of the repository
// contracts. They back the memory storage driver and the service tests, and
// they apply the same conditional-append semantics as the Mongo repositories
// under a mutex.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"notification-service/internal/models"
	"notification-service/internal/repository"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Stateful is a notifiable entity value that can be copied with a new
// notification state.
type Stateful[T any] interface {
	models.Notifiable
	WithState(models.NotificationState) T
}

type EntityStore[T Stateful[T]] struct {
	mu       sync.RWMutex
	kind     models.EntityKind
	entities map[bson.ObjectID]T
	order    []bson.ObjectID
	match    func(T) bool
}

// NewEntityStore creates an empty store. match, when set, mirrors the
// kind-specific query conditions (pending tasks, active folders).
func NewEntityStore[T Stateful[T]](kind models.EntityKind, match func(T) bool) *EntityStore[T] {
	return &EntityStore[T]{
		kind:     kind,
		entities: make(map[bson.ObjectID]T),
		match:    match,
	}
}

func NewEventStore() *EntityStore[models.Event] {
	return NewEntityStore[models.Event](models.KindEvent, nil)
}

func NewTaskStore() *EntityStore[models.Task] {
	return NewEntityStore(models.KindTask, func(t models.Task) bool {
		return t.Status == models.TaskStatusPending
	})
}

func NewMovementStore() *EntityStore[models.Movement] {
	return NewEntityStore[models.Movement](models.KindMovement, nil)
}

func NewFolderStore() *EntityStore[models.Folder] {
	return NewEntityStore(models.KindFolder, func(f models.Folder) bool {
		return f.Status == models.FolderStatusActive
	})
}

func (s *EntityStore[T]) Kind() models.EntityKind {
	return s.kind
}

// Put inserts or replaces an entity.
func (s *EntityStore[T]) Put(entity T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(entity)
}

func (s *EntityStore[T]) put(entity T) {
	id := entity.EntityID()
	if _, ok := s.entities[id]; !ok {
		s.order = append(s.order, id)
	}
	s.entities[id] = entity
}

func (s *EntityStore[T]) Get(id bson.ObjectID) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	return e, ok
}

func (s *EntityStore[T]) FindForOwner(_ context.Context, ownerID bson.ObjectID, from, to time.Time) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []T
	for _, id := range s.order {
		e := s.entities[id]
		if e.OwnerID() != ownerID {
			continue
		}
		if s.match != nil && !s.match(e) {
			continue
		}
		at, ok := e.TriggerDate()
		if !ok || at.Before(from) || at.After(to) {
			continue
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, _ := out[i].TriggerDate()
		b, _ := out[j].TriggerDate()
		return a.Before(b)
	})
	return out, nil
}

func (s *EntityStore[T]) AppendIfAbsent(_ context.Context, req repository.AppendRequest) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	since := req.Record.Date.Add(-req.Window)
	var modified int64
	for _, id := range req.IDs {
		e, ok := s.entities[id]
		if !ok {
			continue
		}
		state := e.State()
		if state.NotificationSettings == nil && req.Backfill != nil {
			settings := *req.Backfill
			state.NotificationSettings = &settings
		}
		if state.RecentRecord(req.Record.Type, req.Record.AlertType, since) {
			s.entities[id] = e.WithState(state)
			continue
		}
		state.Notifications = append(append([]models.NotificationRecord(nil), state.Notifications...), req.Record)
		if req.Record.Type == models.ChannelBrowser {
			state.BrowserAlertSent = true
		}
		s.entities[id] = e.WithState(state)
		modified++
	}
	return modified, nil
}

// JudicialStore extends the entity store with the judicial status lifecycle.
type JudicialStore struct {
	*EntityStore[models.JudicialMovement]
	keys map[string]bson.ObjectID
}

func NewJudicialStore() *JudicialStore {
	return &JudicialStore{
		EntityStore: NewEntityStore(models.KindJudicialMovement, func(j models.JudicialMovement) bool {
			return j.Status == models.JudicialStatusPending
		}),
		keys: make(map[string]bson.ObjectID),
	}
}

func (s *JudicialStore) Insert(_ context.Context, movement *models.JudicialMovement) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if movement.SourceKey != "" {
		if _, ok := s.keys[movement.SourceKey]; ok {
			return false, nil
		}
	}
	if movement.ID.IsZero() {
		movement.ID = bson.NewObjectID()
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	if movement.Status == "" {
		movement.Status = models.JudicialStatusPending
	}
	if movement.SourceKey != "" {
		s.keys[movement.SourceKey] = movement.ID
	}
	s.put(*movement)
	return true, nil
}

func (s *JudicialStore) MarkNotified(_ context.Context, ids []bson.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if j, ok := s.entities[id]; ok {
			j.Status = models.JudicialStatusNotified
			s.entities[id] = j
		}
	}
	return nil
}

var (
	_ repository.EntityStore[models.Event] = (*EntityStore[models.Event])(nil)
	_ repository.JudicialStore             = (*JudicialStore)(nil)
)
