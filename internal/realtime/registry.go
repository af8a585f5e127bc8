// Package realtime delivers browser alerts over live connections and queues
// them as pending when the user is offline.
package realtime

import (
	"context"
	"sync"
)

// Connection is one live, authenticated-or-not client socket.
type Connection interface {
	ID() string
	Send(ctx context.Context, event string, payload any) error
	Close(reason string) error
}

// Registry tracks the live connections of each user in this process. A user
// with no connections has no entry at all.
type Registry struct {
	mu    sync.RWMutex
	users map[string]map[string]Connection
}

func NewRegistry() *Registry {
	return &Registry{users: make(map[string]map[string]Connection)}
}

func (r *Registry) Add(userID string, conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.users[userID]
	if !ok {
		set = make(map[string]Connection)
		r.users[userID] = set
	}
	set[conn.ID()] = conn
}

// Remove drops one connection and returns how many the user still holds.
func (r *Registry) Remove(userID, connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.users[userID]
	if !ok {
		return 0
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.users, userID)
		return 0
	}
	return len(set)
}

func (r *Registry) IsConnected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

func (r *Registry) ConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}

// HasEntry reports whether the registry holds any entry for userID, empty or
// not.
func (r *Registry) HasEntry(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok
}

// Totals returns the number of connected users and open connections.
func (r *Registry) Totals() (users, connections int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, set := range r.users {
		connections += len(set)
	}
	return len(r.users), connections
}
