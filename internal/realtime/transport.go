package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Transport addresses logical groups of connections.
type Transport interface {
	JoinGroup(conn Connection, group string)
	LeaveGroup(conn Connection, group string)
	BroadcastToGroup(ctx context.Context, group, event string, payload any) error
}

// UserGroup is the broadcast group every connection of a user joins.
func UserGroup(userID string) string {
	return "user:" + userID
}

// LocalTransport fans events out to the connections of this process.
type LocalTransport struct {
	mu     sync.RWMutex
	groups map[string]map[string]Connection
}

func NewLocalTransport() *LocalTransport {
	return &LocalTransport{groups: make(map[string]map[string]Connection)}
}

func (t *LocalTransport) JoinGroup(conn Connection, group string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	members, ok := t.groups[group]
	if !ok {
		members = make(map[string]Connection)
		t.groups[group] = members
	}
	members[conn.ID()] = conn
}

func (t *LocalTransport) LeaveGroup(conn Connection, group string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	members, ok := t.groups[group]
	if !ok {
		return
	}
	delete(members, conn.ID())
	if len(members) == 0 {
		delete(t.groups, group)
	}
}

// BroadcastToGroup sends to every member. It fails only when no member
// received the event.
func (t *LocalTransport) BroadcastToGroup(ctx context.Context, group, event string, payload any) error {
	t.mu.RLock()
	members := make([]Connection, 0, len(t.groups[group]))
	for _, c := range t.groups[group] {
		members = append(members, c)
	}
	t.mu.RUnlock()

	if len(members) == 0 {
		return fmt.Errorf("group %s has no members", group)
	}

	var errs []error
	for _, c := range members {
		if err := c.Send(ctx, event, payload); err != nil {
			errs = append(errs, fmt.Errorf("connection %s: %w", c.ID(), err))
		}
	}
	if len(errs) == len(members) {
		return errors.Join(errs...)
	}
	return nil
}
