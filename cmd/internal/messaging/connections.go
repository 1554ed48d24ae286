package messaging

import (
	"log/slog"
	"sync"
)

// ConnectionRegistry tracks which users currently have a live realtime
// channel open, for push delivery. It is process-local state: rebuilt empty
// on restart, reconnecting clients re-register.
//
// One slot per user id: a newer connection for an already-connected id
// replaces the tracked handle (last-write-wins). The registry never queues or
// multiplexes multiple simultaneous connections per user.
type ConnectionRegistry struct {
	log *slog.Logger

	mu     sync.RWMutex
	byUser map[string]*Client
}

// NewConnectionRegistry constructs an empty registry.
func NewConnectionRegistry(log *slog.Logger) *ConnectionRegistry {
	if log == nil {
		log = slog.Default()
	}
	return &ConnectionRegistry{
		log:    log,
		byUser: make(map[string]*Client),
	}
}

// Register binds a client to its user id and returns the handle it replaced,
// if any. The caller is responsible for closing the replaced handle. A client
// without a user id is not admitted.
func (r *ConnectionRegistry) Register(userID string, c *Client) *Client {
	if userID == "" || c == nil {
		return nil
	}

	r.mu.Lock()
	prev := r.byUser[userID]
	r.byUser[userID] = c
	r.mu.Unlock()

	if prev != nil {
		r.log.Info("ws.conn.replace", "user_id", userID)
	} else {
		r.log.Info("ws.conn.register", "user_id", userID)
	}
	return prev
}

// Unregister removes the mapping for userID, but only while it still refers
// to c. This keeps a replaced connection's deferred teardown from evicting
// its successor. Passing c == nil removes unconditionally. Safe to call when
// the mapping is already absent.
func (r *ConnectionRegistry) Unregister(userID string, c *Client) {
	if userID == "" {
		return
	}

	r.mu.Lock()
	cur, ok := r.byUser[userID]
	if ok && (c == nil || cur == c) {
		delete(r.byUser, userID)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if ok {
		r.log.Info("ws.conn.unregister", "user_id", userID)
	}
}

// Lookup returns the live handle for userID, if any.
func (r *ConnectionRegistry) Lookup(userID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byUser[userID]
	return c, ok
}

// Len reports how many users currently have a tracked connection.
func (r *ConnectionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
