package registry

import (
	"context"
	"encoding/json"
	"sync"

	"sanuda/internal/core/contracts"

	"github.com/google/uuid"
)

// Session is one live authenticated connection and the set of rooms it has
// joined. Handles stay valid after Unregister but become inert.
type Session struct {
	id     string
	userID string
	client contracts.Client
}

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.userID }

func (s *Session) Send(ctx context.Context, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.client.Send(ctx, data)
}

// Registry maps users to live sessions and conversations to the sessions
// joined to them. It is the only globally shared mutable structure besides
// the room index it carries; everything is guarded by one RWMutex so that
// join/leave are atomic with respect to any concurrent broadcast.
type Registry struct {
	mu           sync.RWMutex
	sessions     map[string]*Session            // session id → session
	userSessions map[string]map[string]*Session // user id → session id → session
	rooms        map[string]map[string]*Session // conv id → session id → session
	sessionRooms map[string]map[string]struct{} // session id → conv ids
}

var _ contracts.Registry = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		sessions:     make(map[string]*Session),
		userSessions: make(map[string]map[string]*Session),
		rooms:        make(map[string]map[string]*Session),
		sessionRooms: make(map[string]map[string]struct{}),
	}
}

func (r *Registry) Register(userID string, c contracts.Client) contracts.Session {
	s := &Session{
		id:     uuid.NewString(),
		userID: userID,
		client: c,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.id] = s
	if r.userSessions[userID] == nil {
		r.userSessions[userID] = make(map[string]*Session)
	}
	r.userSessions[userID][s.id] = s
	return s
}

// Unregister removes the session and every room pointer it holds. Safe to
// call on a session that never joined a room or was already unregistered.
func (r *Registry) Unregister(s contracts.Session) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[s.ID()]
	if !ok {
		return
	}
	for convID := range r.sessionRooms[sess.id] {
		delete(r.rooms[convID], sess.id)
		if len(r.rooms[convID]) == 0 {
			delete(r.rooms, convID)
		}
	}
	delete(r.sessionRooms, sess.id)
	delete(r.sessions, sess.id)
	delete(r.userSessions[sess.userID], sess.id)
	if len(r.userSessions[sess.userID]) == 0 {
		delete(r.userSessions, sess.userID)
	}
}

func (r *Registry) ConnectionsFor(userID string) []contracts.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]contracts.Session, 0, len(r.userSessions[userID]))
	for _, s := range r.userSessions[userID] {
		out = append(out, s)
	}
	return out
}

func (r *Registry) IsUserOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.userSessions[userID]) > 0
}

func (r *Registry) Join(s contracts.Session, convID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[s.ID()]
	if !ok {
		return // disconnected while the join was in flight
	}
	if r.rooms[convID] == nil {
		r.rooms[convID] = make(map[string]*Session)
	}
	r.rooms[convID][sess.id] = sess
	if r.sessionRooms[sess.id] == nil {
		r.sessionRooms[sess.id] = make(map[string]struct{})
	}
	r.sessionRooms[sess.id][convID] = struct{}{}
}

func (r *Registry) Leave(s contracts.Session, convID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms[convID], s.ID())
	if len(r.rooms[convID]) == 0 {
		delete(r.rooms, convID)
	}
	delete(r.sessionRooms[s.ID()], convID)
}

// Broadcast delivers the event to every session joined to the room. One
// connection's send failure never affects the others.
func (r *Registry) Broadcast(ctx context.Context, convID string, event any, excludeSessionID string) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for sid, sess := range r.rooms[convID] {
		if sid == excludeSessionID {
			continue
		}
		_ = sess.client.Send(ctx, data)
	}
}

func (r *Registry) SendToUser(ctx context.Context, userID string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sess := range r.userSessions[userID] {
		_ = sess.client.Send(ctx, data)
	}
}
