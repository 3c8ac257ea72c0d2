package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"sanuda/internal/core/domain"

	"github.com/google/uuid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	_ domain.UserRepository         = (*memUserRepo)(nil)
	_ domain.ConversationRepository = (*memConvRepo)(nil)
	_ domain.MessageRepository      = (*memMessageRepo)(nil)
	_ domain.CursorRepository       = (*memCursorRepo)(nil)
)

// fakeClient records every frame queued on one connection.
type fakeClient struct {
	mu      sync.Mutex
	frames  [][]byte
	sendErr error
}

func (c *fakeClient) Send(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.frames = append(c.frames, buf)
	return nil
}

func (c *fakeClient) Close() {}

// eventsOfType decodes the recorded frames and keeps those whose "type"
// field matches.
func (c *fakeClient) eventsOfType(t *testing.T, eventType string) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, frame := range c.frames {
		var ev map[string]any
		if err := json.Unmarshal(frame, &ev); err != nil {
			t.Fatalf("malformed frame %q: %v", frame, err)
		}
		if ev["type"] == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type memUserRepo struct {
	mu          sync.Mutex
	users       map[string]*domain.User
	transitions []bool // recorded SetOnlineStatus calls, in order
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*domain.User)}
}

func (r *memUserRepo) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func (r *memUserRepo) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *memUserRepo) CreateUser(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Username == u.Username {
			return domain.ErrUserExists
		}
	}
	r.users[u.ID] = u
	return nil
}

func (r *memUserRepo) SetOnlineStatus(_ context.Context, userID string, online bool, lastSeen time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[userID]; ok {
		u.IsOnline = online
		u.LastSeenAt = lastSeen
	}
	r.transitions = append(r.transitions, online)
	return nil
}

func (r *memUserRepo) recordedTransitions() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.transitions))
	copy(out, r.transitions)
	return out
}

type memConvRepo struct {
	mu      sync.Mutex
	members map[uuid.UUID][]string
	latest  map[uuid.UUID]uuid.UUID
}

func newMemConvRepo() *memConvRepo {
	return &memConvRepo{
		members: make(map[uuid.UUID][]string),
		latest:  make(map[uuid.UUID]uuid.UUID),
	}
}

func (r *memConvRepo) GetMembers(_ context.Context, convID uuid.UUID) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[convID]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return append([]string(nil), m...), nil
}

func (r *memConvRepo) ListUserConversations(_ context.Context, userID string) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uuid.UUID
	for convID, members := range r.members {
		for _, m := range members {
			if m == userID {
				out = append(out, convID)
				break
			}
		}
	}
	return out, nil
}

func (r *memConvRepo) SetLatestMessage(_ context.Context, convID, msgID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[convID]; !ok {
		return domain.ErrConversationNotFound
	}
	r.latest[convID] = msgID
	return nil
}

type memMessageRepo struct {
	mu        sync.Mutex
	seqs      map[uuid.UUID]int64
	msgs      map[uuid.UUID]*domain.Message
	appendErr error
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{
		seqs: make(map[uuid.UUID]int64),
		msgs: make(map[uuid.UUID]*domain.Message),
	}
}

func (r *memMessageRepo) Append(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	r.seqs[msg.ConversationID]++
	msg.Seq = r.seqs[msg.ConversationID]
	msg.CreatedAt = time.Now()
	stored := *msg
	stored.DeliveredTo = make(map[string]time.Time)
	stored.ReadBy = make(map[string]time.Time)
	r.msgs[msg.ID] = &stored
	return nil
}

// seed inserts a message directly, bypassing the service path.
func (r *memMessageRepo) seed(convID uuid.UUID, senderID, content string) *domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seqs[convID]++
	msg := &domain.Message{
		ID:             uuid.New(),
		ConversationID: convID,
		SenderID:       senderID,
		Content:        content,
		ContentType:    domain.ContentText,
		Seq:            r.seqs[convID],
		CreatedAt:      time.Now(),
		DeliveredTo:    make(map[string]time.Time),
		ReadBy:         make(map[string]time.Time),
	}
	r.msgs[msg.ID] = msg
	return msg
}

func (r *memMessageRepo) GetMessage(_ context.Context, msgID uuid.UUID) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.msgs[msgID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return copyMessage(stored), nil
}

func (r *memMessageRepo) AddDelivered(_ context.Context, msgID uuid.UUID, userID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.msgs[msgID]
	if !ok {
		return false, domain.ErrMessageNotFound
	}
	if _, exists := msg.DeliveredTo[userID]; exists {
		return false, nil
	}
	msg.DeliveredTo[userID] = at
	return true, nil
}

func (r *memMessageRepo) AddRead(_ context.Context, msgID uuid.UUID, userID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.msgs[msgID]
	if !ok {
		return false, domain.ErrMessageNotFound
	}
	if _, delivered := msg.DeliveredTo[userID]; !delivered {
		return false, domain.ErrInvalidStateTransition
	}
	if _, exists := msg.ReadBy[userID]; exists {
		return false, nil
	}
	msg.ReadBy[userID] = at
	return true, nil
}

func (r *memMessageRepo) ListUndelivered(_ context.Context, convID uuid.UUID, userID string) ([]*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Message
	for _, msg := range r.msgs {
		if msg.ConversationID != convID || msg.SenderID == userID || msg.Deleted {
			continue
		}
		if _, delivered := msg.DeliveredTo[userID]; delivered {
			continue
		}
		out = append(out, copyMessage(msg))
	}
	sortBySeq(out)
	return out, nil
}

func (r *memMessageRepo) ListUnreadUpTo(_ context.Context, convID uuid.UUID, userID string, cutoffMsgID uuid.UUID) ([]*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff, ok := r.msgs[cutoffMsgID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	var out []*domain.Message
	for _, msg := range r.msgs {
		if msg.ConversationID != convID || msg.SenderID == userID || msg.Deleted {
			continue
		}
		if msg.Seq > cutoff.Seq {
			continue
		}
		if _, read := msg.ReadBy[userID]; read {
			continue
		}
		out = append(out, copyMessage(msg))
	}
	sortBySeq(out)
	return out, nil
}

func (r *memMessageRepo) CountUnreadAfter(_ context.Context, convID uuid.UUID, userID string, afterSeq int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, msg := range r.msgs {
		if msg.ConversationID == convID && msg.SenderID != userID && !msg.Deleted && msg.Seq > afterSeq {
			n++
		}
	}
	return n, nil
}

func copyMessage(msg *domain.Message) *domain.Message {
	out := *msg
	out.DeliveredTo = make(map[string]time.Time, len(msg.DeliveredTo))
	for k, v := range msg.DeliveredTo {
		out.DeliveredTo[k] = v
	}
	out.ReadBy = make(map[string]time.Time, len(msg.ReadBy))
	for k, v := range msg.ReadBy {
		out.ReadBy[k] = v
	}
	return &out
}

func sortBySeq(msgs []*domain.Message) {
	for i := 1; i < len(msgs); i++ {
		for j := i; j > 0 && msgs[j-1].Seq > msgs[j].Seq; j-- {
			msgs[j-1], msgs[j] = msgs[j], msgs[j-1]
		}
	}
}

type cursorKey struct {
	userID string
	convID uuid.UUID
}

type memCursorRepo struct {
	mu       sync.Mutex
	cursors  map[cursorKey]*domain.ReadCursor
	messages *memMessageRepo
}

func newMemCursorRepo(messages *memMessageRepo) *memCursorRepo {
	return &memCursorRepo{
		cursors:  make(map[cursorKey]*domain.ReadCursor),
		messages: messages,
	}
}

func (r *memCursorRepo) Get(_ context.Context, userID string, convID uuid.UUID) (*domain.ReadCursor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.cursors[cursorKey{userID, convID}]; ok {
		out := *cur
		return &out, nil
	}
	return &domain.ReadCursor{UserID: userID, ConversationID: convID}, nil
}

func (r *memCursorRepo) Advance(_ context.Context, userID string, convID, msgID uuid.UUID) (bool, error) {
	r.messages.mu.Lock()
	msg, ok := r.messages.msgs[msgID]
	r.messages.mu.Unlock()
	if !ok {
		return false, domain.ErrMessageNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := cursorKey{userID, convID}
	cur, exists := r.cursors[key]
	if exists && cur.LastReadSeq >= msg.Seq {
		return false, nil
	}
	r.cursors[key] = &domain.ReadCursor{
		UserID:         userID,
		ConversationID: convID,
		LastReadMsgID:  msgID,
		LastReadSeq:    msg.Seq,
		LastReadAt:     time.Now(),
	}
	return true, nil
}

type notifyCall struct {
	userID string
	msgID  uuid.UUID
}

// fakeNotifier records offline handoffs on a channel so tests can wait for
// the asynchronous notify goroutine.
type fakeNotifier struct {
	calls chan notifyCall
	err   error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{calls: make(chan notifyCall, 16)}
}

func (n *fakeNotifier) Notify(_ context.Context, userID string, msg *domain.Message) error {
	n.calls <- notifyCall{userID: userID, msgID: msg.ID}
	return n.err
}

type fakePresenceStore struct {
	mu      sync.Mutex
	online  map[string]bool
	history []string // "online:<id>" / "offline:<id>"
}

func newFakePresenceStore() *fakePresenceStore {
	return &fakePresenceStore{online: make(map[string]bool)}
}

func (p *fakePresenceStore) SetOnline(_ context.Context, userID string, _ time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[userID] = true
	p.history = append(p.history, "online:"+userID)
	return nil
}

func (p *fakePresenceStore) SetOffline(_ context.Context, userID string, _ time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online, userID)
	p.history = append(p.history, "offline:"+userID)
	return nil
}

func (p *fakePresenceStore) ListOnline(_ context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for id := range p.online {
		out = append(out, id)
	}
	return out, nil
}
