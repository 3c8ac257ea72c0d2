package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sanuda/internal/core/contracts"
	"sanuda/internal/core/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PresenceTracker runs the per-user Offline→Online→Offline state machine.
// Online happens on the first session registration; Offline only after the
// last session is gone AND the debounce window elapses with no new
// registration, so tab refreshes and flaky networks never flap presence.
// The pending offline timer is stored per user and cancelled on reconnect.
type PresenceTracker struct {
	log      *slog.Logger
	registry contracts.Registry
	users    domain.UserRepository
	convs    domain.ConversationRepository
	messages domain.MessageRepository
	mirror   contracts.PresenceStore
	receipts *ReceiptService
	debounce time.Duration

	mu     sync.Mutex
	online map[string]bool
	timers map[string]*time.Timer
}

func NewPresenceTracker(
	log *slog.Logger,
	registry contracts.Registry,
	users domain.UserRepository,
	convs domain.ConversationRepository,
	messages domain.MessageRepository,
	mirror contracts.PresenceStore,
	receipts *ReceiptService,
	debounce time.Duration,
) *PresenceTracker {
	return &PresenceTracker{
		log:      log,
		registry: registry,
		users:    users,
		convs:    convs,
		messages: messages,
		mirror:   mirror,
		receipts: receipts,
		debounce: debounce,
		online:   make(map[string]bool),
		timers:   make(map[string]*time.Timer),
	}
}

// HandleConnect is called after the session is registered. It cancels any
// pending offline transition and, when the user was confirmed offline,
// performs the Online transition. The catch-up delivery pass runs whenever
// this is the user's only live session, debounced reconnects included:
// messages sent during the gap were not marked delivered.
func (t *PresenceTracker) HandleConnect(ctx context.Context, userID string) {
	ctx, span := tracer.Start(ctx, "PresenceTracker.HandleConnect", trace.WithAttributes(
		attribute.String("user_id", userID),
	))
	defer span.End()

	t.mu.Lock()
	if timer, ok := t.timers[userID]; ok {
		timer.Stop()
		delete(t.timers, userID)
	}
	wasOnline := t.online[userID]
	t.online[userID] = true
	t.mu.Unlock()

	firstSession := len(t.registry.ConnectionsFor(userID)) == 1

	if !wasOnline {
		now := time.Now()
		if err := t.users.SetOnlineStatus(ctx, userID, true, now); err != nil {
			span.RecordError(err)
			t.log.ErrorContext(ctx, "presence - online write failed", "user_id", userID, "err", err)
		}
		if err := t.mirror.SetOnline(ctx, userID, now); err != nil {
			t.log.WarnContext(ctx, "presence - mirror online failed", "user_id", userID, "err", err)
		}
		t.broadcastPresence(ctx, userID, true, now)
		t.log.InfoContext(ctx, "presence - user online", "user_id", userID)
	}

	if firstSession {
		t.catchUp(ctx, userID)
	}
}

// HandleDisconnect is called after the session is unregistered. When other
// sessions for the user remain, nothing happens. Otherwise the offline
// transition is armed behind the debounce window.
func (t *PresenceTracker) HandleDisconnect(ctx context.Context, userID string) {
	if t.registry.IsUserOnline(userID) {
		return
	}
	if t.debounce <= 0 {
		// Degraded mode: broadcast offline immediately rather than hang.
		t.confirmOffline(userID)
		return
	}
	t.mu.Lock()
	if timer, ok := t.timers[userID]; ok {
		timer.Stop()
	}
	t.timers[userID] = time.AfterFunc(t.debounce, func() {
		t.confirmOffline(userID)
	})
	t.mu.Unlock()
	t.log.DebugContext(ctx, "presence - offline debounce armed", "user_id", userID, "window", t.debounce)
}

// Close cancels all pending offline timers. Used on shutdown.
func (t *PresenceTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for userID, timer := range t.timers {
		timer.Stop()
		delete(t.timers, userID)
	}
}

func (t *PresenceTracker) confirmOffline(userID string) {
	t.mu.Lock()
	delete(t.timers, userID)
	if t.registry.IsUserOnline(userID) || !t.online[userID] {
		// A reconnect raced the timer; stay online.
		t.mu.Unlock()
		return
	}
	t.online[userID] = false
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	now := time.Now()
	if err := t.users.SetOnlineStatus(ctx, userID, false, now); err != nil {
		t.log.ErrorContext(ctx, "presence - offline write failed", "user_id", userID, "err", err)
	}
	if err := t.mirror.SetOffline(ctx, userID, now); err != nil {
		t.log.WarnContext(ctx, "presence - mirror offline failed", "user_id", userID, "err", err)
	}
	t.broadcastPresence(ctx, userID, false, now)
	t.log.Info("presence - user offline", "user_id", userID)
}

func (t *PresenceTracker) broadcastPresence(ctx context.Context, userID string, online bool, at time.Time) {
	convs, err := t.convs.ListUserConversations(ctx, userID)
	if err != nil {
		t.log.ErrorContext(ctx, "presence - conversations lookup failed", "user_id", userID, "err", err)
		return
	}
	event := domain.PresenceEvent{
		Type:       domain.TypePresence,
		UserID:     userID,
		IsOnline:   online,
		LastSeenAt: at,
	}
	for _, convID := range convs {
		t.registry.Broadcast(ctx, convID.String(), event, "")
	}
}

// catchUp reconciles delivery state after a reconnect: every message missed
// while offline is pushed to the user's sessions and marked delivered,
// which in turn pushes the updated aggregated status to each sender. This
// also self-heals transient per-connection push failures.
func (t *PresenceTracker) catchUp(ctx context.Context, userID string) {
	convs, err := t.convs.ListUserConversations(ctx, userID)
	if err != nil {
		t.log.ErrorContext(ctx, "presence - catch-up conversations lookup failed", "user_id", userID, "err", err)
		return
	}
	caught := 0
	for _, convID := range convs {
		msgs, err := t.messages.ListUndelivered(ctx, convID, userID)
		if err != nil {
			t.log.ErrorContext(ctx, "presence - catch-up list failed", "conv_id", convID, "user_id", userID, "err", err)
			continue
		}
		for _, msg := range msgs {
			t.registry.SendToUser(ctx, userID, domain.MessageEvent{
				Type:    domain.TypeMessage,
				Message: wireMessage(msg),
			})
			if err := t.receipts.MarkDelivered(ctx, msg.ID, userID); err != nil {
				t.log.WarnContext(ctx, "presence - catch-up deliver failed", "message_id", msg.ID, "user_id", userID, "err", err)
				continue
			}
			caught++
		}
	}
	if caught > 0 {
		t.log.InfoContext(ctx, "presence - catch-up pass complete", "user_id", userID, "delivered", caught)
	}
}
