package handlers

import (
	"context"
	"net/http"
	"time"

	"sanuda/internal/app/server/ws"
	"sanuda/internal/core/domain"
	"sanuda/internal/core/services"
	"sanuda/internal/platform/logger"
	"sanuda/pkg/middleware"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type WSHandler struct {
	manager *services.ManagerService
}

func NewWSHandler(manager *services.ManagerService) *WSHandler {
	return &WSHandler{manager: manager}
}

func (h *WSHandler) Handler(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	span := trace.SpanFromContext(r.Context())

	userID, ok := r.Context().Value(middleware.UserIDKey).(string)
	if !ok || userID == "" {
		log.ErrorContext(r.Context(), "ws handler - unauthorised missing user_id")
		http.Error(w, "Unauthorized: user id missing", http.StatusUnauthorized)
		return
	}
	span.SetAttributes(attribute.String("user.id", userID))

	// The session outlives the HTTP request's cancellation.
	sessionCtx := context.WithoutCancel(r.Context())
	ctx, cancel := context.WithCancel(sessionCtx)
	defer cancel()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true // tighten later
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.ErrorContext(r.Context(), "ws handler - upgrade failed", "err", err)
		return
	}
	conn.SetCloseHandler(func(code int, text string) error {
		cancel()
		return nil
	})

	socket := ws.NewWebSocket(ctx, conn, log)
	client := ws.NewClient(ctx, socket)
	sess := h.manager.HandleConnect(ctx, userID, client)
	defer h.manager.HandleDisconnect(ctx, sess)
	defer client.Close()

	_ = sess.Send(ctx, domain.HandshakeEvent{
		Type:      domain.TypeHandshake,
		SessionID: sess.ID(),
		UserID:    userID,
		Timestamp: time.Now(),
	})
	log.InfoContext(r.Context(), "ws handler - connection established", "user_id", userID, "session_id", sess.ID())

	// One dispatcher per connection; the read loop only queues, so frames
	// are processed in arrival order and a slow handler backpressures the
	// socket instead of reordering it.
	frames := make(chan []byte, 64)
	go h.manager.DispatchLoop(ctx, sess, frames)

	socket.ReadLoop(func(data []byte) {
		select {
		case frames <- data:
		case <-ctx.Done():
		}
	})
}
