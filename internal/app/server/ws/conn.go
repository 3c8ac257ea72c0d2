package ws

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// WebSocket wraps a gorilla connection with deadlines and a keepalive loop.
type WebSocket struct {
	*websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger
}

func NewWebSocket(parent context.Context, conn *websocket.Conn, log *slog.Logger) *WebSocket {
	ctx, cancel := context.WithCancel(parent)
	w := &WebSocket{Conn: conn, ctx: ctx, cancel: cancel, log: log}
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go w.pingLoop()
	return w
}

func (w *WebSocket) WriteMessage(data []byte) error {
	_ = w.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.Conn.WriteMessage(websocket.TextMessage, data)
}

// ReadLoop blocks until the connection errors or closes, invoking onMsg for
// every non-empty frame.
func (w *WebSocket) ReadLoop(onMsg func([]byte)) {
	defer w.Close()
	for {
		_, data, err := w.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				w.log.Warn("ws - unexpected close", "err", err)
			}
			return
		}
		if len(data) > 0 {
			onMsg(data)
		}
	}
}

func (w *WebSocket) pingLoop() {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-t.C:
			if err := w.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (w *WebSocket) Close() {
	w.cancel()
	_ = w.Conn.Close()
}
