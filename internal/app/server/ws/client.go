package ws

import (
	"context"
	"errors"
	"sync"
)

// RuntimeClient is the registry-facing side of one connection: a buffered
// outbound queue drained by a single writer goroutine, so a slow reader
// never blocks a broadcast.
type RuntimeClient struct {
	ctx    context.Context
	cancel context.CancelFunc
	ws     *WebSocket
	out    chan []byte
	once   sync.Once
}

func NewClient(parent context.Context, ws *WebSocket) *RuntimeClient {
	ctx, cancel := context.WithCancel(parent)
	c := &RuntimeClient{
		ctx:    ctx,
		cancel: cancel,
		ws:     ws,
		out:    make(chan []byte, 256),
	}
	go c.writeLoop()
	return c
}

// Send queues data for the writer goroutine. A full queue counts as a
// transient delivery failure for this one connection.
func (c *RuntimeClient) Send(ctx context.Context, data []byte) error {
	select {
	case c.out <- data:
		return nil
	case <-c.ctx.Done():
		return errors.New("client closed")
	default:
		return errors.New("client send queue full")
	}
}

func (c *RuntimeClient) Close() {
	c.once.Do(func() {
		c.cancel()
		c.ws.Close()
	})
}

func (c *RuntimeClient) writeLoop() {
	defer c.Close()
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.out:
			if err := c.ws.WriteMessage(data); err != nil {
				return
			}
		}
	}
}
