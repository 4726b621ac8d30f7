package ws

import (
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"chat-realtime/internal/observability"
)

// Client is one websocket connection. Outbound frames go through a bounded queue drained by
// a single writer, which keeps per-connection ordering.
type Client struct {
	info    ConnInfo
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	closeOnce sync.Once
	closed    chan struct{}
}

func newClient(conn *websocket.Conn, info ConnInfo, buffer int, limiter *rate.Limiter) *Client {
	if buffer <= 0 {
		buffer = 1
	}
	return &Client{
		info:    info,
		conn:    conn,
		send:    make(chan []byte, buffer),
		limiter: limiter,
		closed:  make(chan struct{}),
	}
}

func (c *Client) Info() ConnInfo { return c.info }

// enqueue never blocks: a full queue drops the frame.
func (c *Client) enqueue(event Event, frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- frame:
		observability.IncWSEvent("out", string(event))
		return true
	default:
		observability.IncWSDropped(string(event))
		return false
	}
}

// allow reports whether another inbound event fits the rate limit.
func (c *Client) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// Close stops the writer, which then closes the socket.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}
