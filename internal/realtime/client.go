package realtime

import "sync"

// Client is one connected socket. UserID is zero for anonymous
// connections, which may only subscribe.
//
// Send is never closed by the server so concurrent broadcasters cannot
// panic; done signals shutdown instead.
type Client struct {
	ID     string
	UserID uint64
	Send   chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient builds a client with a bounded send queue.
func NewClient(id string, userID uint64, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Client{
		ID:     id,
		UserID: userID,
		Send:   make(chan []byte, queueSize),
		done:   make(chan struct{}),
	}
}

func (c *Client) Anonymous() bool { return c.UserID == 0 }

// Done is closed once the client is shutting down.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close signals shutdown. It is idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// deliver queues payload without blocking. It reports false when the
// client is closing or its queue is full.
func (c *Client) deliver(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}
