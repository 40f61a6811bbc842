package hub

import (
	"errors"
	"sync"

	"github.com/VishalGohania/excelidraw/internal/idgen"
)

// Send errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// Connection is one admitted socket. Outbound frames are queued and written
// by a single pump, so frames sent to one connection arrive in send order.
type Connection struct {
	id        string
	accountID string
	name      string

	mu     sync.Mutex
	send   chan []byte
	closed bool

	rooms map[uint]struct{} // guarded by Registry.mu
}

// NewConnection creates an open connection with an empty room set.
func NewConnection(accountID, name string, buffer int) *Connection {
	if buffer <= 0 {
		buffer = 1
	}
	return &Connection{
		id:        idgen.NewULID(),
		accountID: accountID,
		name:      name,
		send:      make(chan []byte, buffer),
		rooms:     make(map[uint]struct{}),
	}
}

// ID is unique per socket and time-ordered.
func (c *Connection) ID() string        { return c.id }
// AccountID and Name identify the admitted account.
func (c *Connection) AccountID() string { return c.accountID }
func (c *Connection) Name() string      { return c.name }

// Send enqueues payload without blocking.
func (c *Connection) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Outbound is drained by the write pump. It is closed once the connection is.
func (c *Connection) Outbound() <-chan []byte { return c.send }

// Closed reports whether the connection has been deregistered.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
