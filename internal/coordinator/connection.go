package coordinator

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pscheid92/gigmarket/internal/capability"
	"github.com/pscheid92/gigmarket/internal/domain"
)

// ConnState is the lifecycle of a connection. States only move forward.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is one authorized socket owned by a coordinator.
type Connection struct {
	ID        uuid.UUID
	UserID    int64
	Role      domain.Role
	EntityKey domain.EntityKey

	ws        *websocket.Conn
	writer    *connWriter
	state     atomic.Int32
	closed    chan struct{}
	closeOnce sync.Once
}

func newConnection(claims capability.Claims, key domain.EntityKey, ws *websocket.Conn) *Connection {
	return &Connection{
		ID:        uuid.New(),
		UserID:    claims.SubjectUserID,
		Role:      claims.Role,
		EntityKey: key,
		ws:        ws,
		closed:    make(chan struct{}),
	}
}

func (c *Connection) State() ConnState {
	return ConnState(c.state.Load())
}

// Done is closed once the connection reaches StateClosed.
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}

// advance moves the connection to a later state. It reports false when the
// connection is already at or past that state.
func (c *Connection) advance(to ConnState) bool {
	for {
		cur := c.state.Load()
		if ConnState(cur) >= to {
			return false
		}
		if c.state.CompareAndSwap(cur, int32(to)) {
			return true
		}
	}
}

func (c *Connection) markClosed() {
	c.advance(StateClosed)
	c.closeOnce.Do(func() { close(c.closed) })
}
