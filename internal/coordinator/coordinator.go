package coordinator

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pscheid92/gigmarket/internal/capability"
	"github.com/pscheid92/gigmarket/internal/domain"
)

// coordinatorCmd is the command interface for the Coordinator actor.
type coordinatorCmd interface{ isCoordinatorCmd() }

type baseCoordinatorCmd struct{}

func (baseCoordinatorCmd) isCoordinatorCmd() {}

type registerCmd struct {
	baseCoordinatorCmd
	conn  *Connection
	reply chan error
}

type unregisterCmd struct {
	baseCoordinatorCmd
	conn   *Connection
	reason string
}

type broadcastCmd struct {
	baseCoordinatorCmd
	event  domain.Event
	except *Connection
	reply  chan error // nil for fire-and-forget relays
}

type countCmd struct {
	baseCoordinatorCmd
	reply chan int
}

type retireCmd struct {
	baseCoordinatorCmd
	idleFor time.Duration
	reply   chan bool
}

type stopCmd struct {
	baseCoordinatorCmd
}

// Coordinator owns the connections of one entity. All changes to the
// connection set and all relays run on its actor goroutine.
type Coordinator struct {
	key   domain.EntityKey
	opts  Options
	log   *slog.Logger
	cmdCh chan coordinatorCmd
	done  chan struct{}

	// owned by the actor goroutine
	conns      map[uuid.UUID]*Connection
	emptySince time.Time
}

func newCoordinator(key domain.EntityKey, opts Options) *Coordinator {
	opts = opts.withDefaults()
	c := &Coordinator{
		key:        key,
		opts:       opts,
		log:        slog.With("entity_key", key.String()),
		cmdCh:      make(chan coordinatorCmd, cmdBufferSize),
		done:       make(chan struct{}),
		conns:      make(map[uuid.UUID]*Connection),
		emptySince: opts.Clock.Now(),
	}
	opts.Metrics.Coordinators.Inc()
	go c.run()
	return c
}

func (c *Coordinator) Key() domain.EntityKey {
	return c.key
}

// Stopped reports whether the actor has exited.
func (c *Coordinator) Stopped() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// AcceptConnection authorizes an upgraded socket and adds it to the
// coordinator. Rejected sockets receive a close frame and are closed, except
// for ErrCoordinatorStopped, which leaves the socket open so the caller can
// retry on a fresh coordinator.
func (c *Coordinator) AcceptConnection(token string, ws *websocket.Conn) (*Connection, error) {
	claims, err := c.authorize(token)
	if err != nil {
		c.reject(ws, err)
		return nil, err
	}

	conn := newConnection(claims, c.key, ws)
	reply := make(chan error, 1)
	if err := c.submit(registerCmd{conn: conn, reply: reply}); err != nil {
		return nil, err
	}
	registerErr, err := await(c, reply)
	if err == nil {
		err = registerErr
	}
	if errors.Is(err, ErrCoordinatorStopped) {
		return nil, err
	}
	if err != nil {
		c.reject(ws, err)
		conn.markClosed()
		return nil, err
	}

	attrs := []any{"connection_id", conn.ID.String(), "user_id", conn.UserID, "role", string(conn.Role)}
	if c.isForeignAgent(conn) {
		c.log.Info("Agent connected to foreign entity", append(attrs, "agent_on_foreign_entity", true)...)
	} else {
		c.log.Debug("Connection accepted", attrs...)
	}

	go c.readLoop(conn)
	return conn, nil
}

// HandleBroadcastRequest relays event to every open connection after checking
// the caller's internal secret.
func (c *Coordinator) HandleBroadcastRequest(secret string, event domain.Event) error {
	if !SecretMatches(secret, c.opts.InternalSecret) {
		c.opts.Metrics.Rejections.WithLabelValues(rejectionReason(ErrForbidden)).Inc()
		return ErrForbidden
	}
	if event == nil {
		return fmt.Errorf("%w: missing event", ErrMalformedRequest)
	}
	if !domain.EventAllowedOn(event, c.key.Kind) {
		return fmt.Errorf("%w: %s on %s", ErrEventNotAllowed, event.Type(), c.key.Kind)
	}

	reply := make(chan error, 1)
	if err := c.submit(broadcastCmd{event: event, reply: reply}); err != nil {
		return err
	}
	relayErr, err := await(c, reply)
	if err != nil {
		return err
	}
	return relayErr
}

// ConnectionCount returns the number of connections, or -1 if the actor
// did not answer in time.
func (c *Coordinator) ConnectionCount() int {
	reply := make(chan int, 1)
	if err := c.submit(countCmd{reply: reply}); err != nil {
		return 0
	}
	n, err := await(c, reply)
	if errors.Is(err, ErrCoordinatorStopped) {
		return 0
	}
	if err != nil {
		c.log.Warn("ConnectionCount timed out", "timeout", commandTimeout)
		return -1
	}
	return n
}

// retire stops the coordinator if it has had no connections for idleFor.
func (c *Coordinator) retire(idleFor time.Duration) bool {
	reply := make(chan bool, 1)
	if err := c.submit(retireCmd{idleFor: idleFor, reply: reply}); err != nil {
		return true
	}
	retired, err := await(c, reply)
	if errors.Is(err, ErrCoordinatorStopped) {
		return true
	}
	return err == nil && retired
}

// Stop closes every connection with a going-away frame and ends the actor.
func (c *Coordinator) Stop() {
	if err := c.submit(stopCmd{}); err != nil {
		return
	}

	timer := c.opts.Clock.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case <-c.done:
	case <-timer.Chan():
		c.log.Warn("Coordinator stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (c *Coordinator) authorize(token string) (capability.Claims, error) {
	if c.opts.Verifier == nil {
		return capability.Claims{}, fmt.Errorf("%w: realtime signing is not configured", ErrUnauthorized)
	}
	claims, err := c.opts.Verifier.Verify(token)
	switch {
	case errors.Is(err, capability.ErrExpired):
		return capability.Claims{}, ErrExpired
	case err != nil:
		return capability.Claims{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.EntityID != c.key.String() {
		return capability.Claims{}, fmt.Errorf("%w: token for %q", ErrEntityMismatch, claims.EntityID)
	}
	return claims, nil
}

func (c *Coordinator) reject(ws *websocket.Conn, err error) {
	c.opts.Metrics.Rejections.WithLabelValues(rejectionReason(err)).Inc()
	c.log.Info("Connection rejected", "reason", rejectionReason(err), "error", err)

	msg := websocket.FormatCloseMessage(CloseCodeFor(err), closeText(err))
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.KeepAlive.WriteTimeout))
	_ = ws.Close()
}

func (c *Coordinator) isForeignAgent(conn *Connection) bool {
	if conn.Role != domain.RoleAgent {
		return false
	}
	return c.key.Kind != domain.KindCart || c.key.ID != conn.UserID
}

func (c *Coordinator) readLoop(conn *Connection) {
	defer c.remove(conn, reasonClientClosed)

	conn.ws.SetReadLimit(maxInboundMessage)
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.log.Debug("Connection read failed", "connection_id", conn.ID.String(), "error", err)
			}
			return
		}
		c.handleInbound(conn, data)
	}
}

func (c *Coordinator) handleInbound(conn *Connection, data []byte) {
	event, _, err := domain.DecodeEvent(data)
	if err != nil {
		return
	}

	switch event.(type) {
	case domain.Ping:
		c.replyTo(conn, domain.Pong{})
	case domain.Typing:
		if !conn.Role.CanEmit() {
			c.replyTo(conn, domain.ErrorEvent{Code: "forbidden", Message: "role may not emit events"})
			return
		}
		if c.key.Kind != domain.KindConversation {
			return
		}
		typing := domain.Typing{ConversationID: c.key.ID, UserID: conn.UserID}
		_ = c.submit(broadcastCmd{event: typing, except: conn})
	}
}

func (c *Coordinator) replyTo(conn *Connection, event domain.Event) {
	data, err := domain.EncodeEvent(event, c.opts.Clock.Now())
	if err != nil {
		c.log.Error("Failed to encode reply", "type", event.Type(), "error", err)
		return
	}
	if !conn.writer.enqueue(data) {
		c.remove(conn, reasonSlowConsumer)
	}
}

func (c *Coordinator) remove(conn *Connection, reason string) {
	_ = c.submit(unregisterCmd{conn: conn, reason: reason})
}

func (c *Coordinator) submit(cmd coordinatorCmd) error {
	select {
	case <-c.done:
		return ErrCoordinatorStopped
	default:
	}

	select {
	case c.cmdCh <- cmd:
		return nil
	case <-c.done:
		return ErrCoordinatorStopped
	}
}

// await waits for an actor reply, the command timeout, or actor exit.
func await[T any](c *Coordinator, reply <-chan T) (T, error) {
	timer := c.opts.Clock.NewTimer(commandTimeout)
	defer timer.Stop()

	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-timer.Chan():
		return zero, fmt.Errorf("coordinator %s: %w after %v", c.key, errCommandTimeout, commandTimeout)
	case <-c.done:
		// The actor may have replied right before exiting.
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrCoordinatorStopped
		}
	}
}

func (c *Coordinator) run() {
	defer close(c.done)
	defer c.opts.Metrics.Coordinators.Dec()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Coordinator panic recovered", "panic", r)
			c.closeAll(websocket.CloseInternalServerErr, "internal error")
		}
	}()

	for {
		cmd := <-c.cmdCh
		switch cmd := cmd.(type) {
		case registerCmd:
			c.handleRegister(cmd)
		case unregisterCmd:
			c.handleUnregister(cmd)
		case broadcastCmd:
			c.relay(cmd.event, cmd.except)
			if cmd.reply != nil {
				cmd.reply <- nil
			}
		case countCmd:
			cmd.reply <- len(c.conns)
		case retireCmd:
			idle := len(c.conns) == 0 && c.opts.Clock.Since(c.emptySince) >= cmd.idleFor
			cmd.reply <- idle
			if idle {
				c.log.Debug("Coordinator retired")
				return
			}
		case stopCmd:
			c.closeAll(websocket.CloseGoingAway, "server shutting down")
			return
		default:
			c.log.Warn("Coordinator received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (c *Coordinator) handleRegister(cmd registerCmd) {
	if len(c.conns) >= c.opts.MaxConnections {
		cmd.reply <- fmt.Errorf("%w: limit %d reached", ErrTooManyConnections, c.opts.MaxConnections)
		return
	}

	conn := cmd.conn
	conn.writer = newConnWriter(conn.ws, c.opts, func(reason string) { c.remove(conn, reason) })
	conn.advance(StateOpen)
	c.conns[conn.ID] = conn
	c.opts.Metrics.ActiveConnections.Inc()
	cmd.reply <- nil

	c.relay(domain.PresenceChanged{
		UserID:      conn.UserID,
		Role:        conn.Role,
		Online:      true,
		Connections: c.userConnections(conn.UserID),
	}, nil)
}

func (c *Coordinator) handleUnregister(cmd unregisterCmd) {
	conn, ok := c.conns[cmd.conn.ID]
	if !ok || conn != cmd.conn {
		return
	}

	delete(c.conns, conn.ID)
	conn.advance(StateClosing)
	conn.writer.stop()
	conn.markClosed()

	c.opts.Metrics.ActiveConnections.Dec()
	if cmd.reason != reasonClientClosed {
		c.opts.Metrics.Evictions.WithLabelValues(cmd.reason).Inc()
		c.log.Info("Connection evicted", "connection_id", conn.ID.String(), "user_id", conn.UserID, "reason", cmd.reason)
	}
	if len(c.conns) == 0 {
		c.emptySince = c.opts.Clock.Now()
	}

	c.relay(domain.PresenceChanged{
		UserID:      conn.UserID,
		Role:        conn.Role,
		Online:      false,
		Connections: c.userConnections(conn.UserID),
	}, nil)
}

// relay serializes event once and queues it to every open connection except
// the given one. Connections with a full queue are evicted afterwards.
func (c *Coordinator) relay(event domain.Event, except *Connection) {
	if len(c.conns) == 0 {
		return
	}

	start := c.opts.Clock.Now()
	data, err := domain.EncodeEvent(event, start)
	if err != nil {
		c.log.Error("Failed to encode event", "type", event.Type(), "error", err)
		return
	}

	var slow []*Connection
	for _, conn := range c.conns {
		if conn == except || conn.State() != StateOpen {
			continue
		}
		if !conn.writer.enqueue(data) {
			slow = append(slow, conn)
		}
	}

	c.opts.Metrics.EventsRelayed.WithLabelValues(string(event.Type())).Inc()
	c.opts.Metrics.FanoutDuration.Observe(c.opts.Clock.Since(start).Seconds())

	for _, conn := range slow {
		c.log.Warn("Disconnecting slow client", "connection_id", conn.ID.String())
		c.handleUnregister(unregisterCmd{conn: conn, reason: reasonSlowConsumer})
	}
}

func (c *Coordinator) userConnections(userID int64) int {
	n := 0
	for _, conn := range c.conns {
		if conn.UserID == userID {
			n++
		}
	}
	return n
}

// closeAll closes every connection with the given close frame.
func (c *Coordinator) closeAll(code int, reason string) {
	for id, conn := range c.conns {
		conn.advance(StateClosing)
		if conn.writer != nil {
			conn.writer.stopGraceful(code, reason)
		}
		conn.markClosed()
		delete(c.conns, id)
		c.opts.Metrics.ActiveConnections.Dec()
	}
}

// SecretMatches compares the digests of both values in constant time.
// An empty expected secret never matches.
func SecretMatches(given, expected string) bool {
	if expected == "" {
		return false
	}
	a := sha256.Sum256([]byte(given))
	b := sha256.Sum256([]byte(expected))
	return hmac.Equal(a[:], b[:])
}
