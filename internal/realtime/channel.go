package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"shepherd/internal/platform/config"
	id "shepherd/pkg/domain"
	dErrors "shepherd/pkg/domain-errors"
)

// ConnectionState is the sync channel's lifecycle state.
type ConnectionState string

const (
	StateDisconnected  ConnectionState = "DISCONNECTED"
	StateConnecting    ConnectionState = "CONNECTING"
	StateConnected     ConnectionState = "CONNECTED"
	StateReconnecting  ConnectionState = "RECONNECTING"
	StateDisconnecting ConnectionState = "DISCONNECTING"
	StateFailed        ConnectionState = "FAILED"
)

// Reconciler folds inbound messages into local state before they are handed
// to subscribers. Implemented by the cache package.
type Reconciler interface {
	Reconcile(ctx context.Context, msg Message) (bool, error)
}

type subscription struct {
	kind      MessageType
	childID   id.ChildID
	serviceID id.ServiceID
}

// Channel is a client of the realtime sync endpoint. One Channel is one
// logical session: Connect starts it, Close ends it, and everything in
// between (reconnects, heartbeats, subscription re-issue) is handled
// internally. A Channel that was closed or reached FAILED is spent; build a
// new one.
//
// Subscriptions survive reconnects: the desired set lives on the Channel and
// is re-issued verbatim after every successful reconnect, because the server
// drops per-connection subscription state with the connection.
type Channel struct {
	cfg        config.RealtimeConfig
	logger     *slog.Logger
	dialer     *websocket.Dialer
	reconciler Reconciler
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     ConnectionState
	closed    bool
	conn      *websocket.Conn
	subs      map[subscription]struct{}
	sessionID string
	loopDone  chan struct{}

	writeMu sync.Mutex

	events chan Message
}

type Option func(*Channel)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) { c.logger = logger }
}

func WithReconciler(r Reconciler) Option {
	return func(c *Channel) { c.reconciler = r }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) { c.dialer = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Channel) { c.now = now }
}

func NewChannel(cfg config.RealtimeConfig, opts ...Option) *Channel {
	c := &Channel{
		cfg:    cfg,
		logger: slog.Default(),
		dialer: websocket.DefaultDialer,
		now:    time.Now,
		state:  StateDisconnected,
		subs:   make(map[subscription]struct{}),
		events: make(chan Message, 64),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Events delivers classified inbound messages, already reconciled into the
// cache when a reconciler is attached. The channel is closed once the sync
// loop stops, whether by Close or by reaching FAILED.
func (c *Channel) Events() <-chan Message {
	return c.events
}

func (c *Channel) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Connect dials the server and starts the sync loop. It fails fast: the
// caller decides what an unreachable server at startup means, while drops
// after a successful Connect are retried internally with backoff.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return dErrors.New(dErrors.CodeConnectionFailed, "channel is closed")
	}
	if c.state != StateDisconnected {
		state := c.state
		c.mu.Unlock()
		return dErrors.Newf(dErrors.CodeConnectionFailed, "cannot connect from state %s", state)
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.transition(StateDisconnected)
		return dErrors.Wrap(err, dErrors.CodeConnectionFailed, "dial sync server")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return dErrors.New(dErrors.CodeConnectionFailed, "channel is closed")
	}
	c.conn = conn
	c.loopDone = make(chan struct{})
	c.setStateLocked(StateConnected)
	subs := c.snapshotSubsLocked()
	c.mu.Unlock()

	// A reused desired set from before Connect is issued now.
	c.issueSubscriptions(conn, subs)

	go c.run(conn)
	return nil
}

// Close tears the session down and waits for the sync loop to stop. Close is
// final: the session's context and event stream are spent, so a closed
// Channel refuses further Connects. Safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.setStateLocked(StateDisconnecting)
	conn := c.conn
	loopDone := c.loopDone
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			c.now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	if loopDone != nil {
		<-loopDone
	} else {
		// Connect never started a sync loop; the event stream still ends here.
		close(c.events)
	}
	c.transition(StateDisconnected)
	return nil
}

// SubscribeToChild adds the child to the desired subscription set and, when
// connected, tells the server. Duplicate subscriptions are no-ops.
func (c *Channel) SubscribeToChild(childID id.ChildID) error {
	if childID.IsEmpty() {
		return dErrors.New(dErrors.CodeInvalidInput, "childId is required")
	}
	return c.subscribe(subscription{kind: TypeSubscribeChild, childID: childID})
}

// SubscribeToService is SubscribeToChild for service capacity updates.
func (c *Channel) SubscribeToService(serviceID id.ServiceID) error {
	if serviceID.IsEmpty() {
		return dErrors.New(dErrors.CodeInvalidInput, "serviceId is required")
	}
	return c.subscribe(subscription{kind: TypeSubscribeService, serviceID: serviceID})
}

// UnsubscribeFromChild removes the subscription; unknown subscriptions are
// no-ops.
func (c *Channel) UnsubscribeFromChild(childID id.ChildID) error {
	return c.unsubscribe(subscription{kind: TypeSubscribeChild, childID: childID})
}

// UnsubscribeFromService removes the subscription; unknown subscriptions are
// no-ops.
func (c *Channel) UnsubscribeFromService(serviceID id.ServiceID) error {
	return c.unsubscribe(subscription{kind: TypeSubscribeService, serviceID: serviceID})
}

func (c *Channel) subscribe(sub subscription) error {
	c.mu.Lock()
	if _, exists := c.subs[sub]; exists {
		c.mu.Unlock()
		return nil
	}
	c.subs[sub] = struct{}{}
	conn, connected := c.conn, c.state == StateConnected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.sendControl(conn, sub.kind, sub.childID, sub.serviceID)
}

func (c *Channel) unsubscribe(sub subscription) error {
	c.mu.Lock()
	if _, exists := c.subs[sub]; !exists {
		c.mu.Unlock()
		return nil
	}
	delete(c.subs, sub)
	conn, connected := c.conn, c.state == StateConnected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.sendControl(conn, TypeUnsubscribe, sub.childID, sub.serviceID)
}

// run owns the connection for the life of the session: it pumps reads and
// turns every connection loss into a reconnect cycle until Close or the
// retry budget runs out.
func (c *Channel) run(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		close(c.loopDone)
		c.mu.Unlock()
		close(c.events)
	}()

	for {
		c.readPump(conn)
		if c.ctx.Err() != nil {
			return
		}

		c.transition(StateReconnecting)
		next, err := c.reconnect()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Error("sync channel gave up reconnecting",
				"maxTries", c.cfg.MaxReconnectTries, "error", err)
			c.transition(StateFailed)
			return
		}
		conn = next
	}
}

// readPump reads until the connection dies. The read deadline doubles as the
// missed-heartbeat detector: a server that goes silent past the heartbeat
// window fails the next read, which run treats as a connection loss.
func (c *Channel) readPump(conn *websocket.Conn) {
	for {
		if c.cfg.HeartbeatWindow > 0 {
			_ = conn.SetReadDeadline(c.now().Add(c.cfg.HeartbeatWindow))
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Warn("sync connection lost", "error", err)
			}
			_ = conn.Close()
			return
		}

		msg := Classify(raw)
		switch msg.Type {
		case TypeHeartbeat:
			if err := c.sendControl(conn, TypeHeartbeatResponse, "", ""); err != nil {
				c.logger.Warn("heartbeat response failed", "error", err)
			}
		case TypeConnectionEstablished:
			c.mu.Lock()
			c.sessionID = msg.SessionID
			c.mu.Unlock()
			c.emit(msg)
		default:
			if c.reconciler != nil {
				if _, err := c.reconciler.Reconcile(c.ctx, msg); err != nil {
					c.logger.Warn("reconciliation failed", "type", msg.Type, "error", err)
				}
			}
			c.emit(msg)
		}
	}
}

func (c *Channel) reconnect() (*websocket.Conn, error) {
	var conn *websocket.Conn
	attempt := 0
	op := func() error {
		attempt++
		var err error
		conn, err = c.dial(c.ctx)
		if err != nil {
			c.logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(c.backoffPolicy(), c.ctx)); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.conn = conn
	c.setStateLocked(StateConnected)
	subs := c.snapshotSubsLocked()
	c.mu.Unlock()

	c.issueSubscriptions(conn, subs)
	c.logger.Info("sync channel reconnected", "attempts", attempt)
	return conn, nil
}

// backoffPolicy grows the retry delay exponentially from InitialBackoff,
// capped at MaxBackoff. Delays are deterministic so a fleet of kiosks on one
// site behaves predictably; MaxReconnectTries bounds the total attempts.
func (c *Channel) backoffPolicy() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialBackoff
	bo.MaxInterval = c.cfg.MaxBackoff
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	// NewExponentialBackOff latches its defaults via Reset before the field
	// assignments above; reset again so they take effect from the first delay.
	bo.Reset()

	if c.cfg.MaxReconnectTries > 0 {
		return backoff.WithMaxRetries(bo, uint64(c.cfg.MaxReconnectTries-1))
	}
	return bo
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.ServerURL, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return nil, err
	}
	return conn, nil
}

func (c *Channel) sendControl(conn *websocket.Conn, kind MessageType, childID id.ChildID, serviceID id.ServiceID) error {
	frame, err := encodeControl(kind, childID, serviceID, c.now())
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode control frame")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return dErrors.Wrap(err, dErrors.CodeNetwork, "send control frame")
	}
	return nil
}

func (c *Channel) issueSubscriptions(conn *websocket.Conn, subs []subscription) {
	for _, sub := range subs {
		if err := c.sendControl(conn, sub.kind, sub.childID, sub.serviceID); err != nil {
			// The next reconnect cycle re-issues the whole set.
			c.logger.Warn("subscription re-issue failed",
				"childId", sub.childID, "serviceId", sub.serviceID, "error", err)
			return
		}
	}
}

func (c *Channel) snapshotSubsLocked() []subscription {
	subs := make([]subscription, 0, len(c.subs))
	for sub := range c.subs {
		subs = append(subs, sub)
	}
	return subs
}

// emit hands a message to the consumer without ever blocking the read loop.
// A consumer that falls 64 messages behind loses the oldest guarantees of
// the stream and will catch up through LWW reconciliation instead.
func (c *Channel) emit(msg Message) {
	select {
	case c.events <- msg:
	default:
		c.logger.Warn("event buffer full, dropping message", "type", msg.Type)
	}
}

func (c *Channel) transition(next ConnectionState) {
	c.mu.Lock()
	c.setStateLocked(next)
	c.mu.Unlock()
}

func (c *Channel) setStateLocked(next ConnectionState) {
	if c.state == next {
		return
	}
	c.logger.Debug("sync channel state change", "from", string(c.state), "to", string(next))
	c.state = next
}
