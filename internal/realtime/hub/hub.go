// Package hub is the server side of the realtime sync channel: it accepts
// websocket connections from kiosks and parent devices, tracks what each one
// subscribed to, and fans successful transitions out as sync messages.
package hub

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"shepherd/internal/checkin/models"
	"shepherd/internal/realtime"
	id "shepherd/pkg/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

var connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "shepherd_realtime_connections",
	Help: "Currently connected sync clients",
})

const (
	heartbeatInterval = 25 * time.Second
	writeWait         = 10 * time.Second
	// Client buffer size before the hub declares the connection dead.
	sendBuffer = 64
)

type client struct {
	sessionID string
	conn      *websocket.Conn
	send      chan []byte

	mu       sync.Mutex
	children map[id.ChildID]struct{}
	services map[id.ServiceID]struct{}
}

func (c *client) subscribedToChild(childID id.ChildID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.children[childID]
	return ok
}

func (c *client) subscribedToService(serviceID id.ServiceID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.services[serviceID]
	return ok
}

// Hub broadcasts transition facts to subscribed connections. It implements
// the check-in service's Notifier, so wiring it in is one option at
// construction time.
type Hub struct {
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type Option func(*Hub)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) { h.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

func New(opts ...Option) *Hub {
	h := &Hub{
		logger:  slog.Default(),
		now:     time.Now,
		clients: make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleWS upgrades the request and runs the connection until it drops.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	cl := &client{
		sessionID: uuid.NewString(),
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		children:  make(map[id.ChildID]struct{}),
		services:  make(map[id.ServiceID]struct{}),
	}

	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	connectedClients.Inc()
	h.logger.Info("sync client connected", "session_id", cl.sessionID)

	if frame, err := realtime.EncodeConnectionEstablished(cl.sessionID, h.now()); err == nil {
		cl.send <- frame
	}

	go h.writePump(cl)
	h.readPump(cl)
}

// ConnectionCount reports how many clients are connected.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ChildStatusChanged broadcasts a child status transition.
func (h *Hub) ChildStatusChanged(child models.Child, previous id.CheckInStatus, serviceID id.ServiceID, at time.Time) {
	frame, err := realtime.EncodeChildStatusUpdate(child, previous, serviceID, at)
	if err != nil {
		h.logger.Error("encode child status update", "error", err)
		return
	}
	h.broadcast(frame, func(cl *client) bool {
		return cl.subscribedToChild(child.ID) || cl.subscribedToService(serviceID)
	})
}

// ServiceCapacityChanged broadcasts an occupancy change.
func (h *Hub) ServiceCapacityChanged(service models.KidsService, previousCapacity int, at time.Time) {
	frame, err := realtime.EncodeServiceCapacityUpdate(service, previousCapacity, at)
	if err != nil {
		h.logger.Error("encode capacity update", "error", err)
		return
	}
	h.broadcast(frame, func(cl *client) bool {
		return cl.subscribedToService(service.ID)
	})
}

// RecordChanged broadcasts a check-in record transition.
func (h *Hub) RecordChanged(record models.CheckInRecord, at time.Time) {
	frame, err := realtime.EncodeRecordUpdate(record, at)
	if err != nil {
		h.logger.Error("encode record update", "error", err)
		return
	}
	h.broadcast(frame, func(cl *client) bool {
		return cl.subscribedToChild(record.ChildID) || cl.subscribedToService(record.ServiceID)
	})
}

func (h *Hub) broadcast(frame []byte, interested func(*client) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for cl := range h.clients {
		if !interested(cl) {
			continue
		}
		select {
		case cl.send <- frame:
		default:
			// The writer is stuck; readPump notices the closed conn and
			// unregisters.
			h.logger.Warn("sync client too slow, dropping connection", "session_id", cl.sessionID)
			cl.conn.Close()
		}
	}
}

// readPump consumes subscription controls and heartbeat responses until the
// connection drops, then unregisters the client.
func (h *Hub) readPump(cl *client) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, cl)
		h.mu.Unlock()
		connectedClients.Dec()
		close(cl.send)
		cl.conn.Close()
		h.logger.Info("sync client disconnected", "session_id", cl.sessionID)
	}()

	for {
		_, raw, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}
		msgType, childID, serviceID, ok := realtime.ParseControl(raw)
		if !ok {
			continue
		}

		cl.mu.Lock()
		switch msgType {
		case realtime.TypeSubscribeChild:
			if !childID.IsEmpty() {
				cl.children[childID] = struct{}{}
			}
		case realtime.TypeSubscribeService:
			if !serviceID.IsEmpty() {
				cl.services[serviceID] = struct{}{}
			}
		case realtime.TypeUnsubscribe:
			delete(cl.children, childID)
			delete(cl.services, serviceID)
		}
		cl.mu.Unlock()
	}
}

// writePump owns all writes on the connection: queued frames plus the
// periodic heartbeat.
func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(heartbeatInterval)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-cl.send:
			if !ok {
				_ = cl.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					h.now().Add(writeWait))
				return
			}
			_ = cl.conn.SetWriteDeadline(h.now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			frame, err := realtime.EncodeHeartbeat(h.now())
			if err != nil {
				continue
			}
			_ = cl.conn.SetWriteDeadline(h.now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
	}
}
