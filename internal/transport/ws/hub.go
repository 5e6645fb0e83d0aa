// Package ws is the websocket transport: it upgrades HTTP connections,
// assigns connection identities, pumps frames to and from the game service,
// and forwards room broadcasts to subscribed connections.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/blastarena/server/internal/config"
	"github.com/blastarena/server/internal/game/event"
	"github.com/blastarena/server/internal/gameserver"
	"github.com/blastarena/server/internal/observability"
)

// Hub owns every live websocket connection. It is the only layer that knows
// sockets exist; the game service sees connection IDs and byte frames.
type Hub struct {
	svc      *gameserver.Service
	bus      *event.Bus
	cfg      config.WebsocketConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

// NewHub builds the hub. Origin checks are disabled: the game is served to
// browser clients on arbitrary hosts and the protocol carries no ambient
// credentials.
func NewHub(svc *gameserver.Service, bus *event.Bus, cfg config.WebsocketConfig, logger *zap.Logger) *Hub {
	return &Hub{
		svc:    svc,
		bus:    bus,
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// ServeHTTP upgrades the request and runs the connection until it drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("remote", r.RemoteAddr),
			zap.Error(err))
		return
	}

	id := uuid.NewString()
	c := &client{
		id:     id,
		hub:    h,
		sock:   sock,
		send:   make(chan []byte, h.cfg.SendQueueSize),
		logger: h.logger.With(zap.String("conn_id", id)),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sock.Close()
		return
	}
	h.clients[c.id] = c
	h.mu.Unlock()

	c.logger.Info("client connected", zap.String("remote", r.RemoteAddr))
	go c.writePump()
	c.readPump()
}

// ConnCount returns the number of live connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every live connection. New upgrades are refused.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.sock.Close()
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	_, present := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()
	if !present {
		return
	}

	c.detach()
	h.svc.Disconnect(c.id)

	c.sendMu.Lock()
	c.sendClosed = true
	close(c.send)
	c.sendMu.Unlock()

	c.logger.Info("client disconnected")
}

// client is one websocket connection. All dispatch and room attachment runs
// on the read pump goroutine; the write pump is the only socket writer.
type client struct {
	id     string
	hub    *Hub
	sock   *websocket.Conn
	send   chan []byte
	logger *zap.Logger

	// sendMu guards sendClosed: the broadcast forwarder may race the drop
	// path, and a send on a closed channel would panic.
	sendMu     sync.Mutex
	sendClosed bool

	// roomID is the topic this connection is attached to; read pump only.
	roomID string
	sub    *event.Subscription
}

func (c *client) readPump() {
	defer c.hub.drop(c)

	c.sock.SetReadDeadline(time.Now().Add(c.hub.cfg.PongTimeout))
	c.sock.SetPongHandler(func(string) error {
		c.sock.SetReadDeadline(time.Now().Add(c.hub.cfg.PongTimeout))
		return nil
	})

	for {
		_, frame, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("read error", zap.Error(err))
			}
			return
		}

		res := c.hub.svc.Dispatch(c.id, frame)
		if res.DetachRoom != "" {
			c.detach()
		}
		if res.AttachRoom != "" {
			c.attach(res.AttachRoom)
		}
		if res.Ack != nil {
			c.enqueueJSON(res.Ack)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.sock.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if !ok {
				c.sock.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// attach subscribes the connection to its room topic and forwards events to
// the send queue until the topic closes or the connection detaches. A
// subscription on a different topic is torn down first: a connection hears
// at most one room at a time.
func (c *client) attach(roomID string) {
	if c.sub != nil && c.roomID != roomID {
		c.detach()
	}
	sub := c.hub.bus.Subscribe(roomID, c.id, c.hub.cfg.SendQueueSize)
	c.roomID = roomID
	c.sub = sub

	logger := observability.RoomLogger(c.logger, roomID)
	logger.Debug("attached to room topic")
	go func() {
		for ev := range sub.C() {
			c.enqueueJSON(ev)
		}
		logger.Debug("room topic closed")
	}()
}

func (c *client) detach() {
	if c.sub == nil {
		return
	}
	c.hub.bus.Unsubscribe(c.roomID, c.id)
	c.roomID = ""
	c.sub = nil
}

// enqueueJSON marshals v and queues it without blocking. A slow consumer
// loses frames rather than stalling the room.
func (c *client) enqueueJSON(v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("marshal outbound frame", zap.Error(err))
		return
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	select {
	case c.send <- frame:
	default:
		c.logger.Warn("send queue full, dropping frame")
	}
}
