package realtime

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"codearena/pkg/utils/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultSendBuffer      = 32
	defaultMaxMessageBytes = 4096
	defaultWriteWait       = 10 * time.Second
	defaultPongWait        = 60 * time.Second
)

// Membership decides whether a user may subscribe to a room.
type Membership interface {
	IsParticipant(ctx context.Context, roomCode string, userID int64) (bool, error)
}

// MembershipFunc adapts a function to Membership.
type MembershipFunc func(ctx context.Context, roomCode string, userID int64) (bool, error)

func (f MembershipFunc) IsParticipant(ctx context.Context, roomCode string, userID int64) (bool, error) {
	return f(ctx, roomCode, userID)
}

// Config holds hub settings.
type Config struct {
	SendBuffer      int           `yaml:"sendBuffer"`
	MaxMessageBytes int64         `yaml:"maxMessageBytes"`
	WriteWait       time.Duration `yaml:"writeWait"`
	PongWait        time.Duration `yaml:"pongWait"`
	// AllowedOrigins restricts the upgrade Origin header; empty allows any.
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

func (c *Config) applyDefaults() {
	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = defaultMaxMessageBytes
	}
	if c.WriteWait <= 0 {
		c.WriteWait = defaultWriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	}
}

// Hub tracks websocket clients grouped by room code. Delivery is best effort:
// a client whose send queue is full is disconnected.
type Hub struct {
	cfg        Config
	membership Membership
	upgrader   websocket.Upgrader

	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]struct{}
}

// NewHub creates a hub. membership may be nil to allow any room.
func NewHub(cfg Config, membership Membership) *Hub {
	cfg.applyDefaults()
	h := &Hub{
		cfg:        cfg,
		membership: membership,
		rooms:      make(map[string]map[*Client]struct{}),
		clients:    make(map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Publish broadcasts an event to every local client in room.
func (h *Hub) Publish(ctx context.Context, room, event string, data interface{}) error {
	frame, err := Encode(event, data)
	if err != nil {
		return err
	}
	delivered := h.Broadcast(room, frame, nil)
	logger.Debug(ctx, "room event delivered",
		zap.String("room", room),
		zap.String("event", event),
		zap.Int("clients", delivered),
	)
	return nil
}

// Broadcast queues frame for every client in room except one, returning how many accepted it.
func (h *Hub) Broadcast(room string, frame []byte, except *Client) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.enqueue(frame) {
			delivered++
		}
	}
	return delivered
}

// RoomSize is the number of local clients subscribed to room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()
	for _, c := range all {
		c.close()
	}
}

// ServeWS upgrades the request and serves the connection for userID until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID int64) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := newClient(h, conn, userID)
	h.register(c)
	logger.Info(r.Context(), "websocket connected", zap.String("conn_id", c.id), zap.Int64("user_id", userID))

	go c.writePump()
	go c.readPump(context.WithoutCancel(r.Context()))
	return nil
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leave(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := c.rooms[room]; !ok {
		return false
	}
	delete(c.rooms, room)
	h.dropLocked(c, room)
	return true
}

func (h *Hub) inRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

// unregister removes c everywhere and returns the rooms it was in.
func (h *Hub) unregister(c *Client) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return nil
	}
	delete(h.clients, c)
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
		h.dropLocked(c, room)
	}
	c.rooms = make(map[string]struct{})
	return rooms
}

func (h *Hub) dropLocked(c *Client, room string) {
	members := h.rooms[room]
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
