package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"codearena/pkg/utils/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client is one websocket connection. rooms is guarded by the hub mutex.
type Client struct {
	id     string
	userID int64
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	rooms  map[string]struct{}
}

func newClient(h *Hub, conn *websocket.Conn, userID int64) *Client {
	return &Client{
		id:     uuid.NewString(),
		userID: userID,
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.cfg.SendBuffer),
		done:   make(chan struct{}),
		rooms:  make(map[string]struct{}),
	}
}

// enqueue never blocks; a full queue drops the connection.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		logger.Warn(context.Background(), "websocket send queue full, dropping connection",
			zap.String("conn_id", c.id), zap.Int64("user_id", c.userID))
		c.close()
		return false
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) reply(event string, data interface{}) {
	frame, err := Encode(event, data)
	if err != nil {
		return
	}
	c.enqueue(frame)
}

func (c *Client) fail(message string) {
	c.reply(EventError, ErrorMessage{Message: message})
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		for _, room := range c.hub.unregister(c) {
			c.announceLeft(room)
		}
		c.close()
		logger.Info(ctx, "websocket disconnected", zap.String("conn_id", c.id), zap.Int64("user_id", c.userID))
	}()

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug(ctx, "websocket read failed", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		c.handle(ctx, frame)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.hub.cfg.WriteWait))
			return
		}
	}
}

func (c *Client) handle(ctx context.Context, frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Event == "" {
		c.fail("malformed frame")
		return
	}

	switch env.Event {
	case EventJoinRoom:
		ref, ok := c.roomRef(env)
		if !ok {
			return
		}
		if m := c.hub.membership; m != nil {
			member, err := m.IsParticipant(ctx, ref.RoomID, c.userID)
			if err != nil {
				c.fail("room lookup failed")
				return
			}
			if !member {
				c.fail("not a participant of room " + ref.RoomID)
				return
			}
		}
		c.hub.join(c, ref.RoomID)
		c.reply(EventRoomJoined, RoomJoined{RoomID: ref.RoomID})

	case EventCoding:
		ref, ok := c.joinedRoom(env)
		if !ok {
			return
		}
		out, err := Encode(EventOpponentCoding, OpponentCoding{UserID: c.userID})
		if err == nil {
			c.hub.Broadcast(ref.RoomID, out, c)
		}

	case EventSubmission:
		// submission-made is emitted by the judge path once the attempt is recorded.
		if _, ok := c.joinedRoom(env); !ok {
			return
		}
		logger.Debug(ctx, "client submission notice", zap.String("conn_id", c.id))

	case EventLeaveRoom:
		ref, ok := c.roomRef(env)
		if !ok {
			return
		}
		if c.hub.leave(c, ref.RoomID) {
			c.announceLeft(ref.RoomID)
		}

	default:
		c.fail("unknown event " + env.Event)
	}
}

func (c *Client) roomRef(env Envelope) (RoomRef, bool) {
	var ref RoomRef
	if len(env.Data) == 0 || json.Unmarshal(env.Data, &ref) != nil {
		c.fail("malformed " + env.Event + " payload")
		return RoomRef{}, false
	}
	ref.RoomID = strings.ToUpper(strings.TrimSpace(ref.RoomID))
	if ref.RoomID == "" {
		c.fail("roomId is required")
		return RoomRef{}, false
	}
	return ref, true
}

func (c *Client) joinedRoom(env Envelope) (RoomRef, bool) {
	ref, ok := c.roomRef(env)
	if !ok {
		return RoomRef{}, false
	}
	if !c.hub.inRoom(c, ref.RoomID) {
		c.fail("join room " + ref.RoomID + " first")
		return RoomRef{}, false
	}
	return ref, true
}

func (c *Client) announceLeft(room string) {
	frame, err := Encode(EventParticipantLeft, ParticipantLeft{UserID: c.userID})
	if err == nil {
		c.hub.Broadcast(room, frame, c)
	}
}
