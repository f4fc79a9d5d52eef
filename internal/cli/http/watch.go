package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"codearena/internal/competition/realtime"

	"github.com/gorilla/websocket"
)

const watchPath = "/ws/competitions"

// WatchURL converts the API base into the websocket endpoint carrying token.
func WatchURL(baseURL, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + watchPath)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if token != "" {
		q := u.Query()
		q.Set("access_token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Watch joins room over the websocket and hands every frame to onFrame until ctx ends
// or the server closes the connection.
func (c *Client) Watch(ctx context.Context, room string, onFrame func([]byte)) error {
	target, err := WatchURL(c.baseURL, c.token())
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	defer func() { _ = conn.Close() }()

	join, err := realtime.Encode(realtime.EventJoinRoom, realtime.RoomRef{RoomID: strings.ToUpper(room)})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
		return fmt.Errorf("send join-room failed: %w", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("websocket read failed: %w", err)
		}
		onFrame(frame)
	}
}

// ErrNoToken is returned when a command needs a bearer token and none is set.
var ErrNoToken = errors.New("no access token, use: set token <jwt>")
