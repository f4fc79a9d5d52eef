package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"codearena/internal/competition/realtime"
)

func TestWatchURL(t *testing.T) {
	cases := []struct {
		base  string
		token string
		want  string
	}{
		{"http://127.0.0.1:8080", "", "ws://127.0.0.1:8080/ws/competitions"},
		{"https://arena.example.com/", "tok", "wss://arena.example.com/ws/competitions?access_token=tok"},
	}
	for _, tc := range cases {
		got, err := WatchURL(tc.base, tc.token)
		if err != nil || got != tc.want {
			t.Fatalf("WatchURL(%q)=%q,%v want %q", tc.base, got, err, tc.want)
		}
	}
	if _, err := WatchURL("ftp://x", ""); err == nil {
		t.Fatalf("expected unsupported scheme error")
	}
}

func TestWatchReceivesRoomEvents(t *testing.T) {
	hub := realtime.NewHub(realtime.Config{}, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") != "tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_ = hub.ServeWS(w, r, 7)
	}))
	defer srv.Close()
	defer hub.Close()

	client := New(srv.URL, time.Second, func() string { return "tok" })
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var (
		mu     sync.Mutex
		events []string
	)
	done := make(chan error, 1)
	go func() {
		done <- client.Watch(ctx, "room42", func(frame []byte) {
			var env realtime.Envelope
			_ = json.Unmarshal(frame, &env)
			mu.Lock()
			events = append(events, env.Event)
			mu.Unlock()
			if env.Event == realtime.EventRoomJoined {
				_ = hub.Publish(context.Background(), "ROOM42", realtime.EventCompetitionStarted, realtime.CompetitionStarted{StartedAt: time.Now()})
			}
			if env.Event == realtime.EventCompetitionStarted {
				cancel()
			}
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watch did not return")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 || events[0] != realtime.EventRoomJoined || events[1] != realtime.EventCompetitionStarted {
		t.Fatalf("unexpected events %v", events)
	}
}
