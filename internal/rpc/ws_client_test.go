package rpc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/goleak"

	"github.com/ArielSltty/Orion/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func snapshot(status domain.RequestStatus) StatusEvent {
	return StatusEvent{
		Type:    EventSnapshot,
		Request: &domain.SimulationRequest{ID: "abc123", Status: status},
	}
}

func fastWatchConfig() *WatchConfig {
	return &WatchConfig{
		ReconnectDelay:    10 * time.Millisecond,
		MaxReconnectDelay: 50 * time.Millisecond,
		MaxReconnects:     3,
		ReadTimeout:       time.Second,
		HandshakeTimeout:  time.Second,
	}
}

func TestStatusFeedURL(t *testing.T) {
	tests := []struct {
		service string
		want    string
		wantErr bool
	}{
		{"http://localhost:8080/rpc", "ws://localhost:8080/ws/requests/abc123", false},
		{"https://orion.example.com/api/rpc", "wss://orion.example.com/api/ws/requests/abc123", false},
		{"http://localhost:8080", "ws://localhost:8080/ws/requests/abc123", false},
		{"ftp://localhost", "", true},
	}

	for _, tt := range tests {
		got, err := StatusFeedURL(tt.service, "abc123")
		if tt.wantErr {
			if err == nil {
				t.Errorf("StatusFeedURL(%s): expected error", tt.service)
			}
			continue
		}
		if err != nil {
			t.Fatalf("StatusFeedURL(%s): %v", tt.service, err)
		}
		if got != tt.want {
			t.Errorf("StatusFeedURL(%s) = %s, want %s", tt.service, got, tt.want)
		}
	}
}

func TestStatusWatcher_Watch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/requests/abc123" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		for _, s := range []domain.RequestStatus{domain.StatusPending, domain.StatusProcessing, domain.StatusCompleted} {
			if err := c.WriteJSON(snapshot(s)); err != nil {
				return
			}
		}
		c.ReadMessage()
	}))
	defer server.Close()

	watcher := NewStatusWatcher(server.URL+"/rpc", fastWatchConfig(), nil)

	var seen []domain.RequestStatus
	final, err := watcher.Watch(context.Background(), "abc123", func(r *domain.SimulationRequest) {
		seen = append(seen, r.Status)
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if final.Status != domain.StatusCompleted {
		t.Errorf("expected completed, got %s", final.Status)
	}
	if len(seen) != 3 {
		t.Errorf("expected 3 updates, got %v", seen)
	}
}

func TestStatusWatcher_UnknownRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		c.WriteJSON(StatusEvent{Type: EventError, Error: ErrFeedUnknownRequest.Error()})
	}))
	defer server.Close()

	_, err := NewStatusWatcher(server.URL, fastWatchConfig(), nil).Watch(context.Background(), "nope", nil)
	if !errors.Is(err, ErrFeedUnknownRequest) {
		t.Errorf("expected ErrFeedUnknownRequest, got %v", err)
	}
}

func TestStatusWatcher_Reconnect(t *testing.T) {
	var connections atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		// First connection drops after one snapshot.
		if connections.Add(1) == 1 {
			c.WriteJSON(snapshot(domain.StatusProcessing))
			return
		}
		c.WriteJSON(snapshot(domain.StatusFailed))
		c.ReadMessage()
	}))
	defer server.Close()

	final, err := NewStatusWatcher(server.URL, fastWatchConfig(), nil).Watch(context.Background(), "abc123", nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if final.Status != domain.StatusFailed {
		t.Errorf("expected failed, got %s", final.Status)
	}
	if connections.Load() != 2 {
		t.Errorf("expected 2 connections, got %d", connections.Load())
	}
}

func TestStatusWatcher_GivesUp(t *testing.T) {
	var connections atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		connections.Add(1)
		http.Error(w, "no feed", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewStatusWatcher(server.URL, fastWatchConfig(), nil).Watch(context.Background(), "abc123", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if connections.Load() != 4 {
		t.Errorf("expected 1 attempt + 3 reconnects, got %d", connections.Load())
	}
}

func TestStatusWatcher_Cancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		c.WriteJSON(snapshot(domain.StatusPending))
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan struct{}, 1)

	errCh := make(chan error, 1)
	go func() {
		_, err := NewStatusWatcher(server.URL, fastWatchConfig(), nil).Watch(ctx, "abc123", func(*domain.SimulationRequest) {
			updates <- struct{}{}
		})
		errCh <- err
	}()

	<-updates
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
