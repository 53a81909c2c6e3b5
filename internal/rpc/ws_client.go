package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ArielSltty/Orion/internal/domain"
)

// ErrFeedUnknownRequest is returned by Watch when the service does not know the request.
var ErrFeedUnknownRequest = errors.New("status feed: unknown request")

// WatchConfig configures StatusWatcher behavior.
type WatchConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// MaxReconnects bounds consecutive failed connections. Zero means no reconnects.
	MaxReconnects int
	// ReadTimeout is timeout for reading messages; server pings extend it.
	ReadTimeout time.Duration
	// HandshakeTimeout bounds the websocket upgrade.
	HandshakeTimeout time.Duration
}

// DefaultWatchConfig returns default status feed configuration.
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		MaxReconnects:     5,
		ReadTimeout:       60 * time.Second,
		HandshakeTimeout:  10 * time.Second,
	}
}

// StatusWatcher follows a request over the service's websocket status feed.
type StatusWatcher struct {
	serviceURL string
	config     WatchConfig
	logger     *zap.Logger
}

// NewStatusWatcher creates a watcher for the service at serviceURL (the JSON-RPC endpoint).
func NewStatusWatcher(serviceURL string, config *WatchConfig, logger *zap.Logger) *StatusWatcher {
	cfg := DefaultWatchConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusWatcher{serviceURL: serviceURL, config: cfg, logger: logger}
}

// StatusFeedURL derives the websocket feed URL for requestID from the
// JSON-RPC endpoint, e.g. http://host/rpc -> ws://host/ws/requests/<id>.
func StatusFeedURL(serviceURL, requestID string) (string, error) {
	u, err := url.Parse(serviceURL)
	if err != nil {
		return "", fmt.Errorf("parse service url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported service url scheme %q", u.Scheme)
	}

	base := strings.TrimSuffix(u.Path, "/")
	base = strings.TrimSuffix(base, "/rpc")
	u.Path = path.Join("/", base, "ws", "requests", url.PathEscape(requestID))
	u.RawQuery = ""
	return u.String(), nil
}

// Watch streams snapshots of requestID to onUpdate until a terminal status
// arrives, ctx is done or reconnects are exhausted. Returns the terminal snapshot.
func (w *StatusWatcher) Watch(ctx context.Context, requestID string, onUpdate func(*domain.SimulationRequest)) (*domain.SimulationRequest, error) {
	feedURL, err := StatusFeedURL(w.serviceURL, requestID)
	if err != nil {
		return nil, err
	}

	delay := w.config.ReconnectDelay
	failures := 0

	for {
		final, progressed, err := w.session(ctx, feedURL, onUpdate)
		if final != nil || errors.Is(err, ErrFeedUnknownRequest) {
			return final, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Reset backoff after a connection that delivered data
		if progressed {
			failures = 0
			delay = w.config.ReconnectDelay
		}
		failures++
		if failures > w.config.MaxReconnects {
			return nil, fmt.Errorf("status feed: giving up after %d reconnects: %w", w.config.MaxReconnects, err)
		}

		w.logger.Debug("status feed disconnected, reconnecting",
			zap.String("request_id", requestID),
			zap.Duration("delay", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > w.config.MaxReconnectDelay {
			delay = w.config.MaxReconnectDelay
		}
	}
}

// session runs one websocket connection. progressed reports whether any
// snapshot was received.
func (w *StatusWatcher) session(ctx context.Context, feedURL string, onUpdate func(*domain.SimulationRequest)) (final *domain.SimulationRequest, progressed bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: w.config.HandshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, feedURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	// Unblock ReadJSON when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(w.config.ReadTimeout))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(w.config.ReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	for {
		var event StatusEvent
		if err := conn.ReadJSON(&event); err != nil {
			return nil, progressed, fmt.Errorf("read status event: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(w.config.ReadTimeout))

		switch event.Type {
		case EventError:
			if event.Error == ErrFeedUnknownRequest.Error() {
				return nil, progressed, ErrFeedUnknownRequest
			}
			return nil, progressed, fmt.Errorf("status feed: %s", event.Error)
		case EventSnapshot:
			if event.Request == nil {
				continue
			}
			progressed = true
			if onUpdate != nil {
				onUpdate(event.Request)
			}
			if event.Request.Status.IsTerminal() {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return event.Request, true, nil
			}
		}
	}
}
