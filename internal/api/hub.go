package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ArielSltty/Orion/internal/domain"
	"github.com/ArielSltty/Orion/internal/observability"
	"github.com/ArielSltty/Orion/internal/rpc"
	"github.com/ArielSltty/Orion/internal/service"
)

// Default status feed timings.
const (
	DefaultPingInterval = 30 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// subscriber holds the latest unsent snapshot for one feed connection.
type subscriber struct {
	updates chan *domain.SimulationRequest
}

// offer replaces any pending snapshot with req. Callers hold Hub.mu.
func (s *subscriber) offer(req *domain.SimulationRequest) {
	select {
	case s.updates <- req:
		return
	default:
	}
	select {
	case <-s.updates:
	default:
	}
	s.updates <- req
}

// Hub fans request snapshots out to websocket subscribers. It implements
// service.Publisher.
type Hub struct {
	svc          *service.Service
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	writeTimeout time.Duration
	metrics      *observability.Metrics
	logger       *zap.Logger

	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	closed chan struct{}
	once   sync.Once
}

// NewHub creates a Hub. SetService must be called before serving feeds.
func NewHub(metrics *observability.Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Origins are enforced by the CORS layer.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		pingInterval: DefaultPingInterval,
		writeTimeout: DefaultWriteTimeout,
		metrics:      metrics,
		logger:       logger.Named("hub"),
		subs:         make(map[string]map[*subscriber]struct{}),
		closed:       make(chan struct{}),
	}
}

// SetService attaches the service the hub reads initial snapshots from.
// The service is built with the hub as its publisher, hence the setter.
func (h *Hub) SetService(svc *service.Service) {
	h.svc = svc
}

// Publish forwards req to every subscriber of its id.
func (h *Hub) Publish(req *domain.SimulationRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[req.ID] {
		sub.offer(req)
	}
}

// Close ends every open feed.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.closed) })
}

// Subscribers returns the number of open feeds for id.
func (h *Hub) Subscribers(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[id])
}

func (h *Hub) subscribe(id string) *subscriber {
	sub := &subscriber{updates: make(chan *domain.SimulationRequest, 1)}
	h.mu.Lock()
	if h.subs[id] == nil {
		h.subs[id] = make(map[*subscriber]struct{})
	}
	h.subs[id][sub] = struct{}{}
	h.metrics.AddStatusSubscribers(1)
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(id string, sub *subscriber) {
	h.mu.Lock()
	delete(h.subs[id], sub)
	if len(h.subs[id]) == 0 {
		delete(h.subs, id)
	}
	h.metrics.AddStatusSubscribers(-1)
	h.mu.Unlock()
}

// ServeFeed is the gin handler for GET /ws/requests/:id. It sends the
// current snapshot, then every later state until the request is terminal.
func (h *Hub) ServeFeed(c *gin.Context) {
	id := c.Param("id")
	logger := h.logger.With(zap.String("request_id", id))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Subscribe before reading so no transition falls between the two.
	sub := h.subscribe(id)
	defer h.unsubscribe(id, sub)

	current, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		logger.Warn("status feed lookup failed", zap.Error(err))
		h.write(conn, rpc.StatusEvent{Type: rpc.EventError, Error: err.Error()})
		return
	}
	if current == nil {
		h.write(conn, rpc.StatusEvent{Type: rpc.EventError, Error: rpc.ErrFeedUnknownRequest.Error()})
		return
	}
	if err := h.write(conn, rpc.StatusEvent{Type: rpc.EventSnapshot, Request: current}); err != nil {
		return
	}
	if current.Status.IsTerminal() {
		h.closeNormal(conn)
		return
	}

	// The client never sends data; reading surfaces its close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	last := current.Status
	for {
		select {
		case req := <-sub.updates:
			// Drop snapshots older than the one already sent.
			if !last.CanTransition(req.Status) {
				continue
			}
			last = req.Status
			if err := h.write(conn, rpc.StatusEvent{Type: rpc.EventSnapshot, Request: req}); err != nil {
				logger.Debug("status feed write failed", zap.Error(err))
				return
			}
			if req.Status.IsTerminal() {
				h.closeNormal(conn)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				return
			}
		case <-gone:
			return
		case <-h.closed:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(h.writeTimeout))
			return
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, event rpc.StatusEvent) error {
	conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	return conn.WriteJSON(event)
}

func (h *Hub) closeNormal(conn *websocket.Conn) {
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(h.writeTimeout))
}
