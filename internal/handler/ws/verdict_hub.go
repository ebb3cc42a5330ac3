package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"EventHorizon/internal/domain/models"
	applogger "EventHorizon/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// Event is one frame pushed to subscribers.
type Event struct {
	Type    string          `json:"type"`
	Session string          `json:"session,omitempty"`
	Verdict *models.Verdict `json:"verdict,omitempty"`
}

type client struct {
	id             string
	send           chan Event
	candidatesOnly bool
}

// Hub fans verdicts out to websocket subscribers. A subscriber whose buffer
// is full is disconnected rather than allowed to slow the publisher.
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	clients  map[*client]struct{}
	log      *applogger.Logger
	closed   bool
}

// NewHub accepts connections from allowedOrigins; an empty list allows any
// origin.
func NewHub(allowedOrigins []string, log *applogger.Logger) *Hub {
	if log == nil {
		log = applogger.Nop()
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				return allowed[r.Header.Get("Origin")]
			},
		},
		clients: make(map[*client]struct{}),
		log:     log.With(applogger.String("component", "ws_hub")),
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues v for every subscriber that wants it.
func (h *Hub) Broadcast(v models.Verdict) {
	ev := Event{Type: "verdict", Verdict: &v}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.candidatesOnly && !v.IsCandidate() {
			continue
		}
		select {
		case c.send <- ev:
		default:
			h.log.Warn("ws subscriber too slow, dropping", applogger.String("session", c.id))
			h.removeLocked(c)
		}
	}
}

// Handle upgrades an echo request. ?candidates=true limits the stream to
// HighRankCandidate verdicts.
func (h *Hub) Handle(c echo.Context) error {
	h.ServeHTTP(c.Response(), c.Request())
	return nil
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", applogger.Error(err))
		return
	}
	cl := &client{
		id:             uuid.NewString(),
		send:           make(chan Event, sendBuffer),
		candidatesOnly: r.URL.Query().Get("candidates") == "true",
	}
	cl.send <- Event{Type: "hello", Session: cl.id}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("ws subscriber connected", applogger.String("session", cl.id))

	go h.writePump(conn, cl)
	h.readPump(conn, cl)
}

// readPump only watches for close frames and keeps the pong deadline fresh.
func (h *Hub) readPump(conn *websocket.Conn, cl *client) {
	defer func() {
		h.mu.Lock()
		h.removeLocked(cl)
		h.mu.Unlock()
	}()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case ev, ok := <-cl.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Name, Write and Close make the hub a batch sink.
func (h *Hub) Name() string { return "websocket" }

func (h *Hub) Write(_ context.Context, r models.Result) error {
	if r.Verdict != nil {
		h.Broadcast(*r.Verdict)
	}
	return nil
}

// Close disconnects every subscriber.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
	return nil
}
