package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	writeTimeout = 10 * time.Second
	sendBuffer   = 32
)

const (
	EventToast   = "toast"
	EventSession = "session"
)

// Envelope is the JSON frame written to view clients.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Hub pushes toasts and session updates to every connected websocket client.
// Slow clients are disconnected rather than allowed to block broadcasters.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	closed   bool
	log      *slog.Logger
	upgrader websocket.Upgrader
	snapshot func() Envelope

	pingPeriod time.Duration
	pongWait   time.Duration
}

// NewHub returns a Hub. snapshot, when non-nil, is sent to each client right
// after it connects so the view starts from the current state.
func NewHub(log *slog.Logger, snapshot func() Envelope) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		snapshot:   snapshot,
		pingPeriod: pingPeriod,
		pongWait:   pongWait,
	}
}

// Notify implements Notifier.
func (h *Hub) Notify(n Notification) {
	h.Broadcast(EventToast, n)
}

// Broadcast sends one envelope to all clients without blocking.
func (h *Hub) Broadcast(kind string, data any) {
	msg, err := json.Marshal(Envelope{Type: kind, Data: data})
	if err != nil {
		h.log.Error("encode event failed", slog.String("type", kind), slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.deliverLocked(c, msg)
	}
}

// deliverLocked queues msg for c, disconnecting it when its buffer is full.
func (h *Hub) deliverLocked(c *client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		h.log.Warn("dropping slow view client")
		delete(h.clients, c)
		c.close()
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	// Registered before the snapshot is taken; session frames carry a
	// version, so a broadcast queued ahead of the snapshot is still ordered.
	if h.snapshot != nil {
		if msg, err := json.Marshal(h.snapshot()); err == nil {
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				h.deliverLocked(c, msg)
			}
			h.mu.Unlock()
		}
	}

	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop drains inbound frames so control messages are processed. A peer
// that stops answering pings is dropped once the read deadline passes.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
