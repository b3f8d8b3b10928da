package frontend

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jo-hoe/bunnyclock/internal/backend/render"
	"github.com/jo-hoe/bunnyclock/internal/metrics"
	"github.com/jo-hoe/bunnyclock/internal/scheduler"
)

const (
	clientSendBuffer = 16
	writeWait        = 5 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = pongWait * 9 / 10
)

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type imageMessage struct {
	Type string `json:"type"`
	scheduler.Snapshot
}

type tickMessage struct {
	Type string `json:"type"`
	Time string `json:"time"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans out image swaps and clock ticks to every connected page. A client that cannot
// keep up is dropped instead of slowing down the others.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		metrics: m,
	}
}

// Serve registers conn and blocks until the client goes away or the hub is closed.
func (h *Hub) Serve(conn *websocket.Conn, initial []byte) {
	c := &client{conn: conn, send: make(chan []byte, clientSendBuffer)}
	if initial != nil {
		c.send <- initial
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.wg.Add(1)
	h.mu.Unlock()
	h.metrics.SetLiveClients(count)
	slog.Debug("hub: client connected", "remote", conn.RemoteAddr().String(), "clients", count)

	defer h.wg.Done()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(c)
	}()
	h.readPump(c)
	<-done
}

func (h *Hub) BroadcastSnapshot(snapshot scheduler.Snapshot) {
	h.broadcast(encodeImage(snapshot))
}

func (h *Hub) BroadcastTick(t time.Time) {
	h.broadcast(encodeTick(t))
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their handlers to return.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
	h.mu.Unlock()
	h.metrics.SetLiveClients(0)
	h.wg.Wait()
}

func (h *Hub) broadcast(msg []byte) {
	if msg == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slog.Warn("hub: dropping slow client", "remote", c.conn.RemoteAddr().String())
			h.removeLocked(c)
		}
	}
	h.metrics.SetLiveClients(len(h.clients))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	h.removeLocked(c)
	count := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetLiveClients(count)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// readPump discards incoming messages; it exists to notice closed connections and pongs.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func encodeImage(snapshot scheduler.Snapshot) []byte {
	msg, err := json.Marshal(imageMessage{Type: "image", Snapshot: snapshot})
	if err != nil {
		slog.Error("hub: failed to encode image message", "error", err)
		return nil
	}
	return msg
}

func encodeTick(t time.Time) []byte {
	msg, err := json.Marshal(tickMessage{Type: "tick", Time: render.FormatDigital(t)})
	if err != nil {
		slog.Error("hub: failed to encode tick message", "error", err)
		return nil
	}
	return msg
}

func upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return Upgrader.Upgrade(w, r, nil)
}
