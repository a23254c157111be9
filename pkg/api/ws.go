package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// sendBuffer is how many updates may queue for one subscriber before it
	// is dropped as too slow.
	sendBuffer = 16
	writeWait  = 10 * time.Second
)

// WSMessage is the envelope pushed to dashboard subscribers.
type WSMessage struct {
	Type    string `json:"type"` // progress, summary
	Payload any    `json:"payload,omitempty"`
}

type subscriber struct {
	conn *websocket.Conn
	send chan WSMessage
}

// ProgressHub fans progress updates out to websocket subscribers. Each
// subscriber has its own queue and writer goroutine; Broadcast never waits
// on the network.
type ProgressHub struct {
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu   sync.Mutex
	subs map[*websocket.Conn]*subscriber
	last *WSMessage
}

func NewProgressHub(logger *slog.Logger) *ProgressHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:  logger,
		subs: map[*websocket.Conn]*subscriber{},
	}
}

// HandleProgress upgrades the request and streams every later update. The
// most recent update is replayed on connect.
func (h *ProgressHub) HandleProgress(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	sub := &subscriber{conn: c, send: make(chan WSMessage, sendBuffer)}
	h.mu.Lock()
	if h.last != nil {
		sub.send <- *h.last
	}
	h.subs[c] = sub
	h.mu.Unlock()
	h.log.Debug("progress subscriber connected", "remote", r.RemoteAddr)
	go h.writeLoop(sub)
	go h.readLoop(c)
}

// Broadcast queues msg for every subscriber. A subscriber whose queue is
// full is disconnected.
func (h *ProgressHub) Broadcast(msg WSMessage) {
	h.mu.Lock()
	h.last = &msg
	var slow []*websocket.Conn
	for c, sub := range h.subs {
		select {
		case sub.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()
	for _, c := range slow {
		h.log.Warn("dropping slow progress subscriber", "remote", c.RemoteAddr().String())
		h.closeSub(c)
	}
}

// Subscribers is the number of connected clients.
func (h *ProgressHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *ProgressHub) writeLoop(sub *subscriber) {
	defer h.closeSub(sub.conn)
	for msg := range sub.send {
		_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := sub.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (h *ProgressHub) readLoop(c *websocket.Conn) {
	defer h.closeSub(c)
	for {
		if _, _, err := c.NextReader(); err != nil {
			return
		}
	}
}

// closeSub unregisters c and closes its queue. Queues are only closed while
// holding h.mu, the same lock Broadcast sends under.
func (h *ProgressHub) closeSub(c *websocket.Conn) {
	h.mu.Lock()
	sub, ok := h.subs[c]
	if ok {
		delete(h.subs, c)
		close(sub.send)
	}
	h.mu.Unlock()
	_ = c.Close()
	if ok {
		h.log.Debug("progress subscriber disconnected")
	}
}
