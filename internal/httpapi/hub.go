package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// TaskEvent is one status-change notification broadcast to every
// connected websocket client.
type TaskEvent struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	Kind   string `json:"kind"`
	At     int64  `json:"at"`
}

// Hub fans out TaskEvents to every connected client, disconnecting any
// client whose outbound buffer is full (its send channel is closed and it
// is removed) rather than blocking the scheduler that published them.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	publish chan TaskEvent
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newHub() *Hub {
	return &Hub{
		clients: map[*client]struct{}{},
		publish: make(chan TaskEvent, 256),
	}
}

func (h *Hub) run() {
	for evt := range h.publish {
		data, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		h.mu.Lock()
		for c := range h.clients {
			select {
			case c.send <- data:
			default:
				close(c.send)
				delete(h.clients, c)
			}
		}
		h.mu.Unlock()
	}
}

// Broadcast publishes evt to every connected client. Non-blocking: a full
// publish buffer drops the event rather than stalling the caller.
func (h *Hub) Broadcast(evt TaskEvent) {
	select {
	case h.publish <- evt:
	default:
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// GET /api/v1/ws — upgrades to a websocket feed of task status changes.
func (h *Handler) Websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "err", err)
		return
	}

	cl := &client{conn: conn, send: make(chan []byte, 32)}
	h.hub.mu.Lock()
	h.hub.clients[cl] = struct{}{}
	h.hub.mu.Unlock()

	go cl.writeLoop()
	cl.readLoop(h.hub)
}

func (cl *client) writeLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	defer cl.conn.Close()
	for {
		select {
		case msg, ok := <-cl.send:
			if !ok {
				cl.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop only exists to detect client disconnects; the API is
// publish-only from the server's side.
func (cl *client) readLoop(h *Hub) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, cl)
		h.mu.Unlock()
	}()
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}
