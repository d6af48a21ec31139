package http

import (
	"net/http"
	"sync"
	"time"

	"skybridge/internal/infrastructure/streaming"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// the status API binds to localhost by default
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// EventHub fans session lifecycle events out to websocket subscribers.
// It satisfies streaming.EventSink. Slow subscribers are dropped rather
// than allowed to stall the publisher.
type EventHub struct {
	mu           sync.Mutex
	nextID       int
	subscribers  map[int]*websocket.Conn
	writeTimeout time.Duration
	logger       *zap.SugaredLogger
}

func NewEventHub(logger *zap.SugaredLogger) *EventHub {
	return &EventHub{
		subscribers:  make(map[int]*websocket.Conn),
		writeTimeout: 5 * time.Second,
		logger:       logger,
	}
}

// Publish sends the event to every subscriber.
func (h *EventHub) Publish(event streaming.SessionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, conn := range h.subscribers {
		_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := conn.WriteJSON(event); err != nil {
			h.logger.Debugw("dropping event subscriber", "id", id, "error", err)
			_ = conn.Close()
			delete(h.subscribers, id)
		}
	}
}

// Handle upgrades the request and registers the subscriber until it
// disconnects.
func (h *EventHub) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subscribers[id] = conn
	h.mu.Unlock()

	h.logger.Infow("event subscriber connected", "id", id, "remote", conn.RemoteAddr().String())

	// the feed is write-only; reads only detect disconnect
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.mu.Lock()
				if _, ok := h.subscribers[id]; ok {
					delete(h.subscribers, id)
					_ = conn.Close()
				}
				h.mu.Unlock()
				h.logger.Infow("event subscriber disconnected", "id", id)
				return
			}
		}
	}()
}

// Close disconnects all subscribers.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.subscribers {
		_ = conn.Close()
		delete(h.subscribers, id)
	}
}
