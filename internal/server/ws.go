package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/panhanyan804/AI-Christmas-Tree/internal/gesture"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// SignalHub pushes every published gesture signal to connected WebSocket
// clients so the scene can ease toward fresh values each render tick.
type SignalHub struct {
	tuning  gesture.Tuning
	clients map[string]*websocket.Conn
	mu      sync.RWMutex
}

// NewSignalHub creates a SignalHub. The tuning is used to attach the
// target formation state to each broadcast.
func NewSignalHub(tuning gesture.Tuning) *SignalHub {
	return &SignalHub{
		tuning:  tuning,
		clients: make(map[string]*websocket.Conn),
	}
}

// signalMessage is one broadcast frame.
type signalMessage struct {
	Openness  float64       `json:"openness"`
	CenterX   float64       `json:"centerX"`
	CenterY   float64       `json:"centerY"`
	State     gesture.State `json:"state"`
	Timestamp int64         `json:"timestamp"`
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *SignalHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	id := uuid.NewString()

	h.mu.Lock()
	h.clients[id] = conn
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, id)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Publish sends a signal update to every connected client. Wire it to the
// deriver's update hook.
func (h *SignalHub) Publish(sig gesture.Signal) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.clients) == 0 {
		return
	}

	msg, err := json.Marshal(signalMessage{
		Openness:  sig.Openness,
		CenterX:   sig.CenterX,
		CenterY:   sig.CenterY,
		State:     gesture.TargetState(sig.Openness, h.tuning),
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}

	for _, conn := range h.clients {
		conn.WriteMessage(websocket.TextMessage, msg)
	}
}

// ClientCount reports how many scene clients are connected.
func (h *SignalHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
