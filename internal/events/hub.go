package events

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/promnight/prom-match/internal/models"
)

// ServerEvent is the frame written to websocket clients.
type ServerEvent struct {
	Type string `json:"type"` // "info" | "match.found"
	Data any    `json:"data,omitempty"`
}

// MatchNotice tells one side of a match who they were paired with.
type MatchNotice struct {
	MatchID   int    `json:"match_id"`
	MatchName string `json:"match_name"`
	Score     int    `json:"score"`
}

type client struct {
	userID int
	conn   *websocket.Conn
	send   chan ServerEvent
}

// Hub tracks websocket connections per user. A user may hold several.
type Hub struct {
	mu            sync.RWMutex
	clientsByUser map[int]map[*client]bool
	upgrader      websocket.Upgrader
	logger        *zap.Logger
}

func NewHub(logger *zap.Logger, checkOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		clientsByUser: make(map[int]map[*client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger.Named("hub"),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clientsByUser[c.userID] == nil {
		h.clientsByUser[c.userID] = make(map[*client]bool)
	}
	h.clientsByUser[c.userID][c] = true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if peers, ok := h.clientsByUser[c.userID]; ok {
		delete(peers, c)
		if len(peers) == 0 {
			delete(h.clientsByUser, c.userID)
		}
	}
}

// Connected reports how many connections the user holds.
func (h *Hub) Connected(userID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clientsByUser[userID])
}

func (h *Hub) SendToUser(userID int, evt ServerEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clientsByUser[userID] {
		select {
		case c.send <- evt:
		default:
			// slow reader, drop
		}
	}
}

// MatchFound pushes a notice to both sides of the match.
func (h *Hub) MatchFound(_ context.Context, requester, match models.User, score int) {
	h.SendToUser(requester.ID, ServerEvent{
		Type: "match.found",
		Data: MatchNotice{MatchID: match.ID, MatchName: match.Name, Score: score},
	})
	h.SendToUser(match.ID, ServerEvent{
		Type: "match.found",
		Data: MatchNotice{MatchID: requester.ID, MatchName: requester.Name, Score: score},
	})
}

// Serve upgrades the request and keeps the connection registered until it closes.
// The caller has already authenticated userID.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID int) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Int("user_id", userID), zap.Error(err))
		return
	}

	c := &client{userID: userID, conn: conn, send: make(chan ServerEvent, 16)}
	h.register(c)
	c.send <- ServerEvent{Type: "info", Data: "connected"}

	go h.writer(c)
	h.reader(c)
}

// reader only services pings and close frames; clients never send commands.
func (h *Hub) reader(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writer(c *client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
