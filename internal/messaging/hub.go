package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/aimerfeng/Gigsy/internal/broker"
	"github.com/aimerfeng/Gigsy/internal/logging"
	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/aimerfeng/Gigsy/internal/monitoring"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

// Hub fans stored messages out to websocket subscribers. It listens on the
// domain-event bus, so a message sent through any instance reaches
// subscribers connected to every instance.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[uuid.UUID]map[*client]struct{}
	sub    broker.Subscription
	logger zerolog.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// NewHub subscribes a hub to message events on bus
func NewHub(bus broker.Bus) (*Hub, error) {
	h := &Hub{
		rooms:  make(map[uuid.UUID]map[*client]struct{}),
		logger: logging.NewLogger("chat-hub"),
	}
	sub, err := bus.Subscribe(broker.SubjectMessageCreated, h.dispatch)
	if err != nil {
		return nil, err
	}
	h.sub = sub
	return h, nil
}

// NewUpgrader builds a websocket upgrader that accepts the given origins.
// A "*" entry accepts any origin.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || slices.Contains(allowedOrigins, "*") {
				return true
			}
			return slices.Contains(allowedOrigins, origin)
		},
	}
}

func (h *Hub) dispatch(_ context.Context, _ string, data []byte) {
	var msg models.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Warn().Err(err).Msg("Dropping undecodable message event")
		return
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.rooms[msg.ConversationID] {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn().Str("conversation_id", msg.ConversationID.String()).Msg("Disconnecting slow subscriber")
		h.remove(msg.ConversationID, c)
	}
}

// Subscribers returns the number of live subscribers for a conversation
func (h *Hub) Subscribers(conversationID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

func (h *Hub) add(conversationID uuid.UUID, c *client) {
	h.mu.Lock()
	room := h.rooms[conversationID]
	if room == nil {
		room = make(map[*client]struct{})
		h.rooms[conversationID] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()
	monitoring.AddStreamSubscribers(1)
}

func (h *Hub) remove(conversationID uuid.UUID, c *client) {
	h.mu.Lock()
	room := h.rooms[conversationID]
	_, ok := room[c]
	if ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	h.mu.Unlock()
	if ok {
		c.close()
		monitoring.AddStreamSubscribers(-1)
	}
}

// Serve streams a conversation to conn until the peer goes away or ctx ends.
// Callers check membership before upgrading.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, conversationID uuid.UUID) {
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.add(conversationID, c)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(c)
	}()

	go func() {
		select {
		case <-ctx.Done():
			h.remove(conversationID, c)
		case <-done:
		}
	}()

	h.readPump(c)
	h.remove(conversationID, c)
	<-done
}

// readPump only services control frames; clients send over HTTP
func (h *Hub) readPump(c *client) {
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
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// Close stops listening and disconnects every subscriber
func (h *Hub) Close() {
	if h.sub != nil {
		_ = h.sub.Unsubscribe()
	}
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[uuid.UUID]map[*client]struct{})
	h.mu.Unlock()

	for _, room := range rooms {
		for c := range room {
			c.close()
			monitoring.AddStreamSubscribers(-1)
		}
	}
}
