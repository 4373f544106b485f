package dashboard

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/normanking/voicedeck/internal/settings"
	"github.com/rs/zerolog"
)

// Frame is one outbound websocket message: an event type and its payload
type Frame struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Command is one inbound websocket message. Action selects the operation,
// the remaining fields carry its arguments.
type Command struct {
	Action  string                `json:"action"`
	Text    string                `json:"text"`
	Monitor string                `json:"monitor,omitempty"`
	Enabled bool                  `json:"enabled,omitempty"`
	Voice   *settings.VoiceUpdate `json:"voice,omitempty"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

const (
	broadcastBuffer  = 256
	clientSendBuffer = 64
)

// Hub tracks connected websocket clients, fans event frames out to all of
// them and decodes inbound frames into commands for the dispatch callback.
// Broadcast must never log: log entries are themselves broadcast, so a
// logging broadcast path would feed back into itself.
type Hub struct {
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*wsClient

	dispatchMu sync.RWMutex
	dispatch   func(Command)

	broadcast chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewHub creates an empty hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			// The server binds to loopback, so any origin is fine
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:   make(map[string]*wsClient),
		broadcast: make(chan []byte, broadcastBuffer),
		done:      make(chan struct{}),
	}
}

// OnCommand registers the callback that receives decoded client commands
func (h *Hub) OnCommand(fn func(Command)) {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()
	h.dispatch = fn
}

// Run pumps broadcast frames to every connected client until Close. A
// client too slow to drain its buffer is dropped rather than holding up
// the rest.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return
		case msg := <-h.broadcast:
			var stale []string

			h.mu.RLock()
			for id, client := range h.clients {
				select {
				case client.send <- msg:
				default:
					stale = append(stale, id)
				}
			}
			h.mu.RUnlock()

			for _, id := range stale {
				h.removeClient(id)
			}
		}
	}
}

// Broadcast queues a frame for every connected client. Frames are dropped
// when the queue is full or the hub is closed.
func (h *Hub) Broadcast(frameType string, data map[string]any) {
	payload, err := json.Marshal(Frame{Type: frameType, Data: data})
	if err != nil {
		return
	}

	select {
	case <-h.done:
	case h.broadcast <- payload:
	default:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request to a websocket and services the connection
// until the client goes away
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
	}

	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()

	h.logger.Info().Str("client", client.id).Msg("Dashboard client connected")

	go client.writeLoop()
	h.readLoop(client)
}

// writeLoop drains the send channel into the connection. Closing the
// channel closes the connection, which in turn ends the read loop.
func (c *wsClient) writeLoop() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (h *Hub) readLoop(client *wsClient) {
	defer h.removeClient(client.id)

	for {
		var cmd Command
		if err := client.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug().Err(err).Str("client", client.id).Msg("Websocket read failed")
			}
			return
		}

		h.dispatchMu.RLock()
		dispatch := h.dispatch
		h.dispatchMu.RUnlock()

		if dispatch != nil {
			dispatch(cmd)
		}
	}
}

// removeClient drops one client. The map lookup makes it safe to call from
// both the read loop and the broadcast pump; only the caller that finds
// the client closes its send channel.
func (h *Hub) removeClient(id string) {
	h.mu.Lock()
	client, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	h.mu.Unlock()

	if ok {
		close(client.send)
		h.logger.Info().Str("client", id).Msg("Dashboard client disconnected")
	}
}

// Close stops the broadcast pump and disconnects every client
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*wsClient)
	h.mu.Unlock()

	for _, client := range clients {
		close(client.send)
	}
}
