// Package ws exposes the price stream hub over WebSocket. Each connection
// gets a stream.Subscriber; the write pump forwards its updates as JSON text
// frames and the read pump handles subscription changes.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sofmarkets/infofid/internal/stream"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds incoming subscription messages.
	maxMessageSize = 4096
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. In production, restrict this to known origins.
		return true
	},
}

// subscribeMsg is the JSON message a client sends to change its market
// filter. An empty markets list subscribes to every market.
type subscribeMsg struct {
	Action  string  `json:"action"` // "subscribe"
	Markets []int64 `json:"markets"`
}

// Handler bridges HTTP connections to the stream hub.
type Handler struct {
	hub    *stream.Hub
	logger *slog.Logger
}

// NewHandler creates the WebSocket handler over the given hub.
func NewHandler(hub *stream.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		hub:    hub,
		logger: logger.With(slog.String("component", "ws")),
	}
}

// HandleWS upgrades the request and attaches the connection to the hub.
// New connections start subscribed to every market and immediately receive
// "initial" snapshots from the hub's cache.
// GET /ws/prices
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	sub := h.hub.Subscribe()
	h.logger.Info("client connected", slog.String("remote", r.RemoteAddr))

	go h.writePump(conn, sub)
	go h.readPump(conn, sub)
}

// readPump consumes subscription messages until the connection drops, then
// detaches the subscriber.
func (h *Handler) readPump(conn *websocket.Conn, sub *stream.Subscriber) {
	defer func() {
		sub.Close()
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}

		var msg subscribeMsg
		if err := json.Unmarshal(message, &msg); err != nil || msg.Action != "subscribe" {
			continue
		}
		sub.Set(msg.Markets...)
	}
}

// writePump forwards hub updates as JSON text frames and sends pings for
// keepalive. It exits when the hub closes the subscriber or a write fails.
func (h *Handler) writePump(conn *websocket.Conn, sub *stream.Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case u, ok := <-sub.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub dropped us (slow consumer or shutdown).
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := stream.MarshalUpdate(u)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
