package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"trailguard/metrics"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxWSMessageSize is the maximum message size allowed from peer. Clients
	// only listen, so anything beyond a close frame is unexpected.
	maxWSMessageSize = 512
)

// wsMessage frames every payload pushed over a websocket connection.
type wsMessage struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// upgrader configures WebSocket connection upgrades. CORS is already
// validated by corsMiddleware, so origin checks are not repeated here.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveWebSocket handles GET /ws: the websocket flavor of the device stream,
// for dashboards that cannot use SSE. Each connection gets its own hub
// subscription; a lagging connection sheds updates at the hub, never here.
func (a *API) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Errorw("WebSocket upgrade failed", "error", err)
		return
	}

	updates, cancel := a.hub.Subscribe()

	metrics.StreamSubscribers.Inc()

	done := make(chan struct{})

	// Read pump: we expect nothing from the client, reads only detect
	// disconnection and keep the pong handler serviced.
	go func() {
		defer close(done)
		conn.SetReadLimit(maxWSMessageSize)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					a.logger.Debugw("WebSocket unexpected close", "error", err)
				}
				return
			}
		}
	}()

	// Write pump.
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer func() {
			ticker.Stop()
			cancel()
			conn.Close()
			metrics.StreamSubscribers.Dec()
		}()

		devices := a.devices.List(time.Now(), a.config.Devices.StaleAfter)
		if err := writeWSMessage(conn, "devices", map[string]any{
			"devices": devices,
			"count":   len(devices),
		}); err != nil {
			return
		}

		for {
			select {
			case <-done:
				return
			case <-a.stopCh:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			case device, ok := <-updates:
				if !ok {
					return
				}
				if err := writeWSMessage(conn, "device_update", device); err != nil {
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()
}

func writeWSMessage(conn *websocket.Conn, msgType string, data any) error {
	payload, err := json.Marshal(wsMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}
