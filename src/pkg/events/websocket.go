package events

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler streams every published event to the websocket client as JSON.
func Handler(publisher *Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Subscribe before the handshake completes so the client sees every
		// event published after it connects.
		events, unsubscribe := publisher.Subscribe()
		defer unsubscribe()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		defer func() {
			if closeErr := conn.Close(); closeErr != nil {
				slog.Debug("Failed to close websocket", "error", closeErr)
			}
		}()

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(pongWait))
			})
			for {
				if _, _, readErr := conn.ReadMessage(); readErr != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-closed:
				return
			case event, ok := <-events:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if !ok {
					_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
					return
				}
				if writeErr := conn.WriteJSON(event); writeErr != nil {
					slog.Debug("Failed to write event", "error", writeErr)
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if pingErr := conn.WriteMessage(websocket.PingMessage, nil); pingErr != nil {
					return
				}
			}
		}
	}
}
