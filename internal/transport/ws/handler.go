package ws

import (
	"net/http"

	"github.com/vedran77/agroconnect/internal/auth"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// ServeWS returns an HTTP handler that upgrades to WebSocket.
// Auth is done via ?token=xxx query param (WebSocket can't send headers).
func ServeWS(hub *Hub, verifier *auth.Verifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := r.URL.Query().Get("token")
		if tokenStr == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		identity, err := verifier.Parse(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true, // Allow any origin; auth is the token
		})
		if err != nil {
			hub.logger.Warn("accept error", zap.Error(err))
			return
		}

		client := NewClient(hub, conn, identity)
		if !hub.add(client) {
			client.shutdown()
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}

		go client.WritePump()
		client.ReadPump()
	}
}
