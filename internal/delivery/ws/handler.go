package ws

import (
	"net/http"
	"strconv"

	"github.com/vonote/vonote/internal/ports"
)

// StatusHandler upgrades the connection, authenticates via the token query
// parameter, and parks the client in its owner room. Status events are
// pushed by the hub's broadcast listener; the read loop only detects
// disconnects.
func StatusHandler(hub *Hub, auth ports.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		ownerID, _, err := auth.ResolveToken(r.Context(), token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		roomID := strconv.FormatInt(ownerID, 10)
		hub.Register(roomID, conn)
		defer hub.Unregister(roomID, conn)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
