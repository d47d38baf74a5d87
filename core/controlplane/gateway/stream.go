package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/apphub/apphub/core/infra/bus"
	"github.com/apphub/apphub/core/infra/logging"
)

const (
	wsWriteTimeout  = 10 * time.Second
	wsPingInterval  = 30 * time.Second
	wsClientBacklog = 64
)

// handleStream upgrades to a websocket and streams lifecycle events.
// Slow clients are dropped rather than allowed to stall the broadcast.
func (s *server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error(component, "ws upgrade failed", "error", err)
		return
	}

	ch := make(chan *bus.Event, wsClientBacklog)
	s.clientsMu.Lock()
	s.clients[conn] = ch
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, conn)
		s.clientsMu.Unlock()
		_ = conn.Close()
	}()

	// Reader loop only to detect close; clients do not send events.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				_ = conn.Close()
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
