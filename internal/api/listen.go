package api

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitewatch/sitewatch/internal/metrics"
	"github.com/sitewatch/sitewatch/internal/notify"
)

// listen handles GET /v1/listen?key=URL%23example.com. It upgrades the
// request to a websocket, registers the connection under the requested
// listening key, and keeps the registration until the socket closes. Closing
// the socket is the disconnect lifecycle event; delivery failures alone never
// unregister a connection.
func (s *Server) listen(w http.ResponseWriter, r *http.Request) {
	if s.deps.Registry == nil || s.deps.Sockets == nil {
		writeError(w, http.StatusServiceUnavailable, "live subscriptions unavailable")
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "key query parameter required")
		return
	}

	connectionID := uuid.NewString()
	rec := notify.ConnectionRecord{
		ConnectionID:     connectionID,
		ListeningKey:     key,
		CallbackEndpoint: "ws://" + r.RemoteAddr,
	}
	// Validate the listening key before committing to the upgrade.
	if err := s.deps.Registry.Register(rec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.deps.Registry.Unregister(connectionID)
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s.deps.Sockets.Attach(connectionID, conn)
	metrics.IncLiveConnections()
	s.logger.Info("listener connected",
		zap.String("connection_id", connectionID),
		zap.String("listening_key", key),
	)

	go func() {
		defer func() {
			s.deps.Sockets.Detach(connectionID)
			s.deps.Registry.Unregister(connectionID)
			metrics.DecLiveConnections()
			conn.Close()
			s.logger.Info("listener disconnected", zap.String("connection_id", connectionID))
		}()
		// Drain control frames until the peer goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
