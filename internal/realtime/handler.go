package realtime

import (
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler upgrades /ws requests and attaches the connections to a hub
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler accepts connections whose Origin is in allowedOrigins.
// Requests without an Origin header are not from browsers and are accepted.
func NewHandler(hub *Hub, allowedOrigins []string, logger *zap.Logger) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, origin)
			},
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the request and starts the client pumps
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.logger.Warn("websocket upgrade failed",
			zap.String("origin", r.Header.Get("Origin")),
			zap.Error(err),
		)
		return
	}

	client := newClient(h.hub, conn, h.logger)
	h.hub.Register(client)
	client.logger.Debug("websocket connected", zap.String("remote_addr", r.RemoteAddr))

	go client.writePump()
	go client.readPump()
}
