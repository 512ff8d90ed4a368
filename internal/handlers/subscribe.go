package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eventis/backstage-api/internal/authz"
	"github.com/eventis/backstage-api/internal/gateway"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from a separate origin; the JWT middleware
	// already authenticated the request.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SubscribeHandler is the live-push endpoint: one websocket per
// authenticated user, fed from the gateway's filtered feed. On disconnect
// the connection unsubscribes; there is no replay, the client re-queries
// the list endpoint for anything missed.
type SubscribeHandler struct {
	gateway *gateway.Gateway
	logger  zerolog.Logger
}

func NewSubscribeHandler(gw *gateway.Gateway, logger zerolog.Logger) *SubscribeHandler {
	return &SubscribeHandler{
		gateway: gw,
		logger:  logger.With().Str("handler", "subscribe").Logger(),
	}
}

// Notifications streams newNotification events for the caller.
func (h *SubscribeHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	userID, conn, ctx, cancel, ok := h.connect(w, r)
	if !ok {
		return
	}
	defer conn.Close()
	defer cancel()

	for view := range h.gateway.Subscribe(ctx, userID) {
		if err := conn.WriteJSON(view); err != nil {
			h.logger.Warn().Err(err).Str("user_id", userID).Msg("websocket write failed")
			cancel()
		}
	}
	h.logger.Info().Str("user_id", userID).Msg("notification client disconnected")
}

// Tasks streams task create/update events assigned to the caller.
func (h *SubscribeHandler) Tasks(w http.ResponseWriter, r *http.Request) {
	userID, conn, ctx, cancel, ok := h.connect(w, r)
	if !ok {
		return
	}
	defer conn.Close()
	defer cancel()

	for event := range h.gateway.SubscribeTasks(ctx, userID) {
		if err := conn.WriteJSON(event); err != nil {
			h.logger.Warn().Err(err).Str("user_id", userID).Msg("websocket write failed")
			cancel()
		}
	}
	h.logger.Info().Str("user_id", userID).Msg("task client disconnected")
}

// connect authenticates, upgrades and starts the read loop whose only
// purpose is noticing the client going away.
func (h *SubscribeHandler) connect(w http.ResponseWriter, r *http.Request) (string, *websocket.Conn, context.Context, context.CancelFunc, bool) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return "", nil, nil, nil, false
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("websocket upgrade failed")
		return "", nil, nil, nil, false
	}

	ctx, cancel := context.WithCancel(r.Context())
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.logger.Info().Str("user_id", userID).Msg("client connected")
	return userID, conn, ctx, cancel, true
}
