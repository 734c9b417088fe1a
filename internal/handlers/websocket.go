package handlers

import (
	"net/http"
	"slices"

	"vnjp-connect/internal/services"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const maxWSMessageBytes = 4 << 10

// WebSocketHandler handles WebSocket connections. The socket only delivers
// notifications; all state changes go through the HTTP API.
type WebSocketHandler struct {
	hub         *services.WSHub
	userService *services.UserService
	chatService *services.ChatService
	upgrader    websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler. An empty or "*"
// origin list accepts every origin.
func NewWebSocketHandler(
	hub *services.WSHub,
	userService *services.UserService,
	chatService *services.ChatService,
	allowedOrigins []string,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		userService: userService,
		chatService: chatService,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
					return true
				}
				return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

// HandleWebSocket handles GET /ws?token=
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Get token from query parameter
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, "token required", http.StatusUnauthorized)
		return
	}

	userID, err := h.userService.ValidateJWT(token)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	conn.SetReadLimit(maxWSMessageBytes)

	h.hub.Register(userID, conn)
	defer h.hub.Unregister(userID, conn)

	ctx := r.Context()

	// Initial unread state so the client can render badges without a round trip
	unread, err := h.chatService.TotalUnread(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to count unread messages")
	}
	if err := h.hub.SendToConn(userID, conn, services.WSMessage{
		Type: services.EventConnected,
		Data: map[string]int{"unread": unread},
	}); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to send connected message")
		return
	}

	log.Info().Str("user_id", userID).Msg("WebSocket connection established")

	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("user_id", userID).Msg("WebSocket error")
			}
			break
		}

		var msg services.WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("Failed to parse WebSocket message")
			h.sendError(userID, conn, "Invalid message format")
			continue
		}

		switch msg.Type {
		case services.EventPing:
			if err := h.hub.SendToConn(userID, conn, services.WSMessage{Type: services.EventPong}); err != nil {
				log.Warn().Err(err).Str("user_id", userID).Msg("Failed to send pong")
			}
		default:
			h.sendError(userID, conn, "Unknown message type")
		}
	}
}

// sendError reports a bad client frame on the connection that sent it
func (h *WebSocketHandler) sendError(userID string, conn *websocket.Conn, message string) {
	err := h.hub.SendToConn(userID, conn, services.WSMessage{
		Type:    services.EventError,
		Message: message,
	})
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to send error message")
	}
}
