package handlers

import (
	"net/http"

	"vnjp-connect/internal/middleware"
	"vnjp-connect/internal/services"
)

// ChatHandler handles conversation channel HTTP requests
type ChatHandler struct {
	chatService *services.ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService *services.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
	}
}

// SendMessageRequest represents the request body for sending a message
type SendMessageRequest struct {
	Content string `json:"content"`
}

// ListChannels handles GET /api/v1/channels
func (h *ChatHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	channels, err := h.chatService.ListChannels(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, r, err, "Failed to list channels")
		return
	}

	respondJSON(w, map[string]interface{}{
		"channels": channels,
		"total":    len(channels),
	}, http.StatusOK)
}

// TotalUnread handles GET /api/v1/channels/unread
func (h *ChatHandler) TotalUnread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	total, err := h.chatService.TotalUnread(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, r, err, "Failed to count unread messages")
		return
	}

	respondJSON(w, map[string]int{"unread": total}, http.StatusOK)
}

// GetMessages handles GET /api/v1/channels/{id}/messages
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	messages, err := h.chatService.FetchAndMarkRead(ctx, pathID(r), middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, r, err, "Failed to get messages")
		return
	}

	respondJSON(w, map[string]interface{}{
		"messages": messages,
		"total":    len(messages),
	}, http.StatusOK)
}

// SendMessage handles POST /api/v1/channels/{id}/messages
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.chatService.Send(ctx, pathID(r), middleware.GetUserID(ctx), req.Content)
	if err != nil {
		respondServiceError(w, r, err, "Failed to send message")
		return
	}

	respondJSON(w, msg, http.StatusCreated)
}

// UnreadCount handles GET /api/v1/channels/{id}/unread
func (h *ChatHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	count, err := h.chatService.UnreadCount(ctx, pathID(r), middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, r, err, "Failed to count unread messages")
		return
	}

	respondJSON(w, map[string]int{"unread": count}, http.StatusOK)
}
