package handlers

import (
	"net/http"

	"vnjp-connect/internal/middleware"
	"vnjp-connect/internal/services"
)

// UserHandler handles identity-related HTTP requests
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// CreateUser handles POST /api/v1/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}

	reg, err := h.userService.Register(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err, "Failed to create user")
		return
	}

	respondJSON(w, reg, http.StatusCreated)
}

// GetMe handles GET /api/v1/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dashboard, err := h.userService.Dashboard(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, r, err, "Failed to load profile")
		return
	}

	respondJSON(w, dashboard, http.StatusOK)
}

// UpdateMe handles PATCH /api/v1/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req services.ProfileInput
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.userService.UpdateProfile(ctx, middleware.GetUserID(ctx), req)
	if err != nil {
		respondServiceError(w, r, err, "Failed to update profile")
		return
	}

	respondJSON(w, user, http.StatusOK)
}

// UpdatePushTokenRequest represents the request body for updating the push token
type UpdatePushTokenRequest struct {
	PushToken string `json:"push_token"`
}

// UpdatePushToken handles PUT /api/v1/me/push-token
func (h *UserHandler) UpdatePushToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req UpdatePushTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.userService.UpdatePushToken(ctx, middleware.GetUserID(ctx), req.PushToken); err != nil {
		respondServiceError(w, r, err, "Failed to update push token")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
