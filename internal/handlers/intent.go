package handlers

import (
	"net/http"

	"vnjp-connect/internal/middleware"
	"vnjp-connect/internal/services"
)

// IntentHandler handles exchange intent HTTP requests, including matching
// and evaluation
type IntentHandler struct {
	intentService    *services.IntentService
	matchService     *services.MatchService
	lifecycleService *services.LifecycleService
}

// NewIntentHandler creates a new intent handler
func NewIntentHandler(
	intentService *services.IntentService,
	matchService *services.MatchService,
	lifecycleService *services.LifecycleService,
) *IntentHandler {
	return &IntentHandler{
		intentService:    intentService,
		matchService:     matchService,
		lifecycleService: lifecycleService,
	}
}

// CreateIntent handles POST /api/v1/intents
func (h *IntentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req services.IntentInput
	if !decodeJSON(w, r, &req) {
		return
	}

	intent, err := h.intentService.Create(ctx, middleware.GetUserID(ctx), req)
	if err != nil {
		respondServiceError(w, r, err, "Failed to create intent")
		return
	}

	respondJSON(w, intent, http.StatusCreated)
}

// ListIntents handles GET /api/v1/intents
func (h *IntentHandler) ListIntents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	intents, err := h.intentService.ListMine(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, r, err, "Failed to list intents")
		return
	}

	respondJSON(w, map[string]interface{}{
		"intents": intents,
		"total":   len(intents),
	}, http.StatusOK)
}

// SearchIntents handles GET /api/v1/intents/search
func (h *IntentHandler) SearchIntents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, ok := queryInt(r, "limit")
	if !ok {
		respondError(w, "limit must be a non-negative integer", http.StatusBadRequest)
		return
	}

	intents, err := h.intentService.Search(ctx, middleware.GetUserID(ctx), services.SearchInput{
		City:        r.URL.Query().Get("city"),
		RequestType: r.URL.Query().Get("request_type"),
		Limit:       limit,
	})
	if err != nil {
		respondServiceError(w, r, err, "Failed to search intents")
		return
	}

	respondJSON(w, map[string]interface{}{
		"intents": intents,
		"total":   len(intents),
	}, http.StatusOK)
}

// GetIntent handles GET /api/v1/intents/{id}
func (h *IntentHandler) GetIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	intent, err := h.intentService.Get(ctx, pathID(r), middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, r, err, "Failed to get intent")
		return
	}

	respondJSON(w, intent, http.StatusOK)
}

// UpdateIntent handles PATCH /api/v1/intents/{id}
func (h *IntentHandler) UpdateIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req services.IntentInput
	if !decodeJSON(w, r, &req) {
		return
	}

	intent, err := h.intentService.Update(ctx, pathID(r), middleware.GetUserID(ctx), req)
	if err != nil {
		respondServiceError(w, r, err, "Failed to update intent")
		return
	}

	respondJSON(w, intent, http.StatusOK)
}

// WithdrawIntent handles DELETE /api/v1/intents/{id}
func (h *IntentHandler) WithdrawIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.intentService.Withdraw(ctx, pathID(r), middleware.GetUserID(ctx)); err != nil {
		respondServiceError(w, r, err, "Failed to withdraw intent")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AcceptIntent handles POST /api/v1/intents/{id}/accept
func (h *IntentHandler) AcceptIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	channel, err := h.matchService.Accept(ctx, pathID(r), middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, r, err, "Failed to accept intent")
		return
	}

	respondJSON(w, channel, http.StatusOK)
}

// CancelMatch handles POST /api/v1/intents/{id}/cancel
func (h *IntentHandler) CancelMatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.matchService.Cancel(ctx, pathID(r), middleware.GetUserID(ctx)); err != nil {
		respondServiceError(w, r, err, "Failed to cancel match")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SubmitEvaluation handles POST /api/v1/intents/{id}/evaluations
func (h *IntentHandler) SubmitEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req services.EvaluationInput
	if !decodeJSON(w, r, &req) {
		return
	}
	req.IntentID = pathID(r)
	req.EvaluatorID = middleware.GetUserID(ctx)

	completed, err := h.lifecycleService.SubmitEvaluation(ctx, req)
	if err != nil {
		respondServiceError(w, r, err, "Failed to submit evaluation")
		return
	}

	respondJSON(w, map[string]bool{"completed": completed}, http.StatusCreated)
}
