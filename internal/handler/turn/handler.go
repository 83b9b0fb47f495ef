package turn

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	agentService "github.com/ewanfisher/voxmail/backend/internal/service/agent"
	sessionService "github.com/ewanfisher/voxmail/backend/internal/service/session"
	"github.com/ewanfisher/voxmail/backend/pkg/utils"
)

// Handler serves text turns against the session engine.
type Handler struct {
	engine *agentService.Service
}

// New creates the turn handler.
func New(engine *agentService.Service) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes mounts the turn endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleStart)
	r.Post("/turn", h.handleTurn)
}

// handleStart initializes (or re-touches) a user's session and returns
// the welcome text.
func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	response, err := h.engine.Start(payload.UserID)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, response)
}

// handleTurn runs one utterance through the engine.
func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID string `json:"userId"`
		Text   string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Text == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	result, err := h.engine.HandleTurn(r.Context(), payload.UserID, payload.Text)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, sessionService.ErrUserRequired) {
			status = http.StatusBadRequest
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, result)
}
