package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/internal/services"
	"github.com/beaconhq/beacon/internal/services/ai"
)

// SafetyAssistant is the slice of the AI service the handler needs.
type SafetyAssistant interface {
	SafetyReply(ctx context.Context, userID uuid.UUID, question string, recent []models.EmergencyReport) (string, ai.UsageStats, error)
}

type AIHandler struct {
	assistant        SafetyAssistant
	emergencyService services.EmergencyServiceInterface
}

func NewAIHandler(assistant SafetyAssistant, emergencyService services.EmergencyServiceInterface) *AIHandler {
	return &AIHandler{
		assistant:        assistant,
		emergencyService: emergencyService,
	}
}

type AssistantRequest struct {
	Question string `json:"question"`
}

type AssistantResponse struct {
	Reply string `json:"reply"`
}

func (h *AIHandler) Ask(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req AssistantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "Question is required")
		return
	}

	recent, err := h.emergencyService.RecentReports(r.Context(), 20)
	if err != nil {
		log.Printf("Error loading reports for assistant: %v", err)
		// Answer without local grounding rather than failing the question.
		recent = nil
	}

	reply, _, err := h.assistant.SafetyReply(r.Context(), user.ID, req.Question, recent)
	if errors.Is(err, ai.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, "Question is required")
		return
	}
	if errors.Is(err, ai.ErrRateLimitExceeded) {
		writeError(w, http.StatusTooManyRequests, "Too many assistant requests; try again shortly")
		return
	}
	if err != nil {
		log.Printf("Error generating assistant reply: %v", err)
		writeError(w, http.StatusServiceUnavailable, "Assistant is temporarily unavailable")
		return
	}

	writeJSON(w, http.StatusOK, AssistantResponse{Reply: reply})
}
