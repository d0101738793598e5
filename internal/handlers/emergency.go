package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/internal/services"
)

type EmergencyHandler struct {
	emergencyService services.EmergencyServiceInterface
}

func NewEmergencyHandler(emergencyService services.EmergencyServiceInterface) *EmergencyHandler {
	return &EmergencyHandler{emergencyService: emergencyService}
}

type SubmitReportRequest struct {
	EmergencyType string `json:"emergency_type"`
	SpecificType  string `json:"specific_type"`
	Location      string `json:"location"`
	Description   string `json:"description"`
}

type ReportResponse struct {
	Report *models.EmergencyReport `json:"report"`
}

type ReportListResponse struct {
	Reports []models.EmergencyReport `json:"reports"`
}

type PredictionsResponse struct {
	Predictions []models.RiskPrediction `json:"predictions"`
}

type SOSRequest struct {
	Location  string   `json:"location"`
	Phone     string   `json:"phone"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Address   string   `json:"address"`
}

type SOSResponse struct {
	NotifiedCount int    `json:"notified_count"`
	Message       string `json:"message"`
}

func (h *EmergencyHandler) Submit(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req SubmitReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	report, err := h.emergencyService.SubmitReport(r.Context(), services.SubmitReportParams{
		UserID:        user.ID,
		UserName:      user.DisplayName,
		EmergencyType: strings.TrimSpace(req.EmergencyType),
		SpecificType:  strings.TrimSpace(req.SpecificType),
		Location:      strings.TrimSpace(req.Location),
		Description:   strings.TrimSpace(req.Description),
	})
	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		writeError(w, http.StatusBadRequest, validationErr.Error())
		return
	}
	if err != nil {
		log.Printf("Error submitting emergency report: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, ReportResponse{Report: report})
}

func (h *EmergencyHandler) Recent(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}

	area := strings.TrimSpace(r.URL.Query().Get("area"))

	var reports []models.EmergencyReport
	var err error
	if area != "" {
		reports, err = h.emergencyService.ReportsByArea(r.Context(), area, limit)
	} else {
		reports, err = h.emergencyService.RecentReports(r.Context(), limit)
	}
	if err != nil {
		log.Printf("Error listing emergency reports: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, ReportListResponse{Reports: reports})
}

// Predictions derives risk forecasts from the recent report window.
func (h *EmergencyHandler) Predictions(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	reports, err := h.emergencyService.RecentReports(r.Context(), 100)
	if err != nil {
		log.Printf("Error loading reports for predictions: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	predictions := services.GenerateRiskPredictions(reports)
	if predictions == nil {
		predictions = []models.RiskPrediction{}
	}

	writeJSON(w, http.StatusOK, PredictionsResponse{Predictions: predictions})
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

func (h *EmergencyHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	reportID, err := parseIDPathValue(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid report ID")
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err = h.emergencyService.UpdateStatus(r.Context(), reportID, models.EmergencyStatus(req.Status))
	if errors.Is(err, services.ErrInvalidStatus) {
		writeError(w, http.StatusBadRequest, "Invalid status")
		return
	}
	if errors.Is(err, services.ErrReportNotFound) {
		writeError(w, http.StatusNotFound, "Report not found")
		return
	}
	if err != nil {
		log.Printf("Error updating report status: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, NotificationActionResponse{Message: "Status updated"})
}

func (h *EmergencyHandler) SOS(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req SOSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	count, err := h.emergencyService.SendSOSToFriends(r.Context(), services.SOSParams{
		FromUserID: user.ID,
		FromName:   user.DisplayName,
		Location:   strings.TrimSpace(req.Location),
		Phone:      strings.TrimSpace(req.Phone),
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		Address:    strings.TrimSpace(req.Address),
	})
	if errors.Is(err, services.ErrAllNotificationsFailed) {
		writeError(w, http.StatusInternalServerError, "Failed to notify any friend")
		return
	}
	if err != nil {
		log.Printf("Error sending SOS: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	message := "SOS sent"
	if count == 0 {
		message = "No friends yet; a self-test alert was delivered to you"
	}
	writeJSON(w, http.StatusOK, SOSResponse{NotifiedCount: count, Message: message})
}
