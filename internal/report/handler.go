package report

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/auth"
	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// GetReport serves a session's report to its owner or an admin. While the
// feedback enrichment is still running, the report comes back with status
// "enriching" and the client polls.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}
	sessionID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid session id"})
		return
	}

	owner, err := h.service.Owner(r.Context(), sessionID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
		return
	}
	role, _ := auth.Role(r)
	if owner != userID && role != models.RoleAdmin {
		writeJSON(w, http.StatusForbidden, models.ErrorResponse{Error: "Access denied"})
		return
	}

	report, err := h.service.Get(r.Context(), sessionID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
		return
	}
	if report == nil {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Report not ready"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
