package exam

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/auth"
	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/models"
)

// Handler exposes the session engine over HTTP. All routes require the auth
// middleware; ownership is re-checked per session in the service.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) StartExam(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	sess, err := h.service.StartSession(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// GetNextQuestion resolves the current screen. An optional ?i= query jumps
// to an already-served index first, for the review screen's return-to-
// skipped flow.
func (h *Handler) GetNextQuestion(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.sessionScope(w, r)
	if !ok {
		return
	}

	if raw := r.URL.Query().Get("i"); raw != "" {
		index, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid question index"})
			return
		}
		if err := h.service.JumpToIndex(r.Context(), userID, sessionID, index); err != nil {
			h.writeError(w, err)
			return
		}
	}

	payload, err := h.service.GetNext(r.Context(), userID, sessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.sessionScope(w, r)
	if !ok {
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	result, err := h.service.SubmitAnswer(r.Context(), userID, sessionID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) SubmitListeningBlock(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.sessionScope(w, r)
	if !ok {
		return
	}

	var req ListeningBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	result, err := h.service.SubmitListeningBlock(r.Context(), userID, sessionID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) StartModule(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.sessionScope(w, r)
	if !ok {
		return
	}

	attempt, err := h.service.StartModule(r.Context(), userID, sessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

func (h *Handler) FinishModule(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := h.sessionScope(w, r)
	if !ok {
		return
	}

	result, err := h.service.FinishModule(r.Context(), userID, sessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) sessionScope(w http.ResponseWriter, r *http.Request) (userID, sessionID int64, ok bool) {
	userID, authed := auth.UserID(r)
	if !authed {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return 0, 0, false
	}
	sessionID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid session id"})
		return 0, 0, false
	}
	return userID, sessionID, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Session not found"})
	case errors.Is(err, ErrUnauthorizedSession):
		writeJSON(w, http.StatusForbidden, models.ErrorResponse{Error: "Access denied"})
	case errors.Is(err, ErrSessionCompleted):
		writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: "Exam is already completed"})
	case errors.Is(err, ErrWrongEndpoint):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Listening answers must be submitted as a block"})
	case errors.Is(err, ErrInvalidIndex):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "No question was served at that index"})
	default:
		log.Printf("WARN: exam handler error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
