package stt

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/auth"
	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/models"
)

const maxUploadBytes = 25 << 20 // Groq's transcription size cap

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transcribeResult struct {
	AudioFilename string `json:"audio_filename"`
	Transcript    string `json:"transcript"`
}

// Transcribe accepts a speaking-module recording, stores it, and returns
// the transcript alongside the stored filename. The client then submits the
// transcript as the answer text with the filename attached. A transcription
// failure still returns the filename so the recording is not lost.
func (h *Handler) Transcribe(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserID(r); !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Audio file too large or malformed"})
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Missing audio file"})
		return
	}
	defer file.Close()

	filename, err := h.service.SaveUpload(file, header)
	if err != nil {
		log.Printf("WARN: could not save speech upload: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Could not store recording"})
		return
	}

	transcript, err := h.service.Transcribe(r.Context(), filename)
	if err != nil {
		log.Printf("WARN: transcription failed for %s: %v", filename, err)
	}

	writeJSON(w, http.StatusOK, transcribeResult{AudioFilename: filename, Transcript: transcript})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
