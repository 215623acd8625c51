package stt

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const transcriptionURL = "https://api.groq.com/openai/v1/audio/transcriptions"

// Service stores speaking-module recordings and transcribes them through
// the Groq Whisper endpoint. Transcription is best effort: the recording is
// kept either way and the evaluator can still grade an empty transcript
// leniently.
type Service struct {
	client    *resty.Client
	apiKey    string
	model     string
	uploadDir string
}

func NewService(apiKey, model, uploadDir string) *Service {
	return &Service{
		client:    resty.New(),
		apiKey:    apiKey,
		model:     model,
		uploadDir: uploadDir,
	}
}

// SaveUpload writes the uploaded recording under a fresh random name and
// returns that filename. The original name is untrusted; only its extension
// survives.
func (s *Service) SaveUpload(file multipart.File, header *multipart.FileHeader) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	switch ext {
	case ".webm", ".wav", ".mp3", ".m4a", ".ogg":
	default:
		ext = ".webm"
	}
	filename := uuid.NewString() + ext

	dst, err := os.Create(filepath.Join(s.uploadDir, filename))
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return filename, nil
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe sends a stored recording to the transcription API and returns
// the recognized text.
func (s *Service) Transcribe(ctx context.Context, filename string) (string, error) {
	if s.apiKey == "" {
		return "", fmt.Errorf("transcription disabled: no API key")
	}

	path := filepath.Join(s.uploadDir, filepath.Base(filename))
	var result transcriptionResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetAuthToken(s.apiKey).
		SetFile("file", path).
		SetFormData(map[string]string{
			"model":           s.model,
			"response_format": "json",
			"language":        "en",
		}).
		SetResult(&result).
		Post(transcriptionURL)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("transcription API returned %s", resp.Status())
	}
	return strings.TrimSpace(result.Text), nil
}
