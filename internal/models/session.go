package models

import "time"

type AttemptStatus string

const (
	AttemptNotStarted AttemptStatus = "not_started"
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptExpired    AttemptStatus = "expired"
)

type SlotStatus string

const (
	SlotServed   SlotStatus = "served"
	SlotAnswered SlotStatus = "answered"
	SlotSkipped  SlotStatus = "skipped"
)

// Session is one student's end-to-end exam attempt. ListeningPool is chosen
// once at creation and held fixed for the session's lifetime.
type Session struct {
	ID                int64      `json:"id"`
	UserID            int64      `json:"user_id"`
	StartTime         time.Time  `json:"start_time"`
	EndTime           *time.Time `json:"end_time,omitempty"`
	IsCompleted       bool       `json:"is_completed"`
	CurrentModule     Module     `json:"current_module"`
	CurrentIndex      int        `json:"current_question_index"`
	CurrentDifficulty CEFRLevel  `json:"current_difficulty"`
	ListeningPool     int        `json:"-"`
}

// ModuleAttempt is the timed, stateful pass through a single module within a
// session. Unique per (session, module); created lazily on first access.
type ModuleAttempt struct {
	ID               int64         `json:"id"`
	SessionID        int64         `json:"session_id"`
	Module           Module        `json:"module"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	EndedAt          *time.Time    `json:"ended_at,omitempty"`
	TimeLimitSeconds int           `json:"time_limit_seconds"`
	Status           AttemptStatus `json:"status"`
}

// ServedSlot binds a (session, module, position) to the question shown there,
// so revisiting an index always returns the same question.
type ServedSlot struct {
	ID         int64      `json:"id"`
	SessionID  int64      `json:"session_id"`
	Module     Module     `json:"module"`
	Index      int        `json:"question_index"`
	QuestionID int64      `json:"question_id"`
	Status     SlotStatus `json:"status"`
	ServedAt   time.Time  `json:"served_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
}

// Response is the single logical answer per (session, question). Later
// submissions overwrite the same row.
type Response struct {
	ID             int64   `json:"id"`
	SessionID      int64   `json:"session_id"`
	QuestionID     int64   `json:"question_id"`
	SelectedOption *string `json:"selected_option,omitempty"`
	TextAnswer     *string `json:"text_answer,omitempty"`
	IsCorrect      *bool   `json:"is_correct,omitempty"`
	AudioFilename  *string `json:"audio_filename,omitempty"`
}

type ReportStatus string

const (
	ReportEnriching ReportStatus = "enriching"
	ReportReady     ReportStatus = "ready"
	ReportFailed    ReportStatus = "failed"
)

// Report is created once per completed session.
type Report struct {
	ID          int64              `json:"id"`
	SessionID   int64              `json:"session_id"`
	Score       float64            `json:"score"`
	LevelResult CEFRLevel          `json:"level_result"`
	ModuleStats map[string]float64 `json:"module_stats"`
	AIFeedback  string             `json:"ai_feedback,omitempty"`
	Status      ReportStatus       `json:"status"`
	GeneratedAt time.Time          `json:"generated_at"`
}
