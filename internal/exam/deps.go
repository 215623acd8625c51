package exam

import (
	"context"
	"time"

	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/models"
	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/questions"
)

// SessionStore is the per-session persistence the engine needs. Satisfied by
// *SQLStore in production and by fakes in tests.
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.Session) (*models.Session, error)
	GetSession(ctx context.Context, id int64) (*models.Session, error)
	SaveSessionProgress(ctx context.Context, s *models.Session) error

	GetOrCreateAttempt(ctx context.Context, sessionID int64, module models.Module, timeLimitSeconds int) (*models.ModuleAttempt, error)
	SaveAttempt(ctx context.Context, a *models.ModuleAttempt) error

	GetSlot(ctx context.Context, sessionID int64, module models.Module, index int) (*models.ServedSlot, error)
	CreateSlot(ctx context.Context, slot *models.ServedSlot) (*models.ServedSlot, error)
	SetSlotStatus(ctx context.Context, slotID int64, status models.SlotStatus, answeredAt *time.Time) error
	SkippedSlots(ctx context.Context, sessionID int64, module models.Module) ([]models.ServedSlot, error)

	GetResponse(ctx context.Context, sessionID, questionID int64) (*models.Response, error)
	UpsertResponse(ctx context.Context, r *models.Response) (*models.Response, error)
	HasAnswered(ctx context.Context, sessionID, questionID int64) (bool, error)
	RecentResults(ctx context.Context, sessionID int64, module models.Module, limit int) ([]bool, error)
}

// Pool is the shared question pool surface. Satisfied by *questions.Store.
type Pool interface {
	GetQuestion(ctx context.Context, id int64) (*models.Question, error)
	PickUnservedAtDifficulty(ctx context.Context, sessionID int64, filter questions.PoolFilter, difficulty models.CEFRLevel) (*models.Question, error)
	PickUnservedAny(ctx context.Context, sessionID int64, filter questions.PoolFilter) (*models.Question, error)
	PickAnyRepeat(ctx context.Context, filter questions.PoolFilter) (*models.Question, error)
	FindByText(ctx context.Context, module models.Module, text string) (*models.Question, error)
	Insert(ctx context.Context, q *models.Question) (*models.Question, error)
	CountUnserved(ctx context.Context, sessionID int64, filter questions.PoolFilter) (int, error)
	ListeningQuestions(ctx context.Context, pool int) ([]models.Question, error)
}

// ContentGenerator produces new question drafts. Failures are transient; the
// engine degrades instead of surfacing them.
type ContentGenerator interface {
	GenerateQuestion(ctx context.Context, module models.Module, difficulty models.CEFRLevel) (*models.QuestionDraft, error)
}

// OpenEndedEvaluator grades free-text answers. Implementations must be
// lenient: an evaluator outage passes the student rather than blocking them.
type OpenEndedEvaluator interface {
	Evaluate(ctx context.Context, questionText, answerText string, level models.CEFRLevel) bool
}

// Prefiller tops up the pool before a module starts.
type Prefiller interface {
	EnsurePool(ctx context.Context, module models.Module, difficulty models.CEFRLevel, minCount int) (int, error)
}

// ReportTrigger kicks off report generation for a finished session. Fire and
// forget; the engine never waits on it.
type ReportTrigger interface {
	GenerateAsync(sessionID int64)
}
