package report

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/generator"
	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/models"
)

// Persistence is what the service needs from storage.
type Persistence interface {
	SessionOutcomes(ctx context.Context, sessionID int64) ([]ModuleOutcome, error)
	Upsert(ctx context.Context, r *models.Report) (*models.Report, error)
	SetFeedback(ctx context.Context, sessionID int64, feedback string, status models.ReportStatus) error
	GetBySession(ctx context.Context, sessionID int64) (*models.Report, error)
	SessionOwner(ctx context.Context, sessionID int64) (int64, error)
	UpdateUserLevel(ctx context.Context, sessionID int64, level models.CEFRLevel) error
}

// Service turns a finished session into a scored report and enriches it
// with model-written feedback. Scoring is synchronous and cheap; the
// enrichment call is the slow part, so GenerateAsync runs the whole thing
// off the request path.
type Service struct {
	store Persistence
	llm   generator.LLMClient
}

// NewService builds the report service. llm may be nil, which skips the
// feedback enrichment and marks reports ready immediately.
func NewService(store Persistence, llm generator.LLMClient) *Service {
	return &Service{store: store, llm: llm}
}

// LevelForPercent maps an overall score percentage onto the CEFR band.
func LevelForPercent(percent float64) models.CEFRLevel {
	switch {
	case percent < 40:
		return models.LevelA1
	case percent < 50:
		return models.LevelA2
	case percent < 60:
		return models.LevelB1
	case percent < 70:
		return models.LevelB2
	case percent < 80:
		return models.LevelC1
	default:
		return models.LevelC2
	}
}

// Tally folds module outcomes into an overall percentage and per-module
// percentages. Skipped questions already sit in each outcome's total.
func Tally(outcomes []ModuleOutcome) (score float64, stats map[string]float64) {
	stats = make(map[string]float64, len(outcomes))
	total, correct := 0, 0
	for _, o := range outcomes {
		total += o.Total
		correct += o.Correct
		if o.Total > 0 {
			stats[string(o.Module)] = 100 * float64(o.Correct) / float64(o.Total)
		} else {
			stats[string(o.Module)] = 0
		}
	}
	if total == 0 {
		return 0, stats
	}
	return 100 * float64(correct) / float64(total), stats
}

// Generate scores the session, stores the report, writes the level back to
// the student, and then enriches with AI feedback.
func (s *Service) Generate(ctx context.Context, sessionID int64) (*models.Report, error) {
	outcomes, err := s.store.SessionOutcomes(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	score, stats := Tally(outcomes)
	level := LevelForPercent(score)

	status := models.ReportEnriching
	if s.llm == nil {
		status = models.ReportReady
	}
	stored, err := s.store.Upsert(ctx, &models.Report{
		SessionID:   sessionID,
		Score:       score,
		LevelResult: level,
		ModuleStats: stats,
		Status:      status,
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateUserLevel(ctx, sessionID, level); err != nil {
		log.Printf("WARN: could not update user level for session %d: %v", sessionID, err)
	}

	if s.llm == nil {
		return stored, nil
	}

	feedback, err := s.llm.Complete(ctx, feedbackSystemPrompt, buildFeedbackPrompt(score, level, stats))
	if err != nil {
		log.Printf("WARN: feedback enrichment failed for session %d: %v", sessionID, err)
		if serr := s.store.SetFeedback(ctx, sessionID, "", models.ReportFailed); serr != nil {
			return nil, serr
		}
		stored.Status = models.ReportFailed
		return stored, nil
	}

	feedback = strings.TrimSpace(feedback)
	if err := s.store.SetFeedback(ctx, sessionID, feedback, models.ReportReady); err != nil {
		return nil, err
	}
	stored.AIFeedback = feedback
	stored.Status = models.ReportReady
	return stored, nil
}

// GenerateAsync is the fire-and-forget entry point used on session
// completion.
func (s *Service) GenerateAsync(sessionID int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := s.Generate(ctx, sessionID); err != nil {
			log.Printf("WARN: report generation failed for session %d: %v", sessionID, err)
		}
	}()
}

func (s *Service) Get(ctx context.Context, sessionID int64) (*models.Report, error) {
	return s.store.GetBySession(ctx, sessionID)
}

func (s *Service) Owner(ctx context.Context, sessionID int64) (int64, error) {
	return s.store.SessionOwner(ctx, sessionID)
}

const feedbackSystemPrompt = `You are an English teacher writing a short, encouraging assessment summary for a student who just finished a placement exam. Write 3-5 sentences in plain English. Mention the strongest and weakest skill areas. Do not use markdown.`

func buildFeedbackPrompt(score float64, level models.CEFRLevel, stats map[string]float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Overall score: %.1f%% (CEFR %s).\nPer-module scores:\n", score, level)
	for _, module := range models.ModuleOrder {
		if pct, ok := stats[string(module)]; ok {
			fmt.Fprintf(&b, "- %s: %.1f%%\n", module, pct)
		}
	}
	return b.String()
}
