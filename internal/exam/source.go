package exam

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/models"
	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/questions"
)

// QuestionSource resolves the question for a (session, module, index) slot:
// reuse an existing slot, then the unserved pool, then generation with text
// dedup, then a degraded served repeat.
type QuestionSource struct {
	store      SessionStore
	pool       Pool
	gen        ContentGenerator
	maxRetries int
}

func NewQuestionSource(store SessionStore, pool Pool, gen ContentGenerator, maxRetries int) *QuestionSource {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &QuestionSource{store: store, pool: pool, gen: gen, maxRetries: maxRetries}
}

// SourcedQuestion is the source's result. Degraded marks a served repeat so
// callers can log it for operators; students never see the flag.
type SourcedQuestion struct {
	Question *models.Question
	Slot     *models.ServedSlot
	Degraded bool
}

func poolFilter(session *models.Session, module models.Module) questions.PoolFilter {
	f := questions.PoolFilter{Module: module}
	if module == models.ModuleWriting || module == models.ModuleSpeaking {
		f.OpenEndedOnly = true
	}
	if module == models.ModuleListening {
		f.AudioPool = session.ListeningPool
	}
	return f
}

// concentricLevels orders difficulty candidates outward from the current
// level: exact match first, then one step easier, one harder, and so on
// across the full range.
func concentricLevels(current models.CEFRLevel) []models.CEFRLevel {
	base := models.LevelScore(current)
	levels := []models.CEFRLevel{models.LevelFromScore(base)}
	for d := 1; d <= 5; d++ {
		if base-d >= 1 {
			levels = append(levels, models.LevelFromScore(base-d))
		}
		if base+d <= 6 {
			levels = append(levels, models.LevelFromScore(base+d))
		}
	}
	return levels
}

// Next returns the question bound to the slot at (session, current module,
// index), creating the slot when this index is served for the first time.
func (s *QuestionSource) Next(ctx context.Context, session *models.Session, index int) (*SourcedQuestion, error) {
	module := session.CurrentModule

	slot, err := s.store.GetSlot(ctx, session.ID, module, index)
	if err != nil {
		return nil, err
	}
	if slot != nil {
		q, err := s.pool.GetQuestion(ctx, slot.QuestionID)
		if err != nil {
			return nil, err
		}
		if q == nil {
			return nil, fmt.Errorf("slot %d/%s/%d references question %d: %w",
				session.ID, module, index, slot.QuestionID, ErrQuestionMissing)
		}
		return &SourcedQuestion{Question: present(q, module), Slot: slot}, nil
	}

	filter := poolFilter(session, module)

	q, err := s.fromPool(ctx, session.ID, filter, session.CurrentDifficulty)
	if err != nil {
		return nil, err
	}

	degraded := false
	if q == nil {
		q, err = s.generate(ctx, session, module, filter)
		if err != nil {
			return nil, err
		}
	}
	if q == nil {
		// Last resort: repeat a question the session has already seen. The
		// student gets a question either way; operators get a warning.
		q, err = s.pool.PickAnyRepeat(ctx, filter)
		if err != nil {
			return nil, err
		}
		if q == nil {
			return nil, fmt.Errorf("module %s has no questions at all: %w", module, ErrPoolExhausted)
		}
		degraded = true
		log.Printf("WARN: degraded mode, serving repeat question %d for session %d module %s",
			q.ID, session.ID, module)
	}

	slot, err = s.store.CreateSlot(ctx, &models.ServedSlot{
		SessionID:  session.ID,
		Module:     module,
		Index:      index,
		QuestionID: q.ID,
		Status:     models.SlotServed,
		ServedAt:   time.Now(),
	})
	if err != nil {
		return nil, err
	}
	return &SourcedQuestion{Question: present(q, module), Slot: slot, Degraded: degraded}, nil
}

// fromPool widens the difficulty search outward from the target level, then
// drops the difficulty constraint entirely before giving up.
func (s *QuestionSource) fromPool(ctx context.Context, sessionID int64, filter questions.PoolFilter, difficulty models.CEFRLevel) (*models.Question, error) {
	for _, level := range concentricLevels(difficulty) {
		q, err := s.pool.PickUnservedAtDifficulty(ctx, sessionID, filter, level)
		if err != nil {
			return nil, err
		}
		if q != nil {
			return q, nil
		}
	}
	return s.pool.PickUnservedAny(ctx, sessionID, filter)
}

// generate asks the content generator for a fresh question, deduping on
// exact text. Transient generator failures and duplicates the session has
// already answered both consume a retry; a duplicate it has not answered is
// reused as-is. Returns nil (not an error) once the retry bound is
// exhausted, so the caller can degrade.
func (s *QuestionSource) generate(ctx context.Context, session *models.Session, module models.Module, filter questions.PoolFilter) (*models.Question, error) {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		draft, err := s.gen.GenerateQuestion(ctx, module, session.CurrentDifficulty)
		if err != nil {
			log.Printf("WARN: %v for session %d module %s, attempt %d/%d: %v",
				ErrGenerationFailed, session.ID, module, attempt, s.maxRetries, err)
			continue
		}

		existing, err := s.pool.FindByText(ctx, module, draft.Text)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			answered, err := s.store.HasAnswered(ctx, session.ID, existing.ID)
			if err != nil {
				return nil, err
			}
			if !answered {
				return existing, nil
			}
			log.Printf("WARN: %v for session %d module %s, retry %d/%d",
				ErrDuplicateQuestion, session.ID, module, attempt, s.maxRetries)
			continue
		}

		q := &models.Question{
			Text:          draft.Text,
			Module:        module,
			Difficulty:    session.CurrentDifficulty,
			Type:          draft.Type,
			Options:       draft.Options,
			CorrectAnswer: draft.CorrectAnswer,
		}
		if filter.OpenEndedOnly {
			q.ForceOpenEnded()
		}
		return s.pool.Insert(ctx, q)
	}
	return nil, nil
}

// present shapes a pool question for serving. Writing and Speaking never
// show options no matter how the question was stored.
func present(q *models.Question, module models.Module) *models.Question {
	if module != models.ModuleWriting && module != models.ModuleSpeaking {
		return q
	}
	out := *q
	out.ForceOpenEnded()
	return &out
}
