package exam

import (
	"context"
	"strings"
	"time"

	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/models"
)

// Answer is one submitted answer in whichever shape the module uses.
type Answer struct {
	SelectedOption string
	Text           string
	AudioFilename  string
}

func (a Answer) empty() bool {
	return strings.TrimSpace(a.SelectedOption) == "" &&
		strings.TrimSpace(a.Text) == "" &&
		strings.TrimSpace(a.AudioFilename) == ""
}

// AnswerRecorder grades and persists answers. One logical response per
// (session, question); resubmitting overwrites the earlier row.
type AnswerRecorder struct {
	store SessionStore
	eval  OpenEndedEvaluator
}

func NewAnswerRecorder(store SessionStore, eval OpenEndedEvaluator) *AnswerRecorder {
	return &AnswerRecorder{store: store, eval: eval}
}

// Record grades the answer, upserts the response, and marks the slot
// answered.
func (r *AnswerRecorder) Record(ctx context.Context, session *models.Session, q *models.Question, slot *models.ServedSlot, ans Answer) (*models.Response, error) {
	resp := &models.Response{
		SessionID:  session.ID,
		QuestionID: q.ID,
	}

	if q.Type == models.MultipleChoice {
		selected := strings.ToUpper(strings.TrimSpace(ans.SelectedOption))
		resp.SelectedOption = &selected
		correct := selected != "" && selected == q.CorrectAnswer
		resp.IsCorrect = &correct
	} else {
		text := strings.TrimSpace(ans.Text)
		resp.TextAnswer = &text
		if ans.AudioFilename != "" {
			filename := ans.AudioFilename
			resp.AudioFilename = &filename
		}
		passed := r.eval.Evaluate(ctx, q.Text, text, session.CurrentDifficulty)
		resp.IsCorrect = &passed
	}

	stored, err := r.store.UpsertResponse(ctx, resp)
	if err != nil {
		return nil, err
	}

	if slot != nil {
		now := time.Now()
		if err := r.store.SetSlotStatus(ctx, slot.ID, models.SlotAnswered, &now); err != nil {
			return nil, err
		}
	}
	return stored, nil
}

// RecordSkip marks the slot skipped without storing a response. Skipped
// slots still count against the module's score denominator.
func (r *AnswerRecorder) RecordSkip(ctx context.Context, slot *models.ServedSlot) error {
	if slot == nil {
		return nil
	}
	return r.store.SetSlotStatus(ctx, slot.ID, models.SlotSkipped, nil)
}
