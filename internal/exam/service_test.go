package exam

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/models"
)

const testUserID = int64(1)

func newExamSession(t *testing.T, fx *engineFixture) *models.Session {
	t.Helper()
	sess, err := fx.service.StartSession(context.Background(), testUserID)
	require.NoError(t, err)
	return sess
}

func stockGrammar(fx *engineFixture, n int) {
	for i := 0; i < n; i++ {
		fx.pool.add(mcq(models.ModuleGrammar, models.LevelB2, fmt.Sprintf("grammar question %d", i)))
	}
}

// rewindAttempt pushes an attempt's start back in time to simulate elapsed
// wall clock.
func rewindAttempt(fx *engineFixture, sessionID int64, module models.Module, elapsed time.Duration) {
	fx.store.mu.Lock()
	defer fx.store.mu.Unlock()
	a := fx.store.attempts[attemptKey(sessionID, module)]
	started := time.Now().Add(-elapsed)
	a.StartedAt = &started
}

func TestStartSessionDefaults(t *testing.T) {
	fx := newEngineFixture()
	sess := newExamSession(t, fx)

	assert.Equal(t, models.ModuleGrammar, sess.CurrentModule)
	assert.Equal(t, models.LevelB2, sess.CurrentDifficulty)
	assert.Equal(t, 0, sess.CurrentIndex)
	assert.Contains(t, []int{1, 2}, sess.ListeningPool)
	assert.False(t, sess.IsCompleted)
}

func TestGetNextNeedsStartThenQuestion(t *testing.T) {
	fx := newEngineFixture()
	ctx := context.Background()
	stockGrammar(fx, 2)
	sess := newExamSession(t, fx)

	payload, err := fx.service.GetNext(ctx, testUserID, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StateNeedsStart, payload.State)
	assert.Equal(t, 300, payload.TimeLimitSeconds)

	_, err = fx.service.StartModule(ctx, testUserID, sess.ID)
	require.NoError(t, err)

	payload, err = fx.service.GetNext(ctx, testUserID, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StateQuestion, payload.State)
	require.NotNil(t, payload.Question)
	require.NotNil(t, payload.RemainingSeconds)
	assert.LessOrEqual(t, *payload.RemainingSeconds, 300)
	assert.Greater(t, *payload.RemainingSeconds, 290)
}

func TestTwoCorrectAnswersRaiseDifficulty(t *testing.T) {
	fx := newEngineFixture()
	ctx := context.Background()
	stockGrammar(fx, 4)
	sess := newExamSession(t, fx)

	_, err := fx.service.StartModule(ctx, testUserID, sess.ID)
	require.NoError(t, err)

	payload, err := fx.service.GetNext(ctx, testUserID, sess.ID)
	require.NoError(t, err)
	result, err := fx.service.SubmitAnswer(ctx, testUserID, sess.ID, SubmitRequest{
		QuestionID: payload.Question.ID, SelectedOption: "A",
	})
	require.NoError(t, err)
	assert.Equal(t, models.LevelB2, result.Difficulty, "one answer is not enough to adapt")

	payload, err = fx.service.GetNext(ctx, testUserID, sess.ID)
	require.NoError(t, err)
	result, err = fx.service.SubmitAnswer(ctx, testUserID, sess.ID, SubmitRequest{
		QuestionID: payload.Question.ID, SelectedOption: "A",
	})
	require.NoError(t, err)
	assert.Equal(t, models.LevelC1, result.Difficulty)
	assert.True(t, result.ModuleCompleted)
}

func TestTwoWrongAnswersLowerDifficulty(t *testing.T) {
	fx := newEngineFixture()
	ctx := context.Background()
	stockGrammar(fx, 4)
	sess := newExamSession(t, fx)

	_, err := fx.service.StartModule(ctx, testUserID, sess.ID)
	require.NoError(t, err)

	var result *AdvanceResult
	for i := 0; i < 2; i++ {
		payload, err := fx.service.GetNext(ctx, testUserID, sess.ID)
		require.NoError(t, err)
		result, err = fx.service.SubmitAnswer(ctx, testUserID, sess.ID, SubmitRequest{
			QuestionID: payload.Question.ID, SelectedOption: "B",
		})
		require.NoError(t, err)
	}
	assert.Equal(t, models.LevelB1, result.Difficulty)
}

func TestFinishModuleAdvancesSequence(t *testing.T) {
	fx := newEngineFixture()
	ctx := context.Background()
	stockGrammar(fx, 2)
	sess := newExamSession(t, fx)

	_, err := fx.service.StartModule(ctx, testUserID, sess.ID)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		payload, err := fx.service.GetNext(ctx, testUserID, sess.ID)
		require.NoError(t, err)
		_, err = fx.service.SubmitAnswer(ctx, testUserID, sess.ID, SubmitRequest{
			QuestionID: payload.Question.ID, SelectedOption: "A",
		})
		require.NoError(t, err)
	}

	payload, err := fx.service.GetNext(ctx, testUserID, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StateModuleReview, payload.State)

	result, err := fx.service.FinishModule(ctx, testUserID, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ModuleVocabulary, result.CurrentModule)
	assert.Equal(t, 0, result.QuestionIndex)
	assert.False(t, result.ExamCompleted)
}

func TestSessionOnlyMovesForward(t *testing.T) {
	fx := newEngineFixture()
	ctx := context.Background()
	sess := newExamSession(t, fx)

	lastIndex := -1
	for i := 0; i < len(models.ModuleOrder); i++ {
		current, err := fx.store.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		idx := ModuleIndex(current.CurrentModule)
		assert.Greater(t, idx, lastIndex, "module order must only advance")
		lastIndex = idx

		_, err = fx.service.FinishModule(ctx, testUserID, sess.ID)
		require.NoError(t, err)
	}

	final, err := fx.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, final.IsCompleted)
	assert.NotNil(t, final.EndTime)
	assert.Equal(t, []int64{sess.ID}, fx.reports.fired(), "completion hands off to reporting once")

	_, err = fx.service.FinishModule(ctx, testUserID, sess.ID)
	assert.True(t, errors.Is(err, ErrSessionCompleted))
}

func TestExpiredModuleForcesAdvance(t *testing.T) {
	fx := newEngineFixture()
	ctx := context.Background()
	stockGrammar(fx, 2)
	sess := newExamSession(t, fx)

	_, err := fx.service.StartModule(ctx, testUserID, sess.ID)
	require.NoError(t, err)
	rewindAttempt(fx, sess.ID, models.ModuleGrammar, 305*time.Second)

	payload, err := fx.service.GetNext(ctx, testUserID, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StateModuleExpired, payload.State)
	assert.Equal(t, models.ModuleVocabulary, payload.Module)

	attempt, err := fx.store.GetOrCreateAttempt(ctx, sess.ID, models.ModuleGrammar, 300)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptExpired, attempt.Status)
}

func TestUnauthorizedSessionAccess(t *testing.T) {
	fx := newEngineFixture()
	ctx := context.Background()
	sess := newExamSession(t, fx)

	_, err := fx.service.GetNext(ctx, testUserID+1, sess.ID)
	assert.True(t, errors.Is(err, ErrUnauthorizedSession))

	_, err = fx.service.SubmitAnswer(ctx, testUserID+1, sess.ID, SubmitRequest{})
	assert.True(t, errors.Is(err, ErrUnauthorizedSession))

	_, err = fx.service.GetNext(ctx, testUserID, sess.ID+100)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestSubmitAnswerRejectedForListening(t *testing.T) {
	fx := newEngineFixture()
	ctx := context.Background()
	sess := newExamSession(t, fx)
	sess.CurrentModule = models.ModuleListening
	require.NoError(t, fx.store.SaveSessionProgress(ctx, sess))

	_, err := fx.service.SubmitAnswer(ctx, testUserID, sess.ID, SubmitRequest{QuestionID: 1})
	assert.True(t, errors.Is(err, ErrWrongEndpoint))
}

func TestPrevNavigationReturnsSameQuestion(t *testing.T) {
	fx := newEngineFixture()
	ctx := context.Background()
	stockGrammar(fx, 4)
	sess := newExamSession(t, fx)

	_, err := fx.service.StartModule(ctx, testUserID, sess.ID)
	require.NoError(t, err)

	first, err := fx.service.GetNext(ctx, testUserID, sess.ID)
	require.NoError(t, err)
	_, err = fx.service.SubmitAnswer(ctx, testUserID, sess.ID, SubmitRequest{
		QuestionID: first.Question.ID, SelectedOption: "A",
	})
	require.NoError(t, err)

	result, err := fx.service.SubmitAnswer(ctx, testUserID, sess.ID, SubmitRequest{Action: "prev"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.QuestionIndex)

	again, err := fx.service.GetNext(ctx, testUserID, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Question.ID, again.Question.ID, "revisited index serves the same slot")
}

func TestJumpToIndexReopensSkippedQuestion(t *testing.T) {
	fx := newEngineFixture()
	ctx := context.Background()
	stockGrammar(fx, 4)
	sess := newExamSession(t, fx)

	_, err := fx.service.StartModule(ctx, testUserID, sess.ID)
	require.NoError(t, err)

	// Skip the first question, answer the second, landing on the review
	// screen with one skipped index.
	first, err := fx.service.GetNext(ctx, testUserID, sess.ID)
	require.NoError(t, err)
	_, err = fx.service.SubmitAnswer(ctx, testUserID, sess.ID, SubmitRequest{
		QuestionID: first.Question.ID,
	})
	require.NoError(t, err)
	second, err := fx.service.GetNext(ctx, testUserID, sess.ID)
	require.NoError(t, err)
	_, err = fx.service.SubmitAnswer(ctx, testUserID, sess.ID, SubmitRequest{
		QuestionID: second.Question.ID, SelectedOption: "A",
	})
	require.NoError(t, err)

	review, err := fx.service.GetNext(ctx, testUserID, sess.ID)
	require.NoError(t, err)
	require.Equal(t, StateModuleReview, review.State)
	require.Equal(t, []int{0}, review.SkippedIndexes)

	// Jump straight back to the skipped slot, no single-stepping.
	require.NoError(t, fx.service.JumpToIndex(ctx, testUserID, sess.ID, 0))

	payload, err := fx.service.GetNext(ctx, testUserID, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StateQuestion, payload.State)
	assert.Equal(t, 0, payload.QuestionIndex)
	assert.Equal(t, first.Question.ID, payload.Question.ID, "the jump lands on the same served slot")

	// The reopened question can now be answered in place.
	_, err = fx.service.SubmitAnswer(ctx, testUserID, sess.ID, SubmitRequest{
		QuestionID: first.Question.ID, SelectedOption: "A",
	})
	require.NoError(t, err)
	resp, err := fx.store.GetResponse(ctx, sess.ID, first.Question.ID)
	require.NoError(t, err)
	assert.True(t, *resp.IsCorrect)
}

func TestJumpToIndexRejectsUnservedIndex(t *testing.T) {
	fx := newEngineFixture()
	ctx := context.Background()
	stockGrammar(fx, 4)
	sess := newExamSession(t, fx)

	_, err := fx.service.StartModule(ctx, testUserID, sess.ID)
	require.NoError(t, err)

	err = fx.service.JumpToIndex(ctx, testUserID, sess.ID, 3)
	assert.True(t, errors.Is(err, ErrInvalidIndex))

	err = fx.service.JumpToIndex(ctx, testUserID, sess.ID, -1)
	assert.True(t, errors.Is(err, ErrInvalidIndex))

	err = fx.service.JumpToIndex(ctx, testUserID+1, sess.ID, 0)
	assert.True(t, errors.Is(err, ErrUnauthorizedSession))
}

func TestResubmitOverwritesResponse(t *testing.T) {
	fx := newEngineFixture()
	ctx := context.Background()
	stockGrammar(fx, 4)
	sess := newExamSession(t, fx)

	_, err := fx.service.StartModule(ctx, testUserID, sess.ID)
	require.NoError(t, err)

	first, err := fx.service.GetNext(ctx, testUserID, sess.ID)
	require.NoError(t, err)
	_, err = fx.service.SubmitAnswer(ctx, testUserID, sess.ID, SubmitRequest{
		QuestionID: first.Question.ID, SelectedOption: "B",
	})
	require.NoError(t, err)
	_, err = fx.service.SubmitAnswer(ctx, testUserID, sess.ID, SubmitRequest{Action: "prev"})
	require.NoError(t, err)
	_, err = fx.service.SubmitAnswer(ctx, testUserID, sess.ID, SubmitRequest{
		QuestionID: first.Question.ID, SelectedOption: "A",
	})
	require.NoError(t, err)

	resp, err := fx.store.GetResponse(ctx, sess.ID, first.Question.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", *resp.SelectedOption)
	assert.True(t, *resp.IsCorrect)
}

func TestEmptyAnswerSkipsQuestion(t *testing.T) {
	fx := newEngineFixture()
	ctx := context.Background()
	stockGrammar(fx, 4)
	sess := newExamSession(t, fx)

	_, err := fx.service.StartModule(ctx, testUserID, sess.ID)
	require.NoError(t, err)

	payload, err := fx.service.GetNext(ctx, testUserID, sess.ID)
	require.NoError(t, err)
	result, err := fx.service.SubmitAnswer(ctx, testUserID, sess.ID, SubmitRequest{
		QuestionID: payload.Question.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.QuestionIndex)
	assert.Equal(t, models.LevelB2, result.Difficulty, "a skip does not adapt difficulty")

	slot, err := fx.store.GetSlot(ctx, sess.ID, models.ModuleGrammar, 0)
	require.NoError(t, err)
	assert.Equal(t, models.SlotSkipped, slot.Status)
}

func TestPoolFirstAvoidsGeneration(t *testing.T) {
	fx := newEngineFixture()
	ctx := context.Background()
	stockGrammar(fx, 4)
	sess := newExamSession(t, fx)

	_, err := fx.service.StartModule(ctx, testUserID, sess.ID)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		payload, err := fx.service.GetNext(ctx, testUserID, sess.ID)
		require.NoError(t, err)
		_, err = fx.service.SubmitAnswer(ctx, testUserID, sess.ID, SubmitRequest{
			QuestionID: payload.Question.ID, SelectedOption: "A",
		})
		require.NoError(t, err)
	}
	assert.Zero(t, fx.gen.callCount(), "stocked pool must satisfy every slot")
}

func listeningSession(t *testing.T, fx *engineFixture, total int) *models.Session {
	t.Helper()
	ctx := context.Background()
	var qs []models.Question
	for i := 0; i < total; i++ {
		qs = append(qs, mcq(models.ModuleListening, models.LevelB2, fmt.Sprintf("listening question %d", i)))
	}
	fx.pool.addListening(1, qs...)

	sess := newExamSession(t, fx)
	sess.CurrentModule = models.ModuleListening
	sess.ListeningPool = 1
	require.NoError(t, fx.store.SaveSessionProgress(ctx, sess))
	_, err := fx.service.StartModule(ctx, testUserID, sess.ID)
	require.NoError(t, err)
	return sess
}

func TestListeningBlockFlow(t *testing.T) {
	fx := newEngineFixture()
	ctx := context.Background()
	sess := listeningSession(t, fx, 14)

	payload, err := fx.service.GetNext(ctx, testUserID, sess.ID)
	require.NoError(t, err)
	require.Equal(t, StateListeningBlock, payload.State)
	block := payload.ListeningBlock
	require.NotNil(t, block)
	assert.Equal(t, 0, block.BlockStart)
	assert.Equal(t, 8, block.BlockEnd)
	assert.Equal(t, 14, block.Total)
	assert.False(t, block.IsFinal)
	assert.Equal(t, 0, block.AudioStartSec)
	assert.Len(t, block.Questions, 8)

	// Answer all but the third question; it must end up skipped.
	answers := map[string]string{}
	for i, q := range block.Questions {
		if i == 2 {
			continue
		}
		answers[fmt.Sprint(q.ID)] = "A"
	}
	result, err := fx.service.SubmitListeningBlock(ctx, testUserID, sess.ID, ListeningBlockRequest{Answers: answers})
	require.NoError(t, err)
	assert.Equal(t, 8, result.QuestionIndex)
	assert.False(t, result.ModuleCompleted)

	slot, err := fx.store.GetSlot(ctx, sess.ID, models.ModuleListening, 2)
	require.NoError(t, err)
	assert.Equal(t, models.SlotSkipped, slot.Status)

	payload, err = fx.service.GetNext(ctx, testUserID, sess.ID)
	require.NoError(t, err)
	block = payload.ListeningBlock
	require.NotNil(t, block)
	assert.Equal(t, 8, block.BlockStart)
	assert.Equal(t, 14, block.BlockEnd)
	assert.True(t, block.IsFinal)
	assert.Equal(t, 825, block.AudioStartSec, "pool 1 part 2 seeks into the shared recording")

	answers = map[string]string{}
	for _, q := range block.Questions {
		answers[fmt.Sprint(q.ID)] = "A"
	}

	// The final block holds until the audio is confirmed done.
	result, err = fx.service.SubmitListeningBlock(ctx, testUserID, sess.ID, ListeningBlockRequest{Answers: answers})
	require.NoError(t, err)
	assert.True(t, result.AudioPending)
	assert.Equal(t, models.ModuleListening, result.CurrentModule)

	result, err = fx.service.SubmitListeningBlock(ctx, testUserID, sess.ID, ListeningBlockRequest{
		Answers: answers, AudioCompleted: true,
	})
	require.NoError(t, err)
	assert.True(t, result.ModuleCompleted)
	assert.Equal(t, models.ModuleSpeaking, result.CurrentModule)
	assert.False(t, result.ExamCompleted)
}

func TestListeningPrevBlock(t *testing.T) {
	fx := newEngineFixture()
	ctx := context.Background()
	sess := listeningSession(t, fx, 14)

	payload, err := fx.service.GetNext(ctx, testUserID, sess.ID)
	require.NoError(t, err)
	answers := map[string]string{}
	for _, q := range payload.ListeningBlock.Questions {
		answers[fmt.Sprint(q.ID)] = "A"
	}
	_, err = fx.service.SubmitListeningBlock(ctx, testUserID, sess.ID, ListeningBlockRequest{Answers: answers})
	require.NoError(t, err)

	result, err := fx.service.SubmitListeningBlock(ctx, testUserID, sess.ID, ListeningBlockRequest{Action: "prev_block"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.QuestionIndex)
}

func TestStartModulePrefillsWhenLow(t *testing.T) {
	fx := newEngineFixture()
	ctx := context.Background()
	// One question for a two-question module: below threshold.
	stockGrammar(fx, 1)
	sess := newExamSession(t, fx)

	_, err := fx.service.StartModule(ctx, testUserID, sess.ID)
	require.NoError(t, err)

	fx.prefill.mu.Lock()
	defer fx.prefill.mu.Unlock()
	assert.Contains(t, fx.prefill.calls, models.ModuleGrammar)
}
