package exam

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"time"

	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/models"
)

// Settings is the exam shape: per-module budgets and question counts. The
// Listening count is derived from its pool, not configured.
type Settings struct {
	StartLevel    models.CEFRLevel
	TimeLimits    map[models.Module]int
	Counts        map[models.Module]int
	PrefillFactor int
}

// Service orchestrates a session through the fixed module sequence. All
// expiry is lazy: budgets are checked when the student asks for the next
// question or submits, never by a background timer.
type Service struct {
	store    SessionStore
	pool     Pool
	source   *QuestionSource
	recorder *AnswerRecorder
	prefill  Prefiller
	reports  ReportTrigger
	cfg      Settings
}

func NewService(store SessionStore, pool Pool, source *QuestionSource, recorder *AnswerRecorder, prefill Prefiller, reports ReportTrigger, cfg Settings) *Service {
	if cfg.PrefillFactor <= 0 {
		cfg.PrefillFactor = 1
	}
	return &Service{
		store:    store,
		pool:     pool,
		source:   source,
		recorder: recorder,
		prefill:  prefill,
		reports:  reports,
		cfg:      cfg,
	}
}

// Payload states returned by GetNext.
const (
	StateNeedsStart     = "needs_start"
	StateQuestion       = "question"
	StateListeningBlock = "listening_block"
	StateModuleReview   = "module_review"
	StateModuleExpired  = "module_expired"
	StateExamCompleted  = "exam_completed"
)

// NextPayload describes what the client should show next.
type NextPayload struct {
	SessionID        int64            `json:"session_id"`
	State            string           `json:"state"`
	Module           models.Module    `json:"module"`
	QuestionIndex    int              `json:"question_index"`
	TotalQuestions   int              `json:"total_questions"`
	TimeLimitSeconds int              `json:"time_limit_seconds"`
	RemainingSeconds *int             `json:"remaining_seconds,omitempty"`
	Question         *models.Question `json:"question,omitempty"`
	ListeningBlock   *ListeningBlock  `json:"listening_block,omitempty"`
	SkippedIndexes   []int            `json:"skipped_indexes,omitempty"`
}

// AdvanceResult reports where the session moved after a submission or a
// module transition.
type AdvanceResult struct {
	SessionID       int64            `json:"session_id"`
	CurrentModule   models.Module    `json:"current_module"`
	QuestionIndex   int              `json:"question_index"`
	Difficulty      models.CEFRLevel `json:"difficulty"`
	ModuleCompleted bool             `json:"module_completed"`
	ModuleExpired   bool             `json:"module_expired"`
	ExamCompleted   bool             `json:"exam_completed"`
	QuestionMissing bool             `json:"question_missing,omitempty"`
	AudioPending    bool             `json:"audio_pending,omitempty"`
}

// SubmitRequest is one answer for the non-listening modules. Action "prev"
// steps back one question instead of answering.
type SubmitRequest struct {
	QuestionID     int64  `json:"question_id"`
	SelectedOption string `json:"selected_option"`
	TextAnswer     string `json:"text_answer"`
	AudioFilename  string `json:"audio_filename"`
	Action         string `json:"action"`
}

// ListeningBlockRequest submits a whole audio block at once. Answers maps
// question id (as a string) to the selected option.
type ListeningBlockRequest struct {
	Answers        map[string]string `json:"answers"`
	AudioCompleted bool              `json:"audio_completed"`
	Action         string            `json:"action"`
}

// StartSession creates a fresh session at the configured start level. The
// listening pool is drawn once here and never changes. Pool prefill runs in
// the background so the student is not kept waiting on the generator.
func (s *Service) StartSession(ctx context.Context, userID int64) (*models.Session, error) {
	sess, err := s.store.CreateSession(ctx, &models.Session{
		UserID:            userID,
		CurrentModule:     models.ModuleOrder[0],
		CurrentDifficulty: s.cfg.StartLevel,
		ListeningPool:     1 + rand.Intn(2),
	})
	if err != nil {
		return nil, err
	}

	go s.prefillAll(sess.CurrentDifficulty)

	return sess, nil
}

func (s *Service) prefillAll(difficulty models.CEFRLevel) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	for _, module := range models.ModuleOrder {
		if module == models.ModuleListening {
			continue
		}
		min := s.cfg.Counts[module] * s.cfg.PrefillFactor
		if _, err := s.prefill.EnsurePool(ctx, module, difficulty, min); err != nil {
			log.Printf("WARN: background prefill failed for %s: %v", module, err)
		}
	}
}

func (s *Service) loadOwned(ctx context.Context, userID, sessionID int64) (*models.Session, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, ErrUnauthorizedSession
	}
	return sess, nil
}

func (s *Service) questionCount(ctx context.Context, sess *models.Session, module models.Module) (int, error) {
	if module == models.ModuleListening {
		qs, err := s.pool.ListeningQuestions(ctx, sess.ListeningPool)
		if err != nil {
			return 0, err
		}
		return len(qs), nil
	}
	return s.cfg.Counts[module], nil
}

// StartModule moves the current module's attempt to InProgress and starts
// its clock. First call also tops up the pool when stock runs low; repeat
// calls are no-ops so a page refresh does not restart the timer.
func (s *Service) StartModule(ctx context.Context, userID, sessionID int64) (*models.ModuleAttempt, error) {
	sess, err := s.loadOwned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.IsCompleted {
		return nil, ErrSessionCompleted
	}

	module := sess.CurrentModule
	attempt, err := s.store.GetOrCreateAttempt(ctx, sess.ID, module, s.cfg.TimeLimits[module])
	if err != nil {
		return nil, err
	}
	if attempt.Status != models.AttemptNotStarted {
		return attempt, nil
	}

	if module != models.ModuleListening {
		count := s.cfg.Counts[module]
		unserved, err := s.pool.CountUnserved(ctx, sess.ID, poolFilter(sess, module))
		if err != nil {
			return nil, err
		}
		if unserved < count {
			if _, err := s.prefill.EnsurePool(ctx, module, sess.CurrentDifficulty, count*s.cfg.PrefillFactor); err != nil {
				log.Printf("WARN: prefill on module start failed for %s: %v", module, err)
			}
		}
	}

	now := time.Now()
	attempt.StartedAt = &now
	attempt.Status = models.AttemptInProgress
	if err := s.store.SaveAttempt(ctx, attempt); err != nil {
		return nil, err
	}
	return attempt, nil
}

// GetNext resolves what the client should render: the intro screen for an
// unstarted module, a question or listening block, the review screen at the
// end of a module, or the forced transition after a timeout.
func (s *Service) GetNext(ctx context.Context, userID, sessionID int64) (*NextPayload, error) {
	sess, err := s.loadOwned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.IsCompleted {
		return &NextPayload{SessionID: sess.ID, State: StateExamCompleted, Module: sess.CurrentModule}, nil
	}

	module := sess.CurrentModule
	attempt, err := s.store.GetOrCreateAttempt(ctx, sess.ID, module, s.cfg.TimeLimits[module])
	if err != nil {
		return nil, err
	}

	if Expired(attempt, time.Now()) {
		if err := s.expireAndAdvance(ctx, sess, attempt); err != nil {
			return nil, err
		}
		payload := &NextPayload{SessionID: sess.ID, State: StateModuleExpired, Module: sess.CurrentModule}
		if sess.IsCompleted {
			payload.State = StateExamCompleted
		}
		return payload, nil
	}

	count, err := s.questionCount(ctx, sess, module)
	if err != nil {
		return nil, err
	}

	payload := &NextPayload{
		SessionID:        sess.ID,
		Module:           module,
		QuestionIndex:    sess.CurrentIndex,
		TotalQuestions:   count,
		TimeLimitSeconds: attempt.TimeLimitSeconds,
	}
	if remaining, bounded := Remaining(attempt, time.Now()); bounded {
		payload.RemainingSeconds = &remaining
	}

	if attempt.Status == models.AttemptNotStarted {
		payload.State = StateNeedsStart
		return payload, nil
	}

	if module == models.ModuleListening {
		block, err := s.listeningBlock(ctx, sess, count)
		if err != nil {
			return nil, err
		}
		payload.State = StateListeningBlock
		payload.ListeningBlock = block
		return payload, nil
	}

	if sess.CurrentIndex >= count {
		skipped, err := s.store.SkippedSlots(ctx, sess.ID, module)
		if err != nil {
			return nil, err
		}
		payload.State = StateModuleReview
		for _, slot := range skipped {
			payload.SkippedIndexes = append(payload.SkippedIndexes, slot.Index)
		}
		return payload, nil
	}

	// A vanished question is recovered by stepping over its slot, bounded by
	// the module length.
	for sess.CurrentIndex < count {
		sourced, err := s.source.Next(ctx, sess, sess.CurrentIndex)
		if err == nil {
			payload.State = StateQuestion
			payload.QuestionIndex = sess.CurrentIndex
			payload.Question = sourced.Question
			return payload, nil
		}
		if !isQuestionMissing(err) {
			return nil, err
		}
		log.Printf("WARN: skipping index %d in session %d: %v", sess.CurrentIndex, sess.ID, err)
		sess.CurrentIndex++
		if err := s.store.SaveSessionProgress(ctx, sess); err != nil {
			return nil, err
		}
	}

	payload.State = StateModuleReview
	payload.QuestionIndex = sess.CurrentIndex
	return payload, nil
}

func (s *Service) listeningBlock(ctx context.Context, sess *models.Session, total int) (*ListeningBlock, error) {
	qs, err := s.pool.ListeningQuestions(ctx, sess.ListeningPool)
	if err != nil {
		return nil, err
	}
	start, end := BlockBounds(sess.CurrentIndex, total)
	block := &ListeningBlock{
		BlockStart:    start,
		BlockEnd:      end,
		Total:         total,
		IsFinal:       end >= total,
		AudioStartSec: BlockAudioStart(sess.ListeningPool, start),
	}
	if start < len(qs) {
		block.AudioURL = qs[start].AudioURL
		block.Questions = qs[start:end]
	}
	return block, nil
}

// JumpToIndex moves the cursor directly to an already-served slot, so the
// review screen can reopen a skipped question without stepping back through
// everything in between. Indexes that were never served are rejected.
func (s *Service) JumpToIndex(ctx context.Context, userID, sessionID int64, index int) error {
	sess, err := s.loadOwned(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	if sess.IsCompleted {
		return ErrSessionCompleted
	}
	if index < 0 {
		return ErrInvalidIndex
	}

	slot, err := s.store.GetSlot(ctx, sess.ID, sess.CurrentModule, index)
	if err != nil {
		return err
	}
	if slot == nil {
		return ErrInvalidIndex
	}

	sess.CurrentIndex = index
	return s.store.SaveSessionProgress(ctx, sess)
}

// SubmitAnswer records one answer and moves the session forward. Listening
// answers go through SubmitListeningBlock instead.
func (s *Service) SubmitAnswer(ctx context.Context, userID, sessionID int64, req SubmitRequest) (*AdvanceResult, error) {
	sess, err := s.loadOwned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.IsCompleted {
		return nil, ErrSessionCompleted
	}
	module := sess.CurrentModule
	if module == models.ModuleListening {
		return nil, ErrWrongEndpoint
	}

	attempt, err := s.store.GetOrCreateAttempt(ctx, sess.ID, module, s.cfg.TimeLimits[module])
	if err != nil {
		return nil, err
	}
	if Expired(attempt, time.Now()) {
		if err := s.expireAndAdvance(ctx, sess, attempt); err != nil {
			return nil, err
		}
		return s.result(sess, func(r *AdvanceResult) { r.ModuleExpired = true }), nil
	}

	if req.Action == "prev" {
		if sess.CurrentIndex > 0 {
			sess.CurrentIndex--
			if err := s.store.SaveSessionProgress(ctx, sess); err != nil {
				return nil, err
			}
		}
		return s.result(sess, nil), nil
	}

	count, err := s.questionCount(ctx, sess, module)
	if err != nil {
		return nil, err
	}

	q, err := s.pool.GetQuestion(ctx, req.QuestionID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		log.Printf("WARN: submitted question %d vanished, session %d skips index %d",
			req.QuestionID, sess.ID, sess.CurrentIndex)
		if err := s.advanceIndex(ctx, sess, attempt, count); err != nil {
			return nil, err
		}
		return s.result(sess, func(r *AdvanceResult) {
			r.QuestionMissing = true
			r.ModuleCompleted = attempt.Status == models.AttemptCompleted
		}), nil
	}

	slot, err := s.store.GetSlot(ctx, sess.ID, module, sess.CurrentIndex)
	if err != nil {
		return nil, err
	}

	ans := Answer{
		SelectedOption: req.SelectedOption,
		Text:           req.TextAnswer,
		AudioFilename:  req.AudioFilename,
	}
	if ans.empty() {
		if err := s.recorder.RecordSkip(ctx, slot); err != nil {
			return nil, err
		}
	} else {
		if _, err := s.recorder.Record(ctx, sess, present(q, module), slot, ans); err != nil {
			return nil, err
		}
		recent, err := s.store.RecentResults(ctx, sess.ID, module, 2)
		if err != nil {
			return nil, err
		}
		sess.CurrentDifficulty = NextDifficulty(sess.CurrentDifficulty, recent)
	}

	if err := s.advanceIndex(ctx, sess, attempt, count); err != nil {
		return nil, err
	}
	return s.result(sess, func(r *AdvanceResult) {
		r.ModuleCompleted = attempt.Status == models.AttemptCompleted
	}), nil
}

// advanceIndex bumps the cursor and completes the attempt when the module's
// question count is reached. The session stays on the module until the
// client confirms via FinishModule (the review screen).
func (s *Service) advanceIndex(ctx context.Context, sess *models.Session, attempt *models.ModuleAttempt, count int) error {
	sess.CurrentIndex++
	if sess.CurrentIndex >= count && attempt.Status == models.AttemptInProgress {
		now := time.Now()
		attempt.EndedAt = &now
		attempt.Status = models.AttemptCompleted
		if err := s.store.SaveAttempt(ctx, attempt); err != nil {
			return err
		}
	}
	return s.store.SaveSessionProgress(ctx, sess)
}

// SubmitListeningBlock grades a whole audio block in one shot. Unanswered
// questions in the block are skipped, not left dangling. The final block
// only advances once the client confirms the audio finished.
func (s *Service) SubmitListeningBlock(ctx context.Context, userID, sessionID int64, req ListeningBlockRequest) (*AdvanceResult, error) {
	sess, err := s.loadOwned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.IsCompleted {
		return nil, ErrSessionCompleted
	}
	if sess.CurrentModule != models.ModuleListening {
		return nil, fmt.Errorf("current module is %s, not Listening", sess.CurrentModule)
	}

	attempt, err := s.store.GetOrCreateAttempt(ctx, sess.ID, models.ModuleListening, s.cfg.TimeLimits[models.ModuleListening])
	if err != nil {
		return nil, err
	}
	if Expired(attempt, time.Now()) {
		if err := s.expireAndAdvance(ctx, sess, attempt); err != nil {
			return nil, err
		}
		return s.result(sess, func(r *AdvanceResult) { r.ModuleExpired = true }), nil
	}

	qs, err := s.pool.ListeningQuestions(ctx, sess.ListeningPool)
	if err != nil {
		return nil, err
	}
	total := len(qs)
	start, end := BlockBounds(sess.CurrentIndex, total)

	if req.Action == "prev_block" {
		if start >= ListeningBlockSize {
			sess.CurrentIndex = start - ListeningBlockSize
		} else {
			sess.CurrentIndex = 0
		}
		if err := s.store.SaveSessionProgress(ctx, sess); err != nil {
			return nil, err
		}
		return s.result(sess, nil), nil
	}

	for i := start; i < end; i++ {
		q := qs[i]
		slot, err := s.store.GetSlot(ctx, sess.ID, models.ModuleListening, i)
		if err != nil {
			return nil, err
		}
		if slot == nil {
			slot, err = s.store.CreateSlot(ctx, &models.ServedSlot{
				SessionID:  sess.ID,
				Module:     models.ModuleListening,
				Index:      i,
				QuestionID: q.ID,
				Status:     models.SlotServed,
				ServedAt:   time.Now(),
			})
			if err != nil {
				return nil, err
			}
		}

		answer := req.Answers[strconv.FormatInt(q.ID, 10)]
		if answer == "" {
			if err := s.recorder.RecordSkip(ctx, slot); err != nil {
				return nil, err
			}
			continue
		}
		if _, err := s.recorder.Record(ctx, sess, &q, slot, Answer{SelectedOption: answer}); err != nil {
			return nil, err
		}
	}

	final := end >= total
	if final && !req.AudioCompleted {
		return s.result(sess, func(r *AdvanceResult) { r.AudioPending = true }), nil
	}

	sess.CurrentIndex = end
	if !final {
		if err := s.store.SaveSessionProgress(ctx, sess); err != nil {
			return nil, err
		}
		return s.result(sess, nil), nil
	}

	now := time.Now()
	attempt.EndedAt = &now
	attempt.Status = models.AttemptCompleted
	if err := s.store.SaveAttempt(ctx, attempt); err != nil {
		return nil, err
	}
	if err := s.advanceModule(ctx, sess); err != nil {
		return nil, err
	}
	return s.result(sess, func(r *AdvanceResult) {
		r.ModuleCompleted = true
		r.ExamCompleted = sess.IsCompleted
	}), nil
}

// FinishModule closes the current attempt and advances the sequence. The
// last module's finish completes the session and hands off to reporting.
func (s *Service) FinishModule(ctx context.Context, userID, sessionID int64) (*AdvanceResult, error) {
	sess, err := s.loadOwned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.IsCompleted {
		return nil, ErrSessionCompleted
	}

	module := sess.CurrentModule
	attempt, err := s.store.GetOrCreateAttempt(ctx, sess.ID, module, s.cfg.TimeLimits[module])
	if err != nil {
		return nil, err
	}
	if attempt.Status == models.AttemptNotStarted || attempt.Status == models.AttemptInProgress {
		now := time.Now()
		attempt.EndedAt = &now
		attempt.Status = models.AttemptCompleted
		if err := s.store.SaveAttempt(ctx, attempt); err != nil {
			return nil, err
		}
	}

	if err := s.advanceModule(ctx, sess); err != nil {
		return nil, err
	}
	return s.result(sess, func(r *AdvanceResult) {
		r.ModuleCompleted = true
		r.ExamCompleted = sess.IsCompleted
	}), nil
}

func (s *Service) expireAndAdvance(ctx context.Context, sess *models.Session, attempt *models.ModuleAttempt) error {
	now := time.Now()
	attempt.EndedAt = &now
	attempt.Status = models.AttemptExpired
	if err := s.store.SaveAttempt(ctx, attempt); err != nil {
		return err
	}
	log.Printf("Session %d: module %s expired, advancing", sess.ID, attempt.Module)
	return s.advanceModule(ctx, sess)
}

// advanceModule moves the session to the next module, or completes the exam
// and fires the report when there is none.
func (s *Service) advanceModule(ctx context.Context, sess *models.Session) error {
	next, ok := NextModule(sess.CurrentModule)
	if ok {
		sess.CurrentModule = next
		sess.CurrentIndex = 0
	} else {
		now := time.Now()
		sess.IsCompleted = true
		sess.EndTime = &now
	}
	if err := s.store.SaveSessionProgress(ctx, sess); err != nil {
		return err
	}
	if sess.IsCompleted && s.reports != nil {
		s.reports.GenerateAsync(sess.ID)
	}
	return nil
}

func (s *Service) result(sess *models.Session, mutate func(*AdvanceResult)) *AdvanceResult {
	r := &AdvanceResult{
		SessionID:     sess.ID,
		CurrentModule: sess.CurrentModule,
		QuestionIndex: sess.CurrentIndex,
		Difficulty:    sess.CurrentDifficulty,
	}
	if mutate != nil {
		mutate(r)
	}
	return r
}

func isQuestionMissing(err error) bool {
	return errors.Is(err, ErrQuestionMissing)
}
