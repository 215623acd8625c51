package exam

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/models"
	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/questions"
)

// In-memory doubles for the engine's collaborators. They mirror the SQL
// store's semantics (upserts, unique keys) without a database.

type fakeStore struct {
	mu        sync.Mutex
	nextID    int64
	sessions  map[int64]*models.Session
	attempts  map[string]*models.ModuleAttempt
	slots     map[string]*models.ServedSlot
	responses map[string]*models.Response
	respOrder []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:  map[int64]*models.Session{},
		attempts:  map[string]*models.ModuleAttempt{},
		slots:     map[string]*models.ServedSlot{},
		responses: map[string]*models.Response{},
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func attemptKey(sessionID int64, module models.Module) string {
	return fmt.Sprintf("%d/%s", sessionID, module)
}

func slotKey(sessionID int64, module models.Module, index int) string {
	return fmt.Sprintf("%d/%s/%d", sessionID, module, index)
}

func respKey(sessionID, questionID int64) string {
	return fmt.Sprintf("%d/%d", sessionID, questionID)
}

func (f *fakeStore) CreateSession(ctx context.Context, s *models.Session) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *s
	stored.ID = f.id()
	stored.StartTime = time.Now()
	f.sessions[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (f *fakeStore) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := *s
	return &out, nil
}

func (f *fakeStore) SaveSessionProgress(ctx context.Context, s *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *s
	f.sessions[s.ID] = &stored
	return nil
}

func (f *fakeStore) GetOrCreateAttempt(ctx context.Context, sessionID int64, module models.Module, timeLimitSeconds int) (*models.ModuleAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := attemptKey(sessionID, module)
	if a, ok := f.attempts[key]; ok {
		out := *a
		return &out, nil
	}
	a := &models.ModuleAttempt{
		ID:               f.id(),
		SessionID:        sessionID,
		Module:           module,
		TimeLimitSeconds: timeLimitSeconds,
		Status:           models.AttemptNotStarted,
	}
	f.attempts[key] = a
	out := *a
	return &out, nil
}

func (f *fakeStore) SaveAttempt(ctx context.Context, a *models.ModuleAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *a
	f.attempts[attemptKey(a.SessionID, a.Module)] = &stored
	return nil
}

func (f *fakeStore) GetSlot(ctx context.Context, sessionID int64, module models.Module, index int) (*models.ServedSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot, ok := f.slots[slotKey(sessionID, module, index)]
	if !ok {
		return nil, nil
	}
	out := *slot
	return &out, nil
}

func (f *fakeStore) CreateSlot(ctx context.Context, slot *models.ServedSlot) (*models.ServedSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := slotKey(slot.SessionID, slot.Module, slot.Index)
	if existing, ok := f.slots[key]; ok {
		out := *existing
		return &out, nil
	}
	stored := *slot
	stored.ID = f.id()
	f.slots[key] = &stored
	out := stored
	return &out, nil
}

func (f *fakeStore) SetSlotStatus(ctx context.Context, slotID int64, status models.SlotStatus, answeredAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, slot := range f.slots {
		if slot.ID == slotID {
			slot.Status = status
			slot.AnsweredAt = answeredAt
			return nil
		}
	}
	return fmt.Errorf("slot %d not found", slotID)
}

func (f *fakeStore) SkippedSlots(ctx context.Context, sessionID int64, module models.Module) ([]models.ServedSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ServedSlot
	for _, slot := range f.slots {
		if slot.SessionID == sessionID && slot.Module == module && slot.Status == models.SlotSkipped {
			out = append(out, *slot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (f *fakeStore) GetResponse(ctx context.Context, sessionID, questionID int64) (*models.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.responses[respKey(sessionID, questionID)]
	if !ok {
		return nil, nil
	}
	out := *r
	return &out, nil
}

func (f *fakeStore) UpsertResponse(ctx context.Context, r *models.Response) (*models.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := respKey(r.SessionID, r.QuestionID)
	if existing, ok := f.responses[key]; ok {
		existing.SelectedOption = r.SelectedOption
		existing.TextAnswer = r.TextAnswer
		existing.IsCorrect = r.IsCorrect
		existing.AudioFilename = r.AudioFilename
		out := *existing
		return &out, nil
	}
	stored := *r
	stored.ID = f.id()
	f.responses[key] = &stored
	f.respOrder = append(f.respOrder, key)
	out := stored
	return &out, nil
}

func (f *fakeStore) HasAnswered(ctx context.Context, sessionID, questionID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.responses[respKey(sessionID, questionID)]
	return ok, nil
}

func (f *fakeStore) servedQuestionIDs(sessionID int64) map[int64]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	served := map[int64]bool{}
	for _, slot := range f.slots {
		if slot.SessionID == sessionID {
			served[slot.QuestionID] = true
		}
	}
	return served
}

// RecentResults follows insertion order like the SQL store: overwriting an
// old response does not make it recent again.
func (f *fakeStore) RecentResults(ctx context.Context, sessionID int64, module models.Module, limit int) ([]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var results []bool
	for i := len(f.respOrder) - 1; i >= 0 && len(results) < limit; i-- {
		r := f.responses[f.respOrder[i]]
		if r.SessionID != sessionID {
			continue
		}
		q := f.questionModule(r.QuestionID)
		if q != module {
			continue
		}
		correct := r.IsCorrect != nil && *r.IsCorrect
		results = append(results, correct)
	}
	return results, nil
}

// questionModule is wired in by the test after the pool is built.
var moduleByQuestion = map[int64]models.Module{}

func (f *fakeStore) questionModule(questionID int64) models.Module {
	return moduleByQuestion[questionID]
}

type fakePool struct {
	mu        sync.Mutex
	store     *fakeStore
	nextID    int64
	questions map[int64]*models.Question
	listening map[int][]models.Question
}

func newFakePool(store *fakeStore) *fakePool {
	moduleByQuestion = map[int64]models.Module{}
	return &fakePool{
		store:     store,
		nextID:    1000,
		questions: map[int64]*models.Question{},
		listening: map[int][]models.Question{},
	}
}

func (f *fakePool) add(q models.Question) *models.Question {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	q.ID = f.nextID
	f.questions[q.ID] = &q
	moduleByQuestion[q.ID] = q.Module
	return &q
}

func (f *fakePool) addListening(pool int, qs ...models.Question) {
	for _, q := range qs {
		q.AudioURL = fmt.Sprintf("/static/audio/listeningaudio%d.mp3", pool)
		q.Module = models.ModuleListening
		stored := f.add(q)
		f.mu.Lock()
		f.listening[pool] = append(f.listening[pool], *stored)
		f.mu.Unlock()
	}
}

func (f *fakePool) GetQuestion(ctx context.Context, id int64) (*models.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.questions[id]
	if !ok {
		return nil, nil
	}
	out := *q
	return &out, nil
}

func (f *fakePool) matches(q *models.Question, filter questions.PoolFilter) bool {
	if q.Module != filter.Module {
		return false
	}
	if filter.OpenEndedOnly && q.Type == models.MultipleChoice {
		return false
	}
	if filter.AudioPool > 0 && !strings.Contains(q.AudioURL, fmt.Sprintf("listeningaudio%d", filter.AudioPool)) {
		return false
	}
	return true
}

func (f *fakePool) candidates(filter questions.PoolFilter) []*models.Question {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Question
	for _, q := range f.questions {
		if f.matches(q, filter) {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakePool) PickUnservedAtDifficulty(ctx context.Context, sessionID int64, filter questions.PoolFilter, difficulty models.CEFRLevel) (*models.Question, error) {
	served := f.store.servedQuestionIDs(sessionID)
	for _, q := range f.candidates(filter) {
		if q.Difficulty == difficulty && !served[q.ID] {
			out := *q
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakePool) PickUnservedAny(ctx context.Context, sessionID int64, filter questions.PoolFilter) (*models.Question, error) {
	served := f.store.servedQuestionIDs(sessionID)
	for _, q := range f.candidates(filter) {
		if !served[q.ID] {
			out := *q
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakePool) PickAnyRepeat(ctx context.Context, filter questions.PoolFilter) (*models.Question, error) {
	for _, q := range f.candidates(filter) {
		out := *q
		return &out, nil
	}
	return nil, nil
}

func (f *fakePool) FindByText(ctx context.Context, module models.Module, text string) (*models.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range f.questions {
		if q.Module == module && q.Text == text {
			out := *q
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakePool) Insert(ctx context.Context, q *models.Question) (*models.Question, error) {
	if existing, _ := f.FindByText(ctx, q.Module, q.Text); existing != nil {
		return existing, nil
	}
	return f.add(*q), nil
}

func (f *fakePool) CountUnserved(ctx context.Context, sessionID int64, filter questions.PoolFilter) (int, error) {
	served := f.store.servedQuestionIDs(sessionID)
	n := 0
	for _, q := range f.candidates(filter) {
		if !served[q.ID] {
			n++
		}
	}
	return n, nil
}

func (f *fakePool) ListeningQuestions(ctx context.Context, pool int) ([]models.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Question(nil), f.listening[pool]...), nil
}

type fakeGenerator struct {
	mu       sync.Mutex
	drafts   []*models.QuestionDraft
	err      error
	failures int // transient failures before recovering
	calls    int
}

func (f *fakeGenerator) GenerateQuestion(ctx context.Context, module models.Module, difficulty models.CEFRLevel) (*models.QuestionDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("transient generator failure")
	}
	if f.err != nil {
		return nil, f.err
	}
	if len(f.drafts) == 0 {
		return &models.QuestionDraft{
			Text:          fmt.Sprintf("generated %s question %d", module, f.calls),
			Type:          models.MultipleChoice,
			Options:       map[string]string{"A": "one", "B": "two"},
			CorrectAnswer: "A",
		}, nil
	}
	draft := f.drafts[0]
	if len(f.drafts) > 1 {
		f.drafts = f.drafts[1:]
	}
	return draft, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEvaluator struct {
	result bool
	calls  []string
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, questionText, answerText string, level models.CEFRLevel) bool {
	f.calls = append(f.calls, answerText)
	return f.result
}

type fakePrefiller struct {
	mu    sync.Mutex
	calls []models.Module
}

func (f *fakePrefiller) EnsurePool(ctx context.Context, module models.Module, difficulty models.CEFRLevel, minCount int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, module)
	return 0, nil
}

type fakeReports struct {
	mu       sync.Mutex
	sessions []int64
}

func (f *fakeReports) GenerateAsync(sessionID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, sessionID)
}

func (f *fakeReports) fired() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.sessions...)
}

func testSettings() Settings {
	return Settings{
		StartLevel: models.LevelB2,
		TimeLimits: map[models.Module]int{
			models.ModuleGrammar:    300,
			models.ModuleVocabulary: 300,
			models.ModuleReading:    420,
			models.ModuleWriting:    600,
			models.ModuleListening:  1500,
			models.ModuleSpeaking:   420,
		},
		Counts: map[models.Module]int{
			models.ModuleGrammar:    2,
			models.ModuleVocabulary: 2,
			models.ModuleReading:    2,
			models.ModuleWriting:    1,
			models.ModuleSpeaking:   1,
		},
		PrefillFactor: 1,
	}
}

type engineFixture struct {
	store    *fakeStore
	pool     *fakePool
	gen      *fakeGenerator
	eval     *fakeEvaluator
	prefill  *fakePrefiller
	reports  *fakeReports
	source   *QuestionSource
	recorder *AnswerRecorder
	service  *Service
}

func newEngineFixture() *engineFixture {
	store := newFakeStore()
	pool := newFakePool(store)
	gen := &fakeGenerator{}
	eval := &fakeEvaluator{result: true}
	prefill := &fakePrefiller{}
	reports := &fakeReports{}
	source := NewQuestionSource(store, pool, gen, 3)
	recorder := NewAnswerRecorder(store, eval)
	service := NewService(store, pool, source, recorder, prefill, reports, testSettings())
	return &engineFixture{
		store: store, pool: pool, gen: gen, eval: eval,
		prefill: prefill, reports: reports,
		source: source, recorder: recorder, service: service,
	}
}

func mcq(module models.Module, difficulty models.CEFRLevel, text string) models.Question {
	return models.Question{
		Text:          text,
		Module:        module,
		Difficulty:    difficulty,
		Type:          models.MultipleChoice,
		Options:       map[string]string{"A": "one", "B": "two", "C": "three"},
		CorrectAnswer: "A",
	}
}
