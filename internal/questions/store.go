package questions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/models"
)

// Store owns the shared question pool. The pool is cross-session: writes are
// insert-or-reuse, never destructive, so concurrent sessions racing on the
// same generated text are resolved by the unique (module, text) constraint
// rather than locking.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const questionCols = `id, text, module, difficulty, question_type, options, correct_answer, COALESCE(audio_url, ''), created_at`

func scanQuestion(row interface{ Scan(...interface{}) error }) (*models.Question, error) {
	var q models.Question
	var optionsRaw []byte
	var correct sql.NullString
	if err := row.Scan(&q.ID, &q.Text, &q.Module, &q.Difficulty, &q.Type,
		&optionsRaw, &correct, &q.AudioURL, &q.CreatedAt); err != nil {
		return nil, err
	}
	if correct.Valid {
		q.CorrectAnswer = correct.String
	}
	if len(optionsRaw) > 0 {
		if err := json.Unmarshal(optionsRaw, &q.Options); err != nil {
			return nil, fmt.Errorf("decode options for question %d: %w", q.ID, err)
		}
	}
	return &q, nil
}

func (s *Store) GetQuestion(ctx context.Context, id int64) (*models.Question, error) {
	q, err := scanQuestion(s.db.QueryRowContext(ctx,
		`SELECT `+questionCols+` FROM questions WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

// PoolFilter narrows pool lookups. OpenEndedOnly excludes multiple choice
// (Writing/Speaking must never serve MCQ); AudioPool restricts Listening to
// the session's sticky pool.
type PoolFilter struct {
	Module        models.Module
	OpenEndedOnly bool
	AudioPool     int
}

func (f PoolFilter) clauses(args []interface{}) (string, []interface{}) {
	where := ` AND module = $` + fmt.Sprint(len(args)+1)
	args = append(args, f.Module)
	if f.OpenEndedOnly {
		where += ` AND question_type != '` + string(models.MultipleChoice) + `'`
	}
	if f.AudioPool > 0 {
		where += ` AND audio_url ILIKE $` + fmt.Sprint(len(args)+1)
		args = append(args, fmt.Sprintf("%%listeningaudio%d%%", f.AudioPool))
	}
	return where, args
}

// PickUnservedAtDifficulty returns a random pool question of the given
// difficulty not yet served to the session, or nil when none exists.
func (s *Store) PickUnservedAtDifficulty(ctx context.Context, sessionID int64, filter PoolFilter, difficulty models.CEFRLevel) (*models.Question, error) {
	args := []interface{}{sessionID}
	where, args := filter.clauses(args)
	args = append(args, difficulty)
	query := `SELECT ` + questionCols + ` FROM questions
		 WHERE id NOT IN (SELECT question_id FROM served_slots WHERE session_id = $1)` +
		where + ` AND difficulty = $` + fmt.Sprint(len(args)) + `
		 ORDER BY random() LIMIT 1`

	q, err := scanQuestion(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pick unserved at difficulty: %w", err)
	}
	return q, nil
}

// PickUnservedAny ignores difficulty but still excludes already-served
// questions.
func (s *Store) PickUnservedAny(ctx context.Context, sessionID int64, filter PoolFilter) (*models.Question, error) {
	args := []interface{}{sessionID}
	where, args := filter.clauses(args)
	query := `SELECT ` + questionCols + ` FROM questions
		 WHERE id NOT IN (SELECT question_id FROM served_slots WHERE session_id = $1)` +
		where + ` ORDER BY random() LIMIT 1`

	q, err := scanQuestion(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pick unserved any: %w", err)
	}
	return q, nil
}

// PickAnyRepeat is the degraded fallback: any question in the module, served
// or not.
func (s *Store) PickAnyRepeat(ctx context.Context, filter PoolFilter) (*models.Question, error) {
	args := []interface{}{}
	where, args := filter.clauses(args)
	// Strip the leading AND; this query has no prior condition.
	query := `SELECT ` + questionCols + ` FROM questions WHERE 1=1` + where + ` ORDER BY random() LIMIT 1`

	q, err := scanQuestion(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pick repeat: %w", err)
	}
	return q, nil
}

// FindByText returns the pool question with this exact text in the module,
// or nil. Used for generation dedup.
func (s *Store) FindByText(ctx context.Context, module models.Module, text string) (*models.Question, error) {
	q, err := scanQuestion(s.db.QueryRowContext(ctx,
		`SELECT `+questionCols+` FROM questions WHERE module = $1 AND text = $2`, module, text))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by text: %w", err)
	}
	return q, nil
}

// Insert adds a question if its (module, text) is not already present and
// returns the stored row either way. Two sessions racing on the same
// generated text both end up with the same row.
func (s *Store) Insert(ctx context.Context, q *models.Question) (*models.Question, error) {
	var optionsJSON interface{}
	if q.Options != nil {
		raw, err := json.Marshal(q.Options)
		if err != nil {
			return nil, fmt.Errorf("encode options: %w", err)
		}
		optionsJSON = raw
	}

	var correct interface{}
	if q.CorrectAnswer != "" {
		correct = q.CorrectAnswer
	}
	var audio interface{}
	if q.AudioURL != "" {
		audio = q.AudioURL
	}

	stored, err := scanQuestion(s.db.QueryRowContext(ctx,
		`INSERT INTO questions (text, module, difficulty, question_type, options, correct_answer, audio_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (module, text) DO UPDATE SET module = EXCLUDED.module
		 RETURNING `+questionCols,
		q.Text, q.Module, q.Difficulty, q.Type, optionsJSON, correct, audio))
	if err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}
	return stored, nil
}

// CountAtDifficulty reports how many pool questions exist for the
// module/difficulty pair, regardless of serving state.
func (s *Store) CountAtDifficulty(ctx context.Context, module models.Module, difficulty models.CEFRLevel) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM questions WHERE module = $1 AND difficulty = $2`,
		module, difficulty).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return n, nil
}

// CountUnserved reports how many pool questions remain unserved for a
// session in a module.
func (s *Store) CountUnserved(ctx context.Context, sessionID int64, filter PoolFilter) (int, error) {
	args := []interface{}{sessionID}
	where, args := filter.clauses(args)
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM questions
		 WHERE id NOT IN (SELECT question_id FROM served_slots WHERE session_id = $1)`+where,
		args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unserved: %w", err)
	}
	return n, nil
}

// ListeningQuestions returns the fixed pool's questions in insertion order,
// which mirrors the order of the source markdown parts.
func (s *Store) ListeningQuestions(ctx context.Context, pool int) ([]models.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionCols+` FROM questions
		 WHERE module = $1 AND audio_url ILIKE $2
		 ORDER BY id ASC`,
		models.ModuleListening, fmt.Sprintf("%%listeningaudio%d%%", pool))
	if err != nil {
		return nil, fmt.Errorf("listening questions: %w", err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listening question: %w", err)
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}
