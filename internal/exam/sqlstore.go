package exam

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/models"
)

// SQLStore is the Postgres-backed SessionStore. Per-session rows are only
// ever touched by their own session, so single-row upserts are all the
// atomicity the engine needs.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const sessionCols = `id, user_id, start_time, end_time, is_completed, current_module, current_question_index, current_difficulty, listening_pool`

func scanSession(row *sql.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.UserID, &s.StartTime, &s.EndTime, &s.IsCompleted,
		&s.CurrentModule, &s.CurrentIndex, &s.CurrentDifficulty, &s.ListeningPool)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *SQLStore) CreateSession(ctx context.Context, sess *models.Session) (*models.Session, error) {
	stored, err := scanSession(s.db.QueryRowContext(ctx,
		`INSERT INTO test_sessions (user_id, current_module, current_difficulty, listening_pool)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+sessionCols,
		sess.UserID, sess.CurrentModule, sess.CurrentDifficulty, sess.ListeningPool))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return stored, nil
}

func (s *SQLStore) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionCols+` FROM test_sessions WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *SQLStore) SaveSessionProgress(ctx context.Context, sess *models.Session) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE test_sessions
		 SET current_module = $1, current_question_index = $2, current_difficulty = $3,
		     is_completed = $4, end_time = $5
		 WHERE id = $6`,
		sess.CurrentModule, sess.CurrentIndex, sess.CurrentDifficulty,
		sess.IsCompleted, sess.EndTime, sess.ID)
	if err != nil {
		return fmt.Errorf("save session progress: %w", err)
	}
	return nil
}

const attemptCols = `id, session_id, module, started_at, ended_at, time_limit_seconds, status`

func scanAttempt(row *sql.Row) (*models.ModuleAttempt, error) {
	var a models.ModuleAttempt
	err := row.Scan(&a.ID, &a.SessionID, &a.Module, &a.StartedAt, &a.EndedAt,
		&a.TimeLimitSeconds, &a.Status)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetOrCreateAttempt returns the attempt for (session, module), creating it
// lazily on first access. The unique constraint makes a racing double-create
// collapse into one row.
func (s *SQLStore) GetOrCreateAttempt(ctx context.Context, sessionID int64, module models.Module, timeLimitSeconds int) (*models.ModuleAttempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx,
		`INSERT INTO module_attempts (session_id, module, time_limit_seconds, status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id, module) DO UPDATE SET session_id = EXCLUDED.session_id
		 RETURNING `+attemptCols,
		sessionID, module, timeLimitSeconds, models.AttemptNotStarted))
	if err != nil {
		return nil, fmt.Errorf("get or create attempt: %w", err)
	}
	return a, nil
}

func (s *SQLStore) SaveAttempt(ctx context.Context, a *models.ModuleAttempt) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE module_attempts
		 SET started_at = $1, ended_at = $2, status = $3
		 WHERE id = $4`,
		a.StartedAt, a.EndedAt, a.Status, a.ID)
	if err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}
	return nil
}

const slotCols = `id, session_id, module, question_index, question_id, status, served_at, answered_at`

func scanSlot(row interface{ Scan(...interface{}) error }) (*models.ServedSlot, error) {
	var slot models.ServedSlot
	err := row.Scan(&slot.ID, &slot.SessionID, &slot.Module, &slot.Index,
		&slot.QuestionID, &slot.Status, &slot.ServedAt, &slot.AnsweredAt)
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (s *SQLStore) GetSlot(ctx context.Context, sessionID int64, module models.Module, index int) (*models.ServedSlot, error) {
	slot, err := scanSlot(s.db.QueryRowContext(ctx,
		`SELECT `+slotCols+` FROM served_slots
		 WHERE session_id = $1 AND module = $2 AND question_index = $3`,
		sessionID, module, index))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	return slot, nil
}

// CreateSlot inserts the slot; if the index was already bound (a retried
// request), the existing binding wins.
func (s *SQLStore) CreateSlot(ctx context.Context, slot *models.ServedSlot) (*models.ServedSlot, error) {
	stored, err := scanSlot(s.db.QueryRowContext(ctx,
		`INSERT INTO served_slots (session_id, module, question_index, question_id, status)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_id, module, question_index) DO UPDATE SET session_id = EXCLUDED.session_id
		 RETURNING `+slotCols,
		slot.SessionID, slot.Module, slot.Index, slot.QuestionID, slot.Status))
	if err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}
	return stored, nil
}

func (s *SQLStore) SetSlotStatus(ctx context.Context, slotID int64, status models.SlotStatus, answeredAt *time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE served_slots SET status = $1, answered_at = $2 WHERE id = $3`,
		status, answeredAt, slotID)
	if err != nil {
		return fmt.Errorf("set slot status: %w", err)
	}
	return nil
}

func (s *SQLStore) SkippedSlots(ctx context.Context, sessionID int64, module models.Module) ([]models.ServedSlot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+slotCols+` FROM served_slots
		 WHERE session_id = $1 AND module = $2 AND status = $3
		 ORDER BY question_index ASC`,
		sessionID, module, models.SlotSkipped)
	if err != nil {
		return nil, fmt.Errorf("skipped slots: %w", err)
	}
	defer rows.Close()

	var slots []models.ServedSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, *slot)
	}
	return slots, rows.Err()
}

const responseCols = `id, session_id, question_id, selected_option, text_answer, is_correct, audio_filename`

func scanResponse(row *sql.Row) (*models.Response, error) {
	var r models.Response
	err := row.Scan(&r.ID, &r.SessionID, &r.QuestionID, &r.SelectedOption,
		&r.TextAnswer, &r.IsCorrect, &r.AudioFilename)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLStore) GetResponse(ctx context.Context, sessionID, questionID int64) (*models.Response, error) {
	r, err := scanResponse(s.db.QueryRowContext(ctx,
		`SELECT `+responseCols+` FROM responses
		 WHERE session_id = $1 AND question_id = $2`,
		sessionID, questionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get response: %w", err)
	}
	return r, nil
}

// UpsertResponse keeps one logical response per (session, question). A
// resubmission replaces every answer field of the earlier row.
func (s *SQLStore) UpsertResponse(ctx context.Context, r *models.Response) (*models.Response, error) {
	stored, err := scanResponse(s.db.QueryRowContext(ctx,
		`INSERT INTO responses (session_id, question_id, selected_option, text_answer, is_correct, audio_filename)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (session_id, question_id) DO UPDATE
		 SET selected_option = EXCLUDED.selected_option,
		     text_answer = EXCLUDED.text_answer,
		     is_correct = EXCLUDED.is_correct,
		     audio_filename = EXCLUDED.audio_filename,
		     updated_at = NOW()
		 RETURNING `+responseCols,
		r.SessionID, r.QuestionID, r.SelectedOption, r.TextAnswer, r.IsCorrect, r.AudioFilename))
	if err != nil {
		return nil, fmt.Errorf("upsert response: %w", err)
	}
	return stored, nil
}

func (s *SQLStore) HasAnswered(ctx context.Context, sessionID, questionID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM responses WHERE session_id = $1 AND question_id = $2)`,
		sessionID, questionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has answered: %w", err)
	}
	return exists, nil
}

// RecentResults returns correctness of the session's responses within a
// module, most recent first. Recency follows insertion order; overwriting
// an old answer does not move it forward.
func (s *SQLStore) RecentResults(ctx context.Context, sessionID int64, module models.Module, limit int) ([]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(r.is_correct, FALSE)
		 FROM responses r
		 JOIN questions q ON q.id = r.question_id
		 WHERE r.session_id = $1 AND q.module = $2
		 ORDER BY r.id DESC
		 LIMIT $3`,
		sessionID, module, limit)
	if err != nil {
		return nil, fmt.Errorf("recent results: %w", err)
	}
	defer rows.Close()

	var results []bool
	for rows.Next() {
		var correct bool
		if err := rows.Scan(&correct); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, correct)
	}
	return results, rows.Err()
}
