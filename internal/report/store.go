package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/models"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ModuleOutcome is one module's raw tally for a session. Skipped slots stay
// in the denominator: not answering costs the same as answering wrong.
type ModuleOutcome struct {
	Module  models.Module
	Total   int
	Correct int
}

func (s *Store) SessionOutcomes(ctx context.Context, sessionID int64) ([]ModuleOutcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.module,
		        COUNT(*) AS total,
		        COUNT(*) FILTER (WHERE r.is_correct) AS correct
		 FROM served_slots s
		 LEFT JOIN responses r
		   ON r.session_id = s.session_id AND r.question_id = s.question_id
		 WHERE s.session_id = $1
		 GROUP BY s.module`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("session outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []ModuleOutcome
	for rows.Next() {
		var o ModuleOutcome
		if err := rows.Scan(&o.Module, &o.Total, &o.Correct); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

const reportCols = `id, session_id, score, level_result, module_stats_json, COALESCE(ai_feedback, ''), status, generated_at`

func scanReport(row *sql.Row) (*models.Report, error) {
	var r models.Report
	var statsRaw []byte
	err := row.Scan(&r.ID, &r.SessionID, &r.Score, &r.LevelResult, &statsRaw,
		&r.AIFeedback, &r.Status, &r.GeneratedAt)
	if err != nil {
		return nil, err
	}
	if len(statsRaw) > 0 {
		if err := json.Unmarshal(statsRaw, &r.ModuleStats); err != nil {
			return nil, fmt.Errorf("decode module stats: %w", err)
		}
	}
	return &r, nil
}

// Upsert keeps one report per session; regeneration replaces the old one.
func (s *Store) Upsert(ctx context.Context, r *models.Report) (*models.Report, error) {
	statsJSON, err := json.Marshal(r.ModuleStats)
	if err != nil {
		return nil, fmt.Errorf("encode module stats: %w", err)
	}
	stored, err := scanReport(s.db.QueryRowContext(ctx,
		`INSERT INTO reports (session_id, score, level_result, module_stats_json, ai_feedback, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (session_id) DO UPDATE
		 SET score = EXCLUDED.score,
		     level_result = EXCLUDED.level_result,
		     module_stats_json = EXCLUDED.module_stats_json,
		     ai_feedback = EXCLUDED.ai_feedback,
		     status = EXCLUDED.status,
		     generated_at = NOW()
		 RETURNING `+reportCols,
		r.SessionID, r.Score, r.LevelResult, statsJSON, r.AIFeedback, r.Status))
	if err != nil {
		return nil, fmt.Errorf("upsert report: %w", err)
	}
	return stored, nil
}

func (s *Store) SetFeedback(ctx context.Context, sessionID int64, feedback string, status models.ReportStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reports SET ai_feedback = $1, status = $2 WHERE session_id = $3`,
		feedback, status, sessionID)
	if err != nil {
		return fmt.Errorf("set feedback: %w", err)
	}
	return nil
}

func (s *Store) GetBySession(ctx context.Context, sessionID int64) (*models.Report, error) {
	r, err := scanReport(s.db.QueryRowContext(ctx,
		`SELECT `+reportCols+` FROM reports WHERE session_id = $1`, sessionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return r, nil
}

// SessionOwner resolves who the report belongs to, for access checks.
func (s *Store) SessionOwner(ctx context.Context, sessionID int64) (int64, error) {
	var userID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM test_sessions WHERE id = $1`, sessionID).Scan(&userID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("session owner: %w", err)
	}
	return userID, nil
}

// UpdateUserLevel writes the final CEFR result back onto the student.
func (s *Store) UpdateUserLevel(ctx context.Context, sessionID int64, level models.CEFRLevel) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET current_level = $1, updated_at = NOW()
		 WHERE id = (SELECT user_id FROM test_sessions WHERE id = $2)`,
		level, sessionID)
	if err != nil {
		return fmt.Errorf("update user level: %w", err)
	}
	return nil
}
