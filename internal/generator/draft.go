package generator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/models"
)

type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("draft validation failed: %s", strings.Join(e.Errors, "; "))
}

// ParseDraft turns a raw model response into a validated question draft.
// Models occasionally wrap JSON in code fences or append commentary, so the
// payload is isolated before unmarshalling.
func ParseDraft(responseBody string) (*models.QuestionDraft, error) {
	cleaned := stripCodeFences(responseBody)
	cleaned = extractJSONObject(cleaned)

	var draft models.QuestionDraft
	if err := json.Unmarshal([]byte(cleaned), &draft); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	if err := validateDraft(&draft); err != nil {
		return nil, err
	}

	return &draft, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimSpace(s)
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSpace(s)
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	return s
}

// extractJSONObject trims any prose around the outermost { ... } pair.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

var validOptionKeys = map[string]bool{"A": true, "B": true, "C": true, "D": true}

func validateDraft(draft *models.QuestionDraft) error {
	var errs []string

	draft.Text = strings.TrimSpace(draft.Text)
	if draft.Text == "" {
		errs = append(errs, "empty question text")
	}

	switch draft.Type {
	case models.OpenEnded:
		draft.Options = nil
		draft.CorrectAnswer = ""
	case models.MultipleChoice, "":
		draft.Type = models.MultipleChoice
		if len(draft.Options) < 2 {
			errs = append(errs, fmt.Sprintf("expected at least 2 options, got %d", len(draft.Options)))
		}
		for key := range draft.Options {
			if !validOptionKeys[key] {
				errs = append(errs, fmt.Sprintf("invalid option key %q", key))
			}
		}
		draft.CorrectAnswer = strings.ToUpper(strings.TrimSpace(draft.CorrectAnswer))
		if draft.CorrectAnswer == "" {
			errs = append(errs, "missing correct_answer")
		} else if _, ok := draft.Options[draft.CorrectAnswer]; !ok {
			errs = append(errs, fmt.Sprintf("correct_answer %q not among options", draft.CorrectAnswer))
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid question_type %q", draft.Type))
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}
