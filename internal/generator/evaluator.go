package generator

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/models"
)

// Evaluator grades open-ended answers pass/fail. It is deliberately lenient:
// if the backend is unavailable or returns garbage, the student gets the
// benefit of the doubt rather than a blocked exam.
type Evaluator struct {
	llm LLMClient
}

func NewEvaluator(llm LLMClient) *Evaluator {
	return &Evaluator{llm: llm}
}

type evalResult struct {
	Passed bool `json:"passed"`
}

func (e *Evaluator) Evaluate(ctx context.Context, questionText, answerText string, level models.CEFRLevel) bool {
	if e == nil || e.llm == nil {
		return true
	}
	if strings.TrimSpace(answerText) == "" {
		return false
	}

	content, err := e.llm.Complete(ctx, evaluateSystemPrompt, BuildEvaluatePrompt(questionText, answerText, level))
	if err != nil {
		log.Printf("WARN: open-ended evaluation failed, defaulting to pass: %v", err)
		return true
	}

	cleaned := extractJSONObject(stripCodeFences(content))
	var result evalResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		log.Printf("WARN: unparseable evaluator response, defaulting to pass: %v", err)
		return true
	}
	return result.Passed
}
