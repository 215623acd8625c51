package generator

import (
	"fmt"

	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/models"
)

const questionSystemPrompt = `You are an expert English exam creator.
Your ONLY job is to output valid JSON.
Do NOT write explanations. Do NOT write code blocks. Just raw JSON.`

// moduleFraming steers the model for modules that cannot be plain MCQ text.
var moduleFraming = map[models.Module]string{
	models.ModuleListening: "Reading (simulate a listening transcript context, start with 'Audio Script:')",
	models.ModuleSpeaking:  "Speaking (an open prompt like 'Describe your...')",
	models.ModuleWriting:   "Writing (an open essay prompt; ask for 150-200 words with a clear thesis)",
}

// BuildQuestionPrompt renders the user prompt for one (module, difficulty)
// question.
func BuildQuestionPrompt(module models.Module, difficulty models.CEFRLevel) string {
	framing := string(module)
	if f, ok := moduleFraming[module]; ok {
		framing = f
	}

	return fmt.Sprintf(`Create 1 single multiple-choice or open-ended question.
Level: %s
Module: %s
Language: English only.

REQUIRED JSON FORMAT:
{
    "text": "Question text...",
    "options": {"A": "...", "B": "...", "C": "...", "D": "..."},
    "correct_answer": "A",
    "question_type": "multiple_choice"
}

For open-ended questions (Writing/Speaking), set "question_type" to
"open_ended" and use null for "options" and "correct_answer".`, difficulty, framing)
}

const evaluateSystemPrompt = `You are an English teacher evaluator. Output ONLY JSON: {"passed": true} or {"passed": false}.`

// BuildEvaluatePrompt renders the pass/fail prompt for an open-ended answer.
func BuildEvaluatePrompt(questionText, answerText string, level models.CEFRLevel) string {
	return fmt.Sprintf(`Question: %s
Student Answer: %s
Target Level: %s

Is this answer acceptable for the target level?`, questionText, answerText, level)
}
