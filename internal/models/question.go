package models

import "time"

type Module string

const (
	ModuleGrammar    Module = "Grammar"
	ModuleVocabulary Module = "Vocabulary"
	ModuleReading    Module = "Reading"
	ModuleWriting    Module = "Writing"
	ModuleListening  Module = "Listening"
	ModuleSpeaking   Module = "Speaking"
)

// ModuleOrder is the fixed assessment order. A session only ever moves
// forward through it.
var ModuleOrder = []Module{
	ModuleGrammar,
	ModuleVocabulary,
	ModuleReading,
	ModuleWriting,
	ModuleListening,
	ModuleSpeaking,
}

var ValidModules = map[Module]bool{
	ModuleGrammar:    true,
	ModuleVocabulary: true,
	ModuleReading:    true,
	ModuleWriting:    true,
	ModuleListening:  true,
	ModuleSpeaking:   true,
}

// CEFRLevel is one of the six proficiency bands A1..C2.
type CEFRLevel string

const (
	LevelA1 CEFRLevel = "A1"
	LevelA2 CEFRLevel = "A2"
	LevelB1 CEFRLevel = "B1"
	LevelB2 CEFRLevel = "B2"
	LevelC1 CEFRLevel = "C1"
	LevelC2 CEFRLevel = "C2"
)

var levelScores = map[CEFRLevel]int{
	LevelA1: 1, LevelA2: 2, LevelB1: 3,
	LevelB2: 4, LevelC1: 5, LevelC2: 6,
}

var scoreLevels = [...]CEFRLevel{LevelA1, LevelA2, LevelB1, LevelB2, LevelC1, LevelC2}

// LevelScore maps a CEFR level to its numeric score 1..6. Unknown levels
// map to 1.
func LevelScore(level CEFRLevel) int {
	if s, ok := levelScores[level]; ok {
		return s
	}
	return 1
}

// LevelFromScore maps a numeric score back to a CEFR level, clamped to [1, 6].
func LevelFromScore(score int) CEFRLevel {
	if score < 1 {
		score = 1
	}
	if score > 6 {
		score = 6
	}
	return scoreLevels[score-1]
}

// ParseLevel returns the CEFR level for a string like "B2", or ok=false.
func ParseLevel(s string) (CEFRLevel, bool) {
	level := CEFRLevel(s)
	_, ok := levelScores[level]
	return level, ok
}

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	OpenEnded      QuestionType = "open_ended"
)

// Question is a pool item shared across sessions. Options and CorrectAnswer
// are only set for multiple choice; AudioURL only for Listening.
type Question struct {
	ID            int64             `json:"id"`
	Text          string            `json:"text"`
	Module        Module            `json:"module"`
	Difficulty    CEFRLevel         `json:"difficulty"`
	Type          QuestionType      `json:"type"`
	Options       map[string]string `json:"options,omitempty"`
	CorrectAnswer string            `json:"-"`
	AudioURL      string            `json:"audio_url,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// ForceOpenEnded clears multiple-choice fields. Writing and Speaking never
// use multiple choice regardless of how the question was sourced.
func (q *Question) ForceOpenEnded() {
	q.Type = OpenEnded
	q.Options = nil
	q.CorrectAnswer = ""
}

// QuestionDraft is the content-generator output before it is persisted.
// A malformed generator payload is a parse failure, never a panic.
type QuestionDraft struct {
	Text          string            `json:"text"`
	Options       map[string]string `json:"options"`
	CorrectAnswer string            `json:"correct_answer"`
	Type          QuestionType      `json:"question_type"`
}
