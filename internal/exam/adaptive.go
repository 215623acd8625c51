package exam

import "github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/models"

// NextDifficulty applies the adaptive rule after a submitted answer. recent
// holds correctness of the current module's responses, most recent first;
// only the two most recent matter. Two correct raise the level, two
// incorrect lower it, anything else keeps it. The result stays in A1..C2.
func NextDifficulty(current models.CEFRLevel, recent []bool) models.CEFRLevel {
	if len(recent) < 2 {
		return current
	}
	score := models.LevelScore(current)
	switch {
	case recent[0] && recent[1]:
		score++
	case !recent[0] && !recent[1]:
		score--
	}
	return models.LevelFromScore(score)
}
