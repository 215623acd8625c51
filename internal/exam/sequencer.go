package exam

import "github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/models"

// NextModule returns the module after m in the fixed exam order. ok is false
// when m is the last module or unknown, meaning the exam is over.
func NextModule(m models.Module) (models.Module, bool) {
	for i, mod := range models.ModuleOrder {
		if mod == m && i+1 < len(models.ModuleOrder) {
			return models.ModuleOrder[i+1], true
		}
	}
	return "", false
}

// ModuleIndex returns m's position in the exam order, or -1.
func ModuleIndex(m models.Module) int {
	for i, mod := range models.ModuleOrder {
		if mod == m {
			return i
		}
	}
	return -1
}
