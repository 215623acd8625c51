package exam

import (
	"time"

	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/models"
)

// Remaining computes the seconds left on a module attempt at the given
// instant. bounded is false when the attempt has no start timestamp or a
// zero budget, in which case the module has unlimited time. The value is
// floored at 0; expiry itself is the orchestrator's call.
func Remaining(attempt *models.ModuleAttempt, now time.Time) (seconds int, bounded bool) {
	if attempt == nil || attempt.StartedAt == nil || attempt.TimeLimitSeconds <= 0 {
		return 0, false
	}
	elapsed := int(now.Sub(*attempt.StartedAt).Seconds())
	remaining := attempt.TimeLimitSeconds - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Expired reports whether the attempt's budget has run out while it was
// still in progress. Checks are lazy: nothing expires between requests.
func Expired(attempt *models.ModuleAttempt, now time.Time) bool {
	if attempt == nil || attempt.Status != models.AttemptInProgress {
		return false
	}
	remaining, bounded := Remaining(attempt, now)
	return bounded && remaining == 0
}
