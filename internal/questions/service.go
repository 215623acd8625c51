package questions

import (
	"context"
	"fmt"
	"log"

	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/generator"
	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/models"
)

// Service maintains pool stock so the exam path rarely has to call the
// generator inline.
type Service struct {
	store *Store
	gen   *generator.Generator
}

func NewService(store *Store, gen *generator.Generator) *Service {
	return &Service{store: store, gen: gen}
}

func (s *Service) Store() *Store {
	return s.store
}

// EnsurePool generates questions until the module/difficulty pair holds at
// least minCount. Generation failures stop the loop; the exam degrades
// gracefully instead of blocking on a broken generator. Listening is never
// generated — its pools are preloaded from audio transcripts.
func (s *Service) EnsurePool(ctx context.Context, module models.Module, difficulty models.CEFRLevel, minCount int) (int, error) {
	if module == models.ModuleListening {
		return 0, nil
	}

	existing, err := s.store.CountAtDifficulty(ctx, module, difficulty)
	if err != nil {
		return 0, err
	}
	if existing >= minCount {
		return 0, nil
	}

	created := 0
	// Duplicates returned by the generator do not advance the count, so cap
	// the attempts rather than looping on the shortfall alone.
	maxAttempts := (minCount - existing) * 2
	for attempt := 0; attempt < maxAttempts && existing < minCount; attempt++ {
		draft, err := s.gen.GenerateQuestion(ctx, module, difficulty)
		if err != nil {
			log.Printf("WARN: pool prefill generation failed for %s/%s: %v", module, difficulty, err)
			break
		}

		q := &models.Question{
			Text:          draft.Text,
			Module:        module,
			Difficulty:    difficulty,
			Type:          draft.Type,
			Options:       draft.Options,
			CorrectAnswer: draft.CorrectAnswer,
		}
		if module == models.ModuleWriting || module == models.ModuleSpeaking {
			q.ForceOpenEnded()
		}

		if _, err := s.store.Insert(ctx, q); err != nil {
			return created, fmt.Errorf("prefill insert: %w", err)
		}

		existing, err = s.store.CountAtDifficulty(ctx, module, difficulty)
		if err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// TopUpAll refreshes every generated module at the given difficulty. Used by
// the optional cron job and the admin prefill endpoint.
func (s *Service) TopUpAll(ctx context.Context, difficulty models.CEFRLevel, minCount int) {
	for _, module := range models.ModuleOrder {
		if module == models.ModuleListening {
			continue
		}
		if created, err := s.EnsurePool(ctx, module, difficulty, minCount); err != nil {
			log.Printf("WARN: pool top-up failed for %s: %v", module, err)
		} else if created > 0 {
			log.Printf("Pool top-up created %d questions for %s/%s", created, module, difficulty)
		}
	}
}
