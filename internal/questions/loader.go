package questions

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/models"
)

// ParsedQuestion is one item read from a pool markdown file.
type ParsedQuestion struct {
	Text          string
	Options       map[string]string
	CorrectAnswer string
}

var (
	questionLineRe = regexp.MustCompile(`^(\d+)\.\s*(.+)`)
	answerLineRe   = regexp.MustCompile(`(?i)^\(?\s*ANSWER\s*:\s*([A-D])\s*\)?$`)
	optionLineRe   = regexp.MustCompile(`^([a-dA-D])\.\s*(.+)`)
)

// ParsePoolMarkdown reads question blocks in the format:
//
//	N. Question text...
//	(ANSWER: X)
//	    a. option
//	    b. option
//	    c. option
//
// Blocks missing text, an answer, or options are dropped.
func ParsePoolMarkdown(r io.Reader) ([]ParsedQuestion, error) {
	var items []ParsedQuestion
	var current *ParsedQuestion

	flush := func() {
		if current == nil {
			return
		}
		if current.Text != "" && current.CorrectAnswer != "" && len(current.Options) > 0 {
			items = append(items, *current)
		}
		current = nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if m := questionLineRe.FindStringSubmatch(line); m != nil {
			flush()
			current = &ParsedQuestion{Text: strings.TrimSpace(m[2]), Options: map[string]string{}}
			continue
		}
		if current == nil {
			continue
		}
		if m := answerLineRe.FindStringSubmatch(line); m != nil {
			current.CorrectAnswer = strings.ToUpper(m[1])
			continue
		}
		if m := optionLineRe.FindStringSubmatch(line); m != nil {
			current.Options[strings.ToUpper(m[1])] = strings.TrimSpace(m[2])
			continue
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan markdown: %w", err)
	}
	flush()

	return items, nil
}

// EnsureListeningPool loads one listening pool's markdown parts into the
// question table, tagged with the pool's audio URL. Idempotent: already
// present texts are left untouched.
func (s *Store) EnsureListeningPool(ctx context.Context, dataDir string, pool int, audioFilename string) (int, error) {
	created := 0
	for _, part := range []string{"part1", "part2"} {
		path := filepath.Join(dataDir, fmt.Sprintf("pool%d_%s.md", pool, part))
		f, err := os.Open(path)
		if err != nil {
			log.Printf("WARN: listening file not found: %s", path)
			continue
		}
		parsed, perr := ParsePoolMarkdown(f)
		f.Close()
		if perr != nil {
			return created, fmt.Errorf("parse %s: %w", path, perr)
		}

		for _, item := range parsed {
			existing, err := s.FindByText(ctx, models.ModuleListening, item.Text)
			if err != nil {
				return created, err
			}
			if existing != nil {
				continue
			}
			_, err = s.Insert(ctx, &models.Question{
				Text:          item.Text,
				Module:        models.ModuleListening,
				Difficulty:    models.LevelB2,
				Type:          models.MultipleChoice,
				Options:       item.Options,
				CorrectAnswer: item.CorrectAnswer,
				AudioURL:      "/static/audio/" + audioFilename,
			})
			if err != nil {
				return created, err
			}
			created++
		}
	}
	return created, nil
}

// EnsureListeningPools loads both pre-built audio pools.
func (s *Store) EnsureListeningPools(ctx context.Context, dataDir string) error {
	for pool := 1; pool <= 2; pool++ {
		created, err := s.EnsureListeningPool(ctx, dataDir, pool, fmt.Sprintf("listeningaudio%d.mp3", pool))
		if err != nil {
			return fmt.Errorf("listening pool %d: %w", pool, err)
		}
		if created > 0 {
			log.Printf("Loaded %d listening questions for pool %d", created, pool)
		}
	}
	return nil
}
