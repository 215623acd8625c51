package generator

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
)

// MockClient serves deterministic drafts for local development, so the exam
// flow works without an API key. A counter keeps texts unique across calls,
// which matters because the pool dedups on exact text.
type MockClient struct {
	counter atomic.Int64
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

var mockTopics = []string{
	"daily routines", "travel plans", "food and cooking",
	"work and careers", "technology habits", "weather and seasons",
}

func (m *MockClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	n := m.counter.Add(1)
	topic := mockTopics[int(n)%len(mockTopics)]

	if strings.Contains(userPrompt, "Writing (") || strings.Contains(userPrompt, "Speaking (") {
		return fmt.Sprintf(`{
			"text": "[Mock %d] Describe your experience with %s. Give reasons and examples.",
			"options": null,
			"correct_answer": null,
			"question_type": "open_ended"
		}`, n, topic), nil
	}

	return fmt.Sprintf(`{
		"text": "[Mock %d] Choose the best word to complete the sentence about %s: She ___ to the office every morning.",
		"options": {"A": "go", "B": "goes", "C": "going", "D": "gone"},
		"correct_answer": "B",
		"question_type": "multiple_choice"
	}`, n, topic), nil
}
