package generator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sashabaranov/go-openai"

	"github.com/EmreIrmak/LevelAssessment-AIPoweredEnglishEducation/internal/models"
)

// groqBaseURL is the OpenAI-compatible endpoint Groq exposes.
const groqBaseURL = "https://api.groq.com/openai/v1"

// LLMClient is the interface all generator backends satisfy.
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Config selects and configures a generator backend.
type Config struct {
	Kind           string // "groq", "anthropic" or "mock"
	GroqAPIKey     string
	GroqModel      string
	AnthropicModel string
}

// Generator produces question drafts for (module, difficulty) pairs.
// Failures are transient: callers retry or fall back, they never surface
// generation errors to the end user.
type Generator struct {
	llm   LLMClient
	model string
}

func New(cfg Config) *Generator {
	switch cfg.Kind {
	case "anthropic":
		log.Println("Generator using Anthropic API:", cfg.AnthropicModel)
		return &Generator{llm: NewAnthropicClient(cfg.AnthropicModel), model: cfg.AnthropicModel}
	case "mock":
		log.Println("Generator using mock data")
		return &Generator{llm: NewMockClient(), model: "mock"}
	default:
		log.Println("Generator using Groq API:", cfg.GroqModel)
		return &Generator{llm: NewGroqClient(cfg.GroqAPIKey, cfg.GroqModel), model: cfg.GroqModel}
	}
}

func (g *Generator) ModelName() string {
	return g.model
}

// GenerateQuestion asks the backend for one question draft. A malformed
// response is returned as an error, not a partial draft.
func (g *Generator) GenerateQuestion(ctx context.Context, module models.Module, difficulty models.CEFRLevel) (*models.QuestionDraft, error) {
	userPrompt := BuildQuestionPrompt(module, difficulty)

	content, err := g.llm.Complete(ctx, questionSystemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("generate %s question: %w", module, err)
	}

	draft, err := ParseDraft(content)
	if err != nil {
		return nil, fmt.Errorf("parse %s draft: %w", module, err)
	}

	// Writing and Speaking prompts are always open-ended.
	if module == models.ModuleWriting || module == models.ModuleSpeaking {
		draft.Type = models.OpenEnded
		draft.Options = nil
		draft.CorrectAnswer = ""
	}

	return draft, nil
}

// ── GroqClient — OpenAI-compatible API (production default) ─────

type GroqClient struct {
	client *openai.Client
	model  string
}

func NewGroqClient(apiKey, model string) *GroqClient {
	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = groqBaseURL
	return &GroqClient{client: openai.NewClientWithConfig(clientCfg), model: model}
}

func (c *GroqClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.5,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("groq chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("groq returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// ── AnthropicClient ────────────────────────────────────────────

type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

func NewAnthropicClient(model string) *AnthropicClient {
	client := anthropic.NewClient(option.WithEnvironmentProduction())
	return &AnthropicClient{client: &client, model: model}
}

func (c *AnthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(1<<uint(attempt)) * time.Second)
		}

		message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: 1024,
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
			},
		})
		if err != nil {
			lastErr = err
			log.Printf("Anthropic API attempt %d failed: %v", attempt+1, err)
			continue
		}

		for _, block := range message.Content {
			if block.Type == "text" {
				return block.Text, nil
			}
		}
		return "", fmt.Errorf("no text content in API response")
	}
	return "", fmt.Errorf("anthropic API failed after retries: %w", lastErr)
}
