package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrAIUnavailable is returned when the OpenAI integration is not configured.
	ErrAIUnavailable = errors.New("openai integration is not configured")
	// ErrEmptyGeneration is returned when the completion API produced no
	// usable content.
	ErrEmptyGeneration = errors.New("completion returned no content")
)

// batchSize is the ceiling on flashcards requested from the completion API
// in a single call. Larger totals are split by the orchestrator.
const batchSize = 10

// chatCompleter is the slice of the OpenAI client the AIService needs.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// AIService prompts a chat-completion model for batches of flashcards.
type AIService struct {
	client chatCompleter
	model  string
}

func NewAIService(apiKey, model, apiEndpoint string) *AIService {
	if apiKey == "" {
		return &AIService{model: model}
	}

	cfg := openai.DefaultConfig(apiKey)
	if apiEndpoint != "" {
		cfg.BaseURL = apiEndpoint
	}
	return &AIService{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// newAIServiceWithClient wires in a custom completion client, used by tests.
func newAIServiceWithClient(client chatCompleter, model string) *AIService {
	return &AIService{client: client, model: model}
}

func (s *AIService) disabled() bool {
	return s.client == nil || s.model == ""
}

// GenerateBatch asks the model for count flashcards in the given category
// and returns the raw completion text. The model is asked for a JSON array
// but its compliance is not guaranteed; callers must tolerate free text.
func (s *AIService) GenerateBatch(ctx context.Context, category string, count int) (string, error) {
	if s.disabled() {
		return "", ErrAIUnavailable
	}
	if category == "" {
		return "", errors.New("category is required")
	}
	if count < 1 || count > batchSize {
		return "", fmt.Errorf("count must be 1..%d, got %d", batchSize, count)
	}

	prompt := fmt.Sprintf(`Generate %d flashcards for the category: %s. Each flashcard should have:
1. A question.
2. A correct answer.
3. Three incorrect options.
Format the response as a JSON array where each item has "question", "answer", and "options". Do not include prefixes like "Flashcard:", "Correct Answer:", or "Incorrect Options:".`, count, category)

	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0.7,
		MaxTokens:   2000,
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%w: completion API returned status %d: %v", ErrTransport, apiErr.HTTPStatusCode, err)
		}
		return "", fmt.Errorf("%w: request completion: %v", ErrTransport, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyGeneration
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyGeneration
	}
	return content, nil
}
