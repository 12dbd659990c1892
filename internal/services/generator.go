package services

import (
	"context"
	"fmt"

	"flashdeck/internal/models"
)

// triviaFetcher is the slice of TriviaService the orchestrator depends on.
type triviaFetcher interface {
	FetchTrivia(ctx context.Context, amount int, categoryCode string) ([]models.RawTriviaItem, error)
}

// batchGenerator is the slice of AIService the orchestrator depends on.
type batchGenerator interface {
	GenerateBatch(ctx context.Context, category string, count int) (string, error)
}

// GenerationError reports a failed generation request along with which batch
// failed and how many flashcards had been produced before the failure.
type GenerationError struct {
	Batch    int
	Produced int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed at batch %d after %d flashcards: %v", e.Batch, e.Produced, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// GeneratorService drives flashcard generation across one of the two
// sources, splitting large requests into sequential bounded batches.
type GeneratorService struct {
	trivia triviaFetcher
	ai     batchGenerator
}

func NewGeneratorService(trivia triviaFetcher, ai batchGenerator) *GeneratorService {
	return &GeneratorService{trivia: trivia, ai: ai}
}

// Generate produces exactly count flashcards for the category, or fails the
// whole request. Batches run sequentially; batch i+1 is not started until
// batch i completes, and an adapter failure aborts with batch context rather
// than returning a partial list.
func (s *GeneratorService) Generate(ctx context.Context, category models.Category, count int, useGenerative bool) ([]models.Flashcard, error) {
	if count <= 0 {
		return nil, fmt.Errorf("count must be positive, got %d", count)
	}

	cards := make([]models.Flashcard, 0, count)
	for batch := 0; len(cards) < count; batch++ {
		request := count - len(cards)
		if request > batchSize {
			request = batchSize
		}

		produced, err := s.generateBatch(ctx, category, request, batch, useGenerative)
		if err != nil {
			return nil, &GenerationError{Batch: batch, Produced: len(cards), Err: err}
		}
		if len(produced) == 0 {
			return nil, &GenerationError{Batch: batch, Produced: len(cards), Err: ErrEmptyGeneration}
		}

		cards = append(cards, produced...)
	}

	// A generative batch may overshoot the requested size.
	if len(cards) > count {
		cards = cards[:count]
	}
	return cards, nil
}

func (s *GeneratorService) generateBatch(ctx context.Context, category models.Category, request, batch int, useGenerative bool) ([]models.Flashcard, error) {
	var candidates []models.Candidate
	if useGenerative {
		content, err := s.ai.GenerateBatch(ctx, category.String(), request)
		if err != nil {
			return nil, err
		}
		candidates = ParseGenerated(content)
	} else {
		items, err := s.trivia.FetchTrivia(ctx, request, category.String())
		if err != nil {
			return nil, err
		}
		candidates = ParseTrivia(items)
	}
	return Normalize(candidates, batch, category), nil
}
