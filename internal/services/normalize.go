package services

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"flashdeck/internal/models"
)

const (
	placeholderQuestion = "No question provided"
)

// Normalize converts parsed candidates into canonical flashcards: trimmed
// fields, deduplicated and uniformly shuffled options, a draft identifier
// unique within the batch, and the request's category attached. CreatedAt
// stays zero until the store assigns it at persistence time.
func Normalize(candidates []models.Candidate, batchIndex int, category models.Category) []models.Flashcard {
	cards := make([]models.Flashcard, 0, len(candidates))
	now := time.Now().UnixMilli()
	for i, candidate := range candidates {
		question := strings.TrimSpace(candidate.Question)
		if question == "" {
			question = placeholderQuestion
		}
		answer := strings.TrimSpace(candidate.Answer)
		if answer == "" {
			answer = placeholderAnswer
		}

		options := cleanOptions(candidate.Options)
		rand.Shuffle(len(options), func(a, b int) {
			options[a], options[b] = options[b], options[a]
		})

		cards = append(cards, models.Flashcard{
			DraftID:  models.DraftID(fmt.Sprintf("%d-%d-%d", batchIndex, i, now)),
			Question: question,
			Answer:   answer,
			Options:  options,
			Category: category.String(),
		})
	}
	return cards
}

// cleanOptions trims every option, drops the ones that are empty after
// trimming, and removes exact duplicates while keeping first occurrences.
func cleanOptions(options []string) []string {
	cleaned := make([]string, 0, len(options))
	seen := make(map[string]struct{}, len(options))
	for _, opt := range options {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		if _, dup := seen[opt]; dup {
			continue
		}
		seen[opt] = struct{}{}
		cleaned = append(cleaned, opt)
	}
	return cleaned
}
