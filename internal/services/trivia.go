package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"flashdeck/internal/models"
)

var (
	// ErrRateLimited indicates the trivia source rejected a call for rate
	// limiting and the retry budget is exhausted.
	ErrRateLimited = errors.New("trivia source rate limited")
	// ErrTransport indicates a network or HTTP failure talking to an
	// upstream source.
	ErrTransport = errors.New("upstream transport failure")
)

const (
	defaultRetryBaseDelay = 300 * time.Millisecond
	defaultMaxRetries     = 3
)

// TriviaService fetches raw questions from the external trivia bank.
// Rate-limit responses are retried with exponential backoff; every other
// failure class propagates immediately.
type TriviaService struct {
	client     *http.Client
	baseURL    string
	baseDelay  time.Duration
	maxRetries int
}

func NewTriviaService(baseURL string, baseDelay time.Duration, maxRetries int) *TriviaService {
	if baseDelay <= 0 {
		baseDelay = defaultRetryBaseDelay
	}
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	return &TriviaService{
		client:     &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
		baseDelay:  baseDelay,
		maxRetries: maxRetries,
	}
}

// FetchTrivia requests amount questions for the given catalog code. The
// returned items still carry HTML-entity-encoded text.
func (s *TriviaService) FetchTrivia(ctx context.Context, amount int, categoryCode string) ([]models.RawTriviaItem, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d", amount)
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.retryDelay(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		items, retryable, err := s.fetchOnce(ctx, amount, categoryCode)
		if err == nil {
			return items, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w after %d retries: %w", ErrRateLimited, s.maxRetries, lastErr)
}

// retryDelay returns the backoff before the given 1-based retry attempt:
// baseDelay, then doubling each retry.
func (s *TriviaService) retryDelay(attempt int) time.Duration {
	return s.baseDelay << (attempt - 1)
}

func (s *TriviaService) fetchOnce(ctx context.Context, amount int, categoryCode string) (items []models.RawTriviaItem, retryable bool, err error) {
	query := url.Values{}
	query.Set("amount", strconv.Itoa(amount))
	if categoryCode != "" {
		query.Set("category", categoryCode)
	}
	endpoint := s.baseURL + "/api.php?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build trivia request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("%w: request trivia questions: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, fmt.Errorf("trivia source returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("%w: trivia source returned status %d", ErrTransport, resp.StatusCode)
	}

	var payload models.TriviaResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, false, fmt.Errorf("%w: decode trivia response: %v", ErrTransport, err)
	}

	return payload.Results, false, nil
}
