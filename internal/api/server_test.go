package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"

	"flashdeck/internal/models"
	"flashdeck/internal/services"
)

type stubGenerator struct {
	cards    []models.Flashcard
	err      error
	category models.Category
	count    int
	useAI    bool
}

func (s *stubGenerator) Generate(ctx context.Context, category models.Category, count int, useGenerative bool) ([]models.Flashcard, error) {
	s.category = category
	s.count = count
	s.useAI = useGenerative
	if s.err != nil {
		return nil, s.err
	}
	return s.cards, nil
}

type stubStore struct {
	saved      []models.Flashcard
	savedWith  models.Category
	found      []models.Flashcard
	foundLimit int
	categories []string
	nextErr    error
	next       *models.Flashcard
}

func (s *stubStore) Save(ctx context.Context, cards []models.Flashcard, category models.Category) ([]models.Flashcard, error) {
	s.savedWith = category
	out := make([]models.Flashcard, len(cards))
	for i, card := range cards {
		card.DraftID = ""
		card.StoredID = models.StoredID(i + 1)
		card.CreatedAt = time.Now().UTC()
		out[i] = card
	}
	s.saved = out
	return out, nil
}

func (s *stubStore) FindByCategory(ctx context.Context, category string, limit int) ([]models.Flashcard, error) {
	s.foundLimit = limit
	return s.found, nil
}

func (s *stubStore) All(ctx context.Context) ([]models.Flashcard, error) { return s.found, nil }

func (s *stubStore) Categories(ctx context.Context) ([]string, error) { return s.categories, nil }

func (s *stubStore) Count(ctx context.Context) (int, error) { return len(s.found), nil }

func (s *stubStore) NextDue(ctx context.Context) (*models.Flashcard, error) {
	if s.nextErr != nil {
		return nil, s.nextErr
	}
	return s.next, nil
}

func (s *stubStore) Review(ctx context.Context, id models.StoredID, rating fsrs.Rating) (*models.Flashcard, *models.ReviewLog, error) {
	if s.next == nil {
		return nil, nil, services.ErrCardNotFound
	}
	card := *s.next
	card.Reps++
	return &card, &models.ReviewLog{CardID: card.StoredID, Rating: int(rating), ReviewedAt: time.Now().UTC()}, nil
}

func sampleCards() []models.Flashcard {
	return []models.Flashcard{
		{
			DraftID:  "0-0-123",
			Question: "Q1",
			Answer:   "A1",
			Options:  []string{"A1", "B1"},
			Category: "9",
		},
	}
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return payload
}

func TestHandleGenerate(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		gen := &stubGenerator{cards: sampleCards()}
		server := NewServer(gen, &stubStore{})

		rec := doJSON(t, server.Handler(), http.MethodPost, "/api/generate-flashcards",
			`{"category":"9","count":5}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}

		payload := decodeBody(t, rec)
		cards := payload["flashcards"].([]any)
		if len(cards) != 1 {
			t.Fatalf("expected 1 flashcard, got %d", len(cards))
		}
		first := cards[0].(map[string]any)
		if first["id"] != "0-0-123" {
			t.Errorf("draft id = %v", first["id"])
		}

		if gen.count != 5 || gen.useAI {
			t.Errorf("generator called with count=%d useAI=%v", gen.count, gen.useAI)
		}
		if _, ok := gen.category.Code(); !ok {
			t.Errorf("numeric category should resolve to a trivia code")
		}
	})

	t.Run("GenerativeCategoryStaysFreeText", func(t *testing.T) {
		gen := &stubGenerator{cards: sampleCards()}
		server := NewServer(gen, &stubStore{})

		rec := doJSON(t, server.Handler(), http.MethodPost, "/api/generate-flashcards",
			`{"category":"42","count":5,"useAI":true}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if _, ok := gen.category.Code(); ok {
			t.Error("generative category must stay free text even when numeric")
		}
		if gen.category.String() != "42" {
			t.Errorf("category forwarded as %q", gen.category.String())
		}
	})

	t.Run("DefaultCount", func(t *testing.T) {
		gen := &stubGenerator{cards: sampleCards()}
		server := NewServer(gen, &stubStore{})

		rec := doJSON(t, server.Handler(), http.MethodPost, "/api/generate-flashcards",
			`{"category":"History","useAI":true}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if gen.count != defaultCount {
			t.Errorf("count = %d, want default %d", gen.count, defaultCount)
		}
	})

	t.Run("MissingCategory", func(t *testing.T) {
		server := NewServer(&stubGenerator{}, &stubStore{})
		rec := doJSON(t, server.Handler(), http.MethodPost, "/api/generate-flashcards", `{"count":5}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("GeneratorFailure", func(t *testing.T) {
		gen := &stubGenerator{err: errors.New("upstream exploded")}
		server := NewServer(gen, &stubStore{})
		rec := doJSON(t, server.Handler(), http.MethodPost, "/api/generate-flashcards",
			`{"category":"9","count":5}`)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})

	t.Run("MethodNotAllowed", func(t *testing.T) {
		server := NewServer(&stubGenerator{}, &stubStore{})
		rec := doJSON(t, server.Handler(), http.MethodGet, "/api/generate-flashcards", "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", rec.Code)
		}
	})
}

func TestHandleLoadFlashcards(t *testing.T) {
	store := &stubStore{found: []models.Flashcard{{
		StoredID: 7,
		Question: "Q",
		Answer:   "A",
		Options:  []string{"A", "B"},
		Category: "History",
	}}}
	server := NewServer(&stubGenerator{}, store)

	rec := doJSON(t, server.Handler(), http.MethodGet, "/api/flashcards?category=History&limit=4", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if store.foundLimit != 4 {
		t.Errorf("limit forwarded as %d", store.foundLimit)
	}

	payload := decodeBody(t, rec)
	cards := payload["flashcards"].([]any)
	first := cards[0].(map[string]any)
	if first["id"] != "7" {
		t.Errorf("stored id rendered as %v", first["id"])
	}

	t.Run("MissingCategory", func(t *testing.T) {
		rec := doJSON(t, server.Handler(), http.MethodGet, "/api/flashcards", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("BadLimit", func(t *testing.T) {
		rec := doJSON(t, server.Handler(), http.MethodGet, "/api/flashcards?category=x&limit=nope", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestHandleSaveFlashcards(t *testing.T) {
	store := &stubStore{}
	server := NewServer(&stubGenerator{}, store)

	rec := doJSON(t, server.Handler(), http.MethodPost, "/api/flashcards",
		`{"category":"History","flashcards":[{"question":"Q","answer":"A","options":["A","B"]}]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if store.savedWith.String() != "History" {
		t.Errorf("category forwarded as %q", store.savedWith.String())
	}

	payload := decodeBody(t, rec)
	saved := payload["savedFlashcards"].([]any)
	first := saved[0].(map[string]any)
	if first["id"] != "1" {
		t.Errorf("saved card id = %v, want store-assigned", first["id"])
	}
	if first["createdAt"] == "" {
		t.Error("saved card missing createdAt")
	}

	t.Run("EmptyList", func(t *testing.T) {
		rec := doJSON(t, server.Handler(), http.MethodPost, "/api/flashcards",
			`{"category":"History","flashcards":[]}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestHandleCategories(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		server := NewServer(&stubGenerator{}, &stubStore{})
		rec := doJSON(t, server.Handler(), http.MethodGet, "/api/flashcards/categories", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		payload := decodeBody(t, rec)
		if categories, ok := payload["categories"].([]any); !ok || len(categories) != 0 {
			t.Errorf("categories = %v, want empty array", payload["categories"])
		}
	})

	t.Run("Populated", func(t *testing.T) {
		server := NewServer(&stubGenerator{}, &stubStore{categories: []string{"9", "History"}})
		rec := doJSON(t, server.Handler(), http.MethodGet, "/api/flashcards/categories", "")
		payload := decodeBody(t, rec)
		if categories := payload["categories"].([]any); len(categories) != 2 {
			t.Errorf("categories = %v", categories)
		}
	})
}

func TestHandleNextCard(t *testing.T) {
	t.Run("NoDueCards", func(t *testing.T) {
		server := NewServer(&stubGenerator{}, &stubStore{nextErr: services.ErrNoDueCards})
		rec := doJSON(t, server.Handler(), http.MethodGet, "/api/cards/next", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		payload := decodeBody(t, rec)
		if payload["card"] != nil {
			t.Errorf("card = %v, want null", payload["card"])
		}
	})

	t.Run("DueCard", func(t *testing.T) {
		server := NewServer(&stubGenerator{}, &stubStore{next: &models.Flashcard{
			StoredID: 3, Question: "Q", Answer: "A",
		}})
		rec := doJSON(t, server.Handler(), http.MethodGet, "/api/cards/next", "")
		payload := decodeBody(t, rec)
		card := payload["card"].(map[string]any)
		if card["id"] != float64(3) {
			t.Errorf("card id = %v", card["id"])
		}
	})
}

func TestHandleReview(t *testing.T) {
	store := &stubStore{next: &models.Flashcard{StoredID: 3, Question: "Q", Answer: "A"}}
	server := NewServer(&stubGenerator{}, store)

	rec := doJSON(t, server.Handler(), http.MethodPost, "/api/cards/3/review", `{"rating":"good"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	t.Run("UnknownRating", func(t *testing.T) {
		rec := doJSON(t, server.Handler(), http.MethodPost, "/api/cards/3/review", `{"rating":"meh"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("MissingCard", func(t *testing.T) {
		server := NewServer(&stubGenerator{}, &stubStore{})
		rec := doJSON(t, server.Handler(), http.MethodPost, "/api/cards/3/review", `{"rating":"good"}`)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestGenerationJobLifecycle(t *testing.T) {
	gen := &stubGenerator{cards: sampleCards()}
	server := NewServer(gen, &stubStore{})

	rec := doJSON(t, server.Handler(), http.MethodPost, "/api/generate-flashcards/jobs",
		`{"category":"History","count":3,"useAI":true}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	payload := decodeBody(t, rec)
	jobID, _ := payload["jobId"].(string)
	if jobID == "" {
		t.Fatalf("missing jobId in %v", payload)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec = doJSON(t, server.Handler(), http.MethodGet, "/api/generate-flashcards/jobs/"+jobID, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		payload = decodeBody(t, rec)
		status := payload["status"].(string)
		if status == JobStatusComplete {
			cards := payload["flashcards"].([]any)
			if len(cards) != 1 {
				t.Errorf("job produced %d flashcards", len(cards))
			}
			break
		}
		if status == JobStatusFailed {
			t.Fatalf("job failed: %v", payload["error"])
		}
		if time.Now().After(deadline) {
			t.Fatalf("job stuck in status %q", status)
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Run("UnknownJob", func(t *testing.T) {
		rec := doJSON(t, server.Handler(), http.MethodGet, "/api/generate-flashcards/jobs/nope", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestGenerationJobFailure(t *testing.T) {
	gen := &stubGenerator{err: errors.New("no content")}
	server := NewServer(gen, &stubStore{})

	rec := doJSON(t, server.Handler(), http.MethodPost, "/api/generate-flashcards/jobs",
		`{"category":"History","count":3,"useAI":true}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	jobID := decodeBody(t, rec)["jobId"].(string)

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec = doJSON(t, server.Handler(), http.MethodGet, "/api/generate-flashcards/jobs/"+jobID, "")
		payload := decodeBody(t, rec)
		if payload["status"] == JobStatusFailed {
			if payload["error"] == "" {
				t.Error("failed job missing error message")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never failed: %v", payload)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHealth(t *testing.T) {
	server := NewServer(&stubGenerator{}, &stubStore{})
	rec := doJSON(t, server.Handler(), http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
