package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"

	"flashdeck/internal/models"
	"flashdeck/internal/services"
)

const defaultCount = 10

// generator produces flashcards from one of the configured sources.
type generator interface {
	Generate(ctx context.Context, category models.Category, count int, useGenerative bool) ([]models.Flashcard, error)
}

// flashcardStore persists and retrieves flashcards.
type flashcardStore interface {
	Save(ctx context.Context, cards []models.Flashcard, category models.Category) ([]models.Flashcard, error)
	FindByCategory(ctx context.Context, category string, limit int) ([]models.Flashcard, error)
	All(ctx context.Context) ([]models.Flashcard, error)
	Categories(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	NextDue(ctx context.Context) (*models.Flashcard, error)
	Review(ctx context.Context, id models.StoredID, rating fsrs.Rating) (*models.Flashcard, *models.ReviewLog, error)
}

type Server struct {
	mux       *http.ServeMux
	generator generator
	store     flashcardStore
	jobs      *JobManager
}

func NewServer(gen generator, store flashcardStore) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		generator: gen,
		store:     store,
		jobs:      NewJobManager(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/generate-flashcards", s.handleGenerate)
	s.mux.HandleFunc("/api/generate-flashcards/jobs", s.handleCreateJob)
	s.mux.HandleFunc("/api/generate-flashcards/jobs/", s.handleJobStatus)
	s.mux.HandleFunc("/api/flashcards", s.handleFlashcards)
	s.mux.HandleFunc("/api/flashcards/all", s.handleAllFlashcards)
	s.mux.HandleFunc("/api/flashcards/categories", s.handleCategories)
	s.mux.HandleFunc("/api/cards/next", s.handleNextCard)
	s.mux.HandleFunc("/api/cards/", s.handleCardActions)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type generateRequest struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
	UseAI    bool   `json:"useAI"`
}

func (r generateRequest) resolve() (models.Category, int, error) {
	if strings.TrimSpace(r.Category) == "" {
		return models.Category{}, 0, errors.New("category is required")
	}
	count := r.Count
	if count == 0 {
		count = defaultCount
	}
	if count < 0 {
		return models.Category{}, 0, errors.New("count must be positive")
	}
	return models.ParseCategory(r.Category, r.UseAI), count, nil
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload generateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	category, count, err := payload.resolve()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cards, err := s.generator.Generate(r.Context(), category, count, payload.UseAI)
	if err != nil {
		log.Printf("generate flashcards: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"flashcards": cardViews(cards)})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload generateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	category, count, err := payload.resolve()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID, snapshot := s.jobs.CreateJob(category.String(), count)
	go s.runGenerationJob(context.Background(), jobID, category, count, payload.UseAI)

	writeJSON(w, http.StatusAccepted, snapshot)
}

func (s *Server) runGenerationJob(ctx context.Context, jobID string, category models.Category, count int, useAI bool) {
	s.jobs.MarkProcessing(jobID)

	cards, err := s.generator.Generate(ctx, category, count, useAI)
	if err != nil {
		s.jobs.MarkFailed(jobID, err.Error())
		return
	}
	s.jobs.MarkCompleted(jobID, cardViews(cards))
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/generate-flashcards/jobs/")
	jobID = strings.Trim(jobID, "/")
	if jobID == "" {
		http.NotFound(w, r)
		return
	}

	job, ok := s.jobs.GetJob(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleFlashcards(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleLoadFlashcards(w, r)
	case http.MethodPost:
		s.handleSaveFlashcards(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleLoadFlashcards(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		writeError(w, http.StatusBadRequest, "category is required")
		return
	}

	limit := defaultCount
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	cards, err := s.store.FindByCategory(r.Context(), category, limit)
	if err != nil {
		log.Printf("load flashcards: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch flashcards")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flashcards": cardViews(cards)})
}

type saveRequest struct {
	Flashcards []cardPayload `json:"flashcards"`
	Category   string        `json:"category"`
}

type cardPayload struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Options  []string `json:"options"`
	Category string   `json:"category"`
}

func (s *Server) handleSaveFlashcards(w http.ResponseWriter, r *http.Request) {
	var payload saveRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if len(payload.Flashcards) == 0 {
		writeError(w, http.StatusBadRequest, "no flashcards to save")
		return
	}

	cards := make([]models.Flashcard, 0, len(payload.Flashcards))
	for _, in := range payload.Flashcards {
		cards = append(cards, models.Flashcard{
			Question: in.Question,
			Answer:   in.Answer,
			Options:  in.Options,
			Category: in.Category,
		})
	}

	// The request category is forwarded verbatim; persisted labels are
	// always free text, whatever their origin.
	saved, err := s.store.Save(r.Context(), cards, models.FreeText(payload.Category))
	if err != nil {
		log.Printf("save flashcards: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to save flashcards")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"savedFlashcards": cardViews(saved)})
}

func (s *Server) handleAllFlashcards(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	cards, err := s.store.All(r.Context())
	if err != nil {
		log.Printf("list flashcards: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch flashcards")
		return
	}
	count, err := s.store.Count(r.Context())
	if err != nil {
		log.Printf("count flashcards: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch flashcards")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"flashcards": cardViews(cards),
		"total":      count,
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	categories, err := s.store.Categories(r.Context())
	if err != nil {
		log.Printf("list categories: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch categories")
		return
	}
	if categories == nil {
		categories = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (s *Server) handleNextCard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	card, err := s.store.NextDue(r.Context())
	if err != nil {
		if errors.Is(err, services.ErrNoDueCards) {
			writeJSON(w, http.StatusOK, map[string]any{
				"card":    nil,
				"message": "No cards due. Come back later!",
			})
			return
		}
		log.Printf("next due card: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch next card")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"card": reviewView(card)})
}

type reviewRequest struct {
	Rating string `json:"rating"`
}

func (s *Server) handleCardActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/cards/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "review" {
		http.NotFound(w, r)
		return
	}

	cardID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid card id")
		return
	}

	var payload reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	rating, err := parseRating(payload.Rating)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	card, reviewLog, err := s.store.Review(r.Context(), models.StoredID(cardID), rating)
	if err != nil {
		if errors.Is(err, services.ErrCardNotFound) {
			writeError(w, http.StatusNotFound, "card not found")
			return
		}
		log.Printf("review card %d: %v", cardID, err)
		writeError(w, http.StatusInternalServerError, "failed to review card")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"card": reviewView(card),
		"log": map[string]any{
			"rating":        reviewLog.Rating,
			"scheduledDays": reviewLog.ScheduledDays,
			"reviewedAt":    reviewLog.ReviewedAt.Format(timeLayout),
		},
	})
}

func parseRating(raw string) (fsrs.Rating, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "again":
		return fsrs.Again, nil
	case "hard":
		return fsrs.Hard, nil
	case "good":
		return fsrs.Good, nil
	case "easy":
		return fsrs.Easy, nil
	default:
		return 0, errors.New("rating must be one of: again, hard, good, easy")
	}
}

const timeLayout = time.RFC3339

// cardView is the wire shape of one flashcard. The id is the stored
// identifier once persisted, the draft identifier before that.
type cardView struct {
	ID        string   `json:"id"`
	Question  string   `json:"question"`
	Answer    string   `json:"answer"`
	Options   []string `json:"options"`
	Category  string   `json:"category,omitempty"`
	CreatedAt string   `json:"createdAt,omitempty"`
}

func newCardView(card models.Flashcard) cardView {
	view := cardView{
		ID:       string(card.DraftID),
		Question: card.Question,
		Answer:   card.Answer,
		Options:  card.Options,
		Category: card.Category,
	}
	if view.Options == nil {
		view.Options = []string{}
	}
	if card.StoredID != 0 {
		view.ID = strconv.FormatInt(int64(card.StoredID), 10)
	}
	if !card.CreatedAt.IsZero() {
		view.CreatedAt = card.CreatedAt.Format(timeLayout)
	}
	return view
}

func cardViews(cards []models.Flashcard) []cardView {
	out := make([]cardView, 0, len(cards))
	for _, card := range cards {
		out = append(out, newCardView(card))
	}
	return out
}

func reviewView(card *models.Flashcard) map[string]any {
	return map[string]any{
		"id":        int64(card.StoredID),
		"question":  card.Question,
		"answer":    card.Answer,
		"options":   card.Options,
		"category":  card.Category,
		"due":       nullTimeToString(card.Due),
		"state":     card.State,
		"stability": card.Stability,
	}
}

func nullTimeToString(t sql.NullTime) *string {
	if t.Valid {
		str := t.Time.Format(timeLayout)
		return &str
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
