package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"

	"flashdeck/internal/models"
)

var (
	// ErrPersistence wraps store read/write failures so callers can report
	// them independently of generation outcome.
	ErrPersistence = errors.New("flashcard store failure")
	// ErrNoDueCards indicates that there are no cards ready to review.
	ErrNoDueCards = errors.New("no due cards")
	// ErrCardNotFound indicates the requested stored card does not exist.
	ErrCardNotFound = errors.New("card not found")
)

// FlashcardService persists flashcards and retrieves them by category, and
// schedules reviews of persisted cards with FSRS.
type FlashcardService struct {
	db     *sql.DB
	params fsrs.Parameters
}

func NewFlashcardService(db *sql.DB) *FlashcardService {
	return &FlashcardService{db: db, params: fsrs.DefaultParam()}
}

// Save persists the given flashcards. The store assigns each card its stored
// identifier and creation timestamp; the draft identifier is not persisted.
// A card with no category of its own falls back to the request category,
// which is forwarded as an exact string.
func (s *FlashcardService) Save(ctx context.Context, cards []models.Flashcard, category models.Category) ([]models.Flashcard, error) {
	fallback := category.String()
	now := time.Now().UTC()

	saved := make([]models.Flashcard, 0, len(cards))
	for _, card := range cards {
		if card.Category == "" {
			card.Category = fallback
		}
		optionsJSON, err := json.Marshal(card.Options)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal options: %v", ErrPersistence, err)
		}

		res, err := s.db.ExecContext(ctx, `
			INSERT INTO flashcards (category, question, answer, options, created_at)
			VALUES (?, ?, ?, ?, ?);
		`, card.Category, card.Question, card.Answer, string(optionsJSON), now)
		if err != nil {
			return nil, fmt.Errorf("%w: insert flashcard: %v", ErrPersistence, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("%w: read inserted id: %v", ErrPersistence, err)
		}

		card.DraftID = ""
		card.StoredID = models.StoredID(id)
		card.CreatedAt = now
		saved = append(saved, card)
	}
	return saved, nil
}

const cardColumns = `id, category, question, answer, options, due, stability, difficulty,
	       elapsed_days, scheduled_days, reps, lapses, state, last_review, created_at`

// FindByCategory returns at most limit flashcards whose stored category
// equals the requested value exactly.
func (s *FlashcardService) FindByCategory(ctx context.Context, category string, limit int) ([]models.Flashcard, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM flashcards
		WHERE category = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?;
	`, category, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query flashcards: %v", ErrPersistence, err)
	}
	defer rows.Close()
	return scanCards(rows)
}

// All returns every persisted flashcard, newest first.
func (s *FlashcardService) All(ctx context.Context) ([]models.Flashcard, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM flashcards
		ORDER BY created_at DESC, id DESC;
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: query flashcards: %v", ErrPersistence, err)
	}
	defer rows.Close()
	return scanCards(rows)
}

// Categories returns the distinct category labels observed among persisted
// flashcards.
func (s *FlashcardService) Categories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT category FROM flashcards ORDER BY category ASC;
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: query categories: %v", ErrPersistence, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, fmt.Errorf("%w: scan category: %v", ErrPersistence, err)
		}
		out = append(out, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate categories: %v", ErrPersistence, err)
	}
	return out, nil
}

// Count returns the number of persisted flashcards.
func (s *FlashcardService) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flashcards;`).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: count flashcards: %v", ErrPersistence, err)
	}
	return count, nil
}

// NextDue returns the next card to review: the earliest due card, then the
// oldest card never scheduled.
func (s *FlashcardService) NextDue(ctx context.Context) (*models.Flashcard, error) {
	now := time.Now().UTC()

	card, err := s.fetchCard(ctx, `
		SELECT `+cardColumns+`
		FROM flashcards
		WHERE due IS NOT NULL AND due <= ?
		ORDER BY due ASC
		LIMIT 1;
	`, now)
	if err == nil {
		return card, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	card, err = s.fetchCard(ctx, `
		SELECT `+cardColumns+`
		FROM flashcards
		WHERE due IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT 1;
	`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoDueCards
		}
		return nil, err
	}
	return card, nil
}

// Review applies the user's rating to a stored card, updating its FSRS
// scheduling state and appending a review log in one transaction.
func (s *FlashcardService) Review(ctx context.Context, id models.StoredID, rating fsrs.Rating) (*models.Flashcard, *models.ReviewLog, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: begin tx: %v", ErrPersistence, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx, `
		SELECT `+cardColumns+`
		FROM flashcards
		WHERE id = ?;
	`, int64(id))
	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: id %d", ErrCardNotFound, id)
		}
		return nil, nil, fmt.Errorf("%w: load card %d: %v", ErrPersistence, id, err)
	}

	now := time.Now().UTC()
	scheduling := s.params.Repeat(card.ToFSRSCard(), now)
	info, ok := scheduling[rating]
	if !ok {
		return nil, nil, fmt.Errorf("rating %d not supported", rating)
	}
	card.ApplyFSRSCard(info.Card)

	if _, err = tx.ExecContext(ctx, `
		UPDATE flashcards
		SET due = ?, stability = ?, difficulty = ?, elapsed_days = ?, scheduled_days = ?,
		    reps = ?, lapses = ?, state = ?, last_review = ?
		WHERE id = ?;
	`,
		nullTimePtr(card.Due),
		card.Stability,
		card.Difficulty,
		card.ElapsedDays,
		card.ScheduledDays,
		card.Reps,
		card.Lapses,
		card.State,
		nullTimePtr(card.LastReview),
		int64(card.StoredID),
	); err != nil {
		return nil, nil, fmt.Errorf("%w: update card %d: %v", ErrPersistence, card.StoredID, err)
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO review_logs (card_id, rating, scheduled_days, elapsed_days, state, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?);
	`, int64(card.StoredID), info.ReviewLog.Rating, info.ReviewLog.ScheduledDays, info.ReviewLog.ElapsedDays, info.ReviewLog.State, now); err != nil {
		return nil, nil, fmt.Errorf("%w: insert review log: %v", ErrPersistence, err)
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("%w: commit review: %v", ErrPersistence, err)
	}

	reviewLog := &models.ReviewLog{
		CardID:        card.StoredID,
		Rating:        int(info.ReviewLog.Rating),
		ScheduledDays: int(info.ReviewLog.ScheduledDays),
		ElapsedDays:   int(info.ReviewLog.ElapsedDays),
		State:         int(info.ReviewLog.State),
		ReviewedAt:    now,
	}
	return card, reviewLog, nil
}

func (s *FlashcardService) fetchCard(ctx context.Context, query string, args ...any) (*models.Flashcard, error) {
	return scanCard(s.db.QueryRowContext(ctx, query, args...))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*models.Flashcard, error) {
	card := &models.Flashcard{}
	var id int64
	var optionsJSON string
	if err := row.Scan(
		&id,
		&card.Category,
		&card.Question,
		&card.Answer,
		&optionsJSON,
		&card.Due,
		&card.Stability,
		&card.Difficulty,
		&card.ElapsedDays,
		&card.ScheduledDays,
		&card.Reps,
		&card.Lapses,
		&card.State,
		&card.LastReview,
		&card.CreatedAt,
	); err != nil {
		return nil, err
	}
	card.StoredID = models.StoredID(id)
	if err := json.Unmarshal([]byte(optionsJSON), &card.Options); err != nil {
		return nil, fmt.Errorf("decode options for card %d: %w", id, err)
	}
	return card, nil
}

func scanCards(rows *sql.Rows) ([]models.Flashcard, error) {
	var out []models.Flashcard
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan flashcard: %v", ErrPersistence, err)
		}
		out = append(out, *card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate flashcards: %v", ErrPersistence, err)
	}
	return out, nil
}

func nullTimePtr(t sql.NullTime) any {
	if t.Valid {
		return t.Time
	}
	return nil
}
