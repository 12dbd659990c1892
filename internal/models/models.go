package models

import (
	"database/sql"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"
)

// DraftID is the client-generated uniqueness key a flashcard carries between
// generation and persistence. It is only unique within one generation run.
type DraftID string

// StoredID is the identifier the store assigns when a flashcard is persisted.
// A reloaded flashcard carries a StoredID and no DraftID.
type StoredID int64

// Flashcard is the canonical unit of study material. Before persistence only
// DraftID is set; after a save or reload only StoredID identifies the card.
type Flashcard struct {
	DraftID   DraftID
	StoredID  StoredID
	Question  string
	Answer    string
	Options   []string
	Category  string
	CreatedAt time.Time

	// Scheduling state, populated for persisted cards.
	Due           sql.NullTime
	Stability     float64
	Difficulty    float64
	ElapsedDays   int
	ScheduledDays int
	Reps          int
	Lapses        int
	State         int
	LastReview    sql.NullTime
}

// Candidate is a parsed-but-not-yet-normalized flashcard: no identifier,
// no category, options still in upstream order.
type Candidate struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Options  []string `json:"options"`
}

// RawTriviaItem is one question as delivered by the trivia question bank.
// All text fields arrive HTML-entity-encoded.
type RawTriviaItem struct {
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

// TriviaResponse is the trivia endpoint's envelope.
type TriviaResponse struct {
	ResponseCode int             `json:"response_code"`
	Results      []RawTriviaItem `json:"results"`
}

// ReviewLog records one review of a persisted flashcard.
type ReviewLog struct {
	ID            int64
	CardID        StoredID
	Rating        int
	ScheduledDays int
	ElapsedDays   int
	State         int
	ReviewedAt    time.Time
}

func (f *Flashcard) ToFSRSCard() fsrs.Card {
	card := fsrs.Card{
		Stability:     f.Stability,
		Difficulty:    f.Difficulty,
		ElapsedDays:   uint64(max(f.ElapsedDays, 0)),
		ScheduledDays: uint64(max(f.ScheduledDays, 0)),
		Reps:          uint64(max(f.Reps, 0)),
		Lapses:        uint64(max(f.Lapses, 0)),
		State:         fsrs.State(max(f.State, 0)),
	}
	if f.Due.Valid {
		card.Due = f.Due.Time
	}
	if f.LastReview.Valid {
		card.LastReview = f.LastReview.Time
	}
	return card
}

func (f *Flashcard) ApplyFSRSCard(c fsrs.Card) {
	f.Due = sql.NullTime{Time: c.Due, Valid: !c.Due.IsZero()}
	f.Stability = c.Stability
	f.Difficulty = c.Difficulty
	f.ElapsedDays = int(c.ElapsedDays)
	f.ScheduledDays = int(c.ScheduledDays)
	f.Reps = int(c.Reps)
	f.Lapses = int(c.Lapses)
	f.State = int(c.State)
	f.LastReview = sql.NullTime{Time: c.LastReview, Valid: !c.LastReview.IsZero()}
}

func max[T ~int | ~int32 | ~int64](a, b T) T {
	if a > b {
		return a
	}
	return b
}
