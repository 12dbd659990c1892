package models

import "strconv"

// CategoryKind distinguishes the two category variants the system accepts.
type CategoryKind int

const (
	// CategoryTriviaCode is an opaque numeric code from the trivia
	// source's fixed catalog.
	CategoryTriviaCode CategoryKind = iota
	// CategoryFreeText is an arbitrary label, typed by a user or observed
	// among persisted flashcards.
	CategoryFreeText
)

// Category is a tagged union of a trivia catalog code and a free-text label.
// It is resolved once at the API boundary and forwarded unmodified from then
// on; core logic never re-probes the raw string.
type Category struct {
	kind  CategoryKind
	code  int
	label string
}

// TriviaCode builds a Category referring to the trivia catalog.
func TriviaCode(code int) Category {
	return Category{kind: CategoryTriviaCode, code: code}
}

// FreeText builds a Category from an arbitrary label.
func FreeText(label string) Category {
	return Category{kind: CategoryFreeText, label: label}
}

// ParseCategory resolves a raw category argument. A generative request always
// yields a free-text label; otherwise a numeric string is a trivia code and
// anything else stays free text.
func ParseCategory(raw string, generative bool) Category {
	if generative {
		return FreeText(raw)
	}
	if code, err := strconv.Atoi(raw); err == nil {
		return TriviaCode(code)
	}
	return FreeText(raw)
}

func (c Category) Kind() CategoryKind { return c.kind }

// Code returns the trivia catalog code and whether this category carries one.
func (c Category) Code() (int, bool) {
	return c.code, c.kind == CategoryTriviaCode
}

// String returns the exact text that identifies the category downstream:
// the decimal code for trivia categories, the label otherwise.
func (c Category) String() string {
	if c.kind == CategoryTriviaCode {
		return strconv.Itoa(c.code)
	}
	return c.label
}
