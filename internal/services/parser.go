package services

import (
	"encoding/json"
	"html"
	"strings"

	"flashdeck/internal/models"
)

// placeholderAnswer is substituted when a generated line carries no
// recognizable answer. Partial data is preferred over silent loss.
const placeholderAnswer = "No answer provided"

// ParseTrivia decodes HTML entities in each raw trivia item and produces
// candidates whose options are the incorrect answers plus the correct one.
// Option order stays deterministic here; the normalizer shuffles.
func ParseTrivia(items []models.RawTriviaItem) []models.Candidate {
	candidates := make([]models.Candidate, 0, len(items))
	for _, item := range items {
		answer := html.UnescapeString(item.CorrectAnswer)
		options := make([]string, 0, len(item.IncorrectAnswers)+1)
		for _, wrong := range item.IncorrectAnswers {
			options = append(options, html.UnescapeString(wrong))
		}
		options = append(options, answer)
		candidates = append(candidates, models.Candidate{
			Question: html.UnescapeString(item.Question),
			Answer:   answer,
			Options:  options,
		})
	}
	return candidates
}

// ParseGenerated turns a completion payload into candidates. It first tries
// a strict JSON-array parse; a parse failure there is expected and falls
// back to line-oriented parsing, never an error.
func ParseGenerated(content string) []models.Candidate {
	if candidates, ok := parseJSONArray(content); ok {
		return candidates
	}
	return parseLines(content)
}

// parseJSONArray attempts the strict parse, tolerating markdown code fences
// and surrounding prose around the array.
func parseJSONArray(content string) ([]models.Candidate, bool) {
	extracted := extractJSONArray(content)
	if extracted == "" {
		return nil, false
	}
	var candidates []models.Candidate
	if err := json.Unmarshal([]byte(extracted), &candidates); err != nil {
		return nil, false
	}
	return candidates, true
}

// extractJSONArray removes markdown code block formatting if present and
// isolates the outermost JSON array.
func extractJSONArray(content string) string {
	content = strings.TrimSpace(content)

	// Remove markdown code blocks like ```json ... ``` or ``` ... ```
	if strings.HasPrefix(content, "```") {
		start := 3
		// Skip the language identifier line
		if newlineIdx := strings.Index(content[start:], "\n"); newlineIdx != -1 {
			start += newlineIdx + 1
		}
		if endIdx := strings.Index(content[start:], "```"); endIdx != -1 {
			content = content[start : start+endIdx]
		} else {
			content = content[start:]
		}
	}

	content = strings.TrimSpace(content)

	startIdx := strings.Index(content, "[")
	endIdx := strings.LastIndex(content, "]")
	if startIdx == -1 || endIdx <= startIdx {
		return ""
	}
	return strings.TrimSpace(content[startIdx : endIdx+1])
}

// parseLines groups non-blank lines by whichever policy matches their shape:
// colon-delimited question:answer records, fixed windows of five lines
// (question, answer, three distractors), or one placeholder-answer candidate
// per line when neither applies.
func parseLines(content string) []models.Candidate {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) == 0 {
		return nil
	}

	if allHaveColon(lines) {
		return parseColonRecords(lines)
	}
	if len(lines)%5 == 0 {
		return parseLineWindows(lines)
	}

	candidates := make([]models.Candidate, 0, len(lines))
	for _, line := range lines {
		candidates = append(candidates, models.Candidate{
			Question: line,
			Answer:   placeholderAnswer,
		})
	}
	return candidates
}

func allHaveColon(lines []string) bool {
	for _, line := range lines {
		if !strings.Contains(line, ":") {
			return false
		}
	}
	return true
}

func parseColonRecords(lines []string) []models.Candidate {
	candidates := make([]models.Candidate, 0, len(lines))
	for _, line := range lines {
		question, answer, _ := strings.Cut(line, ":")
		question = strings.TrimSpace(question)
		answer = strings.TrimSpace(answer)
		if answer == "" {
			answer = placeholderAnswer
		}
		candidates = append(candidates, models.Candidate{
			Question: question,
			Answer:   answer,
		})
	}
	return candidates
}

func parseLineWindows(lines []string) []models.Candidate {
	candidates := make([]models.Candidate, 0, len(lines)/5)
	for i := 0; i+4 < len(lines); i += 5 {
		answer := lines[i+1]
		candidates = append(candidates, models.Candidate{
			Question: lines[i],
			Answer:   answer,
			Options:  []string{answer, lines[i+2], lines[i+3], lines[i+4]},
		})
	}
	return candidates
}
