package pipeline

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/c360/semindex/errors"
)

var wordPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9'-]*`)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "has": {}, "have": {},
	"he": {}, "her": {}, "his": {}, "i": {}, "if": {}, "in": {}, "is": {},
	"it": {}, "its": {}, "not": {}, "of": {}, "on": {}, "or": {}, "she": {},
	"that": {}, "the": {}, "their": {}, "they": {}, "this": {}, "to": {},
	"was": {}, "were": {}, "will": {}, "with": {}, "you": {},
}

// Summary produces extractive summaries by scoring sentences on normalized
// content word frequency and keeping the best in original order.
type Summary struct {
	segment      *Segment
	maxSentences int
}

func newSummary(config map[string]any, deps Dependencies) (Pipeline, error) {
	maxSentences := 3
	if v, ok := config["maxsentences"].(int); ok && v > 0 {
		maxSentences = v
	}
	return &Summary{segment: &Segment{}, maxSentences: maxSentences}, nil
}

// Summarize extracts the highest scoring sentences from text. maxLength of
// zero uses the configured sentence budget.
func (s *Summary) Summarize(text string, maxLength int) string {
	sentences := s.segment.Split(text)
	budget := s.maxSentences
	if maxLength > 0 {
		budget = maxLength
	}
	if len(sentences) <= budget {
		return strings.TrimSpace(text)
	}

	// Content word frequencies over the whole text
	frequency := make(map[string]int)
	for _, word := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if _, stop := stopwords[word]; stop {
			continue
		}
		frequency[word]++
	}

	type scored struct {
		position int
		score    float64
	}
	ranked := make([]scored, len(sentences))
	for i, sentence := range sentences {
		words := wordPattern.FindAllString(strings.ToLower(sentence), -1)
		total := 0
		for _, word := range words {
			total += frequency[word]
		}
		score := 0.0
		if len(words) > 0 {
			score = float64(total) / math.Sqrt(float64(len(words)))
		}
		ranked[i] = scored{position: i, score: score}
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].score > ranked[b].score
	})

	keep := ranked[:budget]
	sort.Slice(keep, func(a, b int) bool {
		return keep[a].position < keep[b].position
	})

	parts := make([]string, len(keep))
	for i, item := range keep {
		parts[i] = sentences[item.position]
	}
	return strings.Join(parts, " ")
}

// Run dispatches on argument shape: (text) or (texts) with an optional
// trailing max sentence count.
func (s *Summary) Run(ctx context.Context, args ...any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("expected (text[, maxlength]), got %d arguments", len(args)),
			"Summary", "Run", "validate arguments")
	}

	maxLength := 0
	if len(args) == 2 && args[1] != nil {
		switch v := args[1].(type) {
		case int:
			maxLength = v
		case int64:
			maxLength = int(v)
		case float64:
			maxLength = int(v)
		default:
			return nil, errors.WrapInvalid(
				fmt.Errorf("maxlength is %T, want number", args[1]),
				"Summary", "Run", "convert maxlength")
		}
	}

	switch text := args[0].(type) {
	case string:
		return s.Summarize(text, maxLength), nil
	default:
		texts, err := toStrings(args[0])
		if err != nil {
			return nil, errors.WrapInvalid(err, "Summary", "Run", "convert texts")
		}
		summaries := make([]string, len(texts))
		for i, t := range texts {
			summaries[i] = s.Summarize(t, maxLength)
		}
		return summaries, nil
	}
}
