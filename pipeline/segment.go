package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/c360/semindex/errors"
)

var sentencePattern = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)

// Segment splits text into sentences.
type Segment struct{}

func newSegment(config map[string]any, deps Dependencies) (Pipeline, error) {
	return &Segment{}, nil
}

// Split returns the sentences of text in order. Trailing text without a
// sentence terminator is kept as a final sentence.
func (s *Segment) Split(text string) []string {
	matches := sentencePattern.FindAllStringIndex(text, -1)

	sentences := make([]string, 0, len(matches)+1)
	end := 0
	for _, match := range matches {
		end = match[1]
		if trimmed := strings.TrimSpace(text[match[0]:match[1]]); trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}
	if tail := strings.TrimSpace(text[end:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// Run dispatches on argument shape: a single text returns its sentences, a
// text list returns sentences per text.
func (s *Segment) Run(ctx context.Context, args ...any) (any, error) {
	if len(args) != 1 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("expected (text), got %d arguments", len(args)),
			"Segment", "Run", "validate arguments")
	}

	switch text := args[0].(type) {
	case string:
		return s.Split(text), nil
	default:
		texts, err := toStrings(args[0])
		if err != nil {
			return nil, errors.WrapInvalid(err, "Segment", "Run", "convert texts")
		}
		split := make([][]string, len(texts))
		for i, t := range texts {
			split[i] = s.Split(t)
		}
		return split, nil
	}
}
