package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/c360/semindex/embedding"
	"github.com/c360/semindex/errors"
	"github.com/c360/semindex/index"
)

// Question describes one extraction request: rank texts with Query, then
// find the passage answering Question within the best matches. Snippet
// returns the full matched context instead of a single sentence.
type Question struct {
	Name     string `json:"name"`
	Query    string `json:"query"`
	Question string `json:"question"`
	Snippet  bool   `json:"snippet"`
}

// Answer pairs a question name with its extracted answer. Answer is empty
// when no text matched.
type Answer struct {
	Name   string `json:"name"`
	Answer string `json:"answer"`
}

// Extractor answers questions over a set of texts. Candidate contexts come
// from the shared index when one is configured, otherwise from a local
// embedder over the supplied texts.
type Extractor struct {
	embedder embedding.Embedder
	idx      index.Capability
	segment  *Segment
	topN     int
}

func newExtractor(config map[string]any, deps Dependencies) (Pipeline, error) {
	topN := 3
	if v, ok := config["topn"].(int); ok && v > 0 {
		topN = v
	}
	return &Extractor{
		embedder: embedderFromConfig(config),
		idx:      deps.Index,
		segment:  &Segment{},
		topN:     topN,
	}, nil
}

// Extract answers each question over texts.
func (e *Extractor) Extract(ctx context.Context, queue []Question, texts []string) ([]Answer, error) {
	answers := make([]Answer, len(queue))
	for i, question := range queue {
		answer, err := e.answer(ctx, question, texts)
		if err != nil {
			return nil, err
		}
		answers[i] = Answer{Name: question.Name, Answer: answer}
	}
	return answers, nil
}

func (e *Extractor) answer(ctx context.Context, question Question, texts []string) (string, error) {
	if len(texts) == 0 {
		return "", nil
	}

	ranked, err := e.rank(ctx, question.Query, texts)
	if err != nil {
		return "", errors.WrapTransient(err, "Extractor", "answer", "rank contexts")
	}

	topN := min(e.topN, len(ranked))
	contexts := make([]string, 0, topN)
	for _, result := range ranked[:topN] {
		position, ok := result.ID.(int64)
		if !ok || position < 0 || int(position) >= len(texts) {
			continue
		}
		contexts = append(contexts, texts[position])
	}
	if len(contexts) == 0 {
		return "", nil
	}

	if question.Snippet {
		return strings.TrimSpace(contexts[0]), nil
	}

	// Pick the sentence closest to the question across all contexts
	var sentences []string
	for _, passage := range contexts {
		sentences = append(sentences, e.segment.Split(passage)...)
	}
	if len(sentences) == 0 {
		return "", nil
	}

	scored, err := rankTexts(ctx, e.embedder, question.Question, sentences)
	if err != nil {
		return "", errors.WrapTransient(err, "Extractor", "answer", "rank sentences")
	}
	best, ok := scored[0].ID.(int64)
	if !ok {
		return "", nil
	}
	return sentences[best], nil
}

// rank scores texts against query, preferring the shared index since its
// embedder has seen the indexed corpus.
func (e *Extractor) rank(ctx context.Context, query string, texts []string) ([]index.Result, error) {
	if e.idx != nil {
		return e.idx.Similarity(ctx, query, texts)
	}
	return rankTexts(ctx, e.embedder, query, texts)
}

// Run expects (queue, texts) where queue holds Question values or equivalent
// maps and texts is the candidate context list.
func (e *Extractor) Run(ctx context.Context, args ...any) (any, error) {
	if len(args) != 2 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("expected (queue, texts), got %d arguments", len(args)),
			"Extractor", "Run", "validate arguments")
	}

	queue, err := toQuestions(args[0])
	if err != nil {
		return nil, errors.WrapInvalid(err, "Extractor", "Run", "convert queue")
	}
	texts, err := toStrings(args[1])
	if err != nil {
		return nil, errors.WrapInvalid(err, "Extractor", "Run", "convert texts")
	}
	return e.Extract(ctx, queue, texts)
}

func toQuestions(v any) ([]Question, error) {
	switch tv := v.(type) {
	case []Question:
		return tv, nil
	case []any:
		queue := make([]Question, len(tv))
		for i, item := range tv {
			question, err := toQuestion(item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			queue[i] = question
		}
		return queue, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to question queue", v)
	}
}

func toQuestion(v any) (Question, error) {
	switch tv := v.(type) {
	case Question:
		return tv, nil
	case map[string]any:
		question := Question{}
		if name, ok := tv["name"].(string); ok {
			question.Name = name
		}
		if query, ok := tv["query"].(string); ok {
			question.Query = query
		}
		if text, ok := tv["question"].(string); ok {
			question.Question = text
		}
		if snippet, ok := tv["snippet"].(bool); ok {
			question.Snippet = snippet
		}
		return question, nil
	case []any:
		// Positional form: name, query, question, snippet
		question := Question{}
		for i, field := range tv {
			switch i {
			case 0:
				question.Name, _ = field.(string)
			case 1:
				question.Query, _ = field.(string)
			case 2:
				question.Question, _ = field.(string)
			case 3:
				question.Snippet, _ = field.(bool)
			}
		}
		return question, nil
	default:
		return Question{}, fmt.Errorf("cannot convert %T to question", v)
	}
}
