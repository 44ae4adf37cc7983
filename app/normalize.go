package app

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/c360/semindex/document"
	"github.com/c360/semindex/errors"
	"github.com/c360/semindex/index"
)

// toDocuments normalizes input elements into canonical documents. Accepted
// shapes: a structured record with id/text/object fields, a bare text string
// or an (id, text[, object]) pair. Elements without an id receive sequential
// ids starting at next; a negative next leaves missing ids unassigned, which
// lets the cluster router apply its own id scheme.
func toDocuments(elements []any, next int64) ([]document.Document, error) {
	batch := make([]document.Document, len(elements))
	for i, element := range elements {
		doc, err := toDocument(element)
		if err != nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("document %d: %w", i, err),
				"Application", "Add", "normalize documents")
		}
		switch {
		case doc.ID == nil && next >= 0:
			doc.ID = next
			next++
		case doc.ID != nil:
			doc.ID = index.NormalizeID(doc.ID)
		}
		batch[i] = doc
	}
	return batch, nil
}

func toDocument(element any) (document.Document, error) {
	switch v := element.(type) {
	case document.Document:
		return v, nil
	case string:
		return document.Document{Text: v}, nil
	case map[string]any:
		doc := document.Document{}
		if id, ok := v["id"]; ok {
			doc.ID = id
		}
		if text, ok := v["text"].(string); ok {
			doc.Text = text
		}
		if object, ok := v["object"]; ok {
			doc.Object = object
		}
		return doc, nil
	case []any:
		// (id, text) or (id, text, object)
		if len(v) < 2 || len(v) > 3 {
			return document.Document{}, fmt.Errorf("pair has %d fields, want 2 or 3", len(v))
		}
		doc := document.Document{ID: v[0]}
		if text, ok := v[1].(string); ok {
			doc.Text = text
		} else {
			return document.Document{}, fmt.Errorf("pair text is %T, want string", v[1])
		}
		if len(v) == 3 {
			doc.Object = v[2]
		}
		return doc, nil
	default:
		return document.Document{}, fmt.Errorf("cannot normalize %T", element)
	}
}

// NormalizeResults converts a scoring result sequence into canonical records.
// Accepted shapes per element: an index.Result, an (id, score) pair or a map
// with id and score keys. Ordering is preserved.
func NormalizeResults(raw any) ([]index.Result, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []index.Result:
		return v, nil
	case []any:
		results := make([]index.Result, len(v))
		for i, element := range v {
			result, err := toResult(element)
			if err != nil {
				return nil, errors.WrapInvalid(
					fmt.Errorf("result %d: %w", i, err),
					"Application", "NormalizeResults", "convert results")
			}
			results[i] = result
		}
		return results, nil
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("cannot normalize %T", raw),
			"Application", "NormalizeResults", "convert results")
	}
}

// NormalizeBatchResults converts a per-query result sequence.
func NormalizeBatchResults(raw any) ([][]index.Result, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case [][]index.Result:
		return v, nil
	case []any:
		batches := make([][]index.Result, len(v))
		for i, element := range v {
			batch, err := NormalizeResults(element)
			if err != nil {
				return nil, err
			}
			batches[i] = batch
		}
		return batches, nil
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("cannot normalize %T", raw),
			"Application", "NormalizeBatchResults", "convert results")
	}
}

func toResult(element any) (index.Result, error) {
	switch v := element.(type) {
	case index.Result:
		return v, nil
	case []any:
		if len(v) != 2 {
			return index.Result{}, fmt.Errorf("pair has %d fields, want 2", len(v))
		}
		score, err := toScore(v[1])
		if err != nil {
			return index.Result{}, err
		}
		return index.Result{ID: index.NormalizeID(v[0]), Score: score}, nil
	case map[string]any:
		result := index.Result{ID: index.NormalizeID(v["id"])}
		score, err := toScore(v["score"])
		if err != nil {
			return index.Result{}, err
		}
		result.Score = score
		if text, ok := v["text"].(string); ok {
			result.Text = text
		}
		return result, nil
	default:
		return index.Result{}, fmt.Errorf("cannot normalize %T", element)
	}
}

// toScore coerces a score value to a float64 rounded to six decimal places
// for stable serialization.
func toScore(v any) (float64, error) {
	var score float64
	switch tv := v.(type) {
	case float64:
		score = tv
	case float32:
		score = float64(tv)
	case int:
		score = float64(tv)
	case int64:
		score = float64(tv)
	case json.Number:
		parsed, err := tv.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid score %q: %w", tv.String(), err)
		}
		score = parsed
	default:
		return 0, fmt.Errorf("score is %T, want number", v)
	}
	return math.Round(score*1e6) / 1e6, nil
}

// normalizeElements resolves json.Number values left by front-end decoding
// so workflow actions and document normalization see plain Go numbers.
func normalizeElements(elements []any) []any {
	out := make([]any, len(elements))
	for i, element := range elements {
		out[i] = normalizeValue(element)
	}
	return out
}

func normalizeValue(v any) any {
	switch tv := v.(type) {
	case json.Number:
		if n, err := tv.Int64(); err == nil {
			return n
		}
		if f, err := tv.Float64(); err == nil {
			return f
		}
		return tv.String()
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = normalizeValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(tv))
		for key, item := range tv {
			out[key] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}
