package app

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semindex/document"
	"github.com/c360/semindex/index"
)

func TestLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero defaults", 0, 10},
		{"in range", 5, 5},
		{"above max", 1000, 250},
		{"negative clamps to one", -3, 1},
		{"max boundary", 250, 250},
		{"min boundary", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Limit(tt.limit))
		})
	}
}

func TestNormalizeResults_Pairs(t *testing.T) {
	results, err := NormalizeResults([]any{
		[]any{1, 0.9},
		[]any{2, 0.5},
	})
	require.NoError(t, err)

	assert.Equal(t, []index.Result{
		{ID: int64(1), Score: 0.9},
		{ID: int64(2), Score: 0.5},
	}, results)
}

func TestNormalizeResults_RecordsPassThrough(t *testing.T) {
	input := []index.Result{{ID: int64(7), Score: 0.3}}

	results, err := NormalizeResults(input)
	require.NoError(t, err)
	assert.Equal(t, input, results)
}

func TestNormalizeResults_Maps(t *testing.T) {
	results, err := NormalizeResults([]any{
		map[string]any{"id": "doc1", "score": json.Number("0.75"), "text": "hello"},
	})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "doc1", results[0].ID)
	assert.Equal(t, 0.75, results[0].Score)
	assert.Equal(t, "hello", results[0].Text)
}

func TestNormalizeResults_PreservesOrder(t *testing.T) {
	// Upstream sorts by score; normalization must not re-sort
	results, err := NormalizeResults([]any{
		[]any{"low", 0.1},
		[]any{"high", 0.9},
	})
	require.NoError(t, err)
	assert.Equal(t, "low", results[0].ID)
	assert.Equal(t, "high", results[1].ID)
}

func TestNormalizeResults_BadShape(t *testing.T) {
	_, err := NormalizeResults([]any{"not a result"})
	assert.Error(t, err)

	_, err = NormalizeResults(42)
	assert.Error(t, err)
}

func TestNormalizeBatchResults(t *testing.T) {
	batches, err := NormalizeBatchResults([]any{
		[]any{[]any{1, 0.9}},
		[]any{[]any{2, 0.8}},
	})
	require.NoError(t, err)

	require.Len(t, batches, 2)
	assert.Equal(t, int64(1), batches[0][0].ID)
	assert.Equal(t, int64(2), batches[1][0].ID)
}

func TestToScore_Rounding(t *testing.T) {
	score, err := toScore(0.123456789)
	require.NoError(t, err)
	assert.Equal(t, 0.123457, score)
}

func TestToDocuments_Shapes(t *testing.T) {
	batch, err := toDocuments([]any{
		map[string]any{"id": "named", "text": "structured record"},
		"bare text",
		[]any{42, "pair text"},
		[]any{"triple", "pair with object", map[string]any{"tag": "x"}},
	}, 100)
	require.NoError(t, err)
	require.Len(t, batch, 4)

	assert.Equal(t, document.Document{ID: "named", Text: "structured record"}, batch[0])
	assert.Equal(t, document.Document{ID: int64(100), Text: "bare text"}, batch[1])
	assert.Equal(t, document.Document{ID: int64(42), Text: "pair text"}, batch[2])
	assert.Equal(t, "triple", batch[3].ID)
	assert.NotNil(t, batch[3].Object)
}

func TestToDocuments_AutoIDsSequential(t *testing.T) {
	batch, err := toDocuments([]any{"a", "b", "c"}, 5)
	require.NoError(t, err)

	assert.Equal(t, int64(5), batch[0].ID)
	assert.Equal(t, int64(6), batch[1].ID)
	assert.Equal(t, int64(7), batch[2].ID)
}

func TestToDocuments_BadShape(t *testing.T) {
	_, err := toDocuments([]any{3.14}, 0)
	assert.Error(t, err)

	_, err = toDocuments([]any{[]any{1}}, 0)
	assert.Error(t, err)
}

func TestNormalizeElements_ResolvesNumbers(t *testing.T) {
	elements := normalizeElements([]any{
		json.Number("42"),
		json.Number("0.5"),
		[]any{json.Number("1"), "text"},
		map[string]any{"id": json.Number("7")},
	})

	assert.Equal(t, int64(42), elements[0])
	assert.Equal(t, 0.5, elements[1])
	assert.Equal(t, []any{int64(1), "text"}, elements[2])
	assert.Equal(t, map[string]any{"id": int64(7)}, elements[3])
}
