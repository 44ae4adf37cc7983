package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/c360/semindex/document"
	"github.com/c360/semindex/index"
	"github.com/c360/semindex/pkg/retry"
)

// shard is the HTTP client for a single remote index shard.
type shard struct {
	baseURL string
	client  *http.Client
	retry   retry.Config
}

func newShard(baseURL string, timeout time.Duration) *shard {
	return &shard{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		retry:   retry.DefaultConfig(),
	}
}

// idKey renders an id into its routing key form.
func idKey(id any) string {
	return fmt.Sprintf("%v", index.NormalizeID(id))
}

// do performs one JSON request against the shard with retries. Server errors
// and transport failures retry; client errors fail immediately.
func (s *shard) do(ctx context.Context, method, path string, body, out any) error {
	return retry.Do(ctx, s.retry, func() error {
		var reader io.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			if err != nil {
				return retry.NonRetryable(err)
			}
			reader = bytes.NewReader(raw)
		}

		req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
		if err != nil {
			return retry.NonRetryable(err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("shard %s returned %d", s.baseURL, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return retry.NonRetryable(fmt.Errorf("shard %s returned %d", s.baseURL, resp.StatusCode))
		}

		if out == nil {
			return nil
		}

		decoder := json.NewDecoder(resp.Body)
		decoder.UseNumber()
		if err := decoder.Decode(out); err != nil {
			return retry.NonRetryable(fmt.Errorf("decode shard response: %w", err))
		}
		return nil
	})
}

func (s *shard) count(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := s.do(ctx, http.MethodGet, "/count", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (s *shard) add(ctx context.Context, documents []document.Document) error {
	body := struct {
		Documents []document.Document `json:"documents"`
	}{Documents: documents}
	return s.do(ctx, http.MethodPost, "/add", body, nil)
}

func (s *shard) flush(ctx context.Context, path string) error {
	return s.do(ctx, http.MethodPost, path, nil, nil)
}

func (s *shard) delete(ctx context.Context, ids []any) ([]any, error) {
	body := struct {
		IDs []any `json:"ids"`
	}{IDs: ids}

	var out struct {
		IDs []any `json:"ids"`
	}
	if err := s.do(ctx, http.MethodPost, "/delete", body, &out); err != nil {
		return nil, err
	}
	return normalizeIDs(out.IDs), nil
}

func (s *shard) search(ctx context.Context, query string, limit int) ([]index.Result, error) {
	body := struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}{Query: query, Limit: limit}

	var out struct {
		Results []index.Result `json:"results"`
	}
	if err := s.do(ctx, http.MethodPost, "/search", body, &out); err != nil {
		return nil, err
	}
	return normalizeResults(out.Results), nil
}

func (s *shard) similarity(ctx context.Context, query string, texts []string) ([]index.Result, error) {
	body := struct {
		Query string   `json:"query"`
		Texts []string `json:"texts"`
	}{Query: query, Texts: texts}

	var out struct {
		Results []index.Result `json:"results"`
	}
	if err := s.do(ctx, http.MethodPost, "/similarity", body, &out); err != nil {
		return nil, err
	}
	return normalizeResults(out.Results), nil
}

func (s *shard) batchSimilarity(ctx context.Context, queries []string, texts []string) ([][]index.Result, error) {
	body := struct {
		Queries []string `json:"queries"`
		Texts   []string `json:"texts"`
	}{Queries: queries, Texts: texts}

	var out struct {
		Results [][]index.Result `json:"results"`
	}
	if err := s.do(ctx, http.MethodPost, "/batchsimilarity", body, &out); err != nil {
		return nil, err
	}
	for i, results := range out.Results {
		out.Results[i] = normalizeResults(results)
	}
	return out.Results, nil
}

func (s *shard) transform(ctx context.Context, text string) ([]float64, error) {
	body := struct {
		Text string `json:"text"`
	}{Text: text}

	var out struct {
		Vector []float64 `json:"vector"`
	}
	if err := s.do(ctx, http.MethodPost, "/transform", body, &out); err != nil {
		return nil, err
	}
	return out.Vector, nil
}

func (s *shard) batchTransform(ctx context.Context, texts []string) ([][]float64, error) {
	body := struct {
		Texts []string `json:"texts"`
	}{Texts: texts}

	var out struct {
		Vectors [][]float64 `json:"vectors"`
	}
	if err := s.do(ctx, http.MethodPost, "/batchtransform", body, &out); err != nil {
		return nil, err
	}
	return out.Vectors, nil
}

func normalizeIDs(ids []any) []any {
	for i, id := range ids {
		ids[i] = index.NormalizeID(id)
	}
	return ids
}

func normalizeResults(results []index.Result) []index.Result {
	for i, result := range results {
		results[i].ID = index.NormalizeID(result.ID)
	}
	return results
}
