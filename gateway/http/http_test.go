package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semindex/app"
	"github.com/c360/semindex/config"
)

func newTestServer(t *testing.T, yaml string) *httptest.Server {
	t.Helper()

	settings, err := config.Load(yaml)
	require.NoError(t, err)

	gateway, err := app.New(settings)
	require.NoError(t, err)
	t.Cleanup(gateway.Close)

	server := httptest.NewServer(NewServer(Config{}, gateway, nil, nil).Routes())
	t.Cleanup(server.Close)
	return server
}

func post(t *testing.T, server *httptest.Server, path string, payload any) *http.Response {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(server.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	require.NoError(t, decoder.Decode(out))
}

const serverYAML = `
writable: true
embeddings:
    method: bm25
`

func TestServer_Health(t *testing.T) {
	server := newTestServer(t, serverYAML)

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]any
	decodeBody(t, resp, &health)
	assert.Equal(t, "ok", health["status"])
}

func TestServer_IndexRoundTrip(t *testing.T) {
	server := newTestServer(t, serverYAML)

	resp := post(t, server, "/add", map[string]any{
		"documents": []any{
			map[string]any{"id": 0, "text": "Maine man wins lottery from lottery ticket"},
			map[string]any{"id": 1, "text": "Beijing mobilises invasion craft along coast"},
		},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = post(t, server, "/index", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(server.URL + "/count")
	require.NoError(t, err)
	var count struct {
		Count int `json:"count"`
	}
	decodeBody(t, resp, &count)
	assert.Equal(t, 2, count.Count)

	resp = post(t, server, "/search", map[string]any{"query": "lottery winner", "limit": 1})
	var search struct {
		Results []struct {
			ID    json.Number `json:"id"`
			Score float64     `json:"score"`
		} `json:"results"`
	}
	decodeBody(t, resp, &search)
	require.Len(t, search.Results, 1)
	assert.Equal(t, json.Number("0"), search.Results[0].ID)
	assert.Greater(t, search.Results[0].Score, 0.0)
}

func TestServer_BatchSearch(t *testing.T) {
	server := newTestServer(t, serverYAML)

	resp := post(t, server, "/add", map[string]any{
		"documents": []any{"lottery ticket winner", "invasion craft coast"},
	})
	resp.Body.Close()
	resp = post(t, server, "/index", nil)
	resp.Body.Close()

	resp = post(t, server, "/batchsearch", map[string]any{
		"queries": []string{"lottery", "invasion"},
		"limit":   1,
	})
	var batch struct {
		Results [][]map[string]any `json:"results"`
	}
	decodeBody(t, resp, &batch)
	require.Len(t, batch.Results, 2)
	assert.Equal(t, json.Number("0"), batch.Results[0][0]["id"])
	assert.Equal(t, json.Number("1"), batch.Results[1][0]["id"])
}

func TestServer_Delete(t *testing.T) {
	server := newTestServer(t, serverYAML)

	resp := post(t, server, "/add", map[string]any{"documents": []any{"a", "b"}})
	resp.Body.Close()
	resp = post(t, server, "/index", nil)
	resp.Body.Close()

	resp = post(t, server, "/delete", map[string]any{"ids": []any{0}})
	var deleted struct {
		IDs []json.Number `json:"ids"`
	}
	decodeBody(t, resp, &deleted)
	assert.Equal(t, []json.Number{"0"}, deleted.IDs)
}

func TestServer_Similarity(t *testing.T) {
	server := newTestServer(t, serverYAML)

	resp := post(t, server, "/similarity", map[string]any{
		"query": "lottery win",
		"texts": []string{"maine man wins lottery", "ice shelf collapsed"},
	})
	var similarity struct {
		Results []map[string]any `json:"results"`
	}
	decodeBody(t, resp, &similarity)
	require.Len(t, similarity.Results, 2)
	assert.Equal(t, json.Number("0"), similarity.Results[0]["id"])
}

func TestServer_Transform(t *testing.T) {
	server := newTestServer(t, serverYAML)

	resp := post(t, server, "/transform", map[string]any{"text": "some text"})
	var transform struct {
		Vector []float64 `json:"vector"`
	}
	decodeBody(t, resp, &transform)
	assert.NotEmpty(t, transform.Vector)
}

func TestServer_Extract(t *testing.T) {
	server := newTestServer(t, serverYAML)

	resp := post(t, server, "/extract", map[string]any{
		"queue": []map[string]any{
			{"name": "win", "query": "lottery", "question": "who won the lottery", "snippet": true},
		},
		"texts": []string{"Maine man wins lottery from a ticket", "Ice shelf collapsed"},
	})
	var extract struct {
		Answers []struct {
			Name   string `json:"name"`
			Answer string `json:"answer"`
		} `json:"answers"`
	}
	decodeBody(t, resp, &extract)
	require.Len(t, extract.Answers, 1)
	assert.Equal(t, "win", extract.Answers[0].Name)
	assert.Contains(t, extract.Answers[0].Answer, "lottery")
}

func TestServer_Label(t *testing.T) {
	server := newTestServer(t, serverYAML+`
labels:
    method: bm25
`)

	resp := post(t, server, "/label", map[string]any{
		"text":   "the team won the championship game",
		"labels": []string{"sports game team", "politics election"},
	})
	var label struct {
		Results []map[string]any `json:"results"`
	}
	decodeBody(t, resp, &label)
	require.Len(t, label.Results, 2)
	assert.Equal(t, json.Number("0"), label.Results[0]["id"])
}

func TestServer_PipelineAndWorkflow(t *testing.T) {
	server := newTestServer(t, serverYAML+`
segment: {}
workflow:
    split:
        tasks:
            - action: segment
`)

	resp := post(t, server, "/pipeline", map[string]any{
		"name": "segment",
		"args": []any{"One. Two."},
	})
	var pipelineResp struct {
		Result []string `json:"result"`
	}
	decodeBody(t, resp, &pipelineResp)
	assert.Equal(t, []string{"One.", "Two."}, pipelineResp.Result)

	resp = post(t, server, "/workflow", map[string]any{
		"name":     "split",
		"elements": []any{"One. Two."},
	})
	var workflowResp struct {
		Elements [][]string `json:"elements"`
	}
	decodeBody(t, resp, &workflowResp)
	require.Len(t, workflowResp.Elements, 1)
	assert.Equal(t, []string{"One.", "Two."}, workflowResp.Elements[0])
}

func TestServer_BadJSON(t *testing.T) {
	server := newTestServer(t, serverYAML)

	resp, err := http.Post(server.URL+"/search", "application/json",
		strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_RequestTooLarge(t *testing.T) {
	settings, err := config.Load(serverYAML)
	require.NoError(t, err)
	gateway, err := app.New(settings)
	require.NoError(t, err)
	t.Cleanup(gateway.Close)

	server := httptest.NewServer(
		NewServer(Config{MaxRequestSize: 16}, gateway, nil, nil).Routes())
	defer server.Close()

	resp, err := http.Post(server.URL+"/search", "application/json",
		strings.NewReader(`{"query":"a very long query that exceeds the limit"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

// TestServer_ActsAsClusterShard proves local and distributed deployments
// interoperate: a cluster-configured gateway uses this server as its shard.
func TestServer_ActsAsClusterShard(t *testing.T) {
	shard := newTestServer(t, serverYAML)

	settings, err := config.Load(`
writable: true
cluster:
    shards:
        - ` + shard.URL + `
`)
	require.NoError(t, err)

	clustered, err := app.New(settings)
	require.NoError(t, err)
	t.Cleanup(clustered.Close)

	ctx := t.Context()
	_, err = clustered.Add(ctx, []any{
		map[string]any{"id": int64(0), "text": "Maine man wins lottery"},
		map[string]any{"id": int64(1), "text": "Beijing mobilises invasion craft"},
	})
	require.NoError(t, err)
	require.NoError(t, clustered.Index(ctx))

	count, ok := clustered.Count()
	require.True(t, ok)
	assert.Equal(t, 2, count)

	results, err := clustered.Search(ctx, "lottery", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(0), results[0].ID)
}
