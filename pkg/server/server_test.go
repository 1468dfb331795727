package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kioku/pkg/repository"
	"github.com/m-mizutani/kioku/pkg/server"
	"github.com/m-mizutani/kioku/pkg/usecase/memory"
)

const testDimension = 8

type mockEmbedder struct {
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	vec := make([]float32, testDimension)
	for _, r := range text {
		vec[int(r)%testDimension]++
	}
	return vec, nil
}

func (m *mockEmbedder) Dimension() int { return testDimension }

type mockCompleter struct {
	answer string
	err    error
}

func (m *mockCompleter) Complete(_ context.Context, _, _ string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.answer, nil
}

func newTestHandler(t *testing.T, opts ...memory.Option) http.Handler {
	t.Helper()
	repo := repository.NewMemory(testDimension)
	uc := memory.New(repo, &mockEmbedder{}, opts...)
	return server.New(uc)
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw := gt.R1(json.Marshal(body)).NoError(t)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	gt.Equal(t, http.StatusOK, rec.Code)
}

func TestStoreAndCount(t *testing.T) {
	h := newTestHandler(t)

	rec := postJSON(t, h, "/v1/memories", map[string]any{
		"text": "Tokyo Station opened in 1914",
		"tags": []string{"history"},
	})
	gt.Equal(t, http.StatusCreated, rec.Code)

	var stored struct {
		MemoryID      string `json:"memory_id"`
		ChunksCreated int    `json:"chunks_created"`
	}
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	gt.S(t, stored.MemoryID).NotEqual("")
	gt.Equal(t, 1, stored.ChunksCreated)

	req := httptest.NewRequest(http.MethodGet, "/v1/memories/count", nil)
	countRec := httptest.NewRecorder()
	h.ServeHTTP(countRec, req)
	gt.Equal(t, http.StatusOK, countRec.Code)

	var count struct {
		TotalChunks int `json:"total_chunks"`
	}
	gt.NoError(t, json.Unmarshal(countRec.Body.Bytes(), &count))
	gt.Equal(t, 1, count.TotalChunks)
}

func TestStoreEmptyText(t *testing.T) {
	h := newTestHandler(t)

	rec := postJSON(t, h, "/v1/memories", map[string]any{"text": "   "})
	gt.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStoreInvalidBody(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/memories", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	gt.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchReturnsStoredMemory(t *testing.T) {
	h := newTestHandler(t)

	stored := postJSON(t, h, "/v1/memories", map[string]any{
		"text": "The deployment pipeline runs on every merge to main",
	})
	gt.Equal(t, http.StatusCreated, stored.Code)

	rec := postJSON(t, h, "/v1/memories/search", map[string]any{
		"query": "The deployment pipeline runs on every merge to main",
	})
	gt.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Results []struct {
			Text  string  `json:"text"`
			Score float64 `json:"score"`
		} `json:"results"`
	}
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	gt.A(t, resp.Results).Longer(0)
	gt.S(t, resp.Results[0].Text).Contains("deployment pipeline")
	gt.N(t, resp.Results[0].Score).Greater(0.99)
}

func TestQuerySynthesizesAnswer(t *testing.T) {
	h := newTestHandler(t,
		memory.WithCompleter(&mockCompleter{answer: "It runs on every merge."}),
	)

	postJSON(t, h, "/v1/memories", map[string]any{
		"text": "The deployment pipeline runs on every merge to main",
	})

	rec := postJSON(t, h, "/v1/memories/query", map[string]any{
		"query": "when does the pipeline run?",
	})
	gt.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Answer   string `json:"answer"`
		Degraded bool   `json:"degraded"`
	}
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	gt.Equal(t, "It runs on every merge.", resp.Answer)
	gt.False(t, resp.Degraded)
}

func TestQueryDegradesOnCompletionFailure(t *testing.T) {
	h := newTestHandler(t,
		memory.WithCompleter(&mockCompleter{err: errors.New("model unreachable")}),
	)

	postJSON(t, h, "/v1/memories", map[string]any{"text": "some fact"})

	rec := postJSON(t, h, "/v1/memories/query", map[string]any{"query": "some fact"})
	gt.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Answer   string `json:"answer"`
		Degraded bool   `json:"degraded"`
		Warning  string `json:"warning"`
	}
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	gt.Equal(t, "", resp.Answer)
	gt.True(t, resp.Degraded)
	gt.S(t, resp.Warning).Contains("unreachable")
}

func TestQueryEmptyQuestion(t *testing.T) {
	h := newTestHandler(t)

	rec := postJSON(t, h, "/v1/memories/query", map[string]any{"query": ""})
	gt.Equal(t, http.StatusBadRequest, rec.Code)
}
