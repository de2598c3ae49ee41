package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatches(t *testing.T) {
	texts := []string{"a", "b", "c", "d", "e"}
	got := batches(texts, 2)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, got)
	assert.Len(t, batches(texts, 0), 1)
	assert.Empty(t, batches(nil, 2))
}

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "embed-small", req.Model)

		// Answer in reverse order to check Index handling.
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(len(req.Input[i])), 1},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	defer srv.Close()

	e, err := NewOpenAI(OpenAIConfig{
		Model:     "embed-small",
		BatchSize: 2,
		Options: []option.RequestOption{
			option.WithAPIKey("k"),
			option.WithBaseURL(srv.URL + "/v1/"),
			option.WithMaxRetries(0),
		},
	})
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{1, 1}, vecs[0])
	assert.Equal(t, []float32{2, 1}, vecs[1])
	assert.Equal(t, []float32{3, 1}, vecs[2])
	assert.Equal(t, int32(2), calls.Load())

	one, err := e.Embed(context.Background(), "dddd")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 1}, one)
}

func TestOpenAIEmbedder_RequiresModel(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{})
	assert.Error(t, err)
}

func TestNewGemini_RequiresClient(t *testing.T) {
	_, err := NewGemini(nil, "", 0)
	assert.Error(t, err)
}
