package runtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vymalo/quiz-backend/pkg/config"
	"github.com/vymalo/quiz-backend/pkg/embedder"
	"github.com/vymalo/quiz-backend/pkg/model"
	"github.com/vymalo/quiz-backend/pkg/pipeline"
	"github.com/vymalo/quiz-backend/pkg/tool"
)

type fakeLLM struct {
	name string
}

func (f *fakeLLM) Name() string             { return f.name }
func (f *fakeLLM) Provider() model.Provider { return model.ProviderOpenAI }
func (f *fakeLLM) Close() error             { return nil }

func (f *fakeLLM) GenerateContent(_ context.Context, req *model.Request) (*model.Response, error) {
	if req.Config != nil && req.Config.ResponseSchema != nil {
		return &model.Response{Text: `{"questions":["What is a goroutine?","What is a channel?"]}`}, nil
	}
	return &model.Response{Text: "1. What is a goroutine?\n2. What is a channel?"}, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }

func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (fakeEmbedder) Model() string { return "fake" }
func (fakeEmbedder) Close() error  { return nil }

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Models.Question = config.ModelConfig{BaseURL: "http://llm/v1", Model: "q"}
	cfg.Models.Response = config.ModelConfig{BaseURL: "http://llm/v1", Model: "r"}
	cfg.Models.Summarizer = config.ModelConfig{BaseURL: "http://llm/v1", Model: "s"}
	cfg.Models.Embedding = config.ModelConfig{BaseURL: "http://llm/v1", Model: "e"}
	cfg.Store.Type = config.StoreChromem
	cfg.Observability.Metrics.Enabled = true
	cfg.SetDefaults()
	return cfg
}

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := New(context.Background(), testConfig(),
		WithLLMFactory(func(cfg *config.ModelConfig) (model.LLM, error) { return &fakeLLM{name: cfg.Model}, nil }),
		WithEmbedderFactory(func(*config.ModelConfig) (embedder.Embedder, error) { return fakeEmbedder{}, nil }),
		WithTruncator(&tool.TokenCounter{}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return rt
}

func TestNew_NilConfig(t *testing.T) {
	_, err := New(context.Background(), nil)

	assert.True(t, config.IsConfigError(err))
}

func TestNew_InvalidModels(t *testing.T) {
	cfg := testConfig()
	cfg.Models.Summarizer.Model = ""

	_, err := New(context.Background(), cfg, WithTruncator(&tool.TokenCounter{}))

	require.Error(t, err)
	assert.True(t, config.IsConfigError(err))
}

func TestRuntime_HTTPEndToEnd(t *testing.T) {
	rt := newTestRuntime(t)
	h := rt.HTTPServer().Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/questions", strings.NewReader(`{"topic":"Go"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"questions":[{"q":"What is a goroutine?"},{"q":"What is a channel?"}],"count":2}`, rec.Body.String())
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/knowledge/save_knowledge",
		strings.NewReader(`{"knowledge_name_slug":"go","id":"d1","document":"goroutines are cheap"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/knowledge/list_knowledge",
		strings.NewReader(`{"knowledge_name_slug":"go","query":{"$regex":"cheap"}}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"d1"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "quiz_llm_calls")
}

func TestRuntime_Ingester(t *testing.T) {
	rt := newTestRuntime(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("select multiplexes channels"), 0o644))

	n, err := rt.Ingester().IngestDir(context.Background(), "go", dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	docs, err := rt.Knowledge().QueryDocuments(context.Background(), "go", "multiplexes")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "notes.txt#0", docs[0].ID)
}

func TestRuntime_MCPServer(t *testing.T) {
	assert.NotNil(t, newTestRuntime(t).MCPServer("test"))
}

func TestDefaultLLMFactory(t *testing.T) {
	llm, err := DefaultLLMFactory(&config.ModelConfig{Provider: config.LLMProviderOpenAI, BaseURL: "http://localhost:1/v1", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "m", llm.Name())
	assert.Equal(t, model.ProviderOpenAI, llm.Provider())

	_, err = DefaultLLMFactory(&config.ModelConfig{Provider: config.LLMProviderGemini, Model: "g"})
	assert.Error(t, err)

	_, err = DefaultLLMFactory(&config.ModelConfig{Provider: "ollama", Model: "x"})
	assert.ErrorContains(t, err, "unknown provider")
}

func TestDefaultEmbedderFactory(t *testing.T) {
	emb, err := DefaultEmbedderFactory(&config.ModelConfig{Provider: config.LLMProviderOpenAI, BaseURL: "http://localhost:1/v1", Model: "text-embedding-3-small"})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", emb.Model())

	_, err = DefaultEmbedderFactory(&config.ModelConfig{Provider: "ollama", Model: "x"})
	assert.Error(t, err)
}

type roleResolver map[string]model.LLM

func (r roleResolver) Resolve(role string) (model.LLM, error) { return r[role], nil }

func TestDefaultLLMFactory_ProviderFailureIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, `{"error":{"message":"upstream down"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	mc := config.ModelConfig{BaseURL: srv.URL + "/v1", Model: "s"}
	mc.SetDefaults()
	llm, err := DefaultLLMFactory(&mc)
	require.NoError(t, err)

	var pc config.PipelineConfig
	pc.SetDefaults()
	p := pipeline.New(roleResolver{config.RoleSummarizer: llm}, pc)

	_, err = p.Normalize(context.Background(), pipeline.FieldQuestions, "1. What is a stack?")
	require.Error(t, err)
	assert.True(t, model.IsProviderCallError(err))
	assert.False(t, pipeline.IsNormalizationExhausted(err))
	assert.Equal(t, int32(1), hits.Load())
}
