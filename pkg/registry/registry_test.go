package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vymalo/quiz-backend/pkg/config"
	"github.com/vymalo/quiz-backend/pkg/embedder"
	"github.com/vymalo/quiz-backend/pkg/model"
)

type fakeLLM struct {
	name   string
	closed bool
}

func (f *fakeLLM) Name() string             { return f.name }
func (f *fakeLLM) Provider() model.Provider { return model.ProviderOpenAI }

func (f *fakeLLM) Close() error {
	f.closed = true
	return nil
}

func (f *fakeLLM) GenerateContent(context.Context, *model.Request) (*model.Response, error) {
	return &model.Response{Text: f.name}, nil
}

type fakeEmbedder struct{ model string }

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error)          { return []float32{1}, nil }
func (f *fakeEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) { return nil, nil }
func (f *fakeEmbedder) Model() string                                             { return f.model }
func (f *fakeEmbedder) Close() error                                              { return nil }

func validModels() *config.ModelsConfig {
	cfg := &config.ModelsConfig{
		Question:   config.ModelConfig{BaseURL: "http://q/v1", Model: "q-model"},
		Response:   config.ModelConfig{BaseURL: "http://r/v1", Model: "r-model"},
		Summarizer: config.ModelConfig{BaseURL: "http://s/v1", Model: "s-model"},
		Embedding:  config.ModelConfig{BaseURL: "http://e/v1", Model: "e-model"},
	}
	cfg.SetDefaults()
	return cfg
}

func llmFactory(built *[]string) LLMFactory {
	return func(cfg *config.ModelConfig) (model.LLM, error) {
		*built = append(*built, cfg.Model)
		return &fakeLLM{name: cfg.Model}, nil
	}
}

func embFactory(cfg *config.ModelConfig) (embedder.Embedder, error) {
	return &fakeEmbedder{model: cfg.Model}, nil
}

func TestNew_ResolvesEveryRole(t *testing.T) {
	var built []string
	r, err := New(validModels(), llmFactory(&built), embFactory)
	require.NoError(t, err)

	assert.Equal(t, []string{"q-model", "r-model", "s-model"}, built)

	for role, want := range map[string]string{
		config.RoleQuestion:   "q-model",
		config.RoleResponse:   "r-model",
		config.RoleSummarizer: "s-model",
	} {
		llm, err := r.Resolve(role)
		require.NoError(t, err)
		assert.Equal(t, want, llm.Name())
	}
	assert.Equal(t, "e-model", r.Embedder().Model())

	ep, ok := r.Endpoint(config.RoleSummarizer)
	require.True(t, ok)
	assert.Equal(t, "http://s/v1", ep.BaseURL)
}

func TestNew_MissingModelIsConfigError(t *testing.T) {
	cfg := validModels()
	cfg.Summarizer.Model = ""

	var built []string
	_, err := New(cfg, llmFactory(&built), embFactory)

	var ce *config.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "models.summarizer.model", ce.Field)
	assert.Empty(t, built)
}

func TestNew_FactoryFailureIsConfigError(t *testing.T) {
	failing := func(cfg *config.ModelConfig) (model.LLM, error) {
		if cfg.Model == "r-model" {
			return nil, errors.New("bad endpoint")
		}
		return &fakeLLM{name: cfg.Model}, nil
	}
	_, err := New(validModels(), failing, embFactory)
	assert.True(t, config.IsConfigError(err))
}

func TestResolve_UnknownRole(t *testing.T) {
	var built []string
	r, err := New(validModels(), llmFactory(&built), embFactory)
	require.NoError(t, err)

	_, err = r.Resolve(config.RoleEmbedding)
	assert.True(t, config.IsConfigError(err))
}

func TestResolve_ConcurrentReuse(t *testing.T) {
	var built []string
	r, err := New(validModels(), llmFactory(&built), embFactory)
	require.NoError(t, err)

	first, _ := r.Resolve(config.RoleQuestion)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			llm, err := r.Resolve(config.RoleQuestion)
			assert.NoError(t, err)
			assert.Same(t, first, llm)
		}()
	}
	wg.Wait()
}

func TestClose(t *testing.T) {
	var built []string
	r, err := New(validModels(), llmFactory(&built), embFactory)
	require.NoError(t, err)

	llm, _ := r.Resolve(config.RoleQuestion)
	require.NoError(t, r.Close())
	assert.True(t, llm.(*fakeLLM).closed)
}

func TestBaseRegistry(t *testing.T) {
	reg := NewBaseRegistry[int]()
	require.NoError(t, reg.Register("b", 2))
	require.NoError(t, reg.Register("a", 1))
	assert.Error(t, reg.Register("a", 3))
	assert.Error(t, reg.Register("", 0))

	v, ok := reg.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, []string{"a", "b"}, reg.Names())
	assert.Equal(t, 2, reg.Count())
}
