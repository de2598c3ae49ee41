// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package runtime assembles the service from configuration: model
// registry, knowledge store, tools, pipeline and the outer surfaces.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	mcpsrv "github.com/mark3labs/mcp-go/server"

	"github.com/vymalo/quiz-backend/pkg/auth"
	"github.com/vymalo/quiz-backend/pkg/cache"
	"github.com/vymalo/quiz-backend/pkg/config"
	"github.com/vymalo/quiz-backend/pkg/ingest"
	"github.com/vymalo/quiz-backend/pkg/knowledge"
	"github.com/vymalo/quiz-backend/pkg/mcpserver"
	"github.com/vymalo/quiz-backend/pkg/observability"
	"github.com/vymalo/quiz-backend/pkg/pipeline"
	"github.com/vymalo/quiz-backend/pkg/quiz"
	"github.com/vymalo/quiz-backend/pkg/registry"
	"github.com/vymalo/quiz-backend/pkg/server"
	"github.com/vymalo/quiz-backend/pkg/tool"
	"github.com/vymalo/quiz-backend/pkg/tool/toolset"
	"github.com/vymalo/quiz-backend/pkg/vector"
	"github.com/vymalo/quiz-backend/pkg/websearch"
)

// Runtime owns every long-lived component of the service.
type Runtime struct {
	config    *config.Config
	models    *registry.Registry
	store     *knowledge.Store
	quiz      *quiz.Service
	cache     *cache.Cache
	obs       *observability.Manager
	validator *auth.Validator
}

type options struct {
	newLLM      registry.LLMFactory
	newEmbedder registry.EmbedderFactory
	vector      vector.Provider
	web         websearch.Searcher
	truncator   tool.Truncator
}

// Option customizes component construction.
type Option func(*options)

// WithLLMFactory replaces DefaultLLMFactory.
func WithLLMFactory(f registry.LLMFactory) Option {
	return func(o *options) {
		o.newLLM = f
	}
}

// WithEmbedderFactory replaces DefaultEmbedderFactory.
func WithEmbedderFactory(f registry.EmbedderFactory) Option {
	return func(o *options) {
		o.newEmbedder = f
	}
}

// WithVectorProvider bypasses the store factory.
func WithVectorProvider(p vector.Provider) Option {
	return func(o *options) {
		o.vector = p
	}
}

// WithWebSearcher replaces the configured web search backend.
func WithWebSearcher(s websearch.Searcher) Option {
	return func(o *options) {
		o.web = s
	}
}

// WithTruncator replaces the tiktoken counter used to cap tool results.
func WithTruncator(t tool.Truncator) Option {
	return func(o *options) {
		o.truncator = t
	}
}

// New builds the runtime from a defaulted, validated configuration.
// Any failure closes what was already built.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *Runtime, err error) {
	if cfg == nil {
		return nil, &config.ConfigError{Field: "config", Reason: "configuration is required"}
	}
	o := options{newLLM: DefaultLLMFactory, newEmbedder: DefaultEmbedderFactory}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Runtime{config: cfg}
	defer func() {
		if err != nil {
			_ = r.Close(context.Background())
		}
	}()

	if r.obs, err = observability.New(ctx, cfg.Observability); err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}
	metrics := r.obs.Metrics()

	if r.models, err = registry.New(&cfg.Models, o.newLLM, o.newEmbedder); err != nil {
		return nil, err
	}

	provider := o.vector
	if provider == nil {
		if provider, err = vector.NewProvider(cfg.Store, r.models.Embedder().Embed); err != nil {
			return nil, &config.ConfigError{Field: "store", Reason: err.Error()}
		}
	}
	r.store = knowledge.New(provider, r.models.Embedder(), cfg.Store.CollectionPrefix)

	web := o.web
	if web == nil && cfg.WebSearch.Enabled() {
		web = websearch.New(cfg.WebSearch)
	}

	truncator := o.truncator
	if truncator == nil {
		truncator = tokenCounter(cfg.Models.Question.Model)
	}

	tools := toolset.New(toolset.Config{
		Store:            r.store,
		Web:              web,
		Truncator:        truncator,
		MaxResultTokens:  cfg.Tools.MaxResultTokens,
		LocalSearchLimit: cfg.Tools.LocalSearchLimit,
		Observer:         metrics.RecordToolCall,
	})

	pipe := pipeline.New(r.models, cfg.Pipeline, pipeline.WithHooks(pipeline.Hooks{
		LLMCall:        metrics.RecordLLMCall,
		NormalizeRetry: metrics.RecordNormalizeRetry,
	}))
	r.quiz = quiz.NewService(pipe, tools, cfg.Tools, cfg.Pipeline)

	r.cache = cache.New(cfg.Cache)

	if r.validator, err = auth.NewValidator(ctx, cfg.Auth); err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	slog.Info("Runtime ready",
		"store", provider.Name(),
		"web_search", web != nil,
		"tools_questions", cfg.Tools.Questions,
		"tools_responses", cfg.Tools.Responses,
		"cache", r.cache != nil,
	)
	return r, nil
}

// tokenCounter falls back to the length heuristic when no encoding is
// available for the model.
func tokenCounter(modelName string) tool.Truncator {
	tc, err := tool.NewTokenCounter(modelName)
	if err != nil {
		slog.Warn("Token counter unavailable, using length estimate", "model", modelName, "error", err)
		return &tool.TokenCounter{}
	}
	return tc
}

func (r *Runtime) Config() *config.Config { return r.config }

func (r *Runtime) Quiz() *quiz.Service { return r.quiz }

func (r *Runtime) Knowledge() *knowledge.Store { return r.store }

func (r *Runtime) Models() *registry.Registry { return r.models }

// Ingester returns an ingester writing into the knowledge store.
func (r *Runtime) Ingester() *ingest.Ingester {
	return ingest.New(r.store, r.config.Ingest)
}

// HTTPServer builds the HTTP API.
func (r *Runtime) HTTPServer() *server.Server {
	endpoints := make(map[string]config.ModelConfig)
	for _, role := range r.models.Roles() {
		if mc, ok := r.models.Endpoint(role); ok {
			endpoints[role] = mc
		}
	}

	return server.New(r.config.Server, r.quiz, r.store,
		server.WithCache(r.cache),
		server.WithHealthChecker(server.NewHealthChecker(endpoints, r.store)),
		server.WithAuthValidator(r.validator),
		server.WithObservability(r.obs),
	)
}

// MCPServer builds the MCP tool server.
func (r *Runtime) MCPServer(version string) *mcpsrv.MCPServer {
	return mcpserver.New(r.quiz, r.store, version)
}

// Close flushes telemetry and releases model and store handles.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("knowledge store cleanup: %w", err))
		}
	}
	if r.models != nil {
		if err := r.models.Close(); err != nil {
			errs = append(errs, fmt.Errorf("model registry cleanup: %w", err))
		}
	}
	if err := r.obs.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("observability shutdown: %w", err))
	}
	return errors.Join(errs...)
}
