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

// Package registry holds the process-wide model handles, one per role.
//
// Handles are built once at boot from configuration and shared read-only by
// every request. Missing or invalid role configuration fails at boot with a
// *config.ConfigError; resolution afterwards cannot fail for a known role.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vymalo/quiz-backend/pkg/config"
	"github.com/vymalo/quiz-backend/pkg/embedder"
	"github.com/vymalo/quiz-backend/pkg/model"
)

// BaseRegistry is a concurrency-safe name to item map.
type BaseRegistry[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

func NewBaseRegistry[T any]() *BaseRegistry[T] {
	return &BaseRegistry[T]{
		items: make(map[string]T),
	}
}

func (r *BaseRegistry[T]) Register(name string, item T) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[name]; exists {
		return fmt.Errorf("item with name '%s' already registered", name)
	}

	r.items[name] = item
	return nil
}

func (r *BaseRegistry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, exists := r.items[name]
	return item, exists
}

// Names returns the registered names in sorted order.
func (r *BaseRegistry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *BaseRegistry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.items)
}

// LLMFactory builds the chat model of a role.
type LLMFactory func(cfg *config.ModelConfig) (model.LLM, error)

// EmbedderFactory builds the embedding model.
type EmbedderFactory func(cfg *config.ModelConfig) (embedder.Embedder, error)

// Registry resolves model roles to handles.
type Registry struct {
	models    *BaseRegistry[model.LLM]
	embedder  embedder.Embedder
	endpoints map[string]config.ModelConfig
}

// chatRoles are the roles served by chat models.
var chatRoles = []string{config.RoleQuestion, config.RoleResponse, config.RoleSummarizer}

// New validates cfg and builds every handle.
func New(cfg *config.ModelsConfig, newLLM LLMFactory, newEmbedder EmbedderFactory) (*Registry, error) {
	if cfg == nil {
		return nil, &config.ConfigError{Field: "models", Reason: "configuration is required"}
	}

	r := &Registry{
		models:    NewBaseRegistry[model.LLM](),
		endpoints: make(map[string]config.ModelConfig, len(config.Roles)),
	}

	for _, role := range config.Roles {
		mc := cfg.Get(role)
		if err := mc.Validate(role); err != nil {
			return nil, err
		}
		r.endpoints[role] = *mc
	}

	for _, role := range chatRoles {
		llm, err := newLLM(cfg.Get(role))
		if err != nil {
			_ = r.Close()
			return nil, &config.ConfigError{Field: "models." + role, Reason: err.Error()}
		}
		if err := r.models.Register(role, llm); err != nil {
			_ = r.Close()
			return nil, err
		}
	}

	emb, err := newEmbedder(cfg.Get(config.RoleEmbedding))
	if err != nil {
		_ = r.Close()
		return nil, &config.ConfigError{Field: "models." + config.RoleEmbedding, Reason: err.Error()}
	}
	r.embedder = emb

	return r, nil
}

// Resolve returns the chat model of role.
func (r *Registry) Resolve(role string) (model.LLM, error) {
	llm, ok := r.models.Get(role)
	if !ok {
		return nil, &config.ConfigError{Field: "models." + role, Reason: "no chat model registered for role"}
	}
	return llm, nil
}

// Embedder returns the embedding model.
func (r *Registry) Embedder() embedder.Embedder {
	return r.embedder
}

// Endpoint returns the configuration a role was built from.
func (r *Registry) Endpoint(role string) (config.ModelConfig, bool) {
	mc, ok := r.endpoints[role]
	return mc, ok
}

// Roles lists every configured role.
func (r *Registry) Roles() []string {
	return append([]string(nil), config.Roles...)
}

// Close closes every handle.
func (r *Registry) Close() error {
	var errs []error
	for _, name := range r.models.Names() {
		llm, _ := r.models.Get(name)
		if err := llm.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s model: %w", name, err))
		}
	}
	if r.embedder != nil {
		if err := r.embedder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close embedder: %w", err))
		}
	}
	return errors.Join(errs...)
}
