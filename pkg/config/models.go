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

package config

import (
	"time"
)

// LLMProvider identifies the wire protocol spoken by a model endpoint.
type LLMProvider string

const (
	// LLMProviderOpenAI covers OpenAI and every OpenAI-compatible endpoint
	// (vLLM, Ollama's /v1, LiteLLM, ...).
	LLMProviderOpenAI LLMProvider = "openai"
	LLMProviderGemini LLMProvider = "gemini"
)

// Role names, used as keys in ModelsConfig.
const (
	RoleQuestion   = "question"
	RoleResponse   = "response"
	RoleSummarizer = "summarizer"
	RoleEmbedding  = "embedding"
)

// Roles lists every model role in boot order.
var Roles = []string{RoleQuestion, RoleResponse, RoleSummarizer, RoleEmbedding}

// ModelConfig configures the endpoint behind one model role.
type ModelConfig struct {
	// Provider is the wire protocol (openai, gemini). Default: openai.
	Provider LLMProvider `yaml:"provider,omitempty"`

	// BaseURL of the endpoint. Required for openai.
	BaseURL string `yaml:"base_url,omitempty"`

	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty"`

	// Model identifier. Required.
	Model string `yaml:"model,omitempty"`

	// Timeout bounds a single call. Default: 120s.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// MaxRetries is the transport-level retry count of the SDK client.
	// Default: 0. Provider failures surface to the pipeline unretried.
	MaxRetries int `yaml:"max_retries,omitempty"`

	// Dimension is the embedding size (embedding role only, informational).
	Dimension int `yaml:"dimension,omitempty"`
}

// SetDefaults applies default values.
func (c *ModelConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = LLMProviderOpenAI
	}
	if c.Provider == LLMProviderOpenAI && c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
}

// Validate checks the model configuration of the given role.
func (c *ModelConfig) Validate(role string) error {
	field := "models." + role
	switch c.Provider {
	case LLMProviderOpenAI:
		if c.BaseURL == "" {
			return fieldError(field+".base_url", "endpoint is required")
		}
	case LLMProviderGemini:
		if c.APIKey == "" {
			return fieldError(field+".api_key", "api key is required for gemini")
		}
	default:
		return fieldError(field+".provider", "unknown provider %q (valid: openai, gemini)", c.Provider)
	}
	if c.Model == "" {
		return fieldError(field+".model", "model identifier is required")
	}
	if c.Timeout < 0 {
		return fieldError(field+".timeout", "must not be negative")
	}
	if c.MaxRetries < 0 {
		return fieldError(field+".max_retries", "must not be negative")
	}
	return nil
}

// ModelsConfig holds one endpoint per role. Roles are never interchangeable.
type ModelsConfig struct {
	Question   ModelConfig `yaml:"question"`
	Response   ModelConfig `yaml:"response"`
	Summarizer ModelConfig `yaml:"summarizer"`
	Embedding  ModelConfig `yaml:"embedding"`
}

// Get returns the configuration of a role, or nil for an unknown role.
func (c *ModelsConfig) Get(role string) *ModelConfig {
	switch role {
	case RoleQuestion:
		return &c.Question
	case RoleResponse:
		return &c.Response
	case RoleSummarizer:
		return &c.Summarizer
	case RoleEmbedding:
		return &c.Embedding
	default:
		return nil
	}
}

func (c *ModelsConfig) SetDefaults() {
	for _, role := range Roles {
		c.Get(role).SetDefaults()
	}
}

func (c *ModelsConfig) Validate() error {
	for _, role := range Roles {
		if err := c.Get(role).Validate(role); err != nil {
			return err
		}
	}
	return nil
}
