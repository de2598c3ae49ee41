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

package runtime

import (
	"fmt"

	"github.com/vymalo/quiz-backend/pkg/config"
	"github.com/vymalo/quiz-backend/pkg/embedder"
	"github.com/vymalo/quiz-backend/pkg/model"
	"github.com/vymalo/quiz-backend/pkg/model/gemini"
	"github.com/vymalo/quiz-backend/pkg/model/openai"
)

// DefaultLLMFactory creates chat models based on provider type.
func DefaultLLMFactory(cfg *config.ModelConfig) (model.LLM, error) {
	switch cfg.Provider {
	case config.LLMProviderOpenAI:
		return openai.NewFromConfig(openaiConfig(cfg))

	case config.LLMProviderGemini:
		return gemini.New(geminiConfig(cfg))

	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// DefaultEmbedderFactory creates the embedding model based on provider type.
func DefaultEmbedderFactory(cfg *config.ModelConfig) (embedder.Embedder, error) {
	switch cfg.Provider {
	case config.LLMProviderOpenAI:
		return embedder.NewOpenAI(embedder.OpenAIConfig{
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			BatchSize: embedder.DefaultBatchSize,
			Options:   openai.ClientOptions(openaiConfig(cfg)),
		})

	case config.LLMProviderGemini:
		client, err := gemini.NewClient(geminiConfig(cfg))
		if err != nil {
			return nil, err
		}
		return embedder.NewGemini(client, cfg.Model, cfg.Dimension)

	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

func openaiConfig(cfg *config.ModelConfig) openai.Config {
	return openai.Config{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
	}
}

func geminiConfig(cfg *config.ModelConfig) gemini.Config {
	return gemini.Config{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
	}
}
