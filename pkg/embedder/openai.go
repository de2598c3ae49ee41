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

package embedder

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig configures an embedder for an OpenAI-compatible /embeddings endpoint.
type OpenAIConfig struct {
	Model     string
	Dimension int
	BatchSize int

	// Options are the SDK client options (key, base URL, retries, timeout).
	Options []option.RequestOption
}

// OpenAIEmbedder implements Embedder on the openai-go SDK.
type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	dimension int
	batchSize int
}

// NewOpenAI creates an OpenAI-compatible embedder.
func NewOpenAI(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	return &OpenAIEmbedder{
		client:    openai.NewClient(cfg.Options...),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, e, text)
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, 0, len(texts))
	for _, batch := range batches(texts, e.batchSize) {
		params := openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch},
			Model: openai.EmbeddingModel(e.model),
		}
		if e.dimension > 0 {
			params.Dimensions = openai.Int(int64(e.dimension))
		}

		resp, err := e.client.Embeddings.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("openai embeddings (%s): %w", e.model, err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("openai embeddings: got %d vectors for %d texts: %w", len(resp.Data), len(batch), ErrEmptyEmbedding)
		}

		// Data is ordered by Index, which is relative to the batch.
		vecs := make([][]float32, len(batch))
		for _, item := range resp.Data {
			if item.Index < 0 || int(item.Index) >= len(batch) {
				return nil, fmt.Errorf("openai embeddings: index %d out of range", item.Index)
			}
			vec := make([]float32, len(item.Embedding))
			for i, v := range item.Embedding {
				vec[i] = float32(v)
			}
			vecs[item.Index] = vec
		}
		results = append(results, vecs...)
	}
	return results, nil
}

func (e *OpenAIEmbedder) Model() string { return e.model }

func (e *OpenAIEmbedder) Close() error { return nil }

var _ Embedder = (*OpenAIEmbedder)(nil)
