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

	"google.golang.org/genai"
)

// GeminiEmbedder implements Embedder on the genai SDK.
type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int
	batchSize int
}

// NewGemini creates a Gemini embedder on an existing client.
func NewGemini(client *genai.Client, model string, dimension int) (*GeminiEmbedder, error) {
	if client == nil {
		return nil, fmt.Errorf("gemini client is required")
	}
	if model == "" {
		model = "text-embedding-004"
	}
	return &GeminiEmbedder{client: client, model: model, dimension: dimension, batchSize: DefaultBatchSize}, nil
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, e, text)
}

func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var cfg *genai.EmbedContentConfig
	if e.dimension > 0 {
		dim := int32(e.dimension)
		cfg = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}

	results := make([][]float32, 0, len(texts))
	for _, batch := range batches(texts, e.batchSize) {
		contents := make([]*genai.Content, 0, len(batch))
		for _, t := range batch {
			contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: t}}})
		}

		resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, cfg)
		if err != nil {
			return nil, fmt.Errorf("gemini embeddings (%s): %w", e.model, err)
		}
		if len(resp.Embeddings) != len(batch) {
			return nil, fmt.Errorf("gemini embeddings: got %d vectors for %d texts: %w", len(resp.Embeddings), len(batch), ErrEmptyEmbedding)
		}
		for _, emb := range resp.Embeddings {
			results = append(results, emb.Values)
		}
	}
	return results, nil
}

func (e *GeminiEmbedder) Model() string { return e.model }

func (e *GeminiEmbedder) Close() error { return nil }

var _ Embedder = (*GeminiEmbedder)(nil)
