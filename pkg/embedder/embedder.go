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

// Package embedder provides text embedding services for semantic search.
package embedder

import (
	"context"
	"errors"
)

// Embedder produces vector embeddings from text.
type Embedder interface {
	// Embed converts text to a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts to vector embeddings, one per text
	// and in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the model name being used.
	Model() string

	// Close releases any resources held by the embedder.
	Close() error
}

// ErrEmptyEmbedding is returned when the provider answers with fewer vectors
// than texts.
var ErrEmptyEmbedding = errors.New("embedding provider returned no vectors")

// DefaultBatchSize caps the number of texts sent in one provider call.
const DefaultBatchSize = 64

// embedOne is the shared Embed implementation on top of EmbedBatch.
func embedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return vecs[0], nil
}

// batches splits texts into chunks of at most size elements.
func batches(texts []string, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]string
	for i := 0; i < len(texts); i += size {
		end := min(i+size, len(texts))
		out = append(out, texts[i:end])
	}
	return out
}
