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

// Package knowledge maps named knowledge sets onto vector store collections.
//
// A knowledge set name is turned into a collection name by prepending the
// configured prefix. Collections are created on first reference and are
// never deleted here. Documents are embedded through the embedding role
// before they are written.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vymalo/quiz-backend/pkg/embedder"
	"github.com/vymalo/quiz-backend/pkg/vector"
)

// Document is a stored knowledge entry.
type Document struct {
	ID       string         `json:"id"`
	Document string         `json:"document"`
	Metadata map[string]any `json:"metadata"`
}

// StringMetadata converts key/value metadata received from callers into a
// Document's metadata map.
func StringMetadata(m map[string]string) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// StoreWriteError reports a failed upsert.
type StoreWriteError struct {
	Collection string
	Err        error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("knowledge store write to %q failed: %v", e.Collection, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// StoreQueryError reports a failed read.
type StoreQueryError struct {
	Collection string
	Err        error
}

func (e *StoreQueryError) Error() string {
	return fmt.Sprintf("knowledge store query on %q failed: %v", e.Collection, e.Err)
}

func (e *StoreQueryError) Unwrap() error { return e.Err }

// IsStoreError reports whether err is a store read or write failure.
func IsStoreError(err error) bool {
	var we *StoreWriteError
	var qe *StoreQueryError
	return errors.As(err, &we) || errors.As(err, &qe)
}

// ErrInvalidPattern is returned for query patterns that do not compile.
var ErrInvalidPattern = errors.New("invalid query pattern")

// Store is the knowledge store adapter. It is safe for concurrent use.
type Store struct {
	provider vector.Provider
	embedder embedder.Embedder
	prefix   string
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates a store over provider, embedding with emb.
func New(provider vector.Provider, emb embedder.Embedder, prefix string, opts ...Option) *Store {
	s := &Store{
		provider: provider,
		embedder: emb,
		prefix:   prefix,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CollectionName derives the backing collection name of a knowledge set.
func (s *Store) CollectionName(name string) string {
	return s.prefix + name
}

// EmbedTexts embeds a batch of texts with a single embedding call.
func (s *Store) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d texts: %w", len(vecs), len(texts), embedder.ErrEmptyEmbedding)
	}
	return vecs, nil
}

// EmbeddingFunc adapts the embedding role to single-text callers such as
// embedded collections.
func (s *Store) EmbeddingFunc() func(ctx context.Context, text string) ([]float32, error) {
	return func(ctx context.Context, text string) ([]float32, error) {
		vecs, err := s.EmbedTexts(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		return vecs[0], nil
	}
}

// SaveDocument upserts one document. Saving an existing id replaces it.
func (s *Store) SaveDocument(ctx context.Context, name string, doc Document) error {
	return s.SaveDocuments(ctx, name, []Document{doc})
}

// SaveDocuments upserts a batch of documents, embedding them in one call.
func (s *Store) SaveDocuments(ctx context.Context, name string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	collection := s.CollectionName(name)

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Document
	}
	vecs, err := s.EmbedTexts(ctx, texts)
	if err != nil {
		return &StoreWriteError{Collection: collection, Err: fmt.Errorf("embedding failed: %w", err)}
	}

	vdocs := make([]vector.Document, len(docs))
	for i, d := range docs {
		vdocs[i] = vector.Document{ID: d.ID, Content: d.Document, Metadata: d.Metadata, Vector: vecs[i]}
	}
	if err := s.provider.Upsert(ctx, collection, vdocs); err != nil {
		return &StoreWriteError{Collection: collection, Err: err}
	}

	s.logger.Debug("Saved knowledge", "collection", collection, "documents", len(docs))
	return nil
}

// QueryDocuments returns the documents whose content matches pattern, or an
// empty list when none do.
func (s *Store) QueryDocuments(ctx context.Context, name, pattern string) ([]Document, error) {
	if _, err := vector.CompilePattern(pattern); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	collection := s.CollectionName(name)

	results, err := s.provider.Match(ctx, collection, pattern)
	if err != nil {
		return nil, &StoreQueryError{Collection: collection, Err: err}
	}
	return toDocuments(results), nil
}

// SearchSimilar returns up to limit documents semantically closest to text.
func (s *Store) SearchSimilar(ctx context.Context, name, text string, limit int) ([]Document, error) {
	collection := s.CollectionName(name)

	vecs, err := s.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, &StoreQueryError{Collection: collection, Err: fmt.Errorf("embedding failed: %w", err)}
	}
	results, err := s.provider.Search(ctx, collection, vecs[0], limit)
	if err != nil {
		return nil, &StoreQueryError{Collection: collection, Err: err}
	}
	return toDocuments(results), nil
}

// Ping checks the backing store.
func (s *Store) Ping(ctx context.Context) error {
	return s.provider.Ping(ctx)
}

// Close releases the backing store.
func (s *Store) Close() error {
	return s.provider.Close()
}

func toDocuments(results []vector.Result) []Document {
	docs := make([]Document, 0, len(results))
	for _, r := range results {
		meta := r.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		docs = append(docs, Document{ID: r.ID, Document: r.Content, Metadata: meta})
	}
	return docs
}
