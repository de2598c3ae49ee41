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

package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/vymalo/quiz-backend/pkg/config"
)

// ChromemProvider implements Provider using chromem-go for embedded vector
// storage, in memory or persisted to a directory.
//
// chromem has no scan operation, so Match runs a similarity query with
// nResults equal to the collection size and filters the result. The query
// vector is a unit vector of the collection's dimension; when the dimension
// is not known yet (a collection loaded from disk and not written since) the
// pattern is embedded with the configured embedding function instead.
type ChromemProvider struct {
	db    *chromem.DB
	embed chromem.EmbeddingFunc

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
	dims        map[string]int
}

// NewChromemProvider creates a chromem provider. embed may be nil when every
// document arrives with a vector.
func NewChromemProvider(cfg config.ChromemConfig, embed chromem.EmbeddingFunc) (*ChromemProvider, error) {
	if embed == nil {
		embed = func(context.Context, string) ([]float32, error) {
			return nil, errors.New("no embedding function configured")
		}
	}

	p := &ChromemProvider{
		embed:       embed,
		collections: make(map[string]*chromem.Collection),
		dims:        make(map[string]int),
	}

	if cfg.Path == "" {
		p.db = chromem.NewDB()
		slog.Info("Created in-memory vector database (no persistence)")
		return p, nil
	}

	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create persist directory: %w", err)
	}
	db, err := chromem.NewPersistentDB(cfg.Path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector database at %s: %w", cfg.Path, err)
	}
	p.db = db
	slog.Info("Opened persistent vector database", "path", cfg.Path, "collections", len(db.ListCollections()))
	return p, nil
}

func (p *ChromemProvider) Name() string { return config.StoreChromem }

func (p *ChromemProvider) getCollection(name string) (*chromem.Collection, error) {
	p.mu.RLock()
	if col, ok := p.collections[name]; ok {
		p.mu.RUnlock()
		return col, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if col, ok := p.collections[name]; ok {
		return col, nil
	}
	col, err := p.db.GetOrCreateCollection(name, nil, p.embed)
	if err != nil {
		return nil, fmt.Errorf("failed to get/create collection %q: %w", name, err)
	}
	p.collections[name] = col
	return col, nil
}

// Upsert adds or replaces documents. chromem replaces documents by ID.
func (p *ChromemProvider) Upsert(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	col, err := p.getCollection(collection)
	if err != nil {
		return err
	}

	cdocs := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		meta := make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			meta[k] = fmt.Sprint(v)
		}
		cdocs = append(cdocs, chromem.Document{
			ID:        d.ID,
			Content:   d.Content,
			Metadata:  meta,
			Embedding: d.Vector,
		})
	}

	if err := col.AddDocuments(ctx, cdocs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to upsert documents: %w", err)
	}

	for _, d := range cdocs {
		if len(d.Embedding) > 0 {
			p.mu.Lock()
			p.dims[collection] = len(d.Embedding)
			p.mu.Unlock()
			break
		}
	}
	return nil
}

// Match lists the documents whose content matches pattern.
func (p *ChromemProvider) Match(ctx context.Context, collection, pattern string) ([]Result, error) {
	re, err := CompilePattern(pattern)
	if err != nil {
		return nil, err
	}
	col, err := p.getCollection(collection)
	if err != nil {
		return nil, err
	}
	n := col.Count()
	if n == 0 {
		return []Result{}, nil
	}

	p.mu.RLock()
	dim := p.dims[collection]
	p.mu.RUnlock()

	var docs []chromem.Result
	if dim > 0 {
		probe := make([]float32, dim)
		probe[0] = 1
		docs, err = col.QueryEmbedding(ctx, probe, n, nil, nil)
	} else {
		docs, err = col.Query(ctx, re.String(), n, nil, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan collection %q: %w", collection, err)
	}
	return filterMatching(convertChromemResults(docs), re), nil
}

// Search finds the most similar documents.
func (p *ChromemProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	col, err := p.getCollection(collection)
	if err != nil {
		return nil, err
	}
	n := min(topK, col.Count())
	if n <= 0 {
		return []Result{}, nil
	}

	docs, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return convertChromemResults(docs), nil
}

// DeleteCollection removes a collection and all its documents.
func (p *ChromemProvider) DeleteCollection(_ context.Context, collection string) error {
	p.mu.Lock()
	if err := p.db.DeleteCollection(collection); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	delete(p.collections, collection)
	delete(p.dims, collection)
	p.mu.Unlock()
	return nil
}

// Ping always succeeds for the embedded store.
func (p *ChromemProvider) Ping(context.Context) error { return nil }

// Close is a no-op: persistent databases write through on every change.
func (p *ChromemProvider) Close() error { return nil }

func convertChromemResults(docs []chromem.Result) []Result {
	out := make([]Result, 0, len(docs))
	for _, d := range docs {
		meta := make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			meta[k] = v
		}
		out = append(out, Result{ID: d.ID, Content: d.Content, Metadata: meta, Score: d.Similarity})
	}
	return out
}

var _ Provider = (*ChromemProvider)(nil)
