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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/vymalo/quiz-backend/pkg/config"
	"github.com/vymalo/quiz-backend/pkg/httpclient"
)

// ChromaProvider implements Provider on the Chroma v2 REST API.
//
// Regex matching runs server side through where_document.
type ChromaProvider struct {
	baseURL string
	apiKey  string
	http    *httpclient.Client

	mu  sync.RWMutex
	ids map[string]string // collection name -> collection id
}

// NewChromaProvider creates a Chroma provider.
func NewChromaProvider(cfg config.ChromaConfig, opts ...httpclient.Option) (*ChromaProvider, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required for Chroma")
	}

	scheme := "http"
	if cfg.UseTLS {
		scheme = "https"
	}
	port := cfg.Port
	if port == 0 {
		port = 8000
	}
	tenant := cfg.Tenant
	if tenant == "" {
		tenant = "default_tenant"
	}
	database := cfg.Database
	if database == "" {
		database = "default_database"
	}

	return newChroma(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, port), tenant, database, cfg.APIKey, opts...), nil
}

func newChroma(root, tenant, database, apiKey string, opts ...httpclient.Option) *ChromaProvider {
	opts = append([]httpclient.Option{httpclient.WithTimeout(30 * time.Second)}, opts...)
	return &ChromaProvider{
		baseURL: fmt.Sprintf("%s/api/v2/tenants/%s/databases/%s", root, url.PathEscape(tenant), url.PathEscape(database)),
		apiKey:  apiKey,
		http:    httpclient.New(opts...),
		ids:     make(map[string]string),
	}
}

func (p *ChromaProvider) Name() string { return config.StoreChroma }

type chromaCollection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type chromaGetResponse struct {
	IDs       []string         `json:"ids"`
	Documents []*string        `json:"documents"`
	Metadatas []map[string]any `json:"metadatas"`
}

type chromaQueryResponse struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]*string        `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]float32        `json:"distances"`
}

// collectionID resolves a collection by name, creating it when missing.
func (p *ChromaProvider) collectionID(ctx context.Context, name string) (string, error) {
	p.mu.RLock()
	id, ok := p.ids[name]
	p.mu.RUnlock()
	if ok {
		return id, nil
	}

	var col chromaCollection
	err := p.call(ctx, http.MethodPost, "/collections", map[string]any{
		"name":          name,
		"get_or_create": true,
		"metadata":      map[string]any{"hnsw:space": "cosine"},
	}, &col)
	if err != nil {
		return "", fmt.Errorf("failed to get or create collection %q: %w", name, err)
	}

	p.mu.Lock()
	p.ids[name] = col.ID
	p.mu.Unlock()
	return col.ID, nil
}

// Upsert adds or replaces documents.
func (p *ChromaProvider) Upsert(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	id, err := p.collectionID(ctx, collection)
	if err != nil {
		return err
	}

	ids := make([]string, len(docs))
	documents := make([]string, len(docs))
	embeddings := make([][]float32, len(docs))
	metadatas := make([]map[string]any, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
		documents[i] = d.Content
		embeddings[i] = d.Vector
		if len(d.Metadata) > 0 {
			metadatas[i] = d.Metadata
		}
	}

	payload := map[string]any{
		"ids":        ids,
		"documents":  documents,
		"embeddings": embeddings,
		"metadatas":  metadatas,
	}
	if err := p.call(ctx, http.MethodPost, "/collections/"+id+"/upsert", payload, nil); err != nil {
		return fmt.Errorf("failed to upsert into %q: %w", collection, err)
	}
	return nil
}

// Match lists documents through a where_document $regex filter.
func (p *ChromaProvider) Match(ctx context.Context, collection, pattern string) ([]Result, error) {
	re, err := CompilePattern(pattern)
	if err != nil {
		return nil, err
	}
	id, err := p.collectionID(ctx, collection)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{"include": []string{"documents", "metadatas"}}
	if pattern != "" {
		payload["where_document"] = map[string]any{"$regex": pattern}
	}

	var resp chromaGetResponse
	if err := p.call(ctx, http.MethodPost, "/collections/"+id+"/get", payload, &resp); err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", collection, err)
	}

	results := make([]Result, 0, len(resp.IDs))
	for i, docID := range resp.IDs {
		r := Result{ID: docID, Metadata: map[string]any{}}
		if i < len(resp.Documents) && resp.Documents[i] != nil {
			r.Content = *resp.Documents[i]
		}
		if i < len(resp.Metadatas) && resp.Metadatas[i] != nil {
			r.Metadata = resp.Metadatas[i]
		}
		results = append(results, r)
	}
	// Chroma's regex dialect differs slightly from RE2; filtering again keeps
	// results consistent across backends.
	return filterMatching(results, re), nil
}

// Search runs a nearest-neighbour query. Scores are 1 - cosine distance.
func (p *ChromaProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	id, err := p.collectionID(ctx, collection)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"query_embeddings": [][]float32{vector},
		"n_results":        topK,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	var resp chromaQueryResponse
	if err := p.call(ctx, http.MethodPost, "/collections/"+id+"/query", payload, &resp); err != nil {
		return nil, fmt.Errorf("failed to search %q: %w", collection, err)
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}

	results := make([]Result, 0, len(resp.IDs[0]))
	for i, docID := range resp.IDs[0] {
		r := Result{ID: docID, Metadata: map[string]any{}}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) && resp.Documents[0][i] != nil {
			r.Content = *resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) && resp.Metadatas[0][i] != nil {
			r.Metadata = resp.Metadatas[0][i]
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			r.Score = 1 - resp.Distances[0][i]
		}
		results = append(results, r)
	}
	return results, nil
}

// DeleteCollection removes a collection by name.
func (p *ChromaProvider) DeleteCollection(ctx context.Context, collection string) error {
	if err := p.call(ctx, http.MethodDelete, "/collections/"+url.PathEscape(collection), nil, nil); err != nil {
		return fmt.Errorf("failed to delete collection %q: %w", collection, err)
	}
	p.mu.Lock()
	delete(p.ids, collection)
	p.mu.Unlock()
	return nil
}

// Ping calls the collections count endpoint of the configured database.
func (p *ChromaProvider) Ping(ctx context.Context) error {
	return p.call(ctx, http.MethodGet, "/collections_count", nil, nil)
}

func (p *ChromaProvider) Close() error { return nil }

func (p *ChromaProvider) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.apiKey != "" {
		req.Header.Set("X-Chroma-Token", p.apiKey)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &httpclient.StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

var _ Provider = (*ChromaProvider)(nil)
