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
	"fmt"
	"sync"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vymalo/quiz-backend/pkg/config"
)

// PineconeProvider implements Provider on a single Pinecone index. Each
// collection is a namespace of that index.
type PineconeProvider struct {
	client    *pinecone.Client
	indexName string

	mu   sync.Mutex
	host string
}

// NewPineconeProvider creates a Pinecone provider. When cfg.Host is set it
// is used as the index host and the index is never described.
func NewPineconeProvider(cfg config.PineconeConfig) (*PineconeProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Pinecone")
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	return &PineconeProvider{client: client, indexName: cfg.IndexName, host: cfg.Host}, nil
}

func (p *PineconeProvider) Name() string { return config.StorePinecone }

func (p *PineconeProvider) indexHost(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.host != "" {
		return p.host, nil
	}
	index, err := p.client.DescribeIndex(ctx, p.indexName)
	if err != nil {
		return "", fmt.Errorf("failed to describe index %s: %w", p.indexName, err)
	}
	p.host = index.Host
	return p.host, nil
}

func (p *PineconeProvider) conn(ctx context.Context, namespace string) (*pinecone.IndexConnection, error) {
	host, err := p.indexHost(ctx)
	if err != nil {
		return nil, err
	}
	indexConn, err := p.client.Index(pinecone.NewIndexConnParams{Host: host, Namespace: namespace})
	if err != nil {
		return nil, fmt.Errorf("failed to create index connection: %w", err)
	}
	return indexConn, nil
}

// Upsert adds or replaces vectors in the collection's namespace.
func (p *PineconeProvider) Upsert(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	indexConn, err := p.conn(ctx, collection)
	if err != nil {
		return err
	}
	defer indexConn.Close()

	vectors := make([]*pinecone.Vector, 0, len(docs))
	for _, d := range docs {
		meta, err := structpb.NewStruct(withPayload(d))
		if err != nil {
			return fmt.Errorf("failed to convert metadata of %q: %w", d.ID, err)
		}
		vectors = append(vectors, &pinecone.Vector{Id: d.ID, Values: d.Vector, Metadata: meta})
	}

	if _, err := indexConn.UpsertVectors(ctx, vectors); err != nil {
		return fmt.Errorf("failed to upsert vectors: %w", err)
	}
	return nil
}

// Match lists every vector of the namespace and filters its content.
func (p *PineconeProvider) Match(ctx context.Context, collection, pattern string) ([]Result, error) {
	re, err := CompilePattern(pattern)
	if err != nil {
		return nil, err
	}
	indexConn, err := p.conn(ctx, collection)
	if err != nil {
		return nil, err
	}
	defer indexConn.Close()

	var (
		results []Result
		token   *string
		limit   = uint32(100)
	)
	for {
		page, err := indexConn.ListVectors(ctx, &pinecone.ListVectorsRequest{Limit: &limit, PaginationToken: token})
		if err != nil {
			return nil, fmt.Errorf("failed to list vectors: %w", err)
		}

		ids := make([]string, 0, len(page.VectorIds))
		for _, id := range page.VectorIds {
			if id != nil {
				ids = append(ids, *id)
			}
		}
		if len(ids) > 0 {
			fetched, err := indexConn.FetchVectors(ctx, ids)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch vectors: %w", err)
			}
			for id, v := range fetched.Vectors {
				results = append(results, pineconeResult(id, v, 0))
			}
		}

		if page.NextPaginationToken == nil || *page.NextPaginationToken == "" {
			break
		}
		token = page.NextPaginationToken
	}
	return filterMatching(results, re), nil
}

// Search queries the namespace by vector.
func (p *PineconeProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	indexConn, err := p.conn(ctx, collection)
	if err != nil {
		return nil, err
	}
	defer indexConn.Close()

	resp, err := indexConn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query Pinecone: %w", err)
	}

	results := make([]Result, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m == nil || m.Vector == nil {
			continue
		}
		results = append(results, pineconeResult(m.Vector.Id, m.Vector, m.Score))
	}
	return results, nil
}

// DeleteCollection deletes every vector of the namespace.
func (p *PineconeProvider) DeleteCollection(ctx context.Context, collection string) error {
	indexConn, err := p.conn(ctx, collection)
	if err != nil {
		return err
	}
	defer indexConn.Close()

	if err := indexConn.DeleteAllVectorsInNamespace(ctx); err != nil {
		return fmt.Errorf("failed to delete namespace %q: %w", collection, err)
	}
	return nil
}

// Ping resolves the index host.
func (p *PineconeProvider) Ping(ctx context.Context) error {
	if p.indexName == "" {
		return nil
	}
	_, err := p.client.DescribeIndex(ctx, p.indexName)
	return err
}

func (p *PineconeProvider) Close() error { return nil }

func pineconeResult(id string, v *pinecone.Vector, score float32) Result {
	var payload map[string]any
	if v != nil && v.Metadata != nil {
		payload = v.Metadata.AsMap()
	}
	r := fromPayload(id, payload)
	r.Score = score
	return r
}

var _ Provider = (*PineconeProvider)(nil)
