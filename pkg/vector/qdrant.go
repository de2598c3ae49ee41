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
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/vymalo/quiz-backend/pkg/config"
)

// qdrantNamespace derives point UUIDs from document IDs. Qdrant only accepts
// UUIDs or integers as point IDs; the original ID travels in the payload.
var qdrantNamespace = uuid.MustParse("6f0c3a52-8b7e-4c1e-9a55-2d8f4f1b7c11")

const qdrantScrollPage = 256

// QdrantProvider implements Provider on Qdrant over gRPC.
type QdrantProvider struct {
	client *qdrant.Client
}

// NewQdrantProvider creates a Qdrant provider.
func NewQdrantProvider(cfg config.QdrantConfig) (*QdrantProvider, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client for %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &QdrantProvider{client: client}, nil
}

func (p *QdrantProvider) Name() string { return config.StoreQdrant }

// PointID maps a document ID to its Qdrant point UUID.
func PointID(docID string) string {
	return uuid.NewSHA1(qdrantNamespace, []byte(docID)).String()
}

func (p *QdrantProvider) ensureCollection(ctx context.Context, collection string, dim int) error {
	exists, err := p.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}
	err = p.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// Upsert adds or replaces points.
func (p *QdrantProvider) Upsert(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := p.ensureCollection(ctx, collection, len(docs[0].Vector)); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, d := range docs {
		payload := make(map[string]*qdrant.Value)
		for key, value := range withPayload(d) {
			val, err := qdrant.NewValue(value)
			if err != nil {
				return fmt.Errorf("failed to convert metadata value for key %s of %q: %w", key, d.ID, err)
			}
			payload[key] = val
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(d.ID)),
			Vectors: qdrant.NewVectors(d.Vector...),
			Payload: payload,
		})
	}

	wait := true
	_, err := p.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

// Match scrolls the collection and filters payload content with the pattern.
func (p *QdrantProvider) Match(ctx context.Context, collection, pattern string) ([]Result, error) {
	re, err := CompilePattern(pattern)
	if err != nil {
		return nil, err
	}
	exists, err := p.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		return []Result{}, nil
	}

	var (
		all    []Result
		offset *qdrant.PointId
		limit  = uint32(qdrantScrollPage)
	)
	for {
		resp, err := p.client.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: collection,
			Limit:          &limit,
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll points: %w", err)
		}
		for _, pt := range resp.GetResult() {
			all = append(all, fromPayload(pointIDString(pt.GetId()), payloadToMap(pt.GetPayload())))
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}
	return filterMatching(all, re), nil
}

// Search finds the most similar points.
func (p *QdrantProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	exists, err := p.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		return []Result{}, nil
	}

	limit := uint64(topK)
	points, err := p.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	results := make([]Result, 0, len(points))
	for _, pt := range points {
		r := fromPayload(pointIDString(pt.GetId()), payloadToMap(pt.GetPayload()))
		r.Score = pt.GetScore()
		results = append(results, r)
	}
	return results, nil
}

// DeleteCollection removes a collection.
func (p *QdrantProvider) DeleteCollection(ctx context.Context, collection string) error {
	if err := p.client.DeleteCollection(ctx, collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

// Ping runs the Qdrant health check.
func (p *QdrantProvider) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	return err
}

// Close closes the gRPC connection.
func (p *QdrantProvider) Close() error {
	return p.client.Close()
}

func pointIDString(id *qdrant.PointId) string {
	switch v := id.GetPointIdOptions().(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", v.Num)
	}
	return ""
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = valueToAny(v)
	}
	return out
}

func valueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		list := make([]any, 0, len(kind.ListValue.GetValues()))
		for _, item := range kind.ListValue.GetValues() {
			list = append(list, valueToAny(item))
		}
		return list
	case *qdrant.Value_StructValue:
		return payloadToMap(kind.StructValue.GetFields())
	}
	return nil
}

var _ Provider = (*QdrantProvider)(nil)
