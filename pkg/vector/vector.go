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

// Package vector stores knowledge documents in a vector database.
//
// Collections are created on first use. Every backend supports two reads:
// Match lists the documents whose text matches a regular expression, and
// Search returns the documents nearest to a query vector.
package vector

import (
	"context"
	"fmt"
	"regexp"
	"sort"
)

// Document is a stored text with its embedding.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]any
	Vector   []float32
}

// Result is a document returned by a read. Score is the similarity for
// Search and zero for Match.
type Result struct {
	ID       string
	Content  string
	Metadata map[string]any
	Score    float32
}

// Provider is a vector database backend.
type Provider interface {
	// Name returns the backend name.
	Name() string

	// Upsert inserts or replaces documents by ID, creating the collection
	// when needed.
	Upsert(ctx context.Context, collection string, docs []Document) error

	// Match returns every document of collection whose content matches
	// pattern. A missing collection yields no results.
	Match(ctx context.Context, collection, pattern string) ([]Result, error)

	// Search returns up to topK documents ordered by similarity to vector.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)

	// DeleteCollection removes a collection and its documents.
	DeleteCollection(ctx context.Context, collection string) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}

// CompilePattern compiles a match pattern. An empty pattern matches everything.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		pattern = ".*"
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return re, nil
}

// filterMatching keeps results whose content matches re, ordered by ID.
func filterMatching(results []Result, re *regexp.Regexp) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if re.MatchString(r.Content) {
			r.Score = 0
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// contentKey and idKey are the payload fields used by backends without a
// native document field.
const (
	contentKey = "content"
	idKey      = "doc_id"
)

// withPayload merges content and the original ID into a copy of metadata.
func withPayload(doc Document) map[string]any {
	payload := make(map[string]any, len(doc.Metadata)+2)
	for k, v := range doc.Metadata {
		payload[k] = v
	}
	payload[contentKey] = doc.Content
	payload[idKey] = doc.ID
	return payload
}

// fromPayload splits a payload back into ID, content and user metadata.
func fromPayload(fallbackID string, payload map[string]any) Result {
	r := Result{ID: fallbackID, Metadata: make(map[string]any, len(payload))}
	for k, v := range payload {
		switch k {
		case contentKey:
			r.Content, _ = v.(string)
		case idKey:
			if id, ok := v.(string); ok && id != "" {
				r.ID = id
			}
		default:
			r.Metadata[k] = v
		}
	}
	return r
}
