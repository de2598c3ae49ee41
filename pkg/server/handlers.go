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

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vymalo/quiz-backend/pkg/cache"
	"github.com/vymalo/quiz-backend/pkg/knowledge"
	"github.com/vymalo/quiz-backend/pkg/quiz"
)

const maxBodyBytes = 1 << 20

// Cache status values of the X-Cache header.
const (
	cacheHit    = "HIT"
	cacheMiss   = "MISS"
	cacheBypass = "BYPASS"
)

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return &badRequest{err: fmt.Errorf("invalid request body: %w", err)}
	}
	return nil
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	var req quiz.QuestionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	s.serveCached(w, r, "questions", &req, req.LocalDBName != "", func(ctx context.Context) (any, error) {
		return s.quiz.CreateQuestions(ctx, &req)
	})
}

func (s *Server) handleResponses(w http.ResponseWriter, r *http.Request) {
	var req quiz.ResponseRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	s.serveCached(w, r, "responses", &req, req.LocalDBName != "", func(ctx context.Context) (any, error) {
		return s.quiz.CreateResponses(ctx, &req)
	})
}

// serveCached memoizes run's JSON result under the request's key. Requests
// that may write to a local database bypass the cache.
func (s *Server) serveCached(w http.ResponseWriter, r *http.Request, op string, req any, bypass bool, run func(context.Context) (any, error)) {
	var key string
	if s.cache != nil {
		if bypass {
			w.Header().Set("X-Cache", cacheBypass)
		} else if k, err := cache.Key(op, req); err == nil {
			key = k
			if data, ok := s.cache.Get(key); ok {
				w.Header().Set("X-Cache", cacheHit)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write(data)
				return
			}
			w.Header().Set("X-Cache", cacheMiss)
		}
	}

	out, err := run(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	data, err := json.Marshal(out)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data = append(data, '\n')
	if key != "" {
		s.cache.Add(key, data)
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// SaveKnowledgeRequest upserts one document into a knowledge set.
type SaveKnowledgeRequest struct {
	KnowledgeName string            `json:"knowledge_name_slug"`
	ID            string            `json:"id"`
	Document      string            `json:"document"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func (r *SaveKnowledgeRequest) validate() error {
	switch {
	case strings.TrimSpace(r.KnowledgeName) == "":
		return &quiz.ValidationError{Field: "knowledge_name_slug", Reason: "is required"}
	case strings.TrimSpace(r.ID) == "":
		return &quiz.ValidationError{Field: "id", Reason: "is required"}
	case strings.TrimSpace(r.Document) == "":
		return &quiz.ValidationError{Field: "document", Reason: "is required"}
	}
	return nil
}

// ListKnowledgeRequest lists the documents of a knowledge set whose content
// matches Query.Regex.
type ListKnowledgeRequest struct {
	KnowledgeName string `json:"knowledge_name_slug"`
	Query         struct {
		Regex string `json:"$regex"`
	} `json:"query"`
}

func (r *ListKnowledgeRequest) validate() error {
	switch {
	case strings.TrimSpace(r.KnowledgeName) == "":
		return &quiz.ValidationError{Field: "knowledge_name_slug", Reason: "is required"}
	case r.Query.Regex == "":
		return &quiz.ValidationError{Field: "query.$regex", Reason: "is required"}
	}
	return nil
}

func (s *Server) handleSaveKnowledge(w http.ResponseWriter, r *http.Request) {
	var req SaveKnowledgeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err)
		return
	}

	doc := knowledge.Document{ID: req.ID, Document: req.Document, Metadata: knowledge.StringMetadata(req.Metadata)}
	if err := s.knowledge.SaveDocument(r.Context(), req.KnowledgeName, doc); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListKnowledge(w http.ResponseWriter, r *http.Request) {
	var req ListKnowledgeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err)
		return
	}

	docs, err := s.knowledge.QueryDocuments(r.Context(), req.KnowledgeName, req.Query.Regex)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}
