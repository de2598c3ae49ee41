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

// Package server exposes the quiz operations and knowledge management over
// HTTP.
//
//	POST /questions                  create questions about a topic
//	POST /responses                  create good and bad responses to a question
//	POST /knowledge/save_knowledge   upsert a knowledge document
//	POST /knowledge/list_knowledge   list documents matching a regex
//	GET  /health/{liveness,readiness,startup}
//	GET  /metrics                    when metrics are enabled
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vymalo/quiz-backend/pkg/auth"
	"github.com/vymalo/quiz-backend/pkg/cache"
	"github.com/vymalo/quiz-backend/pkg/config"
	"github.com/vymalo/quiz-backend/pkg/knowledge"
	"github.com/vymalo/quiz-backend/pkg/observability"
	"github.com/vymalo/quiz-backend/pkg/quiz"
)

// Quiz runs the generation operations.
type Quiz interface {
	CreateQuestions(ctx context.Context, req *quiz.QuestionRequest) (*quiz.Questions, error)
	CreateResponses(ctx context.Context, req *quiz.ResponseRequest) (*quiz.Responses, error)
}

// Knowledge stores and lists knowledge documents.
type Knowledge interface {
	SaveDocument(ctx context.Context, name string, doc knowledge.Document) error
	QueryDocuments(ctx context.Context, name, pattern string) ([]knowledge.Document, error)
}

// Server is the HTTP surface of the service.
type Server struct {
	cfg       config.ServerConfig
	quiz      Quiz
	knowledge Knowledge
	cache     *cache.Cache
	health    *HealthChecker
	validator *auth.Validator
	obs       *observability.Manager
	server    *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithCache memoizes the generation endpoints.
func WithCache(c *cache.Cache) Option {
	return func(s *Server) {
		s.cache = c
	}
}

// WithHealthChecker serves readiness and startup from h.
func WithHealthChecker(h *HealthChecker) Option {
	return func(s *Server) {
		s.health = h
	}
}

// WithAuthValidator requires a bearer token on the API routes.
func WithAuthValidator(v *auth.Validator) Option {
	return func(s *Server) {
		s.validator = v
	}
}

// WithObservability enables tracing middleware and the metrics endpoint.
func WithObservability(m *observability.Manager) Option {
	return func(s *Server) {
		s.obs = m
	}
}

// New creates a server.
func New(cfg config.ServerConfig, q Quiz, k Knowledge, opts ...Option) *Server {
	s := &Server{cfg: cfg, quiz: q, knowledge: k}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(observability.HTTPMiddleware(s.obs.Metrics()))
	r.Use(loggingMiddleware)

	r.Route("/health", func(r chi.Router) {
		r.Get("/liveness", s.handleLiveness)
		r.Get("/readiness", s.handleReadiness)
		r.Get("/startup", s.handleReadiness)
	})

	if h := s.obs.Handler(); h != nil {
		r.Method(http.MethodGet, s.obs.MetricsPath(), h)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.validator))

		r.Post("/questions", s.handleQuestions)
		r.Post("/responses", s.handleResponses)

		r.Route("/knowledge", func(r chi.Router) {
			r.Post("/save_knowledge", s.handleSaveKnowledge)
			r.Post("/list_knowledge", s.handleListKnowledge)
		})
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	slog.Info("HTTP server starting", "address", s.cfg.Address, "auth", s.validator != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	timeout := s.cfg.ShutdownTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	slog.Info("HTTP server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start),
		)
	})
}
