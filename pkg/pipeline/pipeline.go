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

// Package pipeline runs the two-phase generation used by every quiz
// operation.
//
// Phase A (Generate) calls the role's model with a prompt, a system
// instruction and an optional tool set, executing tool calls until the model
// answers with text. Phase B (Normalize) asks the summarizer model to
// reformat that text into a strict list of strings, retrying a bounded
// number of times when no structured object could be produced.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vymalo/quiz-backend/pkg/config"
	"github.com/vymalo/quiz-backend/pkg/model"
)

// Phase names reported to hooks.
const (
	PhaseGenerate  = "generate"
	PhaseNormalize = "normalize"
)

// Resolver returns the model handle of a role.
type Resolver interface {
	Resolve(role string) (model.LLM, error)
}

// Hooks receive pipeline events, typically to record metrics. Nil fields
// are skipped.
type Hooks struct {
	// LLMCall runs after every model call.
	LLMCall func(ctx context.Context, role, phase string, err error)

	// NormalizeRetry runs before each repeated normalization attempt.
	NormalizeRetry func(ctx context.Context, attempt int)
}

// Pipeline is stateless across requests and safe for concurrent use.
type Pipeline struct {
	models            Resolver
	normalizeAttempts int
	maxToolRounds     int
	hooks             Hooks
	logger            *slog.Logger
	tracer            trace.Tracer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithHooks installs event hooks.
func WithHooks(h Hooks) Option {
	return func(p *Pipeline) {
		p.hooks = h
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// New creates a pipeline. cfg should already carry its defaults.
func New(models Resolver, cfg config.PipelineConfig, opts ...Option) *Pipeline {
	p := &Pipeline{
		models:            models,
		normalizeAttempts: cfg.NormalizeAttempts,
		maxToolRounds:     cfg.MaxToolRounds,
		logger:            slog.Default(),
		tracer:            otel.Tracer("quiz-backend/pipeline"),
	}
	if p.normalizeAttempts < 1 {
		p.normalizeAttempts = 3
	}
	if p.maxToolRounds < 1 {
		p.maxToolRounds = 8
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ErrNormalizationExhausted is matched by errors.Is when every
// normalization attempt failed to produce a structured object.
var ErrNormalizationExhausted = errors.New("normalization exhausted")

// NormalizationError carries the attempt count and the last failure.
type NormalizationError struct {
	Attempts int
	Last     error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalization failed after %d attempts: %v", e.Attempts, e.Last)
}

// Is makes errors.Is(err, ErrNormalizationExhausted) hold.
func (e *NormalizationError) Is(target error) bool {
	return target == ErrNormalizationExhausted
}

func (e *NormalizationError) Unwrap() error { return e.Last }

// IsNormalizationExhausted reports whether err came from an exhausted
// normalization.
func IsNormalizationExhausted(err error) bool {
	return errors.Is(err, ErrNormalizationExhausted)
}

func (p *Pipeline) llmCall(ctx context.Context, role, phase string, err error) {
	if p.hooks.LLMCall != nil {
		p.hooks.LLMCall(ctx, role, phase, err)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func roleAttr(role string) attribute.KeyValue {
	return attribute.String("role", role)
}
