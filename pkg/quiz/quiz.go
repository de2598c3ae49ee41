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

// Package quiz implements the two quiz operations: creating questions about
// a topic, and creating good and bad responses to a question.
//
// Each operation builds a prompt, runs free-form generation with the
// request's tools, then normalizes the output into a list.
package quiz

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/vymalo/quiz-backend/pkg/config"
	"github.com/vymalo/quiz-backend/pkg/pipeline"
	"github.com/vymalo/quiz-backend/pkg/tool"
	"github.com/vymalo/quiz-backend/pkg/tool/toolset"
)

// ToolProvider builds the tool set of one generation call.
type ToolProvider interface {
	Tools(params toolset.Params, endpointEnabled bool) *tool.Set
}

// Service runs the quiz operations. It is safe for concurrent use.
type Service struct {
	pipeline *pipeline.Pipeline
	tools    ToolProvider
	flags    config.ToolsConfig
	temps    config.PipelineConfig
	tracer   trace.Tracer
}

// NewService creates a Service. tools may be nil, in which case no tool is
// ever offered.
func NewService(p *pipeline.Pipeline, tools ToolProvider, flags config.ToolsConfig, temps config.PipelineConfig) *Service {
	return &Service{
		pipeline: p,
		tools:    tools,
		flags:    flags,
		temps:    temps,
		tracer:   otel.Tracer("quiz-backend/quiz"),
	}
}

func (s *Service) toolsFor(src Sources, endpointEnabled bool) *tool.Set {
	if s.tools == nil {
		return nil
	}
	return s.tools.Tools(src.params(), endpointEnabled)
}

// CreateQuestions generates questions about req.Topic.
func (s *Service) CreateQuestions(ctx context.Context, req *QuestionRequest) (out *Questions, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "quiz.questions", trace.WithAttributes(attribute.String("topic", req.Topic)))
	defer func() { endSpan(span, err) }()

	raw, err := s.pipeline.Generate(ctx, pipeline.GenerateRequest{
		Role:        config.RoleQuestion,
		System:      questionSystem(req.Topic),
		Prompt:      questionTemplate(req),
		Tools:       s.toolsFor(req.Sources, s.flags.Questions),
		Temperature: s.temps.QuestionTemperature,
	})
	if err != nil {
		return nil, err
	}

	items, err := s.pipeline.Normalize(ctx, pipeline.FieldQuestions, raw)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("count", len(items)))
	return NewQuestions(items), nil
}

// CreateResponses generates responses to req.Question for the requested
// polarity, or both. Good and bad sets are generated concurrently and the
// result is all-or-nothing.
func (s *Service) CreateResponses(ctx context.Context, req *ResponseRequest) (out *Responses, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "quiz.responses", trace.WithAttributes(
		attribute.String("topic", req.Topic),
		attribute.String("polarity", string(req.Polarity)),
	))
	defer func() { endSpan(span, err) }()

	results := make(map[Polarity][]string, 2)
	polarities := req.polarities()
	lists := make([][]string, len(polarities))

	g, gctx := errgroup.WithContext(ctx)
	for i, polarity := range polarities {
		g.Go(func() error {
			items, err := s.responses(gctx, req, polarity)
			if err != nil {
				return err
			}
			lists[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, polarity := range polarities {
		results[polarity] = lists[i]
	}

	return NewResponses(req.Question, results[PolarityGood], results[PolarityBad]), nil
}

func (s *Service) responses(ctx context.Context, req *ResponseRequest, polarity Polarity) ([]string, error) {
	temperature := s.temps.GoodResponseTemperature
	if polarity == PolarityBad {
		temperature = s.temps.BadResponseTemperature
	}

	raw, err := s.pipeline.Generate(ctx, pipeline.GenerateRequest{
		Role:        config.RoleResponse,
		System:      responseSystem(req.Topic, polarity),
		Prompt:      responseTemplate(req, polarity),
		Tools:       s.toolsFor(req.Sources, s.flags.Responses),
		Temperature: temperature,
	})
	if err != nil {
		return nil, err
	}
	return s.pipeline.Normalize(ctx, pipeline.FieldResponses, raw)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
