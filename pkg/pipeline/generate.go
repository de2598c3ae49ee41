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

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/vymalo/quiz-backend/pkg/model"
	"github.com/vymalo/quiz-backend/pkg/tool"
)

var (
	// ErrEmptyGeneration is returned when the model answered with no text.
	ErrEmptyGeneration = errors.New("model returned empty text")

	// ErrToolRoundsExceeded is returned when the model keeps calling tools
	// after the round limit.
	ErrToolRoundsExceeded = errors.New("tool round limit exceeded")
)

// GenerateRequest is the input of Phase A.
type GenerateRequest struct {
	// Role selects the model (question or response).
	Role string

	System string
	Prompt string

	// Tools may be nil.
	Tools *tool.Set

	Temperature *float64
}

// Generate runs Phase A and returns the model's free-form text. Model call
// failures are returned unchanged and never retried here.
func (p *Pipeline) Generate(ctx context.Context, req GenerateRequest) (text string, err error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.generate")
	span.SetAttributes(roleAttr(req.Role), attribute.StringSlice("tools", req.Tools.Names()))
	defer func() { endSpan(span, err) }()

	llm, err := p.models.Resolve(req.Role)
	if err != nil {
		return "", err
	}

	messages := []model.Message{model.UserMessage(req.Prompt)}
	for round := 0; ; round++ {
		mreq := &model.Request{
			SystemInstruction: req.System,
			Messages:          messages,
			Config:            &model.GenerateConfig{Temperature: req.Temperature},
		}
		// Past the limit the tools are withdrawn so the model has to answer.
		if round < p.maxToolRounds {
			mreq.Tools = req.Tools.Definitions()
		}

		p.logger.Debug("Generation call", "role", req.Role, "round", round, "tools", len(mreq.Tools))
		resp, err := llm.GenerateContent(ctx, mreq)
		p.llmCall(ctx, req.Role, PhaseGenerate, err)
		if err != nil {
			return "", err
		}

		if !resp.HasToolCalls() {
			text := strings.TrimSpace(resp.Text)
			if text == "" {
				return "", fmt.Errorf("%s model %q: %w", req.Role, llm.Name(), ErrEmptyGeneration)
			}
			span.SetAttributes(attribute.Int("rounds", round+1))
			return text, nil
		}
		if round >= p.maxToolRounds {
			return "", fmt.Errorf("%s model %q after %d rounds: %w", req.Role, llm.Name(), round, ErrToolRoundsExceeded)
		}

		messages = append(messages, model.Message{
			Role:      model.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			messages = append(messages, model.ToolResultMessage(call, req.Tools.Execute(ctx, call)))
		}
	}
}
