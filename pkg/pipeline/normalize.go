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
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/vymalo/quiz-backend/pkg/config"
	"github.com/vymalo/quiz-backend/pkg/model"
	"github.com/vymalo/quiz-backend/pkg/tool/functiontool"
)

// Field names the list produced by normalization.
type Field string

const (
	FieldQuestions Field = "questions"
	FieldResponses Field = "responses"
)

type questionList struct {
	Questions []string `json:"questions" jsonschema:"required,description=One question per item"`
}

type responseList struct {
	Responses []string `json:"responses" jsonschema:"required,description=One response per item"`
}

var schemas = map[Field]map[string]any{
	FieldQuestions: mustSchema[questionList](),
	FieldResponses: mustSchema[responseList](),
}

func mustSchema[T any]() map[string]any {
	s, err := functiontool.Schema[T]()
	if err != nil {
		panic(err)
	}
	return s
}

// ResponseSchema returns the strict JSON schema of field's list.
func ResponseSchema(field Field) (map[string]any, bool) {
	s, ok := schemas[field]
	return s, ok
}

const normalizeSystem = `You convert drafts into structured lists.
- Reformat the text into a list of items without enumeration.
- Do not reduce the number of items.
- Drop exact duplicates.
- Keep the wording and the markdown of each item.`

func normalizePrompt(raw string) string {
	return "Reformat the following text into a list:\n\n" + raw
}

// Normalize runs Phase B: the summarizer model reformats raw into the list
// named by field. Only failures wrapping model.ErrNoObjectGenerated are
// retried, with the identical request and no delay; after the configured
// number of attempts the error wraps ErrNormalizationExhausted.
func (p *Pipeline) Normalize(ctx context.Context, field Field, raw string) (items []string, err error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.normalize")
	span.SetAttributes(attribute.String("field", string(field)))
	defer func() { endSpan(span, err) }()

	schema, ok := ResponseSchema(field)
	if !ok {
		return nil, fmt.Errorf("unknown normalization field %q", field)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("normalize %s: %w", field, ErrEmptyGeneration)
	}

	llm, err := p.models.Resolve(config.RoleSummarizer)
	if err != nil {
		return nil, err
	}

	req := &model.Request{
		SystemInstruction: normalizeSystem,
		Messages:          []model.Message{model.UserMessage(normalizePrompt(raw))},
		Config: &model.GenerateConfig{
			ResponseSchema:     schema,
			ResponseSchemaName: string(field),
		},
	}

	var last error
	for attempt := 1; attempt <= p.normalizeAttempts; attempt++ {
		span.SetAttributes(attribute.Int("attempts", attempt))
		if attempt > 1 {
			p.logger.Warn("Retrying normalization", "field", field, "attempt", attempt, "error", last)
			if p.hooks.NormalizeRetry != nil {
				p.hooks.NormalizeRetry(ctx, attempt)
			}
		}

		resp, err := llm.GenerateContent(ctx, req)
		if err == nil {
			items, err = decodeList(field, resp.Text)
		}
		p.llmCall(ctx, config.RoleSummarizer, PhaseNormalize, err)
		if err == nil {
			p.logger.Debug("Normalized", "field", field, "items", len(items), "attempt", attempt)
			return items, nil
		}
		if !errors.Is(err, model.ErrNoObjectGenerated) {
			return nil, err
		}
		last = err
	}

	return nil, &NormalizationError{Attempts: p.normalizeAttempts, Last: last}
}

var enumeration = regexp.MustCompile(`^(\d+[.)]|[-*+•])\s+`)

// decodeList binds text to the list schema. Anything that does not bind is
// reported as model.ErrNoObjectGenerated.
func decodeList(field Field, text string) ([]string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(model.StripCodeFence(text)), &obj); err != nil {
		return nil, fmt.Errorf("decode %s: %v: %w", field, err, model.ErrNoObjectGenerated)
	}
	rawList, ok := obj[string(field)]
	if !ok {
		return nil, fmt.Errorf("field %q missing: %w", field, model.ErrNoObjectGenerated)
	}
	var list []string
	if err := json.Unmarshal(rawList, &list); err != nil {
		return nil, fmt.Errorf("decode %s: %v: %w", field, err, model.ErrNoObjectGenerated)
	}

	items := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, item := range list {
		item = strings.TrimSpace(enumeration.ReplaceAllString(strings.TrimSpace(item), ""))
		if item == "" {
			continue
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("empty %s list: %w", field, model.ErrNoObjectGenerated)
	}
	return items, nil
}
