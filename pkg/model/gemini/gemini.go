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

// Package gemini implements model.LLM on Google Gemini through the genai SDK.
package gemini

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/vymalo/quiz-backend/pkg/model"
	"github.com/vymalo/quiz-backend/pkg/tool"
)

// Config contains configuration for the Gemini model.
type Config struct {
	// APIKey is the Google AI API key.
	APIKey string

	// Model is the model name (e.g., "gemini-2.0-flash").
	Model string

	// BaseURL overrides the Gemini API endpoint.
	BaseURL string

	// Timeout bounds each call. Zero means no timeout beyond the caller's context.
	Timeout time.Duration
}

type geminiModel struct {
	client  *genai.Client
	name    string
	timeout time.Duration
}

// New creates a new Gemini model instance.
func New(cfg Config) (model.LLM, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	return &geminiModel{client: client, name: cfg.Model, timeout: cfg.Timeout}, nil
}

// NewClient builds the genai client shared by the chat and embedding adapters.
func NewClient(cfg Config) (*genai.Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

func (m *geminiModel) Name() string { return m.name }

func (m *geminiModel) Provider() model.Provider { return model.ProviderGemini }

func (m *geminiModel) Close() error { return nil }

// GenerateContent performs one non-streaming generation.
func (m *geminiModel) GenerateContent(ctx context.Context, req *model.Request) (*model.Response, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	contents := buildContents(req.Messages)
	config := buildConfig(req)

	genResp, err := m.client.Models.GenerateContent(ctx, m.name, contents, config)
	if err != nil {
		return nil, &model.ProviderCallError{Provider: model.ProviderGemini, Model: m.name, Err: err}
	}

	structured := req.Config != nil && req.Config.ResponseSchema != nil
	resp, err := parseResponse(genResp)
	if err != nil {
		if structured {
			return nil, fmt.Errorf("gemini: %v: %w", err, model.ErrNoObjectGenerated)
		}
		return nil, &model.ProviderCallError{Provider: model.ProviderGemini, Model: m.name, Err: err}
	}
	if structured && !json.Valid([]byte(resp.Text)) {
		return nil, fmt.Errorf("gemini: structured output is not valid JSON: %w", model.ErrNoObjectGenerated)
	}
	return resp, nil
}

// callID derives a stable identifier for calls Gemini returns without one.
func callID(name string, args map[string]any) string {
	data, _ := json.Marshal(map[string]any{"name": name, "args": args})
	hash := sha256.Sum256(data)
	return fmt.Sprintf("call-%x", hash[:12])
}

func buildContents(msgs []model.Message) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range msgs {
		if c := messageToContent(msg); c != nil {
			contents = append(contents, c)
		}
	}
	return contents
}

func messageToContent(msg model.Message) *genai.Content {
	switch msg.Role {
	case model.RoleAssistant:
		var parts []*genai.Part
		if msg.Content != "" {
			parts = append(parts, &genai.Part{Text: msg.Content})
		}
		for _, tc := range msg.ToolCalls {
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: tc.Args},
			})
		}
		if len(parts) == 0 {
			return nil
		}
		return &genai.Content{Role: "model", Parts: parts}

	case model.RoleTool:
		return &genai.Content{
			Role: "user",
			Parts: []*genai.Part{{
				FunctionResponse: &genai.FunctionResponse{
					ID:       msg.ToolCallID,
					Name:     msg.ToolName,
					Response: map[string]any{"result": msg.Content},
				},
			}},
		}

	default:
		if msg.Content == "" {
			return nil
		}
		return &genai.Content{Role: "user", Parts: []*genai.Part{{Text: msg.Content}}}
	}
}

func buildConfig(req *model.Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if req.SystemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemInstruction}},
			Role:  "user",
		}
	}

	if cfg := req.Config; cfg != nil {
		if cfg.Temperature != nil {
			config.Temperature = genai.Ptr(float32(*cfg.Temperature))
		}
		if cfg.MaxTokens != nil {
			config.MaxOutputTokens = int32(*cfg.MaxTokens)
		}
		if cfg.ResponseSchema != nil {
			config.ResponseSchema = toGenaiSchema(cfg.ResponseSchema)
			config.ResponseMIMEType = "application/json"
		}
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGenaiSchema(t.Parameters),
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	return config
}

// toGenaiSchema converts a JSON schema to a Gemini schema. Keywords Gemini
// does not understand (additionalProperties, $schema) are dropped.
func toGenaiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}

	s := &genai.Schema{}

	if t, ok := schema["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				s.Properties[name] = toGenaiSchema(propMap)
			}
		}
	}
	s.Required = stringList(schema["required"])
	if items, ok := schema["items"].(map[string]any); ok {
		s.Items = toGenaiSchema(items)
	}
	s.Enum = stringList(schema["enum"])

	return s
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		var out []string
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func parseResponse(genResp *genai.GenerateContentResponse) (*model.Response, error) {
	if genResp == nil || len(genResp.Candidates) == 0 {
		return nil, errors.New("empty response from Gemini")
	}

	candidate := genResp.Candidates[0]
	resp := &model.Response{FinishReason: mapFinishReason(candidate.FinishReason)}

	if candidate.Content != nil {
		var text strings.Builder
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			text.WriteString(part.Text)
			if fc := part.FunctionCall; fc != nil {
				id := fc.ID
				if id == "" {
					id = callID(fc.Name, fc.Args)
				}
				resp.ToolCalls = append(resp.ToolCalls, tool.ToolCall{ID: id, Name: fc.Name, Args: fc.Args})
			}
		}
		resp.Text = text.String()
	}
	if len(resp.ToolCalls) > 0 {
		resp.FinishReason = model.FinishReasonToolCalls
	}

	if genResp.UsageMetadata != nil {
		resp.Usage = &model.Usage{
			PromptTokens:     int(genResp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(genResp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(genResp.UsageMetadata.TotalTokenCount),
		}
	}

	return resp, nil
}

func mapFinishReason(reason genai.FinishReason) model.FinishReason {
	switch reason {
	case genai.FinishReasonMaxTokens:
		return model.FinishReasonLength
	case genai.FinishReasonSafety:
		return model.FinishReasonContent
	default:
		return model.FinishReasonStop
	}
}

var _ model.LLM = (*geminiModel)(nil)
