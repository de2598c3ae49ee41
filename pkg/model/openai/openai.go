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

// Package openai implements model.LLM on the Chat Completions API of any
// OpenAI-compatible endpoint, using the official openai-go SDK.
//
// Tools are sent as function tools; structured output uses the json_schema
// response format.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/vymalo/quiz-backend/pkg/model"
	"github.com/vymalo/quiz-backend/pkg/tool"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 120 * time.Second
)

// Config configures the OpenAI client.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int

	// RequestOptions are appended to the SDK options (tests use it to inject
	// an HTTP client).
	RequestOptions []option.RequestOption
}

// Option configures the OpenAI client.
type Option func(*Config)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithMaxRetries sets the SDK retry count.
func WithMaxRetries(n int) Option {
	return func(c *Config) {
		c.MaxRetries = n
	}
}

// WithRequestOptions appends raw SDK options.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(c *Config) {
		c.RequestOptions = append(c.RequestOptions, opts...)
	}
}

type openaiModel struct {
	client openai.Client
	name   string
}

// New creates a chat completions model for the given model name.
func New(apiKey, modelName string, opts ...Option) (model.LLM, error) {
	cfg := Config{APIKey: apiKey, Model: modelName}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewFromConfig(cfg)
}

// NewFromConfig creates a chat completions model.
func NewFromConfig(cfg Config) (model.LLM, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	return &openaiModel{
		client: openai.NewClient(ClientOptions(cfg)...),
		name:   cfg.Model,
	}, nil
}

// ClientOptions translates cfg to SDK request options. Self-hosted endpoints
// often run without a key; a placeholder keeps the SDK from reading
// OPENAI_API_KEY from the environment.
func ClientOptions(cfg Config) []option.RequestOption {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "unused"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/") + "/"),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return append(opts, cfg.RequestOptions...)
}

func (m *openaiModel) Name() string { return m.name }

func (m *openaiModel) Provider() model.Provider { return model.ProviderOpenAI }

func (m *openaiModel) Close() error { return nil }

// GenerateContent performs one chat completion.
func (m *openaiModel) GenerateContent(ctx context.Context, req *model.Request) (*model.Response, error) {
	params := m.buildParams(req)

	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, &model.ProviderCallError{Provider: model.ProviderOpenAI, Model: m.name, Err: err}
	}
	if len(completion.Choices) == 0 {
		if req.Config != nil && req.Config.ResponseSchema != nil {
			return nil, fmt.Errorf("openai: empty choices: %w", model.ErrNoObjectGenerated)
		}
		return nil, &model.ProviderCallError{Provider: model.ProviderOpenAI, Model: m.name, Err: errors.New("empty choices")}
	}

	resp := parseCompletion(completion)

	if req.Config != nil && req.Config.ResponseSchema != nil {
		msg := completion.Choices[0].Message
		if msg.Refusal != "" {
			return nil, fmt.Errorf("openai: model refused (%s): %w", msg.Refusal, model.ErrNoObjectGenerated)
		}
		resp.Text = model.StripCodeFence(resp.Text)
		if !json.Valid([]byte(resp.Text)) {
			return nil, fmt.Errorf("openai: structured output is not valid JSON: %w", model.ErrNoObjectGenerated)
		}
	}

	return resp, nil
}

func (m *openaiModel) buildParams(req *model.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(m.name),
		Messages: buildMessages(req),
	}

	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	if cfg := req.Config; cfg != nil {
		if cfg.Temperature != nil {
			params.Temperature = openai.Float(*cfg.Temperature)
		}
		if cfg.MaxTokens != nil {
			params.MaxCompletionTokens = openai.Int(int64(*cfg.MaxTokens))
		}
		if cfg.ResponseSchema != nil {
			params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
					JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
						Name:   cfg.SchemaName(),
						Schema: cfg.ResponseSchema,
						Strict: openai.Bool(cfg.Strict()),
					},
				},
			}
		}
	}

	return params
}

func buildMessages(req *model.Request) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemInstruction != "" {
		msgs = append(msgs, openai.SystemMessage(req.SystemInstruction))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case model.RoleAssistant:
			msgs = append(msgs, assistantMessage(msg))
		case model.RoleTool:
			msgs = append(msgs, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			msgs = append(msgs, openai.UserMessage(msg.Content))
		}
	}
	return msgs
}

func assistantMessage(msg model.Message) openai.ChatCompletionMessageParamUnion {
	if len(msg.ToolCalls) == 0 {
		return openai.ChatCompletionMessageParamOfAssistant(msg.Content)
	}

	asst := openai.ChatCompletionAssistantMessageParam{}
	if msg.Content != "" {
		asst.Content.OfString = openai.String(msg.Content)
	}
	for _, tc := range msg.ToolCalls {
		asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: tc.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Name,
				Arguments: tc.ArgsJSON(),
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &asst}
}

func buildTools(defs []tool.Definition) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		params := def.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		tools = append(tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  openai.FunctionParameters(params),
			},
		})
	}
	return tools
}

func parseCompletion(c *openai.ChatCompletion) *model.Response {
	choice := c.Choices[0]
	resp := &model.Response{
		Text:         choice.Message.Content,
		FinishReason: mapFinishReason(choice.FinishReason),
		Usage: &model.Usage{
			PromptTokens:     int(c.Usage.PromptTokens),
			CompletionTokens: int(c.Usage.CompletionTokens),
			TotalTokens:      int(c.Usage.TotalTokens),
		},
	}

	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, tool.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: tool.ParseArgs(tc.Function.Arguments),
		})
	}
	if len(resp.ToolCalls) > 0 {
		resp.FinishReason = model.FinishReasonToolCalls
	}
	return resp
}

func mapFinishReason(reason string) model.FinishReason {
	switch reason {
	case "length":
		return model.FinishReasonLength
	case "tool_calls", "function_call":
		return model.FinishReasonToolCalls
	case "content_filter":
		return model.FinishReasonContent
	default:
		return model.FinishReasonStop
	}
}

var _ model.LLM = (*openaiModel)(nil)
