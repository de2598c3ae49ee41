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

// Package model defines the LLM interface used by the generation pipeline.
//
// A provider must support two kinds of calls through GenerateContent:
//   - free-form chat generation, optionally advertising tools and returning
//     tool calls the caller executes and feeds back;
//   - schema-constrained generation (GenerateConfig.ResponseSchema set),
//     returning a JSON document conforming to the schema.
//
// When a schema-constrained call produces nothing that decodes as JSON,
// providers return an error wrapping ErrNoObjectGenerated.
package model

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/vymalo/quiz-backend/pkg/tool"
)

// LLM is the interface for language models. Implementations are stateless
// clients, safe for concurrent use across requests.
type LLM interface {
	// Name returns the model identifier.
	Name() string

	// Provider returns the provider type.
	Provider() Provider

	// GenerateContent performs one non-streaming model call.
	GenerateContent(ctx context.Context, req *Request) (*Response, error)

	// Close releases any resources held by the LLM.
	Close() error
}

// Provider identifies the LLM provider.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// MessageRole identifies the author of a message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Message is one turn of the conversation sent to the model.
type Message struct {
	Role MessageRole

	// Content is the text of the turn (tool output for RoleTool).
	Content string

	// ToolCalls are the calls requested by an assistant turn.
	ToolCalls []tool.ToolCall

	// ToolCallID and ToolName identify the call a RoleTool message answers.
	ToolCallID string
	ToolName   string
}

// UserMessage builds a user turn.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// ToolResultMessage builds the answer to a tool call.
func ToolResultMessage(call tool.ToolCall, result string) Message {
	return Message{Role: RoleTool, Content: result, ToolCallID: call.ID, ToolName: call.Name}
}

// Request contains the input for an LLM call.
type Request struct {
	// SystemInstruction is prepended to the conversation.
	SystemInstruction string

	// Messages is the conversation history.
	Messages []Message

	// Tools available for the model to call.
	Tools []tool.Definition

	// Config contains generation configuration.
	Config *GenerateConfig
}

// GenerateConfig contains configuration for generation.
type GenerateConfig struct {
	// Temperature controls randomness (0-2).
	Temperature *float64

	// MaxTokens limits the response length.
	MaxTokens *int

	// ResponseSchema requests structured output conforming to this JSON schema.
	ResponseSchema map[string]any

	// ResponseSchemaName identifies the schema for providers that require it.
	// Default: "response"
	ResponseSchemaName string

	// ResponseSchemaStrict enables strict schema validation.
	// Default: true (nil means true)
	ResponseSchemaStrict *bool
}

// SchemaName returns the schema name, defaulting to "response".
func (c *GenerateConfig) SchemaName() string {
	if c == nil || c.ResponseSchemaName == "" {
		return "response"
	}
	return c.ResponseSchemaName
}

// Strict reports whether strict schema mode is requested.
func (c *GenerateConfig) Strict() bool {
	return c == nil || c.ResponseSchemaStrict == nil || *c.ResponseSchemaStrict
}

// Response contains the result of an LLM call.
type Response struct {
	// Text is the generated text (the JSON document for structured calls).
	Text string

	// ToolCalls requested by the model.
	ToolCalls []tool.ToolCall

	// FinishReason indicates why generation stopped.
	FinishReason FinishReason

	// Usage statistics.
	Usage *Usage
}

// HasToolCalls reports whether the model asked for tools.
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// Usage contains token usage statistics.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// FinishReason indicates why generation stopped.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonToolCalls FinishReason = "tool_calls"
	FinishReasonContent   FinishReason = "content_filter"
)

// ErrNoObjectGenerated means a schema-constrained call returned nothing that
// binds to the requested schema.
var ErrNoObjectGenerated = errors.New("no object generated")

var codeFence = regexp.MustCompile("(?s)^\\s*```[A-Za-z0-9_-]*[ \\t]*\\n?(.*?)\\s*```\\s*$")

// StripCodeFence removes one markdown code fence surrounding text, as some
// OpenAI-compatible servers wrap structured output in ```json blocks.
// Unfenced text is returned unchanged.
func StripCodeFence(text string) string {
	if m := codeFence.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return text
}

// ProviderCallError wraps a transport, auth or provider failure of a model call.
type ProviderCallError struct {
	Provider Provider
	Model    string
	Err      error
}

func (e *ProviderCallError) Error() string {
	return fmt.Sprintf("%s model %q call failed: %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderCallError) Unwrap() error { return e.Err }

// IsProviderCallError reports whether err is or wraps a *ProviderCallError.
func IsProviderCallError(err error) bool {
	var pe *ProviderCallError
	return errors.As(err, &pe)
}
