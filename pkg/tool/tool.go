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

// Package tool defines model-invocable tools and the per-call tool set.
//
// A Tool is advertised to the model for the duration of one generation call.
// Tools never fail the call they are used in: Set.Execute turns every tool
// error into the NoResults payload so the model's reasoning loop can go on.
//
// Creating a tool from a typed function:
//
//	type SearchArgs struct {
//	    Query string `json:"query" jsonschema:"required,description=Search query"`
//	}
//
//	t, err := functiontool.New(
//	    functiontool.Config{Name: "search_web", Description: "Search the web"},
//	    func(ctx context.Context, args SearchArgs) (string, error) { ... },
//	)
package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
)

// NoResults is returned to the model in place of a failed tool result.
const NoResults = "no results"

// Tool is a named capability the model can call.
type Tool interface {
	// Name returns the unique name of the tool.
	Name() string

	// Description tells the model when to use the tool.
	Description() string

	// Schema returns the JSON schema of the tool's arguments.
	Schema() map[string]any

	// Call executes the tool. The returned string is handed to the model verbatim.
	Call(ctx context.Context, args map[string]any) (string, error)
}

// Definition represents a tool definition for LLM function calling.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToDefinition converts a tool to a Definition.
func ToDefinition(t Tool) Definition {
	return Definition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Schema(),
	}
}

// ToolCall represents an LLM's request to invoke a tool.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ArgsJSON returns the arguments encoded as a JSON object.
func (c ToolCall) ArgsJSON() string {
	if len(c.Args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(c.Args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ParseArgs decodes a JSON argument string. Malformed input yields an empty map.
func ParseArgs(raw string) map[string]any {
	args := map[string]any{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		slog.Warn("Malformed tool arguments", "args", raw, "error", err)
		return map[string]any{}
	}
	return args
}

// Observer is notified after every tool execution.
type Observer func(ctx context.Context, name string, err error)

// Truncator shortens tool output before it is returned to the model.
type Truncator interface {
	Truncate(text string, maxTokens int) string
}

// Set is the immutable tool set of one generation call. A nil *Set has no tools.
type Set struct {
	tools     map[string]Tool
	order     []string
	truncator Truncator
	maxTokens int
	observer  Observer
}

// SetOption configures a Set.
type SetOption func(*Set)

// WithTruncation limits each result to maxTokens using t.
func WithTruncation(t Truncator, maxTokens int) SetOption {
	return func(s *Set) {
		s.truncator = t
		s.maxTokens = maxTokens
	}
}

// WithObserver registers a callback run after each execution.
func WithObserver(o Observer) SetOption {
	return func(s *Set) {
		s.observer = o
	}
}

// NewSet builds a set. Later tools replace earlier ones with the same name.
func NewSet(tools []Tool, opts ...SetOption) *Set {
	s := &Set{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, dup := s.tools[t.Name()]; !dup {
			s.order = append(s.order, t.Name())
		}
		s.tools[t.Name()] = t
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Len returns the number of tools.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Names returns tool names in sorted order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	names := append([]string(nil), s.order...)
	sort.Strings(names)
	return names
}

// Lookup returns the tool registered under name.
func (s *Set) Lookup(name string) (Tool, bool) {
	if s == nil {
		return nil, false
	}
	t, ok := s.tools[name]
	return t, ok
}

// Definitions returns the definitions advertised to the model, in insertion order.
func (s *Set) Definitions() []Definition {
	if s.Len() == 0 {
		return nil
	}
	defs := make([]Definition, 0, len(s.order))
	for _, name := range s.order {
		defs = append(defs, ToDefinition(s.tools[name]))
	}
	return defs
}

// Execute dispatches call by name and always returns a result string.
// Unknown tools and failing tools yield NoResults.
func (s *Set) Execute(ctx context.Context, call ToolCall) string {
	slog.Info("Tool executed", "tool", call.Name, "args", call.ArgsJSON())

	t, ok := s.Lookup(call.Name)
	if !ok {
		slog.Warn("Model called an unknown tool", "tool", call.Name)
		s.observe(ctx, call.Name, errUnknownTool)
		return NoResults
	}

	result, err := t.Call(ctx, call.Args)
	s.observe(ctx, call.Name, err)
	if err != nil {
		slog.Warn("Tool execution degraded", "tool", call.Name, "error", err)
		return NoResults
	}
	if result == "" {
		return NoResults
	}
	if s.truncator != nil && s.maxTokens > 0 {
		result = s.truncator.Truncate(result, s.maxTokens)
	}
	return result
}

func (s *Set) observe(ctx context.Context, name string, err error) {
	if s != nil && s.observer != nil {
		s.observer(ctx, name, err)
	}
}

type toolError string

func (e toolError) Error() string { return string(e) }

const errUnknownTool = toolError("unknown tool")
