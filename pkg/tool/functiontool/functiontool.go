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

// Package functiontool creates tools from typed Go functions.
//
// The argument schema is generated from the Args struct tags:
//
//	type SaveArgs struct {
//	    Text string `json:"text" jsonschema:"required,description=Fact to remember"`
//	}
//
//	saveTool, err := functiontool.New(
//	    functiontool.Config{Name: "save_to_local_db", Description: "Save a fact"},
//	    func(ctx context.Context, args SaveArgs) (string, error) { ... },
//	)
package functiontool

import (
	"context"
	"fmt"

	"github.com/vymalo/quiz-backend/pkg/tool"
)

// Config defines the configuration for a function tool.
type Config struct {
	// Name is the unique identifier for this tool (required).
	Name string

	// Description explains what the tool does (required).
	Description string
}

// New creates a tool from a typed function.
func New[Args any](cfg Config, fn func(context.Context, Args) (string, error)) (tool.Tool, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("tool name is required")
	}
	if cfg.Description == "" {
		return nil, fmt.Errorf("tool description is required")
	}

	schema, err := generateSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %s: %w", cfg.Name, err)
	}

	return &functionTool[Args]{config: cfg, fn: fn, schema: schema}, nil
}

// MustNew is New for package-level tool definitions whose schema is static.
func MustNew[Args any](cfg Config, fn func(context.Context, Args) (string, error)) tool.Tool {
	t, err := New(cfg, fn)
	if err != nil {
		panic(err)
	}
	return t
}

type functionTool[Args any] struct {
	config Config
	fn     func(context.Context, Args) (string, error)
	schema map[string]any
}

func (t *functionTool[Args]) Name() string           { return t.config.Name }
func (t *functionTool[Args]) Description() string    { return t.config.Description }
func (t *functionTool[Args]) Schema() map[string]any { return t.schema }

// Call decodes args into Args and runs the function.
func (t *functionTool[Args]) Call(ctx context.Context, args map[string]any) (string, error) {
	var typed Args
	if err := mapToStruct(args, &typed); err != nil {
		return "", fmt.Errorf("invalid arguments for %s: %w", t.config.Name, err)
	}
	return t.fn(ctx, typed)
}

var _ tool.Tool = (*functionTool[struct{}])(nil)
