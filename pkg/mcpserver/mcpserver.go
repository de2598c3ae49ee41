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

// Package mcpserver exposes quiz generation and knowledge management as
// Model Context Protocol tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vymalo/quiz-backend/pkg/knowledge"
	"github.com/vymalo/quiz-backend/pkg/quiz"
)

// Name is the MCP server name announced on initialize.
const Name = "quiz-backend"

// Tool names.
const (
	ToolCreateQuestions = "create_questions"
	ToolCreateResponses = "create_responses"
	ToolSaveKnowledge   = "save_knowledge"
	ToolListKnowledge   = "list_knowledge"
)

// Quiz generates questions and responses.
type Quiz interface {
	CreateQuestions(ctx context.Context, req *quiz.QuestionRequest) (*quiz.Questions, error)
	CreateResponses(ctx context.Context, req *quiz.ResponseRequest) (*quiz.Responses, error)
}

// Knowledge stores and lists knowledge documents.
type Knowledge interface {
	SaveDocument(ctx context.Context, name string, doc knowledge.Document) error
	QueryDocuments(ctx context.Context, name, pattern string) ([]knowledge.Document, error)
}

type handlers struct {
	quiz      Quiz
	knowledge Knowledge
}

// New builds the MCP server with the four tools registered.
func New(q Quiz, k Knowledge, version string) *server.MCPServer {
	s := server.NewMCPServer(Name, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	h := &handlers{quiz: q, knowledge: k}

	sources := []mcp.ToolOption{
		mcp.WithString("knowledge_name_slug", mcp.Description("Knowledge collection searched with search_knowledge")),
		mcp.WithString("local_db_name", mcp.Description("Scratch collection the model may search and write")),
		mcp.WithBoolean("web_enabled", mcp.Description("Allow web search")),
	}
	prompts := []mcp.ToolOption{
		mcp.WithString("topic", mcp.Required(), mcp.Description("Subject of the quiz")),
		mcp.WithString("complement", mcp.Description("Extra context appended to the prompt")),
		mcp.WithString("extraPrompt", mcp.Description("Additional instructions")),
	}

	s.AddTool(mcp.NewTool(ToolCreateQuestions, with(
		[]mcp.ToolOption{mcp.WithDescription("Generate quiz questions about a topic")}, prompts, sources)...,
	), h.createQuestions)

	s.AddTool(mcp.NewTool(ToolCreateResponses, with(
		[]mcp.ToolOption{
			mcp.WithDescription("Generate good and/or bad candidate responses to a quiz question"),
			mcp.WithString("question", mcp.Required(), mcp.Description("The question to answer")),
			mcp.WithString("polarity", mcp.Enum(string(quiz.PolarityGood), string(quiz.PolarityBad)),
				mcp.Description("Generate only good or only bad responses; both when omitted")),
		}, prompts, sources)...,
	), h.createResponses)

	s.AddTool(mcp.NewTool(ToolSaveKnowledge,
		mcp.WithDescription("Save a document into a knowledge collection"),
		mcp.WithString("knowledge_name_slug", mcp.Required()),
		mcp.WithString("id", mcp.Required()),
		mcp.WithString("document", mcp.Required()),
		mcp.WithObject("metadata", mcp.Description("String key/value pairs stored with the document")),
	), h.saveKnowledge)

	s.AddTool(mcp.NewTool(ToolListKnowledge,
		mcp.WithDescription("List documents of a knowledge collection whose content matches a regex"),
		mcp.WithString("knowledge_name_slug", mcp.Required()),
		mcp.WithString("regex", mcp.Required(), mcp.Description("Regular expression matched against document content")),
	), h.listKnowledge)

	return s
}

// Serve runs s over the given streams until ctx is cancelled or in is closed.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	slog.Info("MCP server listening on stdio", "name", Name)
	return server.NewStdioServer(s).Listen(ctx, in, out)
}

func with(groups ...[]mcp.ToolOption) []mcp.ToolOption {
	var out []mcp.ToolOption
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func (h *handlers) createQuestions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in quiz.QuestionRequest
	if err := req.BindArguments(&in); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}
	if err := in.Validate(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := h.quiz.CreateQuestions(ctx, &in)
	return result(out, err)
}

func (h *handlers) createResponses(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in quiz.ResponseRequest
	if err := req.BindArguments(&in); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}
	if err := in.Validate(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := h.quiz.CreateResponses(ctx, &in)
	return result(out, err)
}

type saveArgs struct {
	KnowledgeName string            `json:"knowledge_name_slug"`
	ID            string            `json:"id"`
	Document      string            `json:"document"`
	Metadata      map[string]string `json:"metadata"`
}

func (h *handlers) saveKnowledge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in saveArgs
	if err := req.BindArguments(&in); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}
	for _, f := range [][2]string{{"knowledge_name_slug", in.KnowledgeName}, {"id", in.ID}, {"document", in.Document}} {
		if strings.TrimSpace(f[1]) == "" {
			return mcp.NewToolResultError(f[0] + " is required"), nil
		}
	}

	doc := knowledge.Document{ID: in.ID, Document: in.Document, Metadata: knowledge.StringMetadata(in.Metadata)}
	if err := h.knowledge.SaveDocument(ctx, in.KnowledgeName, doc); err != nil {
		return mcp.NewToolResultErrorFromErr("save failed", err), nil
	}
	return result(map[string]string{"status": "ok"}, nil)
}

func (h *handlers) listKnowledge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("knowledge_name_slug")
	if err != nil || strings.TrimSpace(name) == "" {
		return mcp.NewToolResultError("knowledge_name_slug is required"), nil
	}
	pattern := req.GetString("regex", "")
	if pattern == "" {
		return mcp.NewToolResultError("regex is required"), nil
	}
	docs, err := h.knowledge.QueryDocuments(ctx, name, pattern)
	if docs == nil && err == nil {
		docs = []knowledge.Document{}
	}
	return result(docs, err)
}

// result renders v as JSON text. Operation failures become tool errors so
// the client sees them as results rather than protocol faults.
func result(v any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
