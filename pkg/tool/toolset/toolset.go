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

// Package toolset assembles the tools offered to the model for one
// generation call.
//
// The set is a pure function of the request's optional parameters and the
// deployment's per-endpoint flag:
//
//	endpoint flag off      -> no tools
//	knowledge name         -> search_knowledge
//	local db name          -> search_local_db, save_to_local_db
//	web enabled (+ a key)  -> search_web
package toolset

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vymalo/quiz-backend/pkg/knowledge"
	"github.com/vymalo/quiz-backend/pkg/tool"
	"github.com/vymalo/quiz-backend/pkg/tool/functiontool"
	"github.com/vymalo/quiz-backend/pkg/websearch"
)

// Tool names.
const (
	SearchKnowledge = "search_knowledge"
	SearchLocalDB   = "search_local_db"
	SaveToLocalDB   = "save_to_local_db"
	SearchWeb       = "search_web"
)

// Params are the caller-supplied options that decide which tools are offered.
type Params struct {
	KnowledgeName string
	LocalDBName   string
	WebEnabled    bool
}

// Knowledge is the part of the knowledge store the tools use.
type Knowledge interface {
	QueryDocuments(ctx context.Context, name, pattern string) ([]knowledge.Document, error)
	SaveDocument(ctx context.Context, name string, doc knowledge.Document) error
	SearchSimilar(ctx context.Context, name, text string, limit int) ([]knowledge.Document, error)
}

// Config configures a Provider.
type Config struct {
	Store Knowledge

	// Web is nil when no search backend is configured; search_web is then
	// never offered.
	Web websearch.Searcher

	Truncator        tool.Truncator
	MaxResultTokens  int
	LocalSearchLimit int

	Observer tool.Observer

	// NewID generates save_to_local_db document ids. Default: uuid.NewString.
	NewID func() string
}

// Provider builds per-call tool sets. It holds no per-request state.
type Provider struct {
	cfg Config
}

// New creates a Provider.
func New(cfg Config) *Provider {
	if cfg.LocalSearchLimit <= 0 {
		cfg.LocalSearchLimit = 5
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Provider{cfg: cfg}
}

// Tools returns the tool set for a call, or nil when no tool applies.
func (p *Provider) Tools(params Params, endpointEnabled bool) *tool.Set {
	if !endpointEnabled {
		return nil
	}

	var tools []tool.Tool
	if params.KnowledgeName != "" && p.cfg.Store != nil {
		tools = append(tools, p.searchKnowledge(params.KnowledgeName))
	}
	if params.LocalDBName != "" && p.cfg.Store != nil {
		tools = append(tools, p.searchLocalDB(params.LocalDBName), p.saveToLocalDB(params.LocalDBName))
	}
	if params.WebEnabled && p.cfg.Web != nil {
		tools = append(tools, p.searchWeb())
	}
	if len(tools) == 0 {
		return nil
	}

	for i, t := range tools {
		tools[i] = traced{t}
	}

	var opts []tool.SetOption
	if p.cfg.Truncator != nil && p.cfg.MaxResultTokens > 0 {
		opts = append(opts, tool.WithTruncation(p.cfg.Truncator, p.cfg.MaxResultTokens))
	}
	if p.cfg.Observer != nil {
		opts = append(opts, tool.WithObserver(p.cfg.Observer))
	}
	return tool.NewSet(tools, opts...)
}

type patternArgs struct {
	Pattern string `json:"pattern" jsonschema:"required,description=Regular expression matched against the documents of the knowledge base"`
}

type queryArgs struct {
	Query string `json:"query" jsonschema:"required,description=Free-text query"`
}

type saveArgs struct {
	Text string `json:"text" jsonschema:"required,description=Fact or passage to remember"`
}

func (p *Provider) searchKnowledge(name string) tool.Tool {
	return functiontool.MustNew(functiontool.Config{
		Name: SearchKnowledge,
		Description: fmt.Sprintf("Search the %q knowledge base for documents whose content matches a regular expression. "+
			"Use it to ground questions and responses in the course material.", name),
	}, func(ctx context.Context, args patternArgs) (string, error) {
		docs, err := p.cfg.Store.QueryDocuments(ctx, name, args.Pattern)
		if err != nil {
			return "", err
		}
		return formatDocuments(docs)
	})
}

func (p *Provider) searchLocalDB(name string) tool.Tool {
	return functiontool.MustNew(functiontool.Config{
		Name:        SearchLocalDB,
		Description: "Search facts previously saved to the local database, by meaning.",
	}, func(ctx context.Context, args queryArgs) (string, error) {
		docs, err := p.cfg.Store.SearchSimilar(ctx, name, args.Query, p.cfg.LocalSearchLimit)
		if err != nil {
			return "", err
		}
		return formatDocuments(docs)
	})
}

func (p *Provider) saveToLocalDB(name string) tool.Tool {
	return functiontool.MustNew(functiontool.Config{
		Name:        SaveToLocalDB,
		Description: "Save a fact you discovered to the local database so it can be found again later.",
	}, func(ctx context.Context, args saveArgs) (string, error) {
		if strings.TrimSpace(args.Text) == "" {
			return "", fmt.Errorf("text is empty")
		}
		id := p.cfg.NewID()
		if err := p.cfg.Store.SaveDocument(ctx, name, knowledge.Document{ID: id, Document: args.Text}); err != nil {
			return "", err
		}
		return fmt.Sprintf("saved with id %s", id), nil
	})
}

func (p *Provider) searchWeb() tool.Tool {
	return functiontool.MustNew(functiontool.Config{
		Name:        SearchWeb,
		Description: "Search the web for up-to-date information.",
	}, func(ctx context.Context, args queryArgs) (string, error) {
		results, err := p.cfg.Web.Search(ctx, args.Query)
		if err != nil {
			return "", err
		}
		return websearch.Format(results), nil
	})
}

type documentView struct {
	ID       string `json:"id"`
	Document string `json:"document"`
}

// formatDocuments returns "" for no documents, which the tool set reports
// as no results.
func formatDocuments(docs []knowledge.Document) (string, error) {
	if len(docs) == 0 {
		return "", nil
	}
	views := make([]documentView, len(docs))
	for i, d := range docs {
		views[i] = documentView{ID: d.ID, Document: d.Document}
	}
	data, err := json.Marshal(views)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// traced wraps a tool call in a span named after the tool.
type traced struct {
	tool.Tool
}

func (t traced) Call(ctx context.Context, args map[string]any) (string, error) {
	ctx, span := otel.Tracer("quiz-backend/tool").Start(ctx, "tool."+t.Name())
	defer span.End()

	out, err := t.Tool.Call(ctx, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Int("result.bytes", len(out)))
	return out, err
}
