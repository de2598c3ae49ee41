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

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/vymalo/quiz-backend/pkg/ingest"
	"github.com/vymalo/quiz-backend/pkg/knowledge"
	"github.com/vymalo/quiz-backend/pkg/quiz"
)

// SourceFlags select the retrieval tools offered to the model.
type SourceFlags struct {
	Knowledge string `help:"Knowledge collection searched with regex patterns." placeholder:"NAME"`
	LocalDB   string `name:"local-db" help:"Scratch collection the model may search and write." placeholder:"NAME"`
	Web       bool   `help:"Allow web search."`
}

func (f SourceFlags) sources() quiz.Sources {
	return quiz.Sources{KnowledgeName: f.Knowledge, LocalDBName: f.LocalDB, WebEnabled: f.Web}
}

// QuestionsCmd generates questions.
type QuestionsCmd struct {
	Topic      string `arg:"" help:"Quiz topic."`
	Complement string `help:"Extra context appended to the prompt."`
	Extra      string `help:"Additional instructions."`
	SourceFlags `embed:""`
}

func (c *QuestionsCmd) Run(cli *CLI) error {
	req := &quiz.QuestionRequest{
		Topic:       c.Topic,
		Complement:  c.Complement,
		ExtraPrompt: c.Extra,
		Sources:     c.sources(),
	}
	if err := req.Validate(); err != nil {
		return err
	}
	return withRuntime(cli, func(ctx context.Context, s *session) error {
		out, err := s.rt.Quiz().CreateQuestions(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(stdout, out)
	})
}

// ResponsesCmd generates responses.
type ResponsesCmd struct {
	Topic      string `arg:"" help:"Quiz topic."`
	Question   string `arg:"" help:"Question to answer."`
	Complement string `help:"Extra context appended to the prompt."`
	Extra      string `help:"Additional instructions."`
	Polarity   string `help:"Generate only good or only bad responses."`
	SourceFlags `embed:""`
}

func (c *ResponsesCmd) Run(cli *CLI) error {
	req := &quiz.ResponseRequest{
		Topic:       c.Topic,
		Question:    c.Question,
		Complement:  c.Complement,
		ExtraPrompt: c.Extra,
		Polarity:    quiz.Polarity(c.Polarity),
		Sources:     c.sources(),
	}
	if err := req.Validate(); err != nil {
		return err
	}
	return withRuntime(cli, func(ctx context.Context, s *session) error {
		out, err := s.rt.Quiz().CreateResponses(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(stdout, out)
	})
}

// KnowledgeCmd groups the knowledge subcommands.
type KnowledgeCmd struct {
	Save   KnowledgeSaveCmd   `cmd:"" help:"Save one document."`
	List   KnowledgeListCmd   `cmd:"" help:"List documents matching a regex."`
	Ingest KnowledgeIngestCmd `cmd:"" help:"Ingest a file or directory."`
	Watch  KnowledgeWatchCmd  `cmd:"" help:"Ingest a directory and re-ingest changed files."`
}

// KnowledgeSaveCmd saves a document.
type KnowledgeSaveCmd struct {
	Name     string            `arg:"" help:"Knowledge collection."`
	ID       string            `arg:"" name:"id" help:"Document id."`
	Document string            `arg:"" help:"Document text, or - to read stdin."`
	Meta     map[string]string `help:"Metadata entries." placeholder:"KEY=VALUE"`
}

func (c *KnowledgeSaveCmd) Run(cli *CLI) error {
	text := c.Document
	if text == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = string(data)
	}

	doc := knowledge.Document{ID: c.ID, Document: text, Metadata: knowledge.StringMetadata(c.Meta)}

	return withRuntime(cli, func(ctx context.Context, s *session) error {
		if err := s.rt.Knowledge().SaveDocument(ctx, c.Name, doc); err != nil {
			return err
		}
		return printJSON(stdout, map[string]string{"status": "ok"})
	})
}

// KnowledgeListCmd lists documents.
type KnowledgeListCmd struct {
	Name  string `arg:"" help:"Knowledge collection."`
	Regex string `arg:"" help:"Regular expression matched against document text."`
}

func (c *KnowledgeListCmd) Run(cli *CLI) error {
	return withRuntime(cli, func(ctx context.Context, s *session) error {
		docs, err := s.rt.Knowledge().QueryDocuments(ctx, c.Name, c.Regex)
		if err != nil {
			return err
		}
		if docs == nil {
			docs = []knowledge.Document{}
		}
		return printJSON(stdout, docs)
	})
}

// KnowledgeIngestCmd ingests files.
type KnowledgeIngestCmd struct {
	Name string `arg:"" help:"Knowledge collection."`
	Path string `arg:"" type:"existingpath" help:"File or directory."`
}

func (c *KnowledgeIngestCmd) Run(cli *CLI) error {
	info, err := os.Stat(c.Path)
	if err != nil {
		return err
	}
	return withRuntime(cli, func(ctx context.Context, s *session) error {
		ing := s.rt.Ingester()
		var n int
		if info.IsDir() {
			n, err = ing.IngestDir(ctx, c.Name, c.Path)
		} else {
			n, err = ing.IngestFile(ctx, c.Name, c.Path)
		}
		if err != nil {
			return err
		}
		return printJSON(stdout, map[string]any{"knowledge": c.Name, "chunks": n})
	})
}

// KnowledgeWatchCmd keeps a directory in sync until interrupted.
type KnowledgeWatchCmd struct {
	Name string `arg:"" help:"Knowledge collection."`
	Dir  string `arg:"" type:"existingdir" help:"Directory to watch."`
}

func (c *KnowledgeWatchCmd) Run(cli *CLI) error {
	return withRuntime(cli, func(ctx context.Context, s *session) error {
		ing := s.rt.Ingester()
		if _, err := ing.IngestDir(ctx, c.Name, c.Dir); err != nil {
			return err
		}

		w := ingest.NewWatcher(ing, c.Name, c.Dir)
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Close()

		<-ctx.Done()
		return nil
	})
}

// withRuntime runs fn with a runtime bound to an interruptible context.
func withRuntime(cli *CLI, fn func(ctx context.Context, s *session) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := cli.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	return fn(ctx, s)
}
