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

// Command quizd serves and drives the quiz generation service.
//
// Usage:
//
//	quizd serve --config quiz.yaml
//	quizd questions "Go concurrency" --web
//	quizd knowledge ingest go-docs ./docs
//	quizd mcp --config quiz.yaml
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/vymalo/quiz-backend/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Version   VersionCmd   `cmd:"" help:"Show version information."`
	Serve     ServeCmd     `cmd:"" help:"Start the HTTP API."`
	Questions QuestionsCmd `cmd:"" help:"Generate questions about a topic."`
	Responses ResponsesCmd `cmd:"" help:"Generate candidate responses to a question."`
	Knowledge KnowledgeCmd `cmd:"" help:"Manage knowledge collections."`
	MCP       MCPCmd       `cmd:"" name:"mcp" help:"Serve the MCP tools over stdio."`
	Validate  ValidateCmd  `cmd:"" help:"Validate the configuration."`

	Config          string   `short:"c" help:"Config file path, or key/znode for remote sources. Empty reads the environment." env:"QUIZ_CONFIG"`
	ConfigType      string   `help:"Config source (file, consul, etcd, zookeeper)." default:"file" enum:"file,consul,etcd,zookeeper,zk"`
	ConfigEndpoints []string `help:"Endpoints of the remote config source." sep:","`
	ConfigWatch     bool     `help:"Watch the config source and log changes."`
	LogLevel        string   `help:"Log level (debug, info, warn, error)."`
	LogFile         string   `help:"Log file path (empty = stderr)."`
	LogFormat       string   `help:"Log format (simple, text, json)."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("quizd version %s\n", version())
	return nil
}

func version() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			return info.Main.Version
		}
	}
	return "dev"
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("quizd"),
		kong.Description("Quiz question and response generation service"),
		kong.UsageOnError(),
	)

	cleanup, err := initLogger(cli.LogLevel, cli.LogFile, cli.LogFormat, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
