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
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vymalo/quiz-backend/pkg/config"
	"github.com/vymalo/quiz-backend/pkg/ingest"
	"github.com/vymalo/quiz-backend/pkg/mcpserver"
)

// ServeCmd starts the HTTP API.
type ServeCmd struct {
	Addr string `help:"Listen address (overrides server.address)." placeholder:"HOST:PORT"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := cli.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if c.Addr != "" {
		s.cfg.Server.Address = c.Addr
	}

	if cli.ConfigWatch && s.loader != nil {
		go func() {
			if err := s.loader.Watch(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Config watch error", "error", err)
			}
		}()
	}

	if err := startIngestion(ctx, s, s.cfg.Ingest); err != nil {
		return err
	}

	srv := s.rt.HTTPServer()
	fmt.Fprintf(os.Stderr, "quizd listening on %s\n", s.cfg.Server.Address)
	return srv.Run(ctx)
}

// startIngestion loads ingest.dir in the background and keeps watching it
// when ingest.watch is set.
func startIngestion(ctx context.Context, s *session, cfg config.IngestConfig) error {
	if cfg.Dir == "" {
		return nil
	}
	ing := s.rt.Ingester()

	go func() {
		n, err := ing.IngestDir(ctx, cfg.Knowledge, cfg.Dir)
		if err != nil {
			slog.Warn("Initial ingestion failed", "dir", cfg.Dir, "error", err)
			return
		}
		slog.Info("Initial ingestion complete", "dir", cfg.Dir, "knowledge", cfg.Knowledge, "chunks", n)
	}()

	if !cfg.Watch {
		return nil
	}
	w := ingest.NewWatcher(ing, cfg.Knowledge, cfg.Dir)
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to watch %s: %w", cfg.Dir, err)
	}
	return nil
}

// MCPCmd serves the MCP tools on stdin/stdout.
type MCPCmd struct{}

func (c *MCPCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := cli.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	return mcpserver.Serve(ctx, s.rt.MCPServer(version()), os.Stdin, os.Stdout)
}

// ValidateCmd checks the configuration without contacting any backend.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, loader, err := cli.loadConfig(context.Background())
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}
	fmt.Fprintf(stdout, "Configuration is valid (store: %s, question model: %s)\n", cfg.Store.Type, cfg.Models.Question.Model)
	return nil
}
