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

	"github.com/vymalo/quiz-backend/pkg/config"
	"github.com/vymalo/quiz-backend/pkg/config/provider"
	"github.com/vymalo/quiz-backend/pkg/runtime"
)

// loadConfig reads the configured source, or the environment when no
// --config is given. The returned loader is nil in environment mode.
func (cli *CLI) loadConfig(ctx context.Context) (*config.Config, *config.Loader, error) {
	if cli.Config == "" {
		cfg := config.FromEnv()
		if err := cfg.Validate(); err != nil {
			return nil, nil, fmt.Errorf("invalid environment configuration: %w", err)
		}
		slog.Debug("Loaded configuration from environment")
		return cfg, nil, nil
	}

	typ, err := provider.ParseType(cli.ConfigType)
	if err != nil {
		return nil, nil, err
	}
	cfg, loader, err := config.LoadConfig(ctx, provider.ProviderConfig{
		Type:      typ,
		Path:      cli.Config,
		Endpoints: cli.ConfigEndpoints,
	})
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Loaded configuration", "source", typ, "path", cli.Config)
	return cfg, loader, nil
}

// session is a loaded configuration plus the runtime built from it.
type session struct {
	cfg     *config.Config
	loader  *config.Loader
	rt      *runtime.Runtime
	cleanup func()
}

func (s *session) Close() {
	if s.rt != nil {
		_ = s.rt.Close(context.Background())
	}
	if s.loader != nil {
		_ = s.loader.Close()
	}
	s.cleanup()
}

// open loads the configuration, applies its logger section unless flags or
// environment override it, and builds the runtime.
func (cli *CLI) open(ctx context.Context) (*session, error) {
	cfg, loader, err := cli.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, loader: loader, cleanup: func() {}}

	if s.cleanup, err = initLogger(cli.LogLevel, cli.LogFile, cli.LogFormat, &cfg.Logger); err != nil {
		s.cleanup = func() {}
		s.Close()
		return nil, err
	}

	if s.rt, err = runtime.New(ctx, cfg); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create runtime: %w", err)
	}
	return s, nil
}
