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

// Package config holds the typed service configuration.
//
// A configuration is loaded once at boot (see Loader), defaulted with
// SetDefaults and checked with Validate. Every section owns its own
// SetDefaults/Validate pair.
//
// Example:
//
//	models:
//	  question:
//	    base_url: https://api.openai.com/v1
//	    api_key: ${OPENAI_QUESTION_API_KEY}
//	    model: gpt-4o-mini
//	  summarizer:
//	    model: gpt-4o-mini
//	store:
//	  type: chroma
//	  collection_prefix: quiz-
//	  chroma:
//	    host: localhost
//	    port: 8000
//	tools:
//	  questions: true
package config

import (
	"errors"
	"fmt"
)

// Config is the root configuration document.
type Config struct {
	Models        ModelsConfig        `yaml:"models"`
	Store         StoreConfig         `yaml:"store"`
	Tools         ToolsConfig         `yaml:"tools"`
	WebSearch     WebSearchConfig     `yaml:"web_search"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Cache         CacheConfig         `yaml:"cache"`
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logger        LoggerConfig        `yaml:"logger"`
	Ingest        IngestConfig        `yaml:"ingest"`
}

// ConfigError reports a configuration problem detected at boot.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// IsConfigError reports whether err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func fieldError(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// SetDefaults applies default values to every section.
func (c *Config) SetDefaults() {
	c.Models.SetDefaults()
	c.Store.SetDefaults()
	c.Tools.SetDefaults()
	c.WebSearch.SetDefaults()
	c.Pipeline.SetDefaults()
	c.Cache.SetDefaults()
	c.Server.SetDefaults()
	c.Auth.SetDefaults()
	c.Observability.SetDefaults()
	c.Logger.SetDefaults()
	c.Ingest.SetDefaults()
}

// Validate checks every section and returns the first *ConfigError found.
func (c *Config) Validate() error {
	validators := []func() error{
		c.Models.Validate,
		c.Store.Validate,
		c.Tools.Validate,
		c.WebSearch.Validate,
		c.Pipeline.Validate,
		c.Cache.Validate,
		c.Server.Validate,
		c.Auth.Validate,
		c.Observability.Validate,
		c.Logger.Validate,
		c.Ingest.Validate,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}
