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

package config

import "strings"

// LoggerConfig configures logging behavior.
//
// CLI flags (--log-level, --log-file, --log-format) take precedence over
// this section.
//
//	logger:
//	  level: info
//	  format: json
type LoggerConfig struct {
	// Level is one of debug, info, warn, error. Default: info.
	Level string `yaml:"level,omitempty"`

	// File is the log file path. Empty means stderr.
	File string `yaml:"file,omitempty"`

	// Format is simple, text or json. Default: simple.
	Format string `yaml:"format,omitempty"`
}

func (c *LoggerConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

func (c *LoggerConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fieldError("logger.level", "invalid log level %q (valid: debug, info, warn, error)", c.Level)
	}
	switch c.Format {
	case "simple", "text", "json":
	default:
		return fieldError("logger.format", "invalid format %q (valid: simple, text, json)", c.Format)
	}
	return nil
}
