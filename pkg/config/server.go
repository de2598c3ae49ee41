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

import (
	"time"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address         string        `yaml:"address,omitempty"`
	ReadTimeout     time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout    time.Duration `yaml:"write_timeout,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = ":3000"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	// Generation with tools can take minutes.
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 15 * time.Second
	}
}

func (c *ServerConfig) Validate() error {
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fieldError("server", "timeouts must not be negative")
	}
	return nil
}

// AuthConfig enables JWT bearer authentication when JWKSURL is set.
type AuthConfig struct {
	JWKSURL         string        `yaml:"jwks_url,omitempty"`
	Issuer          string        `yaml:"issuer,omitempty"`
	Audience        string        `yaml:"audience,omitempty"`
	RefreshInterval time.Duration `yaml:"refresh_interval,omitempty"`
}

// IsEnabled reports whether authentication is configured.
func (c *AuthConfig) IsEnabled() bool {
	return c.JWKSURL != ""
}

func (c *AuthConfig) SetDefaults() {
	if c.IsEnabled() && c.RefreshInterval == 0 {
		c.RefreshInterval = 15 * time.Minute
	}
}

func (c *AuthConfig) Validate() error {
	if !c.IsEnabled() {
		return nil
	}
	if c.Issuer == "" {
		return fieldError("auth.issuer", "required when jwks_url is set")
	}
	if c.Audience == "" {
		return fieldError("auth.audience", "required when jwks_url is set")
	}
	return nil
}

// CacheConfig configures request memoization of the generation endpoints.
type CacheConfig struct {
	Enabled *bool         `yaml:"enabled,omitempty"`
	Size    int           `yaml:"size,omitempty"`
	TTL     time.Duration `yaml:"ttl,omitempty"`
}

// IsEnabled reports whether caching is on (default: true).
func (c *CacheConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

func (c *CacheConfig) SetDefaults() {
	if c.Size == 0 {
		c.Size = 256
	}
	if c.TTL == 0 {
		c.TTL = 30 * time.Second
	}
}

func (c *CacheConfig) Validate() error {
	if c.Size < 0 {
		return fieldError("cache.size", "must not be negative")
	}
	return nil
}

// ObservabilityConfig configures tracing and metrics.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled,omitempty"`
	Exporter     string  `yaml:"exporter,omitempty"` // otlp or stdout
	Endpoint     string  `yaml:"endpoint,omitempty"`
	Insecure     bool    `yaml:"insecure,omitempty"`
	SamplingRate float64 `yaml:"sampling_rate,omitempty"`
	ServiceName  string  `yaml:"service_name,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

func (c *ObservabilityConfig) SetDefaults() {
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "otlp"
	}
	if c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = "localhost:4317"
	}
	if c.Tracing.SamplingRate == 0 {
		c.Tracing.SamplingRate = 1.0
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "quiz-backend"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

func (c *ObservabilityConfig) Validate() error {
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fieldError("observability.tracing.sampling_rate", "must be between 0 and 1")
	}
	switch c.Tracing.Exporter {
	case "otlp", "stdout":
	default:
		return fieldError("observability.tracing.exporter", "unknown exporter %q (valid: otlp, stdout)", c.Tracing.Exporter)
	}
	return nil
}

// IngestConfig configures file ingestion. When Dir is set, serve loads it
// into the Knowledge collection at startup and, with Watch, keeps it in sync.
type IngestConfig struct {
	Dir          string `yaml:"dir,omitempty"`
	Knowledge    string `yaml:"knowledge,omitempty"`
	Watch        bool   `yaml:"watch,omitempty"`
	ChunkSize    int    `yaml:"chunk_size,omitempty"`
	ChunkOverlap int    `yaml:"chunk_overlap,omitempty"`
}

func (c *IngestConfig) SetDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = 1500
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = 200
	}
	if c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 5
	}
}

func (c *IngestConfig) Validate() error {
	if c.Dir != "" && c.Knowledge == "" {
		return fieldError("ingest.knowledge", "is required when ingest.dir is set")
	}
	if c.ChunkSize < 0 || c.ChunkOverlap < 0 {
		return fieldError("ingest.chunk_size", "must not be negative")
	}
	return nil
}
