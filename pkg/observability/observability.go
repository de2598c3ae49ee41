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

// Package observability wires OpenTelemetry tracing and Prometheus metrics.
//
// Spans are created through the global tracer provider, which New replaces
// when tracing is enabled. Metrics are recorded through *Metrics; a nil
// *Metrics records nothing.
package observability

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/vymalo/quiz-backend/pkg/config"
)

// ServiceName is the default instrumentation scope.
const ServiceName = "quiz-backend"

// Manager owns the tracer provider and the metrics registry.
type Manager struct {
	tracerProvider *sdktrace.TracerProvider
	registry       *prometheus.Registry
	metrics        *Metrics
	metricsPath    string
}

// New initializes tracing and metrics as configured. Disabled parts are left
// as no-ops.
func New(ctx context.Context, cfg config.ObservabilityConfig) (*Manager, error) {
	m := &Manager{metricsPath: cfg.Metrics.Path}

	if cfg.Tracing.Enabled {
		tp, err := newTracerProvider(ctx, cfg.Tracing)
		if err != nil {
			return nil, err
		}
		m.tracerProvider = tp
	}

	if cfg.Metrics.Enabled {
		m.registry = prometheus.NewRegistry()
		metrics, err := NewMetrics(m.registry)
		if err != nil {
			_ = m.Shutdown(ctx)
			return nil, err
		}
		m.metrics = metrics
	}

	return m, nil
}

// Metrics returns the recorder, nil when metrics are disabled.
func (m *Manager) Metrics() *Metrics {
	if m == nil {
		return nil
	}
	return m.metrics
}

// Handler serves the Prometheus exposition format, or nil when metrics are
// disabled.
func (m *Manager) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// MetricsPath is the route Handler is mounted on.
func (m *Manager) MetricsPath() string {
	if m == nil || m.metricsPath == "" {
		return "/metrics"
	}
	return m.metricsPath
}

// Shutdown flushes pending spans and metrics.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	var errs []error
	if m.tracerProvider != nil {
		errs = append(errs, m.tracerProvider.Shutdown(ctx))
	}
	if m.metrics != nil {
		errs = append(errs, m.metrics.provider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
