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

package observability

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics records service metrics. The methods are safe on a nil receiver.
type Metrics struct {
	provider *sdkmetric.MeterProvider

	httpRequests     metric.Int64Counter
	httpDuration     metric.Float64Histogram
	llmCalls         metric.Int64Counter
	normalizeRetries metric.Int64Counter
	toolCalls        metric.Int64Counter
}

// NewMetrics creates the instruments and exports them to reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(ServiceName)
	m := &Metrics{provider: provider}

	if m.httpRequests, err = meter.Int64Counter(
		"quiz_http_requests",
		metric.WithDescription("Total HTTP requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	if m.httpDuration, err = meter.Float64Histogram(
		"quiz_http_request_duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	if m.llmCalls, err = meter.Int64Counter(
		"quiz_llm_calls",
		metric.WithDescription("Model calls by role, phase and status"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm calls counter: %w", err)
	}

	if m.normalizeRetries, err = meter.Int64Counter(
		"quiz_normalize_retries",
		metric.WithDescription("Repeated normalization attempts"),
	); err != nil {
		return nil, fmt.Errorf("failed to create normalize retries counter: %w", err)
	}

	if m.toolCalls, err = meter.Int64Counter(
		"quiz_tool_calls",
		metric.WithDescription("Tool executions by tool and status"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool calls counter: %w", err)
	}

	return m, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordHTTPRequest records one served request under its route pattern.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("code", strconv.Itoa(code)),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordLLMCall records one model call.
func (m *Metrics) RecordLLMCall(ctx context.Context, role, phase string, err error) {
	if m == nil {
		return
	}
	m.llmCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("role", role),
		attribute.String("phase", phase),
		attribute.String("status", status(err)),
	))
}

// RecordNormalizeRetry records a repeated normalization attempt.
func (m *Metrics) RecordNormalizeRetry(ctx context.Context, attempt int) {
	if m == nil {
		return
	}
	m.normalizeRetries.Add(ctx, 1)
}

// RecordToolCall records one tool execution.
func (m *Metrics) RecordToolCall(ctx context.Context, name string, err error) {
	if m == nil {
		return
	}
	m.toolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", name),
		attribute.String("status", status(err)),
	))
}
