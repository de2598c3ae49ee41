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

package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vymalo/quiz-backend/pkg/config"
	"github.com/vymalo/quiz-backend/pkg/httpclient"
)

// Health status values.
const (
	StatusUp   = "up"
	StatusDown = "down"
)

// Pinger is a dependency checked by readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ComponentStatus is the health of one dependency.
type ComponentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthReport is the body of the readiness and startup probes.
type HealthReport struct {
	Status  string                     `json:"status"`
	Details map[string]ComponentStatus `json:"details"`
}

// HealthChecker probes the model endpoints (GET <base_url>/models on every
// OpenAI-compatible role) and, optionally, the vector store.
type HealthChecker struct {
	endpoints map[string]config.ModelConfig
	store     Pinger
	client    *httpclient.Client
	timeout   time.Duration
}

// NewHealthChecker creates a checker for the given role endpoints. store may
// be nil.
func NewHealthChecker(endpoints map[string]config.ModelConfig, store Pinger, opts ...httpclient.Option) *HealthChecker {
	opts = append([]httpclient.Option{httpclient.WithMaxRetries(0)}, opts...)
	return &HealthChecker{
		endpoints: endpoints,
		store:     store,
		client:    httpclient.New(opts...),
		timeout:   5 * time.Second,
	}
}

// Check probes every dependency concurrently.
func (h *HealthChecker) Check(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var mu sync.Mutex
	report := HealthReport{Status: StatusUp, Details: map[string]ComponentStatus{}}
	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.Status = StatusDown
			report.Details[name] = ComponentStatus{Status: StatusDown, Error: err.Error()}
			return
		}
		report.Details[name] = ComponentStatus{Status: StatusUp}
	}

	var g errgroup.Group
	for _, role := range h.roles() {
		mc := h.endpoints[role]
		g.Go(func() error {
			record(role, h.probeModels(ctx, mc))
			return nil
		})
	}
	if h.store != nil {
		g.Go(func() error {
			record("store", h.store.Ping(ctx))
			return nil
		})
	}
	_ = g.Wait()

	return report
}

func (h *HealthChecker) roles() []string {
	roles := make([]string, 0, len(h.endpoints))
	for role, mc := range h.endpoints {
		if mc.Provider == config.LLMProviderOpenAI || mc.Provider == "" {
			roles = append(roles, role)
		}
	}
	sort.Strings(roles)
	return roles
}

func (h *HealthChecker) probeModels(ctx context.Context, mc config.ModelConfig) error {
	url := strings.TrimRight(mc.BaseURL, "/") + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if mc.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+mc.APIKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return nil
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthReport{Status: StatusUp, Details: map[string]ComponentStatus{}})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		s.handleLiveness(w, r)
		return
	}
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if report.Status != StatusUp {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}
