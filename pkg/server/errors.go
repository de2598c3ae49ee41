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
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vymalo/quiz-backend/pkg/config"
	"github.com/vymalo/quiz-backend/pkg/knowledge"
	"github.com/vymalo/quiz-backend/pkg/model"
	"github.com/vymalo/quiz-backend/pkg/pipeline"
	"github.com/vymalo/quiz-backend/pkg/quiz"
)

// badRequest marks request decoding and validation failures.
type badRequest struct {
	err error
}

func (e *badRequest) Error() string { return e.err.Error() }
func (e *badRequest) Unwrap() error { return e.err }

// statusFor maps an operation error to its HTTP status.
func statusFor(err error) int {
	var br *badRequest
	var ve *quiz.ValidationError
	switch {
	case errors.As(err, &br), errors.As(err, &ve), errors.Is(err, knowledge.ErrInvalidPattern):
		return http.StatusBadRequest
	case config.IsConfigError(err):
		return http.StatusInternalServerError
	case pipeline.IsNormalizationExhausted(err), model.IsProviderCallError(err):
		return http.StatusBadGateway
	case knowledge.IsStoreError(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		slog.Debug("Request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
