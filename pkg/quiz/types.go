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

package quiz

import (
	"fmt"
	"strings"

	"github.com/vymalo/quiz-backend/pkg/tool/toolset"
)

// Polarity selects correct or intentionally wrong responses.
type Polarity string

const (
	PolarityGood Polarity = "good"
	PolarityBad  Polarity = "bad"
)

// ValidationError reports an invalid request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Sources are the optional retrieval parameters shared by both operations.
type Sources struct {
	KnowledgeName string `json:"knowledge_name_slug,omitempty"`
	LocalDBName   string `json:"local_db_name,omitempty"`
	WebEnabled    bool   `json:"web_enabled,omitempty"`
}

func (s Sources) params() toolset.Params {
	return toolset.Params{
		KnowledgeName: s.KnowledgeName,
		LocalDBName:   s.LocalDBName,
		WebEnabled:    s.WebEnabled,
	}
}

// QuestionRequest asks for questions about a topic.
type QuestionRequest struct {
	Topic       string `json:"topic"`
	Complement  string `json:"complement,omitempty"`
	ExtraPrompt string `json:"extraPrompt,omitempty"`
	Sources
}

// Validate checks required fields.
func (r *QuestionRequest) Validate() error {
	if strings.TrimSpace(r.Topic) == "" {
		return &ValidationError{Field: "topic", Reason: "is required"}
	}
	return nil
}

// ResponseRequest asks for candidate responses to a question. An empty
// Polarity generates both good and bad responses.
type ResponseRequest struct {
	Topic       string   `json:"topic"`
	Question    string   `json:"question"`
	Complement  string   `json:"complement,omitempty"`
	ExtraPrompt string   `json:"extraPrompt,omitempty"`
	Polarity    Polarity `json:"polarity,omitempty"`
	Sources
}

// Validate checks required fields and the polarity.
func (r *ResponseRequest) Validate() error {
	if strings.TrimSpace(r.Topic) == "" {
		return &ValidationError{Field: "topic", Reason: "is required"}
	}
	if strings.TrimSpace(r.Question) == "" {
		return &ValidationError{Field: "question", Reason: "is required"}
	}
	switch r.Polarity {
	case "", PolarityGood, PolarityBad:
	default:
		return &ValidationError{Field: "polarity", Reason: fmt.Sprintf("must be %q or %q, got %q", PolarityGood, PolarityBad, r.Polarity)}
	}
	return nil
}

func (r *ResponseRequest) polarities() []Polarity {
	if r.Polarity != "" {
		return []Polarity{r.Polarity}
	}
	return []Polarity{PolarityGood, PolarityBad}
}

// Question is one generated question.
type Question struct {
	Q string `json:"q"`
}

// Questions is the result of CreateQuestions.
type Questions struct {
	Questions []Question `json:"questions"`
	Count     int        `json:"count"`
}

// NewQuestions wraps a normalized list.
func NewQuestions(items []string) *Questions {
	qs := make([]Question, len(items))
	for i, q := range items {
		qs[i] = Question{Q: q}
	}
	return &Questions{Questions: qs, Count: len(qs)}
}

// Response is one generated response; G tells whether it is correct.
type Response struct {
	R string `json:"r"`
	G bool   `json:"g"`
}

// Responses is the result of CreateResponses. Good responses come first.
type Responses struct {
	Responses []Response `json:"responses"`
	Count     int        `json:"count"`
	CountGood int        `json:"countGood"`
	Question  string     `json:"question"`
}

// NewResponses assembles good then bad responses.
func NewResponses(question string, good, bad []string) *Responses {
	rs := make([]Response, 0, len(good)+len(bad))
	for _, r := range good {
		rs = append(rs, Response{R: r, G: true})
	}
	for _, r := range bad {
		rs = append(rs, Response{R: r, G: false})
	}
	return &Responses{
		Responses: rs,
		Count:     len(rs),
		CountGood: len(good),
		Question:  question,
	}
}
