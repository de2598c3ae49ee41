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

import "time"

// ToolsConfig holds the per-endpoint tooling flags. With a flag off no tool
// is ever offered on that endpoint, whatever the request asks for.
type ToolsConfig struct {
	Questions bool `yaml:"questions,omitempty"`
	Responses bool `yaml:"responses,omitempty"`

	// MaxResultTokens truncates tool results returned to the model. Default: 2000.
	MaxResultTokens int `yaml:"max_result_tokens,omitempty"`

	// LocalSearchLimit is the number of hits returned by search_local_db. Default: 5.
	LocalSearchLimit int `yaml:"local_search_limit,omitempty"`
}

func (c *ToolsConfig) SetDefaults() {
	if c.MaxResultTokens == 0 {
		c.MaxResultTokens = 2000
	}
	if c.LocalSearchLimit == 0 {
		c.LocalSearchLimit = 5
	}
}

func (c *ToolsConfig) Validate() error {
	if c.MaxResultTokens < 0 {
		return fieldError("tools.max_result_tokens", "must not be negative")
	}
	if c.LocalSearchLimit < 0 {
		return fieldError("tools.local_search_limit", "must not be negative")
	}
	return nil
}

// WebSearchConfig configures the web search endpoint (Tavily-compatible API).
type WebSearchConfig struct {
	BaseURL    string        `yaml:"base_url,omitempty"`
	APIKey     string        `yaml:"api_key,omitempty"`
	MaxResults int           `yaml:"max_results,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
}

// Enabled reports whether a search backend is configured.
func (c *WebSearchConfig) Enabled() bool {
	return c.APIKey != ""
}

func (c *WebSearchConfig) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.tavily.com"
	}
	if c.MaxResults == 0 {
		c.MaxResults = 5
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

func (c *WebSearchConfig) Validate() error {
	if c.MaxResults < 1 {
		return fieldError("web_search.max_results", "must be at least 1")
	}
	return nil
}

// PipelineConfig tunes the generation pipeline.
type PipelineConfig struct {
	// NormalizeAttempts bounds the structured normalization call. Default: 3.
	NormalizeAttempts int `yaml:"normalize_attempts,omitempty"`

	// QuestionTemperature is used for question generation. Default: 0.7.
	QuestionTemperature *float64 `yaml:"question_temperature,omitempty"`

	// GoodResponseTemperature is used for correct responses. Default: 0.7.
	GoodResponseTemperature *float64 `yaml:"good_response_temperature,omitempty"`

	// BadResponseTemperature is used for wrong responses. Default: 0.
	BadResponseTemperature *float64 `yaml:"bad_response_temperature,omitempty"`

	// MaxToolRounds caps model/tool round trips in one generation. Default: 8.
	MaxToolRounds int `yaml:"max_tool_rounds,omitempty"`
}

func (c *PipelineConfig) SetDefaults() {
	if c.NormalizeAttempts == 0 {
		c.NormalizeAttempts = 3
	}
	if c.QuestionTemperature == nil {
		c.QuestionTemperature = Float64Ptr(0.7)
	}
	if c.GoodResponseTemperature == nil {
		c.GoodResponseTemperature = Float64Ptr(0.7)
	}
	if c.BadResponseTemperature == nil {
		c.BadResponseTemperature = Float64Ptr(0)
	}
	if c.MaxToolRounds == 0 {
		c.MaxToolRounds = 8
	}
}

func (c *PipelineConfig) Validate() error {
	if c.NormalizeAttempts < 1 {
		return fieldError("pipeline.normalize_attempts", "must be at least 1")
	}
	if c.MaxToolRounds < 1 {
		return fieldError("pipeline.max_tool_rounds", "must be at least 1")
	}
	for name, t := range map[string]*float64{
		"question_temperature":      c.QuestionTemperature,
		"good_response_temperature": c.GoodResponseTemperature,
		"bad_response_temperature":  c.BadResponseTemperature,
	} {
		if t != nil && (*t < 0 || *t > 2) {
			return fieldError("pipeline."+name, "must be between 0 and 2")
		}
	}
	return nil
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 { return &v }

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool { return &v }
