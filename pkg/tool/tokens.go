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

package tool

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts and truncates text in model tokens.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	// Cache encodings to avoid repeated initialization
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// NewTokenCounter creates a counter for a model, falling back to cl100k_base
// for models tiktoken does not know.
func NewTokenCounter(model string) (*TokenCounter, error) {
	cacheMu.RLock()
	cached, exists := encodingCache[model]
	cacheMu.RUnlock()

	if exists {
		return &TokenCounter{encoding: cached, model: model}, nil
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("failed to get encoding: %w", err)
		}
	}

	cacheMu.Lock()
	encodingCache[model] = encoding
	cacheMu.Unlock()

	return &TokenCounter{encoding: encoding, model: model}, nil
}

// Count returns the token count of text. Without an encoding it estimates
// four characters per token.
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.encoding == nil {
		return len(text) / 4
	}
	return len(tc.encoding.Encode(text, nil, nil))
}

// Truncate cuts text to at most maxTokens tokens.
func (tc *TokenCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	if tc == nil || tc.encoding == nil {
		limit := maxTokens * 4
		if len(text) <= limit {
			return text
		}
		// Back off to a rune boundary.
		for limit > 0 && !isRuneStart(text[limit]) {
			limit--
		}
		return text[:limit]
	}

	tokens := tc.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return tc.encoding.Decode(tokens[:maxTokens])
}

// Model returns the model name this counter is configured for.
func (tc *TokenCounter) Model() string {
	if tc == nil {
		return ""
	}
	return tc.model
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

var _ Truncator = (*TokenCounter)(nil)
