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

// Package cache memoizes generation results for a bounded time window.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/vymalo/quiz-backend/pkg/config"
)

// Cache is an expiring LRU of encoded responses. A nil *Cache never hits.
type Cache struct {
	lru *expirable.LRU[string, []byte]
}

// New creates a cache from cfg, or returns nil when caching is disabled.
func New(cfg config.CacheConfig) *Cache {
	if !cfg.IsEnabled() || cfg.Size == 0 {
		return nil
	}
	return &Cache{lru: expirable.NewLRU[string, []byte](cfg.Size, nil, cfg.TTL)}
}

// Key derives the idempotency key of a request: the SHA-256 of the
// operation name and the JSON encoding of the request.
func Key(op string, req any) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(op))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Get returns the cached value of key.
func (c *Cache) Get(key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(key)
}

// Add stores value under key.
func (c *Cache) Add(key string, value []byte) {
	if c == nil {
		return
	}
	c.lru.Add(key, value)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	if c != nil {
		c.lru.Purge()
	}
}
