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

// Vector store backends.
const (
	StoreChroma   = "chroma"
	StoreChromem  = "chromem"
	StoreQdrant   = "qdrant"
	StorePinecone = "pinecone"
)

// StoreConfig configures the knowledge store backend.
//
// Example:
//
//	store:
//	  type: qdrant
//	  collection_prefix: quiz-
//	  qdrant:
//	    host: localhost
//	    port: 6334
type StoreConfig struct {
	// Type selects the backend. Default: chroma.
	Type string `yaml:"type,omitempty"`

	// CollectionPrefix is prepended to every knowledge set name.
	CollectionPrefix string `yaml:"collection_prefix,omitempty"`

	Chroma   ChromaConfig   `yaml:"chroma,omitempty"`
	Chromem  ChromemConfig  `yaml:"chromem,omitempty"`
	Qdrant   QdrantConfig   `yaml:"qdrant,omitempty"`
	Pinecone PineconeConfig `yaml:"pinecone,omitempty"`
}

// ChromaConfig targets a Chroma server over its REST API.
type ChromaConfig struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Tenant   string `yaml:"tenant,omitempty"`
	Database string `yaml:"database,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	UseTLS   bool   `yaml:"use_tls,omitempty"`
}

// ChromemConfig configures the embedded store. An empty Path keeps data in memory.
type ChromemConfig struct {
	Path     string `yaml:"path,omitempty"`
	Compress bool   `yaml:"compress,omitempty"`
}

// QdrantConfig targets a Qdrant server over gRPC.
type QdrantConfig struct {
	Host   string `yaml:"host,omitempty"`
	Port   int    `yaml:"port,omitempty"`
	APIKey string `yaml:"api_key,omitempty"`
	UseTLS bool   `yaml:"use_tls,omitempty"`
}

// PineconeConfig targets a Pinecone index; knowledge sets map to namespaces.
type PineconeConfig struct {
	APIKey    string `yaml:"api_key,omitempty"`
	IndexName string `yaml:"index_name,omitempty"`
	Host      string `yaml:"host,omitempty"`
}

func (c *StoreConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = StoreChroma
	}
	switch c.Type {
	case StoreChroma:
		if c.Chroma.Host == "" {
			c.Chroma.Host = "localhost"
		}
		if c.Chroma.Port == 0 {
			c.Chroma.Port = 8000
		}
		if c.Chroma.Tenant == "" {
			c.Chroma.Tenant = "default_tenant"
		}
		if c.Chroma.Database == "" {
			c.Chroma.Database = "default_database"
		}
	case StoreQdrant:
		if c.Qdrant.Host == "" {
			c.Qdrant.Host = "localhost"
		}
		if c.Qdrant.Port == 0 {
			c.Qdrant.Port = 6334
		}
	}
}

func (c *StoreConfig) Validate() error {
	switch c.Type {
	case StoreChroma, StoreChromem, StoreQdrant:
	case StorePinecone:
		if c.Pinecone.APIKey == "" {
			return fieldError("store.pinecone.api_key", "api key is required")
		}
		if c.Pinecone.IndexName == "" && c.Pinecone.Host == "" {
			return fieldError("store.pinecone", "index_name or host is required")
		}
	default:
		return fieldError("store.type", "unknown store %q (valid: chroma, chromem, qdrant, pinecone)", c.Type)
	}
	return nil
}
