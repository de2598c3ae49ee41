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

package vector

import (
	"fmt"

	"github.com/philippgille/chromem-go"

	"github.com/vymalo/quiz-backend/pkg/config"
)

// NewProvider creates the backend selected by cfg.Type. embed is bound to
// embedded collections and may be nil for remote backends.
func NewProvider(cfg config.StoreConfig, embed chromem.EmbeddingFunc) (Provider, error) {
	switch cfg.Type {
	case config.StoreChroma, "":
		return NewChromaProvider(cfg.Chroma)
	case config.StoreChromem:
		return NewChromemProvider(cfg.Chromem, embed)
	case config.StoreQdrant:
		return NewQdrantProvider(cfg.Qdrant)
	case config.StorePinecone:
		return NewPineconeProvider(cfg.Pinecone)
	default:
		return nil, fmt.Errorf("unknown store type: %q", cfg.Type)
	}
}
