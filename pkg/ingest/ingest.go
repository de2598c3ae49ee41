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

package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/vymalo/quiz-backend/pkg/config"
	"github.com/vymalo/quiz-backend/pkg/knowledge"
)

// Store receives the chunks of ingested files.
type Store interface {
	SaveDocuments(ctx context.Context, name string, docs []knowledge.Document) error
}

// Ingester parses, chunks and saves files into a knowledge collection.
type Ingester struct {
	store   Store
	size    int
	overlap int
	logger  *slog.Logger
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Ingester) {
		i.logger = l
	}
}

// New creates an ingester. cfg is expected to carry defaults.
func New(store Store, cfg config.IngestConfig, opts ...Option) *Ingester {
	i := &Ingester{
		store:   store,
		size:    cfg.ChunkSize,
		overlap: cfg.ChunkOverlap,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// IngestFile saves one file into the named collection and returns the
// number of chunks written. Ids are relative to the file's directory.
func (i *Ingester) IngestFile(ctx context.Context, name, path string) (int, error) {
	return i.ingest(ctx, name, filepath.Dir(path), path)
}

// IngestDir walks root and ingests every supported file. Hidden files and
// directories are skipped. A file that fails to parse is logged and skipped.
func (i *Ingester) IngestDir(ctx context.Context, name, root string) (int, error) {
	total := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !Supported(path) {
			return nil
		}

		n, err := i.ingest(ctx, name, root, path)
		if err != nil {
			if knowledge.IsStoreError(err) {
				return err
			}
			i.logger.Warn("Skipping file", "path", path, "error", err)
			return nil
		}
		total += n
		return nil
	})
	if err != nil {
		return total, fmt.Errorf("failed to ingest %s: %w", root, err)
	}
	return total, nil
}

func (i *Ingester) ingest(ctx context.Context, name, root, path string) (int, error) {
	content, err := ParseFile(path)
	if err != nil {
		return 0, err
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = filepath.ToSlash(rel)

	chunks := Chunk(content, i.size, i.overlap)
	if len(chunks) == 0 {
		return 0, errors.New(path + ": no text content")
	}

	docs := make([]knowledge.Document, len(chunks))
	for n, c := range chunks {
		docs[n] = knowledge.Document{
			ID:       fmt.Sprintf("%s#%d", rel, n),
			Document: c,
			Metadata: map[string]any{"source": rel, "chunk": n},
		}
	}
	if err := i.store.SaveDocuments(ctx, name, docs); err != nil {
		return 0, err
	}

	i.logger.Info("Ingested file", "knowledge", name, "source", rel, "chunks", len(docs))
	return len(docs), nil
}
