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

// Package ingest loads local documents into knowledge collections.
//
// Files are converted to plain text by extension, split into overlapping
// chunks on paragraph boundaries and saved with ids of the form
// "<relative path>#<chunk>".
package ingest

import (
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ErrUnsupported is returned for files whose extension has no parser.
var ErrUnsupported = errors.New("unsupported file type")

var plainExtensions = map[string]bool{
	".txt":  true,
	".text": true,
	".csv":  true,
	".json": true,
	".yaml": true,
	".yml":  true,
	".html": true,
	".htm":  true,
	".rst":  true,
}

// Supported reports whether ParseFile can read path.
func Supported(path string) bool {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf", ".docx", ".xlsx", ".md", ".markdown":
		return true
	default:
		return plainExtensions[ext]
	}
}

// ParseFile extracts the plain text of a document.
func ParseFile(path string) (string, error) {
	var (
		content string
		err     error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case ext == ".pdf":
		content, err = parsePDF(path)
	case ext == ".docx":
		content, err = parseDocx(path)
	case ext == ".xlsx":
		content, err = parseXLSX(path)
	case ext == ".md" || ext == ".markdown":
		var src []byte
		if src, err = os.ReadFile(path); err == nil {
			content = markdownText(src)
		}
	case plainExtensions[ext]:
		var src []byte
		if src, err = os.ReadFile(path); err == nil {
			content = string(src)
		}
	default:
		return "", fmt.Errorf("%s: %w", path, ErrUnsupported)
	}
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return strings.TrimSpace(content), nil
}

func parsePDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if strings.TrimSpace(content) != "" {
			pages = append(pages, content)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

func parseDocx(path string) (string, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", err
	}
	defer doc.Close()
	return docxText(doc.Editable().GetContent()), nil
}

var (
	docxParagraph = regexp.MustCompile(`</w:p>|<w:br/>`)
	xmlTag        = regexp.MustCompile(`<[^>]*>`)
)

// docxText reduces WordprocessingML to text, one paragraph per line.
func docxText(xml string) string {
	xml = docxParagraph.ReplaceAllString(xml, "\n")
	return html.UnescapeString(xmlTag.ReplaceAllString(xml, ""))
}

func parseXLSX(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sheets []string
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return "", fmt.Errorf("sheet %q: %w", name, err)
		}
		var b strings.Builder
		b.WriteString("# " + name + "\n")
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t")
			if line == "" {
				continue
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
		sheets = append(sheets, b.String())
	}
	return strings.Join(sheets, "\n"), nil
}

// markdownText walks the goldmark AST and keeps the readable text. Top-level
// blocks are separated by a blank line.
func markdownText(src []byte) string {
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var b strings.Builder
	newline := func(blank bool) {
		s := b.String()
		if len(s) == 0 {
			return
		}
		if s[len(s)-1] != '\n' {
			b.WriteByte('\n')
		}
		if blank && !strings.HasSuffix(s, "\n\n") {
			b.WriteByte('\n')
		}
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				newline(n.Parent() != nil && n.Parent().Kind() == ast.KindDocument)
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return b.String()
}
