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
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// Chunk splits text into pieces of at most size bytes. Paragraphs are kept
// whole when they fit; each chunk after the first starts with up to overlap
// bytes from the end of the previous one.
func Chunk(content string, size, overlap int) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if size <= 0 || len(content) <= size {
		return []string{content}
	}
	if overlap >= size {
		overlap = size / 5
	}

	var pieces []string
	for _, p := range paragraphBreak.Split(content, -1) {
		if p = strings.TrimSpace(p); p != "" {
			pieces = append(pieces, splitLong(p, size)...)
		}
	}

	var (
		chunks []string
		cur    strings.Builder
	)
	for _, p := range pieces {
		if cur.Len() > 0 && cur.Len()+2+len(p) > size {
			prev := cur.String()
			chunks = append(chunks, prev)
			cur.Reset()
			if tail := overlapTail(prev, overlap); tail != "" && len(tail)+2+len(p) <= size {
				cur.WriteString(tail)
			}
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// splitLong cuts a paragraph longer than size, preferring whitespace.
func splitLong(p string, size int) []string {
	var out []string
	for len(p) > size {
		cut := size
		for cut > 0 && !utf8.RuneStart(p[cut]) {
			cut--
		}
		if i := strings.LastIndexFunc(p[:cut], unicode.IsSpace); i > size/2 {
			cut = i
		}
		if cut == 0 {
			cut = size
		}
		out = append(out, strings.TrimSpace(p[:cut]))
		p = strings.TrimSpace(p[cut:])
	}
	if p != "" {
		out = append(out, p)
	}
	return out
}

// overlapTail returns the last n bytes of s, starting on a word boundary.
func overlapTail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	tail := s[len(s)-n:]
	if i := strings.IndexFunc(tail, unicode.IsSpace); i >= 0 {
		tail = tail[i:]
	} else {
		for len(tail) > 0 && !utf8.RuneStart(tail[0]) {
			tail = tail[1:]
		}
	}
	return strings.TrimSpace(tail)
}
