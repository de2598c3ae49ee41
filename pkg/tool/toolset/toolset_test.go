package toolset

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vymalo/quiz-backend/pkg/knowledge"
	"github.com/vymalo/quiz-backend/pkg/tool"
	"github.com/vymalo/quiz-backend/pkg/websearch"
)

type memStore struct {
	docs map[string][]knowledge.Document
	err  error
}

func newMemStore() *memStore {
	return &memStore{docs: map[string][]knowledge.Document{}}
}

func (m *memStore) QueryDocuments(_ context.Context, name, pattern string) ([]knowledge.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	re := regexp.MustCompile(pattern)
	var out []knowledge.Document
	for _, d := range m.docs[name] {
		if re.MatchString(d.Document) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memStore) SaveDocument(_ context.Context, name string, doc knowledge.Document) error {
	if m.err != nil {
		return m.err
	}
	m.docs[name] = append(m.docs[name], doc)
	return nil
}

func (m *memStore) SearchSimilar(_ context.Context, name, text string, limit int) ([]knowledge.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []knowledge.Document
	for _, d := range m.docs[name] {
		for _, w := range strings.Fields(strings.ToLower(text)) {
			if strings.Contains(strings.ToLower(d.Document), w) {
				out = append(out, d)
				break
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeWeb struct {
	results []websearch.Result
	err     error
}

func (f fakeWeb) Search(context.Context, string) ([]websearch.Result, error) {
	return f.results, f.err
}

func TestTools_EndpointFlagOffOffersNothing(t *testing.T) {
	p := New(Config{Store: newMemStore(), Web: fakeWeb{}})

	set := p.Tools(Params{KnowledgeName: "algo", LocalDBName: "algo101", WebEnabled: true}, false)

	assert.Nil(t, set)
	assert.Equal(t, 0, set.Len())
}

func TestTools_Gating(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		web    websearch.Searcher
		want   []string
	}{
		{"no params", Params{}, fakeWeb{}, nil},
		{"knowledge only", Params{KnowledgeName: "algo"}, fakeWeb{}, []string{SearchKnowledge}},
		{"local db without web", Params{LocalDBName: "algo101"}, nil, []string{SaveToLocalDB, SearchLocalDB}},
		{"web requested", Params{WebEnabled: true}, fakeWeb{}, []string{SearchWeb}},
		{"web requested but not configured", Params{WebEnabled: true}, nil, nil},
		{
			"everything",
			Params{KnowledgeName: "algo", LocalDBName: "algo101", WebEnabled: true},
			fakeWeb{},
			[]string{SaveToLocalDB, SearchKnowledge, SearchLocalDB, SearchWeb},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(Config{Store: newMemStore(), Web: tt.web})
			set := p.Tools(tt.params, true)
			assert.Equal(t, tt.want, set.Names())
		})
	}
}

func TestSearchKnowledge_StoreFailureYieldsNoResults(t *testing.T) {
	store := newMemStore()
	store.err = &knowledge.StoreQueryError{Collection: "quiz-algo", Err: errors.New("connection refused")}

	var observed error
	p := New(Config{Store: store, Observer: func(_ context.Context, _ string, err error) { observed = err }})
	set := p.Tools(Params{KnowledgeName: "algo"}, true)

	out := set.Execute(context.Background(), tool.ToolCall{ID: "1", Name: SearchKnowledge, Args: map[string]any{"pattern": "stack"}})

	assert.Equal(t, tool.NoResults, out)
	assert.True(t, knowledge.IsStoreError(observed))
}

func TestSearchKnowledge_ReturnsMatches(t *testing.T) {
	store := newMemStore()
	store.docs["algo"] = []knowledge.Document{
		{ID: "a", Document: "A stack is LIFO."},
		{ID: "b", Document: "A queue is FIFO."},
	}
	set := New(Config{Store: store}).Tools(Params{KnowledgeName: "algo"}, true)

	out := set.Execute(context.Background(), tool.ToolCall{Name: SearchKnowledge, Args: map[string]any{"pattern": "LIFO"}})
	assert.JSONEq(t, `[{"id":"a","document":"A stack is LIFO."}]`, out)

	out = set.Execute(context.Background(), tool.ToolCall{Name: SearchKnowledge, Args: map[string]any{"pattern": "heap"}})
	assert.Equal(t, tool.NoResults, out)
}

func TestLocalDB_SaveThenSearch(t *testing.T) {
	store := newMemStore()
	p := New(Config{Store: store, NewID: func() string { return "fixed-id" }})
	set := p.Tools(Params{LocalDBName: "algo101"}, true)

	saved := set.Execute(context.Background(), tool.ToolCall{
		Name: SaveToLocalDB,
		Args: map[string]any{"text": "A stack pops the most recently pushed element."},
	})
	assert.Equal(t, "saved with id fixed-id", saved)

	found := set.Execute(context.Background(), tool.ToolCall{Name: SearchLocalDB, Args: map[string]any{"query": "stack"}})
	assert.Contains(t, found, "most recently pushed")
	assert.Contains(t, found, "fixed-id")
}

func TestSaveToLocalDB_EmptyTextIsDegraded(t *testing.T) {
	store := newMemStore()
	set := New(Config{Store: store}).Tools(Params{LocalDBName: "algo101"}, true)

	out := set.Execute(context.Background(), tool.ToolCall{Name: SaveToLocalDB, Args: map[string]any{"text": "  "}})

	assert.Equal(t, tool.NoResults, out)
	assert.Empty(t, store.docs["algo101"])
}

func TestSearchWeb(t *testing.T) {
	web := fakeWeb{results: []websearch.Result{{Title: "Stack", URL: "https://example.org", Content: "LIFO"}}}
	set := New(Config{Web: web}).Tools(Params{WebEnabled: true}, true)

	out := set.Execute(context.Background(), tool.ToolCall{Name: SearchWeb, Args: map[string]any{"query": "stack"}})
	assert.Equal(t, "[1] Stack\nhttps://example.org\nLIFO", out)

	failing := New(Config{Web: fakeWeb{err: errors.New("quota exceeded")}}).Tools(Params{WebEnabled: true}, true)
	out = failing.Execute(context.Background(), tool.ToolCall{Name: SearchWeb, Args: map[string]any{"query": "stack"}})
	assert.Equal(t, tool.NoResults, out)
}

func TestTools_SchemasRequireArguments(t *testing.T) {
	set := New(Config{Store: newMemStore()}).Tools(Params{KnowledgeName: "algo"}, true)
	defs := set.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, []any{"pattern"}, toAnySlice(defs[0].Parameters["required"]))
}

func toAnySlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out
	}
	return nil
}
