package tool

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct {
	name   string
	result string
	err    error
	got    map[string]any
}

func (s *stubTool) Name() string           { return s.name }
func (s *stubTool) Description() string    { return "stub " + s.name }
func (s *stubTool) Schema() map[string]any { return map[string]any{"type": "object"} }
func (s *stubTool) Call(_ context.Context, args map[string]any) (string, error) {
	s.got = args
	return s.result, s.err
}

type halfTruncator struct{}

func (halfTruncator) Truncate(text string, maxTokens int) string {
	if len(text) <= maxTokens {
		return text
	}
	return text[:maxTokens]
}

func TestSet_NilHasNoTools(t *testing.T) {
	var s *Set
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Definitions())
	assert.Nil(t, s.Names())
	assert.Equal(t, NoResults, s.Execute(context.Background(), ToolCall{Name: "search_web"}))
}

func TestSet_DefinitionsKeepOrder(t *testing.T) {
	s := NewSet([]Tool{&stubTool{name: "b"}, &stubTool{name: "a"}})

	defs := s.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "b", defs[0].Name)
	assert.Equal(t, "stub b", defs[0].Description)
	assert.Equal(t, []string{"a", "b"}, s.Names())
}

func TestSet_ExecuteDispatchesByName(t *testing.T) {
	st := &stubTool{name: "search_knowledge", result: "doc-1"}
	s := NewSet([]Tool{st})

	out := s.Execute(context.Background(), ToolCall{ID: "c1", Name: "search_knowledge", Args: map[string]any{"pattern": "stack"}})

	assert.Equal(t, "doc-1", out)
	assert.Equal(t, "stack", st.got["pattern"])
}

func TestSet_ExecuteAbsorbsFailures(t *testing.T) {
	var observed []error
	s := NewSet(
		[]Tool{&stubTool{name: "search_web", err: errors.New("timeout")}, &stubTool{name: "empty"}},
		WithObserver(func(_ context.Context, _ string, err error) { observed = append(observed, err) }),
	)

	assert.Equal(t, NoResults, s.Execute(context.Background(), ToolCall{Name: "search_web"}))
	assert.Equal(t, NoResults, s.Execute(context.Background(), ToolCall{Name: "empty"}))
	assert.Equal(t, NoResults, s.Execute(context.Background(), ToolCall{Name: "missing"}))

	require.Len(t, observed, 3)
	assert.Error(t, observed[0])
	assert.NoError(t, observed[1])
	assert.Error(t, observed[2])
}

func TestSet_ExecuteTruncates(t *testing.T) {
	s := NewSet([]Tool{&stubTool{name: "big", result: strings.Repeat("x", 100)}}, WithTruncation(halfTruncator{}, 10))

	assert.Equal(t, strings.Repeat("x", 10), s.Execute(context.Background(), ToolCall{Name: "big"}))
}

func TestParseArgs(t *testing.T) {
	assert.Equal(t, map[string]any{"q": "go"}, ParseArgs(`{"q":"go"}`))
	assert.Empty(t, ParseArgs(""))
	assert.Empty(t, ParseArgs("{not json"))
}

func TestToolCall_ArgsJSON(t *testing.T) {
	assert.Equal(t, "{}", ToolCall{}.ArgsJSON())
	assert.Equal(t, `{"q":"go"}`, ToolCall{Args: map[string]any{"q": "go"}}.ArgsJSON())
}
