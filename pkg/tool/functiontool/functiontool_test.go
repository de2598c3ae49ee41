package functiontool_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vymalo/quiz-backend/pkg/tool/functiontool"
)

type searchArgs struct {
	Query string `json:"query" jsonschema:"required,description=Search query"`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Max results"`
}

func TestNew_GeneratesSchema(t *testing.T) {
	st, err := functiontool.New(
		functiontool.Config{Name: "search_web", Description: "Search the web"},
		func(ctx context.Context, args searchArgs) (string, error) { return args.Query, nil },
	)
	require.NoError(t, err)

	assert.Equal(t, "search_web", st.Name())
	assert.Equal(t, "Search the web", st.Description())

	schema := st.Schema()
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, false, schema["additionalProperties"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "query")
	assert.Contains(t, props, "limit")
	assert.Equal(t, []any{"query"}, schema["required"])
	assert.NotContains(t, schema, "$schema")
}

func TestNew_RequiresNameAndDescription(t *testing.T) {
	fn := func(ctx context.Context, args searchArgs) (string, error) { return "", nil }

	_, err := functiontool.New(functiontool.Config{Description: "x"}, fn)
	assert.Error(t, err)

	_, err = functiontool.New(functiontool.Config{Name: "x"}, fn)
	assert.Error(t, err)
}

func TestCall_DecodesArgs(t *testing.T) {
	st := functiontool.MustNew(
		functiontool.Config{Name: "search", Description: "search"},
		func(ctx context.Context, args searchArgs) (string, error) {
			return fmt.Sprintf("%s/%d", args.Query, args.Limit), nil
		},
	)

	out, err := st.Call(context.Background(), map[string]any{"query": "stacks", "limit": 3})
	require.NoError(t, err)
	assert.Equal(t, "stacks/3", out)
}

func TestCall_InvalidArgs(t *testing.T) {
	st := functiontool.MustNew(
		functiontool.Config{Name: "search", Description: "search"},
		func(ctx context.Context, args searchArgs) (string, error) { return "ok", nil },
	)

	_, err := st.Call(context.Background(), map[string]any{"query": 42})
	assert.Error(t, err)
}

func TestCall_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	st := functiontool.MustNew(
		functiontool.Config{Name: "search", Description: "search"},
		func(ctx context.Context, args searchArgs) (string, error) { return "", boom },
	)

	_, err := st.Call(context.Background(), map[string]any{"query": "q"})
	assert.ErrorIs(t, err, boom)
}

func TestSchema_ListField(t *testing.T) {
	type questions struct {
		Questions []string `json:"questions" jsonschema:"required"`
	}

	schema, err := functiontool.Schema[questions]()
	require.NoError(t, err)

	props := schema["properties"].(map[string]any)
	q := props["questions"].(map[string]any)
	assert.Equal(t, "array", q["type"])
	assert.Equal(t, map[string]any{"type": "string"}, q["items"])
}
