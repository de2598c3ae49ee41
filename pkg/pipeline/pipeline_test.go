package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vymalo/quiz-backend/pkg/config"
	"github.com/vymalo/quiz-backend/pkg/model"
	"github.com/vymalo/quiz-backend/pkg/tool"
)

type step struct {
	resp *model.Response
	err  error
}

// scriptedLLM replays steps in order and records every request.
type scriptedLLM struct {
	mu       sync.Mutex
	steps    []step
	requests []*model.Request
}

func (s *scriptedLLM) Name() string             { return "scripted" }
func (s *scriptedLLM) Provider() model.Provider { return model.ProviderOpenAI }
func (s *scriptedLLM) Close() error             { return nil }

func (s *scriptedLLM) GenerateContent(_ context.Context, req *model.Request) (*model.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		return nil, errors.New("script exhausted")
	}
	st := s.steps[0]
	if len(s.steps) > 1 {
		s.steps = s.steps[1:]
	}
	return st.resp, st.err
}

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type models map[string]model.LLM

func (m models) Resolve(role string) (model.LLM, error) {
	llm, ok := m[role]
	if !ok {
		return nil, &config.ConfigError{Field: "models." + role, Reason: "missing"}
	}
	return llm, nil
}

func text(s string) step { return step{resp: &model.Response{Text: s}} }

func noObject() step {
	return step{err: fmt.Errorf("openai: structured output is not valid JSON: %w", model.ErrNoObjectGenerated)}
}

func newPipeline(m models, opts ...Option) *Pipeline {
	cfg := config.PipelineConfig{}
	cfg.SetDefaults()
	return New(m, cfg, opts...)
}

type echoTool struct{ name string }

func (e echoTool) Name() string           { return e.name }
func (e echoTool) Description() string    { return "echo" }
func (e echoTool) Schema() map[string]any { return map[string]any{"type": "object"} }
func (e echoTool) Call(_ context.Context, args map[string]any) (string, error) {
	return fmt.Sprintf("echo:%v", args["q"]), nil
}

func TestGenerate_NoTools(t *testing.T) {
	llm := &scriptedLLM{steps: []step{text("  What is a BST?\nWhat is a node?  ")}}
	p := newPipeline(models{config.RoleQuestion: llm})

	out, err := p.Generate(context.Background(), GenerateRequest{
		Role:        config.RoleQuestion,
		System:      "system",
		Prompt:      "prompt",
		Temperature: config.Float64Ptr(0.7),
	})

	require.NoError(t, err)
	assert.Equal(t, "What is a BST?\nWhat is a node?", out)
	require.Len(t, llm.requests, 1)
	req := llm.requests[0]
	assert.Equal(t, "system", req.SystemInstruction)
	assert.Empty(t, req.Tools)
	assert.Equal(t, 0.7, *req.Config.Temperature)
	assert.Nil(t, req.Config.ResponseSchema)
}

func TestGenerate_ExecutesToolCalls(t *testing.T) {
	llm := &scriptedLLM{steps: []step{
		{resp: &model.Response{ToolCalls: []tool.ToolCall{{ID: "c1", Name: "lookup", Args: map[string]any{"q": "stack"}}}}},
		text("final"),
	}}
	p := newPipeline(models{config.RoleResponse: llm})
	tools := tool.NewSet([]tool.Tool{echoTool{name: "lookup"}})

	out, err := p.Generate(context.Background(), GenerateRequest{Role: config.RoleResponse, Prompt: "p", Tools: tools})

	require.NoError(t, err)
	assert.Equal(t, "final", out)
	require.Len(t, llm.requests, 2)
	assert.Len(t, llm.requests[0].Tools, 1)

	second := llm.requests[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, model.RoleAssistant, second[1].Role)
	assert.Equal(t, model.RoleTool, second[2].Role)
	assert.Equal(t, "c1", second[2].ToolCallID)
	assert.Equal(t, "echo:stack", second[2].Content)
}

func TestGenerate_WithdrawsToolsAfterRoundLimit(t *testing.T) {
	call := step{resp: &model.Response{ToolCalls: []tool.ToolCall{{ID: "c", Name: "lookup"}}}}
	llm := &scriptedLLM{steps: []step{call, call, text("done")}}
	cfg := config.PipelineConfig{MaxToolRounds: 2}
	cfg.SetDefaults()
	p := New(models{config.RoleQuestion: llm}, cfg)

	out, err := p.Generate(context.Background(), GenerateRequest{
		Role:  config.RoleQuestion,
		Tools: tool.NewSet([]tool.Tool{echoTool{name: "lookup"}}),
	})

	require.NoError(t, err)
	assert.Equal(t, "done", out)
	require.Len(t, llm.requests, 3)
	assert.Empty(t, llm.requests[2].Tools)
}

func TestGenerate_ToolRoundsExceeded(t *testing.T) {
	call := step{resp: &model.Response{ToolCalls: []tool.ToolCall{{ID: "c", Name: "lookup"}}}}
	llm := &scriptedLLM{steps: []step{call}}
	cfg := config.PipelineConfig{MaxToolRounds: 1}
	cfg.SetDefaults()
	p := New(models{config.RoleQuestion: llm}, cfg)

	_, err := p.Generate(context.Background(), GenerateRequest{
		Role:  config.RoleQuestion,
		Tools: tool.NewSet([]tool.Tool{echoTool{name: "lookup"}}),
	})

	assert.ErrorIs(t, err, ErrToolRoundsExceeded)
	assert.Equal(t, 2, llm.calls())
}

func TestGenerate_PropagatesProviderErrorWithoutRetry(t *testing.T) {
	perr := &model.ProviderCallError{Provider: model.ProviderOpenAI, Model: "m", Err: errors.New("timeout")}
	llm := &scriptedLLM{steps: []step{{err: perr}}}
	var hooked []error
	p := newPipeline(models{config.RoleQuestion: llm}, WithHooks(Hooks{
		LLMCall: func(_ context.Context, role, phase string, err error) {
			assert.Equal(t, config.RoleQuestion, role)
			assert.Equal(t, PhaseGenerate, phase)
			hooked = append(hooked, err)
		},
	}))

	_, err := p.Generate(context.Background(), GenerateRequest{Role: config.RoleQuestion})

	assert.Same(t, perr, err)
	assert.Equal(t, 1, llm.calls())
	require.Len(t, hooked, 1)
	assert.Same(t, perr, hooked[0])
}

func TestGenerate_EmptyText(t *testing.T) {
	llm := &scriptedLLM{steps: []step{text("   ")}}
	p := newPipeline(models{config.RoleQuestion: llm})

	_, err := p.Generate(context.Background(), GenerateRequest{Role: config.RoleQuestion})
	assert.ErrorIs(t, err, ErrEmptyGeneration)
}

func TestNormalize_SendsStrictSchema(t *testing.T) {
	llm := &scriptedLLM{steps: []step{text(`{"questions":["What is a stack?","What is a queue?"]}`)}}
	p := newPipeline(models{config.RoleSummarizer: llm})

	items, err := p.Normalize(context.Background(), FieldQuestions, "raw text")

	require.NoError(t, err)
	assert.Equal(t, []string{"What is a stack?", "What is a queue?"}, items)

	req := llm.requests[0]
	assert.Equal(t, "questions", req.Config.SchemaName())
	assert.True(t, req.Config.Strict())
	assert.Equal(t, false, req.Config.ResponseSchema["additionalProperties"])
	assert.Contains(t, req.Messages[0].Content, "raw text")
}

func TestNormalize_ExhaustsAfterExactlyThreeAttempts(t *testing.T) {
	llm := &scriptedLLM{steps: []step{noObject()}}
	var retries []int
	p := newPipeline(models{config.RoleSummarizer: llm}, WithHooks(Hooks{
		NormalizeRetry: func(_ context.Context, attempt int) { retries = append(retries, attempt) },
	}))

	_, err := p.Normalize(context.Background(), FieldQuestions, "raw")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNormalizationExhausted)
	assert.ErrorIs(t, err, model.ErrNoObjectGenerated)
	var ne *NormalizationError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, 3, ne.Attempts)
	assert.Equal(t, 3, llm.calls())
	assert.Equal(t, []int{2, 3}, retries)

	for _, req := range llm.requests[1:] {
		assert.Equal(t, llm.requests[0], req)
	}
}

func TestNormalize_SucceedsOnSecondAttempt(t *testing.T) {
	llm := &scriptedLLM{steps: []step{
		noObject(),
		text(`{"responses":["LIFO order","push and pop","top element"]}`),
		text(`{"responses":["unused"]}`),
	}}
	p := newPipeline(models{config.RoleSummarizer: llm})

	items, err := p.Normalize(context.Background(), FieldResponses, "raw")

	require.NoError(t, err)
	assert.Equal(t, []string{"LIFO order", "push and pop", "top element"}, items)
	assert.Equal(t, 2, llm.calls())
}

func TestNormalize_UnbindableTextIsRetried(t *testing.T) {
	llm := &scriptedLLM{steps: []step{
		text("Sure! Here are your questions"),
		text(`{"answers":["x"]}`),
		text(`{"questions":["Q1"]}`),
	}}
	p := newPipeline(models{config.RoleSummarizer: llm})

	items, err := p.Normalize(context.Background(), FieldQuestions, "raw")

	require.NoError(t, err)
	assert.Equal(t, []string{"Q1"}, items)
	assert.Equal(t, 3, llm.calls())
}

func TestNormalize_OtherErrorsAreNotRetried(t *testing.T) {
	perr := &model.ProviderCallError{Provider: model.ProviderOpenAI, Model: "m", Err: errors.New("401 unauthorized")}
	llm := &scriptedLLM{steps: []step{{err: perr}}}
	p := newPipeline(models{config.RoleSummarizer: llm})

	_, err := p.Normalize(context.Background(), FieldQuestions, "raw")

	assert.True(t, model.IsProviderCallError(err))
	assert.False(t, IsNormalizationExhausted(err))
	assert.Equal(t, 1, llm.calls())
}

func TestNormalize_ConfiguredAttempts(t *testing.T) {
	llm := &scriptedLLM{steps: []step{noObject()}}
	p := New(models{config.RoleSummarizer: llm}, config.PipelineConfig{NormalizeAttempts: 1})

	_, err := p.Normalize(context.Background(), FieldQuestions, "raw")

	assert.True(t, IsNormalizationExhausted(err))
	assert.Equal(t, 1, llm.calls())
}

func TestNormalize_EmptyInput(t *testing.T) {
	llm := &scriptedLLM{}
	p := newPipeline(models{config.RoleSummarizer: llm})

	_, err := p.Normalize(context.Background(), FieldQuestions, " \n")
	assert.ErrorIs(t, err, ErrEmptyGeneration)
	assert.Zero(t, llm.calls())
}

func TestDecodeList(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    []string
		wantErr bool
	}{
		{"strips enumeration", `{"questions":["1. What is a BST?","- What is a leaf?","2) Why balance?"]}`, []string{"What is a BST?", "What is a leaf?", "Why balance?"}, false},
		{"drops duplicates and blanks", `{"questions":["Q","Q"," ","Q2"]}`, []string{"Q", "Q2"}, false},
		{"keeps bold markdown", `{"questions":["**Big-O** of search?"]}`, []string{"**Big-O** of search?"}, false},
		{"fenced json", "```json\n{\"questions\":[\"What is a stack?\"]}\n```", []string{"What is a stack?"}, false},
		{"bare fence", "```\n{\"questions\":[\"Q\"]}```", []string{"Q"}, false},
		{"not json", `questions: a, b`, nil, true},
		{"wrong type", `{"questions":"Q"}`, nil, true},
		{"empty list", `{"questions":[]}`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeList(FieldQuestions, tt.text)
			if tt.wantErr {
				assert.ErrorIs(t, err, model.ErrNoObjectGenerated)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResponseSchema(t *testing.T) {
	s, ok := ResponseSchema(FieldResponses)
	require.True(t, ok)
	props := s["properties"].(map[string]any)
	assert.Contains(t, props, "responses")
	assert.Equal(t, []any{"responses"}, s["required"])

	_, ok = ResponseSchema("answers")
	assert.False(t, ok)
}
