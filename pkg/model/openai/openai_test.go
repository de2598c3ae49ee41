package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vymalo/quiz-backend/pkg/model"
	"github.com/vymalo/quiz-backend/pkg/tool"
)

func completionJSON(content string, toolCalls ...map[string]any) string {
	msg := map[string]any{"role": "assistant", "content": content}
	finish := "stop"
	if len(toolCalls) > 0 {
		msg["tool_calls"] = toolCalls
		finish = "tool_calls"
	}
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-test",
		"choices": []any{map[string]any{"index": 0, "message": msg, "finish_reason": finish}},
		"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
	return string(body)
}

func newTestModel(t *testing.T, handler http.HandlerFunc) (model.LLM, *[]map[string]any) {
	t.Helper()
	var requests []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(body, &req)
		requests = append(requests, req)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	m, err := New("sk-test", "gpt-test", WithBaseURL(srv.URL+"/v1"), WithMaxRetries(0))
	require.NoError(t, err)
	return m, &requests
}

func TestNew_RequiresModel(t *testing.T) {
	_, err := New("sk", "")
	assert.Error(t, err)
}

func TestGenerateContent_Text(t *testing.T) {
	m, reqs := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionJSON("What is a heap?"))
	})

	resp, err := m.GenerateContent(context.Background(), &model.Request{
		SystemInstruction: "You are an expert.",
		Messages:          []model.Message{model.UserMessage("Create questions")},
		Config:            &model.GenerateConfig{Temperature: ptr(0.7)},
	})
	require.NoError(t, err)

	assert.Equal(t, "What is a heap?", resp.Text)
	assert.Equal(t, model.FinishReasonStop, resp.FinishReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	require.Len(t, *reqs, 1)
	sent := (*reqs)[0]
	assert.Equal(t, "gpt-test", sent["model"])
	assert.Equal(t, 0.7, sent["temperature"])
	msgs := sent["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
	assert.NotContains(t, sent, "tools")
}

func TestGenerateContent_ToolCalls(t *testing.T) {
	m, reqs := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionJSON("", map[string]any{
			"id":       "call_1",
			"type":     "function",
			"function": map[string]any{"name": "search_knowledge", "arguments": `{"pattern":"stack"}`},
		}))
	})

	call := tool.ToolCall{ID: "call_0", Name: "search_web", Args: map[string]any{"query": "go"}}
	resp, err := m.GenerateContent(context.Background(), &model.Request{
		Messages: []model.Message{
			model.UserMessage("hi"),
			{Role: model.RoleAssistant, ToolCalls: []tool.ToolCall{call}},
			model.ToolResultMessage(call, "no results"),
		},
		Tools: []tool.Definition{{Name: "search_knowledge", Description: "search", Parameters: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)

	require.True(t, resp.HasToolCalls())
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "search_knowledge", resp.ToolCalls[0].Name)
	assert.Equal(t, "stack", resp.ToolCalls[0].Args["pattern"])
	assert.Equal(t, model.FinishReasonToolCalls, resp.FinishReason)

	sent := (*reqs)[0]
	tools := sent["tools"].([]any)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "search_knowledge", fn["name"])

	msgs := sent["messages"].([]any)
	require.Len(t, msgs, 3)
	assert.Equal(t, "tool", msgs[2].(map[string]any)["role"])
	assert.Equal(t, "call_0", msgs[2].(map[string]any)["tool_call_id"])
}

func TestGenerateContent_StructuredOutput(t *testing.T) {
	m, reqs := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionJSON(`{"questions":["What is a stack?"]}`))
	})

	schema := map[string]any{"type": "object"}
	resp, err := m.GenerateContent(context.Background(), &model.Request{
		Messages: []model.Message{model.UserMessage("reformat")},
		Config:   &model.GenerateConfig{ResponseSchema: schema, ResponseSchemaName: "questions"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"questions":["What is a stack?"]}`, resp.Text)

	format := (*reqs)[0]["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	js := format["json_schema"].(map[string]any)
	assert.Equal(t, "questions", js["name"])
	assert.Equal(t, true, js["strict"])
}

func TestGenerateContent_StructuredOutputFenced(t *testing.T) {
	m, _ := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionJSON("```json\n{\"questions\":[\"What is a stack?\"]}\n```"))
	})

	resp, err := m.GenerateContent(context.Background(), &model.Request{
		Messages: []model.Message{model.UserMessage("reformat")},
		Config:   &model.GenerateConfig{ResponseSchema: map[string]any{"type": "object"}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"questions":["What is a stack?"]}`, resp.Text)
}

func TestGenerateContent_StructuredOutputNotJSON(t *testing.T) {
	m, _ := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionJSON("Sure! Here are your questions:"))
	})

	_, err := m.GenerateContent(context.Background(), &model.Request{
		Messages: []model.Message{model.UserMessage("reformat")},
		Config:   &model.GenerateConfig{ResponseSchema: map[string]any{"type": "object"}},
	})
	assert.ErrorIs(t, err, model.ErrNoObjectGenerated)
	assert.False(t, model.IsProviderCallError(err))
}

func TestGenerateContent_ProviderError(t *testing.T) {
	m, _ := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	})

	_, err := m.GenerateContent(context.Background(), &model.Request{
		Messages: []model.Message{model.UserMessage("hi")},
	})
	require.Error(t, err)
	assert.True(t, model.IsProviderCallError(err))
	assert.False(t, errors.Is(err, model.ErrNoObjectGenerated))
}

func ptr[T any](v T) *T { return &v }
