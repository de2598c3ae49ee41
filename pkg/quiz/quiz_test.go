package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vymalo/quiz-backend/pkg/config"
	"github.com/vymalo/quiz-backend/pkg/knowledge"
	"github.com/vymalo/quiz-backend/pkg/model"
	"github.com/vymalo/quiz-backend/pkg/pipeline"
	"github.com/vymalo/quiz-backend/pkg/tool"
	"github.com/vymalo/quiz-backend/pkg/tool/toolset"
	"github.com/vymalo/quiz-backend/pkg/vector"
)

// funcLLM answers every call with fn and records the requests.
type funcLLM struct {
	mu       sync.Mutex
	fn       func(req *model.Request, call int) (*model.Response, error)
	requests []*model.Request
}

func (f *funcLLM) Name() string             { return "fake" }
func (f *funcLLM) Provider() model.Provider { return model.ProviderOpenAI }
func (f *funcLLM) Close() error             { return nil }

func (f *funcLLM) GenerateContent(_ context.Context, req *model.Request) (*model.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	call := len(f.requests)
	f.mu.Unlock()
	return f.fn(req, call)
}

func (f *funcLLM) all() []*model.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.Request(nil), f.requests...)
}

// summarizer splits the draft into lines, as a well-behaved model would.
func summarizer() *funcLLM {
	return &funcLLM{fn: func(req *model.Request, _ int) (*model.Response, error) {
		content := req.Messages[0].Content
		draft := content[strings.Index(content, "\n\n")+2:]
		var lines []string
		for _, l := range strings.Split(draft, "\n") {
			if l = strings.TrimSpace(l); l != "" {
				lines = append(lines, l)
			}
		}
		data, _ := json.Marshal(map[string][]string{req.Config.SchemaName(): lines})
		return &model.Response{Text: string(data)}, nil
	}}
}

func textLLM(text string) *funcLLM {
	return &funcLLM{fn: func(*model.Request, int) (*model.Response, error) {
		return &model.Response{Text: text}, nil
	}}
}

type models map[string]model.LLM

func (m models) Resolve(role string) (model.LLM, error) {
	llm, ok := m[role]
	if !ok {
		return nil, errors.New("missing role " + role)
	}
	return llm, nil
}

func defaults() (config.ToolsConfig, config.PipelineConfig) {
	tc := config.ToolsConfig{Questions: true, Responses: true}
	tc.SetDefaults()
	pc := config.PipelineConfig{}
	pc.SetDefaults()
	return tc, pc
}

func newService(m models, tools ToolProvider) *Service {
	tc, pc := defaults()
	return NewService(pipeline.New(m, pc), tools, tc, pc)
}

var bstQuestions = []string{
	"What is a binary search tree?",
	"What property orders the keys of a BST?",
	"How is a key searched in a BST?",
	"What is the height of a balanced BST?",
	"What is the worst-case search cost in a BST?",
	"How is a node inserted into a BST?",
	"How is a leaf removed from a BST?",
	"How is a node with two children removed?",
	"What is an in-order successor?",
	"Which traversal yields sorted keys?",
	"What makes a BST degenerate?",
	"How does an AVL tree stay balanced?",
	"What is a rotation?",
	"How are duplicates handled in a BST?",
	"What is the space complexity of a BST?",
	"How do you find the minimum key?",
}

func TestCreateQuestions_NoTools(t *testing.T) {
	draft := strings.Join(bstQuestions, "\n") + "\n" + bstQuestions[0]
	question := textLLM(draft)
	summ := summarizer()
	svc := newService(models{config.RoleQuestion: question, config.RoleSummarizer: summ}, nil)

	out, err := svc.CreateQuestions(context.Background(), &QuestionRequest{Topic: "Binary Search Trees"})

	require.NoError(t, err)
	assert.Equal(t, len(bstQuestions), out.Count)
	assert.GreaterOrEqual(t, out.Count, 15)
	seen := map[string]bool{}
	for _, q := range out.Questions {
		assert.False(t, seen[q.Q], "duplicate %q", q.Q)
		seen[q.Q] = true
	}

	req := question.all()[0]
	assert.Contains(t, req.SystemInstruction, `senior expert in "Binary Search Trees"`)
	assert.Contains(t, req.Messages[0].Content, `Please create questions about "Binary Search Trees".`)
	assert.Empty(t, req.Tools)
	assert.Equal(t, 0.7, *req.Config.Temperature)

	assert.Equal(t, "questions", summ.all()[0].Config.SchemaName())
}

func TestCreateQuestions_Validation(t *testing.T) {
	svc := newService(models{}, nil)

	_, err := svc.CreateQuestions(context.Background(), &QuestionRequest{Topic: "  "})

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "topic", ve.Field)
}

func TestCreateQuestions_ProviderErrorPropagates(t *testing.T) {
	perr := &model.ProviderCallError{Provider: model.ProviderOpenAI, Model: "m", Err: errors.New("timeout")}
	question := &funcLLM{fn: func(*model.Request, int) (*model.Response, error) { return nil, perr }}
	summ := summarizer()
	svc := newService(models{config.RoleQuestion: question, config.RoleSummarizer: summ}, nil)

	_, err := svc.CreateQuestions(context.Background(), &QuestionRequest{Topic: "Stacks"})

	assert.ErrorIs(t, err, perr)
	assert.Empty(t, summ.all())
}

func TestCreateResponses_GoodOnly(t *testing.T) {
	response := textLLM("A stack is a LIFO collection.\nPush adds an element on top.\nPop removes the most recently added element.")
	svc := newService(models{config.RoleResponse: response, config.RoleSummarizer: summarizer()}, nil)

	out, err := svc.CreateResponses(context.Background(), &ResponseRequest{
		Topic:    "Data structures",
		Question: "What is a stack?",
		Polarity: PolarityGood,
	})

	require.NoError(t, err)
	assert.Equal(t, 3, out.Count)
	assert.Equal(t, 3, out.CountGood)
	assert.Equal(t, "What is a stack?", out.Question)
	for _, r := range out.Responses {
		assert.True(t, r.G)
	}

	reqs := response.all()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Messages[0].Content, "**Number of responses to generate:** 3\ngood")
	assert.Contains(t, reqs[0].SystemInstruction, "factual")
}

func TestCreateResponses_BadHonorsPolarity(t *testing.T) {
	response := textLLM("A stack is FIFO.")
	svc := newService(models{config.RoleResponse: response, config.RoleSummarizer: summarizer()}, nil)

	out, err := svc.CreateResponses(context.Background(), &ResponseRequest{
		Topic:    "Data structures",
		Question: "What is a stack?",
		Polarity: PolarityBad,
	})

	require.NoError(t, err)
	require.Len(t, out.Responses, 1)
	assert.False(t, out.Responses[0].G)
	assert.Zero(t, out.CountGood)

	req := response.all()[0]
	assert.Contains(t, req.Messages[0].Content, "wrong/bad")
	assert.Contains(t, req.SystemInstruction, "misleading or incorrect")
	assert.Equal(t, 0.0, *req.Config.Temperature)
}

func TestCreateResponses_BothPolaritiesGoodFirst(t *testing.T) {
	response := &funcLLM{fn: func(req *model.Request, _ int) (*model.Response, error) {
		if strings.Contains(req.Messages[0].Content, "wrong/bad") {
			return &model.Response{Text: "bad one\nbad two"}, nil
		}
		return &model.Response{Text: "good one\ngood two\ngood three"}, nil
	}}
	svc := newService(models{config.RoleResponse: response, config.RoleSummarizer: summarizer()}, nil)

	out, err := svc.CreateResponses(context.Background(), &ResponseRequest{Topic: "DS", Question: "What is a stack?"})

	require.NoError(t, err)
	assert.Equal(t, []Response{
		{R: "good one", G: true},
		{R: "good two", G: true},
		{R: "good three", G: true},
		{R: "bad one", G: false},
		{R: "bad two", G: false},
	}, out.Responses)
	assert.Equal(t, 5, out.Count)
	assert.Equal(t, 3, out.CountGood)
	assert.Len(t, response.all(), 2)
}

func TestCreateResponses_AllOrNothing(t *testing.T) {
	response := &funcLLM{fn: func(req *model.Request, _ int) (*model.Response, error) {
		if strings.Contains(req.Messages[0].Content, "wrong/bad") {
			return nil, &model.ProviderCallError{Provider: model.ProviderOpenAI, Model: "m", Err: errors.New("rate limited")}
		}
		return &model.Response{Text: "good"}, nil
	}}
	svc := newService(models{config.RoleResponse: response, config.RoleSummarizer: summarizer()}, nil)

	out, err := svc.CreateResponses(context.Background(), &ResponseRequest{Topic: "DS", Question: "Q?"})

	assert.Nil(t, out)
	assert.True(t, model.IsProviderCallError(err))
}

func TestCreateResponses_NormalizationExhausted(t *testing.T) {
	response := textLLM("good")
	summ := &funcLLM{fn: func(*model.Request, int) (*model.Response, error) {
		return nil, fmt.Errorf("bad json: %w", model.ErrNoObjectGenerated)
	}}
	svc := newService(models{config.RoleResponse: response, config.RoleSummarizer: summ}, nil)

	_, err := svc.CreateResponses(context.Background(), &ResponseRequest{Topic: "DS", Question: "Q?", Polarity: PolarityGood})

	assert.True(t, pipeline.IsNormalizationExhausted(err))
	assert.Len(t, summ.all(), 3)
}

func TestResponseRequest_Validate(t *testing.T) {
	tests := []struct {
		name  string
		req   ResponseRequest
		field string
	}{
		{"missing topic", ResponseRequest{Question: "Q"}, "topic"},
		{"missing question", ResponseRequest{Topic: "T"}, "question"},
		{"bad polarity", ResponseRequest{Topic: "T", Question: "Q", Polarity: "neutral"}, "polarity"},
		{"ok", ResponseRequest{Topic: "T", Question: "Q", Polarity: PolarityBad}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestTemplates(t *testing.T) {
	q := questionTemplate(&QuestionRequest{Topic: "Go", Complement: "Goroutines", ExtraPrompt: "Keep it easy"})
	assert.Equal(t, "Please create questions about \"Go\".\nGoroutines\n\nAdditional prompt:\nKeep it easy\n\nStart now.", q)

	assert.Equal(t, "Please create questions about \"Go\".\n\nStart now.", questionTemplate(&QuestionRequest{Topic: "Go"}))

	r := responseTemplate(&ResponseRequest{Question: "What is a channel?", Complement: "CSP"}, PolarityBad)
	assert.Equal(t, "**Question:** \"What is a channel?\"\n**Number of responses to generate:** 3\nwrong/bad\n\nSome complements:\nCSP\n\nStart now.", r)
}

// bagEmbedder embeds text as counts of a few letters.
type bagEmbedder struct{}

func (bagEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, _ := bagEmbedder{}.EmbedBatch(ctx, []string{text})
	return v[0], nil
}

func (bagEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 5)
		for _, r := range strings.ToLower(t) {
			switch r {
			case 's':
				v[0]++
			case 't':
				v[1]++
			case 'k':
				v[2]++
			case 'q':
				v[3]++
			default:
				v[4] += 0.01
			}
		}
		out[i] = v
	}
	return out, nil
}

func (bagEmbedder) Model() string { return "bag" }
func (bagEmbedder) Close() error  { return nil }

func TestCreateQuestions_LocalDBSaveThenSearch(t *testing.T) {
	provider, err := vector.NewChromemProvider(config.ChromemConfig{}, nil)
	require.NoError(t, err)
	store := knowledge.New(provider, bagEmbedder{}, "quiz-")
	tools := toolset.New(toolset.Config{Store: store, Truncator: &tool.TokenCounter{}, MaxResultTokens: 2000})

	const fact = "A stack supports push and pop at the top in constant time."
	var searchResult string
	question := &funcLLM{fn: func(req *model.Request, call int) (*model.Response, error) {
		switch call {
		case 1:
			require.Len(t, req.Tools, 2)
			return &model.Response{ToolCalls: []tool.ToolCall{{ID: "s1", Name: toolset.SaveToLocalDB, Args: map[string]any{"text": fact}}}}, nil
		case 2:
			return &model.Response{ToolCalls: []tool.ToolCall{{ID: "q1", Name: toolset.SearchLocalDB, Args: map[string]any{"query": "stack top"}}}}, nil
		default:
			last := req.Messages[len(req.Messages)-1]
			searchResult = last.Content
			return &model.Response{Text: "What does push do on a stack?\nWhat does pop return?"}, nil
		}
	}}
	svc := newService(models{config.RoleQuestion: question, config.RoleSummarizer: summarizer()}, tools)

	out, err := svc.CreateQuestions(context.Background(), &QuestionRequest{
		Topic:   "Stacks",
		Sources: Sources{LocalDBName: "algo101"},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, out.Count)
	assert.Contains(t, searchResult, fact)

	docs, err := store.QueryDocuments(context.Background(), "algo101", "constant time")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, fact, docs[0].Document)
}

func TestCreateQuestions_EndpointFlagOff(t *testing.T) {
	question := textLLM("Q1")
	tc, pc := defaults()
	tc.Questions = false
	tools := toolset.New(toolset.Config{Store: &knowledge.Store{}})
	svc := NewService(pipeline.New(models{config.RoleQuestion: question, config.RoleSummarizer: summarizer()}, pc), tools, tc, pc)

	_, err := svc.CreateQuestions(context.Background(), &QuestionRequest{Topic: "T", Sources: Sources{KnowledgeName: "algo"}})

	require.NoError(t, err)
	assert.Empty(t, question.all()[0].Tools)
}
