package main

import (
	"bytes"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("quizd"), kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	return &cli, kctx
}

func TestCLI_Questions(t *testing.T) {
	cli, kctx := parse(t, "questions", "Go channels", "--knowledge", "go-docs", "--web", "--extra", "be brief")

	assert.Equal(t, "questions <topic>", kctx.Command())
	assert.Equal(t, "Go channels", cli.Questions.Topic)
	assert.Equal(t, "be brief", cli.Questions.Extra)

	src := cli.Questions.sources()
	assert.Equal(t, "go-docs", src.KnowledgeName)
	assert.True(t, src.WebEnabled)
	assert.Empty(t, src.LocalDBName)
}

func TestCLI_Responses(t *testing.T) {
	cli, kctx := parse(t, "responses", "Go", "What is a goroutine?", "--polarity", "bad", "--local-db", "scratch")

	assert.Equal(t, "responses <topic> <question>", kctx.Command())
	assert.Equal(t, "What is a goroutine?", cli.Responses.Question)
	assert.Equal(t, "bad", cli.Responses.Polarity)
	assert.Equal(t, "scratch", cli.Responses.sources().LocalDBName)
}

func TestCLI_KnowledgeSave(t *testing.T) {
	cli, _ := parse(t, "knowledge", "save", "go-docs", "doc-1", "Channels are typed conduits.", "--meta", "source=tour")

	assert.Equal(t, "go-docs", cli.Knowledge.Save.Name)
	assert.Equal(t, "doc-1", cli.Knowledge.Save.ID)
	assert.Equal(t, map[string]string{"source": "tour"}, cli.Knowledge.Save.Meta)
}

func TestCLI_ConfigFlags(t *testing.T) {
	cli, _ := parse(t, "validate", "-c", "quiz/config", "--config-type", "etcd", "--config-endpoints", "a:2379,b:2379")

	assert.Equal(t, "quiz/config", cli.Config)
	assert.Equal(t, "etcd", cli.ConfigType)
	assert.Equal(t, []string{"a:2379", "b:2379"}, cli.ConfigEndpoints)
}

func TestPrintJSON_CompactWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"chunks": 3}))
	assert.Equal(t, "{\"chunks\":3}\n", buf.String())
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Empty(t, firstNonEmpty("", ""))
}
