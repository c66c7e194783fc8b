package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedramamini/pedster/ai/openrouter"
	"github.com/pedramamini/pedster/errors"
	"github.com/pedramamini/pedster/pipeline"
)

// fakeClient records the last request and returns a canned response.
type fakeClient struct {
	lastReq openrouter.ChatRequest
	resp    *openrouter.ChatResponse
	err     error
}

func (f *fakeClient) Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func TestProcess(t *testing.T) {
	t.Run("successful completion", func(t *testing.T) {
		client := &fakeClient{resp: &openrouter.ChatResponse{
			Content: "a summary",
			Model:   "openai/gpt-4o",
			Usage:   openrouter.Usage{PromptTokens: 12, CompletionTokens: 5},
		}}

		p := New(client, Config{
			Name:     "summarize",
			Template: Template{Body: "Summarize: {content}", System: "Be brief."},
			Model:    "openai/gpt-4o",
			Provider: "openrouter",
		})

		d := pipeline.NewData("long article text", pipeline.ContentText, "test")
		result := p.Process(context.Background(), d)

		require.True(t, result.Success)
		assert.Equal(t, "a summary", result.Data.Content)
		assert.Equal(t, pipeline.ContentMarkdown, result.Data.ContentType)
		assert.Equal(t, "openai/gpt-4o", result.Data.Metadata["model"])
		assert.Equal(t, "openrouter", result.Data.Metadata["provider"])
		assert.Equal(t, 12, result.Metrics.TokensIn)
		assert.Equal(t, 5, result.Metrics.TokensOut)

		assert.Equal(t, "Summarize: long article text", client.lastReq.UserPrompt)
		assert.Equal(t, "Be brief.", client.lastReq.SystemPrompt)
	})

	t.Run("content type mismatch fails fast without calling model", func(t *testing.T) {
		client := &fakeClient{resp: &openrouter.ChatResponse{Content: "never"}}
		p := New(client, Config{Name: "summarize"})

		d := pipeline.NewData("/tmp/file.mp3", pipeline.ContentAudio, "test")
		d.Metadata["key"] = "value"
		result := p.Process(context.Background(), d)

		require.False(t, result.Success)
		assert.Contains(t, result.ErrorMessage, "does not accept audio")
		assert.Contains(t, result.ErrorMessage, errors.ErrUnsupportedContent.Error())
		assert.Equal(t, d.ID, result.Data.ID)
		assert.Equal(t, d.Content, result.Data.Content)
		assert.Equal(t, "value", result.Data.Metadata["key"])
		assert.Empty(t, client.lastReq.UserPrompt, "model must not be called on mismatch")
	})

	t.Run("client error becomes failed envelope", func(t *testing.T) {
		client := &fakeClient{err: errors.New("all retries exhausted")}
		p := New(client, Config{Name: "summarize"})

		d := pipeline.NewData("input", pipeline.ContentText, "test")
		result := p.Process(context.Background(), d)

		require.False(t, result.Success)
		assert.Contains(t, result.ErrorMessage, "all retries exhausted")
		assert.Equal(t, "input", result.Data.Content, "failure carries the original input")
	})

	t.Run("template substitutes metadata placeholders", func(t *testing.T) {
		client := &fakeClient{resp: &openrouter.ChatResponse{Content: "ok"}}
		p := New(client, Config{
			Name:     "titled",
			Template: Template{Body: "Title: {title}\n\n{content}"},
		})

		d := pipeline.NewData("body text", pipeline.ContentText, "test")
		d.Metadata["title"] = "My Article"
		result := p.Process(context.Background(), d)

		require.True(t, result.Success)
		assert.Equal(t, "Title: My Article\n\nbody text", client.lastReq.UserPrompt)
	})

	t.Run("input record is not mutated", func(t *testing.T) {
		client := &fakeClient{resp: &openrouter.ChatResponse{Content: "new content", Model: "m"}}
		p := New(client, Config{Name: "p"})

		d := pipeline.NewData("original", pipeline.ContentText, "test")
		result := p.Process(context.Background(), d)

		require.True(t, result.Success)
		assert.Equal(t, "original", d.Content)
		assert.NotContains(t, d.Metadata, "model")
	})
}

func TestTemplateRender(t *testing.T) {
	t.Run("empty body defaults to content", func(t *testing.T) {
		d := pipeline.NewData("just content", pipeline.ContentText, "test")
		assert.Equal(t, "just content", Template{}.Render(d))
	})

	t.Run("unknown placeholder left in place", func(t *testing.T) {
		d := pipeline.NewData("x", pipeline.ContentText, "test")
		got := Template{Body: "{content} {missing}"}.Render(d)
		assert.Equal(t, "x {missing}", got)
	})
}
