// Package llm implements the prompt-completion processor. It is
// provider-agnostic: any chat client satisfying Client can back it.
package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pedramamini/pedster/ai/openrouter"
	"github.com/pedramamini/pedster/errors"
	"github.com/pedramamini/pedster/pipeline"
)

// Client is the chat-completion seam. Both the OpenRouter and Ollama
// clients satisfy it.
type Client interface {
	Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error)
}

// Config for an LLM processor.
type Config struct {
	Name        string
	Template    Template
	Model       string                 // provider model identifier sent with requests
	Provider    string                 // "openrouter" or "ollama", for metadata only
	InputTypes  []pipeline.ContentType // default: text, markdown, json
	OutputType  pipeline.ContentType   // default: markdown
	Temperature *float64
	MaxTokens   *int
	Logger      *zap.SugaredLogger
}

// Processor turns a record's content into a model completion.
type Processor struct {
	client Client
	cfg    Config
	logger *zap.SugaredLogger
}

func New(client Client, cfg Config) *Processor {
	if cfg.Name == "" {
		cfg.Name = "llm"
	}
	if cfg.InputTypes == nil {
		cfg.InputTypes = []pipeline.ContentType{
			pipeline.ContentText, pipeline.ContentMarkdown, pipeline.ContentJSON,
		}
	}
	if cfg.OutputType == "" {
		cfg.OutputType = pipeline.ContentMarkdown
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Processor{client: client, cfg: cfg, logger: logger}
}

func (p *Processor) Name() string                       { return p.cfg.Name }
func (p *Processor) InputTypes() []pipeline.ContentType { return p.cfg.InputTypes }
func (p *Processor) OutputType() pipeline.ContentType   { return p.cfg.OutputType }

// Process renders the prompt, calls the model, and wraps the completion
// in a fresh record. Errors never escape: transport failures come back
// as failed envelopes after the client's retries are exhausted.
func (p *Processor) Process(ctx context.Context, d pipeline.Data) pipeline.Result {
	start := time.Now()

	if !pipeline.Accepts(p.cfg.InputTypes, d.ContentType) {
		err := errors.Wrapf(errors.ErrUnsupportedContent,
			"%s does not accept %s content (accepts %v)",
			p.cfg.Name, d.ContentType, p.cfg.InputTypes)
		return pipeline.Failure(d, err.Error())
	}

	req := openrouter.ChatRequest{
		SystemPrompt: p.cfg.Template.System,
		UserPrompt:   p.cfg.Template.Render(d),
		Temperature:  p.cfg.Temperature,
		MaxTokens:    p.cfg.MaxTokens,
	}
	if p.cfg.Model != "" {
		model := p.cfg.Model
		req.Model = &model
	}

	resp, err := p.client.Chat(ctx, req)
	if err != nil {
		p.logger.Warnw("Completion failed", "processor", p.cfg.Name, "error", err)
		result := pipeline.Failure(d, err.Error())
		pipeline.Measure(start, &result.Metrics)
		return result
	}

	out := d.Clone()
	out.Content = resp.Content
	out.ContentType = p.cfg.OutputType
	out.Metadata["model"] = resp.Model
	if p.cfg.Provider != "" {
		out.Metadata["provider"] = p.cfg.Provider
	}
	out.Metadata["processor"] = p.cfg.Name
	out.Metrics.TokensIn += resp.Usage.PromptTokens
	out.Metrics.TokensOut += resp.Usage.CompletionTokens

	result := pipeline.Succeed(out)
	pipeline.Measure(start, &result.Metrics)
	result.Data.Metrics = result.Metrics
	return result
}
