// Package openrouter implements the remote chat-completion client used
// by the LLM processors. OpenRouter fronts the hosted models (OpenAI,
// Anthropic) behind one OpenAI-compatible API.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pedramamini/pedster/errors"
	"github.com/pedramamini/pedster/internal/httpclient"
	"github.com/pedramamini/pedster/internal/util"
)

const (
	// DefaultModel is the fallback model when none is specified.
	DefaultModel = "openai/gpt-4o"

	defaultBaseURL = "https://openrouter.ai/api/v1"
)

// Client talks to the OpenRouter chat completions endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *httpclient.SaferClient
	config     Config
	logger     *zap.SugaredLogger
}

// Config holds client configuration. Pointer fields distinguish "unset"
// from an explicit zero.
type Config struct {
	APIKey      string
	Model       string
	Temperature *float64 // nil = use default (0.2)
	MaxTokens   *int     // nil = use default (4000)
	TopP        *float64 // nil = omit from requests
	MaxRetries  int      // 0 = default (3)
	Logger      *zap.SugaredLogger
}

// NewClient creates an OpenRouter client with pedster defaults.
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Temperature == nil {
		t := 0.2
		config.Temperature = &t
	}
	if config.MaxTokens == nil {
		n := 4000
		config.MaxTokens = &n
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Client{
		apiKey:     config.APIKey,
		baseURL:    defaultBaseURL,
		httpClient: httpclient.New(120 * time.Second),
		config:     config,
		logger:     logger,
	}
}

// ChatCompletionRequest is the wire request to the completions endpoint.
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
}

// ChatRequest is the high-level request from a processor.
type ChatRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  *float64 // Override default temperature
	MaxTokens    *int     // Override default max tokens
	Model        *string  // Override default model
}

// ChatResponse is the distilled response handed back to processors.
type ChatResponse struct {
	Content string
	Model   string
	Usage   Usage
}

// Message is one role-tagged entry in a chat completion.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse is the wire response from the endpoint.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is one completion candidate.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage reports token counts. Providers may omit it entirely, in which
// case all counts stay zero.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CreateChatCompletion sends one request without retry handling.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("X-Title", "pedster")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}

	return &chatResp, nil
}

// Chat sends a completion request with retry on transient network
// failures, linearly backing off between attempts.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if c.apiKey == "" {
		return nil, errors.New("OpenRouter API key not configured")
	}

	temperature := util.Deref(req.Temperature, *c.config.Temperature)
	maxTokens := util.Deref(req.MaxTokens, *c.config.MaxTokens)
	model := util.Deref(req.Model, c.config.Model)

	c.logger.Debugw("Chat request",
		"model", model,
		"temperature", temperature,
		"max_tokens", maxTokens,
	)

	messages := []Message{{Role: "user", Content: req.UserPrompt}}
	if req.SystemPrompt != "" {
		messages = append([]Message{{Role: "system", Content: req.SystemPrompt}}, messages...)
	}

	apiReq := ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if c.config.TopP != nil {
		apiReq.TopP = *c.config.TopP
	}

	var resp *ChatCompletionResponse
	var err error

	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * time.Second
			c.logger.Debugw("Retrying request",
				"attempt", attempt, "max_retries", c.config.MaxRetries-1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return nil, errors.Wrap(errors.ErrTimeout, "chat")
				}
				return nil, errors.Wrap(ctx.Err(), "chat cancelled")
			}
		}

		resp, err = c.CreateChatCompletion(ctx, apiReq)
		if err == nil {
			if attempt > 0 {
				c.logger.Infow("Request succeeded after retries", "attempts", attempt+1, "model", model)
			}
			break
		}

		c.logger.Warnw("OpenRouter API error",
			"attempt", attempt+1, "max_retries", c.config.MaxRetries,
			"error", err, "model", model)

		if isRetryableError(err) {
			continue
		}

		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrap(errors.ErrTimeout, "chat")
		}
		return nil, errors.Wrap(err, "OpenRouter API error")
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrap(errors.ErrTimeout, "chat")
		}
		return nil, errors.Wrapf(err, "OpenRouter API error after %d retries", c.config.MaxRetries)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("no response choices from OpenRouter")
	}

	content := resp.Choices[0].Message.Content

	c.logger.Debugw("Chat response",
		"content_length", len(content),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)

	respModel := resp.Model
	if respModel == "" {
		respModel = model
	}

	return &ChatResponse{
		Content: strings.TrimSpace(content),
		Model:   respModel,
		Usage:   resp.Usage,
	}, nil
}

// IsConfigured returns true if the client has an API key.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// SetHTTPClient overrides the HTTP client. Only for tests against an
// httptest server; production uses the default hardened client.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.WrapClient(client)
}

// SetBaseURL overrides the endpoint. Only for tests.
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// isRetryableError checks if an error is worth retrying (network-related).
func isRetryableError(err error) bool {
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}

	if opErr, ok := err.(*net.OpError); ok {
		if errno, ok := opErr.Err.(syscall.Errno); ok {
			switch errno {
			case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT:
				return true
			}
		}
	}

	errStr := strings.ToLower(err.Error())
	networkErrors := []string{
		"connection reset by peer",
		"connection refused",
		"timeout",
		"temporary failure",
		"network is unreachable",
		"i/o timeout",
	}
	for _, s := range networkErrors {
		if strings.Contains(errStr, s) {
			return true
		}
	}

	return false
}
