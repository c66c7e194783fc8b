// Package ollama implements a chat client for local inference servers
// exposing the OpenAI-compatible /v1/chat/completions endpoint
// (Ollama, LocalAI, llama.cpp server).
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pedramamini/pedster/ai/openrouter"
	"github.com/pedramamini/pedster/errors"
)

const DefaultBaseURL = "http://localhost:11434"

// Client talks to a local inference server. It satisfies the same Chat
// contract as the OpenRouter client so processors can switch providers
// by configuration.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// Config holds local inference configuration.
type Config struct {
	BaseURL        string // default http://localhost:11434
	Model          string
	TimeoutSeconds int // default 300 (local models are slow)
	Logger         *zap.SugaredLogger
}

// NewClient creates a client for a local OpenAI-compatible endpoint.
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.TimeoutSeconds == 0 {
		config.TimeoutSeconds = 300
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		model:   config.Model,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		logger: logger,
	}
}

// wire request matching the OpenAI API format (Ollama is compatible)
type chatCompletionRequest struct {
	Model    string               `json:"model"`
	Messages []openrouter.Message `json:"messages"`
	Stream   bool                 `json:"stream"`
	Options  *completionOpts      `json:"options,omitempty"`
}

type completionOpts struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	MaxTokens   int     `json:"num_predict,omitempty"` // Ollama uses num_predict
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Index        int                `json:"index"`
		Message      openrouter.Message `json:"message"`
		FinishReason string             `json:"finish_reason"`
	} `json:"choices"`
	Usage *openrouter.Usage `json:"usage,omitempty"`
}

// Chat sends a completion request to the local server. Local endpoints
// often omit usage, so token counts fall back to a rough len/4 estimate.
func (c *Client) Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error) {
	model := c.model
	if req.Model != nil {
		model = *req.Model
	}
	if model == "" {
		return nil, errors.New("local inference model not configured")
	}

	messages := []openrouter.Message{{Role: "user", Content: req.UserPrompt}}
	if req.SystemPrompt != "" {
		messages = append([]openrouter.Message{{Role: "system", Content: req.SystemPrompt}}, messages...)
	}

	opts := &completionOpts{Temperature: 0.7, MaxTokens: 4096}
	if req.Temperature != nil {
		opts.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		opts.MaxTokens = *req.MaxTokens
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options:  opts,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	endpoint := c.baseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "local inference request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, errors.Newf("local inference returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var completion chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, errors.Wrap(err, "failed to decode response")
	}

	if len(completion.Choices) == 0 {
		return nil, errors.New("no completion choices returned")
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)

	usage := openrouter.Usage{}
	if completion.Usage != nil {
		usage = *completion.Usage
	} else {
		// Crude estimate: roughly 4 characters per token.
		usage.PromptTokens = (len(req.SystemPrompt) + len(req.UserPrompt)) / 4
		usage.CompletionTokens = len(content) / 4
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	respModel := completion.Model
	if respModel == "" {
		respModel = model
	}

	return &openrouter.ChatResponse{
		Content: content,
		Model:   respModel,
		Usage:   usage,
	}, nil
}

// IsConfigured returns true if a model is set.
func (c *Client) IsConfigured() bool {
	return c.model != ""
}

// SetHTTPClient overrides the HTTP client. Only for tests.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetBaseURL overrides the endpoint. Only for tests.
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}
