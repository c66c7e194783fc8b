package openrouter

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pedramamini/pedster/errors"
)

func TestClient_Configuration(t *testing.T) {
	t.Run("applies default values", func(t *testing.T) {
		client := NewClient(Config{
			APIKey: "test-key",
		})

		if client.config.Model != DefaultModel {
			t.Errorf("expected default model %q, got %s", DefaultModel, client.config.Model)
		}
		if client.config.Temperature == nil || *client.config.Temperature != 0.2 {
			t.Errorf("expected default temperature 0.2, got %v", client.config.Temperature)
		}
		if client.config.MaxTokens == nil || *client.config.MaxTokens != 4000 {
			t.Errorf("expected default max tokens 4000, got %v", client.config.MaxTokens)
		}
		if client.config.MaxRetries != 3 {
			t.Errorf("expected default max retries 3, got %d", client.config.MaxRetries)
		}
	})

	t.Run("preserves custom values", func(t *testing.T) {
		temp := 0.8
		tokens := 2000
		client := NewClient(Config{
			APIKey:      "test-key",
			Model:       "custom/model",
			Temperature: &temp,
			MaxTokens:   &tokens,
			MaxRetries:  5,
		})

		if client.config.Model != "custom/model" {
			t.Errorf("expected custom model, got %s", client.config.Model)
		}
		if *client.config.Temperature != 0.8 {
			t.Errorf("expected custom temperature, got %f", *client.config.Temperature)
		}
		if *client.config.MaxTokens != 2000 {
			t.Errorf("expected custom max tokens, got %d", *client.config.MaxTokens)
		}
		if client.config.MaxRetries != 5 {
			t.Errorf("expected custom max retries, got %d", client.config.MaxRetries)
		}
	})
}

func TestClient_IsConfigured(t *testing.T) {
	t.Run("returns true with API key", func(t *testing.T) {
		client := NewClient(Config{APIKey: "test-key"})
		if !client.IsConfigured() {
			t.Error("expected IsConfigured to return true")
		}
	})

	t.Run("returns false without API key", func(t *testing.T) {
		client := NewClient(Config{})
		if client.IsConfigured() {
			t.Error("expected IsConfigured to return false")
		}
	})
}

func TestClient_Chat(t *testing.T) {
	t.Run("successful request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != "POST" {
				t.Errorf("expected POST, got %s", r.Method)
			}
			if r.Header.Get("Authorization") != "Bearer test-key" {
				t.Error("expected authorization header")
			}

			response := ChatCompletionResponse{
				ID:      "test-id",
				Object:  "chat.completion",
				Created: time.Now().Unix(),
				Model:   "test-model",
				Choices: []Choice{
					{
						Index: 0,
						Message: Message{
							Role:    "assistant",
							Content: "Test response content",
						},
						FinishReason: "stop",
					},
				},
				Usage: Usage{
					PromptTokens:     10,
					CompletionTokens: 20,
					TotalTokens:      30,
				},
			}

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(response)
		}))
		defer server.Close()

		client := NewClient(Config{APIKey: "test-key"})
		client.SetBaseURL(server.URL)
		client.SetHTTPClient(server.Client())

		resp, err := client.Chat(context.Background(), ChatRequest{
			SystemPrompt: "You are a test assistant",
			UserPrompt:   "Hello, world!",
		})

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Content != "Test response content" {
			t.Errorf("expected response content, got %s", resp.Content)
		}
		if resp.Usage.TotalTokens != 30 {
			t.Errorf("expected 30 total tokens, got %d", resp.Usage.TotalTokens)
		}
		if resp.Model != "test-model" {
			t.Errorf("expected model from response, got %s", resp.Model)
		}
	})

	t.Run("system prompt ordered before user prompt", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var reqBody ChatCompletionRequest
			json.NewDecoder(r.Body).Decode(&reqBody)

			if len(reqBody.Messages) != 2 {
				t.Fatalf("expected 2 messages, got %d", len(reqBody.Messages))
			}
			if reqBody.Messages[0].Role != "system" {
				t.Errorf("expected first message role system, got %s", reqBody.Messages[0].Role)
			}
			if reqBody.Messages[1].Role != "user" {
				t.Errorf("expected second message role user, got %s", reqBody.Messages[1].Role)
			}

			json.NewEncoder(w).Encode(ChatCompletionResponse{
				Choices: []Choice{{Message: Message{Content: "ok"}}},
			})
		}))
		defer server.Close()

		client := NewClient(Config{APIKey: "test-key"})
		client.SetBaseURL(server.URL)
		client.SetHTTPClient(server.Client())

		_, err := client.Chat(context.Background(), ChatRequest{
			SystemPrompt: "system",
			UserPrompt:   "user",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("empty API key returns error", func(t *testing.T) {
		client := NewClient(Config{})

		_, err := client.Chat(context.Background(), ChatRequest{
			UserPrompt: "Hello",
		})

		if err == nil {
			t.Fatal("expected error for missing API key, got nil")
		}
		if !strings.Contains(err.Error(), "API key not configured") {
			t.Errorf("expected API key error, got: %v", err)
		}
	})

	t.Run("request parameter overrides", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var reqBody ChatCompletionRequest
			json.NewDecoder(r.Body).Decode(&reqBody)

			if reqBody.Temperature != 0.9 {
				t.Errorf("expected temperature 0.9, got %f", reqBody.Temperature)
			}
			if reqBody.MaxTokens != 500 {
				t.Errorf("expected max tokens 500, got %d", reqBody.MaxTokens)
			}
			if reqBody.Model != "custom/model" {
				t.Errorf("expected custom model, got %s", reqBody.Model)
			}

			json.NewEncoder(w).Encode(ChatCompletionResponse{
				Choices: []Choice{{Message: Message{Content: "test"}}},
			})
		}))
		defer server.Close()

		client := NewClient(Config{APIKey: "test-key"})
		client.SetBaseURL(server.URL)
		client.SetHTTPClient(server.Client())

		temperature := 0.9
		maxTokens := 500
		model := "custom/model"

		_, err := client.Chat(context.Background(), ChatRequest{
			UserPrompt:  "test",
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
			Model:       &model,
		})

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("handles empty choices", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(ChatCompletionResponse{
				Choices: []Choice{},
			})
		}))
		defer server.Close()

		client := NewClient(Config{APIKey: "test-key"})
		client.SetBaseURL(server.URL)
		client.SetHTTPClient(server.Client())

		_, err := client.Chat(context.Background(), ChatRequest{UserPrompt: "test"})
		if err == nil {
			t.Fatal("expected error for empty choices")
		}
		if !strings.Contains(err.Error(), "no response choices") {
			t.Errorf("expected empty choices error, got: %v", err)
		}
	})

	t.Run("tolerates missing usage", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
		}))
		defer server.Close()

		client := NewClient(Config{APIKey: "test-key"})
		client.SetBaseURL(server.URL)
		client.SetHTTPClient(server.Client())

		resp, err := client.Chat(context.Background(), ChatRequest{UserPrompt: "test"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Usage.TotalTokens != 0 {
			t.Errorf("expected zero usage, got %d", resp.Usage.TotalTokens)
		}
	})

	t.Run("deadline exceeded maps to timeout sentinel", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()

		client := NewClient(Config{APIKey: "test-key"})
		client.SetBaseURL(server.URL)
		client.SetHTTPClient(server.Client())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := client.Chat(ctx, ChatRequest{UserPrompt: "test"})
		if err == nil {
			t.Fatal("expected error")
		}
		if !errors.Is(err, errors.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got: %v", err)
		}
	})
}

func TestClient_RetryLogic(t *testing.T) {
	t.Run("doesn't retry HTTP errors", func(t *testing.T) {
		requestCount := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestCount++
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewClient(Config{APIKey: "test-key"})
		client.SetBaseURL(server.URL)
		client.SetHTTPClient(server.Client())

		_, err := client.Chat(context.Background(), ChatRequest{
			UserPrompt: "test",
		})

		if err == nil {
			t.Fatal("expected error for HTTP 500")
		}
		if requestCount != 1 {
			t.Errorf("expected 1 request (no retries for HTTP errors), got %d", requestCount)
		}
	})

	t.Run("retryable error detection", func(t *testing.T) {
		if !isRetryableError(&net.DNSError{Err: "no such host", IsTimeout: true}) {
			t.Error("expected timeout DNS error to be retryable")
		}
		if isRetryableError(&net.DNSError{Err: "no such host", IsTimeout: false}) {
			t.Error("expected non-timeout DNS error to not be retryable")
		}
	})

	t.Run("error string matching", func(t *testing.T) {
		testCases := []struct {
			errorStr  string
			retryable bool
		}{
			{"connection reset by peer", true},
			{"connection refused", true},
			{"timeout", true},
			{"i/o timeout", true},
			{"network is unreachable", true},
			{"temporary failure", true},
			{"invalid json", false},
			{"unauthorized", false},
		}

		for _, tc := range testCases {
			err := &testError{msg: tc.errorStr}
			if got := isRetryableError(err); got != tc.retryable {
				t.Errorf("error %q: expected retryable=%v, got %v", tc.errorStr, tc.retryable, got)
			}
		}
	})
}

// testError is a simple error type for testing error string matching
type testError struct {
	msg string
}

func (e *testError) Error() string {
	return e.msg
}
