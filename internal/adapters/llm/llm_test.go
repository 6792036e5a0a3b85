package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		provider string
		model    string
		wantErr  error
	}{
		{"default is ollama", Config{}, ProviderOllama, DefaultOllamaModel, nil},
		{"ollama with model", Config{Provider: "Ollama", Model: "qwen2.5"}, ProviderOllama, "qwen2.5", nil},
		{"openai", Config{Provider: "openai", APIKey: "sk-test"}, ProviderOpenAI, DefaultOpenAIModel, nil},
		{"openai without key", Config{Provider: "openai"}, "", "", ErrMissingAPIKey},
		{"unknown", Config{Provider: "bedrock"}, "", "", ErrUnknownProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.provider, c.Provider())
			assert.Equal(t, tt.model, c.Model())
		})
	}
}

func TestClient_Generate(t *testing.T) {
	t.Run("returns the text", func(t *testing.T) {
		c := newClient("fake", "m", time.Second, func(_ context.Context, p string) (string, error) {
			return "echo: " + p, nil
		})
		out, err := c.Generate(context.Background(), "hi")
		require.NoError(t, err)
		assert.Equal(t, "echo: hi", out)
	})

	t.Run("empty answer is an error", func(t *testing.T) {
		c := newClient("fake", "m", time.Second, func(context.Context, string) (string, error) {
			return " \n", nil
		})
		_, err := c.Generate(context.Background(), "hi")
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("timeout surfaces as an error", func(t *testing.T) {
		c := newClient("fake", "m", 10*time.Millisecond, func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})
		_, err := c.Generate(context.Background(), "hi")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestOpenAI_Generate(t *testing.T) {
	var got struct {
		Model       string   `json:"model"`
		Temperature *float64 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "true"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 1, "total_tokens": 11}
		}`))
	}))
	defer srv.Close()

	c, err := NewOpenAI(Config{APIKey: "sk-test", BaseURL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)

	out, err := c.Generate(context.Background(), "Is this script irreversible?")
	require.NoError(t, err)
	assert.Equal(t, "true", out)
	assert.Equal(t, DefaultOpenAIModel, got.Model)
	require.NotNil(t, got.Temperature, "temperature is always sent")
	assert.InDelta(t, 0, *got.Temperature, 1e-9)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "Is this script irreversible?", got.Messages[0].Content)
}

func TestOpenAI_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "overloaded", "type": "server_error"}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAI(Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai")
}

func TestOllama_Generate(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		Options map[string]any `json:"options"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = w.Write([]byte(`{"model":"llama3","message":{"role":"assistant","content":"iptables -A INPUT -j DROP"},"done":true}` + "\n"))
	}))
	defer srv.Close()

	c, err := NewOllama(Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)

	out, err := c.Generate(context.Background(), "Write an iptables rule")
	require.NoError(t, err)
	assert.Equal(t, "iptables -A INPUT -j DROP", out)
	assert.Equal(t, DefaultOllamaModel, got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "Write an iptables rule", got.Messages[0].Content)
	require.Contains(t, got.Options, "temperature")
	assert.Equal(t, float64(0), got.Options["temperature"])
}
