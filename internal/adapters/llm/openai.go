package llm

import (
	"context"
	"errors"
	"math"

	"github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// greedyTemperature stands in for 0, which the request encoder omits and
// the API then reads as its default of 1.
const greedyTemperature = math.SmallestNonzeroFloat32

// NewOpenAI creates a client for the OpenAI chat completion API or a
// compatible server at cfg.BaseURL.
func NewOpenAI(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(oc)

	return newClient(ProviderOpenAI, cfg.Model, cfg.Timeout, func(ctx context.Context, prompt string) (string, error) {
		resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       cfg.Model,
			Temperature: greedyTemperature,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("no choices returned from API")
		}
		return resp.Choices[0].Message.Content, nil
	}), nil
}
