package llmservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"pdf-rag/internal/config"
)

type OpenAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAIClient(llmConfig *config.LLMConfig) *OpenAIClient {
	cfg := openai.DefaultConfig(llmConfig.Key)
	if llmConfig.BaseURL != "" {
		cfg.BaseURL = llmConfig.BaseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  llmConfig.Model,
	}
}

func (c *OpenAIClient) Generate(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: make([]openai.ChatCompletionMessage, len(messages)),
	}
	for i, msg := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyOpenAI(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAI(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	return classify(fmt.Errorf("create openai chat completion: %w", err))
}

var _ Client = (*OpenAIClient)(nil)
