package llmservice

import (
	"context"
	"errors"
	"strings"

	"pdf-rag/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainClient talks to Azure OpenAI (or any OpenAI-compatible endpoint)
// through langchaingo.
type LangChainClient struct {
	llm llms.Model
}

func NewLangChainClient(llmConfig *config.LLMConfig) (*LangChainClient, error) {
	log.Debug().Str("provider", llmConfig.Provider).Str("model", llmConfig.Model).Str("base_url", llmConfig.BaseURL).Msg("Creating completion client")

	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
		openai.WithModel(llmConfig.Model),
	}
	if llmConfig.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
	}
	if llmConfig.Provider == config.ProviderAzure {
		opts = append(opts, openai.WithAPIType(openai.APITypeAzure), openai.WithAPIVersion(llmConfig.APIVersion))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return &LangChainClient{llm: llm}, nil
}

func (c *LangChainClient) Generate(ctx context.Context, messages []Message) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(messageType(m.Role), m.Content))
	}

	res, err := c.llm.GenerateContent(ctx, content)
	if err != nil {
		return "", classify(err)
	}
	if len(res.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return res.Choices[0].Content, nil
}

func messageType(role string) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

var _ Client = (*LangChainClient)(nil)
