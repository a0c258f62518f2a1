package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pdf-rag/internal/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrRateLimited marks a completion failure caused by the service throttling
// the caller (HTTP 429).
var ErrRateLimited = errors.New("rate limited")

type Message struct {
	Role    string
	Content string
}

// Client is a chat-completion service.
type Client interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

func NewClient(cfg *config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case config.ProviderAzure:
		return NewLangChainClient(cfg)
	case config.ProviderOpenAI:
		if cfg.Key == "" {
			return nil, fmt.Errorf("openai provider selected but no api key set")
		}
		return NewOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

// IsRateLimited reports whether err is a throttling error.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// classify wraps provider errors whose text carries a 429 so callers can test
// them with IsRateLimited.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrRateLimited) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") {
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	return err
}
