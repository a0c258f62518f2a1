package summarizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"pdf-rag/internal/config"
	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/models"
)

var ErrRetriesExhausted = errors.New("exceeded maximum retries due to rate limiting")

// Summary is the outcome of one summarization. Err is nil on success.
type Summary struct {
	Text string
	Err  error
}

// Value is the string stored alongside a document: the summary on success,
// otherwise the failure text.
func (s Summary) Value() string {
	switch {
	case s.Err == nil:
		return s.Text
	case errors.Is(s.Err, ErrRetriesExhausted):
		return models.SummaryRetriesExhaustedText
	default:
		return models.SummaryErrorText
	}
}

type Summarizer struct {
	client       llmservice.Client
	maxAttempts  int
	initialDelay time.Duration
	limiter      *rate.Limiter
	sleep        func(ctx context.Context, d time.Duration) error
}

func New(client llmservice.Client, cfg config.SummarizerConfig) *Summarizer {
	s := &Summarizer{
		client:       client,
		maxAttempts:  cfg.MaxRetries,
		initialDelay: cfg.InitialDelay,
		sleep:        sleepContext,
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = 5
	}
	if s.initialDelay <= 0 {
		s.initialDelay = time.Second
	}
	if cfg.RequestsPerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return s
}

// Summarize asks the model for a summary of content. Rate-limited attempts are
// retried after 1, 2, 4, ... times the initial delay; any other failure ends
// the call at once.
func (s *Summarizer) Summarize(ctx context.Context, content string) Summary {
	messages := []llmservice.Message{
		{Role: llmservice.RoleSystem, Content: models.SummarySystemPrompt},
		{Role: llmservice.RoleUser, Content: fmt.Sprintf(models.SummaryPromptTemplate, content)},
	}

	delay := s.initialDelay
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return Summary{Err: err}
			}
		}

		text, err := s.client.Generate(ctx, messages)
		if err == nil {
			return Summary{Text: text}
		}
		if !llmservice.IsRateLimited(err) {
			log.Error().Err(err).Msg("Error generating summary")
			return Summary{Err: err}
		}

		log.Warn().Int("attempt", attempt).Dur("retry_in", delay).Msg("Rate limit exceeded")
		if err := s.sleep(ctx, delay); err != nil {
			return Summary{Err: err}
		}
		delay *= 2
	}
	return Summary{Err: ErrRetriesExhausted}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
