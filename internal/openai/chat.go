package openai

import (
	"context"
	"errors"

	"github.com/cloo-solutions/supportkb/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

var errNoChoices = errors.New("no choices in chat completion response")

// ChatCompleter answers a single system+user exchange.
type ChatCompleter struct {
	api         ChatAPI
	model       string
	temperature float32
	retry       retryPolicy
}

func NewChatCompleter(cfg Config) *ChatCompleter {
	return NewChatCompleterWithAPI(NewAPIClient(cfg.APIKey, cfg.BaseURL), cfg)
}

func NewChatCompleterWithAPI(api ChatAPI, cfg Config) *ChatCompleter {
	cfg = cfg.withDefaults()
	return &ChatCompleter{
		api:         api,
		model:       cfg.ChatModel,
		temperature: 0.2,
		retry: retryPolicy{
			maxAttempts:   cfg.MaxAttempts,
			initialDelay:  cfg.InitialDelay,
			backoffFactor: cfg.BackoffFactor,
		},
	}
}

// Complete returns the assistant reply. Failures are domain errors with a
// transient or permanent provider code.
func (c *ChatCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}

	var resp openai.ChatCompletionResponse
	err := c.retry.withRetry(ctx, func() error {
		var err error
		resp, err = c.api.CreateChatCompletion(ctx, req)
		return err
	})
	if err != nil {
		code := domain.ErrCodePermanentProvider
		if isTransient(err) {
			code = domain.ErrCodeTransientProvider
		}
		return "", domain.NewDomainErrorWithCause(code, "chat completion failed", err)
	}

	if len(resp.Choices) == 0 {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeTransientProvider, "chat completion failed", errNoChoices)
	}
	return resp.Choices[0].Message.Content, nil
}

// NoopCompleter is used when no language model is configured. It declines to
// answer instead of failing the request.
type NoopCompleter struct{}

const NoModelAnswer = "Answer generation is not configured. The most relevant articles are listed as sources."

func (NoopCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	return NoModelAnswer, nil
}
