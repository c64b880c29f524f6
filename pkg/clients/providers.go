package clients

import (
	"context"
	"fmt"

	"github.com/mikeboe/research-helper/pkg/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// GoogleAI builds a Gemini client.
// See https://ai.google.dev/gemini-api/docs/models/gemini for possible models.
func GoogleAI(ctx context.Context, apiKey, model string) (llms.Model, error) {
	return googleai.New(ctx, googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(model))
}

func OpenAI(apiKey, model string) (llms.Model, error) {
	return openai.New(openai.WithToken(apiKey), openai.WithModel(model))
}

func Anthropic(apiKey, model string) (llms.Model, error) {
	return anthropic.New(anthropic.WithToken(apiKey), anthropic.WithModel(model))
}

// New builds the model named by cfg.Model, wrapped with retries.
func New(ctx context.Context, cfg config.Configuration) (Model, error) {
	if err := cfg.ValidateModel(); err != nil {
		return nil, err
	}
	provider, name := cfg.ModelProvider()

	var build func(apiKey string) (llms.Model, error)
	switch provider {
	case config.CredentialGoogle:
		build = func(apiKey string) (llms.Model, error) { return GoogleAI(ctx, apiKey, name) }
	case config.CredentialOpenAI:
		build = func(apiKey string) (llms.Model, error) { return OpenAI(apiKey, name) }
	case config.CredentialAnthropic:
		build = func(apiKey string) (llms.Model, error) { return Anthropic(apiKey, name) }
	default:
		return nil, fmt.Errorf("model %q: %w", cfg.Model, config.ErrUnsupportedModel)
	}

	llm, err := build(cfg.Credential(provider))
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", provider, err)
	}
	return WithRetry(NewLangChain(llm)), nil
}
