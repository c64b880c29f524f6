// Package clients builds the language model clients used by the research
// engine.
package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
)

// Model invokes a language model with a system and a user prompt.
type Model interface {
	Invoke(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ErrEmptyResponse is returned when the model produced no choices.
var ErrEmptyResponse = errors.New("llm returned no choices")

// LangChain adapts a langchaingo model to Model.
type LangChain struct {
	LLM     llms.Model
	Options []llms.CallOption
	Logger  *slog.Logger
}

func NewLangChain(llm llms.Model, opts ...llms.CallOption) *LangChain {
	return &LangChain{LLM: llm, Options: opts, Logger: slog.Default()}
}

func (l *LangChain) Invoke(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := make([]llms.MessageContent, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, userPrompt))

	if l.Logger != nil {
		l.Logger.Debug("Invoking model", "system_chars", len(systemPrompt), "user_chars", len(userPrompt))
	}

	resp, err := l.LLM.GenerateContent(ctx, messages, l.Options...)
	if err != nil {
		return "", fmt.Errorf("llm generation failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}
