package clients

import (
	"context"
	"errors"
	"testing"

	"github.com/mikeboe/research-helper/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeLLM struct {
	messages []llms.MessageContent
	resp     *llms.ContentResponse
	err      error
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	return f.resp, f.err
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, opts...)
}

type scriptedModel struct {
	calls   int
	errs    []error
	content string
}

func (s *scriptedModel) Invoke(context.Context, string, string) (string, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return "", s.errs[s.calls-1]
	}
	return s.content, nil
}

func TestLangChainInvoke(t *testing.T) {
	llm := &fakeLLM{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "answer"}}}}
	model := NewLangChain(llm)

	out, err := model.Invoke(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
	require.Len(t, llm.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, llm.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, llm.messages[1].Role)
}

func TestLangChainInvokeErrors(t *testing.T) {
	_, err := NewLangChain(&fakeLLM{resp: &llms.ContentResponse{}}).Invoke(context.Background(), "", "user")
	assert.ErrorIs(t, err, ErrEmptyResponse)

	boom := errors.New("boom")
	_, err = NewLangChain(&fakeLLM{err: boom}).Invoke(context.Background(), "", "user")
	assert.ErrorIs(t, err, boom)
}

func TestRetrying(t *testing.T) {
	boom := errors.New("boom")

	next := &scriptedModel{errs: []error{boom, boom}, content: "ok"}
	out, err := (&Retrying{Next: next, Attempts: 3}).Invoke(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, next.calls)

	next = &scriptedModel{errs: []error{boom, boom, boom, boom}}
	_, err = (&Retrying{Next: next, Attempts: 3}).Invoke(context.Background(), "s", "u")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, next.calls)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	cfg := config.Resolve(config.Overrides{Model: "mistral/large"}, func(string) string { return "" })
	_, err := New(context.Background(), cfg)
	assert.ErrorIs(t, err, config.ErrUnsupportedModel)
}

func TestNewRequiresCredential(t *testing.T) {
	cfg := config.Resolve(config.Overrides{Model: "openai/gpt-4o-mini"}, func(string) string { return "" })
	_, err := New(context.Background(), cfg)
	assert.ErrorIs(t, err, config.ErrMissingCredential)
}
