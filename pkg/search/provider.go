// Package search adapts web search backends to one result shape and wraps
// them with pacing, throttle backoff and a concurrency cap.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mikeboe/research-helper/pkg/config"
)

// ErrRateLimited marks a provider response that signals throttling. It is
// the only error a Provider returns; other failures come back as empty
// results.
var ErrRateLimited = errors.New("rate limited")

// SearchResult is one hit returned by a provider.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// WebDocument is the text content of a fetched result.
type WebDocument struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Provider is a search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string) ([]SearchResult, error)
	FetchContent(ctx context.Context, url string) (*WebDocument, error)
}

const (
	defaultTimeout = 30 * time.Second
	maxResults     = 5
	userAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// New returns the provider selected by cfg.
func New(cfg config.Configuration) (Provider, error) {
	if err := cfg.ValidateSearch(); err != nil {
		return nil, err
	}
	switch cfg.SearchProvider {
	case config.ProviderTavily:
		return NewTavily(cfg.Credential(config.CredentialTavily)), nil
	case config.ProviderFirecrawl:
		return NewFirecrawl(cfg.Credential(config.CredentialFirecrawl)), nil
	case config.ProviderArxiv:
		a := NewArxiv()
		if key := cfg.Credential(config.CredentialMistral); key != "" {
			a.OCR = NewMistralOCR(key)
		}
		return a, nil
	}
	return nil, fmt.Errorf("unknown search provider %q", cfg.SearchProvider)
}

// statusError is a non-2xx response.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, e.Body)
}

// checkStatus converts a response status into an error. 429 wraps
// ErrRateLimited.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	err := &statusError{Code: resp.StatusCode, Body: string(body)}
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	return err
}

// postJSON sends body as JSON with a bearer token and decodes the response
// into out.
func postJSON(ctx context.Context, client *http.Client, url, apiKey string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// swallow logs err and drops it unless it signals throttling.
func swallow(logger *slog.Logger, provider, op, target string, err error) error {
	if errors.Is(err, ErrRateLimited) {
		return err
	}
	logger.Warn("Provider call failed", "provider", provider, "op", op, "target", target, "error", err)
	return nil
}
