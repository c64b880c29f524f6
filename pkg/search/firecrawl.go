package search

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

const firecrawlBaseURL = "https://api.firecrawl.dev"

// Firecrawl calls the Firecrawl search and scrape APIs.
type Firecrawl struct {
	APIKey  string
	BaseURL string
	Logger  *slog.Logger
	client  *http.Client
}

func NewFirecrawl(apiKey string) *Firecrawl {
	return NewFirecrawlWithClient(apiKey, &http.Client{Timeout: 2 * defaultTimeout})
}

func NewFirecrawlWithClient(apiKey string, client *http.Client) *Firecrawl {
	return &Firecrawl{APIKey: apiKey, BaseURL: firecrawlBaseURL, Logger: slog.Default(), client: client}
}

func (f *Firecrawl) Name() string { return "firecrawl" }

func (f *Firecrawl) Search(ctx context.Context, query string) ([]SearchResult, error) {
	body := map[string]any{"query": query, "limit": maxResults}
	var response struct {
		Success bool `json:"success"`
		Data    []struct {
			URL         string `json:"url"`
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"data"`
		Error string `json:"error"`
	}
	if err := postJSON(ctx, f.client, f.BaseURL+"/v1/search", f.APIKey, body, &response); err != nil {
		return nil, swallow(f.Logger, f.Name(), "search", query, err)
	}
	if !response.Success {
		f.Logger.Warn("Firecrawl search unsuccessful", "query", query, "error", response.Error)
		return nil, nil
	}

	results := make([]SearchResult, 0, len(response.Data))
	for _, d := range response.Data {
		if strings.TrimSpace(d.URL) == "" {
			continue
		}
		results = append(results, SearchResult{Title: d.Title, URL: d.URL, Snippet: d.Description})
	}
	return results, nil
}

func (f *Firecrawl) FetchContent(ctx context.Context, url string) (*WebDocument, error) {
	body := map[string]any{
		"url":             url,
		"formats":         []string{"markdown"},
		"onlyMainContent": true,
	}
	var response struct {
		Success bool `json:"success"`
		Data    struct {
			Markdown string `json:"markdown"`
			Metadata struct {
				Title string `json:"title"`
			} `json:"metadata"`
		} `json:"data"`
		Error string `json:"error"`
	}
	if err := postJSON(ctx, f.client, f.BaseURL+"/v1/scrape", f.APIKey, body, &response); err != nil {
		return nil, swallow(f.Logger, f.Name(), "scrape", url, err)
	}
	text := strings.TrimSpace(response.Data.Markdown)
	if !response.Success || text == "" {
		f.Logger.Warn("Firecrawl scrape returned no content", "url", url, "error", response.Error)
		return nil, nil
	}
	return &WebDocument{Title: response.Data.Metadata.Title, Text: text}, nil
}
