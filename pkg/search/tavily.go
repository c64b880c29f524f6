package search

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

const tavilyBaseURL = "https://api.tavily.com"

// Tavily calls the Tavily search and extract APIs.
type Tavily struct {
	APIKey  string
	BaseURL string
	// Depth controls Tavily's search_depth parameter (basic or advanced).
	Depth  string
	Logger *slog.Logger
	client *http.Client
	page   pageFetcher
}

func NewTavily(apiKey string) *Tavily {
	return NewTavilyWithClient(apiKey, &http.Client{Timeout: defaultTimeout})
}

// NewTavilyWithClient constructs a Tavily provider using the supplied HTTP
// client.
func NewTavilyWithClient(apiKey string, client *http.Client) *Tavily {
	return &Tavily{
		APIKey:  apiKey,
		BaseURL: tavilyBaseURL,
		Depth:   "basic",
		Logger:  slog.Default(),
		client:  client,
		page:    pageFetcher{client: client},
	}
}

func (t *Tavily) Name() string { return "tavily" }

func (t *Tavily) Search(ctx context.Context, query string) ([]SearchResult, error) {
	body := map[string]any{
		"query":        query,
		"search_depth": t.Depth,
		"max_results":  maxResults,
	}
	var response struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := postJSON(ctx, t.client, t.BaseURL+"/search", t.APIKey, body, &response); err != nil {
		return nil, swallow(t.Logger, t.Name(), "search", query, err)
	}

	results := make([]SearchResult, 0, len(response.Results))
	for _, r := range response.Results {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		results = append(results, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return results, nil
}

// FetchContent uses the extract endpoint and falls back to downloading the
// page when Tavily could not extract it.
func (t *Tavily) FetchContent(ctx context.Context, url string) (*WebDocument, error) {
	body := map[string]any{"urls": []string{url}}
	var response struct {
		Results []struct {
			URL        string `json:"url"`
			RawContent string `json:"raw_content"`
		} `json:"results"`
		FailedResults []struct {
			URL   string `json:"url"`
			Error string `json:"error"`
		} `json:"failed_results"`
	}
	if err := postJSON(ctx, t.client, t.BaseURL+"/extract", t.APIKey, body, &response); err != nil {
		return nil, swallow(t.Logger, t.Name(), "extract", url, err)
	}

	for _, r := range response.Results {
		if text := strings.TrimSpace(r.RawContent); text != "" {
			return &WebDocument{Text: text}, nil
		}
	}
	for _, f := range response.FailedResults {
		t.Logger.Debug("Tavily could not extract page", "url", f.URL, "error", f.Error)
	}

	doc, err := t.page.fetch(ctx, url)
	if err != nil {
		return nil, swallow(t.Logger, t.Name(), "fetch", url, err)
	}
	if doc.Text == "" {
		return nil, nil
	}
	return doc, nil
}
