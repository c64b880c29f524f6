package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const arxivBaseURL = "https://export.arxiv.org/api/query"

// ArxivEntry holds one entry of the arXiv Atom feed.
type ArxivEntry struct {
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []ArxivLink `xml:"link"`
}

type ArxivLink struct {
	Href  string `xml:"href,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}

// ArxivFeed is the arXiv API response.
type ArxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []ArxivEntry `xml:"entry"`
}

// Arxiv searches arXiv papers. Paper text comes from Mistral OCR when OCR is
// set, otherwise from the abstract.
type Arxiv struct {
	BaseURL    string
	MaxResults int
	OCR        *MistralOCR
	Logger     *slog.Logger
	client     *http.Client
}

func NewArxiv() *Arxiv {
	return NewArxivWithClient(&http.Client{Timeout: defaultTimeout})
}

func NewArxivWithClient(client *http.Client) *Arxiv {
	return &Arxiv{BaseURL: arxivBaseURL, MaxResults: maxResults, Logger: slog.Default(), client: client}
}

func (a *Arxiv) Name() string { return "arxiv" }

func (a *Arxiv) Search(ctx context.Context, query string) ([]SearchResult, error) {
	params := url.Values{}
	params.Add("search_query", "all:"+query)
	params.Add("max_results", strconv.Itoa(a.MaxResults))
	params.Add("start", "0")

	feed, err := a.query(ctx, params)
	if err != nil {
		return nil, swallow(a.Logger, a.Name(), "search", query, err)
	}

	results := make([]SearchResult, 0, len(feed.Entry))
	for _, entry := range feed.Entry {
		if entry.ID == "" {
			continue
		}
		results = append(results, SearchResult{
			Title:   collapse(entry.Title),
			URL:     entry.ID,
			Snippet: collapse(entry.Summary),
		})
	}
	return results, nil
}

func (a *Arxiv) FetchContent(ctx context.Context, link string) (*WebDocument, error) {
	id := arxivID(link)
	if id == "" {
		a.Logger.Warn("Not an arXiv link", "url", link)
		return nil, nil
	}

	params := url.Values{}
	params.Add("id_list", id)
	feed, err := a.query(ctx, params)
	if err != nil {
		return nil, swallow(a.Logger, a.Name(), "abstract", link, err)
	}
	if len(feed.Entry) == 0 {
		return nil, nil
	}
	entry := feed.Entry[0]
	doc := &WebDocument{
		Title: collapse(entry.Title),
		Text:  fmt.Sprintf("Published: %s\n\n%s", entry.Published, strings.TrimSpace(entry.Summary)),
	}

	if a.OCR != nil {
		text, err := a.OCR.Scrape(ctx, pdfLink(entry, id))
		if err != nil {
			if err := swallow(a.Logger, "mistral", "ocr", link, err); err != nil {
				return nil, err
			}
		} else if strings.TrimSpace(text) != "" {
			doc.Text = text
		}
	}
	return doc, nil
}

func (a *Arxiv) query(ctx context.Context, params url.Values) (*ArxivFeed, error) {
	apiURL := a.BaseURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	// arXiv answers bursts with 503 "Rate exceeded."
	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, fmt.Errorf("arxiv http %d: %w", resp.StatusCode, ErrRateLimited)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	var feed ArxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal XML: %w", err)
	}
	return &feed, nil
}

// arxivID returns the paper id of an abs or pdf link.
func arxivID(link string) string {
	for _, marker := range []string{"/abs/", "/pdf/"} {
		if _, id, ok := strings.Cut(link, marker); ok {
			id = strings.TrimSuffix(strings.TrimSpace(id), ".pdf")
			return strings.Trim(id, "/")
		}
	}
	return ""
}

func pdfLink(entry ArxivEntry, id string) string {
	for _, link := range entry.Link {
		if link.Type == "application/pdf" || link.Title == "pdf" {
			return strings.Replace(link.Href, "http://", "https://", 1)
		}
	}
	return "https://arxiv.org/pdf/" + id
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
