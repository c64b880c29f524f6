package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

const maxPageBytes = 2 << 20

var (
	skippedElements = map[string]bool{
		"script": true, "style": true, "noscript": true, "nav": true,
		"header": true, "footer": true, "svg": true, "iframe": true, "template": true,
	}
	blockElements = map[string]bool{
		"p": true, "div": true, "section": true, "article": true, "main": true,
		"br": true, "li": true, "ul": true, "ol": true, "tr": true, "table": true,
		"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
		"pre": true, "blockquote": true,
	}
	reSpaces = regexp.MustCompile(`[ \t\f\v\r]+`)
)

// HTMLText returns the readable text of an HTML page.
func HTMLText(body string) string {
	_, text := parseHTML(body)
	return text
}

// HTMLDocument returns the title and readable text of an HTML page.
func HTMLDocument(body string) *WebDocument {
	title, text := parseHTML(body)
	return &WebDocument{Title: title, Text: text}
}

func parseHTML(body string) (title, text string) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", strings.TrimSpace(body)
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.Data == "title" && title == "" && n.FirstChild != nil {
				title = strings.TrimSpace(n.FirstChild.Data)
				return
			}
			if skippedElements[n.Data] {
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			b.WriteByte('\n')
		}
	}
	walk(doc)

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		line = strings.TrimSpace(reSpaces.ReplaceAllString(line, " "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return title, strings.Join(lines, "\n")
}

// pageFetcher downloads a page directly and converts it to text. Providers
// use it when their own content endpoint returns nothing.
type pageFetcher struct {
	client *http.Client
}

func (f pageFetcher) fetch(ctx context.Context, url string) (*WebDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSpace(url), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "html") {
		return &WebDocument{Text: strings.TrimSpace(string(body))}, nil
	}
	return HTMLDocument(string(body)), nil
}
