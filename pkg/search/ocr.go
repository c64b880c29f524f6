package search

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const mistralOCRURL = "https://api.mistral.ai/v1/ocr"

// MistralOCR extracts the text of PDF documents with the Mistral OCR API.
type MistralOCR struct {
	APIKey  string
	BaseURL string
	Model   string
	client  *http.Client
}

type ocrPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type ocrResponse struct {
	Pages []ocrPage `json:"pages"`
}

func NewMistralOCR(apiKey string) *MistralOCR {
	return &MistralOCR{
		APIKey:  apiKey,
		BaseURL: mistralOCRURL,
		Model:   "mistral-ocr-latest",
		client:  &http.Client{Timeout: 4 * defaultTimeout},
	}
}

// Scrape returns the markdown of every page of the PDF at url.
func (m *MistralOCR) Scrape(ctx context.Context, url string) (string, error) {
	reqBody := map[string]any{
		"model": m.Model,
		"document": map[string]string{
			"type":         "document_url",
			"document_url": url,
		},
		"include_image_base64": false,
	}
	var resp ocrResponse
	if err := postJSON(ctx, m.client, m.BaseURL, m.APIKey, reqBody, &resp); err != nil {
		return "", fmt.Errorf("ocr %s: %w", url, err)
	}

	var b strings.Builder
	for _, page := range resp.Pages {
		fmt.Fprintf(&b, "- Page %d -\n", page.Index)
		b.WriteString(page.Markdown)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String()), nil
}
