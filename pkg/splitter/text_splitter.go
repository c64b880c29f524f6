package splitter

import (
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// TextSplitter cuts Markdown reports into overlapping chunks for the
// archive.
type TextSplitter struct {
	markdown  textsplitter.TextSplitter
	recursive textsplitter.TextSplitter
}

// NewReportSplitter splits on Markdown structure first and falls back to the
// recursive character splitter.
func NewReportSplitter(chunkSize, chunkOverlap int) *TextSplitter {
	chunkOverlap = min(chunkOverlap, chunkSize/2)
	return &TextSplitter{
		markdown: textsplitter.NewMarkdownTextSplitter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
		recursive: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

// SplitText splits text into non-empty chunks.
func (ts *TextSplitter) SplitText(text string) ([]string, error) {
	chunks, err := ts.markdown.SplitText(text)
	if err != nil || len(chunks) == 0 {
		chunks, err = ts.recursive.SplitText(text)
		if err != nil {
			return nil, err
		}
	}
	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out, nil
}
