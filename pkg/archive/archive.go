// Package archive keeps finished research reports searchable. Reports are
// split into chunks, embedded and stored in pgvector.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/mikeboe/research-helper/pkg/vectorstore"
)

// DefaultTopK is used when a search does not ask for a result count.
const DefaultTopK = 5

var ErrEmptyQuery = errors.New("search query is empty")

type embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

type chunkStore interface {
	AddChunks(ctx context.Context, chunks []vectorstore.Chunk) error
	SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, filter map[string]any) ([]vectorstore.Match, error)
	ChunksByMetadata(ctx context.Context, filter map[string]any) ([]vectorstore.Chunk, error)
}

type splitter interface {
	SplitText(text string) ([]string, error)
}

// Archive stores and searches reports.
type Archive struct {
	Store    chunkStore
	Embedder embedder
	Splitter splitter
	Logger   *slog.Logger
	// TopK is the result count of searches that do not ask for one.
	TopK int
}

func New(store chunkStore, emb embedder, sp splitter) *Archive {
	return &Archive{Store: store, Embedder: emb, Splitter: sp, Logger: slog.Default(), TopK: DefaultTopK}
}

// Add chunks and embeds report and stores it under jobID.
func (a *Archive) Add(ctx context.Context, jobID uuid.UUID, topic, report string) (int, error) {
	texts, err := a.Splitter.SplitText(report)
	if err != nil {
		return 0, fmt.Errorf("failed to split report: %w", err)
	}
	if len(texts) == 0 {
		return 0, nil
	}

	vecs, err := a.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed report: %w", err)
	}
	if len(vecs) != len(texts) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(texts))
	}

	chunks := make([]vectorstore.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = vectorstore.Chunk{
			Content:   text,
			Embedding: vecs[i],
			Metadata: map[string]any{
				"job_id": jobID.String(),
				"topic":  topic,
				"chunk":  i,
			},
		}
	}
	if err := a.Store.AddChunks(ctx, chunks); err != nil {
		return 0, fmt.Errorf("failed to store report: %w", err)
	}
	a.Logger.Info("Archived report", "job_id", jobID, "chunks", len(chunks))
	return len(chunks), nil
}

// SearchArgs are the arguments of the search_reports tool.
type SearchArgs struct {
	Query string `json:"query"`
	TopK  int    `json:"topK,omitempty"`
	JobID string `json:"jobId,omitempty"`
}

// Hit is one archived chunk matching a search.
type Hit struct {
	JobID   string  `json:"jobId"`
	Topic   string  `json:"topic"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Search returns the archived chunks closest to the query text.
func (a *Archive) Search(ctx context.Context, args SearchArgs) ([]Hit, error) {
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if args.TopK <= 0 {
		args.TopK = max(a.TopK, 1)
	}

	a.Logger.Info("Search archive", "query", query, "topK", args.TopK, "job_id", args.JobID)
	vec, err := a.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	var filter map[string]any
	if args.JobID != "" {
		filter = map[string]any{"job_id": args.JobID}
	}
	matches, err := a.Store.SimilaritySearch(ctx, vec, args.TopK, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	hits := make([]Hit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, Hit{
			JobID:   metaString(m.Chunk.Metadata, "job_id"),
			Topic:   metaString(m.Chunk.Metadata, "topic"),
			Content: m.Chunk.Content,
			Score:   m.Score,
		})
	}
	return hits, nil
}

// Chunks returns the archived text of one job in chunk order.
func (a *Archive) Chunks(ctx context.Context, jobID uuid.UUID) ([]string, error) {
	chunks, err := a.Store.ChunksByMetadata(ctx, map[string]any{"job_id": jobID.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to find content: %w", err)
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		return metaInt(chunks[i].Metadata, "chunk") < metaInt(chunks[j].Metadata, "chunk")
	})
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c.Content)
	}
	return out, nil
}

// FormatHits renders hits as plain text for tool responses.
func FormatHits(hits []Hit) string {
	if len(hits) == 0 {
		return "No archived reports matched the query."
	}
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, fmt.Sprintf("[Topic]: %s\n[Job]: %s\n[Score]: %.3f\n[Content]: %s", h.Topic, h.JobID, h.Score, h.Content))
	}
	return strings.Join(parts, "\n\n")
}

func metaString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// metaInt reads a number decoded from JSON metadata.
func metaInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
