package archive

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	textsplitter "github.com/mikeboe/research-helper/pkg/splitter"
	"github.com/mikeboe/research-helper/pkg/vectorstore"
)

type fakeEmbedder struct {
	err error
}

func (f fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text))}, nil
}

func (f fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

type memStore struct {
	chunks     []vectorstore.Chunk
	lastFilter map[string]any
	lastK      int
}

func (m *memStore) AddChunks(_ context.Context, chunks []vectorstore.Chunk) error {
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *memStore) SimilaritySearch(_ context.Context, _ []float32, topK int, filter map[string]any) ([]vectorstore.Match, error) {
	m.lastFilter, m.lastK = filter, topK
	var out []vectorstore.Match
	for _, c := range m.chunks {
		if len(out) == topK {
			break
		}
		out = append(out, vectorstore.Match{Chunk: c, Score: 0.5})
	}
	return out, nil
}

func (m *memStore) ChunksByMetadata(_ context.Context, filter map[string]any) ([]vectorstore.Chunk, error) {
	var out []vectorstore.Chunk
	for i := len(m.chunks) - 1; i >= 0; i-- {
		if m.chunks[i].Metadata["job_id"] == filter["job_id"] {
			out = append(out, m.chunks[i])
		}
	}
	return out, nil
}

type lineSplitter struct{}

func (lineSplitter) SplitText(text string) ([]string, error) {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

func TestAddAndChunks(t *testing.T) {
	store := &memStore{}
	a := New(store, fakeEmbedder{}, lineSplitter{})
	job := uuid.New()

	n, err := a.Add(context.Background(), job, "Go", "# Go\nfirst\nsecond")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, store.chunks, 3)
	assert.Equal(t, job.String(), store.chunks[1].Metadata["job_id"])
	assert.Equal(t, "Go", store.chunks[1].Metadata["topic"])
	assert.Equal(t, []float32{5}, store.chunks[1].Embedding)

	chunks, err := a.Chunks(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, []string{"# Go", "first", "second"}, chunks)
}

func TestAddEmptyReport(t *testing.T) {
	store := &memStore{}
	n, err := New(store, fakeEmbedder{}, lineSplitter{}).Add(context.Background(), uuid.New(), "t", "\n\n")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.chunks)
}

func TestAddEmbedError(t *testing.T) {
	a := New(&memStore{}, fakeEmbedder{err: errors.New("quota")}, lineSplitter{})
	_, err := a.Add(context.Background(), uuid.New(), "t", "text")
	assert.ErrorContains(t, err, "quota")
}

func TestSearch(t *testing.T) {
	store := &memStore{}
	a := New(store, fakeEmbedder{}, lineSplitter{})
	job := uuid.New()
	_, err := a.Add(context.Background(), job, "Go", "one\ntwo\nthree\nfour\nfive\nsix")
	require.NoError(t, err)

	hits, err := a.Search(context.Background(), SearchArgs{Query: "go"})
	require.NoError(t, err)
	assert.Len(t, hits, DefaultTopK)
	assert.Nil(t, store.lastFilter)
	assert.Equal(t, "Go", hits[0].Topic)
	assert.Equal(t, job.String(), hits[0].JobID)

	_, err = a.Search(context.Background(), SearchArgs{Query: "go", TopK: 2, JobID: job.String()})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"job_id": job.String()}, store.lastFilter)
	assert.Equal(t, 2, store.lastK)

	_, err = a.Search(context.Background(), SearchArgs{Query: "  "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestFormatHits(t *testing.T) {
	assert.Equal(t, "No archived reports matched the query.", FormatHits(nil))
	got := FormatHits([]Hit{{JobID: "j", Topic: "Go", Content: "c", Score: 0.25}})
	assert.Equal(t, "[Topic]: Go\n[Job]: j\n[Score]: 0.250\n[Content]: c", got)
}

func TestWithReportSplitter(t *testing.T) {
	store := &memStore{}
	a := New(store, fakeEmbedder{}, textsplitter.NewReportSplitter(200, 20))
	report := "# Topic\n\n## Intro\n\n" + strings.Repeat("Intro text. ", 30) + "\n\n## Body\n\n" + strings.Repeat("Body text. ", 30)

	n, err := a.Add(context.Background(), uuid.New(), "Topic", report)
	require.NoError(t, err)
	assert.Greater(t, n, 1)
	for _, c := range store.chunks {
		assert.NotEmpty(t, strings.TrimSpace(c.Content))
	}
}
