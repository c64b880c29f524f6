package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mikeboe/research-helper/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTavilySearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "golang", body["query"])
		w.Write([]byte(`{"results":[{"title":"Go","url":"https://go.dev","content":"The Go language"},{"title":"no url"}]}`))
	}))
	defer srv.Close()

	tv := NewTavilyWithClient("key", srv.Client())
	tv.BaseURL = srv.URL

	results, err := tv.Search(context.Background(), "golang")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, SearchResult{Title: "Go", URL: "https://go.dev", Snippet: "The Go language"}, results[0])
}

func TestTavilyFailures(t *testing.T) {
	status := http.StatusInternalServerError
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	tv := NewTavilyWithClient("key", srv.Client())
	tv.BaseURL = srv.URL

	results, err := tv.Search(context.Background(), "q")
	assert.NoError(t, err)
	assert.Empty(t, results)

	status = http.StatusTooManyRequests
	_, err = tv.Search(context.Background(), "q")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestTavilyFetchContent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/extract", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			URLs []string `json:"urls"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if strings.HasSuffix(body.URLs[0], "/good") {
			w.Write([]byte(`{"results":[{"url":"x","raw_content":"extracted text"}]}`))
			return
		}
		w.Write([]byte(`{"results":[],"failed_results":[{"url":"x","error":"blocked"}]}`))
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Page</title></head><body><p>Direct body</p></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tv := NewTavilyWithClient("key", srv.Client())
	tv.BaseURL = srv.URL

	doc, err := tv.FetchContent(context.Background(), srv.URL+"/good")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "extracted text", doc.Text)

	doc, err = tv.FetchContent(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "Page", doc.Title)
	assert.Equal(t, "Direct body", doc.Text)
}

func TestFirecrawl(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":[{"url":"https://a.example","title":"A","description":"about a"}]}`))
	})
	mux.HandleFunc("/v1/scrape", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"markdown":"# A\n\nbody","metadata":{"title":"A page"}}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fc := NewFirecrawlWithClient("key", srv.Client())
	fc.BaseURL = srv.URL

	results, err := fc.Search(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "about a", results[0].Snippet)

	doc, err := fc.FetchContent(context.Background(), "https://a.example")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "A page", doc.Title)
	assert.Equal(t, "# A\n\nbody", doc.Text)
}

const arxivFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2101.00001v1</id>
    <title>A   Paper
      Title</title>
    <summary>  The abstract.  </summary>
    <published>2021-01-01T00:00:00Z</published>
    <link href="http://arxiv.org/pdf/2101.00001v1" title="pdf" type="application/pdf"/>
  </entry>
</feed>`

func TestArxiv(t *testing.T) {
	var ocrCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/query", func(w http.ResponseWriter, r *http.Request) {
		if q := r.URL.Query().Get("search_query"); q != "" {
			assert.Equal(t, "all:transformers", q)
		} else {
			assert.Equal(t, "2101.00001v1", r.URL.Query().Get("id_list"))
		}
		w.Write([]byte(arxivFeed))
	})
	mux.HandleFunc("/ocr", func(w http.ResponseWriter, r *http.Request) {
		ocrCalls.Add(1)
		var body struct {
			Document map[string]string `json:"document"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://arxiv.org/pdf/2101.00001v1", body.Document["document_url"])
		w.Write([]byte(`{"pages":[{"index":0,"markdown":"full text"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := NewArxivWithClient(srv.Client())
	a.BaseURL = srv.URL + "/api/query"

	results, err := a.Search(context.Background(), "transformers")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "A Paper Title", results[0].Title)
	assert.Equal(t, "The abstract.", results[0].Snippet)

	doc, err := a.FetchContent(context.Background(), results[0].URL)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Contains(t, doc.Text, "The abstract.")
	assert.Zero(t, ocrCalls.Load())

	a.OCR = NewMistralOCR("mistral")
	a.OCR.BaseURL = srv.URL + "/ocr"
	doc, err = a.FetchContent(context.Background(), results[0].URL)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "- Page 0 -\nfull text", doc.Text)
	assert.EqualValues(t, 1, ocrCalls.Load())
}

func TestArxivThrottle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewArxivWithClient(srv.Client())
	a.BaseURL = srv.URL
	_, err := a.Search(context.Background(), "q")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestArxivID(t *testing.T) {
	assert.Equal(t, "2101.00001v1", arxivID("http://arxiv.org/abs/2101.00001v1"))
	assert.Equal(t, "2101.00001", arxivID("https://arxiv.org/pdf/2101.00001.pdf"))
	assert.Equal(t, "", arxivID("https://example.com/paper"))
}

func TestHTMLText(t *testing.T) {
	page := `<html><head><title> T </title><style>p{}</style></head>
<body><nav>menu</nav><h1>Heading</h1><p>First   paragraph
with <b>bold</b> text.</p><script>alert(1)</script><ul><li>one</li><li>two</li></ul></body></html>`

	doc := HTMLDocument(page)
	assert.Equal(t, "T", doc.Title)
	assert.Equal(t, "Heading\nFirst paragraph\nwith bold text.\none\ntwo", doc.Text)
	assert.Equal(t, doc.Text, HTMLText(page))
}

func TestNew(t *testing.T) {
	env := func(values map[string]string) config.Lookup {
		return func(k string) string { return values[k] }
	}

	_, err := New(config.Resolve(config.Overrides{SearchProvider: "tavily"}, env(nil)))
	assert.ErrorIs(t, err, config.ErrMissingCredential)

	p, err := New(config.Resolve(config.Overrides{SearchProvider: "firecrawl"}, env(map[string]string{"FIRECRAWL_API_KEY": "f"})))
	require.NoError(t, err)
	assert.Equal(t, "firecrawl", p.Name())

	p, err = New(config.Resolve(config.Overrides{SearchProvider: "arxiv"}, env(map[string]string{"MISTRAL_API_KEY": "m"})))
	require.NoError(t, err)
	require.IsType(t, &Arxiv{}, p)
	assert.NotNil(t, p.(*Arxiv).OCR)
}

type fakeProvider struct {
	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
	search   func(n int32) ([]SearchResult, error)
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Search(ctx context.Context, query string) ([]SearchResult, error) {
	n := f.calls.Add(1)
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.peak.Load()
		if cur <= peak || f.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	return f.search(n)
}

func (f *fakeProvider) FetchContent(ctx context.Context, url string) (*WebDocument, error) {
	f.calls.Add(1)
	return nil, ErrRateLimited
}

func limitedFor(p Provider, concurrency int) *Limited {
	cfg := config.Resolve(config.Overrides{Concurrency: concurrency}, func(string) string { return "" })
	l := NewLimited(p, cfg)
	l.RetryBase = time.Millisecond
	l.limiter.SetLimit(1000)
	return l
}

func TestLimitedBackoffBound(t *testing.T) {
	p := &fakeProvider{search: func(int32) ([]SearchResult, error) { return nil, ErrRateLimited }}
	l := limitedFor(p, 1)

	assert.Empty(t, l.Search(context.Background(), "q"))
	assert.EqualValues(t, 1+l.MaxRetries, p.calls.Load())

	p.calls.Store(0)
	assert.Nil(t, l.FetchContent(context.Background(), "https://x"))
	assert.EqualValues(t, 1+l.MaxRetries, p.calls.Load())
}

func TestLimitedRecoversAfterThrottle(t *testing.T) {
	p := &fakeProvider{search: func(n int32) ([]SearchResult, error) {
		if n < 3 {
			return nil, ErrRateLimited
		}
		return []SearchResult{{URL: "https://ok"}}, nil
	}}
	l := limitedFor(p, 1)

	results := l.Search(context.Background(), "q")
	require.Len(t, results, 1)
	assert.EqualValues(t, 3, p.calls.Load())
}

func TestLimitedConcurrencyCap(t *testing.T) {
	p := &fakeProvider{search: func(int32) ([]SearchResult, error) { return nil, nil }}
	l := limitedFor(p, 2)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			l.Search(context.Background(), "q")
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	assert.LessOrEqual(t, p.peak.Load(), int32(2))
	assert.EqualValues(t, 8, p.calls.Load())
}
