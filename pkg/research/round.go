package research

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/mikeboe/research-helper/pkg/extract"
	"github.com/mikeboe/research-helper/pkg/search"
)

// roundProgress reports progress by completed work units so concurrent
// workers can never move the bar backwards.
type roundProgress struct {
	mu       sync.Mutex
	done     int
	total    int
	bar      band
	progress *Progress
}

func (r *roundProgress) complete(units int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = min(r.done+units, r.total)
	r.progress.Report(message, r.bar.at(float64(r.done)/float64(r.total)))
}

// runRound executes up to Breadth queries with bounded concurrency and
// returns the findings of this round in completion order. A failing query or
// source is logged and skipped.
func (e *Engine) runRound(ctx context.Context, queries []string, topic string, bar band) []string {
	ctx, span := e.tracer.Start(ctx, "research.round")
	defer span.End()

	if len(queries) > e.cfg.Breadth {
		queries = queries[:max(e.cfg.Breadth, 1)]
	}
	topK := max(e.cfg.TopK, 1)
	rp := &roundProgress{total: max(len(queries)*(1+topK), 1), bar: bar, progress: e.progress}

	var (
		mu       sync.Mutex
		findings []string
	)
	var g errgroup.Group
	g.SetLimit(max(e.cfg.Concurrency, 1))

	for _, query := range queries {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("Query panicked", "query", query, "panic", r)
				}
			}()
			for _, f := range e.runQuery(ctx, query, topic, topK, rp) {
				mu.Lock()
				findings = append(findings, f)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(attribute.Int("research.queries", len(queries)), attribute.Int("research.findings", len(findings)))
	return findings
}

// runQuery searches one query and analyses its top results.
func (e *Engine) runQuery(ctx context.Context, query, topic string, topK int, rp *roundProgress) []string {
	results := e.search(ctx, query)
	if len(results) > topK {
		results = results[:topK]
	}
	rp.complete(1+topK-len(results), fmt.Sprintf("Searched: %s", query))
	if len(results) == 0 {
		e.logger.Warn("No search results", "query", query)
		return nil
	}

	var out []string
	for _, result := range results {
		finding, ok := e.analyzeResult(ctx, topic, result)
		rp.complete(1, fmt.Sprintf("Analyzed: %s", displayTitle(result)))
		if ok {
			out = append(out, finding)
		}
	}
	return out
}

// search consults the run's cache before calling the provider. Keys are the
// exact query text.
func (e *Engine) search(ctx context.Context, query string) []search.SearchResult {
	if results, ok := e.state.cached(query); ok {
		e.logger.Debug("Search cache hit", "query", query)
		return results
	}
	results := e.fetcher.Search(ctx, query)
	if len(results) > 0 {
		e.state.cache(query, results)
	}
	return results
}

// analyzeResult fetches one source and asks the model to analyse it.
func (e *Engine) analyzeResult(ctx context.Context, topic string, result search.SearchResult) (finding string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Source analysis panicked", "url", result.URL, "panic", r)
			finding, ok = "", false
		}
	}()

	doc := e.fetcher.FetchContent(ctx, result.URL)
	if doc == nil || strings.TrimSpace(doc.Text) == "" {
		e.logger.Warn("No content fetched, skipping source", "url", result.URL)
		return "", false
	}

	text := truncateRunes(doc.Text, e.cfg.ContentLimit)
	raw, err := e.invoke(ctx, "analysis", analystPrompt, analysisPrompt(topic, result, doc, text))
	if err != nil {
		e.logger.Warn("Analysis failed, skipping source", "url", result.URL, "error", err)
		return "", false
	}
	analysis := strings.TrimSpace(extract.Extract(raw, contentEnvelope{Content: raw}).Content)
	if analysis == "" {
		e.logger.Warn("Empty analysis, skipping source", "url", result.URL)
		return "", false
	}

	title := displayTitle(result)
	if doc.Title != "" {
		title = doc.Title
	}
	finding = fmt.Sprintf("Source: %s (%s)\n%s", title, result.URL, analysis)
	e.state.addFinding(finding, AnalysisResult{URL: result.URL, Title: title, Analysis: analysis})
	return finding, true
}

func displayTitle(r search.SearchResult) string {
	if t := strings.TrimSpace(r.Title); t != "" {
		return t
	}
	return r.URL
}

// truncateRunes cuts s to at most limit runes.
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
