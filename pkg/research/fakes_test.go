package research

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mikeboe/research-helper/pkg/config"
	"github.com/mikeboe/research-helper/pkg/search"
)

type reply struct {
	out string
	err error
}

func answer(out string) reply { return reply{out: out} }

func failure(msg string) reply { return reply{err: errors.New(msg)} }

// scriptedModel answers by system prompt. Each prompt has a queue of
// replies; the last one repeats.
type scriptedModel struct {
	mu      sync.Mutex
	replies map[string][]reply
	calls   map[string]int
	prompts map[string][]string
}

func newScriptedModel() *scriptedModel {
	return &scriptedModel{
		replies: make(map[string][]reply),
		calls:   make(map[string]int),
		prompts: make(map[string][]string),
	}
}

func (m *scriptedModel) on(system string, replies ...reply) *scriptedModel {
	m.replies[system] = replies
	return m
}

func (m *scriptedModel) Invoke(_ context.Context, system, user string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	queue, ok := m.replies[system]
	if !ok || len(queue) == 0 {
		return "", errors.New("unscripted prompt")
	}
	n := m.calls[system]
	m.calls[system]++
	m.prompts[system] = append(m.prompts[system], user)
	return queue[min(n, len(queue)-1)].out, queue[min(n, len(queue)-1)].err
}

func (m *scriptedModel) count(system string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[system]
}

func (m *scriptedModel) lastPrompt(system string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.prompts[system]
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

type fakeProvider struct {
	mu        sync.Mutex
	results   map[string][]search.SearchResult
	fallback  []search.SearchResult
	docs      map[string]*search.WebDocument
	throttled map[string]bool
	panics    map[string]bool
	searched  []string
	fetched   []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		results:   make(map[string][]search.SearchResult),
		docs:      make(map[string]*search.WebDocument),
		throttled: make(map[string]bool),
		panics:    make(map[string]bool),
	}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Search(_ context.Context, query string) ([]search.SearchResult, error) {
	p.mu.Lock()
	p.searched = append(p.searched, query)
	results, found := p.results[query]
	if !found {
		results = p.fallback
	}
	throttled, panics := p.throttled[query], p.panics[query]
	p.mu.Unlock()

	if panics {
		panic("provider exploded")
	}
	if throttled {
		return nil, search.ErrRateLimited
	}
	return results, nil
}

func (p *fakeProvider) FetchContent(_ context.Context, url string) (*search.WebDocument, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetched = append(p.fetched, url)
	return p.docs[url], nil
}

func (p *fakeProvider) searchCount(query string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, q := range p.searched {
		if q == query {
			n++
		}
	}
	return n
}

func testConfig(o config.Overrides) config.Configuration {
	env := map[string]string{
		"RESEARCH_INTER_CALL_DELAY": "0s",
		"RESEARCH_RETRY_BASE_DELAY": "1ms",
	}
	return config.Resolve(o, func(k string) string { return env[k] })
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startRun(t *testing.T, topic string, cfg config.Configuration, m *scriptedModel, p *fakeProvider) *RunHandle {
	t.Helper()
	h, err := Start(context.Background(), ResearchParams{Topic: topic, Config: cfg},
		WithModel(m), WithSearchProvider(p), WithLogger(quietLogger()))
	require.NoError(t, err)
	return h
}

func collect(h *RunHandle) []Event {
	var events []Event
	for ev := range h.Events() {
		events = append(events, ev)
	}
	return events
}
