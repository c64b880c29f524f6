package research

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/mikeboe/research-helper/pkg/config"
	"github.com/mikeboe/research-helper/pkg/search"
)

// ResearchParams are the inputs of one run. They are not modified once the
// run starts.
type ResearchParams struct {
	Topic  string
	Config config.Configuration
}

// AnalysisResult is the analysis of one fetched source.
type AnalysisResult struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Analysis string `json:"analysis"`
}

// Section is one planned unit of a sectioned report.
type Section struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Research    bool   `json:"research"`
	Content     string `json:"content"`
}

// engineState is owned by one run and never shared.
type engineState struct {
	mu          sync.Mutex
	findings    []string
	reflections []string
	analyses    []AnalysisResult
	searchCache map[string][]search.SearchResult
}

func newEngineState() *engineState {
	return &engineState{searchCache: make(map[string][]search.SearchResult)}
}

// cached looks up a query by its exact text.
func (s *engineState) cached(query string) ([]search.SearchResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results, ok := s.searchCache[query]
	return results, ok
}

func (s *engineState) cache(query string, results []search.SearchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchCache[query] = results
}

func (s *engineState) addFinding(finding string, analysis AnalysisResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findings = append(s.findings, finding)
	s.analyses = append(s.analyses, analysis)
}

func (s *engineState) addReflection(r string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reflections = append(s.reflections, r)
}

// snapshot returns copies of the accumulated findings and reflections.
func (s *engineState) snapshot() (findings, reflections []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.findings...), append([]string(nil), s.reflections...)
}

func (s *engineState) sources() []AnalysisResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AnalysisResult(nil), s.analyses...)
}

// discard drops everything gathered so far.
func (s *engineState) discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findings, s.reflections, s.analyses = nil, nil, nil
	clear(s.searchCache)
}

// Response shapes requested from the model.

type queryItem struct {
	SearchQuery string `json:"search_query"`
}

// UnmarshalJSON also accepts a bare string item.
func (q *queryItem) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		q.SearchQuery = s
		return nil
	}
	type plain queryItem
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*q = queryItem(p)
	return nil
}

type queryEnvelope struct {
	Queries []queryItem `json:"queries"`
}

type contentEnvelope struct {
	Content string `json:"content"`
}

type gradeEnvelope struct {
	Grade           string      `json:"grade"`
	FollowUpQueries []queryItem `json:"follow_up_queries"`
}

func (g gradeEnvelope) passed() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(g.Grade)), "pass")
}

type sectionPlan struct {
	Sections []Section `json:"sections"`
}

// cleanQueries trims, drops empty entries and caps the list at limit.
func cleanQueries(items []queryItem, limit int) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		q := strings.TrimSpace(item.SearchQuery)
		if q == "" {
			continue
		}
		out = append(out, q)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
