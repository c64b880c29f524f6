package research

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mikeboe/research-helper/pkg/extract"
)

const missingSectionContent = "_Content not available for this section._"

var errEmptyReport = errors.New("model returned an empty report")

// assembleFlat writes the narrative report from all findings and
// reflections. Without findings no model call is made.
func (e *Engine) assembleFlat(ctx context.Context) (string, error) {
	e.logger.Info("Compiling final report")
	findings, reflections := e.state.snapshot()
	if len(findings) == 0 {
		e.logger.Warn("No findings collected, writing empty report")
		return noFindingsReport(e.topic), nil
	}

	raw, err := e.invoke(ctx, "report", reporterPrompt, reportPrompt(e.topic, findings, reflections))
	if err != nil {
		return "", fmt.Errorf("report generation failed: %w", err)
	}
	report := strings.TrimSpace(extract.ExtractTextField(raw, extract.DefaultTextField))
	if report == "" {
		return "", errEmptyReport
	}
	return withSources(withTitle(e.topic, report), e.state.sources()), nil
}

func noFindingsReport(topic string) string {
	return fmt.Sprintf("# %s\n\nNo information was found on this topic. "+
		"The searches returned no sources that could be analysed, so there are no findings to report.\n", topic)
}

// withTitle makes sure the report opens with a level-one heading naming the
// topic.
func withTitle(topic, report string) string {
	first, _, _ := strings.Cut(report, "\n")
	first = strings.TrimSpace(first)
	if strings.HasPrefix(first, "# ") && strings.Contains(strings.ToLower(first), strings.ToLower(topic)) {
		return report
	}
	return fmt.Sprintf("# %s\n\n%s", topic, report)
}

// withSources appends the analysed sources, once per URL.
func withSources(report string, sources []AnalysisResult) string {
	if len(sources) == 0 {
		return report
	}
	var b strings.Builder
	b.WriteString(strings.TrimRight(report, "\n"))
	b.WriteString("\n\n## Sources\n\n")
	seen := make(map[string]bool, len(sources))
	n := 0
	for _, s := range sources {
		if seen[s.URL] {
			continue
		}
		seen[s.URL] = true
		n++
		title := s.Title
		if title == "" {
			title = s.URL
		}
		fmt.Fprintf(&b, "%d. [%s](%s)\n", n, title, s.URL)
	}
	return b.String()
}

// assembleSections renders planned sections in plan order. A section
// without content keeps its heading and gets a placeholder.
func assembleSections(topic string, sections []Section, sources []AnalysisResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", topic)
	for _, sec := range sections {
		content := strings.TrimSpace(sec.Content)
		if content == "" {
			content = missingSectionContent
		}
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", sec.Name, content)
	}
	return withSources(b.String(), sources)
}

// stripHeading drops a leading heading that repeats the section name.
func stripHeading(name, content string) string {
	content = strings.TrimSpace(content)
	first, rest, _ := strings.Cut(content, "\n")
	if strings.HasPrefix(first, "#") && strings.EqualFold(strings.TrimSpace(strings.TrimLeft(first, "#")), name) {
		return strings.TrimSpace(rest)
	}
	return content
}
