package research

import (
	"context"
	"fmt"

	"github.com/mikeboe/research-helper/pkg/extract"
)

// queryContext narrows query generation to a section or a refined
// research direction.
type queryContext struct {
	Section     string
	Description string
	Direction   string
}

// generateQueries asks the model for up to count search queries. It never
// returns an empty list: when the model fails or yields nothing usable, a
// deterministic set built from the topic is used.
func (e *Engine) generateQueries(ctx context.Context, topic string, qc queryContext, count int) []string {
	count = max(count, 1)
	raw, err := e.invoke(ctx, "queries", queryPlannerPrompt, queryPrompt(topic, qc, count))
	if err != nil {
		e.logger.Warn("Query generation failed, using fallback queries", "section", qc.Section, "error", err)
		return fallbackQueries(topic, qc.Section, count)
	}

	queries := cleanQueries(extract.Extract(raw, queryEnvelope{}).Queries, count)
	if len(queries) == 0 {
		e.logger.Warn("Model returned no usable queries, using fallback queries", "section", qc.Section)
		return fallbackQueries(topic, qc.Section, count)
	}
	e.logger.Info("Generated queries", "queries", queries)
	return queries
}

// fallbackQueries builds search queries from the topic and optional section
// name alone.
func fallbackQueries(topic, section string, count int) []string {
	var candidates []string
	if section != "" {
		candidates = []string{
			fmt.Sprintf("%s %s", topic, section),
			fmt.Sprintf("%s %s overview", topic, section),
			fmt.Sprintf("%s %s explanation", topic, section),
		}
	} else {
		candidates = []string{
			fmt.Sprintf("%s overview", topic),
			fmt.Sprintf("%s explanation", topic),
			fmt.Sprintf("%s key facts", topic),
			fmt.Sprintf("%s latest developments", topic),
		}
	}
	return candidates[:min(max(count, 1), len(candidates))]
}
