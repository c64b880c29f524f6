package research

import (
	"context"
	"fmt"
	"strings"
)

// reflect asks the model what the findings so far leave unanswered.
func (e *Engine) reflect(ctx context.Context, findings []string) (string, error) {
	e.logger.Info("Starting reflection phase", "findings", len(findings))
	out, err := e.invoke(ctx, "reflect", reflectorPrompt, reflectPrompt(e.topic, findings))
	if err != nil {
		return "", fmt.Errorf("reflection failed: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// refine turns the findings and reflection into directions for the next
// depth level.
func (e *Engine) refine(ctx context.Context, findings []string, reflection string) (string, error) {
	e.logger.Info("Starting refinement phase")
	out, err := e.invoke(ctx, "refine", refinerPrompt, refinePrompt(e.topic, findings, reflection))
	if err != nil {
		return "", fmt.Errorf("refinement failed: %w", err)
	}
	return strings.TrimSpace(out), nil
}
