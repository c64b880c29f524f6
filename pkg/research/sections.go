package research

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mikeboe/research-helper/pkg/extract"
)

// fallbackPlan is used when the model does not produce a usable plan.
func fallbackPlan(topic string) []Section {
	return []Section{
		{Name: "Introduction", Description: fmt.Sprintf("Introduce %s and the scope of the report.", topic)},
		{Name: "Overview", Description: fmt.Sprintf("The key facts, developments and debates about %s.", topic), Research: true},
		{Name: "Conclusion", Description: "Summarize the findings and remaining open questions."},
	}
}

// runSections plans the report, researches each section with a grading
// loop and assembles the sections in plan order.
func (e *Engine) runSections(ctx context.Context) (string, error) {
	if err := e.machine.to(phasePlanSections); err != nil {
		return "", err
	}
	sections := e.planSections(ctx)
	e.progress.Report(fmt.Sprintf("Planned %d sections", len(sections)), setupShare)

	// Research sections first; the others are written from their results.
	var order []int
	for i, sec := range sections {
		if sec.Research {
			order = append(order, i)
		}
	}
	for i, sec := range sections {
		if !sec.Research {
			order = append(order, i)
		}
	}

	bar := band{from: setupShare, to: assemblyStart}
	for slot, idx := range order {
		if err := e.machine.to(phaseSectionResearch); err != nil {
			return "", err
		}
		slotBar := bar.split(slot, len(order))
		if sections[idx].Research {
			e.researchSection(ctx, &sections[idx], slotBar)
		} else {
			e.writeContextSection(ctx, &sections[idx], sections, slotBar)
		}
	}

	if err := e.machine.to(phaseAssembleReport); err != nil {
		return "", err
	}
	e.progress.Report("Assembling report", assemblyStart)
	report := assembleSections(e.topic, sections, e.state.sources())
	if err := e.machine.to(phaseDone); err != nil {
		return "", err
	}
	return report, nil
}

// planSections asks the model for the report outline.
func (e *Engine) planSections(ctx context.Context) []Section {
	raw, err := e.invoke(ctx, "plan", sectionPlannerPrompt, sectionPlanPrompt(e.topic))
	if err != nil {
		e.logger.Warn("Section planning failed, using default plan", "error", err)
		return fallbackPlan(e.topic)
	}

	var sections []Section
	for _, sec := range extract.Extract(raw, sectionPlan{}).Sections {
		sec.Name = strings.TrimSpace(sec.Name)
		if sec.Name == "" {
			continue
		}
		sec.Content = ""
		sections = append(sections, sec)
	}
	if len(sections) == 0 {
		e.logger.Warn("Model returned no usable sections, using default plan")
		return fallbackPlan(e.topic)
	}
	e.logger.Info("Planned sections", "count", len(sections))
	return sections
}

// researchSection runs the research, write and grade loop for one section,
// at most Depth times. The latest written content is kept.
func (e *Engine) researchSection(ctx context.Context, sec *Section, bar band) {
	ctx, span := e.tracer.Start(ctx, "research.section", trace.WithAttributes(attribute.String("research.section", sec.Name)))
	defer span.End()

	depth := max(e.cfg.Depth, 1)
	var (
		material  []string
		followUps []string
	)
	for attempt := 1; attempt <= depth; attempt++ {
		attemptBar := bar.split(attempt-1, depth)
		span.SetAttributes(attribute.Int("research.attempts", attempt))

		queries := followUps
		if len(queries) == 0 {
			queries = e.generateQueries(ctx, e.topic, queryContext{Section: sec.Name, Description: sec.Description}, e.cfg.QueryCount)
		}
		e.progress.Report(fmt.Sprintf("Researching section %s (attempt %d/%d)", sec.Name, attempt, depth), attemptBar.at(0.1))
		material = append(material, e.runRound(ctx, queries, e.topic, attemptBar.sub(0.1, 0.8))...)

		content, err := e.writeSection(ctx, *sec, material)
		if err != nil {
			e.logger.Warn("Writing section failed", "section", sec.Name, "attempt", attempt, "error", err)
			return
		}
		sec.Content = content
		e.progress.Report(fmt.Sprintf("Wrote section %s", sec.Name), attemptBar.at(0.9))

		grade, err := e.gradeSection(ctx, *sec)
		if err != nil {
			e.logger.Warn("Grading section failed, keeping content", "section", sec.Name, "attempt", attempt, "error", err)
			return
		}
		e.progress.Report(fmt.Sprintf("Graded section %s", sec.Name), attemptBar.at(1))
		if grade.passed() {
			e.logger.Info("Section passed review", "section", sec.Name, "attempt", attempt)
			return
		}
		if attempt == depth {
			e.logger.Warn("Section did not pass review within depth budget", "section", sec.Name, "attempts", attempt)
			return
		}
		followUps = cleanQueries(grade.FollowUpQueries, e.cfg.QueryCount)
		e.logger.Info("Section failed review, researching again", "section", sec.Name, "attempt", attempt, "follow_ups", followUps)
	}
}

// writeContextSection writes a section that needs no research from the
// content of the research sections.
func (e *Engine) writeContextSection(ctx context.Context, sec *Section, all []Section, bar band) {
	var material []string
	for _, other := range all {
		if other.Research && strings.TrimSpace(other.Content) != "" {
			material = append(material, fmt.Sprintf("## %s\n\n%s", other.Name, other.Content))
		}
	}
	content, err := e.writeSection(ctx, *sec, material)
	if err != nil {
		e.logger.Warn("Writing section failed", "section", sec.Name, "error", err)
	} else {
		sec.Content = content
	}
	e.progress.Report(fmt.Sprintf("Wrote section %s", sec.Name), bar.at(1))
}

func (e *Engine) writeSection(ctx context.Context, sec Section, material []string) (string, error) {
	raw, err := e.invoke(ctx, "write_section", sectionWriterPrompt, sectionPrompt(e.topic, sec, material))
	if err != nil {
		return "", err
	}
	return stripHeading(sec.Name, extract.Extract(raw, contentEnvelope{Content: raw}).Content), nil
}

func (e *Engine) gradeSection(ctx context.Context, sec Section) (gradeEnvelope, error) {
	raw, err := e.invoke(ctx, "grade", graderPrompt, gradePrompt(e.topic, sec))
	if err != nil {
		return gradeEnvelope{}, err
	}
	return extract.Extract(raw, gradeEnvelope{}), nil
}
