package research

import (
	"fmt"
	"strings"

	"github.com/mikeboe/research-helper/pkg/search"
)

const queryPlannerPrompt = `You are a research planner.
Generate specific web search queries that together cover the topic.
Return the JSON object directly without any formatting or additional text, using this structure:
{"queries": [{"search_query": "..."}]}`

const analystPrompt = `You are a research analyst.
Read the source and extract the facts, figures and arguments relevant to the research topic.
Ignore navigation text, advertisements and unrelated material.
Return the JSON object directly without any formatting or additional text, using this structure:
{"content": "your analysis"}`

const reflectorPrompt = `You are a research manager.
Review the findings gathered so far. Summarize the questions that remain unanswered, angles that have not been explored and any contradictions between sources.
Answer in plain text.`

const refinerPrompt = `You are a research strategist.
Given the findings and the reflection on them, propose concrete directions for the next round of research.
Answer in plain text.`

const reporterPrompt = `You are a research writer.
Write a comprehensive research report in Markdown with a title, an introduction, key findings, a discussion and a conclusion.
Base every statement on the findings provided. Mention open questions where the findings are thin.
Return the JSON object directly without any formatting or additional text, using this structure:
{"content": "the full markdown report"}`

const sectionPlannerPrompt = `You are a report planner.
Plan the sections of a research report on the topic. Mark a section with "research": true when it needs web research; introductions and conclusions usually do not.
Return the JSON object directly without any formatting or additional text, using this structure:
{"sections": [{"name": "...", "description": "...", "research": true}]}`

const sectionWriterPrompt = `You are a research writer.
Write one section of a research report in Markdown. Do not repeat the section name as a heading.
Base the section on the material provided.
Return the JSON object directly without any formatting or additional text, using this structure:
{"content": "the section text"}`

const graderPrompt = `You are a strict reviewer.
Grade whether the section covers its description thoroughly and accurately.
When it does not, propose follow-up search queries that would fill the gaps.
Return the JSON object directly without any formatting or additional text, using this structure:
{"grade": "pass" or "fail", "follow_up_queries": [{"search_query": "..."}]}`

func queryPrompt(topic string, qc queryContext, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", topic)
	if qc.Section != "" {
		fmt.Fprintf(&b, "Section: %s\n", qc.Section)
	}
	if qc.Description != "" {
		fmt.Fprintf(&b, "Section description: %s\n", qc.Description)
	}
	if qc.Direction != "" {
		fmt.Fprintf(&b, "\nResearch direction:\n%s\n", qc.Direction)
	}
	fmt.Fprintf(&b, "\nGenerate %d search queries.", count)
	return b.String()
}

func analysisPrompt(topic string, result search.SearchResult, doc *search.WebDocument, text string) string {
	title := result.Title
	if doc.Title != "" {
		title = doc.Title
	}
	return fmt.Sprintf("Topic: %s\n\nSource title: %s\nSource URL: %s\n\nContent:\n%s", topic, title, result.URL, text)
}

func findingsBlock(findings []string) string {
	if len(findings) == 0 {
		return "No findings have been collected yet."
	}
	return strings.Join(findings, "\n\n---\n\n")
}

func reflectPrompt(topic string, findings []string) string {
	return fmt.Sprintf("Topic: %s\n\nFindings:\n%s", topic, findingsBlock(findings))
}

func refinePrompt(topic string, findings []string, reflection string) string {
	return fmt.Sprintf("Topic: %s\n\nFindings:\n%s\n\nReflection:\n%s", topic, findingsBlock(findings), reflection)
}

func reportPrompt(topic string, findings, reflections []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a research report on %q.\n\nFindings:\n%s", topic, findingsBlock(findings))
	if len(reflections) > 0 {
		fmt.Fprintf(&b, "\n\nReflections:\n%s", strings.Join(reflections, "\n\n"))
	}
	return b.String()
}

func sectionPlanPrompt(topic string) string {
	return fmt.Sprintf("Topic: %s", topic)
}

func sectionPrompt(topic string, sec Section, material []string) string {
	return fmt.Sprintf("Topic: %s\nSection: %s\nDescription: %s\n\nMaterial:\n%s",
		topic, sec.Name, sec.Description, findingsBlock(material))
}

func gradePrompt(topic string, sec Section) string {
	return fmt.Sprintf("Topic: %s\nSection: %s\nDescription: %s\n\nSection text:\n%s",
		topic, sec.Name, sec.Description, sec.Content)
}
