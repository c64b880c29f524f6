package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mikeboe/research-helper/pkg/archive"
)

// MCPSessionTimeout closes MCP sessions that have been idle this long.
const MCPSessionTimeout = 30 * time.Minute

type searchReportsInput struct {
	Query string `json:"query" jsonschema:"The search query."`
	TopK  int    `json:"topK,omitempty" jsonschema:"The number of top results to return."`
	JobID string `json:"jobId,omitempty" jsonschema:"Only search the report of this job."`
}

type getReportInput struct {
	JobID string `json:"jobId" jsonschema:"The research job id."`
}

// newMCPServer exposes the report archive and job store as MCP tools.
func newMCPServer(h *Handler) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "research-helper-mcp", Version: "1.0.0"}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "search_reports",
		Description: "Search archived research reports using semantic search.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in searchReportsInput) (*mcp.CallToolResult, any, error) {
		hits, err := h.search(ctx, archive.SearchArgs{Query: in.Query, TopK: in.TopK, JobID: in.JobID})
		if err != nil {
			return nil, nil, err
		}
		return textResult(archive.FormatHits(hits)), nil, nil
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_report",
		Description: "Get the status and final report of a research job.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in getReportInput) (*mcp.CallToolResult, any, error) {
		id, err := uuid.Parse(in.JobID)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid job id %q", in.JobID)
		}
		job, err := h.Jobs.GetJob(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		return textResult(jobText(job)), nil, nil
	})

	return srv
}

// newMCPHandler serves newMCPServer over streamable HTTP. Sessions live in
// the handler and are closed after MCPSessionTimeout of inactivity.
func newMCPHandler(h *Handler) http.Handler {
	srv := newMCPServer(h)
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, &mcp.StreamableHTTPOptions{
		JSONResponse:   true,
		SessionTimeout: MCPSessionTimeout,
		Logger:         h.Logger,
	})
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func jobText(job *Job) string {
	if job.Report != nil && *job.Report != "" {
		return *job.Report
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Job %s on %q is %s (%.1f%%).", job.ID, job.Topic, job.Status, job.Progress)
	if job.Error != nil {
		fmt.Fprintf(&b, " Error: %s", *job.Error)
	}
	return b.String()
}
