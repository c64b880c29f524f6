package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/mikeboe/research-helper/pkg/archive"
	"github.com/mikeboe/research-helper/pkg/config"
	"github.com/mikeboe/research-helper/pkg/research"
)

var errArchiveDisabled = errors.New("report archive is not configured")

type jobService interface {
	CreateJob(ctx context.Context, req ResearchRequest) (*Job, error)
	ListJobs(ctx context.Context) ([]Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	GetJobLogs(ctx context.Context, id uuid.UUID) ([]LogEntry, error)
}

type reportSearcher interface {
	Search(ctx context.Context, args archive.SearchArgs) ([]archive.Hit, error)
	Chunks(ctx context.Context, jobID uuid.UUID) ([]string, error)
}

type Handler struct {
	Jobs    jobService
	Archive reportSearcher
	Env     config.Lookup
	Options []research.Option
	Logger  *slog.Logger

	mcp http.Handler
}

func NewHandler(jobs jobService, reports reportSearcher) *Handler {
	h := &Handler{
		Jobs:    jobs,
		Archive: reports,
		Logger:  slog.Default(),
	}
	h.mcp = newMCPHandler(h)
	return h
}

// NewRouter returns a gin engine with tracing, CORS and all routes of h.
func NewRouter(h *Handler, serviceName string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(serviceName))
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Mcp-Session-Id", "Mcp-Protocol-Version", "Last-Event-ID"},
		ExposeHeaders: []string{"Content-Length", "Mcp-Session-Id"},
		MaxAge:        12 * time.Hour,
	}))
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.Any("/mcp", gin.WrapH(h.mcp))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	api := r.Group("/api")
	{
		api.POST("/research/stream", h.streamResearch)
		api.POST("/research", h.createJob)
		api.GET("/research", h.listJobs)
		api.GET("/research/:id", h.getJob)
		api.GET("/research/:id/logs", h.getJobLogs)
		api.GET("/reports/search", h.searchReports)
		api.GET("/reports/:id/chunks", h.reportChunks)
	}
}

// statusFor maps an error to the HTTP status reported to the caller.
func statusFor(err error) int {
	switch {
	case errors.Is(err, research.ErrEmptyTopic),
		errors.Is(err, config.ErrMissingCredential),
		errors.Is(err, config.ErrUnsupportedModel),
		errors.Is(err, archive.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, errArchiveDisabled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

// streamResearch runs research for the request and streams its events as
// server-sent events. A client that goes away detaches from the run.
func (h *Handler) streamResearch(c *gin.Context) {
	var req ResearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := config.Resolve(req.Overrides, h.Env)
	opts := append([]research.Option{research.WithLogger(h.Logger)}, h.Options...)
	run, err := research.Start(c.Request.Context(), research.ResearchParams{Topic: req.Topic, Config: cfg}, opts...)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Run-Id", run.ID.String())
	c.Status(http.StatusOK)

	for ev := range run.Events() {
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			h.Logger.Warn("Stream client went away", "run_id", run.ID.String(), "error", err)
			return
		}
		c.Writer.Flush()
		if c.Request.Context().Err() != nil {
			h.Logger.Warn("Stream client went away", "run_id", run.ID.String())
			return
		}
	}
}

func (h *Handler) createJob(c *gin.Context) {
	var req ResearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.Jobs.CreateJob(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (h *Handler) listJobs(c *gin.Context) {
	jobs, err := h.Jobs.ListJobs(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if jobs == nil {
		jobs = []Job{}
	}
	c.JSON(http.StatusOK, jobs)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) getJob(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	job, err := h.Jobs.GetJob(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) getJobLogs(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	logs, err := h.Jobs.GetJobLogs(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if logs == nil {
		logs = []LogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}

func (h *Handler) search(ctx context.Context, args archive.SearchArgs) ([]archive.Hit, error) {
	if h.Archive == nil {
		return nil, errArchiveDisabled
	}
	return h.Archive.Search(ctx, args)
}

func (h *Handler) searchReports(c *gin.Context) {
	k, _ := strconv.Atoi(c.Query("k"))
	hits, err := h.search(c.Request.Context(), archive.SearchArgs{
		Query: c.Query("q"),
		TopK:  k,
		JobID: c.Query("job"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if hits == nil {
		hits = []archive.Hit{}
	}
	c.JSON(http.StatusOK, hits)
}

func (h *Handler) reportChunks(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if h.Archive == nil {
		writeError(c, errArchiveDisabled)
		return
	}
	chunks, err := h.Archive.Chunks(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if chunks == nil {
		chunks = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"jobId": id, "chunks": chunks})
}
