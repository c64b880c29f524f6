package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mikeboe/research-helper/pkg/config"
	"github.com/mikeboe/research-helper/pkg/research"
)

var ErrJobNotFound = errors.New("job not found")

// Job statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// dbtx is satisfied by *pgxpool.Pool.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type reportArchiver interface {
	Add(ctx context.Context, jobID uuid.UUID, topic, report string) (int, error)
}

// Service runs research jobs in the background and keeps their status,
// progress and report in PostgreSQL.
type Service struct {
	DB      dbtx
	Archive reportArchiver
	Env     config.Lookup
	Options []research.Option
	Logger  *slog.Logger

	wg sync.WaitGroup
}

func NewService(db dbtx) *Service {
	return &Service{DB: db, Logger: slog.Default()}
}

type Job struct {
	ID        uuid.UUID       `json:"id"`
	Topic     string          `json:"topic"`
	Status    string          `json:"status"`
	Progress  float64         `json:"progress"`
	Message   *string         `json:"message,omitempty"`
	Error     *string         `json:"error,omitempty"`
	Report    *string         `json:"report,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Config    json.RawMessage `json:"config"`
}

// ResearchRequest is the body of the research endpoints. The overrides are
// inlined next to the topic.
type ResearchRequest struct {
	Topic string `json:"topic"`
	config.Overrides
}

// jobConfig is the stored form of a request. Credentials are never stored.
func jobConfig(req ResearchRequest, cfg config.Configuration) json.RawMessage {
	data, _ := json.Marshal(map[string]any{
		"searchProvider":    cfg.SearchProvider,
		"model":             cfg.Model,
		"depth":             cfg.Depth,
		"breadth":           cfg.Breadth,
		"queryCount":        cfg.QueryCount,
		"concurrency":       cfg.Concurrency,
		"variant":           cfg.Variant,
		"customCredentials": len(req.Credentials) > 0,
	})
	return data
}

// CreateJob records a job and starts its run. Configuration errors fail the
// job and are returned to the caller.
func (s *Service) CreateJob(ctx context.Context, req ResearchRequest) (*Job, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, research.ErrEmptyTopic
	}
	cfg := config.Resolve(req.Overrides, s.Env)

	query := `
		INSERT INTO research_jobs (id, topic, status, config)
		VALUES ($1, $2, $3, $4)
		RETURNING id, topic, status, progress, created_at, updated_at, config
	`
	job := &Job{}
	err := s.DB.QueryRow(ctx, query, uuid.New(), topic, StatusPending, jobConfig(req, cfg)).Scan(
		&job.ID, &job.Topic, &job.Status, &job.Progress, &job.CreatedAt, &job.UpdatedAt, &job.Config,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	logger := slog.New(NewDBLogHandler(s.DB, job.ID, s.Logger.Handler())).With("job_id", job.ID.String())
	opts := append([]research.Option{research.WithLogger(logger)}, s.Options...)
	handle, err := research.Start(context.WithoutCancel(ctx), research.ResearchParams{Topic: topic, Config: cfg}, opts...)
	if err != nil {
		s.failJob(ctx, job.ID, logger, err)
		return nil, err
	}

	if _, err := s.DB.Exec(ctx, "UPDATE research_jobs SET status = $2, updated_at = NOW() WHERE id = $1", job.ID, StatusRunning); err != nil {
		logger.Error("Failed to mark job running", "error", err)
	}
	job.Status = StatusRunning

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.track(job.ID, topic, handle, logger)
	}()
	return job, nil
}

// track persists the progress of a run until it ends.
func (s *Service) track(jobID uuid.UUID, topic string, handle *research.RunHandle, logger *slog.Logger) {
	ctx := context.Background()
	for ev := range handle.Events() {
		if ev.Type != research.EventProgress {
			continue
		}
		_, err := s.DB.Exec(ctx,
			"UPDATE research_jobs SET progress = $2, message = $3, updated_at = NOW() WHERE id = $1",
			jobID, ev.Percent, ev.Message)
		if err != nil {
			logger.Warn("Failed to save progress", "error", err)
		}
	}

	report, err := handle.Wait()
	if err != nil {
		s.failJob(ctx, jobID, logger, err)
		return
	}

	_, err = s.DB.Exec(ctx,
		"UPDATE research_jobs SET status = $2, report = $3, progress = 100, message = $4, updated_at = NOW() WHERE id = $1",
		jobID, StatusCompleted, report, "Research complete")
	if err != nil {
		logger.Error("Failed to save final report to DB", "error", err)
		return
	}

	if s.Archive != nil {
		if _, err := s.Archive.Add(ctx, jobID, topic, report); err != nil {
			logger.Warn("Failed to archive report", "error", err)
		}
	}
}

func (s *Service) failJob(ctx context.Context, jobID uuid.UUID, logger *slog.Logger, cause error) {
	logger.Error("Research failed", "error", cause)
	_, err := s.DB.Exec(context.WithoutCancel(ctx),
		"UPDATE research_jobs SET status = $2, error = $3, updated_at = NOW() WHERE id = $1",
		jobID, StatusFailed, cause.Error())
	if err != nil {
		logger.Error("Failed to mark job failed", "error", err)
	}
}

// Wait blocks until every tracked job has been persisted.
func (s *Service) Wait() {
	s.wg.Wait()
}

const jobColumns = "id, topic, status, progress, message, error, report, created_at, updated_at, config"

func scanJob(row pgx.Row, job *Job) error {
	return row.Scan(&job.ID, &job.Topic, &job.Status, &job.Progress, &job.Message, &job.Error,
		&job.Report, &job.CreatedAt, &job.UpdatedAt, &job.Config)
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	job := &Job{}
	err := scanJob(s.DB.QueryRow(ctx, "SELECT "+jobColumns+" FROM research_jobs WHERE id = $1", id), job)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *Service) ListJobs(ctx context.Context) ([]Job, error) {
	rows, err := s.DB.Query(ctx, "SELECT "+jobColumns+" FROM research_jobs ORDER BY created_at DESC LIMIT 50")
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var job Job
		if err := scanJob(rows, &job); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (s *Service) GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]LogEntry, error) {
	query := `
		SELECT id, timestamp, level, message, metadata
		FROM research_logs
		WHERE job_id = $1
		ORDER BY id ASC
	`
	rows, err := s.DB.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
