package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/research-helper/pkg/config"
	"github.com/mikeboe/research-helper/pkg/research"
)

type execOnlyDB struct {
	recordingExec
}

func (*execOnlyDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (*execOnlyDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{}
}

type errRow struct{}

func (errRow) Scan(...any) error { return pgx.ErrNoRows }

type failingModel struct{}

func (failingModel) Invoke(context.Context, string, string) (string, error) {
	return "", errors.New("model offline")
}

type recordingArchive struct {
	jobID  uuid.UUID
	topic  string
	report string
}

func (a *recordingArchive) Add(_ context.Context, jobID uuid.UUID, topic, report string) (int, error) {
	a.jobID, a.topic, a.report = jobID, topic, report
	return 1, nil
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startTracked(t *testing.T, m research.Option) (uuid.UUID, *research.RunHandle) {
	t.Helper()
	cfg := config.Resolve(config.Overrides{Depth: 1, Breadth: 1}, testEnv)
	h, err := research.Start(context.Background(), research.ResearchParams{Topic: "Go", Config: cfg},
		m, research.WithSearchProvider(emptyProvider{}), research.WithLogger(quiet()))
	require.NoError(t, err)
	return uuid.New(), h
}

func TestTrackCompletesAndArchives(t *testing.T) {
	db := &execOnlyDB{}
	arch := &recordingArchive{}
	s := NewService(db)
	s.Archive = arch

	jobID, h := startTracked(t, research.WithModel(silentModel{}))
	s.track(jobID, "Go", h, quiet())

	calls := db.snapshot()
	require.NotEmpty(t, calls)
	last := calls[len(calls)-1]
	assert.Contains(t, last.sql, "report = $3")
	assert.Equal(t, StatusCompleted, last.args[1])
	assert.Contains(t, last.args[2], "# Go")

	progress := 0
	for _, c := range calls[:len(calls)-1] {
		if strings.Contains(c.sql, "progress = $2") {
			progress++
		}
	}
	assert.Positive(t, progress)

	assert.Equal(t, jobID, arch.jobID)
	assert.Equal(t, "Go", arch.topic)
	assert.Equal(t, last.args[2], arch.report)
}

func TestTrackFailsJob(t *testing.T) {
	db := &execOnlyDB{}
	arch := &recordingArchive{}
	s := NewService(db)
	s.Archive = arch

	jobID, h := startTracked(t, research.WithModel(failingModel{}))
	s.track(jobID, "Go", h, quiet())

	calls := db.snapshot()
	require.NotEmpty(t, calls)
	last := calls[len(calls)-1]
	assert.Equal(t, StatusFailed, last.args[1])
	assert.Contains(t, last.args[2], "model offline")
	assert.Empty(t, arch.report)
}

func TestCreateJobRejectsEmptyTopic(t *testing.T) {
	s := NewService(&execOnlyDB{})
	_, err := s.CreateJob(context.Background(), ResearchRequest{Topic: " "})
	assert.ErrorIs(t, err, research.ErrEmptyTopic)
}

func TestGetJobNotFound(t *testing.T) {
	s := NewService(&execOnlyDB{})
	_, err := s.GetJob(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobConfigOmitsSecrets(t *testing.T) {
	req := ResearchRequest{Topic: "Go", Overrides: config.Overrides{Credentials: map[string]string{"tavily": "secret"}}}
	data := jobConfig(req, config.Resolve(req.Overrides, testEnv))
	assert.NotContains(t, string(data), "secret")
	assert.Contains(t, string(data), `"customCredentials":true`)
}
