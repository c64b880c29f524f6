package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type recordingExec struct {
	mu    sync.Mutex
	calls []execCall
	err   error
}

func (r *recordingExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, r.err
}

func (r *recordingExec) snapshot() []execCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]execCall(nil), r.calls...)
}

func metadataOf(t *testing.T, call execCall) map[string]any {
	t.Helper()
	var meta map[string]any
	require.NoError(t, json.Unmarshal(call.args[4].([]byte), &meta))
	return meta
}

func TestDBLogHandlerPersists(t *testing.T) {
	db := &recordingExec{}
	job := uuid.New()
	logger := slog.New(NewDBLogHandler(db, job, nil))

	logger.Info("Searched", "query", "go", "error", errors.New("boom"))
	logger.Debug("dropped")

	calls := db.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, job, calls[0].args[0])
	assert.Equal(t, "INFO", calls[0].args[2])
	assert.Equal(t, "Searched", calls[0].args[3])
	assert.Equal(t, map[string]any{"query": "go", "error": "boom"}, metadataOf(t, calls[0]))
}

func TestDBLogHandlerAttrsAndGroups(t *testing.T) {
	db := &recordingExec{}
	logger := slog.New(NewDBLogHandler(db, uuid.New(), nil)).
		With("run_id", "r1").
		WithGroup("round").
		With("depth", 2)

	logger.Warn("Query failed", "query", "q", slog.Group("source", "url", "https://x"))

	calls := db.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, map[string]any{
		"run_id": "r1",
		"round": map[string]any{
			"depth":  float64(2),
			"query":  "q",
			"source": map[string]any{"url": "https://x"},
		},
	}, metadataOf(t, calls[0]))
}

func TestDBLogHandlerFansOut(t *testing.T) {
	db := &recordingExec{}
	var buf bytes.Buffer
	next := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewDBLogHandler(db, uuid.New(), next)).With("job_id", "j")

	logger.Debug("debug only")
	logger.Info("both")

	assert.Contains(t, buf.String(), "debug only")
	assert.Contains(t, buf.String(), "both")
	assert.Contains(t, buf.String(), "job_id=j")
	assert.Len(t, db.snapshot(), 1)
}

func TestDBLogHandlerReturnsExecError(t *testing.T) {
	db := &recordingExec{err: errors.New("db down")}
	h := NewDBLogHandler(db, uuid.New(), nil)
	err := h.Handle(context.Background(), slog.NewRecord(time.Time{}, slog.LevelError, "x", 0))
	assert.ErrorContains(t, err, "db down")
}
