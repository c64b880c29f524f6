package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// execer is the part of a pgx pool the log handler needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DBLogHandler is a slog.Handler that writes a job's records to the
// research_logs table and forwards them to a second handler.
type DBLogHandler struct {
	DB    execer
	JobID uuid.UUID
	Next  slog.Handler
	Level slog.Leveler

	attrs  []groupedAttr
	groups []string
}

// groupedAttr is an attribute added with WithAttrs under the groups open at
// that time.
type groupedAttr struct {
	groups []string
	attr   slog.Attr
}

// NewDBLogHandler persists records of jobID and forwards them to next,
// which may be nil.
func NewDBLogHandler(db execer, jobID uuid.UUID, next slog.Handler) *DBLogHandler {
	return &DBLogHandler{DB: db, JobID: jobID, Next: next, Level: slog.LevelInfo}
}

func (h *DBLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= h.Level.Level() {
		return true
	}
	return h.Next != nil && h.Next.Enabled(ctx, level)
}

func (h *DBLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.Next != nil && h.Next.Enabled(ctx, r.Level) {
		_ = h.Next.Handle(ctx, r)
	}
	if r.Level < h.Level.Level() {
		return nil
	}

	meta := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, ga := range h.attrs {
		addAttr(nested(meta, ga.groups), ga.attr)
	}
	target := nested(meta, h.groups)
	r.Attrs(func(a slog.Attr) bool {
		addAttr(target, a)
		return true
	})

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		metaJSON = []byte("{}")
	}

	query := `
		INSERT INTO research_logs (job_id, timestamp, level, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`
	// Logs outlive the request that started the job.
	_, err = h.DB.Exec(context.WithoutCancel(ctx), query, h.JobID, r.Time, r.Level.String(), r.Message, metaJSON)
	return err
}

func (h *DBLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := h.clone()
	for _, a := range attrs {
		out.attrs = append(out.attrs, groupedAttr{groups: h.groups, attr: a})
	}
	if h.Next != nil {
		out.Next = h.Next.WithAttrs(attrs)
	}
	return out
}

func (h *DBLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	out := h.clone()
	out.groups = append(out.groups, name)
	if h.Next != nil {
		out.Next = h.Next.WithGroup(name)
	}
	return out
}

func (h *DBLogHandler) clone() *DBLogHandler {
	out := *h
	out.attrs = slices.Clip(h.attrs)
	out.groups = slices.Clip(h.groups)
	return &out
}

// nested returns the map at path below m, creating it as needed.
func nested(m map[string]any, path []string) map[string]any {
	for _, g := range path {
		sub, ok := m[g].(map[string]any)
		if !ok {
			sub = make(map[string]any)
			m[g] = sub
		}
		m = sub
	}
	return m
}

func addAttr(m map[string]any, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		sub := make(map[string]any)
		for _, ga := range v.Group() {
			addAttr(sub, ga)
		}
		if a.Key == "" {
			for k, gv := range sub {
				m[k] = gv
			}
			return
		}
		m[a.Key] = sub
		return
	}
	if a.Key == "" {
		return
	}
	if err, ok := v.Any().(error); ok {
		m[a.Key] = err.Error()
		return
	}
	m[a.Key] = v.Any()
}
