package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mikeboe/research-helper/pkg/clients"
	"github.com/mikeboe/research-helper/pkg/config"
	"github.com/mikeboe/research-helper/pkg/metrics"
	"github.com/mikeboe/research-helper/pkg/search"
)

// ErrEmptyTopic is returned by Start when no topic is given.
var ErrEmptyTopic = errors.New("research topic is empty")

const (
	setupShare    = 5.0
	assemblyStart = 95.0
)

// fetcher is the non-failing search surface the engine consumes.
type fetcher interface {
	Search(ctx context.Context, query string) []search.SearchResult
	FetchContent(ctx context.Context, url string) *search.WebDocument
}

type options struct {
	model    clients.Model
	provider search.Provider
	logger   *slog.Logger
}

// Option customises Start.
type Option func(*options)

// WithModel uses m instead of building a client from the configuration.
func WithModel(m clients.Model) Option {
	return func(o *options) { o.model = m }
}

// WithSearchProvider uses p instead of building one from the configuration.
func WithSearchProvider(p search.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithLogger sends engine logs to l instead of slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Engine runs one research request. It is created per run by Start and
// owns all state of that run.
type Engine struct {
	topic    string
	cfg      config.Configuration
	model    clients.Model
	fetcher  fetcher
	state    *engineState
	machine  *machine
	progress *Progress
	handle   *RunHandle
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Start validates params, builds the model and search clients and launches
// the run in the background. Configuration errors are returned before any
// network call is made.
func Start(ctx context.Context, params ResearchParams, opts ...Option) (*RunHandle, error) {
	topic := strings.TrimSpace(params.Topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := params.Config
	if o.provider == nil && o.model == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if o.provider == nil {
		p, err := search.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("search provider: %w", err)
		}
		o.provider = p
	}
	if o.model == nil {
		m, err := clients.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("model: %w", err)
		}
		o.model = m
	}

	handle := newRunHandle(topic)
	logger := o.logger.With("run_id", handle.ID.String())
	limited := search.NewLimited(o.provider, cfg)
	limited.Logger = logger

	e := &Engine{
		topic:   topic,
		cfg:     cfg,
		model:   o.model,
		fetcher: limited,
		state:   newEngineState(),
		machine: newMachine(logger),
		handle:  handle,
		logger:  logger,
		tracer:  otel.Tracer("github.com/mikeboe/research-helper/pkg/research"),
	}
	e.progress = newProgress(handle.send, logger)

	go e.run(context.WithoutCancel(ctx))
	return handle, nil
}

// Run starts a research run and waits for its report.
func Run(ctx context.Context, params ResearchParams, opts ...Option) (string, error) {
	h, err := Start(ctx, params, opts...)
	if err != nil {
		return "", err
	}
	return h.Wait()
}

func (e *Engine) run(ctx context.Context) {
	started := time.Now()
	variant := string(e.cfg.Variant)
	ctx, span := e.tracer.Start(ctx, "research.run", trace.WithAttributes(
		attribute.String("research.topic", e.topic),
		attribute.String("research.variant", variant),
		attribute.Int("research.depth", e.cfg.Depth),
		attribute.Int("research.breadth", e.cfg.Breadth),
	))
	defer span.End()

	var (
		report string
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("Research run panicked", "panic", r)
				err = fmt.Errorf("%w: %v", errPanic, r)
			}
		}()
		e.logger.Info("Starting research", "topic", e.topic, "variant", variant, "depth", e.cfg.Depth, "breadth", e.cfg.Breadth)
		e.progress.Reset(fmt.Sprintf("Starting research on %s", e.topic))
		if e.cfg.Variant == config.VariantSections {
			report, err = e.runSections(ctx)
		} else {
			report, err = e.runFlat(ctx)
		}
	}()

	metrics.RunDuration.WithLabelValues(variant).Observe(time.Since(started).Seconds())
	if err != nil {
		if !e.machine.terminal() {
			_ = e.machine.to(phaseError)
		}
		e.state.discard()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.Runs.WithLabelValues(variant, "error").Inc()
		e.logger.Error("Research failed", "error", err)
		e.handle.finish("", err, e.progress.Last())
		return
	}

	metrics.Runs.WithLabelValues(variant, "done").Inc()
	e.logger.Info("Research complete", "report_chars", len(report), "duration", time.Since(started))
	e.handle.finish(report, nil, 100)
}

// runFlat researches the topic as a whole over Depth levels.
func (e *Engine) runFlat(ctx context.Context) (string, error) {
	depth := max(e.cfg.Depth, 1)
	levelShare := (assemblyStart - setupShare) / float64(depth)
	e.progress.Report("Research plan ready", setupShare)

	var direction string
	for level := 0; level < depth; level++ {
		bar := band{from: setupShare + float64(level)*levelShare, to: setupShare + float64(level+1)*levelShare}
		var err error
		direction, err = e.runLevel(ctx, bar, direction)
		if err != nil {
			return "", err
		}
	}

	if err := e.machine.to(phaseAssembleReport); err != nil {
		return "", err
	}
	e.progress.Report("Writing report", assemblyStart)
	report, err := e.assembleFlat(ctx)
	if err != nil {
		return "", err
	}
	if err := e.machine.to(phaseDone); err != nil {
		return "", err
	}
	return report, nil
}

// runLevel runs one depth level and returns the refined direction for the
// next one.
func (e *Engine) runLevel(ctx context.Context, bar band, direction string) (string, error) {
	ctx, span := e.tracer.Start(ctx, "research.level")
	defer span.End()

	if err := e.machine.to(phaseGenerateQueries); err != nil {
		return "", err
	}
	queries := e.generateQueries(ctx, e.topic, queryContext{Direction: direction}, e.cfg.QueryCount)
	e.progress.Report(fmt.Sprintf("Generated %d search queries", len(queries)), bar.at(0.1))

	if err := e.machine.to(phaseRunRound); err != nil {
		return "", err
	}
	e.runRound(ctx, queries, e.topic, bar.sub(0.1, 0.8))

	if err := e.machine.to(phaseReflect); err != nil {
		return "", err
	}
	findings, _ := e.state.snapshot()
	reflection, err := e.reflect(ctx, findings)
	if err != nil {
		return "", err
	}
	e.state.addReflection(reflection)
	e.progress.Report("Reflected on findings", bar.at(0.9))

	if err := e.machine.to(phaseRefine); err != nil {
		return "", err
	}
	refined, err := e.refine(ctx, findings, reflection)
	if err != nil {
		return "", err
	}
	e.progress.Report("Refined research direction", bar.at(1))
	span.SetAttributes(attribute.Int("research.findings", len(findings)))
	return refined, nil
}

// invoke calls the model and records the outcome under step.
func (e *Engine) invoke(ctx context.Context, step, systemPrompt, userPrompt string) (string, error) {
	out, err := e.model.Invoke(ctx, systemPrompt, userPrompt)
	if err != nil {
		metrics.ModelInvocations.WithLabelValues(step, "error").Inc()
		return "", err
	}
	metrics.ModelInvocations.WithLabelValues(step, "ok").Inc()
	return out, nil
}
