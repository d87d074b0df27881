package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/crimson-sun/auditor/internal/connector"
	"github.com/crimson-sun/auditor/internal/engine"
	"github.com/crimson-sun/auditor/internal/metrics"
	"github.com/crimson-sun/auditor/internal/model"
	"github.com/crimson-sun/auditor/internal/output"
)

// DefaultLookback is how far back a run fetches events when no lookback is
// configured: one week plus a day of overlap.
const DefaultLookback = 8 * 24 * time.Hour

// Processor turns a fetched payload into records, classification and summary.
// *engine.Engine satisfies it.
type Processor interface {
	Process(p model.Payload, runDate time.Time) (engine.Output, error)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLookback sets the fetch window. Non-positive values are ignored.
func WithLookback(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.lookback = d
		}
	}
}

// WithClock replaces time.Now, which fixes both the run date and the window.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics records run metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithTracer sets the tracer for run spans. Default: the global provider's.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

// WithRunID replaces the run ID generator. Default: random UUIDs.
func WithRunID(gen func() string) Option {
	return func(p *Pipeline) { p.newRunID = gen }
}

// Pipeline connects a connector, engine, and output into one batch run.
type Pipeline struct {
	connector connector.Connector
	engine    Processor
	output    output.Output

	lookback time.Duration
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	newRunID func() string
}

// New creates a Pipeline from the given components.
func New(conn connector.Connector, eng Processor, out output.Output, opts ...Option) *Pipeline {
	p := &Pipeline{
		connector: conn,
		engine:    eng,
		output:    out,
		lookback:  DefaultLookback,
		now:       time.Now,
		logger:    slog.Default(),
		tracer:    otel.Tracer("github.com/crimson-sun/auditor/internal/pipeline"),
		newRunID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run fetches events from now minus the lookback, processes them and writes
// one report to the output. Failures come back as *model.SourceError,
// *model.NormalizationError or *model.SinkError; a payload of unrecognized
// shape counts as a source failure. Nothing is written unless processing
// succeeded. An empty batch still writes a NoEventsFound report.
// Nothing is retried.
func (p *Pipeline) Run(ctx context.Context, cfg connector.ConnectorConfig) (model.Report, error) {
	start := p.now()
	runID := p.newRunID()
	logger := p.logger.With("run_id", runID)

	ctx, span := p.tracer.Start(ctx, "auditor.run", trace.WithAttributes(
		attribute.String("auditor.run_id", runID),
		attribute.String("auditor.source", cfg.Provider),
	))
	defer span.End()

	since := start.Add(-p.lookback)
	logger.Info("run started", "source", cfg.Provider, "since", since.Format(time.RFC3339))

	payload, err := p.connector.Fetch(ctx, cfg, since)
	if err != nil {
		return p.fail(span, logger, metrics.StatusSourceError, start,
			&model.SourceError{Provider: cfg.Provider, Err: err})
	}
	logger.Debug("payload fetched", "bytes", len(payload.Body), "format", string(payload.Format))

	out, err := p.engine.Process(payload, start)
	if errors.Is(err, model.ErrPayloadShape) {
		return p.fail(span, logger, metrics.StatusSourceError, start,
			&model.SourceError{Provider: cfg.Provider, Err: err})
	}
	if err != nil {
		var nerr *model.NormalizationError
		if !errors.As(err, &nerr) {
			nerr = &model.NormalizationError{Reason: "process payload", Err: err}
		}
		return p.fail(span, logger, metrics.StatusNormalizeErr, start, nerr)
	}
	if out.Dropped > 0 {
		logger.Warn("dropped malformed records", "dropped", out.Dropped, "kept", len(out.Records))
	}

	report := model.Report{
		RunID:   runID,
		Records: out.Records,
		Summary: out.Summary,
		Dropped: out.Dropped,
	}

	if err := p.output.Write(ctx, report); err != nil {
		return p.fail(span, logger, metrics.StatusSinkError, start, &model.SinkError{Err: err})
	}

	finished := p.now()
	p.metrics.ObserveRun(report.Summary, report.Dropped, finished, finished.Sub(start))

	s := report.Summary
	span.SetAttributes(
		attribute.String("auditor.status", string(s.Status)),
		attribute.Int("auditor.total_events", s.TotalEvents),
		attribute.Int("auditor.dropped", report.Dropped),
	)
	logger.Info("run finished",
		"date", s.Date,
		"status", string(s.Status),
		"total_events", s.TotalEvents,
		"failed_logins", s.FailedLogins,
		"unauthorized_access", s.UnauthorizedAccess,
		"suspicious_activities", s.SuspiciousActivities,
		"duration", finished.Sub(start),
	)
	return report, nil
}

func (p *Pipeline) fail(span trace.Span, logger *slog.Logger, status string, start time.Time, err error) (model.Report, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Error("run failed", "stage", status, "error", err)
	p.metrics.ObserveFailure(status, p.now().Sub(start))
	return model.Report{}, err
}

// Close shuts down the output.
func (p *Pipeline) Close() error {
	return p.output.Close()
}
