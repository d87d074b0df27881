package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/crimson-sun/auditor/internal/connector"
	"github.com/crimson-sun/auditor/internal/engine"
	"github.com/crimson-sun/auditor/internal/engine/classifier"
	"github.com/crimson-sun/auditor/internal/metrics"
	"github.com/crimson-sun/auditor/internal/model"
)

// --- mocks ---

// mockConnector returns a fixed payload, or err when set, and records the
// window it was asked for.
type mockConnector struct {
	payload model.Payload
	err     error
	since   time.Time
	calls   int
}

func (m *mockConnector) Fetch(_ context.Context, _ connector.ConnectorConfig, since time.Time) (model.Payload, error) {
	m.calls++
	m.since = since
	return m.payload, m.err
}

// mockProcessor fails with err for every payload.
type mockProcessor struct {
	err error
}

func (m *mockProcessor) Process(model.Payload, time.Time) (engine.Output, error) {
	return engine.Output{}, m.err
}

type mockOutput struct {
	mu      sync.Mutex
	reports []model.Report
	err     error
	closed  bool
}

func (m *mockOutput) Write(_ context.Context, r model.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.reports = append(m.reports, r)
	return nil
}

func (m *mockOutput) Close() error {
	m.closed = true
	return nil
}

func (m *mockOutput) Reports() []model.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]model.Report, len(m.reports))
	copy(cp, m.reports)
	return cp
}

var fixedNow = time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func jsonPayload(body string) model.Payload {
	return model.Payload{Format: model.FormatJSON, Body: []byte(body)}
}

func newTestPipeline(conn connector.Connector, out *mockOutput, opts ...Option) *Pipeline {
	eng := engine.New(classifier.New(classifier.DefaultRules()))
	opts = append([]Option{
		WithClock(clock),
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
	}, opts...)
	return New(conn, eng, out, opts...)
}

var cfg = connector.ConnectorConfig{Provider: "mock"}

// --- tests ---

func TestRun_WritesReport(t *testing.T) {
	conn := &mockConnector{payload: jsonPayload(`{"resources":[
		{"type":"audit.user.LoginFailure","created_at":"2026-10-18T01:00:00Z","actor":{"name":"jdoe","type":"user"}},
		{"type":"audit.app.delete-request","created_at":"2026-10-18T02:00:00Z","target":{"name":"api","type":"app"}},
		{"type":"audit.space.unauthorized_access","created_at":"2026-10-18T03:00:00Z"}
	]}`)}
	out := &mockOutput{}
	p := newTestPipeline(conn, out, WithRunID(func() string { return "run-42" }))

	report, err := p.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := model.SummaryRecord{
		Date:                 "2026-10-19",
		TotalEvents:          3,
		FailedLogins:         1,
		UnauthorizedAccess:   1,
		SuspiciousActivities: 1,
		Status:               model.StatusProcessed,
	}
	if report.Summary != want {
		t.Fatalf("summary = %+v, want %+v", report.Summary, want)
	}
	if report.RunID != "run-42" {
		t.Fatalf("run id = %q", report.RunID)
	}

	written := out.Reports()
	if len(written) != 1 {
		t.Fatalf("expected 1 report written, got %d", len(written))
	}
	if len(written[0].Records) != 3 || written[0].Records[1].TargetName != "api" {
		t.Fatalf("unexpected records: %+v", written[0].Records)
	}
}

func TestRun_LookbackWindow(t *testing.T) {
	conn := &mockConnector{}
	p := newTestPipeline(conn, &mockOutput{})
	if _, err := p.Run(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := fixedNow.Add(-8 * 24 * time.Hour); !conn.since.Equal(want) {
		t.Fatalf("since = %v, want %v", conn.since, want)
	}

	p = newTestPipeline(conn, &mockOutput{}, WithLookback(24*time.Hour), WithLookback(0))
	p.Run(context.Background(), cfg)
	if want := fixedNow.Add(-24 * time.Hour); !conn.since.Equal(want) {
		t.Fatalf("since = %v, want %v", conn.since, want)
	}
}

func TestRun_NoEventsStillWritesSummary(t *testing.T) {
	out := &mockOutput{}
	p := newTestPipeline(&mockConnector{payload: jsonPayload(`{"resources":[]}`)}, out)

	report, err := p.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := model.SummaryRecord{Date: "2026-10-19", Status: model.StatusNoEventsFound}
	if report.Summary != want {
		t.Fatalf("summary = %+v, want %+v", report.Summary, want)
	}
	if len(out.Reports()) != 1 {
		t.Fatal("NoEventsFound summary was not written")
	}
}

func TestRun_DefaultRunIDIsUUID(t *testing.T) {
	p := newTestPipeline(&mockConnector{}, &mockOutput{})
	report, err := p.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := uuid.Parse(report.RunID); err != nil {
		t.Fatalf("run id %q is not a UUID: %v", report.RunID, err)
	}
}

func TestRun_SourceErrorAbortsBeforeWrite(t *testing.T) {
	out := &mockOutput{}
	m := metrics.New()
	p := newTestPipeline(&mockConnector{err: errors.New("connection refused")}, out, WithMetrics(m))

	_, err := p.Run(context.Background(), connector.ConnectorConfig{Provider: "cfapi"})
	if !errors.Is(err, model.ErrSource) {
		t.Fatalf("expected source error, got %v", err)
	}
	var serr *model.SourceError
	if !errors.As(err, &serr) || serr.Provider != "cfapi" {
		t.Fatalf("expected *SourceError for cfapi, got %#v", err)
	}
	if len(out.Reports()) != 0 {
		t.Fatal("nothing should be written after a source failure")
	}
	if got := testutil.ToFloat64(m.Runs.WithLabelValues(metrics.StatusSourceError)); got != 1 {
		t.Fatalf("source_error runs = %v, want 1", got)
	}
}

func TestRun_NormalizationErrorAbortsBeforeWrite(t *testing.T) {
	out := &mockOutput{}
	p := newTestPipeline(&mockConnector{payload: jsonPayload(`{"resources":`)}, out)

	_, err := p.Run(context.Background(), cfg)
	if !errors.Is(err, model.ErrNormalization) {
		t.Fatalf("expected normalization error, got %v", err)
	}
	if len(out.Reports()) != 0 {
		t.Fatal("nothing should be written after a normalization failure")
	}
}

func TestRun_UnrecognizedPayloadIsSourceError(t *testing.T) {
	out := &mockOutput{}
	m := metrics.New()
	p := newTestPipeline(&mockConnector{payload: jsonPayload(`{"errors":[{"detail":"maintenance"}]}`)}, out, WithMetrics(m))

	_, err := p.Run(context.Background(), connector.ConnectorConfig{Provider: "cfapi"})
	var serr *model.SourceError
	if !errors.As(err, &serr) || serr.Provider != "cfapi" {
		t.Fatalf("expected *SourceError for cfapi, got %#v", err)
	}
	if !errors.Is(err, model.ErrPayloadShape) {
		t.Fatalf("shape cause lost: %v", err)
	}
	if len(out.Reports()) != 0 {
		t.Fatal("nothing should be written for an unrecognized payload")
	}
	if got := testutil.ToFloat64(m.Runs.WithLabelValues(metrics.StatusSourceError)); got != 1 {
		t.Fatalf("source_error runs = %v, want 1", got)
	}
}

func TestRun_ProcessorErrorIsWrapped(t *testing.T) {
	out := &mockOutput{}
	p := New(&mockConnector{}, &mockProcessor{err: errors.New("boom")}, out, WithClock(clock))

	_, err := p.Run(context.Background(), cfg)
	var nerr *model.NormalizationError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected *NormalizationError, got %#v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("cause lost: %v", err)
	}
}

func TestRun_SinkError(t *testing.T) {
	m := metrics.New()
	out := &mockOutput{err: errors.New("disk full")}
	p := newTestPipeline(&mockConnector{}, out, WithMetrics(m))

	_, err := p.Run(context.Background(), cfg)
	if !errors.Is(err, model.ErrSink) {
		t.Fatalf("expected sink error, got %v", err)
	}
	if got := testutil.ToFloat64(m.Runs.WithLabelValues(metrics.StatusSinkError)); got != 1 {
		t.Fatalf("sink_error runs = %v, want 1", got)
	}
}

func TestRun_RecordsMetrics(t *testing.T) {
	m := metrics.New()
	body := "audit.user.LoginFailure,2026-10-18,jdoe,user,jdoe,user,,\nnot,enough\n"
	conn := &mockConnector{payload: model.Payload{Format: model.FormatText, Body: []byte(body)}}
	p := newTestPipeline(conn, &mockOutput{}, WithMetrics(m))

	if _, err := p.Run(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := testutil.ToFloat64(m.Runs.WithLabelValues(metrics.StatusProcessed)); got != 1 {
		t.Fatalf("processed runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DroppedRecords); got != 1 {
		t.Fatalf("dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ClassifiedTotal.WithLabelValues("FailedLogin")); got != 1 {
		t.Fatalf("failed logins = %v, want 1", got)
	}
}

func TestRun_LogsDroppedRecords(t *testing.T) {
	var buf bytes.Buffer
	body := "audit.app.update,2026-10-18,api,app,ops,user,prod,agency\nbroken\n"
	conn := &mockConnector{payload: model.Payload{Format: model.FormatText, Body: []byte(body)}}
	p := newTestPipeline(conn, &mockOutput{}, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	if _, err := p.Run(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logs := buf.String()
	if !strings.Contains(logs, "dropped malformed records") || !strings.Contains(logs, "dropped=1") {
		t.Fatalf("expected drop warning in logs, got:\n%s", logs)
	}
	if !strings.Contains(logs, "run finished") {
		t.Fatalf("expected finish record in logs, got:\n%s", logs)
	}
}

func TestRun_Idempotent(t *testing.T) {
	conn := &mockConnector{payload: jsonPayload(`[{"type":"audit.app.update"},{"type":"audit.user.login_failure"}]`)}
	out := &mockOutput{}
	p := newTestPipeline(conn, out, WithRunID(func() string { return "same" }))

	first, err := p.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := p.Run(context.Background(), cfg)
	if first.Summary != second.Summary || len(first.Records) != len(second.Records) {
		t.Fatalf("runs differ: %+v vs %+v", first.Summary, second.Summary)
	}
}

func TestClose(t *testing.T) {
	out := &mockOutput{}
	p := newTestPipeline(&mockConnector{}, out)
	if err := p.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.closed {
		t.Fatal("output not closed")
	}
}
