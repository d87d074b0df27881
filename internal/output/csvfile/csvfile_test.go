package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crimson-sun/auditor/internal/model"
)

func testReport() model.Report {
	return model.Report{
		RunID: "run-1",
		Records: []model.NormalizedRecord{
			{EventType: "audit.user.login_failure", CreatedAt: "2026-10-18T09:00:00Z", TargetName: "jdoe", TargetType: "user", ActorName: "jdoe", ActorType: "user", SpaceName: "", OrgName: ""},
			{EventType: "audit.app.update", CreatedAt: "2026-10-18T10:00:00Z", TargetName: "api, v2", TargetType: "app", ActorName: "ops", ActorType: "user", SpaceName: "prod", OrgName: "agency"},
		},
		Summary: model.SummaryRecord{Date: "2026-10-19", TotalEvents: 2, FailedLogins: 1, SuspiciousActivities: 1, Status: model.StatusProcessed},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return rows
}

func TestWriteProducesBothFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	out, err := New(dir)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := out.Write(context.Background(), testReport()); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	out.Close()

	events := readCSV(t, filepath.Join(dir, "Events_2026-10-19.csv"))
	if len(events) != 3 {
		t.Fatalf("got %d event rows, want 3 (header + 2)", len(events))
	}
	if strings.Join(events[0], ",") != strings.Join(model.RecordColumns, ",") {
		t.Errorf("header = %v", events[0])
	}
	if events[2][2] != "api, v2" {
		t.Errorf("embedded comma not preserved: %q", events[2][2])
	}

	summary := readCSV(t, filepath.Join(dir, "Summary_2026-10-19.csv"))
	if len(summary) != 2 {
		t.Fatalf("got %d summary rows, want 2", len(summary))
	}
	want := []string{"2026-10-19", "2", "1", "0", "1", "Processed"}
	if strings.Join(summary[1], ",") != strings.Join(want, ",") {
		t.Errorf("summary row = %v, want %v", summary[1], want)
	}
}

func TestNoEventsWritesHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	out, _ := New(dir)
	report := model.Report{Summary: model.SummaryRecord{Date: "2026-10-19", Status: model.StatusNoEventsFound}}
	if err := out.Write(context.Background(), report); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	events := readCSV(t, out.EventsPath("2026-10-19"))
	if len(events) != 1 {
		t.Fatalf("got %d rows, want header only", len(events))
	}
	summary := readCSV(t, out.SummaryPath("2026-10-19"))
	if summary[1][5] != "NoEventsFound" {
		t.Errorf("status = %q, want NoEventsFound", summary[1][5])
	}
}

func TestExcelHint(t *testing.T) {
	dir := t.TempDir()
	out, _ := New(dir, WithExcelHint(true))
	if err := out.Write(context.Background(), testReport()); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	data, _ := os.ReadFile(out.SummaryPath("2026-10-19"))
	if !strings.HasPrefix(string(data), "sep=,\n") {
		t.Errorf("expected sep hint, got %q", string(data))
	}
}

func TestRewriteReplacesFiles(t *testing.T) {
	dir := t.TempDir()
	out, _ := New(dir)
	report := testReport()
	out.Write(context.Background(), report)
	first, _ := os.ReadFile(out.EventsPath("2026-10-19"))
	out.Write(context.Background(), report)
	second, _ := os.ReadFile(out.EventsPath("2026-10-19"))
	if string(first) != string(second) {
		t.Error("re-running the same report changed the output")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("got %d files, want 2 (temp files left behind?)", len(entries))
	}
}

func TestWriteRequiresDate(t *testing.T) {
	out, _ := New(t.TempDir())
	if err := out.Write(context.Background(), model.Report{}); err == nil {
		t.Fatal("expected error for report without date")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestEncodeReturnsWriteError(t *testing.T) {
	rows := [][]string{testReport().Records[0].Row()}
	for _, hint := range []bool{false, true} {
		err := encode(failingWriter{}, hint, model.RecordColumns, rows)
		if err == nil || !strings.Contains(err.Error(), "disk full") {
			t.Fatalf("excelHint=%v: expected write error, got %v", hint, err)
		}
	}
}
