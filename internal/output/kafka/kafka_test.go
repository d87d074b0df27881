package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/crimson-sun/auditor/internal/model"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
	closed  bool
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	var results kgo.ProduceResults
	for _, r := range rs {
		f.records = append(f.records, r)
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func (f *fakeProducer) Close() { f.closed = true }

func TestWrite_ProducesKeyedRecord(t *testing.T) {
	fp := &fakeProducer{}
	out := &Output{p: fp, topic: "audit-summaries"}

	report := model.Report{
		RunID:   "run-1",
		Records: []model.NormalizedRecord{{EventType: "audit.app.update"}},
		Summary: model.SummaryRecord{Date: "2026-10-19", TotalEvents: 1, SuspiciousActivities: 1, Status: model.StatusProcessed},
	}
	if err := out.Write(context.Background(), report); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	if len(fp.records) != 1 {
		t.Fatalf("got %d records, want 1", len(fp.records))
	}
	rec := fp.records[0]
	if rec.Topic != "audit-summaries" {
		t.Errorf("topic = %q", rec.Topic)
	}
	if string(rec.Key) != "2026-10-19" {
		t.Errorf("key = %q, want run date", rec.Key)
	}

	var msg Message
	if err := json.Unmarshal(rec.Value, &msg); err != nil {
		t.Fatalf("invalid JSON value: %v", err)
	}
	if msg.RunID != "run-1" || msg.Summary.SuspiciousActivities != 1 {
		t.Errorf("unexpected message: %+v", msg)
	}
	var raw map[string]any
	json.Unmarshal(rec.Value, &raw)
	if _, ok := raw["records"]; ok {
		t.Error("records should not be published")
	}
}

func TestWrite_ProduceError(t *testing.T) {
	fp := &fakeProducer{err: errors.New("broker unavailable")}
	out := &Output{p: fp, topic: "t"}
	err := out.Write(context.Background(), model.Report{Summary: model.SummaryRecord{Date: "2026-10-19"}})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestClose(t *testing.T) {
	fp := &fakeProducer{}
	out := &Output{p: fp}
	out.Close()
	if !fp.closed {
		t.Error("producer not closed")
	}
}

func TestDial_Validation(t *testing.T) {
	if _, err := Dial(nil, "t"); err == nil {
		t.Error("expected error for missing brokers")
	}
	if _, err := Dial([]string{"localhost:9092"}, ""); err == nil {
		t.Error("expected error for missing topic")
	}
}
