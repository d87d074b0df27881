package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crimson-sun/auditor/internal/model"
)

func testReport() model.Report {
	return model.Report{
		RunID: "run-1",
		Records: []model.NormalizedRecord{
			{EventType: "audit.app.delete-request", CreatedAt: "2026-10-18T09:00:00Z"},
		},
		Summary: model.SummaryRecord{Date: "2026-10-19", TotalEvents: 1, SuspiciousActivities: 1, Status: model.StatusProcessed},
	}
}

func TestPostsReportAsJSON(t *testing.T) {
	var got model.Report
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	out := New(srv.URL)
	if err := out.Write(context.Background(), testReport()); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	if contentType != "application/json" {
		t.Errorf("Content-Type = %q", contentType)
	}
	if got.RunID != "run-1" || got.Summary.SuspiciousActivities != 1 || len(got.Records) != 1 {
		t.Errorf("unexpected report received: %+v", got)
	}
}

func TestRetryOn5xx(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n <= 2 {
			w.WriteHeader(500)
			return
		}
		w.WriteHeader(200)
	}))
	defer srv.Close()

	out := New(srv.URL, WithBaseDelay(time.Millisecond))
	if err := out.Write(context.Background(), testReport()); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestRetriesExhausted(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(503)
	}))
	defer srv.Close()

	out := New(srv.URL, WithBaseDelay(time.Millisecond))
	if err := out.Write(context.Background(), testReport()); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts.Load() != maxRetries+1 {
		t.Errorf("expected %d attempts, got %d", maxRetries+1, attempts.Load())
	}
}

func TestNoRetryOn4xx(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(400)
	}))
	defer srv.Close()

	out := New(srv.URL, WithBaseDelay(time.Millisecond))
	err := out.Write(context.Background(), testReport())

	if err == nil {
		t.Error("expected error for 400 response")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected exactly 1 attempt for 4xx, got %d", attempts.Load())
	}
}

func TestCustomHeaders(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("X-Custom-Auth")
		w.WriteHeader(200)
	}))
	defer srv.Close()

	out := New(srv.URL, WithHeaders(map[string]string{"X-Custom-Auth": "secret123"}))
	out.Write(context.Background(), testReport())

	if gotAuth != "secret123" {
		t.Errorf("custom header = %q, want secret123", gotAuth)
	}
}

func TestCanceledContextStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(502)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	out := New(srv.URL, WithBaseDelay(time.Hour))
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	if err := out.Write(ctx, testReport()); err == nil {
		t.Fatal("expected error from canceled context")
	}
}
