package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func testReport() *Report {
	return &Report{
		Date: "2026-10-15",
		Summary: ReportSummary{
			Headline:          "Agents everywhere",
			KeyTrends:         []string{"tool use"},
			PlatformInsights:  map[string]string{"github": "agent SDKs trending"},
			PlatformsSearched: 2,
			KeywordsUsed:      []string{"llm agents"},
			NewKeywordsFound:  1,
			TotalResults:      2,
		},
		DetailedResults: []PlatformResult{
			{Platform: "github", Keyword: "llm agents", Results: []ResultItem{
				{Title: "acme/agent-kit", URL: "https://github.com/acme/agent-kit", Description: "Agents"},
			}},
			{Platform: "youtube", Keyword: "llm agents", Results: []ResultItem{}, Error: "HTTP 403 for https://www.googleapis.com/youtube/v3/search"},
		},
		NewKeywords:     []DiscoveredKeyword{{Keyword: "browser agents", Score: 0.8}},
		Recommendations: []string{"Consider adding 1 new keywords to monitoring"},
		ActiveKeywords:  []string{"llm agents"},
		GeneratedAt:     time.Date(2026, 10, 15, 6, 0, 0, 0, time.UTC),
	}
}

func newTestFileSink(t *testing.T, dir string) *FileSink {
	t.Helper()
	sink, err := NewFileSink(dir, defaultReportTemplate)
	if err != nil {
		t.Fatal(err)
	}
	return sink
}

type slowSink struct{}

func (slowSink) Name() string { return "slow" }

func (slowSink) Publish(ctx context.Context, report *Report) error {
	<-ctx.Done()
	return ctx.Err()
}

type panickingSink struct{}

func (panickingSink) Name() string { return "panicky" }

func (panickingSink) Publish(ctx context.Context, report *Report) error {
	panic("nil map")
}

func TestPublishFansOut(t *testing.T) {
	dir := t.TempDir()
	notion := &fakeSink{name: "notion", err: errors.New("HTTP 401")}
	postgres := &fakeSink{name: "postgres"}
	p := NewReportPublisher(newTestFileSink(t, dir), time.Second, notion, postgres)

	outcome, err := p.Publish(context.Background(), testReport())
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if outcome.ReportFile != filepath.Join(dir, "ai_trends_2026-10-15.json") {
		t.Errorf("ReportFile = %s", outcome.ReportFile)
	}
	if _, err := os.Stat(outcome.ReportFile); err != nil {
		t.Errorf("local report missing: %v", err)
	}
	if len(postgres.reports) != 1 {
		t.Error("a failing sink must not stop the next one")
	}
	if !outcome.Partial() {
		t.Error("outcome should be partial")
	}
	if diff := cmp.Diff([]string{"notion"}, outcome.FailedSinks()); diff != "" {
		t.Errorf("FailedSinks mismatch (-want +got):\n%s", diff)
	}

	want := map[string]SinkOutcome{
		"file":     {OK: true},
		"notion":   {Error: "HTTP 401"},
		"postgres": {OK: true},
	}
	if diff := cmp.Diff(want, outcome.Sinks); diff != "" {
		t.Errorf("Sinks mismatch (-want +got):\n%s", diff)
	}
}

func TestPublishLocalFailure(t *testing.T) {
	// a regular file where the reports directory should be
	blocker := filepath.Join(t.TempDir(), "reports")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	notion := &fakeSink{name: "notion"}
	p := NewReportPublisher(newTestFileSink(t, blocker), time.Second, notion)

	outcome, err := p.Publish(context.Background(), testReport())
	var pubErr *PublishError
	if !errors.As(err, &pubErr) || pubErr.Sink != "file" {
		t.Fatalf("Publish() error = %v, want PublishError from file", err)
	}
	if outcome.Sinks["file"].OK {
		t.Error("file sink should be marked failed")
	}
	if len(notion.reports) != 0 {
		t.Error("external sinks must not run when the local write fails")
	}
}

func TestPublishSinkTimeoutAndPanic(t *testing.T) {
	after := &fakeSink{name: "postgres"}
	p := NewReportPublisher(newTestFileSink(t, t.TempDir()), 20*time.Millisecond, slowSink{}, panickingSink{}, after)

	outcome, err := p.Publish(context.Background(), testReport())
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(outcome.Errors) != 2 {
		t.Fatalf("got %d sink errors, want 2", len(outcome.Errors))
	}
	if !errors.Is(outcome.Errors[0], context.DeadlineExceeded) {
		t.Errorf("slow sink error = %v, want deadline exceeded", outcome.Errors[0])
	}
	if outcome.Errors[1].Sink != "panicky" {
		t.Errorf("second error from %s, want panicky", outcome.Errors[1].Sink)
	}
	if !outcome.Sinks["postgres"].OK || len(after.reports) != 1 {
		t.Error("sinks after a timeout and a panic must still run")
	}
}

func TestPublishCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sink := &cancellingSink{cancel: cancel}
	p := NewReportPublisher(newTestFileSink(t, t.TempDir()), time.Second, sink)

	if _, err := p.Publish(ctx, testReport()); !errors.Is(err, context.Canceled) {
		t.Errorf("Publish() error = %v, want context.Canceled", err)
	}
}

type cancellingSink struct {
	cancel context.CancelFunc
}

func (s *cancellingSink) Name() string { return "cancelling" }

func (s *cancellingSink) Publish(ctx context.Context, report *Report) error {
	s.cancel()
	return ctx.Err()
}
