package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestKeywordStoreCollector(t *testing.T) {
	c := &KeywordStoreCollector{store: KeywordMap{
		"llm agents": {Keyword: "llm agents", Score: 0.9, Source: SourceManual},
		"ai chips":   {Keyword: "ai chips", Score: 0.6, Source: SourceDiscovered},
	}}

	if n := testutil.CollectAndCount(c, "trend_researcher_keyword_score"); n != 2 {
		t.Errorf("collected %d series, want 2", n)
	}

	expected := `
# HELP trend_researcher_keyword_score Relevance score of each keyword in the master store
# TYPE trend_researcher_keyword_score gauge
trend_researcher_keyword_score{keyword="ai chips",source="discovered"} 0.6
trend_researcher_keyword_score{keyword="llm agents",source="manual"} 0.9
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected)); err != nil {
		t.Error(err)
	}
}

func TestRunMetricsObserve(t *testing.T) {
	m := NewRunMetrics()
	m.WatchStore(KeywordMap{"ai chips": {Keyword: "ai chips", Score: 0.6, Source: SourceManual}})

	m.ObserveCollection(&Collection{
		Results: []PlatformResult{
			{Platform: "github", Results: []ResultItem{{}, {}}},
			{Platform: "youtube", Results: []ResultItem{}},
		},
		Failures: []*CollectionError{{Platform: "youtube", Keyword: "ai chips", Err: errors.New("403")}},
	})
	m.ObservePublish(&PublishOutcome{Errors: []*PublishError{{Sink: "notion"}}})
	m.ObserveStage(StageCollecting, 1500*time.Millisecond)
	m.ObserveRun(HistoryEntry{
		Status:           StatusPartial,
		ActiveCount:      3,
		NewKeywordsCount: 2,
		FinishedAt:       time.Unix(1_790_000_000, 0),
	})

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"collected results", testutil.ToFloat64(m.collectedResults), 2},
		{"youtube failures", testutil.ToFloat64(m.collectionFailures.WithLabelValues("youtube")), 1},
		{"notion failures", testutil.ToFloat64(m.sinkFailures.WithLabelValues("notion")), 1},
		{"collecting duration", testutil.ToFloat64(m.stageDuration.WithLabelValues(StageCollecting)), 1.5},
		{"partial runs", testutil.ToFloat64(m.runs.WithLabelValues("partial")), 1},
		{"active keywords", testutil.ToFloat64(m.activeKeywords), 3},
		{"new keywords", testutil.ToFloat64(m.newKeywords), 2},
		{"last run", testutil.ToFloat64(m.lastRun), 1_790_000_000},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	if n, err := testutil.GatherAndCount(m.registry, "trend_researcher_keyword_score"); err != nil || n != 1 {
		t.Errorf("keyword score series = %d, %v; want 1", n, err)
	}
}

func TestRunMetricsPush(t *testing.T) {
	var path, body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := NewRunMetrics()
	m.ObserveRun(HistoryEntry{Status: StatusCompleted, FinishedAt: time.Now()})

	if err := m.Push(context.Background(), server.URL); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if path != "/metrics/job/"+metricsJob {
		t.Errorf("pushed to %s", path)
	}
	if body == "" {
		t.Error("push carried no metrics")
	}
}

func TestRunMetricsPushFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if err := NewRunMetrics().Push(context.Background(), server.URL); err == nil {
		t.Fatal("Push() should fail on a 500 from the gateway")
	}
}
