package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const metricsJob = "trend_researcher"

var keywordScoreDesc = prometheus.NewDesc(
	"trend_researcher_keyword_score",
	"Relevance score of each keyword in the master store",
	[]string{"keyword", "source"},
	nil,
)

// KeywordStoreCollector reports the scores of the master store on each gather
type KeywordStoreCollector struct {
	store KeywordMap
}

// Describe sends the metric descriptor to the channel.
func (c *KeywordStoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- keywordScoreDesc
}

// Collect emits one gauge per keyword.
func (c *KeywordStoreCollector) Collect(ch chan<- prometheus.Metric) {
	for _, rec := range c.store {
		ch <- prometheus.MustNewConstMetric(
			keywordScoreDesc,
			prometheus.GaugeValue,
			rec.Score,
			rec.Keyword,
			string(rec.Source),
		)
	}
}

// RunMetrics holds the metrics of a single pipeline run
type RunMetrics struct {
	registry           *prometheus.Registry
	runs               *prometheus.CounterVec
	stageDuration      *prometheus.GaugeVec
	collectionFailures *prometheus.CounterVec
	collectedResults   prometheus.Gauge
	activeKeywords     prometheus.Gauge
	newKeywords        prometheus.Gauge
	sinkFailures       *prometheus.CounterVec
	lastRun            prometheus.Gauge
	keywords           *KeywordStoreCollector
}

// NewRunMetrics registers the run metrics on a fresh registry
func NewRunMetrics() *RunMetrics {
	m := &RunMetrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trend_researcher_runs_total",
			Help: "Pipeline runs by final status",
		}, []string{"status"}),
		stageDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trend_researcher_stage_duration_seconds",
			Help: "Duration of each pipeline stage in the last run",
		}, []string{"stage"}),
		collectionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trend_researcher_collection_failures_total",
			Help: "Failed platform queries",
		}, []string{"platform"}),
		collectedResults: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trend_researcher_collected_results",
			Help: "Search results collected in the last run",
		}),
		activeKeywords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trend_researcher_active_keywords",
			Help: "Size of the active keyword set",
		}),
		newKeywords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trend_researcher_new_keywords",
			Help: "Keywords added to the master store in the last run",
		}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trend_researcher_publish_failures_total",
			Help: "Failed publish attempts by sink",
		}, []string{"sink"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trend_researcher_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
		keywords: &KeywordStoreCollector{},
	}
	m.registry.MustRegister(
		m.runs,
		m.stageDuration,
		m.collectionFailures,
		m.collectedResults,
		m.activeKeywords,
		m.newKeywords,
		m.sinkFailures,
		m.lastRun,
		m.keywords,
	)
	return m
}

// WatchStore exposes the keyword scores of store
func (m *RunMetrics) WatchStore(store KeywordMap) {
	m.keywords.store = store
}

func (m *RunMetrics) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Set(d.Seconds())
}

func (m *RunMetrics) ObserveCollection(c *Collection) {
	total := 0
	for _, pr := range c.Results {
		total += len(pr.Results)
	}
	m.collectedResults.Set(float64(total))
	for _, f := range c.Failures {
		m.collectionFailures.WithLabelValues(f.Platform).Inc()
	}
}

func (m *RunMetrics) ObservePublish(o *PublishOutcome) {
	for _, e := range o.Errors {
		m.sinkFailures.WithLabelValues(e.Sink).Inc()
	}
}

// ObserveRun records the final outcome of a run
func (m *RunMetrics) ObserveRun(entry HistoryEntry) {
	m.runs.WithLabelValues(string(entry.Status)).Inc()
	m.activeKeywords.Set(float64(entry.ActiveCount))
	m.newKeywords.Set(float64(entry.NewKeywordsCount))
	m.lastRun.Set(float64(entry.FinishedAt.Unix()))
}

// Push sends the registry to a Prometheus Pushgateway
func (m *RunMetrics) Push(ctx context.Context, url string) error {
	if err := push.New(url, metricsJob).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
