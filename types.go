package main

import "time"

const dateLayout = "2006-01-02"

// KeywordSource tells where a keyword entered the master store
type KeywordSource string

const (
	SourceManual     KeywordSource = "manual"
	SourceDiscovered KeywordSource = "discovered"
)

// KeywordRecord is one entry of the master keyword store
type KeywordRecord struct {
	Keyword        string        `json:"-"`
	Score          float64       `json:"score"`
	FirstSeen      string        `json:"first_seen"`
	LastUsed       string        `json:"last_used,omitempty"`
	UsageCount     int           `json:"usage_count"`
	Source         KeywordSource `json:"source"`
	DiscoveredFrom string        `json:"discovered_from,omitempty"`
	LastDiscovered string        `json:"last_discovered,omitempty"`
}

// DiscoveredKeyword is a keyword candidate surfaced by synthesis
type DiscoveredKeyword struct {
	Keyword string  `json:"keyword"`
	Score   float64 `json:"score"`
}

// PlatformResult is the standardized outcome of one (platform, keyword) query
type PlatformResult struct {
	Platform          string                 `json:"platform"`
	Keyword           string                 `json:"keyword"`
	Timestamp         time.Time              `json:"timestamp"`
	Results           []ResultItem           `json:"results"`
	EngagementMetrics map[string]interface{} `json:"engagement_metrics"`
	SentimentScore    float64                `json:"sentiment_score"`
	Error             string                 `json:"error,omitempty"`
}

// ResultItem is a single search hit; platform specific fields live in Extra
type ResultItem struct {
	Title       string                 `json:"title"`
	URL         string                 `json:"url,omitempty"`
	Description string                 `json:"description,omitempty"`
	PublishedAt string                 `json:"published_at,omitempty"`
	Author      string                 `json:"author,omitempty"`
	Excerpt     string                 `json:"excerpt,omitempty"`
	TrendScore  float64                `json:"trend_score,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// ReportSummary holds the key-value insights of a report
type ReportSummary struct {
	Headline          string            `json:"headline"`
	KeyTrends         []string          `json:"key_trends"`
	PlatformInsights  map[string]string `json:"platform_insights"`
	PlatformsSearched int               `json:"platforms_searched"`
	KeywordsUsed      []string          `json:"keywords_used"`
	NewKeywordsFound  int               `json:"new_keywords_found"`
	TotalResults      int               `json:"total_results"`
}

// Report is the daily research report, one per calendar date
type Report struct {
	Date            string              `json:"date"`
	Summary         ReportSummary       `json:"summary"`
	DetailedResults []PlatformResult    `json:"detailed_results"`
	NewKeywords     []DiscoveredKeyword `json:"new_keywords"`
	Recommendations []string            `json:"recommendations"`
	ActiveKeywords  []string            `json:"active_keywords"`
	Model           string              `json:"model,omitempty"`
	GeneratedAt     time.Time           `json:"generated_at"`
}

// RunStatus represents the outcome status of a pipeline run
type RunStatus string

const (
	StatusCompleted RunStatus = "completed"
	StatusPartial   RunStatus = "partial"
	StatusFailed    RunStatus = "failed"
	StatusIdle      RunStatus = "idle"
)

// SinkOutcome records whether a single publish sink succeeded
type SinkOutcome struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// HistoryEntry is one append-only execution history record
type HistoryEntry struct {
	RunID            string                 `json:"run_id"`
	StartedAt        time.Time              `json:"started_at"`
	FinishedAt       time.Time              `json:"finished_at"`
	Status           RunStatus              `json:"status"`
	FailedStage      string                 `json:"failed_stage,omitempty"`
	Error            string                 `json:"error,omitempty"`
	ActiveKeywords   []string               `json:"active_keywords"`
	ActiveCount      int                    `json:"active_count"`
	NewKeywordsCount int                    `json:"new_keywords_count"`
	ReportFile       string                 `json:"report_file,omitempty"`
	Sinks            map[string]SinkOutcome `json:"sinks,omitempty"`
}
