package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aktagon/llmkit/anthropic/types"
	"github.com/google/go-cmp/cmp"
)

func testCollection() *Collection {
	return &Collection{
		Results: []PlatformResult{
			{
				Platform: "github",
				Keyword:  "llm agents",
				Results: []ResultItem{
					{Title: "agent-sdk", URL: "https://github.com/x/agent-sdk", Description: "Build agents with the agent SDK", TrendScore: 90},
				},
				SentimentScore: 0.9,
			},
			{
				Platform: "hackernews",
				Keyword:  "llm agents",
				Results: []ResultItem{
					{Title: "Show HN: browser agents", URL: "https://news.ycombinator.com/item?id=1", TrendScore: 40},
				},
				SentimentScore: 0.4,
			},
			{
				Platform: "youtube",
				Keyword:  "llm agents",
				Error:    "HTTP 403 for https://www.googleapis.com/youtube/v3/search",
			},
		},
	}
}

func newTestSynthesizer(t *testing.T, complete completionFunc) *ReportSynthesizer {
	t.Helper()
	return &ReportSynthesizer{
		config:   newTestConfig(t),
		complete: complete,
		log:      componentLogger("synthesizer"),
	}
}

const validSynthesis = `{
  "headline": "Agents go mainstream",
  "key_trends": ["tool use", " "],
  "platform_insights": [{"platform": "GitHub", "insight": "agent SDKs trending"}],
  "new_keywords": [
    {"keyword": "Browser Agents", "score": 0.8},
    {"keyword": "LLM agents", "score": 0.9},
    {"keyword": "agent sdk", "score": 0}
  ],
  "recommendations": ["Watch browser automation"]
}`

func TestSynthesize(t *testing.T) {
	var gotUser, gotSchema string
	var gotSettings types.RequestSettings
	s := newTestSynthesizer(t, func(system, user, schema string, settings types.RequestSettings) (string, error) {
		gotUser, gotSchema, gotSettings = user, schema, settings
		return "```json\n" + validSynthesis + "\n```", nil
	})

	input := &SynthesisInput{Date: "2026-10-15", Keywords: []string{"llm agents"}, Collection: testCollection()}
	synthesis, err := s.Synthesize(context.Background(), input)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	if !strings.Contains(gotUser, "2026-10-15") || !strings.Contains(gotUser, "- llm agents") {
		t.Errorf("user prompt missing date or keywords:\n%s", gotUser)
	}
	if !strings.Contains(gotUser, "agent-sdk") {
		t.Error("user prompt missing research signals")
	}
	if strings.Contains(gotUser, "HTTP 403") {
		t.Error("failed platform queries must not be sent as signals")
	}
	if gotSchema == "" {
		t.Error("output schema not passed to the model")
	}
	if gotSettings.Model != s.config.Settings.Agents.Synthesizer.Model {
		t.Errorf("model = %q", gotSettings.Model)
	}

	if synthesis.Headline != "Agents go mainstream" {
		t.Errorf("Headline = %q", synthesis.Headline)
	}
	if diff := cmp.Diff([]string{"tool use"}, synthesis.KeyTrends); diff != "" {
		t.Errorf("KeyTrends mismatch (-want +got):\n%s", diff)
	}
	if synthesis.PlatformInsights["github"] != "agent SDKs trending" {
		t.Errorf("PlatformInsights = %v", synthesis.PlatformInsights)
	}

	// the tracked keyword is dropped, the unscored one gets a provisional score
	want := []DiscoveredKeyword{
		{Keyword: "browser agents", Score: 0.8},
		{Keyword: "agent sdk", Score: 0.55},
	}
	if diff := cmp.Diff(want, synthesis.NewKeywords); diff != "" {
		t.Errorf("NewKeywords mismatch (-want +got):\n%s", diff)
	}
}

func TestSynthesizeErrors(t *testing.T) {
	tests := []struct {
		name     string
		complete completionFunc
	}{
		{
			name: "model error",
			complete: func(string, string, string, types.RequestSettings) (string, error) {
				return "", errors.New("overloaded")
			},
		},
		{
			name: "not json",
			complete: func(string, string, string, types.RequestSettings) (string, error) {
				return "Here are today's trends...", nil
			},
		},
		{
			name: "missing headline",
			complete: func(string, string, string, types.RequestSettings) (string, error) {
				return `{"key_trends": ["x"]}`, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSynthesizer(t, tt.complete)
			_, err := s.Synthesize(context.Background(), &SynthesisInput{Date: "2026-10-15", Keywords: []string{"ai chips"}})

			var synthErr *SynthesisError
			if !errors.As(err, &synthErr) {
				t.Fatalf("Synthesize() error = %v, want SynthesisError", err)
			}
			if IsFatal(err) {
				t.Error("synthesis errors must not be fatal")
			}
		})
	}
}

func TestSynthesizeTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := newTestSynthesizer(t, func(string, string, string, types.RequestSettings) (string, error) {
		<-release
		return validSynthesis, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Synthesize(ctx, &SynthesisInput{Date: "2026-10-15", Keywords: []string{"ai chips"}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Synthesize() error = %v, want deadline exceeded", err)
	}
	var synthErr *SynthesisError
	if !errors.As(err, &synthErr) {
		t.Errorf("timeout should surface as SynthesisError, got %T", err)
	}
}

func TestSynthesizeRejectsPromptWithoutPlaceholders(t *testing.T) {
	s := newTestSynthesizer(t, func(string, string, string, types.RequestSettings) (string, error) {
		t.Error("model should not be called")
		return "", nil
	})
	override := filepath.Join(t.TempDir(), "user.md")
	if err := os.WriteFile(override, []byte("Summarize {{.Keywords}}"), 0644); err != nil {
		t.Fatal(err)
	}
	s.config.Overrides.UserPromptPath = &override

	_, err := s.Synthesize(context.Background(), &SynthesisInput{Keywords: []string{"ai chips"}})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Synthesize() error = %v, want ConfigurationError", err)
	}
}

func TestScoreCandidates(t *testing.T) {
	s := newTestSynthesizer(t, nil)
	s.config.Settings.Discovery.MaxNewKeywords = 2

	got := s.scoreCandidates([]DiscoveredKeyword{
		{Keyword: "  Edge   AI ", Score: 0.4},
		{Keyword: "AI Chips", Score: 0.99},
		{Keyword: "neuromorphic", Score: 85},
		{Keyword: "", Score: 0.9},
		{Keyword: "tiny models", Score: 0.6},
	}, &SynthesisInput{Keywords: []string{"ai chips"}})

	want := []DiscoveredKeyword{
		{Keyword: "neuromorphic", Score: 0.85},
		{Keyword: "tiny models", Score: 0.6},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("scoreCandidates() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSynthesis(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"plain json", validSynthesis, false},
		{"fenced json", "```json\n" + validSynthesis + "\n```", false},
		{"bare fence", "```\n" + validSynthesis + "\n```", false},
		{"blank headline", `{"headline": "  "}`, true},
		{"truncated", `{"headline": "x"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSynthesis(tt.text)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseSynthesis() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLimitContentTokens(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		maxTokens int
		want      string
	}{
		{"under limit", "short", 10, "short"},
		{"over limit", strings.Repeat("a", 12), 2, "aaaaaaaa..."},
		{"no limit", "anything", 0, "anything"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := limitContentTokens(tt.content, tt.maxTokens); got != tt.want {
				t.Errorf("limitContentTokens() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildReport(t *testing.T) {
	input := &SynthesisInput{Date: "2026-10-15", Keywords: []string{"llm agents"}, Collection: testCollection()}
	synthesis := &Synthesis{
		Headline:        "Agents go mainstream",
		KeyTrends:       []string{"tool use"},
		NewKeywords:     []DiscoveredKeyword{{Keyword: "browser agents", Score: 0.8}},
		Recommendations: []string{"Watch browser automation"},
		Model:           "claude-test",
	}

	report := BuildReport("2026-10-15", input, synthesis)

	if report.Date != "2026-10-15" || report.Model != "claude-test" {
		t.Errorf("report header = %s %s", report.Date, report.Model)
	}
	if report.Summary.PlatformsSearched != 3 {
		t.Errorf("PlatformsSearched = %d, want 3", report.Summary.PlatformsSearched)
	}
	if report.Summary.TotalResults != 2 {
		t.Errorf("TotalResults = %d, want 2", report.Summary.TotalResults)
	}
	if report.Summary.NewKeywordsFound != 1 {
		t.Errorf("NewKeywordsFound = %d, want 1", report.Summary.NewKeywordsFound)
	}

	wantRecs := []string{
		"Watch browser automation",
		"Consider adding 1 new keywords to monitoring",
		"High engagement detected on: github",
	}
	if diff := cmp.Diff(wantRecs, report.Recommendations); diff != "" {
		t.Errorf("Recommendations mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"llm agents"}, report.ActiveKeywords); diff != "" {
		t.Errorf("ActiveKeywords mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildReportCountsOnlyUntrackedKeywords(t *testing.T) {
	input := &SynthesisInput{
		Keywords: []string{"llm agents"},
		Tracked: KeywordMap{
			"llm agents":     {Keyword: "llm agents", Score: 0.9},
			"browser agents": {Keyword: "browser agents", Score: 0.7},
		},
	}
	synthesis := &Synthesis{NewKeywords: []DiscoveredKeyword{
		{Keyword: "browser agents", Score: 0.8},
		{Keyword: "Edge AI", Score: 0.6},
		{Keyword: "edge  ai", Score: 0.5},
	}}

	report := BuildReport("2026-10-15", input, synthesis)
	if report.Summary.NewKeywordsFound != 1 {
		t.Errorf("NewKeywordsFound = %d, want 1", report.Summary.NewKeywordsFound)
	}
	if diff := cmp.Diff([]string{"Consider adding 1 new keywords to monitoring"}, report.Recommendations); diff != "" {
		t.Errorf("Recommendations mismatch (-want +got):\n%s", diff)
	}
	if len(report.NewKeywords) != 3 {
		t.Errorf("NewKeywords = %v, rediscovered keywords stay listed", report.NewKeywords)
	}
}

func TestBuildReportWithoutSignals(t *testing.T) {
	report := BuildReport("2026-10-15", &SynthesisInput{Keywords: []string{"ai chips"}}, &Synthesis{Headline: "Quiet day"})
	if report.DetailedResults == nil {
		t.Error("DetailedResults should be an empty list, not nil")
	}
	if len(report.Recommendations) != 0 {
		t.Errorf("Recommendations = %v, want none", report.Recommendations)
	}
}
