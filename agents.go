package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"
	"github.com/rs/zerolog"
)

// SynthesisInput is what the synthesizer sees of one run
type SynthesisInput struct {
	Date       string
	Keywords   []string
	Collection *Collection
	Tracked    KeywordMap // master store, candidates found here are not new
}

// Synthesis is the structured answer of the language model
type Synthesis struct {
	Headline         string
	KeyTrends        []string
	PlatformInsights map[string]string
	NewKeywords      []DiscoveredKeyword
	Recommendations  []string
	Model            string
}

// synthesisResponse mirrors config/synthesizer-output-schema.json
type synthesisResponse struct {
	Headline         string   `json:"headline"`
	KeyTrends        []string `json:"key_trends"`
	PlatformInsights []struct {
		Platform string `json:"platform"`
		Insight  string `json:"insight"`
	} `json:"platform_insights"`
	NewKeywords []struct {
		Keyword string  `json:"keyword"`
		Score   float64 `json:"score"`
	} `json:"new_keywords"`
	Recommendations []string `json:"recommendations"`
}

// completionFunc sends one structured prompt and returns the raw text answer
type completionFunc func(systemPrompt, userPrompt, schema string, settings types.RequestSettings) (string, error)

// ReportSynthesizer turns collected research signals into a report
type ReportSynthesizer struct {
	config   *Config
	complete completionFunc
	log      zerolog.Logger
}

// NewReportSynthesizer creates a synthesizer backed by the Anthropic API
func NewReportSynthesizer(apiKey string, config *Config) *ReportSynthesizer {
	return &ReportSynthesizer{
		config:   config,
		complete: anthropicCompletion(apiKey),
		log:      componentLogger("synthesizer"),
	}
}

func anthropicCompletion(apiKey string) completionFunc {
	return func(systemPrompt, userPrompt, schema string, settings types.RequestSettings) (string, error) {
		response, err := anthropic.PromptWithSettings(systemPrompt, userPrompt, schema, apiKey, settings)
		if err != nil {
			return "", err
		}
		if len(response.Content) == 0 {
			return "", fmt.Errorf("no content in response")
		}
		return response.Content[0].Text, nil
	}
}

// Synthesize asks the model for the report body. Any failure, including an
// answer that does not match the schema, is a SynthesisError.
func (s *ReportSynthesizer) Synthesize(ctx context.Context, input *SynthesisInput) (*Synthesis, error) {
	agent := s.config.Settings.Agents.Synthesizer
	s.log.Info().Str("model", agent.Model).Int("keywords", len(input.Keywords)).Msg("→ Synthesizing report")

	systemPrompt, err := s.config.GetSystemPrompt()
	if err != nil {
		return nil, err
	}
	userPromptTemplate, err := s.config.GetUserPrompt()
	if err != nil {
		return nil, err
	}
	schema, err := s.config.GetOutputSchema()
	if err != nil {
		return nil, err
	}

	// Validate that template contains required variables
	for _, v := range []string{"{{.Keywords}}", "{{.Signals}}"} {
		if !strings.Contains(userPromptTemplate, v) {
			return nil, &ConfigurationError{Setting: "synthesizer user prompt", Reason: "template must contain " + v}
		}
	}

	signals, err := renderSignals(input.Collection)
	if err != nil {
		return nil, &SynthesisError{Err: err}
	}
	signals = limitContentTokens(signals, agent.ContentMaxTokens)

	userPrompt := strings.NewReplacer(
		"{{.Date}}", input.Date,
		"{{.Keywords}}", "- "+strings.Join(input.Keywords, "\n- "),
		"{{.Signals}}", signals,
	).Replace(userPromptTemplate)

	settings := types.RequestSettings{
		Model:       agent.Model,
		MaxTokens:   agent.MaxTokens,
		Temperature: agent.Temperature,
	}

	text, err := s.completeWithContext(ctx, systemPrompt, userPrompt, schema, settings)
	if err != nil {
		return nil, &SynthesisError{Err: err}
	}

	synthesis, err := parseSynthesis(text)
	if err != nil {
		return nil, &SynthesisError{Err: err}
	}
	synthesis.Model = agent.Model
	synthesis.NewKeywords = s.scoreCandidates(synthesis.NewKeywords, input)

	s.log.Info().Int("new_keywords", len(synthesis.NewKeywords)).Int("trends", len(synthesis.KeyTrends)).Msg("✓ Synthesis completed")
	return synthesis, nil
}

// completeWithContext bounds the blocking completion call by ctx
func (s *ReportSynthesizer) completeWithContext(ctx context.Context, systemPrompt, userPrompt, schema string, settings types.RequestSettings) (string, error) {
	type answer struct {
		text string
		err  error
	}
	done := make(chan answer, 1)
	go func() {
		text, err := s.complete(systemPrompt, userPrompt, schema, settings)
		done <- answer{text, err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for model: %w", ctx.Err())
	case a := <-done:
		return a.text, a.err
	}
}

// scoreCandidates fills missing scores, rescales percentages and caps the batch
func (s *ReportSynthesizer) scoreCandidates(candidates []DiscoveredKeyword, input *SynthesisInput) []DiscoveredKeyword {
	tracked := make(map[string]bool, len(input.Keywords))
	for _, kw := range input.Keywords {
		tracked[NormalizeKeyword(kw)] = true
	}

	var collected []PlatformResult
	if input.Collection != nil {
		collected = input.Collection.Results
	}

	out := make([]DiscoveredKeyword, 0, len(candidates))
	for _, c := range candidates {
		if c.Keyword = NormalizeKeyword(c.Keyword); c.Keyword == "" || tracked[c.Keyword] {
			continue
		}
		switch {
		case c.Score <= 0:
			c.Score = ProvisionalScore(c.Keyword, collected)
		case c.Score > 1:
			c.Score = clampScore(c.Score / 100)
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit := s.config.Settings.Discovery.MaxNewKeywords; len(out) > limit {
		out = out[:limit]
	}
	return out
}

// parseSynthesis decodes the model answer, tolerating a fenced code block
func parseSynthesis(text string) (*Synthesis, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}

	var resp synthesisResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse synthesizer structured response: %w", err)
	}
	if strings.TrimSpace(resp.Headline) == "" {
		return nil, fmt.Errorf("synthesizer response has no headline")
	}

	synthesis := &Synthesis{
		Headline:         strings.TrimSpace(resp.Headline),
		KeyTrends:        nonEmpty(resp.KeyTrends),
		PlatformInsights: make(map[string]string, len(resp.PlatformInsights)),
		NewKeywords:      make([]DiscoveredKeyword, 0, len(resp.NewKeywords)),
		Recommendations:  nonEmpty(resp.Recommendations),
	}
	for _, pi := range resp.PlatformInsights {
		if p := strings.ToLower(strings.TrimSpace(pi.Platform)); p != "" {
			synthesis.PlatformInsights[p] = strings.TrimSpace(pi.Insight)
		}
	}
	for _, nk := range resp.NewKeywords {
		synthesis.NewKeywords = append(synthesis.NewKeywords, DiscoveredKeyword{Keyword: nk.Keyword, Score: nk.Score})
	}
	return synthesis, nil
}

// researchSignal is the compact view of one search hit sent to the model
type researchSignal struct {
	Platform   string  `json:"platform"`
	Keyword    string  `json:"keyword"`
	Title      string  `json:"title"`
	URL        string  `json:"url,omitempty"`
	Snippet    string  `json:"snippet,omitempty"`
	TrendScore float64 `json:"trend_score,omitempty"`
}

func renderSignals(collection *Collection) (string, error) {
	if collection == nil {
		return "[]", nil
	}

	signals := []researchSignal{}
	for _, pr := range collection.Results {
		if pr.Error != "" {
			continue
		}
		for _, item := range pr.Results {
			snippet := item.Description
			if item.Excerpt != "" {
				snippet = item.Excerpt
			}
			signals = append(signals, researchSignal{
				Platform:   pr.Platform,
				Keyword:    pr.Keyword,
				Title:      item.Title,
				URL:        item.URL,
				Snippet:    truncateText(snippet, 400),
				TrendScore: item.TrendScore,
			})
		}
	}

	data, err := json.MarshalIndent(signals, "", " ")
	if err != nil {
		return "", fmt.Errorf("marshaling research signals: %w", err)
	}
	return string(data), nil
}

// limitContentTokens limits content to approximately N tokens (using 4 chars ≈ 1 token)
func limitContentTokens(content string, maxTokens int) string {
	maxChars := maxTokens * 4
	if maxChars <= 0 || len(content) <= maxChars {
		return content
	}
	return content[:maxChars] + "..."
}

// BuildReport assembles the daily report from the collection and the model answer
func BuildReport(date string, input *SynthesisInput, synthesis *Synthesis) *Report {
	results := []PlatformResult{}
	if input.Collection != nil {
		results = input.Collection.Results
	}

	platforms := map[string]bool{}
	total := 0
	for _, pr := range results {
		platforms[pr.Platform] = true
		total += len(pr.Results)
	}

	untracked := countUntracked(synthesis.NewKeywords, input.Tracked)
	recommendations := append([]string{}, synthesis.Recommendations...)
	recommendations = append(recommendations, heuristicRecommendations(results, untracked)...)

	return &Report{
		Date: date,
		Summary: ReportSummary{
			Headline:          synthesis.Headline,
			KeyTrends:         synthesis.KeyTrends,
			PlatformInsights:  synthesis.PlatformInsights,
			PlatformsSearched: len(platforms),
			KeywordsUsed:      append([]string{}, input.Keywords...),
			NewKeywordsFound:  untracked,
			TotalResults:      total,
		},
		DetailedResults: results,
		NewKeywords:     synthesis.NewKeywords,
		Recommendations: recommendations,
		ActiveKeywords:  append([]string{}, input.Keywords...),
		Model:           synthesis.Model,
		GeneratedAt:     time.Now().UTC(),
	}
}

// highEngagement is the engagement score above which a platform is called out
const highEngagement = 0.7

// countUntracked counts distinct candidates missing from the master store
func countUntracked(candidates []DiscoveredKeyword, tracked KeywordMap) int {
	seen := map[string]bool{}
	for _, c := range candidates {
		key := NormalizeKeyword(c.Keyword)
		if key == "" || tracked[key] != nil {
			continue
		}
		seen[key] = true
	}
	return len(seen)
}

func heuristicRecommendations(results []PlatformResult, newKeywords int) []string {
	var recs []string
	if newKeywords > 0 {
		recs = append(recs, fmt.Sprintf("Consider adding %d new keywords to monitoring", newKeywords))
	}

	seen := map[string]bool{}
	var hot []string
	for _, pr := range results {
		if pr.SentimentScore > highEngagement && !seen[pr.Platform] {
			seen[pr.Platform] = true
			hot = append(hot, pr.Platform)
		}
	}
	if len(hot) > 0 {
		sort.Strings(hot)
		recs = append(recs, "High engagement detected on: "+strings.Join(hot, ", "))
	}
	return recs
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
