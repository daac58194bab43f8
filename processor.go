package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Stage names, in execution order
const (
	StageSelecting    = "selecting"
	StageCollecting   = "collecting"
	StageSynthesizing = "synthesizing"
	StageDiscovering  = "discovering"
	StagePublishing   = "publishing"
	StageRecording    = "recording"
)

type collector interface {
	Collect(ctx context.Context, keywords []string) (*Collection, error)
}

type synthesizer interface {
	Synthesize(ctx context.Context, input *SynthesisInput) (*Synthesis, error)
}

type publisher interface {
	Publish(ctx context.Context, report *Report) (*PublishOutcome, error)
}

// PipelineOptions tunes how the pipeline is assembled
type PipelineOptions struct {
	SkipSinks bool // publish to local files only
}

// Pipeline runs one research cycle as an ordered list of stages
type Pipeline struct {
	settings       *Settings
	keywords       *KeywordStore
	history        *ExecutionHistory
	collector      collector
	synthesizer    synthesizer
	publisher      publisher
	metrics        *RunMetrics
	pushgatewayURL string
	now            func() time.Time
	log            zerolog.Logger
}

// runState carries stage outputs to the next stage
type runState struct {
	date       string
	store      KeywordMap
	active     []KeywordRecord
	collection *Collection
	report     *Report
	added      int
	published  *PublishOutcome
	idle       bool
	noHistory  bool // history.json unreadable, nothing may be appended
}

type stage struct {
	name string
	run  func(ctx context.Context, st *runState) error
}

// NewPipeline wires sources, synthesizer and sinks from the configuration
func NewPipeline(cfg *Config, opts PipelineOptions) (*Pipeline, error) {
	log := componentLogger("pipeline")
	creds := cfg.Credentials
	settings := cfg.Settings

	sources, disabled := NewSources(settings.Research.Platforms, creds)
	for _, name := range disabled {
		log.Warn().Str("platform", name).Msg("Research source disabled: missing credential")
	}

	fetcher := NewContentFetcher(creds)
	coll := NewResearchCollector(sources, fetcher, CollectorOptions{
		MaxResults:        settings.Research.MaxResults,
		Concurrency:       settings.Research.Concurrency,
		RequestsPerSecond: settings.Research.RequestsPerSecond,
		Timeout:           settings.Timeouts.Collection,
		EnrichTopN:        settings.Research.EnrichTopN,
	})

	reportTemplate, err := cfg.GetReportTemplate()
	if err != nil {
		return nil, err
	}
	fileSink, err := NewFileSink(settings.ReportsDirectory, reportTemplate)
	if err != nil {
		return nil, err
	}

	var external []Sink
	switch {
	case opts.SkipSinks:
		log.Info().Msg("External sinks skipped")
	default:
		if creds.NotionEnabled() {
			external = append(external, NewNotionSink(creds.NotionAPIKey, creds.NotionParentPageID, settings.Notion.MaxBlocks))
		} else {
			log.Warn().Str("sink", "notion").Msg("Sink disabled: NOTION_API_KEY or NOTION_PARENT_PAGE_ID not set")
		}
		if creds.DatabaseURL != "" {
			external = append(external, NewPostgresSink(creds.DatabaseURL))
		} else {
			log.Warn().Str("sink", "postgres").Msg("Sink disabled: SUPABASE_DB_URL not set")
		}
	}

	keywords := NewKeywordStore(settings.KeywordsDirectory)
	return &Pipeline{
		settings:       settings,
		keywords:       keywords,
		history:        NewExecutionHistory(keywords),
		collector:      coll,
		synthesizer:    NewReportSynthesizer(creds.AnthropicAPIKey, cfg),
		publisher:      NewReportPublisher(fileSink, settings.Timeouts.Publish, external...),
		metrics:        NewRunMetrics(),
		pushgatewayURL: creds.PushgatewayURL,
		now:            time.Now,
		log:            log,
	}, nil
}

// Run executes Selecting, Collecting, Synthesizing, Discovering and
// Publishing in order, then always records the outcome. The returned error
// is the failure of the first failing stage; IsFatal tells whether it
// should surface as a nonzero exit.
func (p *Pipeline) Run(ctx context.Context) (HistoryEntry, error) {
	started := p.now()
	st := &runState{date: started.Format(dateLayout)}
	entry := HistoryEntry{
		RunID:     uuid.NewString(),
		StartedAt: started.UTC(),
	}
	log := p.log.With().Str("run_id", entry.RunID).Str("date", st.date).Logger()
	log.Info().Msg("→ Starting AI trend research")

	var runErr error
	for _, s := range p.stages() {
		log.Info().Str("stage", s.name).Msg("→ Stage started")
		t0 := time.Now()
		err := s.run(ctx, st)
		if p.metrics != nil {
			p.metrics.ObserveStage(s.name, time.Since(t0))
		}
		if errors.Is(err, ErrNoKeywords) {
			st.idle = true
			log.Info().Msg("No keyword clears the selection threshold, nothing to research")
			break
		}
		if err != nil {
			runErr = err
			entry.FailedStage = s.name
			entry.Error = err.Error()
			log.Error().Err(err).Str("stage", s.name).Msg("✗ Stage failed")
			break
		}
		log.Info().Str("stage", s.name).Dur("took", time.Since(t0)).Msg("✓ Stage completed")
	}

	entry.ActiveKeywords = keywordTexts(st.active)
	entry.ActiveCount = len(st.active)
	entry.NewKeywordsCount = st.added
	if st.published != nil {
		entry.ReportFile = st.published.ReportFile
		entry.Sinks = st.published.Sinks
	}
	entry.Status = runStatus(runErr, st)
	entry.FinishedAt = p.now().UTC()

	switch {
	case st.noHistory:
		log.Warn().Msg("Run not recorded: history file is unreadable")
	default:
		if err := p.record(ctx, entry); err != nil {
			log.Error().Err(err).Msg("✗ Recording run failed")
			runErr = errors.Join(runErr, err)
			entry.Status = StatusFailed
			if entry.FailedStage == "" {
				entry.FailedStage = StageRecording
				entry.Error = err.Error()
			}
		}
	}

	p.logOutcome(log, entry)
	return entry, runErr
}

func (p *Pipeline) stages() []stage {
	return []stage{
		{StageSelecting, p.selectKeywords},
		{StageCollecting, p.collect},
		{StageSynthesizing, p.synthesize},
		{StageDiscovering, p.discover},
		{StagePublishing, p.publish},
	}
}

func (p *Pipeline) selectKeywords(ctx context.Context, st *runState) error {
	// both files are checked before anything is written
	if _, err := p.history.Entries(); err != nil {
		st.noHistory = true
		return err
	}
	store, err := p.keywords.Load()
	if err != nil {
		return err
	}
	if len(store) == 0 && len(p.settings.SeedKeywords) > 0 {
		p.log.Info().Int("count", len(p.settings.SeedKeywords)).Msg("Seeding empty keyword store")
		for _, kw := range p.settings.SeedKeywords {
			store.Upsert(KeywordRecord{
				Keyword:   kw,
				Score:     p.settings.Discovery.InitialScore,
				FirstSeen: st.date,
				Source:    SourceManual,
			}, p.settings.BlendRule())
		}
	}
	st.store = store
	if p.metrics != nil {
		p.metrics.WatchStore(store)
	}

	st.active = SelectActive(store, p.settings.Selection.MaxActive, p.settings.Selection.MinScore)
	if len(st.active) == 0 {
		return ErrNoKeywords
	}
	p.log.Info().Strs("keywords", keywordTexts(st.active)).Msg("Active keywords selected")
	return p.keywords.SaveActive(st.active)
}

func (p *Pipeline) collect(ctx context.Context, st *runState) error {
	collection, err := p.collector.Collect(ctx, keywordTexts(st.active))
	if collection != nil && p.metrics != nil {
		p.metrics.ObserveCollection(collection)
	}
	if err != nil {
		return err
	}
	st.collection = collection
	return nil
}

func (p *Pipeline) synthesize(ctx context.Context, st *runState) error {
	if timeout := p.settings.Timeouts.Synthesis; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	input := &SynthesisInput{
		Date:       st.date,
		Keywords:   keywordTexts(st.active),
		Collection: st.collection,
		Tracked:    st.store,
	}
	synthesis, err := p.synthesizer.Synthesize(ctx, input)
	if err != nil {
		return err
	}
	st.report = BuildReport(st.date, input, synthesis)
	return nil
}

// discover merges new keywords and writes the store, once per run
func (p *Pipeline) discover(ctx context.Context, st *runState) error {
	st.added = MergeDiscovered(st.store, st.report.NewKeywords, p.settings.BlendRule(), st.date)
	st.store.MarkUsed(keywordTexts(st.active), st.date)
	if err := p.keywords.Save(st.store); err != nil {
		return fmt.Errorf("saving keyword store: %w", err)
	}
	p.log.Info().Int("added", st.added).Int("total", len(st.store)).Msg("✓ Keyword store updated")
	return nil
}

func (p *Pipeline) publish(ctx context.Context, st *runState) error {
	outcome, err := p.publisher.Publish(ctx, st.report)
	st.published = outcome
	if outcome != nil && p.metrics != nil {
		p.metrics.ObservePublish(outcome)
	}
	return err
}

func (p *Pipeline) record(ctx context.Context, entry HistoryEntry) error {
	if err := p.history.Record(entry); err != nil {
		return err
	}
	if p.metrics == nil {
		return nil
	}
	p.metrics.ObserveRun(entry)
	if p.pushgatewayURL != "" {
		if err := p.metrics.Push(ctx, p.pushgatewayURL); err != nil {
			p.log.Warn().Err(err).Msg("✗ Metrics push failed")
		}
	}
	return nil
}

func (p *Pipeline) logOutcome(log zerolog.Logger, entry HistoryEntry) {
	ev := log.Info()
	if entry.Status == StatusFailed {
		ev = log.Error().Str("failed_stage", entry.FailedStage)
	}
	var failedSinks []string
	for name, outcome := range entry.Sinks {
		if !outcome.OK {
			failedSinks = append(failedSinks, name)
		}
	}
	if len(failedSinks) > 0 {
		ev = ev.Str("failed_sinks", strings.Join(failedSinks, ","))
	}
	ev.Str("status", string(entry.Status)).
		Int("active", entry.ActiveCount).
		Int("new_keywords", entry.NewKeywordsCount).
		Msg(statusMarker(entry.Status) + " Run finished")
}

func runStatus(err error, st *runState) RunStatus {
	switch {
	case err != nil:
		return StatusFailed
	case st.idle:
		return StatusIdle
	case st.published != nil && st.published.Partial():
		return StatusPartial
	}
	return StatusCompleted
}

func statusMarker(status RunStatus) string {
	if status == StatusFailed {
		return "✗"
	}
	return "✓"
}
