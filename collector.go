package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Source queries one external platform for a keyword
type Source interface {
	Name() string
	Search(ctx context.Context, keyword string, limit int) (*PlatformResult, error)
}

// Collection is the raw research data of one run
type Collection struct {
	Results  []PlatformResult
	Failures []*CollectionError
}

// Succeeded counts the queries that returned without error
func (c *Collection) Succeeded() int {
	return len(c.Results) - len(c.Failures)
}

// CollectorOptions tunes the collection fan-out
type CollectorOptions struct {
	MaxResults        int
	Concurrency       int
	RequestsPerSecond float64
	Timeout           time.Duration
	EnrichTopN        int
}

// ResearchCollector gathers raw signals for each active keyword from every enabled source
type ResearchCollector struct {
	sources  []Source
	limiters map[string]*rate.Limiter
	fetcher  *ContentFetcher
	opts     CollectorOptions
	log      zerolog.Logger
}

// NewResearchCollector creates a collector; fetcher may be nil to skip enrichment
func NewResearchCollector(sources []Source, fetcher *ContentFetcher, opts CollectorOptions) *ResearchCollector {
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	limiters := make(map[string]*rate.Limiter, len(sources))
	for _, src := range sources {
		limiters[src.Name()] = rate.NewLimiter(limit, 1)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &ResearchCollector{
		sources:  sources,
		limiters: limiters,
		fetcher:  fetcher,
		opts:     opts,
		log:      componentLogger("collector"),
	}
}

// Collect queries every (keyword, source) pair. Individual failures are
// recorded in the result; the call fails only when nothing succeeded.
func (c *ResearchCollector) Collect(ctx context.Context, keywords []string) (*Collection, error) {
	if len(c.sources) == 0 {
		return nil, &CollectionError{Platform: "all", Keyword: "*", Err: errors.New("no research sources enabled")}
	}

	results := make([]PlatformResult, len(keywords)*len(c.sources))
	var (
		mu       sync.Mutex
		failures []*CollectionError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)

	for ki, keyword := range keywords {
		for si, src := range c.sources {
			idx := ki*len(c.sources) + si
			keyword, src := keyword, src
			g.Go(func() error {
				res, err := c.query(gctx, src, keyword)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					collErr := &CollectionError{Platform: src.Name(), Keyword: keyword, Err: err}
					mu.Lock()
					failures = append(failures, collErr)
					mu.Unlock()
					c.log.Warn().Err(err).Str("platform", src.Name()).Str("keyword", keyword).Msg("✗ Research failed")
					res = errorResult(src.Name(), keyword, err)
				} else {
					c.log.Info().Str("platform", src.Name()).Str("keyword", keyword).Int("results", len(res.Results)).Msg("✓ Completed research")
				}
				results[idx] = *res
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collection cancelled: %w", err)
	}

	collection := &Collection{Results: results, Failures: failures}
	if collection.Succeeded() == 0 {
		errs := make([]error, 0, len(failures))
		for _, f := range failures {
			errs = append(errs, f)
		}
		return collection, fmt.Errorf("no platform returned data: %w", errors.Join(errs...))
	}
	return collection, nil
}

func (c *ResearchCollector) query(ctx context.Context, src Source, keyword string) (*PlatformResult, error) {
	if err := c.limiters[src.Name()].Wait(ctx); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	res, err := src.Search(callCtx, keyword, c.opts.MaxResults)
	if err != nil {
		return nil, err
	}

	res.Platform = src.Name()
	res.Keyword = keyword
	res.Timestamp = time.Now().UTC()
	if res.Results == nil {
		res.Results = []ResultItem{}
	}
	if res.EngagementMetrics == nil {
		res.EngagementMetrics = map[string]interface{}{}
	}

	res.SentimentScore = engagementScore(res.Results)

	c.enrich(callCtx, res)
	return res, nil
}

// engagementScore is the mean trend score of the results scaled to [0,1]
func engagementScore(items []ResultItem) float64 {
	if len(items) == 0 {
		return 0
	}
	total := 0.0
	for _, item := range items {
		total += item.TrendScore
	}
	return round2(clampScore(total / float64(len(items)) / 100))
}

// enrich attaches page or transcript excerpts to the top results
func (c *ResearchCollector) enrich(ctx context.Context, res *PlatformResult) {
	if c.fetcher == nil || c.opts.EnrichTopN == 0 {
		return
	}
	if res.Platform != "web" && res.Platform != "youtube" {
		return
	}

	for i := range res.Results {
		if i >= c.opts.EnrichTopN {
			break
		}
		item := &res.Results[i]
		if item.URL == "" || item.Excerpt != "" {
			continue
		}
		content, err := c.fetcher.FetchContent(ctx, item.URL)
		if err != nil {
			c.log.Debug().Err(err).Str("url", item.URL).Msg("enrichment skipped")
			continue
		}
		item.Excerpt = truncateText(content.Text, maxExcerptChars)
	}
}

func errorResult(platform, keyword string, err error) *PlatformResult {
	return &PlatformResult{
		Platform:          platform,
		Keyword:           keyword,
		Timestamp:         time.Now().UTC(),
		Results:           []ResultItem{},
		EngagementMetrics: map[string]interface{}{},
		Error:             err.Error(),
	}
}
