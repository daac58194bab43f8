package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Sink is one destination of the finished report
type Sink interface {
	Name() string
	Publish(ctx context.Context, report *Report) error
}

// PublishOutcome records what happened at each sink of one publish
type PublishOutcome struct {
	ReportFile string
	Sinks      map[string]SinkOutcome
	Errors     []*PublishError
}

// Partial reports whether at least one external sink failed
func (o *PublishOutcome) Partial() bool {
	return len(o.Errors) > 0
}

// FailedSinks lists the names of the sinks that failed
func (o *PublishOutcome) FailedSinks() []string {
	names := make([]string, 0, len(o.Errors))
	for _, e := range o.Errors {
		names = append(names, e.Sink)
	}
	return names
}

// ReportPublisher writes the report locally and then fans it out to the external sinks
type ReportPublisher struct {
	local    *FileSink
	external []Sink
	timeout  time.Duration
	log      zerolog.Logger
}

// NewReportPublisher creates a publisher. Every external sink gets its own timeout.
func NewReportPublisher(local *FileSink, timeout time.Duration, external ...Sink) *ReportPublisher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ReportPublisher{
		local:    local,
		external: external,
		timeout:  timeout,
		log:      componentLogger("publisher"),
	}
}

// Publish saves the report. The local write must succeed; each external sink
// is then attempted independently and its failure is only recorded.
func (p *ReportPublisher) Publish(ctx context.Context, report *Report) (*PublishOutcome, error) {
	outcome := &PublishOutcome{Sinks: map[string]SinkOutcome{}}

	if err := p.local.Publish(ctx, report); err != nil {
		outcome.Sinks[p.local.Name()] = SinkOutcome{Error: err.Error()}
		return outcome, &PublishError{Sink: p.local.Name(), Err: err}
	}
	outcome.ReportFile = p.local.JSONPath(report.Date)
	outcome.Sinks[p.local.Name()] = SinkOutcome{OK: true}
	p.log.Info().Str("file", outcome.ReportFile).Msg("✓ Saved report")

	for _, sink := range p.external {
		if err := p.publishOne(ctx, sink, report); err != nil {
			if ctx.Err() != nil {
				return outcome, fmt.Errorf("publishing cancelled: %w", ctx.Err())
			}
			pubErr := &PublishError{Sink: sink.Name(), Err: err}
			outcome.Errors = append(outcome.Errors, pubErr)
			outcome.Sinks[sink.Name()] = SinkOutcome{Error: err.Error()}
			p.log.Warn().Err(err).Str("sink", sink.Name()).Msg("✗ Publish failed")
			continue
		}
		outcome.Sinks[sink.Name()] = SinkOutcome{OK: true}
		p.log.Info().Str("sink", sink.Name()).Msg("✓ Published report")
	}
	return outcome, nil
}

func (p *ReportPublisher) publishOne(ctx context.Context, sink Sink, report *Report) (err error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()

	err = sink.Publish(callCtx, report)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("timed out after %s: %w", p.timeout, err)
	}
	return err
}
