// Package aggregator queries every source for one filter set and merges
// the per-source listings into a single result.
package aggregator

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/use-agent/carscout/adapter"
	"github.com/use-agent/carscout/metrics"
	"github.com/use-agent/carscout/models"
	"github.com/use-agent/carscout/scraper"
)

// Source is one site the aggregator can query. *adapter.Adapter implements it.
type Source interface {
	Name() string
	BuildQueryURL(fs models.FilterSet) string
	WaitSelector() string
	ExtractAll(rawHTML string) (iter.Seq[adapter.Attempt], error)
}

// Aggregator fans a query out to every source and joins the results. It
// keeps only configuration and is safe for concurrent use.
type Aggregator struct {
	fetcher       scraper.PageFetcher
	log           *slog.Logger
	concurrency   int
	sourceTimeout time.Duration
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.log = l }
}

// WithConcurrency caps how many sources are fetched at once. 1 queries the
// sources strictly one after another; n <= 0 runs all of them at once.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) { a.concurrency = n }
}

// WithSourceTimeout bounds each source. An expired source counts as a
// failed fetch. Zero disables the bound.
func WithSourceTimeout(d time.Duration) Option {
	return func(a *Aggregator) { a.sourceTimeout = d }
}

// New creates an Aggregator that renders pages through fetcher.
func New(fetcher scraper.PageFetcher, opts ...Option) *Aggregator {
	a := &Aggregator{
		fetcher: fetcher,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// AsSources converts adapters to the Source interface.
func AsSources(adapters []*adapter.Adapter) []Source {
	out := make([]Source, len(adapters))
	for i, a := range adapters {
		out[i] = a
	}
	return out
}

// outcome is one source's contribution, stored at the source's index.
type outcome struct {
	listings []models.Listing
	report   models.SourceReport
	err      error
}

// Aggregate queries every source and concatenates their listings in source
// order. A failing source contributes nothing and never fails the call.
//
// When no listing was found, Result.Error carries the retrieval error if
// every source failed, otherwise the no-results message.
func (a *Aggregator) Aggregate(ctx context.Context, fs models.FilterSet, sources []Source) models.Result {
	start := time.Now()
	outcomes := make([]outcome, len(sources))

	var g errgroup.Group
	if a.concurrency > 0 {
		g.SetLimit(a.concurrency)
	}
	for i, src := range sources {
		g.Go(func() error {
			outcomes[i] = a.runSource(ctx, fs, src)
			return nil
		})
	}
	_ = g.Wait()

	res := models.Result{
		Listings: make([]models.Listing, 0, len(sources)*adapter.MaxListings),
		Sources:  make([]models.SourceReport, 0, len(sources)),
	}
	var failures []string
	for _, o := range outcomes {
		res.Listings = append(res.Listings, o.listings...)
		res.Sources = append(res.Sources, o.report)
		if o.err != nil {
			failures = append(failures, o.report.Source+": "+o.err.Error())
		}
	}

	result := "found"
	if !res.Found() {
		if len(sources) > 0 && len(failures) == len(sources) {
			res.Error = models.RetrievalMessage(strings.Join(failures, "; "))
			result = "retrieval_error"
		} else {
			res.Error = models.MsgNoResults
			result = "no_results"
		}
	}

	metrics.SearchesTotal.WithLabelValues(result).Inc()
	metrics.SearchDuration.Observe(time.Since(start).Seconds())
	a.log.Info("search complete",
		"sources", len(sources),
		"failed", len(failures),
		"listings", len(res.Listings),
		"result", result,
		"duration", time.Since(start),
	)
	return res
}

// runSource builds the URL, fetches and extracts one source. Every failure,
// including a panic, is converted into an outcome error.
func (a *Aggregator) runSource(ctx context.Context, fs models.FilterSet, src Source) (out outcome) {
	start := time.Now()
	name := src.Name()
	out.report.Source = name
	status := metrics.OutcomeOK

	defer func() {
		if r := recover(); r != nil {
			out.listings = nil
			out.err = fmt.Errorf("source panicked: %v", r)
			status = metrics.OutcomeFetchError
		}

		elapsed := time.Since(start)
		out.report.DurationMs = elapsed.Milliseconds()
		out.report.Listings = len(out.listings)
		if out.err != nil {
			out.report.Error = out.err.Error()
		} else if len(out.listings) == 0 {
			status = metrics.OutcomeEmpty
		}

		metrics.SourceQueriesTotal.WithLabelValues(name, status).Inc()
		metrics.SourceListingsTotal.WithLabelValues(name).Add(float64(len(out.listings)))
		metrics.SourceFetchDuration.WithLabelValues(name).Observe(elapsed.Seconds())

		if out.err != nil {
			a.log.Warn("source failed",
				"source", name, "url", out.report.QueryURL,
				"duration", elapsed, "error", out.err)
			return
		}
		a.log.Info("source done",
			"source", name, "url", out.report.QueryURL,
			"listings", len(out.listings), "duration", elapsed)
	}()

	out.report.QueryURL = src.BuildQueryURL(fs)

	rawHTML, err := a.fetch(ctx, scraper.Request{
		URL:          out.report.QueryURL,
		WaitSelector: src.WaitSelector(),
	})
	if err != nil {
		out.err = err
		status = metrics.OutcomeFetchError
		return out
	}

	attempts, err := src.ExtractAll(rawHTML)
	if err != nil {
		out.err = err
		status = metrics.OutcomeExtractError
		return out
	}

	out.listings = make([]models.Listing, 0, adapter.MaxListings)
	for at := range attempts {
		if !at.OK() {
			metrics.ListingsSkippedTotal.WithLabelValues(name).Inc()
			a.log.Debug("listing skipped", "source", name, "index", at.Index, "error", at.Err)
			continue
		}
		out.listings = append(out.listings, at.Listing)
	}
	return out
}

// fetch runs the fetcher under the per-source timeout. When the deadline
// passes the source is reported as timed out, but fetch still waits for the
// fetcher to return so its browser session is released before the source's
// slot completes.
func (a *Aggregator) fetch(ctx context.Context, req scraper.Request) (string, error) {
	if a.sourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.sourceTimeout)
		defer cancel()
	}

	type fetchResult struct {
		html string
		err  error
	}
	done := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fetchResult{err: fmt.Errorf("fetcher panicked: %v", r)}
			}
		}()
		html, err := a.fetcher.Fetch(ctx, req)
		done <- fetchResult{html: html, err: err}
	}()

	var r fetchResult
	select {
	case r = <-done:
		if r.err == nil || ctx.Err() == nil {
			return r.html, r.err
		}
	case <-ctx.Done():
		<-done
	}
	return "", models.NewSearchError(
		models.ErrCodeTimeout,
		"source did not respond in time",
		ctx.Err(),
	)
}
