package aggregator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ptestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/carscout/adapter"
	"github.com/use-agent/carscout/metrics"
	"github.com/use-agent/carscout/models"
	"github.com/use-agent/carscout/scraper"
)

// quietLogger returns a logger that discards output for tests.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type page struct {
	html  string
	err   error
	delay time.Duration

	// hang blocks until ctx is done, then spends teardown before returning.
	hang     bool
	teardown time.Duration
}

// fakeFetcher serves canned pages by URL and records concurrency.
type fakeFetcher struct {
	pages map[string]page

	mu       sync.Mutex
	requests []scraper.Request
	inFlight atomic.Int32
	peak     atomic.Int32
	released atomic.Int32
}

func (f *fakeFetcher) Fetch(ctx context.Context, req scraper.Request) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	p, ok := f.pages[req.URL]
	if !ok {
		return "", models.NewSearchError(models.ErrCodeNavigation, "no such page", nil)
	}
	if p.hang {
		<-ctx.Done()
		time.Sleep(p.teardown)
		f.released.Add(1)
		return "", ctx.Err()
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return p.html, p.err
}

// testSource builds an adapter whose URL is "fake://<name>" and whose cards
// are <li class="car"><b>title</b><a href>.
func testSource(t *testing.T, name string) *adapter.Adapter {
	t.Helper()
	a, err := adapter.New(name, "https://"+name,
		adapter.SelectorTable{Card: "li.car", Title: "b", Link: "a"},
		func(models.FilterSet) string { return "fake://" + name },
	)
	require.NoError(t, err)
	return a
}

func cards(name string, n int) string {
	var b strings.Builder
	b.WriteString("<ul>")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<li class="car"><b>%s car %d</b><a href="/ad/%d">x</a></li>`, name, i, i)
	}
	b.WriteString("</ul>")
	return b.String()
}

func sources(t *testing.T, names ...string) []Source {
	t.Helper()
	out := make([]Source, 0, len(names))
	for _, n := range names {
		out = append(out, testSource(t, n))
	}
	return out
}

func TestAggregate_ConcatenatesInSourceOrder(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]page{
		// The first source is slowest so completion order differs from source order.
		"fake://a": {html: cards("a", 2), delay: 30 * time.Millisecond},
		"fake://b": {html: cards("b", 1)},
		"fake://c": {html: cards("c", 3), delay: 10 * time.Millisecond},
	}}
	agg := New(f, WithLogger(quietLogger()))

	res := agg.Aggregate(context.Background(), models.FilterSet{}, sources(t, "a", "b", "c"))

	assert.Empty(t, res.Error)
	require.Len(t, res.Listings, 6)
	var got []string
	for _, l := range res.Listings {
		got = append(got, l.Source+"|"+l.Title)
	}
	assert.Equal(t, []string{
		"a|a car 0", "a|a car 1",
		"b|b car 0",
		"c|c car 0", "c|c car 1", "c|c car 2",
	}, got)
	assert.Equal(t, "https://c/ad/2", res.Listings[5].URL)

	require.Len(t, res.Sources, 3)
	assert.Equal(t, "a", res.Sources[0].Source)
	assert.Equal(t, 2, res.Sources[0].Listings)
	assert.Equal(t, "fake://a", res.Sources[0].QueryURL)
}

func TestAggregate_CapsEachSource(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]page{
		"fake://many": {html: cards("many", 40)},
		"fake://few":  {html: cards("few", 2)},
	}}
	res := New(f, WithLogger(quietLogger())).
		Aggregate(context.Background(), models.FilterSet{}, sources(t, "many", "few"))

	assert.Len(t, res.Listings, adapter.MaxListings+2)
	assert.Equal(t, adapter.MaxListings, res.Sources[0].Listings)
}

func TestAggregate_OneFetchFailsOthersSucceed(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]page{
		"fake://ok1": {html: cards("ok1", 2)},
		"fake://bad": {err: models.NewSearchError(models.ErrCodeNavigation, "boom", nil)},
		"fake://ok2": {html: cards("ok2", 3)},
	}}
	res := New(f, WithLogger(quietLogger())).
		Aggregate(context.Background(), models.FilterSet{}, sources(t, "ok1", "bad", "ok2"))

	assert.Empty(t, res.Error)
	require.Len(t, res.Listings, 5)
	assert.Equal(t, "ok1", res.Listings[0].Source)
	assert.Equal(t, "ok2", res.Listings[4].Source)

	assert.False(t, res.Sources[0].Failed())
	assert.True(t, res.Sources[1].Failed())
	assert.Contains(t, res.Sources[1].Error, "boom")
	assert.Equal(t, 0, res.Sources[1].Listings)
}

func TestAggregate_AllEmptyIsNoResults(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]page{
		"fake://e1": {html: "<p>nothing</p>"},
		"fake://e2": {html: "<p>nothing</p>"},
		"fake://e3": {html: ""},
	}}
	res := New(f, WithLogger(quietLogger())).
		Aggregate(context.Background(), models.FilterSet{}, sources(t, "e1", "e2", "e3"))

	assert.NotNil(t, res.Listings)
	assert.Empty(t, res.Listings)
	assert.Equal(t, models.MsgNoResults, res.Error)
	assert.False(t, res.Found())
}

func TestAggregate_SomeFailRestEmptyIsNoResults(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]page{
		"fake://empty": {html: "<p>nothing</p>"},
	}}
	res := New(f, WithLogger(quietLogger())).
		Aggregate(context.Background(), models.FilterSet{}, sources(t, "empty", "missing"))

	assert.Empty(t, res.Listings)
	assert.Equal(t, models.MsgNoResults, res.Error)
}

func TestAggregate_AllFailIsRetrievalError(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]page{
		"fake://x": {err: errors.New("net::ERR_CONNECTION_REFUSED")},
		"fake://y": {err: errors.New("net::ERR_NAME_NOT_RESOLVED")},
	}}
	res := New(f, WithLogger(quietLogger())).
		Aggregate(context.Background(), models.FilterSet{}, sources(t, "x", "y"))

	assert.Empty(t, res.Listings)
	assert.NotEqual(t, models.MsgNoResults, res.Error)
	assert.True(t, strings.HasPrefix(res.Error, "retrieval error: "))
	assert.Contains(t, res.Error, "ERR_CONNECTION_REFUSED")
	assert.Contains(t, res.Error, "ERR_NAME_NOT_RESOLVED")
}

func TestAggregate_NoSources(t *testing.T) {
	t.Parallel()

	res := New(&fakeFetcher{}, WithLogger(quietLogger())).
		Aggregate(context.Background(), models.FilterSet{}, nil)

	assert.Empty(t, res.Listings)
	assert.Equal(t, models.MsgNoResults, res.Error)
}

func TestAggregate_SourceTimeoutIsIsolated(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]page{
		"fake://slow": {hang: true},
		"fake://fast": {html: cards("fast", 1)},
	}}
	agg := New(f, WithLogger(quietLogger()), WithSourceTimeout(50*time.Millisecond))

	start := time.Now()
	res := agg.Aggregate(context.Background(), models.FilterSet{}, sources(t, "slow", "fast"))

	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, res.Listings, 1)
	assert.Equal(t, "fast", res.Listings[0].Source)
	assert.True(t, res.Sources[0].Failed())
	assert.Contains(t, res.Sources[0].Error, models.ErrCodeTimeout)
}

func TestAggregate_TimedOutSourceIsReleasedBeforeReturn(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]page{
		"fake://stuck": {hang: true, teardown: 200 * time.Millisecond},
	}}
	agg := New(f, WithLogger(quietLogger()), WithSourceTimeout(20*time.Millisecond))

	res := agg.Aggregate(context.Background(), models.FilterSet{}, sources(t, "stuck"))

	assert.Equal(t, int32(1), f.released.Load(), "browser session must be released before Aggregate returns")
	assert.Equal(t, int32(0), f.inFlight.Load())
	assert.Contains(t, res.Error, models.ErrCodeTimeout)
	assert.True(t, strings.HasPrefix(res.Error, "retrieval error: "))
}

func TestAggregate_SequentialWhenConcurrencyIsOne(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]page{
		"fake://s1": {html: cards("s1", 1), delay: 10 * time.Millisecond},
		"fake://s2": {html: cards("s2", 1), delay: 10 * time.Millisecond},
		"fake://s3": {html: cards("s3", 1), delay: 10 * time.Millisecond},
	}}
	res := New(f, WithLogger(quietLogger()), WithConcurrency(1)).
		Aggregate(context.Background(), models.FilterSet{}, sources(t, "s1", "s2", "s3"))

	assert.Len(t, res.Listings, 3)
	assert.Equal(t, int32(1), f.peak.Load())
	require.Len(t, f.requests, 3)
	assert.Equal(t, "fake://s1", f.requests[0].URL)
	assert.Equal(t, "fake://s3", f.requests[2].URL)
}

func TestAggregate_ConcurrentByDefault(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]page{
		"fake://p1": {html: cards("p1", 1), delay: 100 * time.Millisecond},
		"fake://p2": {html: cards("p2", 1), delay: 100 * time.Millisecond},
		"fake://p3": {html: cards("p3", 1), delay: 100 * time.Millisecond},
	}}
	res := New(f, WithLogger(quietLogger())).
		Aggregate(context.Background(), models.FilterSet{}, sources(t, "p1", "p2", "p3"))

	assert.Len(t, res.Listings, 3)
	assert.Greater(t, f.peak.Load(), int32(1))
}

type panickySource struct{ Source }

func (panickySource) ExtractAll(string) (iter.Seq[adapter.Attempt], error) {
	panic("selector engine exploded")
}

func TestAggregate_PanicInSourceIsIsolated(t *testing.T) {
	t.Parallel()

	boom := panickySource{testSource(t, "boom")}
	f := &fakeFetcher{pages: map[string]page{
		"fake://boom": {html: cards("boom", 1)},
		"fake://fine": {html: cards("fine", 2)},
	}}
	res := New(f, WithLogger(quietLogger())).
		Aggregate(context.Background(), models.FilterSet{}, []Source{boom, testSource(t, "fine")})

	require.Len(t, res.Listings, 2)
	assert.True(t, res.Sources[0].Failed())
	assert.Contains(t, res.Sources[0].Error, "panicked")
}

func TestAggregate_PassesWaitSelector(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string]page{"fake://w": {html: cards("w", 1)}}}
	New(f, WithLogger(quietLogger())).
		Aggregate(context.Background(), models.FilterSet{}, sources(t, "w"))

	require.Len(t, f.requests, 1)
	assert.Equal(t, "li.car", f.requests[0].WaitSelector)
}

func TestAggregate_RecordsMetrics(t *testing.T) {
	t.Parallel()

	okBefore := ptestutil.ToFloat64(metrics.SourceQueriesTotal.WithLabelValues("metrics-ok", metrics.OutcomeOK))
	failBefore := ptestutil.ToFloat64(metrics.SourceQueriesTotal.WithLabelValues("metrics-bad", metrics.OutcomeFetchError))
	listingsBefore := ptestutil.ToFloat64(metrics.SourceListingsTotal.WithLabelValues("metrics-ok"))

	f := &fakeFetcher{pages: map[string]page{
		"fake://metrics-ok":  {html: cards("metrics-ok", 4)},
		"fake://metrics-bad": {err: errors.New("down")},
	}}
	New(f, WithLogger(quietLogger())).
		Aggregate(context.Background(), models.FilterSet{}, sources(t, "metrics-ok", "metrics-bad"))

	assert.InDelta(t, okBefore+1, ptestutil.ToFloat64(metrics.SourceQueriesTotal.WithLabelValues("metrics-ok", metrics.OutcomeOK)), 0.001)
	assert.InDelta(t, failBefore+1, ptestutil.ToFloat64(metrics.SourceQueriesTotal.WithLabelValues("metrics-bad", metrics.OutcomeFetchError)), 0.001)
	assert.InDelta(t, listingsBefore+4, ptestutil.ToFloat64(metrics.SourceListingsTotal.WithLabelValues("metrics-ok")), 0.001)
}

// The nine-listing scenario runs against the real site adapters with
// synthetic markup for each site.
func TestAggregate_EndToEndWithSiteAdapters(t *testing.T) {
	t.Parallel()

	fs := models.FilterSet{
		Make:       "bmw",
		MinPrice:   1000,
		MaxPrice:   20000,
		MinMileage: 0,
		MaxMileage: 100000,
		MinYear:    2015,
		MaxYear:    2023,
		Gearbox:    models.GearboxAutomatic,
		Damage:     models.DamageAny,
		City:       "Berlin",
	}
	mobile, scout, klein := adapter.MobileDE(), adapter.AutoScout24(), adapter.Kleinanzeigen()

	var mobileHTML, scoutHTML, kleinHTML strings.Builder
	for i := 0; i < 3; i++ {
		fmt.Fprintf(&mobileHTML, `<div class="cldt-summary-full-item"><h2 class="cldt-summary-title">M%d</h2><a class="cldt-summary-titles" href="/m/%d">x</a></div>`, i, i)
		fmt.Fprintf(&scoutHTML, `<article class="cldt-summary-full-item"><h2>S%d</h2><a class="ListItem_title__ndA4s" href="/offers/%d">x</a></article>`, i, i)
		fmt.Fprintf(&kleinHTML, `<article class="aditem"><h2 class="text-module-begin">K%d</h2><a class="ellipsis" href="/s-anzeige/%d">x</a></article>`, i, i)
	}

	f := &fakeFetcher{pages: map[string]page{
		mobile.BuildQueryURL(fs): {html: mobileHTML.String()},
		scout.BuildQueryURL(fs):  {html: scoutHTML.String()},
		klein.BuildQueryURL(fs):  {html: kleinHTML.String()},
	}}

	res := New(f, WithLogger(quietLogger())).
		Aggregate(context.Background(), fs, AsSources(adapter.Defaults()))

	assert.Empty(t, res.Error)
	require.Len(t, res.Listings, 9)

	want := []models.Listing{
		{Source: "mobile.de", Title: "M0", URL: "https://www.mobile.de/m/0"},
		{Source: "mobile.de", Title: "M1", URL: "https://www.mobile.de/m/1"},
		{Source: "mobile.de", Title: "M2", URL: "https://www.mobile.de/m/2"},
		{Source: "autoscout24.de", Title: "S0", URL: "https://www.autoscout24.de/offers/0"},
		{Source: "autoscout24.de", Title: "S1", URL: "https://www.autoscout24.de/offers/1"},
		{Source: "autoscout24.de", Title: "S2", URL: "https://www.autoscout24.de/offers/2"},
		{Source: "ebay-kleinanzeigen.de", Title: "K0", URL: "https://www.ebay-kleinanzeigen.de/s-anzeige/0"},
		{Source: "ebay-kleinanzeigen.de", Title: "K1", URL: "https://www.ebay-kleinanzeigen.de/s-anzeige/1"},
		{Source: "ebay-kleinanzeigen.de", Title: "K2", URL: "https://www.ebay-kleinanzeigen.de/s-anzeige/2"},
	}
	assert.Equal(t, want, res.Listings)
}
