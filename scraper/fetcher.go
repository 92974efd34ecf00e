// Package scraper loads client-rendered result pages in a headless browser
// and returns their serialized DOM.
package scraper

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/use-agent/carscout/config"
	"github.com/use-agent/carscout/models"
)

// Request is one page load.
type Request struct {
	// URL is the page to render.
	URL string

	// WaitSelector, when set and selector waiting is enabled, ends the
	// settle interval early once a matching element exists.
	WaitSelector string
}

// PageFetcher returns the fully rendered HTML of a page.
type PageFetcher interface {
	Fetch(ctx context.Context, req Request) (string, error)
}

// Fetcher launches a fresh browser for every Fetch call and tears it down
// before returning. It is safe for concurrent use; concurrent calls run in
// separate browser processes.
type Fetcher struct {
	browserCfg config.BrowserConfig
	scraperCfg config.ScraperConfig
	log        *slog.Logger
	active     atomic.Int32
}

// NewFetcher creates a Fetcher. No browser is started until Fetch.
func NewFetcher(browserCfg config.BrowserConfig, scraperCfg config.ScraperConfig, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{
		browserCfg: browserCfg,
		scraperCfg: scraperCfg,
		log:        log,
	}
}

// Active returns the number of browser sessions currently open.
func (f *Fetcher) Active() int {
	return int(f.active.Load())
}

// Fetch renders req.URL and returns the page HTML.
//
// Lifecycle:
//
//  1. Launch         – start a browser process bound to ctx
//  2. Connect        – open the CDP connection and a blank page
//  3. DEFER: release – close page, browser and kill the process on every path
//  4. Hijack mount   – block heavy resource types (before navigation!)
//  5. Headers        – Accept-Language for the German sites
//  6. Navigate       – bounded by the navigation timeout
//  7. Settle         – fixed interval, or until WaitSelector appears
//  8. Extract        – page.HTML()
func (f *Fetcher) Fetch(ctx context.Context, req Request) (string, error) {
	f.active.Add(1)
	defer f.active.Add(-1)

	// ── 1. Launch ─────────────────────────────────────────────────────
	l := f.newLauncher(ctx)
	controlURL, err := l.Launch()
	if err != nil {
		return "", models.NewSearchError(
			models.ErrCodeBrowserLaunch,
			"failed to launch browser",
			err,
		)
	}
	defer func() {
		l.Kill()
		l.Cleanup()
	}()

	// ── 2. Connect ────────────────────────────────────────────────────
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return "", models.NewSearchError(
			models.ErrCodeBrowserLaunch,
			"failed to connect to browser",
			err,
		)
	}
	// ── 3. Release ────────────────────────────────────────────────────
	// The browser is not bound to ctx so these still run
	// after a deadline.
	defer func() {
		if closeErr := browser.Close(); closeErr != nil {
			f.log.Debug("browser close failed", "error", closeErr)
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", models.NewSearchError(
			models.ErrCodeBrowserLaunch,
			"failed to open page",
			err,
		)
	}
	defer func() { _ = page.Close() }()

	// ── 4. Hijack ─────────────────────────────────────────────────────
	if router := setupHijack(page, f.scraperCfg.BlockedResourceTypes); router != nil {
		defer func() { _ = router.Stop() }()
	}

	// ── 5. Headers ────────────────────────────────────────────────────
	if lang := f.browserCfg.AcceptLanguage; lang != "" {
		f.setHeaders(page, req.URL, map[string]string{"Accept-Language": lang})
	}

	// ── 6. Navigate ───────────────────────────────────────────────────
	navCtx, navCancel := context.WithTimeout(ctx, f.scraperCfg.NavigationTimeout)
	defer navCancel()
	if err := page.Context(navCtx).Navigate(req.URL); err != nil {
		return "", categorizeError(err, "navigation to search page failed")
	}

	// ── 7. Settle ─────────────────────────────────────────────────────
	if err := f.settle(ctx, page, req.WaitSelector); err != nil {
		return "", err
	}

	// ── 8. Extract ────────────────────────────────────────────────────
	rawHTML, err := page.Context(ctx).HTML()
	if err != nil {
		return "", categorizeError(err, "failed to read page HTML")
	}

	f.log.Debug("page rendered", "url", req.URL, "bytes", len(rawHTML))
	return rawHTML, nil
}

// settle gives client-side rendering time to populate the page. With
// selector waiting enabled it returns as soon as selector matches, but
// never waits longer than the settle interval.
func (f *Fetcher) settle(ctx context.Context, page *rod.Page, selector string) error {
	interval := f.scraperCfg.SettleInterval

	if f.scraperCfg.WaitForSelector && selector != "" {
		waitCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		if _, err := page.Context(waitCtx).Element(selector); err != nil {
			if ctx.Err() != nil {
				return categorizeError(ctx.Err(), "fetch deadline exceeded while rendering")
			}
			f.log.Debug("wait selector not found, using current DOM",
				"selector", selector, "error", err)
		}
		return nil
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return categorizeError(ctx.Err(), "fetch deadline exceeded while rendering")
	case <-timer.C:
		return nil
	}
}

func (f *Fetcher) newLauncher(ctx context.Context) *launcher.Launcher {
	l := launcher.New().
		Context(ctx).
		Headless(f.browserCfg.Headless).
		NoSandbox(f.browserCfg.NoSandbox)

	if f.browserCfg.BrowserBin != "" {
		l = l.Bin(f.browserCfg.BrowserBin)
	}
	if f.browserCfg.Proxy != "" {
		l = l.Proxy(f.browserCfg.Proxy)
	}

	l.Set(flags.Flag("disable-gpu"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("no-first-run"))
	return l
}

// setHeaders sends extra request headers for the page. A failure is logged
// and the fetch continues without them.
func (f *Fetcher) setHeaders(c proto.Client, url string, headers map[string]string) {
	err := proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(headers)}.Call(c)
	if err != nil {
		f.log.Debug("set extra headers failed", "url", url, "error", err)
	}
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw errors into typed SearchErrors so the API layer
// can map them to appropriate HTTP status codes.
func categorizeError(err error, msg string) *models.SearchError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewSearchError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewSearchError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewSearchError(models.ErrCodeNavigation, msg, err)
	}
}
