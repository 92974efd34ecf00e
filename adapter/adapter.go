// Package adapter holds the per-site query builders and listing extractors.
//
// Every site runs the same extraction algorithm; sites differ only in their
// URL grammar and in a small SelectorTable describing their listing markup.
package adapter

import (
	"fmt"
	"iter"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/use-agent/carscout/models"
)

// MaxListings is the number of listing cards read from each result page.
const MaxListings = 10

// SelectorTable is the declarative description of one site's listing markup.
type SelectorTable struct {
	// Card matches one listing card.
	Card string

	// Title matches the heading inside a card.
	Title string

	// Link matches the anchor inside a card that points to the ad.
	Link string
}

// URLBuilder formats a site's search URL from the canonical filters.
type URLBuilder func(fs models.FilterSet) string

// Adapter is one source: its name, domain root, query builder and
// compiled selectors. It holds no mutable state and is safe for
// concurrent use.
type Adapter struct {
	name      string
	domain    string
	selectors SelectorTable
	buildURL  URLBuilder

	card  cascadia.Selector
	title cascadia.Selector
	link  cascadia.Selector
}

// New compiles the selector table and returns the adapter. domain is the
// scheme+host prefix joined with relative hrefs (no trailing slash).
func New(name, domain string, sel SelectorTable, build URLBuilder) (*Adapter, error) {
	if name == "" || build == nil {
		return nil, fmt.Errorf("adapter: name and URL builder are required")
	}

	a := &Adapter{
		name:      name,
		domain:    strings.TrimRight(domain, "/"),
		selectors: sel,
		buildURL:  build,
	}

	var err error
	if a.card, err = compile(name, "card", sel.Card); err != nil {
		return nil, err
	}
	if a.title, err = compile(name, "title", sel.Title); err != nil {
		return nil, err
	}
	if a.link, err = compile(name, "link", sel.Link); err != nil {
		return nil, err
	}
	return a, nil
}

// MustNew is like New but panics on error. Used for the built-in sources
// whose selectors are constants.
func MustNew(name, domain string, sel SelectorTable, build URLBuilder) *Adapter {
	a, err := New(name, domain, sel, build)
	if err != nil {
		panic(err)
	}
	return a
}

func compile(name, kind, selector string) (cascadia.Selector, error) {
	s, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("adapter %s: bad %s selector %q: %w", name, kind, selector, err)
	}
	return s, nil
}

// Name identifies the source in every Listing it produces.
func (a *Adapter) Name() string { return a.name }

// Domain is the root prepended to relative listing links.
func (a *Adapter) Domain() string { return a.domain }

// Selectors returns the adapter's selector table.
func (a *Adapter) Selectors() SelectorTable { return a.selectors }

// WaitSelector is the selector a fetcher may wait for before snapshotting
// the page.
func (a *Adapter) WaitSelector() string { return a.selectors.Card }

// BuildQueryURL formats the site's search URL. fs is a copy; the caller's
// filters are never touched.
func (a *Adapter) BuildQueryURL(fs models.FilterSet) string {
	return a.buildURL(fs)
}

// Attempt is the outcome of extracting one listing card: either a Listing,
// or a non-nil Err explaining why the card was skipped.
type Attempt struct {
	Index   int
	Listing models.Listing
	Err     error
}

// OK reports whether the attempt produced a listing.
func (at Attempt) OK() bool { return at.Err == nil }

// ExtractAll parses rawHTML and returns a lazy sequence with one Attempt per
// listing card, in document order, for at most MaxListings cards.
func (a *Adapter) ExtractAll(rawHTML string) (iter.Seq[Attempt], error) {
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, models.NewSearchError(
			models.ErrCodeExtraction,
			a.name+": failed to parse page markup",
			err,
		)
	}
	cards := goquery.NewDocumentFromNode(root).FindMatcher(a.card)

	return func(yield func(Attempt) bool) {
		n := min(cards.Length(), MaxListings)
		for i := 0; i < n; i++ {
			if !yield(a.extractCard(i, cards.Eq(i))) {
				return
			}
		}
	}, nil
}

// Extract returns the listings found in rawHTML. Cards that fail to
// extract are skipped; a page without cards yields an empty slice.
func (a *Adapter) Extract(rawHTML string) ([]models.Listing, error) {
	attempts, err := a.ExtractAll(rawHTML)
	if err != nil {
		return nil, err
	}

	listings := make([]models.Listing, 0, MaxListings)
	for at := range attempts {
		if at.OK() {
			listings = append(listings, at.Listing)
		}
	}
	return listings, nil
}

// extractCard builds one Listing. A missing title or link yields the
// NotAvailable placeholder; only an unexpected failure skips the card.
func (a *Adapter) extractCard(i int, card *goquery.Selection) (at Attempt) {
	at.Index = i
	defer func() {
		if r := recover(); r != nil {
			at = Attempt{
				Index: i,
				Err: models.NewSearchError(
					models.ErrCodeExtraction,
					fmt.Sprintf("%s: listing %d skipped", a.name, i),
					fmt.Errorf("%v", r),
				),
			}
		}
	}()

	if card.Length() == 0 || card.Get(0).Type != html.ElementNode {
		at.Err = models.NewSearchError(
			models.ErrCodeExtraction,
			fmt.Sprintf("%s: listing %d is not an element", a.name, i),
			nil,
		)
		return at
	}

	title := models.NotAvailable
	if t := card.FindMatcher(a.title).First(); t.Length() > 0 {
		if text := strings.TrimSpace(t.Text()); text != "" {
			title = text
		}
	}

	link := models.NotAvailable
	if l := card.FindMatcher(a.link).First(); l.Length() > 0 {
		if href, ok := l.Attr("href"); ok && href != "" {
			link = a.absolute(href)
		}
	}

	at.Listing = models.Listing{Source: a.name, Title: title, URL: link}
	return at
}

// absolute joins a relative href with the domain root. Hrefs that already
// carry a scheme or are protocol-relative are returned as absolute URLs
// without the domain prefix.
func (a *Adapter) absolute(href string) string {
	switch {
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return href
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "/"):
		return a.domain + href
	default:
		return a.domain + "/" + href
	}
}
