package models

// NotAvailable is the placeholder for a title or URL that could not be
// extracted from a listing card.
const NotAvailable = "N/A"

// Listing is one normalized advertisement. All three fields are always set.
type Listing struct {
	Source string `json:"source"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

// SourceReport describes how a single source fared during one query.
type SourceReport struct {
	Source     string `json:"source"`
	QueryURL   string `json:"query_url"`
	Listings   int    `json:"listings"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Failed reports whether the source produced an error.
func (r SourceReport) Failed() bool {
	return r.Error != ""
}

// Result is the merged output of one aggregate call.
//
// Listings holds each source's records in adapter order. Error is empty
// when at least one listing was found.
type Result struct {
	Listings []Listing      `json:"listings"`
	Error    string         `json:"error,omitempty"`
	Sources  []SourceReport `json:"sources"`
}

// Found reports whether any listing was found.
func (r Result) Found() bool {
	return len(r.Listings) > 0
}
