package models

// SearchResponse is the response for POST /api/v1/search.
type SearchResponse struct {
	// Success is true when at least one listing was found.
	Success bool `json:"success"`

	// SearchID identifies this query in logs.
	SearchID string `json:"search_id"`

	// Filters echoes the normalized filter set.
	Filters *FilterSet `json:"filters,omitempty"`

	// Listings is the merged result set, possibly empty.
	Listings []Listing `json:"listings"`

	// Sources reports the outcome for every queried site.
	Sources []SourceReport `json:"sources,omitempty"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`
}

// SourceInfo describes one configured site and the URL it would query.
type SourceInfo struct {
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	QueryURL string `json:"query_url,omitempty"`
}

// SourcesResponse is the response for GET /api/v1/sources.
type SourcesResponse struct {
	Sources []SourceInfo `json:"sources"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status        string `json:"status"`
	Uptime        string `json:"uptime"`
	Sources       int    `json:"sources"`
	ActiveFetches int    `json:"active_fetches"`
	Version       string `json:"version"`
}
