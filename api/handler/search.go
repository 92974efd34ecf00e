package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/use-agent/carscout/adapter"
	"github.com/use-agent/carscout/aggregator"
	"github.com/use-agent/carscout/filters"
	"github.com/use-agent/carscout/models"
)

// Searcher runs one aggregate query. *aggregator.Aggregator implements it.
type Searcher interface {
	Aggregate(ctx context.Context, fs models.FilterSet, sources []aggregator.Source) models.Result
}

// fieldSources optionally narrows a request to some of the configured sources.
const fieldSources = "sources"

var filterFields = []string{
	filters.FieldMake,
	filters.FieldCity,
	filters.FieldMinMileage,
	filters.FieldMaxMileage,
	filters.FieldMinYear,
	filters.FieldMaxYear,
	filters.FieldGearbox,
	filters.FieldMinPrice,
	filters.FieldMaxPrice,
	filters.FieldDamage,
}

// Search returns a handler for POST /api/v1/search.
//
// Orchestration flow:
//  1. Read raw filters from a JSON object or form fields.
//  2. filters.Normalize → FilterSet, 400 on invalid numbers.
//  3. Searcher.Aggregate over the configured (or requested) sources.
//  4. 200 with listings, or the no-results / retrieval error.
func Search(s Searcher, configured []*adapter.Adapter, log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(c *gin.Context) {
		totalStart := time.Now()
		searchID := uuid.NewString()
		timing := func() models.TimingInfo {
			return models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()}
		}

		// ── 1. Parse request ────────────────────────────────────────
		raw, names, err := readFilters(c)
		if err != nil {
			respondError(c, searchID, models.NewSearchError(models.ErrCodeValidation, err.Error(), err), timing())
			return
		}

		sources, err := pickSources(configured, names)
		if err != nil {
			respondError(c, searchID, models.NewSearchError(models.ErrCodeValidation, err.Error(), err), timing())
			return
		}

		// ── 2. Normalize ────────────────────────────────────────────
		fs, err := filters.Normalize(raw)
		if err != nil {
			respondError(c, searchID, err, timing())
			return
		}

		// ── 3. Aggregate ────────────────────────────────────────────
		log.Info("search started", "search_id", searchID, "make", fs.Make, "city", fs.City, "sources", len(sources))
		res := s.Aggregate(c.Request.Context(), fs, aggregator.AsSources(sources))

		resp := models.SearchResponse{
			Success:  res.Found(),
			SearchID: searchID,
			Filters:  &fs,
			Listings: res.Listings,
			Sources:  res.Sources,
		}

		// ── 4. Respond ──────────────────────────────────────────────
		status := http.StatusOK
		switch {
		case res.Found():
		case res.Error == models.MsgNoResults:
			resp.Error = &models.ErrorDetail{Code: models.ErrCodeNoResults, Message: res.Error}
		default:
			resp.Error = &models.ErrorDetail{Code: models.ErrCodeRetrieval, Message: res.Error}
			status = http.StatusBadGateway
		}
		resp.Timing = timing()
		c.JSON(status, resp)
	}
}

// readFilters collects the raw filter fields and the optional source names.
// JSON bodies may carry numbers or strings; anything else is a form. Only
// fields actually supplied are set, so absent fields keep their defaults
// while empty submitted values still reach validation. A JSON null counts
// as absent.
func readFilters(c *gin.Context) (filters.RawFilters, []string, error) {
	raw := make(filters.RawFilters, len(filterFields))

	if c.ContentType() == gin.MIMEJSON {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			return nil, nil, err
		}
		for _, f := range filterFields {
			val, ok := body[f]
			if !ok || val == nil {
				continue
			}
			v, err := stringify(val)
			if err != nil {
				return nil, nil, fmt.Errorf("field %s: %w", f, err)
			}
			raw[f] = v
		}
		names, err := stringList(body[fieldSources])
		if err != nil {
			return nil, nil, fmt.Errorf("field %s: %w", fieldSources, err)
		}
		return raw, names, nil
	}

	if err := c.Request.ParseForm(); err != nil {
		return nil, nil, err
	}
	for _, f := range filterFields {
		if vals, ok := c.Request.Form[f]; ok && len(vals) > 0 {
			raw[f] = vals[0]
		}
	}
	return raw, splitNames(c.Request.Form[fieldSources]), nil
}

// stringify renders a decoded JSON value the way a form would submit it.
// Numbers that are not integers survive as text and fail normalization.
func stringify(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("unsupported value %v", v)
	}
}

func stringList(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return splitNames([]string{t}), nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("expected source name, got %v", e)
			}
			out = append(out, s)
		}
		return splitNames(out), nil
	default:
		return nil, fmt.Errorf("expected list of source names, got %v", v)
	}
}

// splitNames accepts repeated values and comma-separated lists.
func splitNames(values []string) []string {
	var out []string
	for _, v := range values {
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				out = append(out, n)
			}
		}
	}
	return out
}

// pickSources narrows configured to names, keeping the configured order.
func pickSources(configured []*adapter.Adapter, names []string) ([]*adapter.Adapter, error) {
	if len(names) == 0 {
		return configured, nil
	}
	byName := make(map[string]*adapter.Adapter, len(configured))
	for _, a := range configured {
		byName[a.Name()] = a
	}
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := byName[n]; !ok {
			return nil, fmt.Errorf("unknown source %q", n)
		}
		want[n] = struct{}{}
	}
	out := make([]*adapter.Adapter, 0, len(want))
	for _, a := range configured {
		if _, ok := want[a.Name()]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// respondError maps a SearchError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, searchID string, err error, timing models.TimingInfo) {
	var searchErr *models.SearchError
	if !errors.As(err, &searchErr) {
		searchErr = models.NewSearchError(models.ErrCodeInternal, err.Error(), err)
	}

	c.JSON(mapErrorToStatus(searchErr), models.SearchResponse{
		Success:  false,
		SearchID: searchID,
		Listings: []models.Listing{},
		Error:    searchErr.ToDetail(),
		Timing:   timing,
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.SearchError) int {
	switch e.Code {
	case models.ErrCodeValidation:
		return http.StatusBadRequest // 400
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation, models.ErrCodeBrowserLaunch, models.ErrCodeRetrieval:
		return http.StatusBadGateway // 502
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
