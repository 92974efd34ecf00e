package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/use-agent/carscout/adapter"
	"github.com/use-agent/carscout/aggregator"
	"github.com/use-agent/carscout/config"
	"github.com/use-agent/carscout/models"
)

type stubSearcher struct{}

func (stubSearcher) Aggregate(context.Context, models.FilterSet, []aggregator.Source) models.Result {
	return models.Result{Listings: []models.Listing{{Source: "mobile.de", Title: "t", URL: "u"}}}
}

type idle struct{}

func (idle) Active() int { return 0 }

func testConfig(auth bool) *config.Config {
	cfg := config.Load()
	cfg.Server.Mode = "test"
	cfg.Auth.Enabled = auth
	cfg.Auth.APIKeys = []string{"k1"}
	cfg.RateLimit.RequestsPerSecond = 100
	cfg.RateLimit.Burst = 100
	return cfg
}

func serve(r http.Handler, method, path, key string) int {
	var body *strings.Reader
	if method == http.MethodPost {
		body = strings.NewReader(`{"make":"bmw"}`)
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestNewRouter_Routes(t *testing.T) {
	r := NewRouter(stubSearcher{}, idle{}, adapter.Defaults(), testConfig(false), nil, time.Now())

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/health", ""))
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/sources", ""))
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/v1/search", ""))
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/metrics", ""))
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodPost, "/api/v1/scrape", ""))
}

func TestNewRouter_AuthProtectsSearchOnly(t *testing.T) {
	r := NewRouter(stubSearcher{}, idle{}, adapter.Defaults(), testConfig(true), nil, time.Now())

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/health", ""))
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/metrics", ""))
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodPost, "/api/v1/search", ""))
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/api/v1/sources", "nope"))
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/v1/search", "k1"))
}
