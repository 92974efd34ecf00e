package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/carscout/filters"
	"github.com/use-agent/carscout/models"
)

// numericFields are forwarded to the API as numbers when present.
var numericFields = []string{
	filters.FieldMinPrice, filters.FieldMaxPrice,
	filters.FieldMinMileage, filters.FieldMaxMileage,
	filters.FieldMinYear, filters.FieldMaxYear,
}

func main() {
	apiURL := os.Getenv("CARSCOUT_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("CARSCOUT_API_KEY")

	s := server.NewMCPServer(
		"carscout",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	searchCarsTool := mcp.NewTool("search_cars",
		mcp.WithDescription("Search German used-car marketplaces (mobile.de, autoscout24.de, ebay-kleinanzeigen.de) and return up to ten listings per site with title and link. Each search renders every site in a headless browser and can take up to a minute."),
		mcp.WithString(filters.FieldMake,
			mcp.Description("Car make, e.g. 'bmw'. Case does not matter."),
		),
		mcp.WithString(filters.FieldCity,
			mcp.Description("City name, e.g. 'Berlin'"),
		),
		mcp.WithNumber(filters.FieldMinPrice, mcp.Description("Minimum price in EUR (default 0)")),
		mcp.WithNumber(filters.FieldMaxPrice, mcp.Description("Maximum price in EUR (default 999999)")),
		mcp.WithNumber(filters.FieldMinMileage, mcp.Description("Minimum mileage in km (default 0)")),
		mcp.WithNumber(filters.FieldMaxMileage, mcp.Description("Maximum mileage in km (default 999999)")),
		mcp.WithNumber(filters.FieldMinYear, mcp.Description("Earliest first registration year (default 1900)")),
		mcp.WithNumber(filters.FieldMaxYear, mcp.Description("Latest first registration year (default: current year)")),
		mcp.WithString(filters.FieldGearbox,
			mcp.Description("Gearbox: 'Schaltgetriebe' (manual) or 'Automatik'. Omit for any."),
			mcp.Enum(filters.LabelManual, filters.LabelAutomatic),
		),
		mcp.WithString(filters.FieldDamage,
			mcp.Description("Damage: 'Neu' (undamaged) or 'Beschädigt' (damaged). Omit for any."),
			mcp.Enum(filters.LabelUndamaged, filters.LabelDamaged),
		),
		mcp.WithArray("sources",
			mcp.Description("Restrict the search to these site names"),
		),
	)
	s.AddTool(searchCarsTool, handleSearchCars(apiURL, apiKey))

	listSourcesTool := mcp.NewTool("list_sources",
		mcp.WithDescription("List the marketplaces carscout can search."),
	)
	s.AddTool(listSourcesTool, handleListSources(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiDo sends a request to the carscout API and returns the response body.
func apiDo(ctx context.Context, client *http.Client, method, endpoint, apiKey string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func handleSearchCars(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 180 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		payload := map[string]any{}
		for _, f := range []string{filters.FieldMake, filters.FieldCity, filters.FieldGearbox, filters.FieldDamage} {
			if v := request.GetString(f, ""); v != "" {
				payload[f] = v
			}
		}
		for _, f := range numericFields {
			if v, ok := args[f]; ok {
				payload[f] = v
			}
		}
		if srcs := request.GetStringSlice("sources", nil); len(srcs) > 0 {
			payload["sources"] = srcs
		}

		respBody, err := apiDo(ctx, client, http.MethodPost, apiURL+"/api/v1/search", apiKey, payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search request failed: %v", err)), nil
		}

		var resp models.SearchResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !resp.Success {
			errMsg := "search failed"
			if resp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		return mcp.NewToolResultText(formatListings(resp)), nil
	}
}

func handleListSources(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		respBody, err := apiDo(ctx, client, http.MethodGet, apiURL+"/api/v1/sources", apiKey, nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("sources request failed: %v", err)), nil
		}

		var resp models.SourcesResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		var sb strings.Builder
		for _, src := range resp.Sources {
			fmt.Fprintf(&sb, "%s (%s)\n", src.Name, src.Domain)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// formatListings renders listings grouped by site, followed by any site
// that failed.
func formatListings(resp models.SearchResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d listings\n", len(resp.Listings))

	current := ""
	for _, l := range resp.Listings {
		if l.Source != current {
			current = l.Source
			fmt.Fprintf(&sb, "\n## %s\n", current)
		}
		fmt.Fprintf(&sb, "- %s\n  %s\n", l.Title, l.URL)
	}

	for _, r := range resp.Sources {
		if r.Failed() {
			fmt.Fprintf(&sb, "\n%s failed: %s\n", r.Source, r.Error)
		}
	}
	return sb.String()
}
