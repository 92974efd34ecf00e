package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/carscout/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// FetchCounter reports how many browser sessions are open.
// *scraper.Fetcher implements it.
type FetchCounter interface {
	Active() int
}

// Health returns a handler for GET /api/v1/health.
//
// Reports open browser sessions and degrades status once they exceed
// maxActive. maxActive <= 0 disables the check.
func Health(fc FetchCounter, sources, maxActive int, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		active := fc.Active()

		status := "healthy"
		if maxActive > 0 && active > maxActive {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:        status,
			Uptime:        time.Since(startTime).Round(time.Second).String(),
			Sources:       sources,
			ActiveFetches: active,
			Version:       Version,
		})
	}
}
