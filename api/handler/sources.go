package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/carscout/adapter"
	"github.com/use-agent/carscout/filters"
	"github.com/use-agent/carscout/models"
)

// Sources returns a handler for GET /api/v1/sources.
//
// Filter fields may be passed as query parameters; each source then reports
// the search URL it would request for them. Without parameters the URLs
// reflect the default filter set.
func Sources(configured []*adapter.Adapter) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := make(filters.RawFilters, len(filterFields))
		for _, f := range filterFields {
			if v, ok := c.GetQuery(f); ok {
				raw[f] = v
			}
		}

		fs, err := filters.Normalize(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.SourcesResponse{
				Sources: []models.SourceInfo{},
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeValidation,
					Message: models.MsgInvalidNumbers,
				},
			})
			return
		}

		out := make([]models.SourceInfo, 0, len(configured))
		for _, a := range configured {
			out = append(out, models.SourceInfo{
				Name:     a.Name(),
				Domain:   a.Domain(),
				QueryURL: a.BuildQueryURL(fs),
			})
		}
		c.JSON(http.StatusOK, models.SourcesResponse{Sources: out})
	}
}
