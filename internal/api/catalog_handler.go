package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// CatalogHandler handles catalog export endpoints
type CatalogHandler struct {
	log zerolog.Logger
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(log zerolog.Logger) *CatalogHandler {
	return &CatalogHandler{
		log: log.With().Str("handler", "catalog").Logger(),
	}
}

// StreamCatalog handles GET /v1/tenants/:tenant/catalog?format=...
// Streams the catalog directly to the response
func (h *CatalogHandler) StreamCatalog(c *gin.Context) {
	format := c.Query("format")
	if format == "" {
		format = "ndjson" // Default to NDJSON for streaming
	}
	if format != "ndjson" && format != "json" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be one of: ndjson, json"})
		return
	}

	h.log.Info().
		Str("tenant", c.Param("tenant")).
		Str("format", format).
		Msg("Starting catalog export")

	if err := servicesFrom(c).Catalog.StreamCatalog(c.Request.Context(), c.Writer, format); err != nil {
		h.log.Error().Err(err).Str("format", format).Msg("Catalog export failed")
		// Can't return error JSON after streaming has started
		if !c.Writer.Written() {
			writeError(c, err)
		}
	}
}

// GetCount handles GET /v1/tenants/:tenant/catalog/count
func (h *CatalogHandler) GetCount(c *gin.Context) {
	count, err := servicesFrom(c).Catalog.GetCount(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}
