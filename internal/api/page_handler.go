package api

import (
	"net/http"
	"strconv"

	"github.com/cms-article-engine/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// PageHandler handles the public read endpoints
type PageHandler struct {
	cfg *config.Config
	log zerolog.Logger
}

// NewPageHandler creates a new PageHandler
func NewPageHandler(cfg *config.Config, log zerolog.Logger) *PageHandler {
	return &PageHandler{
		cfg: cfg,
		log: log.With().Str("handler", "page").Logger(),
	}
}

// GetPage handles GET /v1/tenants/:tenant/pages/*path?lang=...&layout=...
// A redirect row answers 301 with its target.
func (h *PageHandler) GetPage(c *gin.Context) {
	includeLayout := true
	if raw := c.Query("layout"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "layout must be a boolean"})
			return
		}
		includeLayout = parsed
	}

	ctx, cancel := contextWithTimeout(c, h.cfg.Server.ReadTimeout)
	defer cancel()

	page, err := servicesFrom(c).Page.GetPublishedPageByURL(ctx, c.Param("path"), c.Query("lang"), includeLayout, h.cfg.Cache.PageTTL)
	if err != nil {
		writeError(c, err)
		return
	}

	if page.IsRedirect() {
		c.Redirect(http.StatusMovedPermanently, "/"+page.RedirectTarget)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetTableOfContents handles GET /v1/tenants/:tenant/toc?prefix=...&page=...&page_size=...&order=published
func (h *PageHandler) GetTableOfContents(c *gin.Context) {
	pageNo, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	byPublished := c.Query("order") == "published"

	ctx, cancel := contextWithTimeout(c, h.cfg.Server.ReadTimeout)
	defer cancel()

	toc, err := servicesFrom(c).Page.GetTableOfContents(ctx, c.Query("prefix"), pageNo, pageSize, byPublished)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toc)
}

// Search handles GET /v1/tenants/:tenant/search?q=...
func (h *PageHandler) Search(c *gin.Context) {
	text := c.Query("q")
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q parameter is required"})
		return
	}

	ctx, cancel := contextWithTimeout(c, h.cfg.Server.ReadTimeout)
	defer cancel()

	items, err := servicesFrom(c).Page.Search(ctx, text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"query": text,
		"count": len(items),
		"items": items,
	})
}
