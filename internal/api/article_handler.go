package api

import (
	"net/http"
	"strconv"

	"github.com/cms-article-engine/internal/config"
	"github.com/cms-article-engine/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ArticleHandler handles the article write endpoints
type ArticleHandler struct {
	cfg *config.Config
	log zerolog.Logger
}

// NewArticleHandler creates a new ArticleHandler
func NewArticleHandler(cfg *config.Config, log zerolog.Logger) *ArticleHandler {
	return &ArticleHandler{
		cfg: cfg,
		log: log.With().Str("handler", "article").Logger(),
	}
}

// CreateArticle handles POST /v1/tenants/:tenant/articles
func (h *ArticleHandler) CreateArticle(c *gin.Context) {
	var cmd models.CreateArticleCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx, cancel := contextWithTimeout(c, h.cfg.Server.WriteTimeout)
	defer cancel()

	result, err := servicesFrom(c).Article.CreateArticle(ctx, &cmd)
	if err != nil {
		h.log.Error().Err(err).Str("title", cmd.Title).Msg("Create article failed")
	}
	writeResult(c, http.StatusCreated, result, err)
}

// SaveArticle handles PUT /v1/tenants/:tenant/articles/:number
// The number in the path wins over the one in the body.
func (h *ArticleHandler) SaveArticle(c *gin.Context) {
	number, ok := articleNumber(c)
	if !ok {
		return
	}

	var cmd models.SaveArticleCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	cmd.ArticleNumber = number

	ctx, cancel := contextWithTimeout(c, h.cfg.Server.WriteTimeout)
	defer cancel()

	result, err := servicesFrom(c).Article.SaveArticle(ctx, &cmd)
	if err != nil {
		h.log.Warn().Err(err).Int("article_number", number).Msg("Save article failed")
	}
	writeResult(c, http.StatusOK, result, err)
}

// CreateNewVersion handles POST /v1/tenants/:tenant/articles/:number/versions
func (h *ArticleHandler) CreateNewVersion(c *gin.Context) {
	number, ok := articleNumber(c)
	if !ok {
		return
	}

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	ctx, cancel := contextWithTimeout(c, h.cfg.Server.WriteTimeout)
	defer cancel()

	article, err := servicesFrom(c).Article.CreateNewVersion(ctx, number, req.UserID)
	if err != nil {
		h.log.Warn().Err(err).Int("article_number", number).Msg("Create version failed")
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, article)
}

// ListVersions handles GET /v1/tenants/:tenant/articles/:number/versions
func (h *ArticleHandler) ListVersions(c *gin.Context) {
	number, ok := articleNumber(c)
	if !ok {
		return
	}

	versions, err := servicesFrom(c).Article.ListVersions(c.Request.Context(), number)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"article_number": number,
		"versions":       versions,
	})
}

func articleNumber(c *gin.Context) (int, bool) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "article number must be a positive integer"})
		return 0, false
	}
	return number, true
}
