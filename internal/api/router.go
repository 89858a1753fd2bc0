package api

import (
	"context"
	"net/http"
	"time"

	"github.com/cms-article-engine/internal/config"
	"github.com/cms-article-engine/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	serviceName     = "cms-article-engine"
	servicesKey     = "services"
	defaultDeadline = 30 * time.Second
)

// Tenants resolves the services of a tenant and reports database health
type Tenants interface {
	Services(name string) (*service.Services, bool)
	HealthCheck(ctx context.Context) map[string]error
}

// NewRouter creates and configures the Gin router
func NewRouter(tenants Tenants, cfg *config.Config, gatherer prometheus.Gatherer, log zerolog.Logger) *gin.Engine {
	// Set Gin mode
	gin.SetMode(gin.ReleaseMode)

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := gin.New()

	// Middleware
	router.Use(recoveryMiddleware(log))
	router.Use(loggingMiddleware(log))
	router.Use(corsMiddleware())

	// Handlers
	articleHandler := NewArticleHandler(cfg, log)
	pageHandler := NewPageHandler(cfg, log)
	catalogHandler := NewCatalogHandler(log)

	// Health check
	router.GET("/health", healthCheck(tenants))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// API v1
	v1 := router.Group("/v1/tenants/:tenant", tenantMiddleware(tenants))
	{
		// Article write endpoints
		articles := v1.Group("/articles")
		{
			articles.POST("", articleHandler.CreateArticle)
			articles.PUT("/:number", articleHandler.SaveArticle)
			articles.POST("/:number/versions", articleHandler.CreateNewVersion)
			articles.GET("/:number/versions", articleHandler.ListVersions)
		}

		// Public read endpoints
		v1.GET("/pages/*path", pageHandler.GetPage)
		v1.GET("/toc", pageHandler.GetTableOfContents)
		v1.GET("/search", pageHandler.Search)

		// Catalog export endpoints
		catalog := v1.Group("/catalog")
		{
			catalog.GET("", catalogHandler.StreamCatalog)
			catalog.GET("/count", catalogHandler.GetCount)
		}
	}

	return router
}

// healthCheck reports healthy only when every tenant database answers
func healthCheck(tenants Tenants) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := contextWithTimeout(c, 5*time.Second)
		defer cancel()

		status := "healthy"
		code := http.StatusOK
		databases := gin.H{}
		for name, err := range tenants.HealthCheck(ctx) {
			if err != nil {
				status = "unhealthy"
				code = http.StatusServiceUnavailable
				databases[name] = err.Error()
				continue
			}
			databases[name] = "ok"
		}

		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().Format(time.RFC3339),
			"service":   serviceName,
			"tenants":   databases,
		})
	}
}

// tenantMiddleware resolves :tenant to its services
func tenantMiddleware(tenants Tenants) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("tenant")
		services, ok := tenants.Services(name)
		if !ok {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown tenant " + name})
			return
		}
		c.Set(servicesKey, services)
		c.Next()
	}
}

// servicesFrom returns the services resolved by tenantMiddleware
func servicesFrom(c *gin.Context) *service.Services {
	return c.MustGet(servicesKey).(*service.Services)
}

// recoveryMiddleware handles panics
func recoveryMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("error", err).Msg("Panic recovered")
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// loggingMiddleware logs requests
func loggingMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		event := log.Info()
		if statusCode >= 400 {
			event = log.Warn()
		}
		if statusCode >= 500 {
			event = log.Error()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("tenant", c.Param("tenant")).
			Int("status", statusCode).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("Request completed")
	}
}

// corsMiddleware handles CORS
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// contextWithTimeout creates a context with timeout for handlers
func contextWithTimeout(c *gin.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultDeadline
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}
