package service

import (
	"context"
	"net/http"
	"time"

	"github.com/cms-article-engine/internal/cache"
	"github.com/cms-article-engine/internal/cdn"
	"github.com/cms-article-engine/internal/clock"
	"github.com/cms-article-engine/internal/config"
	"github.com/cms-article-engine/internal/editable"
	"github.com/cms-article-engine/internal/metrics"
	"github.com/cms-article-engine/internal/models"
	"github.com/cms-article-engine/internal/repository"
	"github.com/cms-article-engine/internal/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultSaveAttempts = 3

// ArticleService defines the write operations on articles
type ArticleService interface {
	// SaveArticle edits the latest version. Validation failures come back as an
	// unsuccessful result with a nil error; every other failure returns both.
	SaveArticle(ctx context.Context, cmd *models.SaveArticleCommand) (*models.CommandResult, error)
	CreateArticle(ctx context.Context, cmd *models.CreateArticleCommand) (*models.CommandResult, error)
	CreateNewVersion(ctx context.Context, articleNumber int, userID string) (*models.Article, error)
	ListVersions(ctx context.Context, articleNumber int) ([]*models.Article, error)
}

// PageService defines the public read path
type PageService interface {
	GetPublishedPageByURL(ctx context.Context, urlPath, lang string, includeLayout bool, ttl time.Duration) (*models.PublishedPage, error)
	GetTableOfContents(ctx context.Context, prefix string, pageNo, pageSize int, orderByPublishedDate bool) (*models.TableOfContents, error)
	Search(ctx context.Context, text string) ([]models.TOCItem, error)
	GetAdjacentBlogPosts(ctx context.Context, article *models.Article) (*models.BlogNavigation, error)
	EnrichBlogNavigation(ctx context.Context, page *models.PublishedPage) error
}

// CatalogService defines the catalog export operations
type CatalogService interface {
	StreamCatalog(ctx context.Context, w http.ResponseWriter, format string) error
	GetCount(ctx context.Context) (int, error)
}

// MarkerProcessor inserts editable-region markers into article HTML
type MarkerProcessor interface {
	EnsureEditableMarkers(html string) string
}

// Dependencies are the collaborators of one tenant's services.
// Nil collaborators fall back to no-op or system implementations.
type Dependencies struct {
	Tenant   string
	Store    repository.Store
	Notifier cdn.Notifier
	Cache    cache.PageCache
	Clock    clock.Clock
	Markers  MarkerProcessor
	Metrics  *metrics.Metrics
	Save     config.SaveConfig
}

// Services holds all service interfaces
type Services struct {
	Article ArticleService
	Page    PageService
	Catalog CatalogService
}

// NewServices creates all services of a tenant
func NewServices(deps Dependencies, log zerolog.Logger) *Services {
	if deps.Notifier == nil {
		deps.Notifier = cdn.NopNotifier{}
	}
	if deps.Cache == nil {
		deps.Cache = cache.NopCache{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Markers == nil {
		deps.Markers = editable.NewProcessor()
	}
	if deps.Save.MaxAttempts <= 0 {
		deps.Save.MaxAttempts = defaultSaveAttempts
	}

	log = log.With().Str("tenant", deps.Tenant).Logger()
	redirects := newRedirectEngine(deps.Metrics, deps.Tenant, uuid.NewString)

	return &Services{
		Article: &articleService{
			tenant:    deps.Tenant,
			store:     deps.Store,
			notifier:  deps.Notifier,
			cache:     deps.Cache,
			clock:     deps.Clock,
			markers:   deps.Markers,
			metrics:   deps.Metrics,
			validator: validation.NewValidator(),
			titles:    newTitleChangeService(redirects, log),
			redirects: redirects,
			cfg:       deps.Save,
			newID:     uuid.NewString,
			log:       log.With().Str("service", "article").Logger(),
		},
		Page:    newPageService(deps.Store, deps.Cache, deps.Clock, log),
		Catalog: newCatalogService(deps.Store, log),
	}
}
