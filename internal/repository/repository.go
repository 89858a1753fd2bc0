package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/cms-article-engine/internal/database"
	"github.com/cms-article-engine/internal/models"
)

// Querier is satisfied by *sql.DB, *sql.Tx and *database.DB
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ArticleRepository defines the interface for article rows (versions and redirects)
type ArticleRepository interface {
	Create(ctx context.Context, article *models.Article) error
	// Update fails with models.ErrConcurrencyConflict when RowVersion is stale
	Update(ctx context.Context, article *models.Article) error
	Delete(ctx context.Context, article *models.Article) error
	// GetLatest returns the highest version of an article, nil when absent
	GetLatest(ctx context.Context, articleNumber int) (*models.Article, error)
	ListVersions(ctx context.Context, articleNumber int) ([]*models.Article, error)
	// GetPublishedByPath returns the live row (article or redirect) for a path, nil when absent
	GetPublishedByPath(ctx context.Context, urlPath string, now time.Time) (*models.Article, error)
	// ListByPath returns every row (any status) whose path equals urlPath, case-insensitively
	ListByPath(ctx context.Context, urlPath string) ([]*models.Article, error)
	// ListByPathPrefix returns non-redirect rows whose path starts with prefix
	ListByPathPrefix(ctx context.Context, prefix string) ([]*models.Article, error)
	ListByBlogKey(ctx context.Context, blogKey string) ([]*models.Article, error)
	ListRedirectsTo(ctx context.Context, target string) ([]*models.Article, error)
	// ListLive returns the live version of every article matching the filter
	ListLive(ctx context.Context, filter models.LivePageFilter) ([]*models.Article, error)
	// ListScheduledArticleNumbers returns articles with several versions or an expired version
	ListScheduledArticleNumbers(ctx context.Context, now time.Time) ([]int, error)
	NextArticleNumber(ctx context.Context) (int, error)
}

// CatalogRepository defines the interface for the denormalized catalog
type CatalogRepository interface {
	Upsert(ctx context.Context, entry *models.CatalogEntry) error
	GetByArticleNumber(ctx context.Context, articleNumber int) (*models.CatalogEntry, error)
	UpdatePath(ctx context.Context, articleNumber int, urlPath, blogKey string) error
	Count(ctx context.Context) (int, error)
	StreamAll(ctx context.Context, callback func(*models.CatalogEntry) error) error
}

// Repositories holds all repository interfaces bound to one connection or transaction
type Repositories struct {
	Article ArticleRepository
	Catalog CatalogRepository
}

// Store is the content store of one tenant.
// WithTx runs fn in a transaction spanning articles and catalog; fn's error rolls everything back.
type Store interface {
	Repositories() *Repositories
	WithTx(ctx context.Context, fn func(repos *Repositories) error) error
}

// New creates all repositories on the given querier
func New(q Querier) *Repositories {
	return &Repositories{
		Article: NewArticleRepo(q),
		Catalog: NewCatalogRepo(q),
	}
}

// pgStore is the PostgreSQL Store
type pgStore struct {
	db    *database.DB
	repos *Repositories
}

// NewStore creates the PostgreSQL store of a tenant database
func NewStore(db *database.DB) Store {
	return &pgStore{db: db, repos: New(db)}
}

func (s *pgStore) Repositories() *Repositories {
	return s.repos
}

// WithTx begins a transaction, runs fn and commits; any error rolls back
func (s *pgStore) WithTx(ctx context.Context, fn func(repos *Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ClassifyError(err)
	}
	defer tx.Rollback()

	if err := fn(New(tx)); err != nil {
		return ClassifyError(err)
	}

	if err := tx.Commit(); err != nil {
		return ClassifyError(err)
	}
	return nil
}
