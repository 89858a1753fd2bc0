package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cms-article-engine/internal/models"
)

const catalogColumns = `article_number, version_number, title, url_path, status_code, article_type,
		blog_key, category, introduction, banner_image, published, updated, user_id`

// catalogRepo is the concrete implementation of CatalogRepository
type catalogRepo struct {
	db Querier
}

// NewCatalogRepo creates a new catalog repository
func NewCatalogRepo(db Querier) CatalogRepository {
	return &catalogRepo{db: db}
}

// Upsert inserts or replaces the catalog row of an article
func (r *catalogRepo) Upsert(ctx context.Context, e *models.CatalogEntry) error {
	query := `
		INSERT INTO article_catalog (` + catalogColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (article_number) DO UPDATE SET
			version_number = EXCLUDED.version_number,
			title = EXCLUDED.title,
			url_path = EXCLUDED.url_path,
			status_code = EXCLUDED.status_code,
			article_type = EXCLUDED.article_type,
			blog_key = EXCLUDED.blog_key,
			category = EXCLUDED.category,
			introduction = EXCLUDED.introduction,
			banner_image = EXCLUDED.banner_image,
			published = EXCLUDED.published,
			updated = EXCLUDED.updated,
			user_id = EXCLUDED.user_id
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ArticleNumber, e.VersionNumber, e.Title, e.UrlPath, e.StatusCode, e.ArticleType,
		e.BlogKey, e.Category, e.Introduction, e.BannerImage, e.Published, e.Updated, e.UserID,
	)
	if err != nil {
		return fmt.Errorf("upsert catalog entry: %w", err)
	}
	return nil
}

// GetByArticleNumber retrieves a catalog row, nil when absent
func (r *catalogRepo) GetByArticleNumber(ctx context.Context, articleNumber int) (*models.CatalogEntry, error) {
	query := `SELECT ` + catalogColumns + ` FROM article_catalog WHERE article_number = $1`

	entry, err := scanCatalogEntry(r.db.QueryRowContext(ctx, query, articleNumber))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get catalog entry: %w", err)
	}
	return entry, nil
}

// UpdatePath moves a catalog row to a new path; a missing row is not an error
func (r *catalogRepo) UpdatePath(ctx context.Context, articleNumber int, urlPath, blogKey string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE article_catalog SET url_path = $1, blog_key = $2 WHERE article_number = $3`,
		urlPath, blogKey, articleNumber,
	)
	if err != nil {
		return fmt.Errorf("update catalog path: %w", err)
	}
	return nil
}

// Count returns the number of catalog rows
func (r *catalogRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM article_catalog`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count catalog: %w", err)
	}
	return count, nil
}

// StreamAll streams catalog rows ordered by article number
func (r *catalogRepo) StreamAll(ctx context.Context, callback func(*models.CatalogEntry) error) error {
	query := `SELECT ` + catalogColumns + ` FROM article_catalog ORDER BY article_number`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("stream catalog: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		entry, err := scanCatalogEntry(rows)
		if err != nil {
			return fmt.Errorf("scan catalog entry: %w", err)
		}
		if err := callback(entry); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanCatalogEntry(s rowScanner) (*models.CatalogEntry, error) {
	var e models.CatalogEntry
	var published sql.NullTime

	err := s.Scan(
		&e.ArticleNumber, &e.VersionNumber, &e.Title, &e.UrlPath, &e.StatusCode, &e.ArticleType,
		&e.BlogKey, &e.Category, &e.Introduction, &e.BannerImage, &published, &e.Updated, &e.UserID,
	)
	if err != nil {
		return nil, err
	}
	if published.Valid {
		e.Published = &published.Time
	}
	return &e, nil
}
