package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cms-article-engine/internal/models"
)

// articleColumns is the column list for SELECT on articles (single source for schema changes)
const articleColumns = `id, article_number, version_number, title, url_path, content, status_code,
		redirect_target, published, expires, article_type, blog_key, category, introduction,
		banner_image, header_javascript, footer_javascript, updated, user_id, row_version`

// liveArticles selects the live version of every article at $1
const liveArticles = `
		SELECT DISTINCT ON (article_number) ` + articleColumns + `
		FROM articles
		WHERE status_code <> 'redirect'
		  AND published IS NOT NULL AND published <= $1
		  AND (expires IS NULL OR expires > $1)
		ORDER BY article_number, version_number DESC`

// articleRepo is the concrete implementation of ArticleRepository
type articleRepo struct {
	db Querier
}

// NewArticleRepo creates a new article repository
func NewArticleRepo(db Querier) ArticleRepository {
	return &articleRepo{db: db}
}

// Create inserts a new article row
func (r *articleRepo) Create(ctx context.Context, a *models.Article) error {
	if a.RowVersion == 0 {
		a.RowVersion = 1
	}
	query := `
		INSERT INTO articles (` + articleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.ArticleNumber, a.VersionNumber, a.Title, a.UrlPath, a.Content, a.StatusCode,
		a.RedirectTarget, a.Published, a.Expires, a.ArticleType, a.BlogKey, a.Category, a.Introduction,
		a.BannerImage, a.HeaderJavaScript, a.FooterJavaScript, a.Updated, a.UserID, a.RowVersion,
	)
	if err != nil {
		return fmt.Errorf("create article: %w", err)
	}
	return nil
}

// Update writes every mutable column, guarded by the row version
func (r *articleRepo) Update(ctx context.Context, a *models.Article) error {
	query := `
		UPDATE articles SET
			title = $1, url_path = $2, content = $3, status_code = $4, redirect_target = $5,
			published = $6, expires = $7, article_type = $8, blog_key = $9, category = $10,
			introduction = $11, banner_image = $12, header_javascript = $13, footer_javascript = $14,
			updated = $15, user_id = $16, row_version = row_version + 1
		WHERE id = $17 AND row_version = $18
	`
	result, err := r.db.ExecContext(ctx, query,
		a.Title, a.UrlPath, a.Content, a.StatusCode, a.RedirectTarget,
		a.Published, a.Expires, a.ArticleType, a.BlogKey, a.Category,
		a.Introduction, a.BannerImage, a.HeaderJavaScript, a.FooterJavaScript,
		a.Updated, a.UserID, a.ID, a.RowVersion,
	)
	if err != nil {
		return fmt.Errorf("update article: %w", err)
	}
	if err := expectOneRow(result, a.ID); err != nil {
		return err
	}
	a.RowVersion++
	return nil
}

// Delete removes a row, guarded by the row version
func (r *articleRepo) Delete(ctx context.Context, a *models.Article) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM articles WHERE id = $1 AND row_version = $2`, a.ID, a.RowVersion)
	if err != nil {
		return fmt.Errorf("delete article: %w", err)
	}
	return expectOneRow(result, a.ID)
}

// GetLatest retrieves the highest version of an article
func (r *articleRepo) GetLatest(ctx context.Context, articleNumber int) (*models.Article, error) {
	query := `
		SELECT ` + articleColumns + `
		FROM articles
		WHERE article_number = $1 AND status_code <> 'redirect'
		ORDER BY version_number DESC
		LIMIT 1
	`
	article, err := scanArticle(r.db.QueryRowContext(ctx, query, articleNumber))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest article: %w", err)
	}
	return article, nil
}

// ListVersions retrieves all versions of an article, newest first
func (r *articleRepo) ListVersions(ctx context.Context, articleNumber int) ([]*models.Article, error) {
	query := `
		SELECT ` + articleColumns + `
		FROM articles
		WHERE article_number = $1 AND status_code <> 'redirect'
		ORDER BY version_number DESC
	`
	return r.queryArticles(ctx, "list versions", query, articleNumber)
}

// GetPublishedByPath retrieves the row served for a path at now
func (r *articleRepo) GetPublishedByPath(ctx context.Context, urlPath string, now time.Time) (*models.Article, error) {
	query := `
		SELECT ` + articleColumns + `
		FROM articles
		WHERE lower(url_path) = lower($1)
		  AND status_code IN ('active', 'redirect')
		  AND published IS NOT NULL AND published <= $2
		  AND (expires IS NULL OR expires > $2)
		ORDER BY (status_code = 'redirect'), version_number DESC
		LIMIT 1
	`
	article, err := scanArticle(r.db.QueryRowContext(ctx, query, urlPath, now))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get published article: %w", err)
	}
	return article, nil
}

// ListByPath retrieves every row using a path
func (r *articleRepo) ListByPath(ctx context.Context, urlPath string) ([]*models.Article, error) {
	query := `
		SELECT ` + articleColumns + `
		FROM articles
		WHERE lower(url_path) = lower($1)
		ORDER BY article_number, version_number DESC
	`
	return r.queryArticles(ctx, "list by path", query, urlPath)
}

// ListByPathPrefix retrieves non-redirect rows below a path prefix
func (r *articleRepo) ListByPathPrefix(ctx context.Context, prefix string) ([]*models.Article, error) {
	query := `
		SELECT ` + articleColumns + `
		FROM articles
		WHERE lower(url_path) LIKE $1 AND status_code <> 'redirect'
		ORDER BY article_number, version_number DESC
	`
	return r.queryArticles(ctx, "list by prefix", query, escapeLike(strings.ToLower(prefix))+"%")
}

// ListByBlogKey retrieves non-redirect rows of a blog stream
func (r *articleRepo) ListByBlogKey(ctx context.Context, blogKey string) ([]*models.Article, error) {
	query := `
		SELECT ` + articleColumns + `
		FROM articles
		WHERE lower(blog_key) = lower($1) AND status_code <> 'redirect'
		ORDER BY article_number, version_number DESC
	`
	return r.queryArticles(ctx, "list by blog key", query, blogKey)
}

// ListRedirectsTo retrieves redirects pointing at target
func (r *articleRepo) ListRedirectsTo(ctx context.Context, target string) ([]*models.Article, error) {
	query := `
		SELECT ` + articleColumns + `
		FROM articles
		WHERE status_code = 'redirect' AND lower(redirect_target) = lower($1)
		ORDER BY url_path
	`
	return r.queryArticles(ctx, "list redirects", query, target)
}

// ListLive retrieves live articles narrowed by filter
func (r *articleRepo) ListLive(ctx context.Context, filter models.LivePageFilter) ([]*models.Article, error) {
	args := []any{filter.Now}
	var where []string
	where = append(where, "status_code = 'active'")

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.ChildrenOnly {
		parent := strings.ToLower(strings.Trim(filter.ParentPath, "/"))
		if parent == "" || parent == models.RootPath {
			where = append(where, "url_path NOT LIKE '%/%'", "lower(url_path) <> 'root'")
		} else {
			p := escapeLike(parent)
			where = append(where,
				"lower(url_path) LIKE "+arg(p+"/%"),
				"lower(url_path) NOT LIKE "+arg(p+"/%/%"),
			)
		}
	}
	for _, term := range filter.Terms {
		pattern := arg("%" + escapeLike(strings.ToLower(term)) + "%")
		where = append(where, "(lower(title) LIKE "+pattern+" OR lower(content) LIKE "+pattern+")")
	}
	if filter.ArticleType != "" {
		where = append(where, "article_type = "+arg(string(filter.ArticleType)))
	}
	if filter.BlogKey != "" {
		where = append(where, "lower(blog_key) = lower("+arg(filter.BlogKey)+")")
	}

	query := `SELECT ` + articleColumns + ` FROM (` + liveArticles + `) live
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY article_number`

	return r.queryArticles(ctx, "list live", query, args...)
}

// ListScheduledArticleNumbers finds articles the scheduler has to reconcile
func (r *articleRepo) ListScheduledArticleNumbers(ctx context.Context, now time.Time) ([]int, error) {
	query := `
		SELECT article_number
		FROM articles
		WHERE status_code <> 'redirect'
		GROUP BY article_number
		HAVING COUNT(*) > 1 OR BOOL_OR(expires IS NOT NULL AND expires <= $1)
		ORDER BY article_number
	`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list scheduled articles: %w", err)
	}
	defer rows.Close()

	var numbers []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan article number: %w", err)
		}
		numbers = append(numbers, n)
	}
	return numbers, rows.Err()
}

// NextArticleNumber returns the next free article number
func (r *articleRepo) NextArticleNumber(ctx context.Context) (int, error) {
	var next int
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(article_number), 0) + 1 FROM articles`).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next article number: %w", err)
	}
	return next, nil
}

func (r *articleRepo) queryArticles(ctx context.Context, op, query string, args ...any) ([]*models.Article, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var articles []*models.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		articles = append(articles, article)
	}
	return articles, rows.Err()
}

// rowScanner is implemented by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(s rowScanner) (*models.Article, error) {
	var a models.Article
	var published, expires sql.NullTime

	err := s.Scan(
		&a.ID, &a.ArticleNumber, &a.VersionNumber, &a.Title, &a.UrlPath, &a.Content, &a.StatusCode,
		&a.RedirectTarget, &published, &expires, &a.ArticleType, &a.BlogKey, &a.Category, &a.Introduction,
		&a.BannerImage, &a.HeaderJavaScript, &a.FooterJavaScript, &a.Updated, &a.UserID, &a.RowVersion,
	)
	if err != nil {
		return nil, err
	}

	if published.Valid {
		a.Published = &published.Time
	}
	if expires.Valid {
		a.Expires = &expires.Time
	}
	return &a, nil
}

// expectOneRow maps a zero-row write to a concurrency conflict
func expectOneRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: article row %s", models.ErrConcurrencyConflict, id)
	}
	return nil
}

// escapeLike escapes LIKE wildcards so user input matches literally
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
