package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cms-article-engine/internal/cache"
	"github.com/cms-article-engine/internal/cdn"
	"github.com/cms-article-engine/internal/clock"
	"github.com/cms-article-engine/internal/config"
	"github.com/cms-article-engine/internal/metrics"
	"github.com/cms-article-engine/internal/models"
	"github.com/cms-article-engine/internal/repository"
	"github.com/cms-article-engine/internal/slug"
	"github.com/cms-article-engine/internal/validation"
	"github.com/rs/zerolog"
)

// articleService is the concrete implementation of ArticleService
type articleService struct {
	tenant    string
	store     repository.Store
	notifier  cdn.Notifier
	cache     cache.PageCache
	clock     clock.Clock
	markers   MarkerProcessor
	metrics   *metrics.Metrics
	validator *validation.Validator
	titles    *titleChangeService
	redirects *redirectEngine
	cfg       config.SaveConfig
	newID     func() string
	log       zerolog.Logger
}

// SaveArticle validates the command and runs the save transaction, retrying
// when another save changed the same rows in the meantime
func (s *articleService) SaveArticle(ctx context.Context, cmd *models.SaveArticleCommand) (*models.CommandResult, error) {
	if errs := s.validator.ValidateSaveArticle(cmd); len(errs) > 0 {
		s.metrics.SaveCompleted(s.tenant, metrics.OutcomeInvalid)
		return models.Invalid(validation.ToMap(errs)), nil
	}

	var saved *models.Article
	var moved []movedPath
	err := s.retry(ctx, "save", func() error {
		var err error
		saved, moved, err = s.saveOnce(ctx, cmd)
		return err
	})

	if err != nil {
		s.metrics.SaveCompleted(s.tenant, outcome(err))
		s.log.Error().Err(err).Int("article_number", cmd.ArticleNumber).Msg("Save failed")
		return models.Failed(err), err
	}

	s.metrics.SaveCompleted(s.tenant, metrics.OutcomeSuccess)
	s.log.Info().
		Int("article_number", saved.ArticleNumber).
		Int("version", saved.VersionNumber).
		Str("url_path", saved.UrlPath).
		Str("user_id", saved.UserID).
		Msg("Article saved")

	return s.success(ctx, saved, moved), nil
}

// retry runs attempt until it succeeds, fails with something other than a
// concurrency conflict, or MaxAttempts is reached
func (s *articleService) retry(ctx context.Context, op string, attempt func() error) error {
	var err error
	for n := 1; n <= s.cfg.MaxAttempts; n++ {
		err = attempt()
		if err == nil || !errors.Is(err, models.ErrConcurrencyConflict) || ctx.Err() != nil {
			return err
		}
		if n < s.cfg.MaxAttempts {
			s.metrics.SaveRetried(s.tenant)
			s.log.Warn().
				Err(err).
				Str("op", op).
				Int("attempt", n).
				Msg("Conflicted, reloading and retrying")
		}
	}
	return err
}

// saveOnce is one attempt of the save transaction
func (s *articleService) saveOnce(ctx context.Context, cmd *models.SaveArticleCommand) (*models.Article, []movedPath, error) {
	txCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	var saved *models.Article
	var moved []movedPath
	err := s.store.WithTx(txCtx, func(repos *repository.Repositories) error {
		article, err := repos.Article.GetLatest(txCtx, cmd.ArticleNumber)
		if err != nil {
			return err
		}
		if article == nil {
			return fmt.Errorf("%w: article %d not found", models.ErrNotFound, cmd.ArticleNumber)
		}

		now := s.clock.Now()
		before := article.Clone()

		newPath, err := s.resolvePath(txCtx, repos, article, cmd)
		if err != nil {
			return err
		}

		s.apply(article, cmd, now)
		pathChanged := newPath != before.UrlPath
		if pathChanged {
			article.UrlPath = newPath
			article.BlogKey = movedBlogKey(before, before.UrlPath, newPath)
		}

		if err := repos.Article.Update(txCtx, article); err != nil {
			return err
		}

		if pathChanged {
			wasPublished, err := anyPublished(txCtx, repos, before, now)
			if err != nil {
				return err
			}
			change := pathChange{
				Article:      article,
				OldPath:      before.UrlPath,
				OldBlogKey:   before.BlogKey,
				OldType:      before.ArticleType,
				WasPublished: wasPublished,
			}
			result, err := s.titles.Cascade(txCtx, repos, change, now)
			if err != nil {
				return err
			}
			moved = result.Moved
		}

		if err := repos.Catalog.Upsert(txCtx, models.NewCatalogEntry(article)); err != nil {
			return err
		}

		saved = article
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return saved, moved, nil
}

// resolvePath computes where the article lives after the save. The root page
// never moves; other pages move when the title changes (not just its case) or
// when the command overrides the path.
func (s *articleService) resolvePath(ctx context.Context, repos *repository.Repositories, article *models.Article, cmd *models.SaveArticleCommand) (string, error) {
	if article.IsRoot() {
		return models.RootPath, nil
	}

	var newPath string
	switch {
	case strings.TrimSpace(cmd.UrlPath) != "":
		newPath = slug.NormalizePath(cmd.UrlPath)
		if newPath == models.RootPath {
			return "", fmt.Errorf("%w: url path root is reserved", models.ErrInvalidOperation)
		}
	case article.Title != cmd.Title && !strings.EqualFold(article.Title, cmd.Title):
		segment := slug.Normalize(cmd.Title)
		if segment == "" {
			return "", fmt.Errorf("%w: title %q has no url-safe characters", models.ErrInvalidOperation, cmd.Title)
		}
		newPath = joinPath(parentPath(article.UrlPath), segment)
	default:
		return article.UrlPath, nil
	}

	if newPath == article.UrlPath {
		return newPath, nil
	}
	if _, under := replacePrefix(newPath, article.UrlPath+"/", ""); under {
		return "", fmt.Errorf("%w: cannot move %s below itself", models.ErrInvalidOperation, article.UrlPath)
	}

	rows, err := repos.Article.ListByPath(ctx, newPath)
	if err != nil {
		return "", err
	}
	for _, r := range rows {
		if !r.IsRedirect() && r.ArticleNumber != article.ArticleNumber {
			return "", fmt.Errorf("%w: url path %s is already in use", models.ErrInvalidOperation, newPath)
		}
	}
	return newPath, nil
}

// apply copies the command's fields onto the row
func (s *articleService) apply(article *models.Article, cmd *models.SaveArticleCommand, now time.Time) {
	article.Title = cmd.Title
	article.Content = s.markers.EnsureEditableMarkers(cmd.Content)
	article.HeaderJavaScript = cmd.HeadJavaScript
	article.FooterJavaScript = cmd.FooterJavaScript
	article.BannerImage = cmd.BannerImage
	article.Category = cmd.Category
	article.Introduction = cmd.Introduction
	if cmd.ArticleType != "" {
		article.ArticleType = cmd.ArticleType
	}
	article.Published = cmd.Published
	article.Expires = cmd.Expires
	article.Updated = now
	article.UserID = cmd.UserID
}

// CreateArticle writes version 1 of a new article. The first article of a
// tenant becomes the root page.
func (s *articleService) CreateArticle(ctx context.Context, cmd *models.CreateArticleCommand) (*models.CommandResult, error) {
	if errs := s.validator.ValidateCreateArticle(cmd); len(errs) > 0 {
		return models.Invalid(validation.ToMap(errs)), nil
	}

	// concurrent creates race for the same article number; the loser retries
	var created *models.Article
	err := s.retry(ctx, "create", func() error {
		var err error
		created, err = s.createOnce(ctx, cmd)
		return err
	})
	if err != nil {
		s.log.Error().Err(err).Str("title", cmd.Title).Msg("Create failed")
		return models.Failed(err), err
	}

	s.log.Info().
		Int("article_number", created.ArticleNumber).
		Str("url_path", created.UrlPath).
		Msg("Article created")

	return s.success(ctx, created, nil), nil
}

// createOnce is one attempt of the create transaction
func (s *articleService) createOnce(ctx context.Context, cmd *models.CreateArticleCommand) (*models.Article, error) {
	txCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	var created *models.Article
	err := s.store.WithTx(txCtx, func(repos *repository.Repositories) error {
		number, err := repos.Article.NextArticleNumber(txCtx)
		if err != nil {
			return err
		}

		articleType := cmd.ArticleType
		if articleType == "" {
			articleType = models.ArticleTypeGeneral
		}

		path := models.RootPath
		if number > 1 {
			segment := slug.Normalize(cmd.Title)
			if segment == "" {
				return fmt.Errorf("%w: title %q has no url-safe characters", models.ErrInvalidOperation, cmd.Title)
			}
			parent := cmd.ParentPath
			if articleType == models.ArticleTypeBlogPost {
				parent = cmd.BlogKey
			}
			path = joinPath(normalizeParent(parent), segment)

			rows, err := repos.Article.ListByPath(txCtx, path)
			if err != nil {
				return err
			}
			for _, r := range rows {
				if !r.IsRedirect() {
					return fmt.Errorf("%w: url path %s is already in use", models.ErrInvalidOperation, path)
				}
			}
			if err := s.redirects.Release(txCtx, repos, path); err != nil {
				return err
			}
		}

		blogKey := strings.TrimSpace(cmd.BlogKey)
		if articleType == models.ArticleTypeBlogStream && blogKey == "" {
			blogKey = path
		} else if blogKey != "" {
			blogKey = slug.NormalizePath(blogKey)
		}

		now := s.clock.Now()
		article := &models.Article{
			ID:            s.newID(),
			ArticleNumber: number,
			VersionNumber: 1,
			Title:         cmd.Title,
			UrlPath:       path,
			Content:       s.markers.EnsureEditableMarkers(cmd.Content),
			StatusCode:    models.StatusActive,
			Published:     cmd.Published,
			ArticleType:   articleType,
			BlogKey:       blogKey,
			Updated:       now,
			UserID:        cmd.UserID,
		}
		if err := repos.Article.Create(txCtx, article); err != nil {
			return err
		}
		if err := repos.Catalog.Upsert(txCtx, models.NewCatalogEntry(article)); err != nil {
			return err
		}
		created = article
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateNewVersion copies the latest version into an unpublished draft
func (s *articleService) CreateNewVersion(ctx context.Context, articleNumber int, userID string) (*models.Article, error) {
	txCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	var draft *models.Article
	err := s.store.WithTx(txCtx, func(repos *repository.Repositories) error {
		latest, err := repos.Article.GetLatest(txCtx, articleNumber)
		if err != nil {
			return err
		}
		if latest == nil {
			return fmt.Errorf("%w: article %d not found", models.ErrNotFound, articleNumber)
		}

		draft = latest.Clone()
		draft.ID = s.newID()
		draft.VersionNumber = latest.VersionNumber + 1
		draft.Published = nil
		draft.Expires = nil
		draft.Updated = s.clock.Now()
		draft.UserID = userID
		draft.RowVersion = 0
		return repos.Article.Create(txCtx, draft)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int("article_number", articleNumber).
		Int("version", draft.VersionNumber).
		Msg("Draft version created")
	return draft, nil
}

// ListVersions returns all versions of an article, newest first
func (s *articleService) ListVersions(ctx context.Context, articleNumber int) ([]*models.Article, error) {
	versions, err := s.store.Repositories().Article.ListVersions(ctx, articleNumber)
	if err != nil {
		return nil, repository.ClassifyError(err)
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: article %d not found", models.ErrNotFound, articleNumber)
	}
	return versions, nil
}

// success builds the result. Every touched path is dropped from the page
// cache. The CDN hears about the article when it is public, and about the old
// and new path of every moved article that was live before the move.
func (s *articleService) success(ctx context.Context, article *models.Article, moved []movedPath) *models.CommandResult {
	s.invalidate(ctx, article.UrlPath)
	for _, m := range moved {
		s.invalidate(ctx, m.OldPath)
		s.invalidate(ctx, m.NewPath)
	}

	results := []models.PurgeResult{}
	purged := make(map[string]bool)
	purge := func(articleNumber int, path string) {
		if purged[path] {
			return
		}
		purged[path] = true
		results = append(results, s.notifier.Notify(ctx, articleNumber, path)...)
	}

	if article.IsPublishedAt(s.clock.Now()) {
		purge(article.ArticleNumber, article.UrlPath)
	}
	for _, m := range moved {
		if !m.Published {
			continue
		}
		purge(m.ArticleNumber, m.OldPath)
		purge(m.ArticleNumber, m.NewPath)
	}

	return &models.CommandResult{
		IsSuccess: true,
		Data:      &models.SaveArticleData{Model: article, CdnResults: results},
	}
}

func (s *articleService) invalidate(ctx context.Context, path string) {
	if err := s.cache.InvalidatePath(ctx, path); err != nil {
		s.log.Warn().Err(err).Str("path", path).Msg("Page cache invalidation failed")
	}
}

func (s *articleService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.Timeout)
}

// anyPublished reports whether the article was live before the save; expired
// versions no longer answer their path, so they earn no redirect
func anyPublished(ctx context.Context, repos *repository.Repositories, before *models.Article, now time.Time) (bool, error) {
	if before.IsLiveAt(now) {
		return true, nil
	}
	versions, err := repos.Article.ListVersions(ctx, before.ArticleNumber)
	if err != nil {
		return false, err
	}
	for _, v := range versions {
		if v.ID != before.ID && v.IsLiveAt(now) {
			return true, nil
		}
	}
	return false, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return metrics.OutcomeNotFound
	case models.IsConflict(err):
		return metrics.OutcomeConflict
	default:
		return metrics.OutcomeError
	}
}

// parentPath returns the path above a page; top-level pages have none
func parentPath(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[:i]
	}
	return ""
}

func normalizeParent(path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	p := slug.NormalizePath(path)
	if p == models.RootPath {
		return ""
	}
	return p
}

func joinPath(parent, segment string) string {
	if parent == "" {
		return segment
	}
	return parent + "/" + segment
}
