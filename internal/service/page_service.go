package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cms-article-engine/internal/cache"
	"github.com/cms-article-engine/internal/clock"
	"github.com/cms-article-engine/internal/models"
	"github.com/cms-article-engine/internal/repository"
	"github.com/rs/zerolog"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// pageService is the concrete implementation of PageService
type pageService struct {
	store repository.Store
	cache cache.PageCache
	clock clock.Clock
	log   zerolog.Logger
}

func newPageService(store repository.Store, c cache.PageCache, clk clock.Clock, log zerolog.Logger) *pageService {
	return &pageService{
		store: store,
		cache: c,
		clock: clk,
		log:   log.With().Str("service", "page").Logger(),
	}
}

// NormalizeURLPath lowercases a request path and trims its slashes; the empty path is the root page
func NormalizeURLPath(urlPath string) string {
	p := strings.ToLower(strings.Trim(strings.TrimSpace(urlPath), "/"))
	if p == "" {
		return models.RootPath
	}
	return p
}

// GetPublishedPageByURL serves the live row of a path. A ttl <= 0 bypasses the cache.
func (s *pageService) GetPublishedPageByURL(ctx context.Context, urlPath, lang string, includeLayout bool, ttl time.Duration) (*models.PublishedPage, error) {
	path := NormalizeURLPath(urlPath)
	key := cache.PageKey(path, lang, includeLayout)

	if ttl > 0 {
		page, err := s.cache.GetPage(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("Page cache read failed")
		}
		if page != nil {
			return page, nil
		}
	}

	article, err := s.store.Repositories().Article.GetPublishedByPath(ctx, path, s.clock.Now())
	if err != nil {
		return nil, repository.ClassifyError(err)
	}
	if article == nil {
		return nil, fmt.Errorf("%w: page %s not found", models.ErrNotFound, path)
	}

	page := &models.PublishedPage{Article: *article, Lang: lang}
	if !includeLayout {
		page.HeaderJavaScript = ""
		page.FooterJavaScript = ""
	}
	if article.ArticleType == models.ArticleTypeBlogPost && !article.IsRedirect() {
		if err := s.EnrichBlogNavigation(ctx, page); err != nil {
			return nil, err
		}
	}

	if ttl > 0 {
		if err := s.cache.SetPage(ctx, key, page, ttl); err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("Page cache write failed")
		}
	}
	return page, nil
}

// GetTableOfContents lists the live pages one level below prefix
func (s *pageService) GetTableOfContents(ctx context.Context, prefix string, pageNo, pageSize int, orderByPublishedDate bool) (*models.TableOfContents, error) {
	if pageNo < 1 {
		pageNo = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	articles, err := s.store.Repositories().Article.ListLive(ctx, models.LivePageFilter{
		Now:          s.clock.Now(),
		ChildrenOnly: true,
		ParentPath:   strings.ToLower(strings.Trim(prefix, "/ ")),
	})
	if err != nil {
		return nil, repository.ClassifyError(err)
	}

	if orderByPublishedDate {
		sortByPublishedDesc(articles)
	} else {
		sortByTitle(articles)
	}

	toc := &models.TableOfContents{
		PageNo:     pageNo,
		PageSize:   pageSize,
		TotalCount: len(articles),
		Items:      []models.TOCItem{},
	}
	start := (pageNo - 1) * pageSize
	if start >= len(articles) {
		return toc, nil
	}
	end := min(start+pageSize, len(articles))
	for _, a := range articles[start:end] {
		toc.Items = append(toc.Items, models.NewTOCItem(a))
	}
	return toc, nil
}

// Search returns live pages whose title or content contains every word of text
func (s *pageService) Search(ctx context.Context, text string) ([]models.TOCItem, error) {
	terms := strings.Fields(text)
	if len(terms) == 0 {
		return []models.TOCItem{}, nil
	}

	articles, err := s.store.Repositories().Article.ListLive(ctx, models.LivePageFilter{
		Now:   s.clock.Now(),
		Terms: terms,
	})
	if err != nil {
		return nil, repository.ClassifyError(err)
	}

	sortByTitle(articles)
	items := make([]models.TOCItem, 0, len(articles))
	for _, a := range articles {
		items = append(items, models.NewTOCItem(a))
	}
	return items, nil
}

// GetAdjacentBlogPosts finds the live posts of the same stream published
// immediately before and after the article
func (s *pageService) GetAdjacentBlogPosts(ctx context.Context, article *models.Article) (*models.BlogNavigation, error) {
	nav := &models.BlogNavigation{}
	if article.ArticleType != models.ArticleTypeBlogPost || article.Published == nil {
		return nav, nil
	}

	posts, err := s.store.Repositories().Article.ListLive(ctx, models.LivePageFilter{
		Now:         s.clock.Now(),
		ArticleType: models.ArticleTypeBlogPost,
		BlogKey:     article.BlogKey,
	})
	if err != nil {
		return nil, repository.ClassifyError(err)
	}

	var prev, next *models.Article
	for _, p := range posts {
		if p.ArticleNumber == article.ArticleNumber {
			continue
		}
		if publishedBefore(p, article) {
			if prev == nil || publishedBefore(prev, p) {
				prev = p
			}
		} else if next == nil || publishedBefore(p, next) {
			next = p
		}
	}

	nav.Previous = models.NewNavItem(prev)
	nav.Next = models.NewNavItem(next)
	return nav, nil
}

// EnrichBlogNavigation attaches previous/next links to a blog post page
func (s *pageService) EnrichBlogNavigation(ctx context.Context, page *models.PublishedPage) error {
	nav, err := s.GetAdjacentBlogPosts(ctx, &page.Article)
	if err != nil {
		return err
	}
	if nav.Previous != nil || nav.Next != nil {
		page.Navigation = nav
	}
	return nil
}

// publishedBefore orders posts by publish time, then article number
func publishedBefore(a, b *models.Article) bool {
	if !a.Published.Equal(*b.Published) {
		return a.Published.Before(*b.Published)
	}
	return a.ArticleNumber < b.ArticleNumber
}

func sortByTitle(articles []*models.Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		ti, tj := strings.ToLower(articles[i].Title), strings.ToLower(articles[j].Title)
		if ti != tj {
			return ti < tj
		}
		return articles[i].ArticleNumber < articles[j].ArticleNumber
	})
}

func sortByPublishedDesc(articles []*models.Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		return publishedBefore(articles[j], articles[i])
	})
}
