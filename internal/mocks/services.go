package mocks

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cms-article-engine/internal/models"
	"github.com/cms-article-engine/internal/service"
)

// MockArticleService is a mock implementation of ArticleService
type MockArticleService struct {
	SaveFunc       func(ctx context.Context, cmd *models.SaveArticleCommand) (*models.CommandResult, error)
	CreateFunc     func(ctx context.Context, cmd *models.CreateArticleCommand) (*models.CommandResult, error)
	NewVersionFunc func(ctx context.Context, articleNumber int, userID string) (*models.Article, error)
	Versions       map[int][]*models.Article
	Saved          []*models.SaveArticleCommand
	Created        []*models.CreateArticleCommand
}

// Verify interface compliance
var _ service.ArticleService = (*MockArticleService)(nil)

func NewMockArticleService() *MockArticleService {
	return &MockArticleService{Versions: make(map[int][]*models.Article)}
}

func (m *MockArticleService) SaveArticle(ctx context.Context, cmd *models.SaveArticleCommand) (*models.CommandResult, error) {
	m.Saved = append(m.Saved, cmd)
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, cmd)
	}
	article := &models.Article{ArticleNumber: cmd.ArticleNumber, Title: cmd.Title, Content: cmd.Content}
	return &models.CommandResult{
		IsSuccess: true,
		Data:      &models.SaveArticleData{Model: article, CdnResults: []models.PurgeResult{}},
	}, nil
}

func (m *MockArticleService) CreateArticle(ctx context.Context, cmd *models.CreateArticleCommand) (*models.CommandResult, error) {
	m.Created = append(m.Created, cmd)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, cmd)
	}
	article := &models.Article{ArticleNumber: 1, VersionNumber: 1, Title: cmd.Title}
	return &models.CommandResult{
		IsSuccess: true,
		Data:      &models.SaveArticleData{Model: article, CdnResults: []models.PurgeResult{}},
	}, nil
}

func (m *MockArticleService) CreateNewVersion(ctx context.Context, articleNumber int, userID string) (*models.Article, error) {
	if m.NewVersionFunc != nil {
		return m.NewVersionFunc(ctx, articleNumber, userID)
	}
	versions := m.Versions[articleNumber]
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: article %d not found", models.ErrNotFound, articleNumber)
	}
	next := versions[0].Clone()
	next.VersionNumber++
	next.UserID = userID
	m.Versions[articleNumber] = append([]*models.Article{next}, versions...)
	return next, nil
}

func (m *MockArticleService) ListVersions(ctx context.Context, articleNumber int) ([]*models.Article, error) {
	versions := m.Versions[articleNumber]
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: article %d not found", models.ErrNotFound, articleNumber)
	}
	return versions, nil
}

// MockPageService is a mock implementation of PageService
type MockPageService struct {
	Pages    map[string]*models.PublishedPage
	TOC      *models.TableOfContents
	Results  []models.TOCItem
	Err      error
	LastTTL  time.Duration
	LastTOC  TOCRequest
	LastText string
}

// TOCRequest records the arguments of the last GetTableOfContents call
type TOCRequest struct {
	Prefix               string
	PageNo               int
	PageSize             int
	OrderByPublishedDate bool
}

// Verify interface compliance
var _ service.PageService = (*MockPageService)(nil)

func NewMockPageService() *MockPageService {
	return &MockPageService{Pages: make(map[string]*models.PublishedPage)}
}

func (m *MockPageService) GetPublishedPageByURL(ctx context.Context, urlPath, lang string, includeLayout bool, ttl time.Duration) (*models.PublishedPage, error) {
	m.LastTTL = ttl
	if m.Err != nil {
		return nil, m.Err
	}
	path := service.NormalizeURLPath(urlPath)
	page, ok := m.Pages[path]
	if !ok {
		return nil, fmt.Errorf("%w: page %s not found", models.ErrNotFound, path)
	}
	return page, nil
}

func (m *MockPageService) GetTableOfContents(ctx context.Context, prefix string, pageNo, pageSize int, orderByPublishedDate bool) (*models.TableOfContents, error) {
	m.LastTOC = TOCRequest{Prefix: prefix, PageNo: pageNo, PageSize: pageSize, OrderByPublishedDate: orderByPublishedDate}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.TOC != nil {
		return m.TOC, nil
	}
	return &models.TableOfContents{PageNo: pageNo, PageSize: pageSize, Items: []models.TOCItem{}}, nil
}

func (m *MockPageService) Search(ctx context.Context, text string) ([]models.TOCItem, error) {
	m.LastText = text
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Results, nil
}

func (m *MockPageService) GetAdjacentBlogPosts(ctx context.Context, article *models.Article) (*models.BlogNavigation, error) {
	return &models.BlogNavigation{}, nil
}

func (m *MockPageService) EnrichBlogNavigation(ctx context.Context, page *models.PublishedPage) error {
	return nil
}

// MockCatalogService is a mock implementation of CatalogService
type MockCatalogService struct {
	StreamFunc func(ctx context.Context, w http.ResponseWriter, format string) error
	Count      int
	Formats    []string
}

// Verify interface compliance
var _ service.CatalogService = (*MockCatalogService)(nil)

func NewMockCatalogService() *MockCatalogService {
	return &MockCatalogService{}
}

func (m *MockCatalogService) StreamCatalog(ctx context.Context, w http.ResponseWriter, format string) error {
	m.Formats = append(m.Formats, format)
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, w, format)
	}
	return nil
}

func (m *MockCatalogService) GetCount(ctx context.Context) (int, error) {
	return m.Count, nil
}
