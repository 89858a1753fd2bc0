package mocks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cms-article-engine/internal/models"
	"github.com/cms-article-engine/internal/repository"
)

// MemoryStore is an in-memory repository.Store.
// Transactions work on a snapshot and validate row versions at commit, so
// concurrent saves conflict the way they do against PostgreSQL.
type MemoryStore struct {
	mu       sync.Mutex
	articles map[string]*models.Article
	catalog  map[int]*models.CatalogEntry

	// FailCommit, when set, is returned instead of committing
	FailCommit error
	// BeforeCommit runs after fn succeeded, before the write set is applied
	BeforeCommit func()
	// OnArticleUpdate can fail individual row updates inside transactions
	OnArticleUpdate func(article *models.Article) error

	Commits   int
	Rollbacks int
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		articles: make(map[string]*models.Article),
		catalog:  make(map[int]*models.CatalogEntry),
	}
}

// Put inserts or replaces an article row outside any transaction
func (s *MemoryStore) Put(article *models.Article) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := article.Clone()
	if c.RowVersion == 0 {
		c.RowVersion = 1
	}
	s.articles[c.ID] = c
}

// PutCatalog inserts or replaces a catalog row outside any transaction
func (s *MemoryStore) PutCatalog(entry *models.CatalogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *entry
	s.catalog[c.ArticleNumber] = &c
}

// Article returns a copy of a row by ID
func (s *MemoryStore) Article(id string) *models.Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.articles[id]; ok {
		return a.Clone()
	}
	return nil
}

// Versions returns copies of all versions of an article, newest first
func (s *MemoryStore) Versions(articleNumber int) []*models.Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	return collect(s.articles, func(a *models.Article) bool {
		return !a.IsRedirect() && a.ArticleNumber == articleNumber
	})
}

// Redirects returns copies of all redirect rows ordered by source path
func (s *MemoryStore) Redirects() []*models.Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	return collect(s.articles, (*models.Article).IsRedirect)
}

// Rows returns copies of every article row
func (s *MemoryStore) Rows() []*models.Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	return collect(s.articles, func(*models.Article) bool { return true })
}

// CatalogEntry returns a copy of the catalog row of an article
func (s *MemoryStore) CatalogEntry(articleNumber int) *models.CatalogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.catalog[articleNumber]; ok {
		c := *e
		return &c
	}
	return nil
}

// Repositories returns repositories that write through immediately
func (s *MemoryStore) Repositories() *repository.Repositories {
	st := &memState{store: s, live: true}
	return &repository.Repositories{
		Article: &memArticleRepo{st: st},
		Catalog: &memCatalogRepo{st: st},
	}
}

// WithTx runs fn against a snapshot and applies its writes atomically
func (s *MemoryStore) WithTx(ctx context.Context, fn func(repos *repository.Repositories) error) error {
	st := s.begin()
	repos := &repository.Repositories{
		Article: &memArticleRepo{st: st},
		Catalog: &memCatalogRepo{st: st},
	}

	if err := fn(repos); err != nil {
		s.rollback()
		return repository.ClassifyError(err)
	}

	if s.BeforeCommit != nil {
		s.BeforeCommit()
	}
	if err := ctx.Err(); err != nil {
		s.rollback()
		return repository.ClassifyError(err)
	}
	if s.FailCommit != nil {
		s.rollback()
		return s.FailCommit
	}
	return s.commit(st)
}

func (s *MemoryStore) rollback() {
	s.mu.Lock()
	s.Rollbacks++
	s.mu.Unlock()
}

func (s *MemoryStore) begin() *memState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &memState{
		store:        s,
		articles:     make(map[string]*models.Article, len(s.articles)),
		catalog:      make(map[int]*models.CatalogEntry, len(s.catalog)),
		base:         make(map[string]int64, len(s.articles)),
		dirty:        make(map[string]bool),
		created:      make(map[string]bool),
		deleted:      make(map[string]bool),
		dirtyCatalog: make(map[int]bool),
	}
	for id, a := range s.articles {
		st.articles[id] = a.Clone()
		st.base[id] = a.RowVersion
	}
	for n, e := range s.catalog {
		c := *e
		st.catalog[n] = &c
	}
	return st
}

func (s *MemoryStore) commit(st *memState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range st.dirty {
		if st.created[id] {
			continue
		}
		live, ok := s.articles[id]
		if !ok || live.RowVersion != st.base[id] {
			s.Rollbacks++
			return fmt.Errorf("%w: article row %s", models.ErrConcurrencyConflict, id)
		}
	}
	for id := range st.deleted {
		if st.created[id] {
			continue
		}
		if live, ok := s.articles[id]; ok && live.RowVersion != st.base[id] {
			s.Rollbacks++
			return fmt.Errorf("%w: article row %s", models.ErrConcurrencyConflict, id)
		}
	}

	articles := make(map[string]*models.Article, len(s.articles))
	for id, a := range s.articles {
		articles[id] = a
	}
	for id := range st.dirty {
		if a, ok := st.articles[id]; ok {
			articles[id] = a.Clone()
		}
	}
	for id := range st.deleted {
		delete(articles, id)
	}

	catalog := make(map[int]*models.CatalogEntry, len(s.catalog))
	for n, e := range s.catalog {
		catalog[n] = e
	}
	for n := range st.dirtyCatalog {
		if e, ok := st.catalog[n]; ok {
			c := *e
			catalog[n] = &c
		}
	}

	if err := checkUnique(articles, catalog); err != nil {
		s.Rollbacks++
		return err
	}

	s.articles = articles
	s.catalog = catalog
	s.Commits++
	return nil
}

// checkUnique enforces the unique indexes of the schema
func checkUnique(articles map[string]*models.Article, catalog map[int]*models.CatalogEntry) error {
	versions := make(map[[2]int]bool)
	sources := make(map[string]bool)
	for _, a := range articles {
		if a.IsRedirect() {
			key := strings.ToLower(a.UrlPath)
			if sources[key] {
				return fmt.Errorf("%w: redirect from %s already in use", models.ErrInvalidOperation, a.UrlPath)
			}
			sources[key] = true
			continue
		}
		key := [2]int{a.ArticleNumber, a.VersionNumber}
		if versions[key] {
			return fmt.Errorf("%w: version %d of article %d already exists", models.ErrConcurrencyConflict, a.VersionNumber, a.ArticleNumber)
		}
		versions[key] = true
	}

	paths := make(map[string]int)
	for n, e := range catalog {
		key := strings.ToLower(e.UrlPath)
		if other, ok := paths[key]; ok && other != n {
			return fmt.Errorf("%w: url path %s already in use", models.ErrInvalidOperation, e.UrlPath)
		}
		paths[key] = n
	}
	return nil
}

// memState is either the live store or one transaction's snapshot
type memState struct {
	store *MemoryStore
	live  bool

	articles     map[string]*models.Article
	catalog      map[int]*models.CatalogEntry
	base         map[string]int64
	dirty        map[string]bool
	created      map[string]bool
	deleted      map[string]bool
	dirtyCatalog map[int]bool
}

// do runs f on the live maps under the store lock, or on the snapshot
func (st *memState) do(f func(articles map[string]*models.Article, catalog map[int]*models.CatalogEntry) error) error {
	if st.live {
		st.store.mu.Lock()
		defer st.store.mu.Unlock()
		return f(st.store.articles, st.store.catalog)
	}
	return f(st.articles, st.catalog)
}

func (st *memState) markDirty(id string) {
	if !st.live {
		st.dirty[id] = true
	}
}

type memArticleRepo struct {
	st *memState
}

func (r *memArticleRepo) Create(ctx context.Context, article *models.Article) error {
	if article.RowVersion == 0 {
		article.RowVersion = 1
	}
	return r.st.do(func(articles map[string]*models.Article, _ map[int]*models.CatalogEntry) error {
		if _, exists := articles[article.ID]; exists {
			return fmt.Errorf("create article: duplicate id %s", article.ID)
		}
		for _, a := range articles {
			if article.IsRedirect() && a.IsRedirect() && strings.EqualFold(a.UrlPath, article.UrlPath) {
				return fmt.Errorf("%w: redirect from %s already in use", models.ErrInvalidOperation, article.UrlPath)
			}
			if !article.IsRedirect() && !a.IsRedirect() &&
				a.ArticleNumber == article.ArticleNumber && a.VersionNumber == article.VersionNumber {
				return fmt.Errorf("%w: version %d of article %d already exists", models.ErrConcurrencyConflict, article.VersionNumber, article.ArticleNumber)
			}
		}
		articles[article.ID] = article.Clone()
		if !r.st.live {
			r.st.created[article.ID] = true
			r.st.dirty[article.ID] = true
			delete(r.st.deleted, article.ID)
		}
		return nil
	})
}

func (r *memArticleRepo) Update(ctx context.Context, article *models.Article) error {
	if !r.st.live && r.st.store.OnArticleUpdate != nil {
		if err := r.st.store.OnArticleUpdate(article); err != nil {
			return err
		}
	}
	return r.st.do(func(articles map[string]*models.Article, _ map[int]*models.CatalogEntry) error {
		current, ok := articles[article.ID]
		if !ok || current.RowVersion != article.RowVersion {
			return fmt.Errorf("%w: article row %s", models.ErrConcurrencyConflict, article.ID)
		}
		article.RowVersion++
		articles[article.ID] = article.Clone()
		r.st.markDirty(article.ID)
		return nil
	})
}

func (r *memArticleRepo) Delete(ctx context.Context, article *models.Article) error {
	return r.st.do(func(articles map[string]*models.Article, _ map[int]*models.CatalogEntry) error {
		current, ok := articles[article.ID]
		if !ok || current.RowVersion != article.RowVersion {
			return fmt.Errorf("%w: article row %s", models.ErrConcurrencyConflict, article.ID)
		}
		delete(articles, article.ID)
		if !r.st.live {
			delete(r.st.dirty, article.ID)
			r.st.deleted[article.ID] = true
		}
		return nil
	})
}

func (r *memArticleRepo) GetLatest(ctx context.Context, articleNumber int) (*models.Article, error) {
	versions, err := r.ListVersions(ctx, articleNumber)
	if err != nil || len(versions) == 0 {
		return nil, err
	}
	return versions[0], nil
}

func (r *memArticleRepo) ListVersions(ctx context.Context, articleNumber int) ([]*models.Article, error) {
	return r.list(func(a *models.Article) bool {
		return !a.IsRedirect() && a.ArticleNumber == articleNumber
	})
}

func (r *memArticleRepo) GetPublishedByPath(ctx context.Context, urlPath string, now time.Time) (*models.Article, error) {
	rows, err := r.list(func(a *models.Article) bool {
		return strings.EqualFold(a.UrlPath, urlPath) &&
			(a.StatusCode == models.StatusActive || a.IsRedirect()) &&
			a.IsLiveAt(now)
	})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].IsRedirect() != rows[j].IsRedirect() {
			return !rows[i].IsRedirect()
		}
		return rows[i].VersionNumber > rows[j].VersionNumber
	})
	return rows[0], nil
}

func (r *memArticleRepo) ListByPath(ctx context.Context, urlPath string) ([]*models.Article, error) {
	return r.list(func(a *models.Article) bool { return strings.EqualFold(a.UrlPath, urlPath) })
}

func (r *memArticleRepo) ListByPathPrefix(ctx context.Context, prefix string) ([]*models.Article, error) {
	prefix = strings.ToLower(prefix)
	return r.list(func(a *models.Article) bool {
		return !a.IsRedirect() && strings.HasPrefix(strings.ToLower(a.UrlPath), prefix)
	})
}

func (r *memArticleRepo) ListByBlogKey(ctx context.Context, blogKey string) ([]*models.Article, error) {
	return r.list(func(a *models.Article) bool {
		return !a.IsRedirect() && strings.EqualFold(a.BlogKey, blogKey)
	})
}

func (r *memArticleRepo) ListRedirectsTo(ctx context.Context, target string) ([]*models.Article, error) {
	return r.list(func(a *models.Article) bool {
		return a.IsRedirect() && strings.EqualFold(a.RedirectTarget, target)
	})
}

func (r *memArticleRepo) ListLive(ctx context.Context, filter models.LivePageFilter) ([]*models.Article, error) {
	var result []*models.Article
	err := r.st.do(func(articles map[string]*models.Article, _ map[int]*models.CatalogEntry) error {
		live := make(map[int]*models.Article)
		for _, a := range articles {
			if a.IsRedirect() || !a.IsLiveAt(filter.Now) {
				continue
			}
			if cur, ok := live[a.ArticleNumber]; !ok || a.VersionNumber > cur.VersionNumber {
				live[a.ArticleNumber] = a
			}
		}
		for _, a := range live {
			if matchesFilter(a, filter) {
				result = append(result, a.Clone())
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ArticleNumber < result[j].ArticleNumber })
	return result, err
}

func matchesFilter(a *models.Article, filter models.LivePageFilter) bool {
	if a.StatusCode != models.StatusActive {
		return false
	}
	path := strings.ToLower(a.UrlPath)
	if filter.ChildrenOnly {
		parent := strings.ToLower(strings.Trim(filter.ParentPath, "/"))
		if parent == "" || parent == models.RootPath {
			if strings.Contains(path, "/") || path == models.RootPath {
				return false
			}
		} else {
			rest, ok := strings.CutPrefix(path, parent+"/")
			if !ok || rest == "" || strings.Contains(rest, "/") {
				return false
			}
		}
	}
	for _, term := range filter.Terms {
		term = strings.ToLower(term)
		if !strings.Contains(strings.ToLower(a.Title), term) && !strings.Contains(strings.ToLower(a.Content), term) {
			return false
		}
	}
	if filter.ArticleType != "" && a.ArticleType != filter.ArticleType {
		return false
	}
	if filter.BlogKey != "" && !strings.EqualFold(a.BlogKey, filter.BlogKey) {
		return false
	}
	return true
}

func (r *memArticleRepo) ListScheduledArticleNumbers(ctx context.Context, now time.Time) ([]int, error) {
	var numbers []int
	err := r.st.do(func(articles map[string]*models.Article, _ map[int]*models.CatalogEntry) error {
		counts := make(map[int]int)
		expired := make(map[int]bool)
		for _, a := range articles {
			if a.IsRedirect() {
				continue
			}
			counts[a.ArticleNumber]++
			if a.Expires != nil && !a.Expires.After(now) {
				expired[a.ArticleNumber] = true
			}
		}
		for n, c := range counts {
			if c > 1 || expired[n] {
				numbers = append(numbers, n)
			}
		}
		return nil
	})
	sort.Ints(numbers)
	return numbers, err
}

func (r *memArticleRepo) NextArticleNumber(ctx context.Context) (int, error) {
	next := 0
	err := r.st.do(func(articles map[string]*models.Article, _ map[int]*models.CatalogEntry) error {
		for _, a := range articles {
			if a.ArticleNumber > next {
				next = a.ArticleNumber
			}
		}
		return nil
	})
	return next + 1, err
}

func (r *memArticleRepo) list(match func(*models.Article) bool) ([]*models.Article, error) {
	var result []*models.Article
	err := r.st.do(func(articles map[string]*models.Article, _ map[int]*models.CatalogEntry) error {
		result = collect(articles, match)
		return nil
	})
	return result, err
}

// collect clones matching rows ordered by article number, version desc, path
func collect(articles map[string]*models.Article, match func(*models.Article) bool) []*models.Article {
	var result []*models.Article
	for _, a := range articles {
		if match(a) {
			result = append(result, a.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ArticleNumber != result[j].ArticleNumber {
			return result[i].ArticleNumber < result[j].ArticleNumber
		}
		if result[i].VersionNumber != result[j].VersionNumber {
			return result[i].VersionNumber > result[j].VersionNumber
		}
		return result[i].UrlPath < result[j].UrlPath
	})
	return result
}

type memCatalogRepo struct {
	st *memState
}

func (r *memCatalogRepo) Upsert(ctx context.Context, entry *models.CatalogEntry) error {
	return r.st.do(func(_ map[string]*models.Article, catalog map[int]*models.CatalogEntry) error {
		if err := pathTaken(catalog, entry.ArticleNumber, entry.UrlPath); err != nil {
			return err
		}
		c := *entry
		catalog[entry.ArticleNumber] = &c
		r.markDirty(entry.ArticleNumber)
		return nil
	})
}

func (r *memCatalogRepo) GetByArticleNumber(ctx context.Context, articleNumber int) (*models.CatalogEntry, error) {
	var result *models.CatalogEntry
	err := r.st.do(func(_ map[string]*models.Article, catalog map[int]*models.CatalogEntry) error {
		if e, ok := catalog[articleNumber]; ok {
			c := *e
			result = &c
		}
		return nil
	})
	return result, err
}

func (r *memCatalogRepo) UpdatePath(ctx context.Context, articleNumber int, urlPath, blogKey string) error {
	return r.st.do(func(_ map[string]*models.Article, catalog map[int]*models.CatalogEntry) error {
		e, ok := catalog[articleNumber]
		if !ok {
			return nil
		}
		if err := pathTaken(catalog, articleNumber, urlPath); err != nil {
			return err
		}
		c := *e
		c.UrlPath = urlPath
		c.BlogKey = blogKey
		catalog[articleNumber] = &c
		r.markDirty(articleNumber)
		return nil
	})
}

func (r *memCatalogRepo) Count(ctx context.Context) (int, error) {
	count := 0
	err := r.st.do(func(_ map[string]*models.Article, catalog map[int]*models.CatalogEntry) error {
		count = len(catalog)
		return nil
	})
	return count, err
}

func (r *memCatalogRepo) StreamAll(ctx context.Context, callback func(*models.CatalogEntry) error) error {
	var entries []*models.CatalogEntry
	_ = r.st.do(func(_ map[string]*models.Article, catalog map[int]*models.CatalogEntry) error {
		for _, e := range catalog {
			c := *e
			entries = append(entries, &c)
		}
		return nil
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].ArticleNumber < entries[j].ArticleNumber })

	for _, e := range entries {
		if err := callback(e); err != nil {
			return err
		}
	}
	return nil
}

func (r *memCatalogRepo) markDirty(articleNumber int) {
	if !r.st.live {
		r.st.dirtyCatalog[articleNumber] = true
	}
}

func pathTaken(catalog map[int]*models.CatalogEntry, articleNumber int, urlPath string) error {
	for n, e := range catalog {
		if n != articleNumber && strings.EqualFold(e.UrlPath, urlPath) {
			return fmt.Errorf("%w: url path %s already in use", models.ErrInvalidOperation, urlPath)
		}
	}
	return nil
}
