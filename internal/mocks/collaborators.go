package mocks

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cms-article-engine/internal/cdn"
	"github.com/cms-article-engine/internal/models"
)

// FakeClock is a settable clock
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock frozen at now
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// NotifyCall records one notifier invocation
type NotifyCall struct {
	ArticleNumber int
	UrlPath       string
}

// RecordingNotifier records CDN notifications and reports success
type RecordingNotifier struct {
	mu    sync.Mutex
	Calls []NotifyCall
	// Fail makes every result unsuccessful
	Fail bool
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (n *RecordingNotifier) Notify(ctx context.Context, articleNumber int, urlPath string) []models.PurgeResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Calls = append(n.Calls, NotifyCall{ArticleNumber: articleNumber, UrlPath: urlPath})

	result := models.PurgeResult{Provider: "recording", Success: !n.Fail, Paths: cdn.PurgePaths(urlPath)}
	if n.Fail {
		result.Message = "purge failed"
	}
	return []models.PurgeResult{result}
}

// CallCount returns the number of notifications so far
func (n *RecordingNotifier) CallCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Calls)
}

// MemoryPageCache is an in-process page cache that ignores TTLs
type MemoryPageCache struct {
	mu    sync.Mutex
	pages map[string]*models.PublishedPage
	Gets  int
	Hits  int
	Sets  int

	// Invalidated lists every path passed to InvalidatePath
	Invalidated []string
}

func NewMemoryPageCache() *MemoryPageCache {
	return &MemoryPageCache{pages: make(map[string]*models.PublishedPage)}
}

func (c *MemoryPageCache) GetPage(ctx context.Context, key string) (*models.PublishedPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gets++
	page, ok := c.pages[key]
	if !ok {
		return nil, nil
	}
	c.Hits++
	cp := *page
	return &cp, nil
}

func (c *MemoryPageCache) SetPage(ctx context.Context, key string, page *models.PublishedPage, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sets++
	cp := *page
	c.pages[key] = &cp
	return nil
}

func (c *MemoryPageCache) InvalidatePath(ctx context.Context, urlPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Invalidated = append(c.Invalidated, urlPath)
	for key := range c.pages {
		if strings.HasPrefix(key, urlPath+"|") {
			delete(c.pages, key)
		}
	}
	return nil
}

// Len returns the number of cached pages
func (c *MemoryPageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pages)
}

func (c *MemoryPageCache) Close() error { return nil }
