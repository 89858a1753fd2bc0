package cache

import (
	"context"
	"time"

	"github.com/cms-article-engine/internal/models"
)

// PageCache stores rendered published pages for a caller-chosen TTL
type PageCache interface {
	// GetPage returns nil, nil on a miss
	GetPage(ctx context.Context, key string) (*models.PublishedPage, error)
	SetPage(ctx context.Context, key string, page *models.PublishedPage, ttl time.Duration) error
	// InvalidatePath drops every cached variant (language, layout) of a path
	InvalidatePath(ctx context.Context, urlPath string) error
	Close() error
}

// NopCache never stores anything
type NopCache struct{}

func (NopCache) GetPage(ctx context.Context, key string) (*models.PublishedPage, error) {
	return nil, nil
}

func (NopCache) SetPage(ctx context.Context, key string, page *models.PublishedPage, ttl time.Duration) error {
	return nil
}

func (NopCache) InvalidatePath(ctx context.Context, urlPath string) error { return nil }

func (NopCache) Close() error { return nil }
