package service

import (
	"context"
	"strings"
	"time"

	"github.com/cms-article-engine/internal/metrics"
	"github.com/cms-article-engine/internal/models"
	"github.com/cms-article-engine/internal/repository"
)

// redirectEngine records moved paths as single-hop redirect rows
type redirectEngine struct {
	metrics *metrics.Metrics
	tenant  string
	newID   func() string
}

func newRedirectEngine(m *metrics.Metrics, tenant string, newID func() string) *redirectEngine {
	return &redirectEngine{metrics: m, tenant: tenant, newID: newID}
}

// Move records that from now lives at to. Redirects ending at from are
// retargeted to to, and dropped if they would point at themselves. A redirect
// whose source is to is removed since that path is live again. With create set,
// from itself becomes a redirect. Reports whether a new row was written.
//
// Redirect rows are only deleted here and in Release, and only when keeping
// them would shadow a live page or point a path at itself.
func (e *redirectEngine) Move(ctx context.Context, repos *repository.Repositories, from, to, userID string, create bool, now time.Time) (bool, error) {
	if strings.EqualFold(from, to) {
		return false, nil
	}

	chained, err := repos.Article.ListRedirectsTo(ctx, from)
	if err != nil {
		return false, err
	}
	for _, r := range chained {
		if strings.EqualFold(r.UrlPath, to) {
			if err := repos.Article.Delete(ctx, r); err != nil {
				return false, err
			}
			continue
		}
		r.RedirectTarget = to
		r.Updated = now
		if err := repos.Article.Update(ctx, r); err != nil {
			return false, err
		}
	}

	if err := e.Release(ctx, repos, to); err != nil {
		return false, err
	}

	if !create {
		return false, nil
	}

	existing, err := redirectFrom(ctx, repos, from)
	if err != nil {
		return false, err
	}
	if existing != nil {
		existing.RedirectTarget = to
		existing.Updated = now
		existing.UserID = userID
		return false, repos.Article.Update(ctx, existing)
	}

	published := now
	redirect := &models.Article{
		ID:             e.newID(),
		Title:          from,
		UrlPath:        from,
		StatusCode:     models.StatusRedirect,
		RedirectTarget: to,
		Published:      &published,
		ArticleType:    models.ArticleTypeGeneral,
		Updated:        now,
		UserID:         userID,
	}
	if err := repos.Article.Create(ctx, redirect); err != nil {
		return false, err
	}
	e.metrics.RedirectCreated(e.tenant)
	return true, nil
}

// Release deletes the redirect whose source is path, if any. A live article
// is about to own path, and a redirect there would hide it from readers.
func (e *redirectEngine) Release(ctx context.Context, repos *repository.Repositories, path string) error {
	r, err := redirectFrom(ctx, repos, path)
	if err != nil || r == nil {
		return err
	}
	return repos.Article.Delete(ctx, r)
}

func redirectFrom(ctx context.Context, repos *repository.Repositories, path string) (*models.Article, error) {
	rows, err := repos.Article.ListByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if r.IsRedirect() {
			return r, nil
		}
	}
	return nil, nil
}
