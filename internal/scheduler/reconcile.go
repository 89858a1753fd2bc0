package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/cms-article-engine/internal/models"
	"github.com/cms-article-engine/internal/repository"
)

type reconcileOutcome struct {
	// activated is set when the catalog moved to a newly live version
	activated bool
	// retired counts versions whose publish date was cleared
	retired int
}

// reconcileArticle makes the highest live version the only published one and
// mirrors it into the catalog, in its own transaction. The CDN is notified
// only when the catalog changed, so running it twice has no further effect.
func (s *Scheduler) reconcileArticle(ctx context.Context, target Target, articleNumber int, now time.Time) (outcome reconcileOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reconcile article %d panicked: %v", articleNumber, r)
		}
	}()

	if s.cfg.ArticleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ArticleTimeout)
		defer cancel()
	}

	var purgePath string
	err = target.Store.WithTx(ctx, func(repos *repository.Repositories) error {
		outcome = reconcileOutcome{}
		purgePath = ""

		versions, err := repos.Article.ListVersions(ctx, articleNumber)
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			return nil
		}

		// versions arrive newest first
		var live *models.Article
		for _, v := range versions {
			if v.IsLiveAt(now) {
				live = v
				break
			}
		}

		for _, v := range versions {
			if v == live || !v.IsPublishedAt(now) {
				continue
			}
			v.Published = nil
			v.Updated = now
			if err := repos.Article.Update(ctx, v); err != nil {
				return err
			}
			outcome.retired++
		}

		current, err := repos.Catalog.GetByArticleNumber(ctx, articleNumber)
		if err != nil {
			return err
		}

		want := desiredEntry(current, live, versions[0], now)
		if current.Matches(want) {
			return nil
		}
		if err := repos.Catalog.Upsert(ctx, want); err != nil {
			return err
		}

		outcome.activated = live != nil
		purgePath = want.UrlPath
		return nil
	})
	if err != nil {
		return reconcileOutcome{}, err
	}

	if purgePath != "" {
		for _, r := range target.Notifier.Notify(ctx, articleNumber, purgePath) {
			if !r.Success {
				s.log.Warn().
					Str("tenant", target.Name).
					Int("article_number", articleNumber).
					Str("provider", r.Provider).
					Str("message", r.Message).
					Msg("CDN notification failed")
			}
		}
	}
	return outcome, nil
}

// desiredEntry is the catalog row an article should have at now: a mirror of
// the live version, or the current row with an elapsed publish date cleared
func desiredEntry(current *models.CatalogEntry, live, latest *models.Article, now time.Time) *models.CatalogEntry {
	if live != nil {
		return models.NewCatalogEntry(live)
	}

	var want models.CatalogEntry
	if current != nil {
		want = *current
	} else {
		want = *models.NewCatalogEntry(latest)
	}
	if want.Published != nil && !want.Published.After(now) {
		want.Published = nil
	}
	return &want
}
