package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cms-article-engine/internal/models"
	"github.com/cms-article-engine/internal/repository"
	"github.com/rs/zerolog"
)

// pathChange describes a moved article inside a save transaction
type pathChange struct {
	// Article is the saved row, already at its new path
	Article    *models.Article
	OldPath    string
	OldBlogKey string
	// OldType decides how dependents are found; the save may have changed the type
	OldType models.ArticleType
	// WasPublished reports whether any version was live before the save
	WasPublished bool
}

// movedPath is one article whose public path changed
type movedPath struct {
	ArticleNumber int
	OldPath       string
	NewPath       string
	// Published reports whether the old path was publicly reachable
	Published bool
}

// cascadeResult reports what a path change touched
type cascadeResult struct {
	Redirects int
	// Moved lists the article itself first, then every dependent
	Moved []movedPath
}

// titleChangeService rewrites dependent paths and leaves redirects behind
type titleChangeService struct {
	redirects *redirectEngine
	log       zerolog.Logger
}

func newTitleChangeService(redirects *redirectEngine, log zerolog.Logger) *titleChangeService {
	return &titleChangeService{
		redirects: redirects,
		log:       log.With().Str("service", "title_change").Logger(),
	}
}

// movedBlogKey returns the blog key a stream carries after moving; streams keyed
// by their own path follow the move, everything else keeps its key
func movedBlogKey(article *models.Article, oldPath, newPath string) string {
	if article.ArticleType == models.ArticleTypeBlogStream && strings.EqualFold(article.BlogKey, oldPath) {
		return newPath
	}
	return article.BlogKey
}

// replacePrefix swaps the leading oldPrefix of path for newPrefix, case-insensitively
func replacePrefix(path, oldPrefix, newPrefix string) (string, bool) {
	if len(path) < len(oldPrefix) || !strings.EqualFold(path[:len(oldPrefix)], oldPrefix) {
		return path, false
	}
	return newPrefix + path[len(oldPrefix):], true
}

// Cascade runs inside the save transaction after the article row was updated.
// It moves the other versions and every dependent, keeps catalog paths in step
// and records one redirect per previously live article.
func (t *titleChangeService) Cascade(ctx context.Context, repos *repository.Repositories, change pathChange, now time.Time) (cascadeResult, error) {
	article := change.Article
	newPath := article.UrlPath
	var result cascadeResult

	versions, err := repos.Article.ListVersions(ctx, article.ArticleNumber)
	if err != nil {
		return result, err
	}
	for _, v := range versions {
		if v.ID == article.ID {
			continue
		}
		v.UrlPath = newPath
		v.BlogKey = article.BlogKey
		if err := repos.Article.Update(ctx, v); err != nil {
			return result, err
		}
	}

	dependents, err := t.discover(ctx, repos, change)
	if err != nil {
		return result, err
	}

	moves := planMoves(change, dependents, now)
	if err := t.checkCollisions(ctx, repos, article.ArticleNumber, moves); err != nil {
		return result, err
	}

	ok, err := t.redirects.Move(ctx, repos, change.OldPath, newPath, article.UserID, change.WasPublished, now)
	if err != nil {
		return result, err
	}
	if ok {
		result.Redirects++
	}
	result.Moved = append(result.Moved, movedPath{
		ArticleNumber: article.ArticleNumber,
		OldPath:       change.OldPath,
		NewPath:       newPath,
		Published:     change.WasPublished,
	})

	for _, m := range moves {
		for _, v := range m.versions {
			if err := repos.Article.Update(ctx, v); err != nil {
				return result, err
			}
		}
		if err := repos.Catalog.UpdatePath(ctx, m.articleNumber, m.newPath, m.newBlogKey); err != nil {
			return result, err
		}

		ok, err := t.redirects.Move(ctx, repos, m.oldPath, m.newPath, article.UserID, m.published, now)
		if err != nil {
			return result, err
		}
		if ok {
			result.Redirects++
		}
		result.Moved = append(result.Moved, movedPath{
			ArticleNumber: m.articleNumber,
			OldPath:       m.oldPath,
			NewPath:       m.newPath,
			Published:     m.published,
		})
	}

	t.log.Info().
		Int("article_number", article.ArticleNumber).
		Str("old_path", change.OldPath).
		Str("new_path", newPath).
		Int("dependents", len(moves)).
		Int("redirects", result.Redirects).
		Msg("Cascaded path change")

	return result, nil
}

// discover finds the rows that hang below the moved article
func (t *titleChangeService) discover(ctx context.Context, repos *repository.Repositories, change pathChange) ([]*models.Article, error) {
	var rows []*models.Article
	var err error

	switch change.OldType {
	case models.ArticleTypeBlogStream:
		if change.OldBlogKey == "" {
			return nil, nil
		}
		rows, err = repos.Article.ListByBlogKey(ctx, change.OldBlogKey)
	case models.ArticleTypeGeneral, models.ArticleTypeBlogPost, models.ArticleTypeSpaApp:
		rows, err = repos.Article.ListByPathPrefix(ctx, change.OldPath+"/")
	default:
		return nil, fmt.Errorf("%w: unknown article type %q", models.ErrInvalidOperation, change.OldType)
	}
	if err != nil {
		return nil, err
	}

	dependents := rows[:0]
	for _, r := range rows {
		if r.ArticleNumber != change.Article.ArticleNumber {
			dependents = append(dependents, r)
		}
	}
	return dependents, nil
}

// dependentMove is the rewrite of one dependent article, all versions
type dependentMove struct {
	articleNumber int
	oldPath       string
	newPath       string
	newBlogKey    string
	published     bool
	versions      []*models.Article
}

// planMoves groups dependent rows per article and rewrites their paths in memory
func planMoves(change pathChange, dependents []*models.Article, now time.Time) []*dependentMove {
	article := change.Article
	oldPrefix := change.OldPath + "/"
	newPrefix := article.UrlPath + "/"
	stream := change.OldType == models.ArticleTypeBlogStream

	byNumber := make(map[int]*dependentMove)
	var moves []*dependentMove

	for _, d := range dependents {
		m, ok := byNumber[d.ArticleNumber]
		if !ok {
			// rows arrive newest version first
			m = &dependentMove{articleNumber: d.ArticleNumber, oldPath: d.UrlPath}
			byNumber[d.ArticleNumber] = m
			moves = append(moves, m)
		}
		if d.IsLiveAt(now) {
			m.published = true
		}

		path, _ := replacePrefix(d.UrlPath, oldPrefix, newPrefix)
		d.UrlPath = path
		if stream {
			d.BlogKey = article.BlogKey
		}
		if len(m.versions) == 0 {
			m.newPath = d.UrlPath
			m.newBlogKey = d.BlogKey
		}
		m.versions = append(m.versions, d)
	}
	return moves
}

// checkCollisions fails when a dependent would land on a path owned by an article outside the move
func (t *titleChangeService) checkCollisions(ctx context.Context, repos *repository.Repositories, articleNumber int, moves []*dependentMove) error {
	moving := map[int]bool{articleNumber: true}
	for _, m := range moves {
		moving[m.articleNumber] = true
	}

	for _, m := range moves {
		if strings.EqualFold(m.oldPath, m.newPath) {
			continue
		}
		rows, err := repos.Article.ListByPath(ctx, m.newPath)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if !r.IsRedirect() && !moving[r.ArticleNumber] {
				return fmt.Errorf("%w: url path %s already in use by article %d", models.ErrInvalidOperation, m.newPath, r.ArticleNumber)
			}
		}
	}
	return nil
}
