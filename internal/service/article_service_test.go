package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cms-article-engine/internal/config"
	"github.com/cms-article-engine/internal/editable"
	"github.com/cms-article-engine/internal/models"
	"github.com/cms-article-engine/internal/service"
)

func TestCreateArticle_FirstArticleIsRoot(t *testing.T) {
	env := newTestEnv(t)

	root := env.seedRoot(t)
	assert.Equal(t, 1, root.ArticleNumber)
	assert.Equal(t, models.RootPath, root.UrlPath)

	page := env.publishedPage(t, "Original Title", "")
	assert.Equal(t, 2, page.ArticleNumber)
	assert.Equal(t, "original-title", page.UrlPath)
	assert.Equal(t, 1, page.VersionNumber)

	entry := env.store.CatalogEntry(2)
	require.NotNil(t, entry)
	assert.Equal(t, "original-title", entry.UrlPath)
}

func TestCreateArticle_RejectsUsedPath(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	env.publishedPage(t, "About", "")

	result, err := env.svc.Article.CreateArticle(context.Background(), &models.CreateArticleCommand{Title: "About!", UserID: "u"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidOperation))
	assert.False(t, result.IsSuccess)
	assert.Contains(t, result.ErrorMessage, "already in use")
}

func TestCreateArticle_BlogPostLivesUnderStream(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)

	stream := env.create(t, models.CreateArticleCommand{Title: "Blog", ArticleType: models.ArticleTypeBlogStream})
	assert.Equal(t, "blog", stream.BlogKey)

	post := env.create(t, models.CreateArticleCommand{Title: "Hello World", ArticleType: models.ArticleTypeBlogPost, BlogKey: "blog"})
	assert.Equal(t, "blog/hello-world", post.UrlPath)
	assert.Equal(t, "blog", post.BlogKey)
}

// Scenario: a published article renamed once leaves one redirect behind
func TestSaveArticle_TitleChangeCreatesRedirect(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	article := env.publishedPage(t, "Original Title", "")

	saved := env.save(t, saveCommand(article, "Completely New Title"))

	assert.Equal(t, "completely-new-title", saved.UrlPath)
	assert.Equal(t, map[string]string{"original-title": "completely-new-title"}, redirectMap(env.store))

	redirect := env.store.Redirects()[0]
	assert.Equal(t, models.StatusRedirect, redirect.StatusCode)
	assert.Equal(t, 0, redirect.ArticleNumber)
	require.NotNil(t, redirect.Published)

	entry := env.store.CatalogEntry(article.ArticleNumber)
	assert.Equal(t, "completely-new-title", entry.UrlPath)
	assert.Equal(t, "Completely New Title", entry.Title)
}

func TestSaveArticle_CaseOnlyChangeKeepsPath(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	article := env.publishedPage(t, "original title", "")

	saved := env.save(t, saveCommand(article, "Original Title"))

	assert.Equal(t, "Original Title", saved.Title)
	assert.Equal(t, "original-title", saved.UrlPath)
	assert.Empty(t, env.store.Redirects())
}

func TestSaveArticle_RedirectChainsCollapse(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	article := env.publishedPage(t, "First Title", "")

	second := env.save(t, saveCommand(article, "Second Title"))
	env.save(t, saveCommand(second, "Third Title"))

	assert.Equal(t, map[string]string{
		"first-title":  "third-title",
		"second-title": "third-title",
	}, redirectMap(env.store))
}

func TestSaveArticle_RenameBackRemovesRedirect(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	article := env.publishedPage(t, "Alpha", "")

	renamed := env.save(t, saveCommand(article, "Beta"))
	back := env.save(t, saveCommand(renamed, "Alpha"))

	assert.Equal(t, "alpha", back.UrlPath)
	assert.Equal(t, map[string]string{"beta": "alpha"}, redirectMap(env.store))
	for from, to := range redirectMap(env.store) {
		assert.NotEqual(t, from, to)
	}
}

func TestSaveArticle_CascadeMovesChildren(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	docs := env.publishedPage(t, "Docs", "")
	api := env.publishedPage(t, "API", "docs")
	draft := env.create(t, models.CreateArticleCommand{Title: "Draft", Content: "<p>wip</p>", ParentPath: "docs"})
	require.Equal(t, "docs/api", api.UrlPath)
	require.Equal(t, "docs/draft", draft.UrlPath)

	env.save(t, saveCommand(docs, "Documentation"))

	assert.Equal(t, map[string]string{
		"docs":     "documentation",
		"docs/api": "documentation/api",
	}, redirectMap(env.store))

	assert.Equal(t, "documentation/api", env.store.Versions(api.ArticleNumber)[0].UrlPath)
	assert.Equal(t, "documentation/draft", env.store.Versions(draft.ArticleNumber)[0].UrlPath)
	assert.Equal(t, "documentation/api", env.store.CatalogEntry(api.ArticleNumber).UrlPath)
	assert.Equal(t, "documentation/draft", env.store.CatalogEntry(draft.ArticleNumber).UrlPath)
}

func TestSaveArticle_BlogStreamRenameMovesPosts(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	published := ptr(baseTime.Add(-time.Hour))
	stream := env.create(t, models.CreateArticleCommand{Title: "Blog", Content: "<p>stream</p>", ArticleType: models.ArticleTypeBlogStream, Published: published})
	post := env.create(t, models.CreateArticleCommand{Title: "Hello", Content: "<p>post</p>", ArticleType: models.ArticleTypeBlogPost, BlogKey: "blog", Published: published})

	saved := env.save(t, saveCommand(stream, "News"))
	assert.Equal(t, "news", saved.UrlPath)
	assert.Equal(t, "news", saved.BlogKey)

	moved := env.store.Versions(post.ArticleNumber)[0]
	assert.Equal(t, "news/hello", moved.UrlPath)
	assert.Equal(t, "news", moved.BlogKey)
	assert.Equal(t, map[string]string{
		"blog":       "news",
		"blog/hello": "news/hello",
	}, redirectMap(env.store))
}

func TestSaveArticle_UnpublishedRenameCreatesNoRedirect(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	draft := env.create(t, models.CreateArticleCommand{Title: "Draft", Content: "<p>x</p>"})

	saved := env.save(t, saveCommand(draft, "Renamed Draft"))
	assert.Equal(t, "renamed-draft", saved.UrlPath)
	assert.Empty(t, env.store.Redirects())
}

func TestSaveArticle_RootNeverMoves(t *testing.T) {
	env := newTestEnv(t)
	root := env.seedRoot(t)

	for _, title := range []string{"Welcome", "Start Here", "Home Again"} {
		cmd := saveCommand(root, title)
		cmd.UrlPath = "somewhere-else"
		root = env.save(t, cmd)
		assert.Equal(t, models.RootPath, root.UrlPath)
	}
	assert.Empty(t, env.store.Redirects())
}

func TestSaveArticle_SlugCollisionRollsBack(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	env.publishedPage(t, "Alpha", "")
	b := env.publishedPage(t, "Beta", "")
	before := env.store.Article(b.ID)
	calls := env.notifier.CallCount()

	cmd := saveCommand(b, "Alpha")
	cmd.Content = "<p>changed</p>"
	result, err := env.svc.Article.SaveArticle(context.Background(), cmd)

	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidOperation))
	assert.False(t, result.IsSuccess)
	assert.Contains(t, result.ErrorMessage, "already in use")

	after := env.store.Article(b.ID)
	assert.Equal(t, before, after)
	assert.Equal(t, "Beta", env.store.CatalogEntry(b.ArticleNumber).Title)
	assert.Empty(t, env.store.Redirects())
	assert.Equal(t, calls, env.notifier.CallCount())
}

func TestSaveArticle_DependentCollisionRollsBack(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	docs := env.publishedPage(t, "Docs", "")
	env.publishedPage(t, "API", "docs")
	taken := env.publishedPage(t, "API", "manual")
	require.Equal(t, "manual/api", taken.UrlPath)

	cmd := saveCommand(docs, "Docs")
	cmd.UrlPath = "manual"
	_, err := env.svc.Article.SaveArticle(context.Background(), cmd)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidOperation))

	assert.Equal(t, "docs", env.store.Article(docs.ID).UrlPath)
	assert.Empty(t, env.store.Redirects())
}

func TestSaveArticle_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	article := env.publishedPage(t, "Page", "")

	cmd := &models.SaveArticleCommand{
		ArticleNumber:    article.ArticleNumber,
		Title:            "Page",
		Content:          "<p>new body</p>",
		HeadJavaScript:   "console.log('head')",
		FooterJavaScript: "console.log('foot')",
		BannerImage:      "/img/banner.png",
		ArticleType:      models.ArticleTypeSpaApp,
		Category:         "guides",
		Introduction:     "Intro",
		Published:        ptr(baseTime.Add(-time.Minute)),
		Expires:          ptr(baseTime.Add(time.Hour)),
		UserID:           "editor-7",
	}
	env.save(t, cmd)

	stored := env.store.Versions(article.ArticleNumber)[0]
	assert.Equal(t, cmd.Title, stored.Title)
	assert.Equal(t, cmd.Content, stored.Content)
	assert.Equal(t, cmd.HeadJavaScript, stored.HeaderJavaScript)
	assert.Equal(t, cmd.FooterJavaScript, stored.FooterJavaScript)
	assert.Equal(t, cmd.BannerImage, stored.BannerImage)
	assert.Equal(t, cmd.ArticleType, stored.ArticleType)
	assert.Equal(t, cmd.Category, stored.Category)
	assert.Equal(t, cmd.Introduction, stored.Introduction)
	assert.True(t, cmd.Published.Equal(*stored.Published))
	assert.True(t, cmd.Expires.Equal(*stored.Expires))
	assert.Equal(t, cmd.UserID, stored.UserID)
	assert.Equal(t, baseTime, stored.Updated)
}

func TestSaveArticle_InsertsEditableMarkers(t *testing.T) {
	env := newTestEnv(t)
	env.svc = service.NewServices(service.Dependencies{
		Tenant: "test", Store: env.store, Clock: env.clock, Markers: editable.NewProcessor(),
	}, zerolog.Nop())
	env.seedRoot(t)
	article := env.publishedPage(t, "Page", "")

	cmd := saveCommand(article, "Page")
	cmd.Content = "<p>plain</p>"
	saved := env.save(t, cmd)

	assert.True(t, editable.HasMarkers(saved.Content))
	assert.Contains(t, saved.Content, "<p>plain</p>")
}

func TestSaveArticle_NotFound(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.svc.Article.SaveArticle(context.Background(), &models.SaveArticleCommand{
		ArticleNumber: 42, Title: "Ghost", Content: "<p>x</p>", UserID: "u",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNotFound))
	assert.False(t, result.IsSuccess)
	assert.Contains(t, result.ErrorMessage, "not found")
}

func TestSaveArticle_ValidationErrorsAreResults(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.svc.Article.SaveArticle(context.Background(), &models.SaveArticleCommand{})
	require.NoError(t, err)
	assert.False(t, result.IsSuccess)
	assert.Contains(t, result.Errors, "article_number")
	assert.Contains(t, result.Errors, "title")
	assert.Contains(t, result.Errors, "content")
	assert.Contains(t, result.Errors, "user_id")
}

func TestSaveArticle_NotifiesOnlyWhenPublished(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	live := env.publishedPage(t, "Live", "")
	draft := env.create(t, models.CreateArticleCommand{Title: "Draft", Content: "<p>x</p>"})
	calls := env.notifier.CallCount()

	result, err := env.svc.Article.SaveArticle(context.Background(), saveCommand(draft, "Draft"))
	require.NoError(t, err)
	assert.NotNil(t, result.Data.CdnResults)
	assert.Empty(t, result.Data.CdnResults)
	assert.Equal(t, calls, env.notifier.CallCount())

	scheduled := saveCommand(draft, "Draft")
	scheduled.Published = ptr(baseTime.Add(time.Hour))
	env.save(t, scheduled)
	assert.Equal(t, calls, env.notifier.CallCount())

	result, err = env.svc.Article.SaveArticle(context.Background(), saveCommand(live, "Live"))
	require.NoError(t, err)
	require.Len(t, result.Data.CdnResults, 1)
	assert.True(t, result.Data.CdnResults[0].Success)
	assert.Equal(t, calls+1, env.notifier.CallCount())
	assert.Equal(t, "live", env.notifier.Calls[len(env.notifier.Calls)-1].UrlPath)
}

func TestSaveArticle_RetriesAfterConcurrentSave(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	article := env.publishedPage(t, "Shared", "")

	fired := false
	var interleavedErr error
	env.store.BeforeCommit = func() {
		if fired {
			return
		}
		fired = true
		cmd := saveCommand(article, "Other Title")
		cmd.UserID = "user-b"
		_, interleavedErr = env.svc.Article.SaveArticle(context.Background(), cmd)
	}

	cmd := saveCommand(article, "Mine")
	cmd.UserID = "user-a"
	saved := env.save(t, cmd)
	require.NoError(t, interleavedErr)

	assert.Equal(t, "Mine", saved.Title)
	stored := env.store.Versions(article.ArticleNumber)
	require.Len(t, stored, 1)
	assert.Equal(t, "Mine", stored[0].Title)
	assert.Equal(t, "user-a", stored[0].UserID)
	assert.Equal(t, "mine", stored[0].UrlPath)
	assert.Positive(t, env.store.Rollbacks)
}

func TestSaveArticle_ConcurrentSaves(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	article := env.publishedPage(t, "Shared", "")

	titles := []string{"Title From A", "Title From B"}
	results := make([]*models.CommandResult, len(titles))
	var wg sync.WaitGroup
	for i, title := range titles {
		wg.Add(1)
		go func(i int, title string) {
			defer wg.Done()
			cmd := saveCommand(article, title)
			cmd.UserID = "user-" + string(rune('a'+i))
			results[i], _ = env.svc.Article.SaveArticle(context.Background(), cmd)
		}(i, title)
	}
	wg.Wait()

	succeeded := 0
	for _, r := range results {
		if r.IsSuccess {
			succeeded++
		}
	}
	assert.GreaterOrEqual(t, succeeded, 1)

	stored := env.store.Versions(article.ArticleNumber)
	require.Len(t, stored, 1)
	assert.Contains(t, titles, stored[0].Title)
}

func TestSaveArticle_GivesUpAfterMaxAttempts(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	article := env.publishedPage(t, "Busy", "")

	attempts := 0
	env.store.OnArticleUpdate = func(a *models.Article) error {
		attempts++
		return models.ErrConcurrencyConflict
	}

	result, err := env.svc.Article.SaveArticle(context.Background(), saveCommand(article, "Busy"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConcurrencyConflict))
	assert.False(t, result.IsSuccess)
	assert.Equal(t, 3, attempts)
}

func TestSaveArticle_TimeoutIsTransient(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	article := env.publishedPage(t, "Slow", "")

	env.svc = service.NewServices(service.Dependencies{
		Tenant: "test", Store: env.store, Clock: env.clock, Markers: plainMarkers{},
		Save: config.SaveConfig{Timeout: time.Millisecond, MaxAttempts: 3},
	}, zerolog.Nop())
	env.store.BeforeCommit = func() { time.Sleep(20 * time.Millisecond) }

	_, err := env.svc.Article.SaveArticle(context.Background(), saveCommand(article, "Slower"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrTransient))
	assert.Equal(t, "slow", env.store.Article(article.ID).UrlPath)
}

func TestSaveArticle_OtherVersionsFollowPath(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	article := env.publishedPage(t, "Versioned", "")

	draft, err := env.svc.Article.CreateNewVersion(context.Background(), article.ArticleNumber, "editor")
	require.NoError(t, err)
	assert.Equal(t, 2, draft.VersionNumber)
	assert.Nil(t, draft.Published)

	cmd := saveCommand(draft, "Versioned Again")
	env.save(t, cmd)

	for _, v := range env.store.Versions(article.ArticleNumber) {
		assert.Equal(t, "versioned-again", v.UrlPath, "version %d", v.VersionNumber)
	}
	// version 1 was live, so the old path redirects
	assert.Equal(t, map[string]string{"versioned": "versioned-again"}, redirectMap(env.store))
}

func TestListVersions(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	article := env.publishedPage(t, "Versioned", "")
	_, err := env.svc.Article.CreateNewVersion(context.Background(), article.ArticleNumber, "editor")
	require.NoError(t, err)

	versions, err := env.svc.Article.ListVersions(context.Background(), article.ArticleNumber)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].VersionNumber)

	_, err = env.svc.Article.ListVersions(context.Background(), 99)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestSaveArticle_EmptySlugIsRejected(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	article := env.publishedPage(t, "Words", "")

	_, err := env.svc.Article.SaveArticle(context.Background(), saveCommand(article, "!!!"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidOperation))
	assert.Equal(t, "Words", env.store.Article(article.ID).Title)
}

func TestSaveArticle_RenamePurgesOldAndNewPaths(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	docs := env.publishedPage(t, "Docs", "")
	env.publishedPage(t, "API", "docs")
	env.create(t, models.CreateArticleCommand{Title: "Draft", Content: "<p>wip</p>", ParentPath: "docs"})

	ctx := context.Background()
	cached, err := env.svc.Page.GetPublishedPageByURL(ctx, "docs", "", true, time.Minute)
	require.NoError(t, err)
	require.Equal(t, docs.ArticleNumber, cached.ArticleNumber)
	calls := env.notifier.CallCount()

	result, err := env.svc.Article.SaveArticle(ctx, saveCommand(docs, "Documentation"))
	require.NoError(t, err)
	require.True(t, result.IsSuccess)

	var purged []string
	for _, c := range env.notifier.Calls[calls:] {
		purged = append(purged, c.UrlPath)
	}
	assert.ElementsMatch(t, []string{"documentation", "docs", "docs/api", "documentation/api"}, purged,
		"unpublished dependents are not purged")
	assert.Len(t, result.Data.CdnResults, 4)

	assert.Contains(t, env.cache.Invalidated, "docs")
	assert.Contains(t, env.cache.Invalidated, "documentation/draft")
	page, err := env.svc.Page.GetPublishedPageByURL(ctx, "docs", "", true, time.Minute)
	require.NoError(t, err)
	assert.True(t, page.IsRedirect(), "the old path must not be served from the cache")
	assert.Equal(t, "documentation", page.RedirectTarget)
}

func TestSaveArticle_StreamTurnedGeneralStillMovesPosts(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	published := ptr(baseTime.Add(-time.Hour))
	stream := env.create(t, models.CreateArticleCommand{Title: "Blog", Content: "<p>stream</p>", ArticleType: models.ArticleTypeBlogStream, Published: published})
	post := env.create(t, models.CreateArticleCommand{Title: "Hello", Content: "<p>post</p>", ArticleType: models.ArticleTypeBlogPost, BlogKey: "blog", Published: published})

	cmd := saveCommand(stream, "News")
	cmd.ArticleType = models.ArticleTypeGeneral
	saved := env.save(t, cmd)
	assert.Equal(t, models.ArticleTypeGeneral, saved.ArticleType)

	moved := env.store.Versions(post.ArticleNumber)[0]
	assert.Equal(t, "news/hello", moved.UrlPath)
	assert.Equal(t, "news", moved.BlogKey)
	assert.Equal(t, "news", env.store.CatalogEntry(post.ArticleNumber).BlogKey)
	assert.Equal(t, map[string]string{
		"blog":       "news",
		"blog/hello": "news/hello",
	}, redirectMap(env.store))
}

func TestSaveArticle_GeneralTurnedStreamStillMovesChildren(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	docs := env.publishedPage(t, "Docs", "")
	api := env.publishedPage(t, "API", "docs")

	cmd := saveCommand(docs, "Documentation")
	cmd.ArticleType = models.ArticleTypeBlogStream
	env.save(t, cmd)

	assert.Equal(t, "documentation/api", env.store.Versions(api.ArticleNumber)[0].UrlPath)
	assert.Equal(t, map[string]string{
		"docs":     "documentation",
		"docs/api": "documentation/api",
	}, redirectMap(env.store))
}

func TestSaveArticle_ExpiredRenameCreatesNoRedirect(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	article := env.publishedPage(t, "Old News", "")

	expire := saveCommand(article, "Old News")
	expire.Expires = ptr(baseTime.Add(-time.Minute))
	expired := env.save(t, expire)

	renamed := env.save(t, saveCommand(expired, "Archived News"))

	assert.Equal(t, "archived-news", renamed.UrlPath)
	assert.Empty(t, env.store.Redirects())
}

func TestCreateArticle_RetriesWhenNumberIsTaken(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)

	fired := false
	var interleaved *models.CommandResult
	var interleavedErr error
	env.store.BeforeCommit = func() {
		if fired {
			return
		}
		fired = true
		interleaved, interleavedErr = env.svc.Article.CreateArticle(context.Background(), &models.CreateArticleCommand{
			Title: "Theirs", Content: "<p>b</p>", UserID: "user-b",
		})
	}

	mine := env.create(t, models.CreateArticleCommand{Title: "Mine", Content: "<p>a</p>", UserID: "user-a"})

	require.NoError(t, interleavedErr)
	require.True(t, interleaved.IsSuccess)
	theirs := interleaved.Data.Model
	assert.Equal(t, 2, theirs.ArticleNumber)
	assert.Equal(t, 3, mine.ArticleNumber)
	assert.Equal(t, "mine", env.store.CatalogEntry(3).UrlPath)
	assert.Equal(t, "theirs", env.store.CatalogEntry(2).UrlPath)
	assert.Positive(t, env.store.Rollbacks)
}
