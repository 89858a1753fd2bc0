package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cms-article-engine/internal/models"
	"github.com/cms-article-engine/internal/service"
)

func TestNormalizeURLPath(t *testing.T) {
	tests := map[string]string{
		"":               "root",
		"/":              "root",
		"/Docs/API/":     "docs/api",
		"  about ":       "about",
		"Original-Title": "original-title",
	}
	for in, want := range tests {
		if got := service.NormalizeURLPath(in); got != want {
			t.Errorf("NormalizeURLPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetPublishedPageByURL(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	env.publishedPage(t, "Original Title", "")
	env.create(t, models.CreateArticleCommand{Title: "Hidden", Content: "<p>x</p>"})
	ctx := context.Background()

	page, err := env.svc.Page.GetPublishedPageByURL(ctx, "/Original-Title/", "en", true, 0)
	require.NoError(t, err)
	assert.Equal(t, "Original Title", page.Title)
	assert.Equal(t, "en", page.Lang)

	home, err := env.svc.Page.GetPublishedPageByURL(ctx, "/", "en", true, 0)
	require.NoError(t, err)
	assert.Equal(t, models.RootPath, home.UrlPath)

	_, err = env.svc.Page.GetPublishedPageByURL(ctx, "hidden", "en", true, 0)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = env.svc.Page.GetPublishedPageByURL(ctx, "missing", "en", true, 0)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestGetPublishedPageByURL_HighestLiveVersionWins(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	article := env.publishedPage(t, "Pricing", "")
	ctx := context.Background()

	draft, err := env.svc.Article.CreateNewVersion(ctx, article.ArticleNumber, "editor")
	require.NoError(t, err)
	cmd := saveCommand(draft, "Pricing")
	cmd.Content = "<p>new prices</p>"
	cmd.Published = ptr(baseTime.Add(time.Hour))
	env.save(t, cmd)

	page, err := env.svc.Page.GetPublishedPageByURL(ctx, "pricing", "", true, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.VersionNumber)

	env.clock.Advance(2 * time.Hour)
	page, err = env.svc.Page.GetPublishedPageByURL(ctx, "pricing", "", true, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, page.VersionNumber)
	assert.Equal(t, "<p>new prices</p>", page.Content)
}

func TestGetPublishedPageByURL_ServesRedirect(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	article := env.publishedPage(t, "Old Name", "")
	env.save(t, saveCommand(article, "New Name"))

	page, err := env.svc.Page.GetPublishedPageByURL(context.Background(), "old-name", "", true, 0)
	require.NoError(t, err)
	assert.True(t, page.IsRedirect())
	assert.Equal(t, "new-name", page.RedirectTarget)
}

func TestGetPublishedPageByURL_Cache(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	env.publishedPage(t, "Cached", "")
	ctx := context.Background()

	_, err := env.svc.Page.GetPublishedPageByURL(ctx, "cached", "en", true, time.Minute)
	require.NoError(t, err)
	_, err = env.svc.Page.GetPublishedPageByURL(ctx, "CACHED", "en", true, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, env.cache.Sets)
	assert.Equal(t, 1, env.cache.Hits)

	// a different layout flag is a different entry
	_, err = env.svc.Page.GetPublishedPageByURL(ctx, "cached", "en", false, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, env.cache.Sets)

	gets := env.cache.Gets
	_, err = env.svc.Page.GetPublishedPageByURL(ctx, "cached", "en", true, 0)
	require.NoError(t, err)
	assert.Equal(t, gets, env.cache.Gets)
}

func TestGetPublishedPageByURL_LayoutScripts(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	article := env.publishedPage(t, "Scripted", "")
	cmd := saveCommand(article, "Scripted")
	cmd.HeadJavaScript = "head()"
	cmd.FooterJavaScript = "foot()"
	env.save(t, cmd)

	withLayout, err := env.svc.Page.GetPublishedPageByURL(context.Background(), "scripted", "", true, 0)
	require.NoError(t, err)
	assert.Equal(t, "head()", withLayout.HeaderJavaScript)

	bare, err := env.svc.Page.GetPublishedPageByURL(context.Background(), "scripted", "", false, 0)
	require.NoError(t, err)
	assert.Empty(t, bare.HeaderJavaScript)
	assert.Empty(t, bare.FooterJavaScript)
}

func TestBlogNavigation(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	env.create(t, models.CreateArticleCommand{Title: "Blog", Content: "<p>s</p>", ArticleType: models.ArticleTypeBlogStream, Published: ptr(baseTime.Add(-96 * time.Hour))})

	var posts []*models.Article
	for i, title := range []string{"First Post", "Second Post", "Third Post"} {
		posts = append(posts, env.create(t, models.CreateArticleCommand{
			Title:       title,
			Content:     "<p>post</p>",
			ArticleType: models.ArticleTypeBlogPost,
			BlogKey:     "blog",
			Published:   ptr(baseTime.Add(time.Duration(i-3) * time.Hour)),
		}))
	}
	env.create(t, models.CreateArticleCommand{
		Title: "Future Post", Content: "<p>later</p>", ArticleType: models.ArticleTypeBlogPost,
		BlogKey: "blog", Published: ptr(baseTime.Add(time.Hour)),
	})

	page, err := env.svc.Page.GetPublishedPageByURL(context.Background(), "blog/second-post", "", true, 0)
	require.NoError(t, err)
	require.NotNil(t, page.Navigation)
	require.NotNil(t, page.Navigation.Previous)
	require.NotNil(t, page.Navigation.Next)
	assert.Equal(t, posts[0].ArticleNumber, page.Navigation.Previous.ArticleNumber)
	assert.Equal(t, posts[2].ArticleNumber, page.Navigation.Next.ArticleNumber)

	last, err := env.svc.Page.GetPublishedPageByURL(context.Background(), "blog/third-post", "", true, 0)
	require.NoError(t, err)
	require.NotNil(t, last.Navigation)
	assert.Nil(t, last.Navigation.Next, "unpublished posts are not linked")

	nav, err := env.svc.Page.GetAdjacentBlogPosts(context.Background(), &models.Article{ArticleType: models.ArticleTypeGeneral})
	require.NoError(t, err)
	assert.Nil(t, nav.Previous)
	assert.Nil(t, nav.Next)
}

func TestGetTableOfContents(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	for i, title := range []string{"Zeta", "Alpha", "Docs"} {
		env.create(t, models.CreateArticleCommand{
			Title:     title,
			Content:   "<p>" + title + "</p>",
			Published: ptr(baseTime.Add(time.Duration(-10+i) * time.Hour)),
		})
	}
	env.publishedPage(t, "API", "docs")
	env.create(t, models.CreateArticleCommand{Title: "Unpublished", Content: "<p>x</p>"})
	ctx := context.Background()

	toc, err := env.svc.Page.GetTableOfContents(ctx, "", 1, 2, false)
	require.NoError(t, err)
	assert.Equal(t, 3, toc.TotalCount)
	require.Len(t, toc.Items, 2)
	assert.Equal(t, "Alpha", toc.Items[0].Title)
	assert.Equal(t, "Docs", toc.Items[1].Title)

	toc, err = env.svc.Page.GetTableOfContents(ctx, "", 2, 2, false)
	require.NoError(t, err)
	require.Len(t, toc.Items, 1)
	assert.Equal(t, "Zeta", toc.Items[0].Title)

	toc, err = env.svc.Page.GetTableOfContents(ctx, "root", 1, 10, true)
	require.NoError(t, err)
	require.Len(t, toc.Items, 3)
	assert.Equal(t, []string{"Docs", "Alpha", "Zeta"}, []string{toc.Items[0].Title, toc.Items[1].Title, toc.Items[2].Title})

	toc, err = env.svc.Page.GetTableOfContents(ctx, "/docs/", 1, 10, false)
	require.NoError(t, err)
	require.Len(t, toc.Items, 1)
	assert.Equal(t, "docs/api", toc.Items[0].UrlPath)

	toc, err = env.svc.Page.GetTableOfContents(ctx, "", 9, 10, false)
	require.NoError(t, err)
	assert.Empty(t, toc.Items)
	assert.Equal(t, 3, toc.TotalCount)
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	env.create(t, models.CreateArticleCommand{Title: "Hello World", Content: "<p>greetings</p>", Published: ptr(baseTime.Add(-time.Hour))})
	env.create(t, models.CreateArticleCommand{Title: "Hello Again", Content: "<p>the WORLD again</p>", Published: ptr(baseTime.Add(-time.Hour))})
	env.create(t, models.CreateArticleCommand{Title: "Hello There", Content: "<p>nothing</p>", Published: ptr(baseTime.Add(-time.Hour))})
	env.create(t, models.CreateArticleCommand{Title: "Hello Draft World", Content: "<p>x</p>"})
	ctx := context.Background()

	items, err := env.svc.Page.Search(ctx, "hello world")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Hello Again", items[0].Title)
	assert.Equal(t, "Hello World", items[1].Title)

	items, err = env.svc.Page.Search(ctx, "   ")
	require.NoError(t, err)
	assert.Empty(t, items)
}
