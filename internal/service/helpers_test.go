package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/cms-article-engine/internal/config"
	"github.com/cms-article-engine/internal/mocks"
	"github.com/cms-article-engine/internal/models"
	"github.com/cms-article-engine/internal/service"
)

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// plainMarkers leaves content untouched so assertions can compare it verbatim
type plainMarkers struct{}

func (plainMarkers) EnsureEditableMarkers(html string) string { return html }

type testEnv struct {
	store    *mocks.MemoryStore
	clock    *mocks.FakeClock
	notifier *mocks.RecordingNotifier
	cache    *mocks.MemoryPageCache
	svc      *service.Services
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    mocks.NewMemoryStore(),
		clock:    mocks.NewFakeClock(baseTime),
		notifier: mocks.NewRecordingNotifier(),
		cache:    mocks.NewMemoryPageCache(),
	}
	env.svc = service.NewServices(service.Dependencies{
		Tenant:   "test",
		Store:    env.store,
		Notifier: env.notifier,
		Cache:    env.cache,
		Clock:    env.clock,
		Markers:  plainMarkers{},
		Save:     config.SaveConfig{Timeout: time.Second, MaxAttempts: 3},
	}, zerolog.Nop())
	return env
}

func ptr(t time.Time) *time.Time { return &t }

// create adds an article and returns its row
func (e *testEnv) create(t *testing.T, cmd models.CreateArticleCommand) *models.Article {
	t.Helper()
	if cmd.UserID == "" {
		cmd.UserID = "author"
	}
	result, err := e.svc.Article.CreateArticle(context.Background(), &cmd)
	require.NoError(t, err)
	require.True(t, result.IsSuccess, "create failed: %+v", result)
	return result.Data.Model
}

// seedRoot creates the home page as article 1
func (e *testEnv) seedRoot(t *testing.T) *models.Article {
	return e.create(t, models.CreateArticleCommand{Title: "Home", Content: "<p>home</p>", Published: ptr(baseTime.Add(-48 * time.Hour))})
}

// publishedPage creates a published general page
func (e *testEnv) publishedPage(t *testing.T, title, parent string) *models.Article {
	return e.create(t, models.CreateArticleCommand{
		Title:      title,
		Content:    "<p>" + title + "</p>",
		ParentPath: parent,
		Published:  ptr(baseTime.Add(-24 * time.Hour)),
	})
}

// saveCommand builds a command that keeps the article as it is apart from the title
func saveCommand(a *models.Article, title string) *models.SaveArticleCommand {
	return &models.SaveArticleCommand{
		ArticleNumber: a.ArticleNumber,
		Title:         title,
		Content:       a.Content,
		ArticleType:   a.ArticleType,
		Published:     a.Published,
		Expires:       a.Expires,
		UserID:        "editor",
	}
}

func (e *testEnv) save(t *testing.T, cmd *models.SaveArticleCommand) *models.Article {
	t.Helper()
	result, err := e.svc.Article.SaveArticle(context.Background(), cmd)
	require.NoError(t, err)
	require.True(t, result.IsSuccess, "save failed: %+v", result)
	return result.Data.Model
}

func redirectMap(store *mocks.MemoryStore) map[string]string {
	m := make(map[string]string)
	for _, r := range store.Redirects() {
		m[r.UrlPath] = r.RedirectTarget
	}
	return m
}
