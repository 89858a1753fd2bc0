package service_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cms-article-engine/internal/models"
)

func TestCatalogService_StreamCatalog(t *testing.T) {
	env := newTestEnv(t)
	env.seedRoot(t)
	env.publishedPage(t, "About", "")
	env.publishedPage(t, "Contact", "")
	ctx := context.Background()

	t.Run("ndjson", func(t *testing.T) {
		w := httptest.NewRecorder()
		require.NoError(t, env.svc.Catalog.StreamCatalog(ctx, w, "ndjson"))

		assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))
		lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
		require.Len(t, lines, 3)

		var entry models.CatalogEntry
		require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
		assert.Equal(t, "about", entry.UrlPath)
	})

	t.Run("json", func(t *testing.T) {
		w := httptest.NewRecorder()
		require.NoError(t, env.svc.Catalog.StreamCatalog(ctx, w, "json"))

		var entries []models.CatalogEntry
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
		assert.Len(t, entries, 3)
	})

	t.Run("unsupported format", func(t *testing.T) {
		err := env.svc.Catalog.StreamCatalog(ctx, httptest.NewRecorder(), "csv")
		assert.Error(t, err)
	})

	count, err := env.svc.Catalog.GetCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
