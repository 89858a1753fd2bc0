package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cms-article-engine/internal/models"
	"github.com/cms-article-engine/internal/repository"
	"github.com/rs/zerolog"
)

// catalogService is the concrete implementation of CatalogService
type catalogService struct {
	store repository.Store
	log   zerolog.Logger
}

// newCatalogService creates a new CatalogService
func newCatalogService(store repository.Store, log zerolog.Logger) *catalogService {
	return &catalogService{
		store: store,
		log:   log.With().Str("service", "catalog").Logger(),
	}
}

// StreamCatalog streams the catalog in the specified format
func (s *catalogService) StreamCatalog(ctx context.Context, w http.ResponseWriter, format string) error {
	s.log.Info().Str("format", format).Msg("Starting catalog export")

	switch format {
	case "ndjson":
		return s.streamNDJSON(ctx, w)
	case "json":
		return s.streamJSON(ctx, w)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func (s *catalogService) streamNDJSON(ctx context.Context, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition", "attachment; filename=catalog.ndjson")

	flusher, _ := w.(http.Flusher)
	count := 0

	err := s.store.Repositories().Catalog.StreamAll(ctx, func(entry *models.CatalogEntry) error {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		w.Write(data)
		w.Write([]byte("\n"))
		count++

		// Flush every 100 records for streaming
		if count%100 == 0 && flusher != nil {
			flusher.Flush()
		}
		return nil
	})

	s.log.Info().Int("count", count).Msg("Catalog export completed")
	return err
}

func (s *catalogService) streamJSON(ctx context.Context, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=catalog.json")

	w.Write([]byte("["))
	first := true

	err := s.store.Repositories().Catalog.StreamAll(ctx, func(entry *models.CatalogEntry) error {
		if !first {
			w.Write([]byte(","))
		}
		first = false

		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		w.Write(data)
		return nil
	})

	w.Write([]byte("]"))
	return err
}

// GetCount returns the number of catalog entries
func (s *catalogService) GetCount(ctx context.Context) (int, error) {
	return s.store.Repositories().Catalog.Count(ctx)
}
