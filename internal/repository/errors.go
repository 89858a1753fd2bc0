package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/cms-article-engine/internal/models"
	"github.com/lib/pq"
)

const (
	constraintCatalogPath   = "idx_article_catalog_url_path"
	constraintNumberVersion = "idx_articles_number_version"
	constraintRedirectPath  = "idx_articles_redirect_source"
)

// ClassifyError maps driver failures onto the models error taxonomy:
// unique path violations are ErrInvalidOperation, serialization failures and
// duplicate version numbers are ErrConcurrencyConflict, connection-class
// failures and timeouts are ErrTransient. Other errors pass through.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrInvalidOperation) ||
		errors.Is(err, models.ErrConcurrencyConflict) ||
		errors.Is(err, models.ErrTransient) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", models.ErrTransient, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505":
			switch pqErr.Constraint {
			case constraintCatalogPath, constraintRedirectPath:
				return fmt.Errorf("%w: url path already in use", models.ErrInvalidOperation)
			case constraintNumberVersion:
				return fmt.Errorf("%w: %s", models.ErrConcurrencyConflict, pqErr.Message)
			}
			return fmt.Errorf("%w: %s already in use", models.ErrInvalidOperation, pqErr.Constraint)
		case pqErr.Code == "40001" || pqErr.Code == "40P01":
			return fmt.Errorf("%w: %s", models.ErrConcurrencyConflict, pqErr.Message)
		case pqErr.Code == "57014" || pqErr.Code.Class() == "08" || pqErr.Code.Class() == "53":
			return fmt.Errorf("%w: %s", models.ErrTransient, pqErr.Message)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", models.ErrTransient, err)
	}

	return err
}
