// Command migrate applies schema migrations to every tenant database.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/cms-article-engine/internal/config"
	"github.com/cms-article-engine/internal/database"
	"github.com/cms-article-engine/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type migrateFunc func(db *database.DB, path string) error

func newRootCmd() *cobra.Command {
	var tenantName string

	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply schema migrations to tenant databases",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&tenantName, "tenant", "", "only migrate this tenant")

	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return forEachTenant(tenantName, func(db *database.DB, path string) error {
				return db.RunMigrations(path)
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return forEachTenant(tenantName, func(db *database.DB, path string) error {
				return db.MigrateDown(path)
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "goto <version>",
		Short: "Migrate up or down to a specific version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			return forEachTenant(tenantName, func(db *database.DB, path string) error {
				return db.MigrateToVersion(path, uint(version))
			})
		},
	})

	return root
}

// forEachTenant runs fn against every configured tenant, or only the named one
func forEachTenant(only string, fn migrateFunc) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log)

	matched := false
	for _, tc := range cfg.Tenants {
		if only != "" && tc.Name != only {
			continue
		}
		matched = true
		if err := migrateTenant(cfg, tc, fn, log); err != nil {
			return err
		}
	}
	if !matched {
		return fmt.Errorf("unknown tenant %q", only)
	}
	return nil
}

func migrateTenant(cfg *config.Config, tc config.TenantConfig, fn migrateFunc, log zerolog.Logger) error {
	db, err := database.New(tc.Name, &tc.Database, log)
	if err != nil {
		return fmt.Errorf("connect tenant %s: %w", tc.Name, err)
	}
	defer db.Close()

	if err := fn(db, cfg.MigrationsPath); err != nil {
		return fmt.Errorf("tenant %s: %w", tc.Name, err)
	}
	log.Info().Str("tenant", tc.Name).Msg("Tenant migrated")
	return nil
}
