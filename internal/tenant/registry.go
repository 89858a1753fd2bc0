// Package tenant keeps the per-tenant databases, stores and services of the process.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cms-article-engine/internal/cache"
	"github.com/cms-article-engine/internal/cdn"
	"github.com/cms-article-engine/internal/clock"
	"github.com/cms-article-engine/internal/config"
	"github.com/cms-article-engine/internal/database"
	"github.com/cms-article-engine/internal/metrics"
	"github.com/cms-article-engine/internal/repository"
	"github.com/cms-article-engine/internal/scheduler"
	"github.com/cms-article-engine/internal/service"
)

// Tenant is one isolated content database and the services bound to it
type Tenant struct {
	Name     string
	DB       *database.DB
	Store    repository.Store
	Notifier cdn.Notifier
	Services *service.Services
}

// Registry holds the tenants served by this process
type Registry struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{tenants: make(map[string]*Tenant)}
}

// Register adds a tenant; names are unique
func (r *Registry) Register(t *Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tenants[t.Name]; exists {
		return fmt.Errorf("tenant %q already registered", t.Name)
	}
	r.tenants[t.Name] = t
	return nil
}

// Get returns a tenant by name
func (r *Registry) Get(name string) (*Tenant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[name]
	return t, ok
}

// Services resolves the services of a tenant
func (r *Registry) Services(name string) (*service.Services, bool) {
	t, ok := r.Get(name)
	if !ok {
		return nil, false
	}
	return t.Services, true
}

// All returns the tenants ordered by name
func (r *Registry) All() []*Tenant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]*Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// Targets returns one scheduler target per tenant
func (r *Registry) Targets() []scheduler.Target {
	all := r.All()
	targets := make([]scheduler.Target, 0, len(all))
	for _, t := range all {
		targets = append(targets, scheduler.Target{Name: t.Name, Store: t.Store, Notifier: t.Notifier})
	}
	return targets
}

// HealthCheck pings every tenant database; tenants without a database are healthy
func (r *Registry) HealthCheck(ctx context.Context) map[string]error {
	result := make(map[string]error)
	for _, t := range r.All() {
		if t.DB == nil {
			result[t.Name] = nil
			continue
		}
		result[t.Name] = t.DB.HealthCheck(ctx)
	}
	return result
}

// Close closes every tenant database
func (r *Registry) Close() error {
	var errs []error
	for _, t := range r.All() {
		if t.DB != nil {
			if err := t.DB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close tenant %s: %w", t.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Shared are the collaborators every tenant uses
type Shared struct {
	Redis    *redis.Client
	Notifier cdn.Notifier
	Metrics  *metrics.Metrics
	Clock    clock.Clock
}

// Open connects a tenant database, migrates it and builds its services
func Open(cfg *config.Config, tc config.TenantConfig, shared Shared, log zerolog.Logger) (*Tenant, error) {
	db, err := database.New(tc.Name, &tc.Database, log)
	if err != nil {
		return nil, fmt.Errorf("connect tenant %s: %w", tc.Name, err)
	}

	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tenant %s: %w", tc.Name, err)
	}

	var pageCache cache.PageCache = cache.NopCache{}
	if shared.Redis != nil {
		pageCache = cache.NewRedisCache(shared.Redis, tc.Name)
	}

	store := repository.NewStore(db)
	services := service.NewServices(service.Dependencies{
		Tenant:   tc.Name,
		Store:    store,
		Notifier: shared.Notifier,
		Cache:    pageCache,
		Clock:    shared.Clock,
		Metrics:  shared.Metrics,
		Save:     cfg.Save,
	}, log)

	return &Tenant{
		Name:     tc.Name,
		DB:       db,
		Store:    store,
		Notifier: shared.Notifier,
		Services: services,
	}, nil
}
