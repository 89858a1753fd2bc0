// Package scheduler periodically activates scheduled article versions and
// retires superseded or expired ones across all tenant databases.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cms-article-engine/internal/cdn"
	"github.com/cms-article-engine/internal/clock"
	"github.com/cms-article-engine/internal/config"
	"github.com/cms-article-engine/internal/metrics"
	"github.com/cms-article-engine/internal/repository"
)

// Target is one tenant content store swept by the scheduler
type Target struct {
	Name     string
	Store    repository.Store
	Notifier cdn.Notifier
}

// SweepReport summarizes one tenant sweep
type SweepReport struct {
	Tenant    string        `json:"tenant"`
	Examined  int           `json:"examined"`
	Activated int           `json:"activated"`
	Retired   int           `json:"retired"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

// Scheduler runs the version activation sweep on a cron schedule
type Scheduler struct {
	targets []Target
	cfg     config.SchedulerConfig
	clock   clock.Clock
	metrics *metrics.Metrics
	cron    *cron.Cron
	log     zerolog.Logger

	mu      sync.Mutex
	running bool
}

// New creates a scheduler; the cron spec is validated here
func New(targets []Target, cfg config.SchedulerConfig, clk clock.Clock, m *metrics.Metrics, log zerolog.Logger) (*Scheduler, error) {
	if clk == nil {
		clk = clock.System{}
	}
	if cfg.MaxConcurrentTenants <= 0 {
		cfg.MaxConcurrentTenants = 1
	}
	for i := range targets {
		if targets[i].Notifier == nil {
			targets[i].Notifier = cdn.NopNotifier{}
		}
	}

	log = log.With().Str("component", "scheduler").Logger()
	cronLog := cronLogger{log: log}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	s := &Scheduler{
		targets: targets,
		cfg:     cfg,
		clock:   clk,
		metrics: m,
		cron:    c,
		log:     log,
	}

	if _, err := c.AddFunc(cfg.Spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid scheduler spec %q: %w", cfg.Spec, err)
	}
	return s, nil
}

// Start begins running sweeps on schedule
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	s.log.Info().Str("spec", s.cfg.Spec).Int("tenants", len(s.targets)).Msg("Scheduler started")
}

// Stop stops scheduling and waits for a running sweep, or until ctx is done
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		s.log.Info().Msg("Scheduler stopped")
	case <-ctx.Done():
		s.log.Warn().Msg("Scheduler stop timed out with a sweep in progress")
	}
}

// RunOnce sweeps every tenant, at most MaxConcurrentTenants at a time.
// A failing tenant never stops the others.
func (s *Scheduler) RunOnce(ctx context.Context) []SweepReport {
	reports := make([]SweepReport, len(s.targets))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrentTenants)
	for i, target := range s.targets {
		i, target := i, target
		g.Go(func() error {
			reports[i] = s.sweepTenant(gCtx, target)
			return nil
		})
	}
	_ = g.Wait()

	return reports
}

// sweepTenant reconciles every candidate article of one tenant
func (s *Scheduler) sweepTenant(ctx context.Context, target Target) (report SweepReport) {
	start := time.Now()
	report.Tenant = target.Name
	log := s.log.With().Str("tenant", target.Name).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Tenant sweep panicked - recovered")
			report.Err = fmt.Errorf("sweep panicked: %v", r)
			s.metrics.SchedulerError(target.Name)
		}
		report.Duration = time.Since(start)
		s.metrics.SweepCompleted(target.Name, report.Duration, report.Activated)
	}()

	now := s.clock.Now()
	numbers, err := target.Store.Repositories().Article.ListScheduledArticleNumbers(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list scheduled articles")
		report.Err = repository.ClassifyError(err)
		s.metrics.SchedulerError(target.Name)
		return report
	}

	for _, n := range numbers {
		if ctx.Err() != nil {
			report.Err = ctx.Err()
			break
		}
		report.Examined++

		outcome, err := s.reconcileArticle(ctx, target, n, now)
		if err != nil {
			report.Failed++
			s.metrics.SchedulerError(target.Name)
			log.Error().Err(err).Int("article_number", n).Msg("Failed to reconcile article")
			continue
		}
		report.Retired += outcome.retired
		if outcome.activated {
			report.Activated++
		}
	}

	log.Info().
		Int("examined", report.Examined).
		Int("activated", report.Activated).
		Int("retired", report.Retired).
		Int("failed", report.Failed).
		Dur("duration", time.Since(start)).
		Msg("Tenant sweep completed")

	return report
}
