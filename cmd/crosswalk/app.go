package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/agenthands/crosswalk/internal/catalog"
	"github.com/agenthands/crosswalk/internal/config"
	"github.com/agenthands/crosswalk/internal/core"
	"github.com/agenthands/crosswalk/internal/core/coverage"
	"github.com/agenthands/crosswalk/internal/core/importer"
	"github.com/agenthands/crosswalk/internal/core/matching"
	"github.com/agenthands/crosswalk/internal/core/populate"
	"github.com/agenthands/crosswalk/internal/core/projection"
	"github.com/agenthands/crosswalk/internal/driver"
	"github.com/agenthands/crosswalk/internal/llm"
	"github.com/agenthands/crosswalk/internal/logger"
	"github.com/agenthands/crosswalk/internal/metrics"
	"github.com/agenthands/crosswalk/internal/store"
)

// app holds the wired components. Engine and Populator are nil when the
// command did not ask for a matcher.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	metrics   *metrics.Metrics
	store     *store.Store
	coverage  *coverage.Calculator
	importer  *importer.Importer
	engine    *core.Engine
	projector *projection.Projector
	populator *populate.Populator

	closers []func()
}

func loadConfig(opts *rootOptions) (*config.Config, error) {
	if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", opts.envFile, err)
	}

	path := opts.configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config/config.toml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, opts *rootOptions, withMatcher bool) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &app{cfg: cfg, log: log, metrics: metrics.New()}
	a.closers = append(a.closers, log.Sync)

	if err := a.openStore(ctx); err != nil {
		a.close()
		return nil, err
	}
	a.buildCoverage(ctx)
	a.importer = importer.New(a.store, a.coverage, log, a.metrics)

	if withMatcher {
		if err := a.buildEngine(ctx); err != nil {
			a.close()
			return nil, err
		}
		a.buildProjector(ctx)
		if err := a.buildPopulator(); err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	s, err := store.Open(a.cfg.Database, a.log)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { _ = s.Close() })
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	a.store = s
	return nil
}

func (a *app) buildCoverage(ctx context.Context) {
	var cache coverage.Cache
	if a.cfg.Coverage.Cache == "redis" {
		rc, err := coverage.NewRedisCache(ctx, a.cfg.Coverage.RedisAddr, a.cfg.Coverage.RedisKey, a.cfg.Coverage.TTL, a.log)
		if err != nil {
			a.log.Warn("coverage cache unavailable, computing on every request", "error", err)
		} else {
			cache = rc
			a.closers = append(a.closers, func() { _ = rc.Close() })
		}
	}
	a.coverage = coverage.NewCalculator(a.store, cache, a.log)
}

func (a *app) buildEngine(ctx context.Context) error {
	gen, emb, err := llm.NewClient(ctx, a.cfg.LLM, a.log)
	if err != nil {
		return fmt.Errorf("llm client: %w", err)
	}
	m, err := matching.New(a.cfg.Matcher.Strategy, gen, emb, matching.Options{
		Retry:        matching.RetryConfigFrom(a.cfg.Matcher),
		MaxTextChars: a.cfg.Matcher.MaxTextChars,
		Prompts:      a.cfg.Prompts,
		Log:          a.log,
		Metrics:      a.metrics,
	})
	if err != nil {
		return err
	}
	a.engine = core.NewEngine(a.store, m, a.coverage, core.OptionsFrom(a.cfg.Mapping), a.log, a.metrics)
	a.log.Info("matcher ready",
		"provider", a.cfg.LLM.Provider,
		"strategy", a.cfg.Matcher.Strategy,
		"threshold", a.engine.Threshold(),
	)
	return nil
}

// buildProjector leaves the projector disabled when Memgraph is not
// configured or not reachable.
func (a *app) buildProjector(ctx context.Context) {
	var d driver.GraphDriver
	if a.cfg.Memgraph.URI != "" {
		md, err := driver.NewMemgraphDriver(ctx, a.cfg.Memgraph.URI, a.cfg.Memgraph.User, a.cfg.Memgraph.Password, a.log)
		if err != nil {
			a.log.Warn("memgraph unavailable, graph projection disabled", "error", err)
		} else {
			d = md
			a.closers = append(a.closers, func() { _ = md.Close(context.Background()) })
		}
	}
	a.projector = projection.New(d, a.store, a.cfg.Memgraph.BatchSize, a.log, a.metrics)
}

func (a *app) buildPopulator() error {
	if a.cfg.Catalog.BaseURL == "" {
		return nil
	}
	c, err := catalog.New(a.cfg.Catalog, a.log)
	if err != nil {
		return err
	}
	a.populator = populate.New(c, a.store, a.importer, a.coverage, a.engine, a.projector, a.cfg.Mapping.SyncGraph, a.log, a.metrics)
	return nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
