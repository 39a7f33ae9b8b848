// Package engine assembles the navigation stack from configuration. The HTTP
// server and the navctl CLI share it so both run the same agent.
package engine

import (
	"fmt"

	"navigator/internal/config"
	"navigator/internal/core/agent"
	"navigator/internal/core/artifact"
	"navigator/internal/core/cache"
	"navigator/internal/core/executor"
	"navigator/internal/core/extract"
	"navigator/internal/core/planner"
	"navigator/internal/core/retry"
	"navigator/internal/core/session"
	"navigator/internal/core/sites"
	"navigator/internal/logger"
	"navigator/internal/platform/eino"
)

type Engine struct {
	Catalog *sites.Catalog
	Planner *planner.Planner
	Pool    *session.Pool
	Cache   *cache.Cache
	Sink    artifact.Sink
	Agent   *agent.Agent
}

// Build wires the agent and its collaborators. store may be nil, in which
// case the result cache stays in process.
func Build(cfg config.Config, store cache.Store) (*Engine, error) {
	log := logger.New("Engine")

	catalog, err := sites.Load(cfg.SearchEngine)
	if err != nil {
		return nil, fmt.Errorf("load site catalog: %w", err)
	}

	launcher := session.NewPlaywrightLauncher(session.PlaywrightOptions{
		Headless:      cfg.Headless,
		SlowMo:        cfg.SlowMo,
		BlockTrackers: true,
	})
	pool := session.NewPool(launcher, session.Options{
		Size:         cfg.PoolSize,
		LeaseTimeout: cfg.LeaseTimeout,
		Strategy:     session.StrategyDesktop,
	})

	strategies := extract.Default()
	if cfg.LLMExtraction {
		svc, err := eino.NewService(eino.Config{
			Provider: cfg.LLMProvider,
			APIKey:   cfg.GeminiAPIKey,
			Model:    cfg.DefaultLLMModel,
		})
		if err != nil {
			return nil, fmt.Errorf("init llm extraction: %w", err)
		}
		strategies = append(strategies, extract.LLM{Model: svc})
		log.LogInfof("LLM extraction enabled (%s/%s)", cfg.LLMProvider, cfg.DefaultLLMModel)
	}

	sink, err := artifact.New(cfg)
	if err != nil {
		return nil, err
	}

	c := cache.New(cache.Options{
		TTL:        cfg.CacheTTL,
		FailureTTL: cfg.CacheFailureTTL,
		Capacity:   cfg.CacheCapacity,
		Store:      store,
	})
	p := planner.New(catalog, nil)

	a := agent.New(agent.Deps{
		Pool:    pool,
		Catalog: catalog,
		Planner: p,
		Executor: executor.New(executor.Options{
			ActionTimeout: cfg.ActionTimeout,
			NavRate:       cfg.NavRatePerSec,
		}),
		Extractor: extract.New(strategies...),
		Cache:     c,
		Sink:      sink,
	}, agent.Options{
		MaxSteps:      cfg.MaxSteps,
		Timeout:       cfg.RunTimeout,
		Retry:         retry.Default(cfg.RetryBudget),
		ActionTimeout: cfg.ActionTimeout,
	})

	return &Engine{
		Catalog: catalog,
		Planner: p,
		Pool:    pool,
		Cache:   c,
		Sink:    sink,
		Agent:   a,
	}, nil
}

// Close shuts idle browsers and stops the Playwright driver.
func (e *Engine) Close() error { return e.Pool.Close() }
