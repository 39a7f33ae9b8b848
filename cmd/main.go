package main

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"navigator/internal/config"
	"navigator/internal/core/job"
	"navigator/internal/core/navigate"
	"navigator/internal/engine"
	"navigator/internal/health"
	"navigator/internal/logger"
	rds "navigator/internal/platform/redis"
	tasks "navigator/internal/platform/tasks"
	"navigator/internal/server"
	"navigator/internal/worker"
)

func main() {
	cfg := config.Load()
	log.Printf("[navigator] starting at %s (env=%s)\n", cfg.HTTPAddr, cfg.AppEnv)

	logr := logger.New("main")

	// Redis client
	redisSvc, err := rds.New(rds.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer redisSvc.Close()

	// Asynq client and server
	taskClient := tasks.New(redisSvc)
	defer taskClient.Close()
	asynqServer := worker.Server(redisSvc.AsynqRedisOpt(), cfg.WorkerConcurrency)

	// Browser pool, cache and agent
	eng, err := engine.Build(cfg, redisSvc)
	if err != nil {
		log.Fatalf("failed to build navigation engine: %v", err)
	}

	jobSvc := job.NewJobService(redisSvc)
	navSvc := navigate.NewService(navigate.Deps{
		Agent:        eng.Agent,
		Catalog:      eng.Catalog,
		Planner:      eng.Planner,
		Jobs:         jobSvc,
		Tasks:        taskClient,
		History:      redisSvc,
		HistoryLimit: cfg.HistoryLimit,
		MaxSteps:     cfg.MaxSteps,
		Timeout:      cfg.RunTimeout,
		PoolStats:    eng.Pool.Stats,
		CacheStats:   eng.Cache.Stats,
	})

	// Worker mux
	mux := worker.NewMux()
	mux.HandleFunc(tasks.TaskTypeNavigate, navSvc.HandleTask)

	if err := asynqServer.Start(mux.Mux()); err != nil {
		log.Fatalf("failed to start worker: %v", err)
	}

	// HTTP server
	app := fiber.New(fiber.Config{
		AppName: "Navigator Engine",
		JSONEncoder: func(v interface{}) ([]byte, error) {
			var buf bytes.Buffer
			encoder := json.NewEncoder(&buf)
			encoder.SetEscapeHTML(false)
			if err := encoder.Encode(v); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
	})
	// Local screenshots are written under DATA_DIR and served from /files
	app.Static("/files", cfg.DataDir)

	healthHandler := server.RegisterRoutes(app, server.Dependencies{
		Job:      jobSvc,
		Navigate: navSvc,
		Checks: map[string]health.Check{
			"redis":        redisSvc.HealthCheck,
			"browser_pool": eng.Pool.HealthCheck,
		},
	})
	healthHandler.SetReady()

	// Graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		logr.LogInfo("Shutting down...")
		asynqServer.Shutdown()
		_ = app.ShutdownWithTimeout(5 * time.Second)
	}()

	if err := app.Listen(cfg.HTTPAddr); err != nil {
		log.Fatalf("server listen: %v", err)
	}
	if err := eng.Close(); err != nil {
		logr.LogWarnf("closing browser pool: %v", err)
	}
}
