package server

import (
	"github.com/gofiber/fiber/v2"

	"navigator/internal/core/job"
	"navigator/internal/core/navigate"
	"navigator/internal/health"
)

type Dependencies struct {
	Job      *job.JobService
	Navigate *navigate.Service
	Checks   map[string]health.Check
}

func RegisterRoutes(app *fiber.App, d Dependencies) *health.HealthHandler {
	healthHandler := health.NewHealthHandler(d.Checks)
	app.Get("/v1/health", health.HealthLimiter(), healthHandler.HandleHealth)

	api := app.Group("/v1")

	h := navigate.NewHandler(d.Navigate, d.Job)
	api.Post("/navigate", h.HandleCreate)
	api.Get("/navigate/:jobId", h.HandleGet)
	api.Get("/plan", h.HandlePlan)
	api.Get("/metrics", h.HandleMetrics)
	api.Get("/history", h.HandleHistory)
	api.Delete("/history", h.HandleClearHistory)

	return healthHandler
}
