package router

import (
	"replay_worker/internal/replay/api/handlers"
	"replay_worker/pkg/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

// RegisterRoutes 註冊 worker 的管理路由
func RegisterRoutes(app *fiber.App, healthHandler *handlers.HealthHandler, m *metrics.WorkerMetrics) {
	app.Get("/healthz", healthHandler.Healthz)
	app.Post("/debug", healthHandler.SetDebug)
	if m != nil {
		app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	}
}
