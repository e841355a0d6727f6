package handlers

import (
	"net/http"
	"strconv"

	"replay_worker/internal/replay/app"
	"replay_worker/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// HealthHandler definition health / debug handler
type HealthHandler struct {
	Liveness *app.Liveness
	Log      *logger.LogInfo
}

// NewHealthHandler create a HealthHandler
func NewHealthHandler(liveness *app.Liveness, log *logger.LogInfo) *HealthHandler {
	return &HealthHandler{Liveness: liveness, Log: log}
}

// Healthz 回報 consumer 狀態，長時間未輪詢且不在處理工作時回 503
func (h *HealthHandler) Healthz(c *fiber.Ctx) error {
	report := h.Liveness.Report()
	if !report.Healthy {
		return c.Status(http.StatusServiceUnavailable).JSON(report)
	}
	return c.Status(http.StatusOK).JSON(report)
}

// SetDebug 動態切換 debug log，?enable=true|false
func (h *HealthHandler) SetDebug(c *fiber.Ctx) error {
	enable, err := strconv.ParseBool(c.Query("enable"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "enable must be true or false"})
	}
	h.Log.SetDebugMode(enable)
	h.Log.Info("debug mode changed", zap.Bool("enable", enable))
	return c.Status(http.StatusOK).JSON(fiber.Map{"debug": enable})
}
