package handler

import (
	"net/http"

	"Amoura/internal/hub"

	"github.com/gin-gonic/gin"
)

// MonitorHandler exposes hub statistics.
type MonitorHandler struct {
	monitorService *hub.MonitorService
}

func NewMonitorHandler(monitorService *hub.MonitorService) *MonitorHandler {
	return &MonitorHandler{monitorService: monitorService}
}

// GetHubStats returns current hub statistics.
func (h *MonitorHandler) GetHubStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitorService.GetStats())
}
