package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/producer-tools/internal/deps"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	requirements []deps.Requirement
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(requirements []deps.Requirement) *HealthHandler {
	return &HealthHandler{requirements: requirements}
}

// Index describes the service and its endpoints.
func (h *HealthHandler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Producer Tools - YouTube Audio Converter API",
		"status":  "running",
		"endpoints": gin.H{
			"health":   "/health",
			"convert":  "/convert",
			"status":   "/status/<task_id>",
			"download": "/download/<task_id>",
		},
	})
}

// Health returns the health status of the service
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Dependencies reports which external binaries are installed. It answers
// 503 when a required one is missing.
func (h *HealthHandler) Dependencies(c *gin.Context) {
	statuses := deps.CheckBinaries(h.requirements)
	code := http.StatusOK
	status := "ok"
	if len(deps.Missing(statuses)) > 0 {
		code = http.StatusServiceUnavailable
		status = "degraded"
	}
	c.JSON(code, gin.H{
		"status":       status,
		"dependencies": statuses,
	})
}
