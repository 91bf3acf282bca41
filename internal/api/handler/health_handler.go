package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/research-crew/internal/jobs"
	"github.com/gin-gonic/gin"
)

const serviceName = "research-crew-api"

// HealthHandler reports liveness, database reachability and job counts.
type HealthHandler struct {
	logger   *slog.Logger
	registry *jobs.Registry
	database HealthChecker
}

// NewHealthHandler creates a new HealthHandler instance
func NewHealthHandler(deps *Dependencies) *HealthHandler {
	return &HealthHandler{
		logger:   deps.Logger,
		registry: deps.Registry,
		database: deps.Database,
	}
}

// Check handles GET /health
func (h *HealthHandler) Check(c *gin.Context) {
	counts := map[jobs.Status]int{
		jobs.StatusPending:  0,
		jobs.StatusRunning:  0,
		jobs.StatusComplete: 0,
		jobs.StatusError:    0,
	}
	records := h.registry.List()
	for _, rec := range records {
		counts[rec.Status]++
	}

	body := gin.H{
		"status":    "healthy",
		"service":   serviceName,
		"jobs":      len(records),
		"by_status": counts,
		"database":  "disabled",
	}

	if h.database == nil {
		c.JSON(http.StatusOK, body)
		return
	}

	if err := h.database.HealthCheck(c.Request.Context()); err != nil {
		h.logger.Warn("Database health check failed", slog.Any("error", err))
		body["status"] = "unhealthy"
		body["database"] = "unreachable"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}

	body["database"] = "ok"
	c.JSON(http.StatusOK, body)
}
