package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type healthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// HealthHandler serves liveness, readiness, and metrics endpoints.
type HealthHandler struct {
	redis  *redis.Client
	logger *logrus.Logger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(redis *redis.Client, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{redis: redis, logger: logger}
}

// GetHealth returns the basic liveness status.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	response := healthStatus{
		Status:    "ok",
		Service:   "allocator",
		Timestamp: time.Now(),
		Checks:    make(map[string]string),
	}

	if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
		response.Status = "unhealthy"
		response.Checks["redis"] = "failed: " + err.Error()
	} else {
		response.Checks["redis"] = "ok"
	}

	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

// GetReady returns the readiness status.
func (h *HealthHandler) GetReady(c *gin.Context) {
	response := healthStatus{
		Status:    "ready",
		Service:   "allocator",
		Timestamp: time.Now(),
		Checks:    make(map[string]string),
	}

	if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
		response.Status = "not_ready"
		response.Checks["redis"] = "failed: " + err.Error()
	} else {
		response.Checks["redis"] = "ok"
	}

	statusCode := http.StatusOK
	if response.Status != "ready" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

// GetMetrics returns Redis key counters (total keys and cached runs).
func (h *HealthHandler) GetMetrics(c *gin.Context) {
	metrics := map[string]interface{}{
		"service":   "allocator",
		"timestamp": time.Now(),
	}

	if dbSize, err := h.redis.DBSize(c.Request.Context()).Result(); err == nil {
		metrics["cache"] = map[string]interface{}{"total_keys": dbSize}
	}

	if keys, err := h.redis.Keys(c.Request.Context(), "allocation:*").Result(); err == nil {
		metrics["allocation_cache"] = map[string]interface{}{"cached_runs": len(keys)}
	}

	c.JSON(http.StatusOK, metrics)
}
