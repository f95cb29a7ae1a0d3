package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/drawgate/api/internal/database"
	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	redis           *database.Redis
	upstreamBaseURL string
}

// NewHealthHandler creates a new health handler. redis may be nil when the
// rehost cache is not configured.
func NewHealthHandler(redis *database.Redis, upstreamBaseURL string) *HealthHandler {
	return &HealthHandler{
		redis:           redis,
		upstreamBaseURL: upstreamBaseURL,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status       string            `json:"status"`
	Service      string            `json:"service"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
}

// Health returns basic health status
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "drawgate-api",
		"version": "0.1.0",
	})
}

// DeepHealth returns health status with dependency checks
func (h *HealthHandler) DeepHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	deps := make(map[string]string)
	allHealthy := true

	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			deps["redis"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			deps["redis"] = "healthy"
		}
	} else {
		deps["redis"] = "not configured"
	}

	if h.upstreamBaseURL != "" {
		if h.checkUpstream(ctx) {
			deps["upstream"] = "healthy"
		} else {
			deps["upstream"] = "unhealthy"
			allHealthy = false
		}
	} else {
		deps["upstream"] = "not configured"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:       status,
		Service:      "drawgate-api",
		Version:      "0.1.0",
		Dependencies: deps,
	})
}

// checkUpstream considers the provider reachable when its base URL answers
// anything below 500.
func (h *HealthHandler) checkUpstream(ctx context.Context) bool {
	client := &http.Client{Timeout: 3 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.upstreamBaseURL, nil)
	if err != nil {
		return false
	}

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < http.StatusInternalServerError
}
