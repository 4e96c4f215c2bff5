package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthResponse is returned by HealthCheck
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Database string `json:"database,omitempty"`
	Error    string `json:"error,omitempty"`
}

// HealthCheck reports service and database health
func (c *Controller) HealthCheck(ctx echo.Context) error {
	resp := HealthResponse{Status: "healthy", Version: c.deps.Version}
	if c.deps.DB != nil {
		pctx, cancel := context.WithTimeout(ctx.Request().Context(), 2*time.Second)
		defer cancel()
		if err := c.deps.DB.PingContext(pctx); err != nil {
			resp.Status = "unhealthy"
			resp.Database = "disconnected"
			resp.Error = err.Error()
			return ctx.JSON(http.StatusServiceUnavailable, resp)
		}
		resp.Database = "connected"
	}
	return ctx.JSON(http.StatusOK, resp)
}
