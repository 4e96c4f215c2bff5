package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/birdhomie/internal/scheduler"
)

// RunResponse reports the outcome of a manual task run
type RunResponse struct {
	TaskType string `json:"task_type"`
	RunID    uint   `json:"run_id,omitempty"`
	Acquired bool   `json:"acquired"`
	Error    string `json:"error,omitempty"`
}

// ListTaskRuns handles GET /tasks?type=&limit=
func (c *Controller) ListTaskRuns(ctx echo.Context) error {
	taskType := ctx.QueryParam("type")
	if taskType == "" {
		taskType = scheduler.TaskFileProcessor
	}
	limit, err := queryInt(ctx, "limit", 20)
	if err != nil {
		return c.HandleError(ctx, err, "invalid limit", http.StatusBadRequest)
	}
	runs, err := c.deps.TaskRuns.ListRecent(ctx.Request().Context(), taskType, min(max(limit, 1), maxPageSize))
	if err != nil {
		return c.handleDomainError(ctx, err, "failed to list task runs")
	}
	return ctx.JSON(http.StatusOK, runs)
}

// RunTask handles POST /tasks/:type/run. The run is synchronous; a task
// already held by another runner answers 409.
func (c *Controller) RunTask(ctx echo.Context) error {
	if c.deps.Tasks == nil {
		return c.HandleError(ctx, nil, "task runner not available", http.StatusServiceUnavailable)
	}
	taskType := ctx.Param("type")
	res, err := c.deps.Tasks.RunNow(ctx.Request().Context(), taskType)
	resp := RunResponse{TaskType: taskType, RunID: res.RunID, Acquired: res.Acquired}
	switch {
	case err != nil && !res.Acquired:
		return c.handleDomainError(ctx, err, "failed to run task")
	case !res.Acquired:
		resp.Error = "task already running"
		return ctx.JSON(http.StatusConflict, resp)
	case err != nil:
		resp.Error = err.Error()
		return ctx.JSON(http.StatusInternalServerError, resp)
	}
	return ctx.JSON(http.StatusOK, resp)
}
