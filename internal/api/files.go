package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/birdhomie/internal/datastore/entities"
	"github.com/tphakala/birdhomie/internal/datastore/repository"
	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/logger"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

var fileStatuses = map[entities.FileStatus]bool{
	entities.FileStatusPending:    true,
	entities.FileStatusProcessing: true,
	entities.FileStatusSuccess:    true,
	entities.FileStatusFailed:     true,
	entities.FileStatusIgnored:    true,
}

// MergeRequest names the file a duplicate is merged into
type MergeRequest struct {
	TargetFileID uint `json:"target_file_id"`
}

// ListFiles handles GET /files?status=&limit=&offset=
func (c *Controller) ListFiles(ctx echo.Context) error {
	filter := repository.FileFilter{Limit: defaultPageSize}
	if s := ctx.QueryParam("status"); s != "" {
		status := entities.FileStatus(s)
		if !fileStatuses[status] {
			return c.HandleError(ctx, nil, "invalid status: "+s, http.StatusBadRequest)
		}
		filter.Status = status
	}
	var err error
	if filter.Limit, err = queryInt(ctx, "limit", defaultPageSize); err != nil {
		return c.HandleError(ctx, err, "invalid limit", http.StatusBadRequest)
	}
	filter.Limit = min(max(filter.Limit, 1), maxPageSize)
	if filter.Offset, err = queryInt(ctx, "offset", 0); err != nil || filter.Offset < 0 {
		return c.HandleError(ctx, err, "invalid offset", http.StatusBadRequest)
	}

	files, err := c.deps.Files.List(ctx.Request().Context(), filter)
	if err != nil {
		return c.handleDomainError(ctx, err, "failed to list files")
	}
	return ctx.JSON(http.StatusOK, files)
}

// GetFile handles GET /files/:id
func (c *Controller) GetFile(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return c.handleDomainError(ctx, err, "invalid file id")
	}
	f, err := c.deps.Files.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return c.handleDomainError(ctx, err, "failed to get file")
	}
	return ctx.JSON(http.StatusOK, f)
}

// ListFileVisits handles GET /files/:id/visits
func (c *Controller) ListFileVisits(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return c.handleDomainError(ctx, err, "invalid file id")
	}
	if _, err := c.deps.Files.GetByID(ctx.Request().Context(), id); err != nil {
		return c.handleDomainError(ctx, err, "failed to get file")
	}
	visits, err := c.deps.Visits.ListByFile(ctx.Request().Context(), id)
	if err != nil {
		return c.handleDomainError(ctx, err, "failed to list visits")
	}
	return ctx.JSON(http.StatusOK, visits)
}

// RetryFile handles POST /files/:id/retry; only failed files can be retried
func (c *Controller) RetryFile(ctx echo.Context) error {
	return c.fileTransition(ctx, "retry", c.deps.Files.Retry)
}

// UnignoreFile handles POST /files/:id/unignore
func (c *Controller) UnignoreFile(ctx echo.Context) error {
	return c.fileTransition(ctx, "unignore", c.deps.Files.Unignore)
}

func (c *Controller) fileTransition(ctx echo.Context, action string, fn func(context.Context, uint) error) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return c.handleDomainError(ctx, err, "invalid file id")
	}
	if err := fn(ctx.Request().Context(), id); err != nil {
		if errors.IsCategory(err, errors.CategoryValidation) {
			return c.HandleError(ctx, err, "file cannot be "+action+"d in its current state", http.StatusConflict)
		}
		return c.handleDomainError(ctx, err, "failed to "+action+" file")
	}
	c.log.Info("file status changed", logger.String("action", action), logger.Int64("file_id", int64(id)))
	return c.respondFile(ctx, id)
}

// MergeFile handles POST /files/:id/merge. The file becomes an ignored
// duplicate of the target and its visits are hidden.
func (c *Controller) MergeFile(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return c.handleDomainError(ctx, err, "invalid file id")
	}
	var req MergeRequest
	if err := ctx.Bind(&req); err != nil || req.TargetFileID == 0 {
		return c.HandleError(ctx, err, "target_file_id is required", http.StatusBadRequest)
	}
	if err := c.deps.Files.Merge(ctx.Request().Context(), id, req.TargetFileID); err != nil {
		return c.handleDomainError(ctx, err, "failed to merge file")
	}
	c.log.Info("file merged",
		logger.Int64("file_id", int64(id)),
		logger.Int64("target_file_id", int64(req.TargetFileID)))
	return c.respondFile(ctx, id)
}

func (c *Controller) respondFile(ctx echo.Context, id uint) error {
	f, err := c.deps.Files.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return c.handleDomainError(ctx, err, "failed to get file")
	}
	return ctx.JSON(http.StatusOK, f)
}

func queryInt(ctx echo.Context, name string, def int) (int, error) {
	s := ctx.QueryParam(name)
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
