// Package api serves the management HTTP API: health, Prometheus metrics,
// file state changes, visit corrections and task runs.
package api

import (
	"context"
	"crypto/rand"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/birdhomie/internal/datastore/repository"
	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/logger"
	"github.com/tphakala/birdhomie/internal/scheduler"
	"github.com/tphakala/birdhomie/internal/taxonomy"
)

// TaxonResolver resolves manual species corrections
type TaxonResolver interface {
	ResolveByID(ctx context.Context, taxonID int) (int, error)
	ResolveURL(ctx context.Context, rawURL string) (int, error)
}

// TaskTrigger runs a scheduled job on demand
type TaskTrigger interface {
	RunNow(ctx context.Context, name string) (scheduler.LockResult, error)
}

// Pinger reports database reachability
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Dependencies of the Controller. Tasks, Metrics and DB are optional.
type Dependencies struct {
	Files    repository.FileRepository
	Visits   repository.VisitRepository
	TaskRuns repository.TaskRunRepository
	Resolver TaxonResolver
	Tasks    TaskTrigger
	Metrics  http.Handler
	DB       Pinger
	Version  string
}

// Controller owns the routes and their handlers
type Controller struct {
	Echo  *echo.Echo
	Group *echo.Group
	deps  Dependencies
	log   logger.Logger
}

// NewController creates a controller on e and registers all routes
func NewController(e *echo.Echo, deps Dependencies) *Controller {
	c := &Controller{
		Echo: e,
		deps: deps,
		log:  GetLogger(),
	}
	e.HTTPErrorHandler = c.httpErrorHandler

	c.Group = e.Group("/api/v1")
	c.Group.Use(middleware.Recover())
	c.Group.Use(middleware.BodyLimit("64K"))
	c.Group.Use(c.requestLogger())

	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)
	if c.deps.Metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(c.deps.Metrics))
	}

	c.Group.GET("/files", c.ListFiles)
	c.Group.GET("/files/:id", c.GetFile)
	c.Group.GET("/files/:id/visits", c.ListFileVisits)
	c.Group.POST("/files/:id/retry", c.RetryFile)
	c.Group.POST("/files/:id/merge", c.MergeFile)
	c.Group.POST("/files/:id/unignore", c.UnignoreFile)

	c.Group.GET("/visits/:id", c.GetVisit)
	c.Group.PUT("/visits/:id/species", c.CorrectVisitSpecies)
	c.Group.PUT("/visits/:id/cover", c.SetVisitCover)

	c.Group.GET("/tasks", c.ListTaskRuns)
	c.Group.POST("/tasks/:type/run", c.RunTask)
}

func (c *Controller) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}
			c.log.Debug("request", fields...)
			return nil
		},
	})
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse builds an ErrorResponse with a fresh correlation id
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError logs err and writes an ErrorResponse with code
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)
	level := c.log.Warn
	if code >= http.StatusInternalServerError {
		level = c.log.Error
	}
	level("API error",
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.String("error", resp.Error),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method))
	return ctx.JSON(code, resp)
}

// handleDomainError maps error categories to status codes
func (c *Controller) handleDomainError(ctx echo.Context, err error, message string) error {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, taxonomy.ErrNoMatch), errors.IsNotFound(err):
		code = http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryValidation):
		code = http.StatusBadRequest
	case errors.IsCategory(err, errors.CategoryConflict):
		code = http.StatusConflict
	case errors.IsCategory(err, errors.CategoryEnrichment):
		code = http.StatusBadGateway
	}
	return c.HandleError(ctx, err, message, code)
}

// httpErrorHandler renders echo errors (unknown routes, bad methods) as ErrorResponse
func (c *Controller) httpErrorHandler(err error, ctx echo.Context) {
	if ctx.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	message := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		}
	}
	_ = ctx.JSON(code, NewErrorResponse(err, message, code))
}

// idParam parses a positive integer path parameter
func idParam(ctx echo.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || v == 0 {
		return 0, errors.ValidationError("invalid " + name + ": " + ctx.Param(name))
	}
	return uint(v), nil
}
