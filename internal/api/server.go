package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/logger"
)

// Server runs the echo instance of a Controller
type Server struct {
	echo *echo.Echo
	addr string
	log  logger.Logger
}

// NewServer builds the echo instance and registers the API on it
func NewServer(addr string, deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadHeaderTimeout = 10 * time.Second

	NewController(e, deps)
	return &Server{echo: e, addr: addr, log: GetLogger()}
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens until Shutdown; it returns nil after a clean shutdown
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", logger.String("addr", s.addr))
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New(err).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("addr", s.addr).
			Build()
	}
	return nil
}

// Shutdown drains in-flight requests until ctx ends
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("HTTP server shutting down")
	return s.echo.Shutdown(ctx)
}
