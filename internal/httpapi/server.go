// Package httpapi provides the HTTP API for patentd.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patentd/internal/config"
	"github.com/fyrsmithlabs/patentd/internal/logging"
	"github.com/fyrsmithlabs/patentd/internal/registry"
	"github.com/fyrsmithlabs/patentd/internal/retrieval"
	"github.com/fyrsmithlabs/patentd/internal/search"
	"github.com/fyrsmithlabs/patentd/internal/sourcecache"
)

// Searcher executes retrieval requests. Satisfied by *retrieval.Service.
type Searcher interface {
	Search(ctx context.Context, req retrieval.Request) ([]search.Result, error)
}

// StatusLister reports tenant availability. Satisfied by *registry.Registry.
type StatusLister interface {
	Status() []registry.TenantStatus
}

// Server provides the HTTP endpoints for patentd.
type Server struct {
	echo     *echo.Echo
	searcher Searcher
	statuses StatusLister
	sources  *sourcecache.Cache
	logger   *logging.Logger
	config   config.ServerConfig
}

// NewServer creates the HTTP server.
func NewServer(searcher Searcher, statuses StatusLister, sources *sourcecache.Cache, logger *logging.Logger, cfg config.ServerConfig) (*Server, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher cannot be nil")
	}
	if statuses == nil {
		return nil, fmt.Errorf("status lister cannot be nil")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			// Put the request id in the context so every log line below
			// this point correlates.
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	})

	s := &Server{
		echo:     e,
		searcher: searcher,
		statuses: statuses,
		sources:  sources,
		logger:   logger,
		config:   cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/search", s.handleSearch)
	v1.GET("/tenants", s.handleTenants)
	v1.DELETE("/cache/:tenant", s.handleInvalidateCache)
}

// handleHealth reports liveness and the number of available tenants.
func (s *Server) handleHealth(c echo.Context) error {
	available := 0
	for _, st := range s.statuses.Status() {
		if st.Available {
			available++
		}
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Tenants: available})
}

// handleSearch executes one retrieval request under the configured
// per-request deadline.
func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, KindInvalidRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	if timeout := s.config.RequestTimeout.Duration(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	results, err := s.searcher.Search(ctx, retrieval.Request{
		Tenant: req.Tenant,
		Query:  req.Query,
		Vector: req.Vector,
		K:      req.K,
		Filter: req.Filter.Predicate(),
	})
	if err != nil {
		return s.writeSearchError(c, err)
	}

	documents := make([]Document, len(results))
	for i, r := range results {
		documents[i] = Document{
			ID:       r.Chunk.ID,
			Content:  r.Chunk.Content,
			Score:    r.Score,
			Metadata: r.Chunk.Metadata,
		}
	}
	return c.JSON(http.StatusOK, SearchResponse{Documents: documents})
}

// handleTenants lists every configured tenant and its availability.
func (s *Server) handleTenants(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]registry.TenantStatus{
		"tenants": s.statuses.Status(),
	})
}

// handleInvalidateCache drops a tenant's cached source listing.
func (s *Server) handleInvalidateCache(c echo.Context) error {
	tenant := c.Param("tenant")
	if s.sources != nil {
		s.sources.Invalidate(tenant)
	}
	return c.JSON(http.StatusOK, InvalidateResponse{Invalidated: tenant})
}

// writeSearchError maps a retrieval error to a status code and error kind.
// Internal failures are logged with their root cause but reported to the
// client with a generic message.
func (s *Server) writeSearchError(c echo.Context, err error) error {
	ctx := c.Request().Context()

	switch {
	case errors.Is(err, registry.ErrTenantNotFound):
		return writeError(c, http.StatusNotFound, KindTenantNotFound, err.Error())
	case errors.Is(err, search.ErrDimensionMismatch):
		return writeError(c, http.StatusBadRequest, KindDimensionMismatch, err.Error())
	case errors.Is(err, retrieval.ErrInvalidRequest),
		errors.Is(err, search.ErrInvalidPredicate),
		errors.Is(err, search.ErrInvalidK):
		return writeError(c, http.StatusBadRequest, KindInvalidRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn(ctx, "search deadline exceeded", zap.Error(err))
		return writeError(c, http.StatusGatewayTimeout, KindSearchTimeout, "search did not complete before the deadline")
	default:
		s.logger.Error(ctx, "search failed", zap.Error(err))
		return writeError(c, http.StatusInternalServerError, KindInternalError, "internal error")
	}
}

func writeError(c echo.Context, status int, kind, message string) error {
	return c.JSON(status, ErrorResponse{Error: ErrorBody{Kind: kind, Message: message}})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
