package api

import (
	"context"
	"net/http"
	"time"

	"example.com/backstage/services/catalog/config"
	"example.com/backstage/services/catalog/internal/api/handlers"
	"example.com/backstage/services/catalog/internal/api/middleware"
	"example.com/backstage/services/catalog/internal/metrics"
	"example.com/backstage/services/catalog/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Server represents the HTTP server
type Server struct {
	config     config.Config
	router     *gin.Engine
	httpServer *http.Server
	products   handlers.ProductService
	metrics    *metrics.Metrics
	queue      handlers.QueueStats
	tracer     tracing.Tracer
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.Config,
	products handlers.ProductService,
	m *metrics.Metrics,
	queue handlers.QueueStats,
	tracer tracing.Tracer,
) *Server {
	if tracer == nil {
		tracer = tracing.Disabled()
	}

	server := &Server{
		config:   cfg,
		products: products,
		metrics:  m,
		queue:    queue,
		tracer:   tracer,
	}

	server.router = server.setupRouter()
	server.httpServer = &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     server.router,
		ReadTimeout: cfg.Server.Timeout,
	}

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	if s.config.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	if nr := middleware.NewRelic(s.tracer.Application()); nr != nil {
		router.Use(nr)
	}

	v1 := router.Group("/api/v1")
	handlers.NewProductHandler(s.products, s.tracer).RegisterRoutes(v1)

	if s.config.Server.MetricsEnabled {
		handlers.NewMetricsHandler(s.metrics, s.tracer, s.queue).RegisterRoutes(router)
	} else {
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}

	return router
}

// Handler returns the configured router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.Server.Address).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
