// Package admin exposes a read-mostly HTTP introspection surface over
// the gateway: routes, services, analytics, and Prometheus metrics.
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vvoronin/routegw/internal/backend"
	"github.com/vvoronin/routegw/internal/config"
	"github.com/vvoronin/routegw/internal/gateway"
	"github.com/vvoronin/routegw/internal/observability"
)

// Server serves the admin API for one gateway instance.
type Server struct {
	gw     *gateway.Gateway
	cfg    *config.Config
	logger observability.Logger
	srv    *http.Server
}

// ServerOption is a functional option for configuring the server.
type ServerOption func(*Server)

// WithServerLogger sets the logger for the server.
func WithServerLogger(logger observability.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates the admin server for a gateway.
func NewServer(gw *gateway.Gateway, cfg *config.Config, opts ...ServerOption) *Server {
	s := &Server{
		gw:     gw,
		cfg:    cfg,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/routes", s.handleRoutes)
	engine.GET("/services", s.handleServices)
	engine.GET("/analytics", s.handleAnalytics)
	engine.POST("/analytics/reset", s.handleAnalyticsReset)
	if cfg.MetricsEnabled {
		engine.GET(cfg.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	s.srv = &http.Server{
		Addr:              cfg.AdminAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler. Mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves the admin API until Shutdown. Blocks.
func (s *Server) Start() error {
	s.logger.Info("starting admin server",
		observability.String("addr", s.srv.Addr),
	)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the admin server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":              "ok",
		"service":             s.cfg.ServiceName,
		"healthChecksRunning": s.gw.HealthChecksRunning(),
	})
}

func (s *Server) handleRoutes(c *gin.Context) {
	routes := s.gw.Routes()
	c.JSON(http.StatusOK, gin.H{
		"count":  len(routes),
		"routes": routes,
	})
}

// serviceView is the wire shape of one service in the services listing.
type serviceView struct {
	Name      string          `json:"name"`
	Strategy  string          `json:"strategy"`
	Instances []backend.Stats `json:"instances"`
}

func (s *Server) handleServices(c *gin.Context) {
	names := s.gw.Services()
	services := make([]serviceView, 0, len(names))
	for _, name := range names {
		instances := s.gw.Instances(name)
		stats := make([]backend.Stats, 0, len(instances))
		for _, inst := range instances {
			stats = append(stats, inst.Stats())
		}
		services = append(services, serviceView{
			Name:      name,
			Strategy:  s.gw.StrategyFor(name).String(),
			Instances: stats,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    len(services),
		"services": services,
	})
}

func (s *Server) handleAnalytics(c *gin.Context) {
	c.JSON(http.StatusOK, s.gw.Analytics())
}

func (s *Server) handleAnalyticsReset(c *gin.Context) {
	s.gw.ResetAnalytics()
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}
