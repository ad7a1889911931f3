// Package ingress provides the HTTP admission and replication server:
// zone push/delete, peer-realm zone reads, and the composite /status
// document. Grounded on the teacher's internal/api package (gin.Engine,
// recovery + slog logging middleware, grouped routes), retargeted from
// a DNS-server management API to a DNS-control-plane ingress API.
package ingress

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zonecourier/zonecourier/internal/config"
	"github.com/zonecourier/zonecourier/internal/ingress/handlers"
	"github.com/zonecourier/zonecourier/internal/ingress/middleware"
	"github.com/zonecourier/zonecourier/internal/worker"
)

// Server is the ingress HTTP listener.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// New builds an ingress Server. gatherer backs /metrics; pass the same
// prometheus.Registerer given to metrics.New.
func New(cfg *config.Config, logger *slog.Logger, manager *worker.Manager, gatherer prometheus.Gatherer) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.SlogRequestLogger(logger))
	mountDashboard(engine)

	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	h := handlers.New(logger, manager)
	registerRoutes(engine, h, cfg)

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{cfg: cfg, logger: logger, engine: engine, httpServer: httpServer}
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

// Engine exposes the underlying gin.Engine, for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// ListenAndServe blocks serving HTTP until Shutdown is called.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests up to ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
