package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lvillar/webmirror/internal/config"
	"github.com/lvillar/webmirror/internal/store"
)

// Server serves the mirror tree, the dashboard, and the control API.
type Server struct {
	cfg   *config.Config
	store *store.Store
	hub   *Hub

	// cloning guards the single API-triggered clone slot.
	cloning atomic.Bool
}

// New wires a Server from config and an open store.
func New(cfg *config.Config, st *store.Store) *Server {
	return &Server{cfg: cfg, store: st, hub: NewHub()}
}

// Hub exposes the progress hub so callers can broadcast clone events from
// runs started outside the API.
func (s *Server) Hub() *Hub { return s.hub }

// Engine builds the Gin engine with all routes registered.
// API routes take precedence; everything unmatched falls through to the
// mirror tree.
func (s *Server) Engine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), corsMiddleware(), metricsMiddleware())

	s.registerAPIRoutes(r)
	r.GET("/ws", s.handleWS)
	r.GET("/metrics", metricsHandler())
	s.registerDashboard(r)
	s.registerMirror(r)

	return r
}

// Run starts the HTTP server and blocks until the context is canceled or
// SIGINT arrives, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.ServerHost, s.cfg.ServerPort)
	srv := &http.Server{Addr: addr, Handler: s.Engine()}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	logrus.WithFields(logrus.Fields{
		"addr": addr,
		"root": s.cfg.OutputDir,
	}).Info("preview server listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt) // SIGINT; works on all platforms

	select {
	case err := <-errCh:
		return err
	case <-quit:
	case <-ctx.Done():
	}

	logrus.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
