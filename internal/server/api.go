// Control API. Routes are split into three tiers:
//   - public: login and health
//   - JWT-protected: dashboard queries and maintenance actions
//   - Bearer-token: automation hooks for CI and cron
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lvillar/webmirror/internal/cloner"
	"github.com/lvillar/webmirror/internal/store"
	"github.com/lvillar/webmirror/internal/verify"
)

func (s *Server) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api")

	// ── Public endpoints ──────────────────────────────────────────────────────
	api.POST("/login", s.handleLogin)
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	// ── JWT-protected endpoints ───────────────────────────────────────────────
	auth := api.Group("/", s.jwtMiddleware())
	{
		auth.GET("/snapshot", s.handleSnapshot)
		auth.GET("/failures", s.handleFailures)
		auth.GET("/broken", s.handleBrokenLinks)
		auth.POST("/verify", s.handleVerify)
		auth.POST("/reclone", s.handleReclone)
		auth.DELETE("/snapshot/:id", s.handleSnapshotDelete)
	}

	// ── Automation hooks (pre-shared token) ───────────────────────────────────
	hooks := api.Group("/hooks", s.hookTokenMiddleware())
	{
		hooks.POST("/reverify", s.handleVerify)
		hooks.POST("/reclone", s.handleReclone)
	}
}

// handleLogin accepts username + password and returns a signed JWT.
//
//	POST /api/login
//	Body: { "username": "admin", "password": "admin" }
func (s *Server) handleLogin(c *gin.Context) {
	var body struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	if body.Username != s.cfg.AdminUser || body.Password != s.cfg.AdminPass {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := s.GenerateJWT(body.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": 86400, // seconds
		"type":       "Bearer",
	})
}

// handleSnapshot returns the latest run's summary.
func (s *Server) handleSnapshot(c *gin.Context) {
	snap, err := s.store.LatestSnapshot()
	if err != nil {
		s.snapshotError(c, err)
		return
	}
	summary, err := s.store.Summary(snap.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

// handleFailures lists the latest run's failed downloads.
func (s *Server) handleFailures(c *gin.Context) {
	snap, err := s.store.LatestSnapshot()
	if err != nil {
		s.snapshotError(c, err)
		return
	}
	failures, err := s.store.Failures(snap.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": failures})
}

// handleBrokenLinks lists the persisted verify findings for the latest run.
func (s *Server) handleBrokenLinks(c *gin.Context) {
	snap, err := s.store.LatestSnapshot()
	if err != nil {
		s.snapshotError(c, err)
		return
	}
	links, err := s.store.BrokenLinks(snap.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": links})
}

// handleVerify runs a link-integrity pass over the mirror tree and stores
// the findings against the latest snapshot.
func (s *Server) handleVerify(c *gin.Context) {
	report, err := verify.Tree(s.cfg.OutputDir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if snap, err := s.store.LatestSnapshot(); err == nil {
		if err := s.store.ReplaceBrokenLinks(snap.ID, report.BrokenLinks()); err != nil {
			logrus.WithError(err).Warn("persisting verify findings")
		}
	}

	s.hub.Broadcast(cloner.Event{
		Type:    cloner.EventSummary,
		Message: "verify finished: " + strconv.Itoa(len(report.Findings)) + " findings",
	})
	c.JSON(http.StatusOK, gin.H{"data": report})
}

// handleReclone starts an asynchronous clone run with progress broadcast to
// the websocket feed. Only one API-triggered run may be active at a time.
func (s *Server) handleReclone(c *gin.Context) {
	if !s.cloning.CompareAndSwap(false, true) {
		c.JSON(http.StatusConflict, gin.H{"error": "a clone run is already in progress"})
		return
	}

	cl, err := cloner.New(s.cfg, s.store)
	if err != nil {
		s.cloning.Store(false)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cl.OnEvent(s.hub.Broadcast)

	go func() {
		defer s.cloning.Store(false)
		cloneActive.Set(1)
		defer cloneActive.Set(0)

		summary, err := cl.Run(context.Background())
		if err != nil {
			logrus.WithError(err).Error("api-triggered clone failed")
			return
		}
		logrus.WithFields(logrus.Fields{
			"pages": summary.Pages, "assets": summary.Assets, "failed": summary.Failed,
		}).Info("api-triggered clone finished")
	}()

	c.JSON(http.StatusAccepted, gin.H{"started": true})
}

// handleSnapshotDelete removes a snapshot record and its rows.
func (s *Server) handleSnapshotDelete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := s.store.DeleteSnapshot(uint(id)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (s *Server) snapshotError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNoSnapshot) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot recorded yet"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
