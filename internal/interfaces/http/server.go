// Package http provides the HTTP adapter over the governance engine.
// This is a thin translation layer: it parses payloads, attaches the actor,
// and maps the engine's typed errors to status codes. All rules live in the
// engine.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lcsys/governance/internal/governance"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	engine     *governance.Engine
	logger     *zap.Logger
}

// NewServer creates a new HTTP server over the governance engine
func NewServer(config ServerConfig, engine *governance.Engine, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		config: config,
		router: router,
		engine: engine,
		logger: logger,
	}

	router.Use(gin.Recovery())
	router.Use(s.requestLogger())
	router.Use(actorMiddleware())

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.router.Group("/api")

	tasks := api.Group("/tasks")
	tasks.GET("", s.listTasks)
	tasks.POST("", s.createTask)
	tasks.GET("/:id/:version", s.getTask)
	tasks.PUT("/:id/:version", s.updateDraftTask)
	tasks.POST("/:id/:version/revise", s.reviseTask)
	tasks.POST("/:id/:version/submit", s.submitTask)
	tasks.POST("/:id/:version/confirm", s.confirmTask)
	tasks.POST("/:id/:version/return", s.returnTask)
	tasks.POST("/:id/:version/deprecate", s.deprecateTask)
	tasks.POST("/:id/:version/force-submit", s.forceSubmitTask)
	tasks.POST("/:id/:version/force-confirm", s.forceConfirmTask)

	workflows := api.Group("/workflows")
	workflows.GET("", s.listWorkflows)
	workflows.POST("", s.createWorkflow)
	workflows.GET("/:id/:version", s.getWorkflow)
	workflows.GET("/:id/:version/resolved", s.resolveWorkflow)
	workflows.GET("/:id/:version/export", s.exportWorkflow)
	workflows.PUT("/:id/:version", s.updateDraftWorkflow)
	workflows.POST("/:id/:version/revise", s.reviseWorkflow)
	workflows.POST("/:id/:version/submit", s.submitWorkflow)
	workflows.POST("/:id/:version/confirm", s.confirmWorkflow)
	workflows.POST("/:id/:version/return", s.returnWorkflow)
	workflows.POST("/:id/:version/deprecate", s.deprecateWorkflow)
	workflows.POST("/:id/:version/force-submit", s.forceSubmitWorkflow)
	workflows.POST("/:id/:version/force-confirm", s.forceConfirmWorkflow)

	api.GET("/audit", s.listAudit)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the underlying handler, used by tests
func (s *Server) Router() http.Handler {
	return s.router
}
