// Package httpapi is the gin-based HTTP surface: CRUD over
// workflows and cases, the Kanban UI, and the IP allow-list, mirroring
// cloudshipai-station's internal/api server-lifecycle shape adapted to a
// single flat route group instead of a versioned API tree.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/derivia/orchepy/internal/config"
	"github.com/derivia/orchepy/internal/logx"
	"github.com/derivia/orchepy/internal/service"
)

// Server wraps the gin engine and its HTTP listener lifecycle.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	handlers   *Handlers
}

// New builds a Server wired against workflow/case services.
func New(cfg *config.Config, workflows *service.WorkflowService, cases *service.CaseService) *Server {
	return &Server{
		cfg:      cfg,
		handlers: &Handlers{workflows: workflows, cases: cases},
	}
}

// Start runs the HTTP listener until ctx is cancelled, then shuts down
// gracefully — the same context-cancellation-triggers-Shutdown idiom
// cloudshipai-station's api.Server.Start uses.
func (s *Server) Start(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())
	router.Use(corsMiddleware())
	if s.cfg.WhitelistEnabled {
		router.Use(ipWhitelist(s.cfg.WhitelistIPs))
	}

	router.GET("/", s.handlers.kanban)
	router.GET("/health", s.handlers.health)

	router.POST("/workflows", s.handlers.createWorkflow)
	router.GET("/workflows", s.handlers.listWorkflows)
	router.GET("/workflows/:id", s.handlers.getWorkflow)
	router.PUT("/workflows/:id", s.handlers.updateWorkflow)
	router.DELETE("/workflows/:id", s.handlers.deleteWorkflow)
	router.POST("/workflows/:id/automations/dry-run", s.handlers.dryRunAutomations)

	router.POST("/cases", s.handlers.createCase)
	router.GET("/cases", s.handlers.listCases)
	router.GET("/cases/:id", s.handlers.getCase)
	router.PUT("/cases/:id/move", s.handlers.moveCase)
	router.PATCH("/cases/:id/data", s.handlers.patchCaseData)
	router.GET("/cases/:id/history", s.handlers.caseHistory)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logx.FromContext(ctx).Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logx.FromContext(c.Request.Context()).Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
