// Package api serves the read-only HTTP surface over the pipeline's data:
// articles, claims, updates, follow-ups, roundups and usage accounting.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/newsdocket/docket/pkg/config"
	"github.com/newsdocket/docket/pkg/store"
)

// Server is the read-only API server.
type Server struct {
	store  *store.Store
	cfg    *config.APIConfig
	logger *slog.Logger
}

// NewServer wires the API server.
func NewServer(st *store.Store, cfg *config.APIConfig, logger *slog.Logger) *Server {
	return &Server{store: st, cfg: cfg, logger: logger.With("component", "api")}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/articles", s.listArticles)
		v1.GET("/articles/:id", s.getArticle)
		v1.GET("/articles/:id/claims", s.listArticleClaims)
		v1.GET("/claims", s.listClaims)
		v1.GET("/claims/:id", s.getClaim)
		v1.GET("/claims/:id/updates", s.listClaimUpdates)
		v1.GET("/claims/:id/followups", s.listClaimFollowUps)
		v1.GET("/followups", s.listDueFollowUps)
		v1.GET("/roundups", s.listRoundups)
		v1.GET("/roundups/:slug", s.getRoundup)
		v1.GET("/subscriptions", s.listSubscriptions)
		v1.GET("/usage/daily", s.dailyUsage)
	}
	return r
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown api server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	}
}

// requestLog emits one structured line per request.
func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if err := s.store.DB().PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
