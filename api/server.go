package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gin-gonic/gin"

	"proxyvote/service"
)

type APIConfig struct {
	APIEndpoint string
}

// Server exposes a RelayService over HTTP.
type Server struct {
	relay *service.RelayService
}

func NewServer(relay *service.RelayService) *Server {
	return &Server{relay: relay}
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	registerRoutes(r, s)
	return r
}

// Serve runs the HTTP server until ctx is cancelled.
func Serve(ctx context.Context, cfg APIConfig, relay *service.RelayService) error {
	srv := &http.Server{
		Addr:    cfg.APIEndpoint,
		Handler: NewServer(relay).Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting relay API", "addr", cfg.APIEndpoint)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info("Shutting down relay API")
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("HTTP request", "method", c.Request.Method, "path", c.FullPath(),
			"status", c.Writer.Status(), "elapsed", time.Since(start))
	}
}
