package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/Wynand91/fedauth/internal/config"
)

// HTTPServer runs a gin.Engine with timeouts and graceful shutdown taken from
// the service configuration.
type HTTPServer struct {
	Engine *gin.Engine
	cfg    config.Config
}

// NewHTTPServer prepares the engine for serving behind a proxy.
func NewHTTPServer(cfg config.Config, router *gin.Engine) *HTTPServer {
	router.HandleMethodNotAllowed = true
	router.ForwardedByClientIP = true
	return &HTTPServer{Engine: router, cfg: cfg}
}

// build materializes the underlying http.Server for the given addr.
func (s *HTTPServer) build(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.Engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
}

// Run serves on addr until ctx is done, then drains in-flight requests for at
// most the configured shutdown timeout.
func (s *HTTPServer) Run(ctx context.Context, addr string) error {
	srv := s.build(addr)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
