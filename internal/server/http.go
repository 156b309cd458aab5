package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// Timeouts. In-flight handoffs get the shutdown grace period to finish; a
// killed login request is simply gone and the app has to start a new one.
const (
	readHeaderTimeout = 5 * time.Second
	shutdownGrace     = 10 * time.Second
)

// HTTPServer runs the broker's gin.Engine with graceful shutdown.
type HTTPServer struct {
	Engine *gin.Engine
}

// NewHTTPServer wraps the router. Client IPs come from reverse proxy
// headers; the broker is never exposed directly.
func NewHTTPServer(router *gin.Engine) *HTTPServer {
	router.HandleMethodNotAllowed = true
	router.ForwardedByClientIP = true
	return &HTTPServer{Engine: router}
}

// Run serves on addr until ctx is cancelled, then drains connections.
func (s *HTTPServer) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(drainCtx); err != nil {
			return fmt.Errorf("drain connections: %w", err)
		}
		return nil
	})
	return g.Wait()
}
