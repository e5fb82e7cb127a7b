package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/vibelab/chatrelay/internal/logger"
)

const (
	// shutdownTimeout is the maximum time to wait for graceful shutdown.
	shutdownTimeout = 10 * time.Second

	// readHeaderTimeout bounds header reads to keep slow clients from
	// pinning connections.
	readHeaderTimeout = 10 * time.Second

	readTimeout  = 30 * time.Second
	writeTimeout = 60 * time.Second
	idleTimeout  = 120 * time.Second
)

// Run starts the HTTP server on host:port and blocks until the context is
// cancelled, then shuts down gracefully.
func (rt *Router) Run(ctx context.Context) error {
	addr := net.JoinHostPort(rt.cfg.Host, rt.cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           rt.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L.Info("starting HTTP server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.L.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
