// Package server owns the listen/serve/shutdown lifecycle of the HTTP
// server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shashiranjanraj/upbridge/pkg/logger"
)

// ShutdownTimeout bounds how long in-flight requests get to finish.
var ShutdownTimeout = 15 * time.Second

// Start serves handler on addr until ctx is done, then shuts down
// gracefully. onShutdown hooks run when shutdown begins; they end
// long-lived streams that Shutdown would otherwise wait on. It returns nil
// after a clean shutdown.
func Start(ctx context.Context, addr string, handler http.Handler, onShutdown ...func()) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	for _, fn := range onShutdown {
		srv.RegisterOnShutdown(fn)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("upbridge listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("upbridge shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
