package app

// pkg/app/server.go bridges Application → internal/server.

import (
	"context"

	"github.com/shashiranjanraj/upbridge/internal/server"
)

// startServer builds the HTTP handler and hands it to internal/server.Start
// for the listen/serve/shutdown lifecycle.
func startServer(ctx context.Context, addr string, a *Application) error {
	return server.Start(ctx, addr, a.Handler(), a.shutdownFns...)
}
