// Package app is the upbridge application runner. It turns route
// registrations into an HTTP kernel with the standard middleware stack and
// serves it until the context is cancelled.
//
//	app.New().
//	    Routes(func(r *router.Router) {
//	        routes.RegisterAPI(r, api)
//	    }).
//	    Serve(ctx, ":8080")
package app

import (
	"context"

	"github.com/shashiranjanraj/upbridge/pkg/middleware"
	"github.com/shashiranjanraj/upbridge/pkg/router"
)

// Application is the central configuration object for the server.
// Build one with New(), attach routes, then call Serve.
type Application struct {
	routesFns   []func(*router.Router)
	shutdownFns []func()
	cors        middleware.CORSOptions
}

// New creates an Application with permissive CORS, which browser uploaders
// served from another origin need.
func New() *Application {
	return &Application{cors: middleware.DefaultCORSOptions()}
}

// Routes registers a route-registration callback that will be called when
// the HTTP kernel is built. You may call Routes() multiple times; all
// callbacks are executed in order.
func (a *Application) Routes(fn func(*router.Router)) *Application {
	a.routesFns = append(a.routesFns, fn)
	return a
}

// OnShutdown registers fn to run when graceful shutdown begins, before
// in-flight requests are drained.
func (a *Application) OnShutdown(fn func()) *Application {
	a.shutdownFns = append(a.shutdownFns, fn)
	return a
}

// CORS replaces the CORS options.
func (a *Application) CORS(opts middleware.CORSOptions) *Application {
	a.cors = opts
	return a
}

// Serve builds the kernel and serves it on addr until ctx is done.
func (a *Application) Serve(ctx context.Context, addr string) error {
	return startServer(ctx, addr, a)
}
