package app

// pkg/app/kernel.go builds an http.Handler from the Application config.
// Project dependencies are injected through Routes callbacks.

import (
	"net/http"

	"github.com/shashiranjanraj/upbridge/pkg/metrics"
	"github.com/shashiranjanraj/upbridge/pkg/middleware"
	"github.com/shashiranjanraj/upbridge/pkg/reqid"
	"github.com/shashiranjanraj/upbridge/pkg/router"
)

// Handler returns the fully wired HTTP handler.
func (a *Application) Handler() http.Handler {
	return a.buildRouter().Handler()
}

func (a *Application) buildRouter() *router.Router {
	r := router.New()

	// Global middleware stack (outermost → innermost):
	//  1. Prometheus metrics: outermost for accurate total latency
	//  2. Recovery: catches panics before they kill the goroutine
	//  3. Request ID: inject unique ID before anything logs
	//  4. Logger: logs request_id from context
	//  5. CORS: answers preflights from browser uploaders
	r.Use(metrics.Middleware())
	r.Use(middleware.Recovery)
	r.Use(reqid.Middleware())
	r.Use(middleware.Logger)
	r.Use(middleware.CORS(a.cors))

	// Prometheus /metrics endpoint, outside auth.
	r.HandleFunc("/metrics", metrics.Handler())
	r.Get("/healthz", "health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	for _, fn := range a.routesFns {
		fn(r)
	}
	return r
}
