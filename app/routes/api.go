package routes

import (
	"time"

	"github.com/shashiranjanraj/upbridge/app/controllers"
	"github.com/shashiranjanraj/upbridge/pkg/middleware"
	"github.com/shashiranjanraj/upbridge/pkg/rbac"
	"github.com/shashiranjanraj/upbridge/pkg/router"
)

// Writer roles may change uploads when auth is on; any other valid token
// is read-only.
var writerRoles = []string{"admin", "uploader"}

// API bundles what RegisterAPI mounts.
type API struct {
	Uploads     *controllers.UploadController
	Callbacks   *controllers.CallbackController
	Events      *controllers.EventController
	AuthEnabled bool
	// SubmitLimit caps upload submissions per client IP per minute; 0
	// disables the limit.
	SubmitLimit int
}

func RegisterAPI(r *router.Router, a API) {
	api := r.Group("/api", middleware.Auth(a.AuthEnabled))

	var write []router.Middleware
	if a.AuthEnabled {
		write = append(write, rbac.HasRole(writerRoles...))
	}
	submit := write
	if a.SubmitLimit > 0 {
		submit = append(append([]router.Middleware(nil), write...), middleware.RateLimit(a.SubmitLimit, time.Minute))
	}

	api.Get("/callbacks", "callbacks.index", a.Callbacks.Index)
	api.Get("/events", "events.socket", a.Events.Socket)
	api.Get("/events/stream", "events.stream", a.Events.Stream)

	uploads := api.Group("/uploads")
	uploads.Get("", "uploads.index", a.Uploads.Index)
	uploads.Post("", "uploads.store", a.Uploads.Store, submit...)
	uploads.Post("/start", "uploads.start", a.Uploads.UploadAll, write...)
	uploads.Post("/prune", "uploads.prune", a.Uploads.Prune, write...)
	uploads.Get("/{id}", "uploads.show", a.Uploads.Show)
	uploads.Get("/{id}/content", "uploads.content", a.Uploads.Content)
	uploads.Post("/{id}/upload", "uploads.upload", a.Uploads.Upload, write...)
	uploads.Post("/{id}/cancel", "uploads.cancel", a.Uploads.Cancel, write...)
	uploads.Post("/{id}/retry", "uploads.retry", a.Uploads.Retry, write...)
	uploads.Delete("/{id}", "uploads.destroy", a.Uploads.Destroy, write...)
}
