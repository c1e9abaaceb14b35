package router_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/upbridge/pkg/router"
)

func tag(v string) router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("X-Chain", v)
			next.ServeHTTP(w, r)
		})
	}
}

func TestGroup_MountsWithPrefixAndMiddleware(t *testing.T) {
	r := router.New()
	api := r.Group("/api", tag("group"))
	api.Delete("/uploads/{id}", "uploads.destroy", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(chi.URLParam(req, "id")))
	}, tag("route"))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/uploads/7", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "7", rec.Body.String())
	assert.Equal(t, []string{"group", "route"}, rec.Header().Values("X-Chain"))
}

func TestURL(t *testing.T) {
	r := router.New()
	r.Group("/api").Get("/uploads/{id}", "uploads.show", func(http.ResponseWriter, *http.Request) {})

	url, err := r.URL("uploads.show", map[string]string{"id": "3"})
	require.NoError(t, err)
	assert.Equal(t, "/api/uploads/3", url)

	_, err = r.URL("uploads.show", nil)
	assert.Error(t, err)
	_, err = r.URL("missing", nil)
	assert.Error(t, err)
}

func TestRoutes_ListsSorted(t *testing.T) {
	r := router.New()
	noop := func(http.ResponseWriter, *http.Request) {}
	r.Post("/b", "b.store", noop)
	r.Get("/b", "b.index", noop)
	r.Get("/a", "", noop)
	r.HandleFunc("/metrics", http.HandlerFunc(noop))

	assert.Equal(t, []router.RouteInfo{
		{Method: http.MethodGet, Path: "/a"},
		{Method: http.MethodGet, Path: "/b", Name: "b.index"},
		{Method: http.MethodPost, Path: "/b", Name: "b.store"},
	}, r.Routes())
}
