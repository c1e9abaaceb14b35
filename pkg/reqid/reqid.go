// Package reqid tags every request with an ID that follows it through the
// logs, the X-Request-ID response header, and the upload events it causes.
//
//	r.Use(reqid.Middleware())
//	...
//	logger.WithCtx(r.Context()).Info("upload refused")
//	// level=INFO msg="upload refused" request_id=3f0c...
package reqid

import (
	"context"
	"encoding/hex"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey struct{}

// Header carries the ID in both directions.
const Header = "X-Request-ID"

// maxLen bounds IDs accepted from clients.
const maxLen = 128

// New returns a random (v4) UUID without dashes.
func New() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// WithValue stores id in ctx.
func WithValue(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromCtx returns the ID stored in ctx, or "".
func FromCtx(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// valid accepts printable ASCII up to maxLen, so a forwarded header cannot
// smuggle control characters into log lines.
func valid(id string) bool {
	if id == "" || len(id) > maxLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// Middleware reuses a well-formed upstream X-Request-ID (from a gateway or
// the upbridge CLI) and mints one otherwise.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(Header)
			if !valid(id) {
				id = New()
			}
			w.Header().Set(Header, id)
			next.ServeHTTP(w, r.WithContext(WithValue(r.Context(), id)))
		})
	}
}
