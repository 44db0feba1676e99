// Package http exposes the operational surface of the dataplane: liveness,
// readiness, and routing/cache statistics. The data API itself is owned by
// the services composing this library, not by this package.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter registers the ops routes and middleware stack.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	r.Get("/status", handler.status)

	return r
}
