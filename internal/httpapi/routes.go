// Package httpapi exposes a small local debug surface for the headless
// client: the current state mirror and a liveness check.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func SetupRoutes(c StateProvider) http.Handler {
	r := chi.NewRouter()

	r.Get("/state", CurrentState(c))
	r.Get("/healthz", Healthz)
	return r
}
