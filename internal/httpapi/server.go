package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/stampede"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pagetrail/bookcore/internal/ingest"
	"github.com/pagetrail/bookcore/internal/search"
)

// NewServer builds the full HTTP edge: routes plus the same middleware
// chain ordering as the teacher's server.Run (request coalescing, body-size
// limiting, slash normalization, request ID, panic recovery).
func NewServer(orchestrator *search.Orchestrator, ingestion *ingest.Service, reg *prometheus.Registry) http.Handler {
	h := newHandler(orchestrator, ingestion)
	mux := newMux(h, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	wrapped := stampede.Handler(1024, 0)(mux)              // Coalesce requests to the same resource.
	wrapped = middleware.RequestSize(1024 * 1024)(wrapped) // Limit request bodies.
	wrapped = middleware.RedirectSlashes(wrapped)          // Normalize paths for caching.
	wrapped = middleware.RequestID(wrapped)                // Include a request ID header.
	wrapped = middleware.Recoverer(wrapped)                // Recover from panics.

	return wrapped
}
