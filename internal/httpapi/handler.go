// Package httpapi is the HTTP edge: GET /books/search, POST
// /books/from-search, and /debug/metrics, wired over the orchestrator and
// ingestion service the same way the teacher's handler.go wires its
// controller — muxing and response-header concerns here, business logic
// deferred entirely to internal/search and internal/ingest.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pagetrail/bookcore/internal/apperr"
	"github.com/pagetrail/bookcore/internal/applog"
	"github.com/pagetrail/bookcore/internal/ingest"
	"github.com/pagetrail/bookcore/internal/provider"
	"github.com/pagetrail/bookcore/internal/search"
)

// handler defers all work to the orchestrator/ingestion service and handles
// only muxing, decoding, and response headers.
type handler struct {
	orchestrator *search.Orchestrator
	ingestion    *ingest.Service
}

func newHandler(orchestrator *search.Orchestrator, ingestion *ingest.Service) *handler {
	return &handler{orchestrator: orchestrator, ingestion: ingestion}
}

// newMux registers a handler's routes on a new mux. metricsHandler is
// typically promhttp.HandlerFor the process's *prometheus.Registry.
func newMux(h *handler, metricsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /books/search", h.search)
	mux.HandleFunc("POST /books/from-search", h.fromSearch)
	mux.Handle("/debug/metrics", metricsHandler)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return mux
}

// search handles GET /books/search.
func (h *handler) search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	text := q.Get("q")
	searchType := provider.SearchType(q.Get("type"))
	if searchType == "" {
		searchType = provider.SearchGeneral
	}

	limit := 20
	if v := q.Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			h.error(ctx, w, apperr.New(apperr.KindValidation, "limit must be an integer"))
			return
		}
		limit = parsed
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			h.error(ctx, w, apperr.New(apperr.KindValidation, "offset must be an integer"))
			return
		}
		offset = parsed
	}

	// provider names which adapter the caller prefers. It is validated but
	// not passed on: the orchestrator always tries primary first and falls
	// back automatically, so every accepted value behaves like "auto".
	switch q.Get("provider") {
	case "", "auto", "primary", "secondary":
	default:
		h.error(ctx, w, apperr.New(apperr.KindValidation, "provider must be one of primary, secondary, auto"))
		return
	}

	resp, err := h.orchestrator.Search(ctx, text, searchType, limit, offset)
	if err != nil {
		h.error(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, newSearchResponse(resp))
}

// fromSearch handles POST /books/from-search.
func (h *handler) fromSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body fromSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.error(ctx, w, apperr.New(apperr.KindValidation, "malformed request body"))
		return
	}
	if body.ReaderID == "" {
		h.error(ctx, w, apperr.New(apperr.KindValidation, "readerId is required"))
		return
	}

	req := ingest.IngestionRequest{
		ReaderID:      body.ReaderID,
		Result:        body.SearchResult,
		InitialStatus: body.Status,
		Overrides:     body.Overrides,
		Force:         body.Force,
	}

	result, err := h.ingestion.AddFromSearchResult(ctx, req)
	if err != nil {
		h.error(ctx, w, err)
		return
	}

	resp := newIngestionResponse(result)
	status := http.StatusCreated
	if result.Duplicate != nil {
		status = http.StatusConflict
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (*handler) error(ctx context.Context, w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(apperr.KindOf(err))
	applog.From(ctx).Debug("request error", "status", status, "err", err)
	http.Error(w, err.Error(), status)
}
