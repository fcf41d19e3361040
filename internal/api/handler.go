// Package api exposes the engine's inbound surface over HTTP: ingest,
// search, metadata, and popular queries. Handlers are thin glue; every
// contract lives in the engine and lifecycle packages.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shopscout/searchcore/internal/catalog"
	"github.com/shopscout/searchcore/internal/engine"
	"github.com/shopscout/searchcore/internal/lifecycle"
	"github.com/shopscout/searchcore/internal/search"
	"github.com/shopscout/searchcore/pkg/errors"
	"github.com/shopscout/searchcore/pkg/logger"
	"github.com/shopscout/searchcore/pkg/tracing"
)

// Handler serves the engine's HTTP API.
type Handler struct {
	engine  *engine.Engine
	manager *lifecycle.Manager
	logger  *slog.Logger
}

// New creates a Handler.
func New(eng *engine.Engine, manager *lifecycle.Manager) *Handler {
	return &Handler{
		engine:  eng,
		manager: manager,
		logger:  slog.Default().With("component", "api"),
	}
}

// Register mounts all routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/records", h.IngestRecords)
	mux.HandleFunc("DELETE /api/v1/records/{id}", h.RemoveRecord)
	mux.HandleFunc("POST /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/metadata", h.Metadata)
	mux.HandleFunc("GET /api/v1/popular", h.PopularQueries)
}

// IngestRecords accepts a JSON array of product records.
func (h *Handler) IngestRecords(w http.ResponseWriter, r *http.Request) {
	var records []catalog.ProductRecord
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		h.writeError(w, http.StatusBadRequest, "request body must be a JSON array of product records")
		return
	}
	report := h.manager.Ingest(r.Context(), records)
	status := http.StatusOK
	if report.CapacityExceeded {
		status = http.StatusInsufficientStorage
	}
	h.writeJSON(w, status, report)
}

// RemoveRecord deletes one document by ID.
func (h *Handler) RemoveRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "record id is required")
		return
	}
	if !h.manager.Remove(r.Context(), id) {
		h.writeError(w, http.StatusNotFound, "record not found")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"removed": id})
}

// Search executes a query. The request body is the full query shape:
// text, filters, sort, pagination, and the facet/suggestion flags.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logger.FromContext(r.Context())
	ctx, span := tracing.StartSpan(r.Context(), "search", w.Header().Get("X-Request-ID"))
	defer func() {
		span.End()
		span.Log()
	}()

	var req search.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed search request")
		return
	}
	span.SetAttr("text", req.Text)

	result, cacheHit, err := h.engine.Search(ctx, req)
	if err != nil {
		log.Error("search failed", "text", req.Text, "error", err)
		h.writeError(w, errors.HTTPStatusCode(err), err.Error())
		return
	}
	span.SetAttr("total", result.Total)
	span.SetAttr("cache_hit", cacheHit)
	log.Info("search completed",
		"text", req.Text,
		"total", result.Total,
		"returned", len(result.Documents),
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

// Metadata returns the current index metadata.
func (h *Handler) Metadata(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Metadata())
}

// PopularQueries returns the most frequent recorded queries.
func (h *Handler) PopularQueries(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"queries": h.engine.PopularQueries(limit),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("writing response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
