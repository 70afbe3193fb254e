package chi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/metrics"
	collectionuc "github.com/kailas-cloud/docdex/internal/usecase/collection"
	documentuc "github.com/kailas-cloud/docdex/internal/usecase/document"
	healthuc "github.com/kailas-cloud/docdex/internal/usecase/health"
	indexuc "github.com/kailas-cloud/docdex/internal/usecase/index"
)

// maxBodyBytes bounds explain request bodies.
const maxBodyBytes = 1 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the read-only admin API.
type Server struct {
	collections   *collectionuc.Service
	indexes       *indexuc.Service
	documents     *documentuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an admin API server.
func NewServer(
	collections *collectionuc.Service,
	indexes *indexuc.Service,
	documents *documentuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		collections: collections,
		indexes:     indexes,
		documents:   documents,
		health:      health,
		logger:      logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, ErrorCodeNotFound),
		sentinelHandler(domain.ErrMissingIndex, http.StatusBadRequest, ErrorCodeMissingIndex),
		sentinelHandler(domain.ErrInvalidSpec, http.StatusBadRequest, ErrorCodeInvalidSpec),
		sentinelHandler(domain.ErrTypeMismatch, http.StatusBadRequest, ErrorCodeInvalidSpec),
	}
	return s
}

// Handler builds the router with the standard middleware chain.
func (s *Server) Handler(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Route("/v1/collections", func(r chi.Router) {
		r.Get("/", s.ListCollections)
		r.Get("/{collection}", s.GetCollection)
		r.Get("/{collection}/indexes", s.ListIndexes)
		r.Post("/{collection}/explain", s.Explain)
	})
	return r
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, HealthResponse{
		Status:      report.Status,
		Checks:      report.Checks,
		Collections: report.Collections,
	})
}

// ListCollections handles GET /v1/collections.
func (s *Server) ListCollections(w http.ResponseWriter, r *http.Request) {
	stats := s.collections.AllStats(r.Context())
	items := make([]CollectionStatsResponse, len(stats))
	for i, st := range stats {
		items[i] = statsToResponse(st)
	}
	writeJSON(w, http.StatusOK, CollectionListResponse{Items: items})
}

// GetCollection handles GET /v1/collections/{collection}.
func (s *Server) GetCollection(w http.ResponseWriter, r *http.Request) {
	st, err := s.collections.Stats(r.Context(), chi.URLParam(r, "collection"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsToResponse(st))
}

// ListIndexes handles GET /v1/collections/{collection}/indexes.
func (s *Server) ListIndexes(w http.ResponseWriter, r *http.Request) {
	specs, err := s.indexes.List(r.Context(), chi.URLParam(r, "collection"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	items := make([]IndexResponse, len(specs))
	for i, spec := range specs {
		items[i] = indexToResponse(spec)
	}
	writeJSON(w, http.StatusOK, IndexListResponse{Items: items})
}

// Explain handles POST /v1/collections/{collection}/explain.
func (s *Server) Explain(w http.ResponseWriter, r *http.Request) {
	var req ExplainRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}
	find, err := req.toFind()
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid query document: "+err.Error())
		return
	}

	name := chi.URLParam(r, "collection")
	plan, err := s.documents.Explain(r.Context(), name, find)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ExplainResponse{Collection: name, Plan: plan})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns the full message for client errors and hides
// everything else.
func safeDomainMessage(err error) string {
	for _, s := range []error{
		domain.ErrNotFound,
		domain.ErrMissingIndex,
		domain.ErrInvalidSpec,
		domain.ErrTypeMismatch,
	} {
		if errors.Is(err, s) {
			return err.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			s.logger.Warn("domain error", zap.Error(err))
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
