// Package httpapi exposes the upload, conversion and download endpoints.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/a3tai/facturx-bridge/internal/convert"
	"github.com/a3tai/facturx-bridge/internal/observability"
	"github.com/a3tai/facturx-bridge/internal/pdf"
	"github.com/a3tai/facturx-bridge/internal/storage"
)

const (
	defaultTimeout = 3 * time.Minute
	// multipart bodies carry form fields next to the file
	formOverhead = 1 << 20
)

// Store keeps uploads and serves artifacts
type Store interface {
	SaveUpload(ctx context.Context, name string, data []byte) (*storage.Upload, error)
	Get(ctx context.Context, id string) (*storage.Upload, error)
	Artifact(ctx context.Context, id, kind string) ([]byte, error)
}

// Converter runs one conversion
type Converter interface {
	Convert(ctx context.Context, req convert.Request) (*convert.Result, error)
}

// Deps are the collaborators of the API. MCP and Ready are optional.
type Deps struct {
	Store     Store
	Converter Converter
	Documents *pdf.Service
	Metrics   *observability.Metrics
	Logger    *zap.Logger
	MCP       http.Handler
	Ready     func(ctx context.Context) error
	Version   string
}

// API holds the HTTP handlers
type API struct {
	store     Store
	converter Converter
	documents *pdf.Service
	ready     func(ctx context.Context) error
	version   string
}

// NewRouter constructs the chi router with shared middleware and every route
func NewRouter(deps Deps) chi.Router {
	api := &API{
		store:     deps.Store,
		converter: deps.Converter,
		documents: deps.Documents,
		ready:     deps.Ready,
		version:   deps.Version,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TraceMiddleware())
	r.Use(observability.RequestLoggerMiddleware(deps.Logger))
	r.Use(observability.MetricsMiddleware(deps.Metrics))
	r.Use(recoverer)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		WriteError(req.Context(), w, NewError("route_not_found", fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		WriteError(req.Context(), w, NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", api.healthz)
	r.Get("/readyz", api.readyz)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}
	if deps.MCP != nil {
		r.Mount("/mcp", deps.MCP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(defaultTimeout))
		r.Post("/upload", api.upload)
		r.Post("/extract", api.extract)
		r.Post("/process", api.process)
		r.Post("/inspect", api.inspect)
		r.Get("/download/{fileId}/{type}", api.download)
	})

	return r
}

// recoverer turns a panic into a 500 envelope
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				observability.FromContext(r.Context()).Error("panic serving request",
					zap.Any("panic", rec), zap.Stack("stack"))
				WriteError(r.Context(), w, NewError("internal_error", "internal server error", http.StatusInternalServerError))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": a.version})
}

func (a *API) readyz(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		if err := a.ready(r.Context()); err != nil {
			observability.FromContext(r.Context()).Warn("readiness check failed", zap.Error(err))
			WriteError(r.Context(), w, NewError("not_ready", "dependencies unavailable", http.StatusServiceUnavailable))
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
