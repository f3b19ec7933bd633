package routes

import (
	"net/http"

	"github.com/clinicore/chartlock/internal/api/handlers"
	"github.com/clinicore/chartlock/internal/api/middleware"
	"github.com/clinicore/chartlock/internal/infrastructure/observability"
)

// Router wires document lifecycle routes to their handlers
type Router struct {
	mux *http.ServeMux

	documentHandler *handlers.DocumentHandler
	sseHandler      *handlers.SSEHandler

	metrics *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	documentHandler *handlers.DocumentHandler,
	sseHandler *handlers.SSEHandler,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:             http.NewServeMux(),
		documentHandler: documentHandler,
		sseHandler:      sseHandler,
		metrics:         metrics,
	}
}

// Setup registers all routes and returns the wrapped handler
func (rt *Router) Setup(healthCheck http.HandlerFunc) http.Handler {
	rt.mux.HandleFunc("GET /health", healthCheck)

	rt.mux.HandleFunc("POST /api/documents", rt.documentHandler.CreateDocument)
	rt.mux.HandleFunc("GET /api/documents/search", rt.documentHandler.SearchDocuments)
	rt.mux.HandleFunc("GET /api/documents/{id}", rt.documentHandler.GetDocument)
	rt.mux.HandleFunc("PUT /api/documents/{id}", rt.documentHandler.UpdateDocument)
	rt.mux.HandleFunc("DELETE /api/documents/{id}", rt.documentHandler.DeleteDocument)
	rt.mux.HandleFunc("POST /api/documents/{id}/finalize", rt.documentHandler.FinalizeDocument)
	rt.mux.HandleFunc("POST /api/documents/{id}/lock", rt.documentHandler.LockDocument)
	rt.mux.HandleFunc("DELETE /api/documents/{id}/lock", rt.documentHandler.UnlockDocument)
	rt.mux.HandleFunc("POST /api/documents/{id}/amendments", rt.documentHandler.CreateAmendment)
	rt.mux.HandleFunc("GET /api/documents/{id}/history", rt.documentHandler.GetHistory)

	rt.mux.HandleFunc("GET /api/patients/{id}/documents", rt.documentHandler.ListPatientDocuments)

	if rt.sseHandler != nil {
		rt.mux.HandleFunc("GET /api/stream/documents", rt.sseHandler.StreamDocumentUpdates)
		rt.mux.HandleFunc("GET /api/stream/patients/{id}", rt.sseHandler.StreamPatientUpdates)
	}

	var handler http.Handler = rt.mux
	if rt.metrics != nil {
		handler = middleware.ObservabilityMiddleware(rt.metrics)(handler)
	}
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.CORSMiddleware(handler)
	return handler
}
